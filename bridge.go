// Package bridge exposes an MCP stdio tool server as a plain HTTP/OpenAPI
// service: it supervises the subprocess, correlates JSON-RPC calls over its
// stdin/stdout, discovers the advertised tools and serves one POST route per
// tool, rebuilding the surface after every restart.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/viant/mcp-protocol/schema"

	"github.com/viant/mcp-bridge/discovery"
	"github.com/viant/mcp-bridge/router"
	"github.com/viant/mcp-bridge/stdio"
	"github.com/viant/mcp-bridge/supervisor"
)

// Service is the composition root: one supervised subprocess, one route
// table, one HTTP listener.
type Service struct {
	options    *Options
	logger     *slog.Logger
	supervisor *supervisor.Supervisor
	discovery  *discovery.Service
	router     *router.Router

	mu         sync.Mutex
	correlator *stdio.Correlator
	generation uint64
}

// New assembles a Service from options; call Run to start it.
func New(options *Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	supervised := supervisor.New(supervisor.Config{
		Command: options.Command[0],
		Args:    options.Command[1:],
		Backoff: supervisor.Backoff{
			Base:   time.Duration(options.BackoffBaseMs) * time.Millisecond,
			Cap:    time.Duration(options.BackoffCapMs) * time.Millisecond,
			Jitter: options.BackoffJitter,
		},
		RestartLimit:  options.RestartLimit,
		RestartWindow: time.Duration(options.RestartWinSec) * time.Second,
		StopTimeout:   options.StopTimeout(),
		Logger:        logger,
	})
	return &Service{
		options:    options,
		logger:     logger,
		supervisor: supervised,
		discovery: discovery.New(discovery.Config{
			ClientName:    options.Name,
			ClientVersion: options.Version,
			Timeout:       options.HandshakeTimeout(),
			Logger:        logger,
		}),
		router: router.New(supervised, router.Config{
			CallTimeout: options.CallTimeout(),
			Cors:        options.Cors(),
			Logger:      logger,
		}),
	}
}

// Run serves until the context is cancelled or the subprocess terminates
// fatally. It returns nil on graceful shutdown and the terminal error when
// the restart budget is exhausted.
func (s *Service) Run(ctx context.Context) error {
	server := &http.Server{Addr: s.options.Addr(), Handler: s.router.Handler()}
	listenErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()
	s.logger.Info("bridge listening", "addr", s.options.Addr(), "command", s.options.Command)

	supervised := make(chan error, 1)
	go func() { supervised <- s.supervisor.Run(ctx) }()

	var runErr error
events:
	for {
		select {
		case err := <-listenErr:
			runErr = fmt.Errorf("http listener failed: %w", err)
			s.supervisor.Stop()
			<-supervised
			break events
		case event, ok := <-s.supervisor.Events():
			if !ok {
				runErr = <-supervised
				break events
			}
			s.onEvent(ctx, event)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.options.StopTimeout())
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	return runErr
}

// Stop requests a graceful shutdown.
func (s *Service) Stop() {
	s.supervisor.Stop()
}

func (s *Service) onEvent(ctx context.Context, event supervisor.Event) {
	switch event.State {
	case supervisor.StateHandshaking:
		s.attach(ctx, event)
	case supervisor.StateDegraded:
		s.drain(event)
	case supervisor.StateTerminated:
		if event.Err != nil {
			s.logger.Error("subprocess terminated", "generation", event.Generation, "error", event.Err)
		}
	}
}

// attach wires a fresh generation: framer and correlator over the handle's
// pipes, then handshake and discovery off the event loop so supervision
// stays responsive.
func (s *Service) attach(ctx context.Context, event supervisor.Event) {
	framer := stdio.NewFramer(event.Handle.Stdout, event.Handle.Stdin, s.logger)
	correlator := stdio.NewCorrelator(framer, s.logger)
	go framer.Run()
	go correlator.Run()

	s.mu.Lock()
	s.correlator = correlator
	s.generation = event.Generation
	s.mu.Unlock()

	go func() {
		result, err := s.discovery.Discover(ctx, correlator, event.Generation)
		if err != nil {
			s.supervisor.Degrade(event.Generation, fmt.Errorf("discovery failed: %w", err))
			return
		}
		if err := s.router.Rebuild(result, correlator); err != nil {
			s.supervisor.Degrade(event.Generation, fmt.Errorf("route table rebuild failed: %w", err))
			return
		}
		s.supervisor.Ready(event.Generation)
		if interval := s.options.PingInterval(); interval > 0 {
			go s.keepalive(ctx, correlator, event.Generation, interval)
		}
	}()
}

// drain fails the degraded generation's in-flight calls immediately instead
// of letting each ride out its own timeout.
func (s *Service) drain(event supervisor.Event) {
	s.mu.Lock()
	correlator, generation := s.correlator, s.generation
	s.mu.Unlock()
	if correlator == nil || generation != event.Generation {
		return
	}
	reason := event.Err
	if reason == nil {
		reason = errors.New("subprocess degraded")
	}
	correlator.Drain(reason)
}

// keepalive pings the subprocess; a failed ping degrades the generation.
func (s *Service) keepalive(ctx context.Context, correlator *stdio.Correlator, generation uint64, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := correlator.Call(ctx, schema.MethodPing, &schema.PingRequestParams{}, interval); err != nil {
				s.supervisor.Degrade(generation, fmt.Errorf("keepalive ping failed: %w", err))
				return
			}
		case <-correlator.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}
