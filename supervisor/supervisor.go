package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/viant/mcp-bridge/fault"
)

// Handle exposes the streams of a live subprocess generation. Stdin and
// Stdout carry the protocol; stderr is pumped into the log by the
// supervisor and never surfaces here.
type Handle struct {
	PID        int
	Generation uint64
	Stdin      io.WriteCloser
	Stdout     io.ReadCloser
}

// Config drives a Supervisor.
type Config struct {
	Command       string
	Args          []string
	Backoff       Backoff
	RestartLimit  int
	RestartWindow time.Duration
	StopTimeout   time.Duration
	Logger        *slog.Logger
}

// Event notifies the owner of a state change. Handle is set only on
// Handshaking events, when a fresh generation has just spawned.
type Event struct {
	Generation uint64
	State      State
	Handle     *Handle
	Err        error
}

type degradation struct {
	generation uint64
	err        error
}

// Supervisor spawns and restarts a single subprocess, owning its lifecycle
// state machine. Run is the only writer of state; Ready and Degrade feed
// handshake outcomes back in from the owner.
type Supervisor struct {
	config   Config
	logger   *slog.Logger
	events   chan Event
	readyCh  chan uint64
	degrade  chan degradation
	stopCh   chan struct{}
	stopOnce sync.Once

	mu         sync.Mutex
	state      State
	generation uint64

	restarts atomic.Uint64
}

// New returns an unstarted Supervisor for command args.
func New(config Config) *Supervisor {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = 5 * time.Second
	}
	if config.RestartLimit <= 0 {
		config.RestartLimit = 5
	}
	if config.RestartWindow <= 0 {
		config.RestartWindow = time.Minute
	}
	return &Supervisor{
		config:  config,
		logger:  logger,
		events:  make(chan Event, 32),
		readyCh: make(chan uint64, 4),
		degrade: make(chan degradation, 4),
		stopCh:  make(chan struct{}),
		state:   StateStarting,
	}
}

// Events returns the state-change stream. It is closed when Run returns;
// a single consumer is expected to drain it promptly.
func (s *Supervisor) Events() <-chan Event {
	return s.events
}

// Snapshot returns the current state and generation.
func (s *Supervisor) Snapshot() (State, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.generation
}

// Restarts returns how many respawns have happened over the process lifetime.
func (s *Supervisor) Restarts() uint64 {
	return s.restarts.Load()
}

// Ready reports a completed handshake for generation; stale generations are
// ignored.
func (s *Supervisor) Ready(generation uint64) {
	select {
	case s.readyCh <- generation:
	case <-s.stopCh:
	}
}

// Degrade reports an I/O failure detected above the supervisor, such as a
// failed handshake or a keepalive timeout, for generation.
func (s *Supervisor) Degrade(generation uint64, err error) {
	select {
	case s.degrade <- degradation{generation: generation, err: err}:
	case <-s.stopCh:
	}
}

// Stop requests a graceful shutdown: stdin is closed first, the process is
// given StopTimeout to exit, then killed. Idempotent.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// Run drives the spawn/supervise/restart loop until Stop, context
// cancellation, or an exhausted restart budget. It returns nil on graceful
// shutdown and an unavailable fault when the budget is exhausted.
func (s *Supervisor) Run(ctx context.Context) error {
	defer close(s.events)
	// Unblocks any Ready/Degrade callers once the loop is gone.
	defer s.Stop()
	window := &restartWindow{window: s.config.RestartWindow, limit: s.config.RestartLimit}
	attempt := 0
	for {
		s.mu.Lock()
		s.generation++
		generation := s.generation
		s.state = StateStarting
		s.mu.Unlock()
		s.emit(Event{Generation: generation, State: StateStarting})

		handle, cmd, waitCh, err := s.spawn(generation)
		if err != nil {
			s.logger.Error("subprocess spawn failed", "generation", generation, "error", err)
			if terminal := s.recover(ctx, generation, window, &attempt, err); terminal != nil {
				return s.finish(generation, terminal)
			}
			continue
		}
		s.transition(generation, StateHandshaking, handle, nil)

		var failure error
	supervise:
		for {
			select {
			case exitErr := <-waitCh:
				failure = fmt.Errorf("subprocess exited unexpectedly: %w", normalizeExit(exitErr))
				break supervise
			case ready := <-s.readyCh:
				if ready != generation {
					continue
				}
				attempt = 0
				window.reset()
				s.transition(generation, StateReady, nil, nil)
			case report := <-s.degrade:
				if report.generation != generation {
					continue
				}
				failure = report.err
				s.terminate(handle, cmd, waitCh)
				break supervise
			case <-s.stopCh:
				s.terminate(handle, cmd, waitCh)
				return s.finish(generation, nil)
			case <-ctx.Done():
				s.terminate(handle, cmd, waitCh)
				return s.finish(generation, nil)
			}
		}

		s.logger.Warn("subprocess degraded", "generation", generation, "error", failure)
		if terminal := s.recover(ctx, generation, window, &attempt, failure); terminal != nil {
			return s.finish(generation, terminal)
		}
	}
}

// recover runs the Degraded→(backoff)→Restarting leg. It returns a non-nil
// terminal error when the restart budget is exhausted, and nil when the
// loop should respawn. Stop or context cancellation during backoff also
// surfaces as terminal, with a nil-wrapped graceful marker.
func (s *Supervisor) recover(ctx context.Context, generation uint64, window *restartWindow, attempt *int, cause error) error {
	s.transition(generation, StateDegraded, nil, cause)
	if !window.allow(time.Now()) {
		return fault.Wrap(fault.KindUnavailable,
			fmt.Sprintf("restart budget exhausted: %d restarts within %v", s.config.RestartLimit, s.config.RestartWindow), cause)
	}
	delay := s.config.Backoff.Delay(*attempt)
	*attempt++
	s.logger.Info("restart scheduled", "generation", generation, "attempt", *attempt, "delay", delay)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-s.stopCh:
		return errGraceful
	case <-ctx.Done():
		return errGraceful
	}
	s.restarts.Add(1)
	s.transition(generation, StateRestarting, nil, nil)
	return nil
}

// errGraceful marks a shutdown requested during backoff; finish maps it to
// a nil return.
var errGraceful = errors.New("graceful shutdown")

func (s *Supervisor) finish(generation uint64, err error) error {
	if errors.Is(err, errGraceful) {
		err = nil
	}
	s.transition(generation, StateTerminated, nil, err)
	return err
}

func (s *Supervisor) spawn(generation uint64) (*Handle, *exec.Cmd, <-chan error, error) {
	cmd := exec.Command(s.config.Command, s.config.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to start %v: %w", s.config.Command, err)
	}
	go s.pumpStderr(generation, stderr)
	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
	}()
	handle := &Handle{
		PID:        cmd.Process.Pid,
		Generation: generation,
		Stdin:      stdin,
		Stdout:     stdout,
	}
	s.logger.Info("subprocess started", "generation", generation, "pid", handle.PID, "command", s.config.Command)
	return handle, cmd, waitCh, nil
}

// terminate stops a live process: stdin closes first so a well-behaved
// server exits on end-of-input, then a bounded wait, then kill.
func (s *Supervisor) terminate(handle *Handle, cmd *exec.Cmd, waitCh <-chan error) {
	_ = handle.Stdin.Close()
	timer := time.NewTimer(s.config.StopTimeout)
	defer timer.Stop()
	select {
	case <-waitCh:
		return
	case <-timer.C:
	}
	s.logger.Warn("subprocess did not exit in time, killing", "generation", handle.Generation, "pid", handle.PID)
	_ = cmd.Process.Kill()
	<-waitCh
}

func (s *Supervisor) pumpStderr(generation uint64, stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.logger.Warn("subprocess stderr", "generation", generation, "line", scanner.Text())
	}
}

func (s *Supervisor) transition(generation uint64, next State, handle *Handle, err error) {
	s.mu.Lock()
	if !s.state.legalNext(next) {
		s.logger.Error("illegal state transition", "from", s.state, "to", next, "generation", generation)
	}
	s.state = next
	s.mu.Unlock()
	s.emit(Event{Generation: generation, State: next, Handle: handle, Err: err})
}

func (s *Supervisor) emit(event Event) {
	select {
	case s.events <- event:
	default:
		s.logger.Warn("event dropped, slow consumer", "state", event.State, "generation", event.Generation)
	}
}

func normalizeExit(err error) error {
	if err == nil {
		return fmt.Errorf("exit status 0")
	}
	return err
}
