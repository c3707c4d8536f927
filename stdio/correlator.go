package stdio

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/viant/jsonrpc"

	"github.com/viant/mcp-bridge/fault"
	"github.com/viant/mcp-bridge/internal/collection"
	"github.com/viant/mcp-bridge/internal/conv"
)

// DefaultCallTimeout bounds a call when the caller passes no explicit
// deadline.
const DefaultCallTimeout = 30 * time.Second

// outcome is the single resolution of a pending call.
type outcome struct {
	response *jsonrpc.Response
	err      error
}

// pendingCall is the correlator-owned slot a caller parks on. It is created
// when a call is issued and removed exactly once: by response arrival, by
// deadline, or by drain.
type pendingCall struct {
	id        uint64
	method    string
	createdAt time.Time
	done      chan outcome
}

// Option customizes a Correlator.
type Option func(*Correlator)

// WithNotificationHook routes inbound notifications to fn in addition to the
// debug log.
func WithNotificationHook(fn func(*jsonrpc.Notification)) Option {
	return func(c *Correlator) {
		c.notificationHook = fn
	}
}

// Correlator matches JSON-RPC responses to the requests that caused them by
// id, independent of arrival order. One instance serves one subprocess
// generation; it must not be reused across restarts.
type Correlator struct {
	framer           *Framer
	logger           *slog.Logger
	inbound          <-chan *Message
	seq              atomic.Uint64
	pending          *collection.SyncMap[uint64, *pendingCall]
	notificationHook func(*jsonrpc.Notification)

	drainMu  sync.Mutex
	drained  bool
	drainErr error

	done chan struct{}
}

// NewCorrelator creates a correlator consuming the framer's decoded stream.
// Call Run (typically in its own goroutine) before issuing calls.
func NewCorrelator(framer *Framer, logger *slog.Logger, options ...Option) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	ret := &Correlator{
		framer:  framer,
		logger:  logger,
		inbound: framer.Subscribe(),
		pending: collection.NewSyncMap[uint64, *pendingCall](),
		done:    make(chan struct{}),
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Run dispatches inbound messages until the framer signals end-of-stream,
// then drains every pending call with a transport fault.
func (c *Correlator) Run() {
	defer close(c.done)
	for message := range c.inbound {
		switch {
		case message.Response != nil:
			c.resolve(message.Response)
		case message.Notification != nil:
			c.onNotification(message.Notification)
		case message.Request != nil:
			c.onServerRequest(message.Request)
		}
	}
	c.Drain(fault.New(fault.KindTransport, "subprocess stream ended"))
}

// Done is closed once Run has exited and all pending calls were drained.
func (c *Correlator) Done() <-chan struct{} {
	return c.done
}

// Pending reports the number of in-flight calls.
func (c *Correlator) Pending() int {
	return c.pending.Len()
}

// Call sends a request and suspends the caller until a response with the
// matching id arrives, the timeout elapses, or the generation is drained.
// The returned error is a *jsonrpc.Error when the subprocess answered with a
// JSON-RPC error object, or a *fault.Error for timeout/transport failures.
func (c *Correlator) Call(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	request, err := jsonrpc.NewRequest(method, params)
	if err != nil {
		return nil, fault.Wrap(fault.KindProtocol, fmt.Sprintf("failed to build %v request", method), err)
	}
	id := c.seq.Add(1)
	request.Id = id
	if request.Jsonrpc == "" {
		request.Jsonrpc = jsonrpc.Version
	}
	call := &pendingCall{
		id:        id,
		method:    method,
		createdAt: time.Now(),
		done:      make(chan outcome, 1),
	}
	// Register before sending so a response cannot win the race with
	// registration.
	if err := c.register(call); err != nil {
		return nil, err
	}
	if err := c.framer.Send(request); err != nil {
		c.pending.Take(id)
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case result := <-call.done:
		return c.finish(result)
	case <-timer.C:
		if _, ok := c.pending.Take(id); ok {
			return nil, fault.Newf(fault.KindTimeout, "no response to %v (id %d) within %v", method, id, timeout)
		}
		// A resolution was already in flight when the timer fired.
		return c.finish(<-call.done)
	case <-ctx.Done():
		if _, ok := c.pending.Take(id); ok {
			return nil, ctx.Err()
		}
		return c.finish(<-call.done)
	}
}

// Notify sends a notification; no response is expected or tracked.
func (c *Correlator) Notify(_ context.Context, method string, params interface{}) error {
	notification, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return fault.Wrap(fault.KindProtocol, fmt.Sprintf("failed to build %v notification", method), err)
	}
	return c.framer.Send(notification)
}

// Drain fails every pending call with reason and rejects subsequent calls.
// It is idempotent; only the first reason is retained.
func (c *Correlator) Drain(reason error) {
	c.drainMu.Lock()
	if c.drained {
		c.drainMu.Unlock()
		return
	}
	c.drained = true
	c.drainErr = reason
	c.drainMu.Unlock()

	calls := c.pending.Drain()
	for _, call := range calls {
		call.done <- outcome{err: reason}
	}
	if len(calls) > 0 {
		c.logger.Warn("drained pending calls", "count", len(calls), "reason", reason)
	}
}

func (c *Correlator) finish(result outcome) (json.RawMessage, error) {
	if result.err != nil {
		return nil, result.err
	}
	response := result.response
	if response.Error != nil {
		return nil, response.Error
	}
	return response.Result, nil
}

// register inserts the pending slot unless the generation was already
// drained. Insertion holds the drain lock, so a concurrent Drain either sees
// the slot in its sweep or the call is rejected here; a slot can never land
// in an already-swept table and ride out its timeout.
func (c *Correlator) register(call *pendingCall) error {
	c.drainMu.Lock()
	defer c.drainMu.Unlock()
	if c.drained {
		return c.drainErr
	}
	c.pending.Put(call.id, call)
	return nil
}

// resolve fulfils the pending call matching the response id. Responses whose
// id has no pending slot (already timed out, or spurious) are logged and
// discarded.
func (c *Correlator) resolve(response *jsonrpc.Response) {
	id, ok := conv.AsInt(response.Id)
	if !ok {
		c.logger.Warn("discarding response with non-integer id", "id", response.Id)
		return
	}
	call, ok := c.pending.Take(uint64(id))
	if !ok {
		c.logger.Debug("discarding unmatched response", "id", id)
		return
	}
	call.done <- outcome{response: response}
	c.logger.Debug("call resolved", "method", call.method, "id", call.id, "elapsed", time.Since(call.createdAt))
}

func (c *Correlator) onNotification(notification *jsonrpc.Notification) {
	c.logger.Debug("subprocess notification", "method", notification.Method)
	if c.notificationHook != nil {
		c.notificationHook(notification)
	}
}

// onServerRequest handles server-initiated requests. The bridge does not
// implement any client-side operations, so the peer receives a method-not-
// found error instead of waiting forever; the event is reported as a
// protocol anomaly.
func (c *Correlator) onServerRequest(request *jsonrpc.Request) {
	c.logger.Warn("unexpected server-initiated request", "method", request.Method, "id", request.Id)
	response := &jsonrpc.Response{
		Jsonrpc: jsonrpc.Version,
		Id:      request.Id,
		Error:   jsonrpc.NewMethodNotFound(fmt.Sprintf("method %v is not supported by the bridge", request.Method), nil),
	}
	if err := c.framer.Send(response); err != nil {
		c.logger.Warn("failed to reject server-initiated request", "error", err)
	}
}
