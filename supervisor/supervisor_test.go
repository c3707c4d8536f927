package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/mcp-bridge/fault"
)

func waitFor(t *testing.T, events <-chan Event, state State) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				t.Fatalf("event stream closed before reaching %v", state)
			}
			if event.State == state {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %v", state)
		}
	}
}

func TestSupervisorGracefulStop(t *testing.T) {
	// cat exits cleanly once its stdin closes, which is exactly the
	// graceful-stop contract.
	s := New(Config{Command: "cat", StopTimeout: 2 * time.Second})
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	event := waitFor(t, s.Events(), StateHandshaking)
	require.NotNil(t, event.Handle)
	assert.NotZero(t, event.Handle.PID)
	assert.Equal(t, uint64(1), event.Generation)

	s.Ready(event.Generation)
	waitFor(t, s.Events(), StateReady)
	state, generation := s.Snapshot()
	assert.Equal(t, StateReady, state)
	assert.Equal(t, uint64(1), generation)

	s.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	state, _ = s.Snapshot()
	assert.Equal(t, StateTerminated, state)
}

func TestSupervisorRestartsOnExit(t *testing.T) {
	s := New(Config{
		Command:       "sh",
		Args:          []string{"-c", "exit 1"},
		Backoff:       Backoff{Base: time.Millisecond, Cap: 5 * time.Millisecond},
		RestartLimit:  100,
		RestartWindow: time.Minute,
	})
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	first := waitFor(t, s.Events(), StateHandshaking)
	degraded := waitFor(t, s.Events(), StateDegraded)
	assert.Equal(t, first.Generation, degraded.Generation)
	require.Error(t, degraded.Err)
	waitFor(t, s.Events(), StateRestarting)

	second := waitFor(t, s.Events(), StateHandshaking)
	assert.Equal(t, first.Generation+1, second.Generation)
	assert.GreaterOrEqual(t, s.Restarts(), uint64(1))

	s.Stop()
	<-done
}

func TestSupervisorBudgetExhaustionTerminates(t *testing.T) {
	s := New(Config{
		Command:       "sh",
		Args:          []string{"-c", "exit 7"},
		Backoff:       Backoff{Base: time.Millisecond, Cap: time.Millisecond},
		RestartLimit:  2,
		RestartWindow: time.Minute,
	})
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, fault.Is(err, fault.KindUnavailable), "expected unavailable fault, got %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not terminate after budget exhaustion")
	}
	state, _ := s.Snapshot()
	assert.Equal(t, StateTerminated, state)

	// The stream ends after a Terminated event.
	var last Event
	for event := range s.Events() {
		last = event
	}
	assert.Equal(t, StateTerminated, last.State)
}

func TestSupervisorDegradeTriggersRestart(t *testing.T) {
	s := New(Config{
		Command:       "cat",
		Backoff:       Backoff{Base: time.Millisecond, Cap: time.Millisecond},
		RestartLimit:  10,
		RestartWindow: time.Minute,
		StopTimeout:   2 * time.Second,
	})
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	first := waitFor(t, s.Events(), StateHandshaking)
	s.Ready(first.Generation)
	waitFor(t, s.Events(), StateReady)

	s.Degrade(first.Generation, errors.New("keepalive timed out"))
	degraded := waitFor(t, s.Events(), StateDegraded)
	assert.ErrorContains(t, degraded.Err, "keepalive")

	second := waitFor(t, s.Events(), StateHandshaking)
	assert.Equal(t, first.Generation+1, second.Generation)

	// A stale report for the old generation is ignored.
	s.Degrade(first.Generation, errors.New("stale"))
	s.Ready(second.Generation)
	waitFor(t, s.Events(), StateReady)

	s.Stop()
	assert.NoError(t, <-done)
}

func TestSupervisorContextCancelStops(t *testing.T) {
	s := New(Config{Command: "cat", StopTimeout: 2 * time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitFor(t, s.Events(), StateHandshaking)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	b := Backoff{Base: 100 * time.Millisecond, Cap: time.Second}
	assert.Equal(t, 100*time.Millisecond, b.Delay(0))
	assert.Equal(t, 200*time.Millisecond, b.Delay(1))
	assert.Equal(t, 400*time.Millisecond, b.Delay(2))
	assert.Equal(t, time.Second, b.Delay(4))
	assert.Equal(t, time.Second, b.Delay(60))
}

func TestBackoffJitterStaysBounded(t *testing.T) {
	b := Backoff{Base: 100 * time.Millisecond, Cap: time.Second, Jitter: 0.2}
	for i := 0; i < 100; i++ {
		delay := b.Delay(1)
		assert.GreaterOrEqual(t, delay, 160*time.Millisecond)
		assert.LessOrEqual(t, delay, 240*time.Millisecond)
	}
}

func TestRestartWindowBudget(t *testing.T) {
	w := &restartWindow{window: time.Minute, limit: 2}
	now := time.Now()
	assert.True(t, w.allow(now))
	assert.True(t, w.allow(now.Add(time.Second)))
	assert.False(t, w.allow(now.Add(2*time.Second)))

	// Old entries age out of the window.
	assert.True(t, w.allow(now.Add(2*time.Minute)))

	w.reset()
	assert.True(t, w.allow(now.Add(3*time.Minute)))
}

func TestStateTransitions(t *testing.T) {
	testCases := []struct {
		from, to State
		legal    bool
	}{
		{StateStarting, StateHandshaking, true},
		{StateHandshaking, StateReady, true},
		{StateReady, StateDegraded, true},
		{StateDegraded, StateRestarting, true},
		{StateRestarting, StateStarting, true},
		{StateReady, StateTerminated, true},
		{StateStarting, StateDegraded, true},
		{StateStarting, StateReady, false},
		{StateReady, StateStarting, false},
		{StateTerminated, StateStarting, false},
		{StateTerminated, StateDegraded, false},
		{StateTerminated, StateTerminated, false},
	}
	for _, testCase := range testCases {
		assert.Equal(t, testCase.legal, testCase.from.legalNext(testCase.to),
			"%v -> %v", testCase.from, testCase.to)
	}
}
