package supervisor

// State is the lifecycle phase of the supervised subprocess.
type State int

const (
	// StateStarting indicates the subprocess is being spawned
	StateStarting State = iota
	// StateHandshaking indicates the subprocess spawned and the protocol handshake is in flight
	StateHandshaking
	// StateReady indicates the handshake completed and the subprocess serves calls
	StateReady
	// StateDegraded indicates an I/O failure or unexpected exit was detected
	StateDegraded
	// StateRestarting indicates the backoff delay elapsed and a respawn is due
	StateRestarting
	// StateTerminated is terminal: graceful shutdown or exhausted restart budget
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateRestarting:
		return "restarting"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// legalNext reports whether moving from s to next is a valid lifecycle
// transition. Terminated accepts no successor.
func (s State) legalNext(next State) bool {
	if next == StateTerminated {
		return s != StateTerminated
	}
	if next == StateDegraded {
		return s != StateTerminated && s != StateDegraded
	}
	switch s {
	case StateStarting:
		return next == StateHandshaking
	case StateHandshaking:
		return next == StateReady
	case StateDegraded:
		return next == StateRestarting
	case StateRestarting:
		return next == StateStarting
	}
	return false
}
