package relay

// State is the upstream side of a session.
type State int

const (
	StateIdle State = iota
	StateUpstreamConnecting
	StateUpstreamOpen
	StateUpstreamClosed
	StateReconnecting
	StatePermanentlyFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateUpstreamConnecting:
		return "upstream_connecting"
	case StateUpstreamOpen:
		return "upstream_open"
	case StateUpstreamClosed:
		return "upstream_closed"
	case StateReconnecting:
		return "reconnecting"
	case StatePermanentlyFailed:
		return "permanently_failed"
	default:
		return "unknown"
	}
}
