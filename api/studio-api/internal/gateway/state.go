package internal_gateway

// State is the lifecycle state of the publishing connection.
//
//	new -> connecting -> connected -> {disconnected, failed, closed}
//
// disconnected may recover back to connected if the transport heals;
// failed and closed are terminal for a Connection instance.
type State int

const (
	StateNew State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
