package session

// State is the lifecycle position of a Controller.
type State int32

const (
	Idle State = iota
	Connecting
	Connected
	Closing
	Disconnected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// canConnect reports whether a fresh connect may start from s.
func (s State) canConnect() bool {
	return s == Idle || s == Disconnected
}
