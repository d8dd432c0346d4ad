package connection

// State is the process-wide connectivity state. Exactly one state holds at
// any instant; transitions are published on the manager's state stream.
type State int

const (
	Disconnected State = iota
	Scanning
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Scanning:
		return "scanning"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Feedback is the haptic/vibration hook fired on every accepted barcode.
// Implementations must not block; failures are silently ignored.
type Feedback interface {
	Buzz()
}

// FeedbackFunc adapts a plain function to the Feedback interface.
type FeedbackFunc func()

func (f FeedbackFunc) Buzz() { f() }
