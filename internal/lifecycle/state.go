package lifecycle

// Kind enumerates connection states.
type Kind int

const (
	Connecting Kind = iota
	Subscribing
	Running
	Disconnected
	Stopped
)

var kindNames = map[Kind]string{
	Connecting:   "connecting",
	Subscribing:  "subscribing",
	Running:      "running",
	Disconnected: "disconnected",
	Stopped:      "stopped",
}

// Name returns the lower-case label used in logs and metrics.
func (k Kind) Name() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// State is the current connection state. Reason is set only for
// Disconnected and holds the full observer text.
type State struct {
	Kind   Kind
	Reason string
}

// String returns the text surfaced to observers.
func (s State) String() string {
	switch s.Kind {
	case Connecting:
		return "Connecting"
	case Subscribing:
		return "Subscribing"
	case Running:
		return "Running"
	case Disconnected:
		return s.Reason
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

func disconnected(prefix, reason string) State {
	return State{Kind: Disconnected, Reason: prefix + reason}
}
