package optimist

import "fmt"

type NotifyKind uint8

const (
	NotifyError NotifyKind = iota
	NotifySuccess
)

func (k NotifyKind) String() string {
	if k == NotifySuccess {
		return "success"
	}
	return "error"
}

// Notification is a human-readable outcome (toast material). It never
// affects cache state.
type Notification struct {
	Kind     NotifyKind
	Message  string
	Key      string
	Op       Kind
	TargetID string
	Err      error
}

// NotificationSink receives outcomes. Must be cheap and non-blocking.
type NotificationSink func(Notification)

// DefaultMessage is used when Options.Describe is nil.
func DefaultMessage(n Notification) string {
	if n.Kind == NotifyError {
		switch n.Op {
		case Fetch:
			return fmt.Sprintf("failed to load %s", n.Key)
		case Clear:
			return fmt.Sprintf("failed to clear %s", n.Key)
		default:
			return fmt.Sprintf("failed to %s item %s", n.Op, n.TargetID)
		}
	}
	switch n.Op {
	case Add:
		return fmt.Sprintf("added item %s", n.TargetID)
	case Remove:
		return fmt.Sprintf("removed item %s", n.TargetID)
	case Update:
		return fmt.Sprintf("updated item %s", n.TargetID)
	case Clear:
		return fmt.Sprintf("cleared %s", n.Key)
	default:
		return fmt.Sprintf("loaded %s", n.Key)
	}
}
