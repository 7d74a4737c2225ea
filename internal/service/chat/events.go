package chat

// EventKind names what changed in the controller.
type EventKind string

const (
	EventSession        EventKind = "session"
	EventMessages       EventKind = "messages"
	EventFrame          EventKind = "frame"
	EventState          EventKind = "state"
	EventHistory        EventKind = "history"
	EventReferences     EventKind = "references"
	EventScrollToBottom EventKind = "scroll"
)

// Event is delivered to a Listener after the change is committed.
type Event struct {
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"sessionId"`
	State     State     `json:"state"`
	MessageID string    `json:"messageId,omitempty"`
	Text      string    `json:"text,omitempty"`
	Expanded  bool      `json:"expanded,omitempty"`
}

// Listener observes controller events. It is called without any controller
// lock held, so it may read a Snapshot, but it should return quickly.
type Listener func(Event)
