package chat

// Role identifies who authored a message in the thread.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ReferenceCase is one supporting case returned alongside an answer.
// IDs are 1-based positions within the owning message.
type ReferenceCase struct {
	ID         int    `json:"id"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Department string `json:"department,omitempty"`
}

// Message is a single entry of a session thread.
type Message struct {
	ID             string          `json:"id"`
	Role           Role            `json:"role"`
	Text           string          `json:"text"`
	ReferenceCases []ReferenceCase `json:"referenceCases,omitempty"`
	Loading        bool            `json:"loading,omitempty"`
}

// HasReferences reports whether the message carries supporting material.
func (m Message) HasReferences() bool {
	return len(m.ReferenceCases) > 0
}

// Clone returns a deep copy so callers can hand out messages without sharing slices.
func (m Message) Clone() Message {
	if m.ReferenceCases != nil {
		m.ReferenceCases = append([]ReferenceCase(nil), m.ReferenceCases...)
	}
	return m
}

// CloneMessages copies a message list.
func CloneMessages(messages []Message) []Message {
	if messages == nil {
		return nil
	}
	out := make([]Message, len(messages))
	for i, msg := range messages {
		out[i] = msg.Clone()
	}
	return out
}
