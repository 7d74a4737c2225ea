package chat

import (
	"context"
	"fmt"

	"github.com/zhouzirui/medrag-chat/internal/model/chat"
)

// State is the request lifecycle of a controller.
type State int

const (
	StateIdle State = iota
	// StateSending means a backend request is in flight.
	StateSending
	// StateTyping means the latest answer is being revealed.
	StateTyping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateTyping:
		return "typing"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = StateIdle
	case "sending":
		*s = StateSending
	case "typing":
		*s = StateTyping
	default:
		return fmt.Errorf("unknown state %q", text)
	}
	return nil
}

// Asker answers a question. Implementations report every transport problem as an error.
type Asker interface {
	Ask(ctx context.Context, question string) (*chat.AskResponse, error)
}

// AskerFunc adapts a function to Asker.
type AskerFunc func(ctx context.Context, question string) (*chat.AskResponse, error)

func (f AskerFunc) Ask(ctx context.Context, question string) (*chat.AskResponse, error) {
	return f(ctx, question)
}
