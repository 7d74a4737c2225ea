// Package disclosure gates the "reference cases" toggle attached to an answer.
package disclosure

import (
	"sync"

	"github.com/zhouzirui/medrag-chat/internal/model/chat"
)

// Eligible reports whether the toggle for msg may be shown. isTarget marks the
// message currently chosen for animation and typingDone whether that animation ended.
func Eligible(msg chat.Message, isTarget, typingDone bool) bool {
	if !msg.HasReferences() || msg.Loading {
		return false
	}
	return !isTarget || typingDone
}

// Set tracks expanded state per message id. The zero value is usable.
type Set struct {
	mu       sync.Mutex
	expanded map[string]bool
}

// Expanded reports whether messageID is currently expanded.
func (s *Set) Expanded(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expanded[messageID]
}

// Toggle flips messageID and returns the new state. pinBottom is true when the
// panel went from collapsed to expanded, so the scroll region should follow it.
func (s *Set) Toggle(messageID string) (expanded, pinBottom bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.expanded == nil {
		s.expanded = make(map[string]bool)
	}
	next := !s.expanded[messageID]
	if next {
		s.expanded[messageID] = true
	} else {
		delete(s.expanded, messageID)
	}
	return next, next
}

// Retain drops state for messages that are no longer displayed.
func (s *Set) Retain(messages []chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.expanded) == 0 {
		return
	}
	keep := make(map[string]struct{}, len(messages))
	for _, msg := range messages {
		keep[msg.ID] = struct{}{}
	}
	for id := range s.expanded {
		if _, ok := keep[id]; !ok {
			delete(s.expanded, id)
		}
	}
}
