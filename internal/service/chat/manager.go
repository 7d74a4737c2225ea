package chat

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/medrag-chat/internal/model/chat"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionStore is the persistence the manager needs. Reads degrade to empty results.
type SessionStore interface {
	Save(sessionID string, messages []chat.Message) error
	Load(sessionID string) []chat.Message
	ListHistory() []chat.HistoryEntry
	SaveHistory(entries []chat.HistoryEntry) error
	Delete(sessionID string) error
}

// Manager creates, opens, persists and deletes sessions and owns the history index.
type Manager struct {
	mu      sync.RWMutex
	store   SessionStore
	history []chat.HistoryEntry
	logger  *zap.Logger
}

// NewManager loads the history index from store.
func NewManager(store SessionStore, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:   store,
		history: dedupeHistory(store.ListHistory()),
		logger:  logger.Named("session-manager"),
	}
}

// History returns a copy of the index, most recently active first.
func (m *Manager) History() []chat.HistoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]chat.HistoryEntry(nil), m.history...)
}

// Create provisions a fresh session seeded with welcome. Nothing is persisted
// until the session receives its first user message.
func (m *Manager) Create(welcome chat.Message) chat.Session {
	return chat.Session{
		ID:       uuid.NewString(),
		Messages: []chat.Message{welcome},
	}
}

// Open reconstitutes a stored session.
func (m *Manager) Open(sessionID string) (chat.Session, error) {
	messages := m.store.Load(sessionID)
	if len(messages) == 0 {
		return chat.Session{}, ErrSessionNotFound
	}
	return chat.Session{
		ID:       sessionID,
		Title:    chat.TitleOf(messages),
		Messages: messages,
	}, nil
}

// Commit persists the session and moves its history entry to the front.
// Loading placeholders are never written. Returns false when the session has
// no user message yet and was therefore left unpersisted.
func (m *Manager) Commit(session chat.Session) (bool, error) {
	persisted := make([]chat.Message, 0, len(session.Messages))
	for _, msg := range session.Messages {
		if msg.Loading {
			continue
		}
		persisted = append(persisted, msg)
	}

	first, ok := chat.FirstUserMessage(persisted)
	if !ok {
		return false, nil
	}
	title := chat.DeriveTitle(first.Text)

	var errs []error
	if err := m.store.Save(session.ID, persisted); err != nil {
		errs = append(errs, fmt.Errorf("save session %s: %w", session.ID, err))
	}

	m.mu.Lock()
	m.history = upsertHistory(m.history, chat.HistoryEntry{ID: session.ID, Title: title})
	snapshot := append([]chat.HistoryEntry(nil), m.history...)
	m.mu.Unlock()

	if err := m.store.SaveHistory(snapshot); err != nil {
		errs = append(errs, fmt.Errorf("save history: %w", err))
	}
	return true, errors.Join(errs...)
}

// Touch moves an opened session to the front of the history index without
// rewriting its messages. Sessions without a user message are left out.
func (m *Manager) Touch(session chat.Session) (bool, error) {
	title := chat.TitleOf(session.Messages)
	if title == "" {
		return false, nil
	}

	m.mu.Lock()
	m.history = upsertHistory(m.history, chat.HistoryEntry{ID: session.ID, Title: title})
	snapshot := append([]chat.HistoryEntry(nil), m.history...)
	m.mu.Unlock()

	if err := m.store.SaveHistory(snapshot); err != nil {
		return true, fmt.Errorf("save history: %w", err)
	}
	return true, nil
}

// Delete evicts the session from the index and storage. It returns the id of
// the most recent remaining entry, if any.
func (m *Manager) Delete(sessionID string) (string, bool, error) {
	m.mu.Lock()
	remaining := make([]chat.HistoryEntry, 0, len(m.history))
	for _, entry := range m.history {
		if entry.ID != sessionID {
			remaining = append(remaining, entry)
		}
	}
	m.history = remaining
	snapshot := append([]chat.HistoryEntry(nil), remaining...)
	m.mu.Unlock()

	var errs []error
	if err := m.store.SaveHistory(snapshot); err != nil {
		errs = append(errs, fmt.Errorf("save history: %w", err))
	}
	if err := m.store.Delete(sessionID); err != nil {
		errs = append(errs, fmt.Errorf("delete session %s: %w", sessionID, err))
	}

	m.logger.Debug("session deleted", zap.String("session", sessionID), zap.Int("remaining", len(snapshot)))

	if len(snapshot) == 0 {
		return "", false, errors.Join(errs...)
	}
	return snapshot[0].ID, true, errors.Join(errs...)
}

func upsertHistory(history []chat.HistoryEntry, entry chat.HistoryEntry) []chat.HistoryEntry {
	out := make([]chat.HistoryEntry, 0, len(history)+1)
	out = append(out, entry)
	for _, existing := range history {
		if existing.ID != entry.ID {
			out = append(out, existing)
		}
	}
	return out
}

func dedupeHistory(entries []chat.HistoryEntry) []chat.HistoryEntry {
	seen := make(map[string]struct{}, len(entries))
	out := make([]chat.HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.ID == "" {
			continue
		}
		if _, ok := seen[entry.ID]; ok {
			continue
		}
		seen[entry.ID] = struct{}{}
		out = append(out, entry)
	}
	return out
}
