package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/medrag-chat/internal/model/chat"
)

const (
	historyKey       = "chat-history"
	sessionKeyPrefix = "session-"
)

// SessionKey is the KV key holding the message list of one session.
func SessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

// SessionStore persists per-session message lists and the history index.
// Reads never fail: missing or malformed records are reported as empty.
type SessionStore struct {
	kv     KV
	logger *zap.Logger
}

// NewSessionStore wraps kv. A nil logger disables logging.
func NewSessionStore(kv KV, logger *zap.Logger) *SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionStore{kv: kv, logger: logger.Named("session-store")}
}

// Save replaces the stored messages of sessionID.
func (s *SessionStore) Save(sessionID string, messages []chat.Message) error {
	if messages == nil {
		messages = []chat.Message{}
	}
	return s.write(SessionKey(sessionID), messages)
}

// Load returns the stored messages of sessionID, or nil.
func (s *SessionStore) Load(sessionID string) []chat.Message {
	var messages []chat.Message
	if !s.read(SessionKey(sessionID), &messages) {
		return nil
	}
	return messages
}

// ListHistory returns the history index, most recent first.
func (s *SessionStore) ListHistory() []chat.HistoryEntry {
	var entries []chat.HistoryEntry
	if !s.read(historyKey, &entries) {
		return nil
	}
	return entries
}

// SaveHistory replaces the history index.
func (s *SessionStore) SaveHistory(entries []chat.HistoryEntry) error {
	if entries == nil {
		entries = []chat.HistoryEntry{}
	}
	return s.write(historyKey, entries)
}

// Delete drops the stored messages of sessionID.
func (s *SessionStore) Delete(sessionID string) error {
	if err := s.kv.Delete(context.Background(), SessionKey(sessionID)); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

func (s *SessionStore) write(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.kv.Set(context.Background(), key, data); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (s *SessionStore) read(key string, dst any) bool {
	data, err := s.kv.Get(context.Background(), key)
	if errors.Is(err, ErrNotFound) {
		return false
	}
	if err != nil {
		s.logger.Warn("read failed, treating as empty", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.logger.Warn("malformed record, treating as empty", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}
