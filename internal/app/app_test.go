package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/medrag-chat/internal/config"
	"github.com/zhouzirui/medrag-chat/internal/model/chat"
	"github.com/zhouzirui/medrag-chat/internal/service/ask"
	chatsvc "github.com/zhouzirui/medrag-chat/internal/service/chat"
)

func testConfig(baseURL, dbPath string) *config.Config {
	return &config.Config{
		Ask:        config.AskConfig{Mode: config.AskModeHTTP, BaseURL: baseURL, Timeout: 5 * time.Second},
		Store:      config.StoreConfig{Driver: config.StoreDriverSQLite, Path: dbPath},
		Typewriter: config.TypewriterConfig{Interval: time.Millisecond, MaxLength: 1200},
	}
}

func TestAppPersistsAcrossRestarts(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chat.AskRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(chat.AskResponse{Answer: "回答：" + req.Question})
	}))
	defer backend.Close()

	cfg := testConfig(backend.URL, filepath.Join(t.TempDir(), "chat.db"))

	first, err := New(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	require.True(t, first.Controller.Send("高血压能吃党参吗？"))
	require.Eventually(t, func() bool {
		return first.Controller.State() == chatsvc.StateIdle && len(first.Controller.Messages()) == 3
	}, 2*time.Second, time.Millisecond)
	sessionID := first.Controller.SessionID()
	require.NoError(t, first.Close())

	second, err := New(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	defer second.Close()

	history := second.Controller.History()
	require.Len(t, history, 1)
	assert.Equal(t, sessionID, history[0].ID)

	require.True(t, second.Controller.LoadSession(sessionID))
	messages := second.Controller.Messages()
	require.Len(t, messages, 3)
	assert.Equal(t, "回答：高血压能吃党参吗？", messages[2].Text)
}

func TestOpenStoreDrivers(t *testing.T) {
	kv, closeFn, err := OpenStore(config.StoreConfig{Driver: config.StoreDriverMemory})
	require.NoError(t, err)
	assert.NotNil(t, kv)
	assert.NoError(t, closeFn())

	_, _, err = OpenStore(config.StoreConfig{Driver: "postgres"})
	assert.Error(t, err)
}

func TestNewAskerModes(t *testing.T) {
	asker, err := NewAsker(context.Background(), testConfig("http://localhost:8000", ""), nil)
	require.NoError(t, err)
	assert.IsType(t, &ask.Client{}, asker)

	cfg := testConfig("", "")
	cfg.Ask.Mode = config.AskModeLLM
	_, err = NewAsker(context.Background(), cfg, nil)
	assert.Error(t, err, "llm mode without credentials")
}
