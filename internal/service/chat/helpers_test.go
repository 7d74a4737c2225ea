package chat_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zhouzirui/medrag-chat/internal/model/chat"
	chatsvc "github.com/zhouzirui/medrag-chat/internal/service/chat"
	"github.com/zhouzirui/medrag-chat/internal/service/typewriter"
	"github.com/zhouzirui/medrag-chat/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type reply struct {
	resp *chat.AskResponse
	err  error
}

// scriptedAsker blocks each Ask until the test supplies a reply.
type scriptedAsker struct {
	calls   chan string
	replies chan reply
}

func newScriptedAsker() *scriptedAsker {
	return &scriptedAsker{calls: make(chan string, 8), replies: make(chan reply, 8)}
}

func (a *scriptedAsker) Ask(ctx context.Context, question string) (*chat.AskResponse, error) {
	a.calls <- question
	select {
	case r := <-a.replies:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *scriptedAsker) waitCall(t *testing.T) string {
	t.Helper()
	select {
	case q := <-a.calls:
		return q
	case <-time.After(time.Second):
		t.Fatal("asker was not called")
		return ""
	}
}

func (a *scriptedAsker) answer(resp *chat.AskResponse, err error) {
	a.replies <- reply{resp: resp, err: err}
}

type harness struct {
	ctrl   *chatsvc.Controller
	store  *storage.SessionStore
	asker  *scriptedAsker
	logs   *observer.ObservedLogs
	events chan chatsvc.Event
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	interval time.Duration
	seed     func(store *storage.SessionStore)
}

func withInterval(d time.Duration) harnessOption {
	return func(c *harnessConfig) { c.interval = d }
}

func withSeed(fn func(store *storage.SessionStore)) harnessOption {
	return func(c *harnessConfig) { c.seed = fn }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	cfg := harnessConfig{interval: time.Millisecond}
	for _, opt := range opts {
		opt(&cfg)
	}

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	store := storage.NewSessionStore(storage.NewMemoryKV(), logger)
	if cfg.seed != nil {
		cfg.seed(store)
	}

	h := &harness{
		store:  store,
		asker:  newScriptedAsker(),
		logs:   logs,
		events: make(chan chatsvc.Event, 4096),
	}
	manager := chatsvc.NewManager(store, logger)
	renderer := typewriter.New(typewriter.WithInterval(cfg.interval))
	h.ctrl = chatsvc.NewController(manager, h.asker, renderer, chatsvc.Options{
		Logger: logger,
		Listener: func(ev chatsvc.Event) {
			select {
			case h.events <- ev:
			default:
			}
		},
	})
	t.Cleanup(h.ctrl.Close)
	return h
}

func (h *harness) waitState(t *testing.T, want chatsvc.State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.ctrl.State() == want }, 2*time.Second, time.Millisecond,
		"state never became %s", want)
}

func (h *harness) waitLog(t *testing.T, message string) {
	t.Helper()
	require.Eventually(t, func() bool { return h.logs.FilterMessage(message).Len() > 0 }, 2*time.Second, time.Millisecond,
		"log %q never written", message)
}

func stripIDs(messages []chat.Message) []chat.Message {
	out := make([]chat.Message, len(messages))
	for i, msg := range messages {
		msg.ID = ""
		out[i] = msg
	}
	return out
}
