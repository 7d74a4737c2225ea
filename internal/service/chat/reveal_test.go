package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/medrag-chat/internal/model/chat"
	"github.com/zhouzirui/medrag-chat/internal/service/typewriter"
	"github.com/zhouzirui/medrag-chat/internal/storage"
)

func newRevealController(t *testing.T) *Controller {
	t.Helper()
	store := storage.NewSessionStore(storage.NewMemoryKV(), nil)
	asker := AskerFunc(func(context.Context, string) (*chat.AskResponse, error) {
		return &chat.AskResponse{Answer: "abc"}, nil
	})
	ctrl := NewController(NewManager(store, nil), asker, typewriter.New(typewriter.WithInterval(time.Hour)), Options{})
	t.Cleanup(ctrl.Close)
	return ctrl
}

func typingTarget(c *Controller) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.typing == nil {
		return ""
	}
	return c.typing.messageID
}

func TestLateRevealCallbacksForAbandonedAnswerAreIgnored(t *testing.T) {
	ctrl := newRevealController(t)

	require.True(t, ctrl.Send("question"))
	require.Eventually(t, func() bool { return ctrl.State() == StateTyping }, 2*time.Second, time.Millisecond)
	answerID := typingTarget(ctrl)
	require.NotEmpty(t, answerID)

	ctrl.NewSession()
	sink := revealSink{c: ctrl}
	sink.Frame(answerID, "a")
	sink.Done(answerID)

	assert.Equal(t, StateIdle, ctrl.State())
	view := ctrl.Snapshot()
	require.Len(t, view.Messages, 1)
	assert.Equal(t, WelcomeMessageID, view.Messages[0].ID)
	assert.False(t, view.Messages[0].Animating)
}

func TestRepeatedDoneIsIgnored(t *testing.T) {
	ctrl := newRevealController(t)

	require.True(t, ctrl.Send("first"))
	require.Eventually(t, func() bool { return ctrl.State() == StateTyping }, 2*time.Second, time.Millisecond)
	answerID := typingTarget(ctrl)

	sink := revealSink{c: ctrl}
	sink.Done(answerID)
	require.Equal(t, StateIdle, ctrl.State())

	require.True(t, ctrl.Send("second"))
	require.Eventually(t, func() bool { return ctrl.State() == StateTyping }, 2*time.Second, time.Millisecond)

	sink.Done(answerID)
	assert.Equal(t, StateTyping, ctrl.State(), "a stale Done must not end the current reveal")
}
