package ui

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/medrag-chat/internal/model/chat"
	chatsvc "github.com/zhouzirui/medrag-chat/internal/service/chat"
)

type fakeController struct {
	mu      sync.Mutex
	view    chatsvc.View
	sent    []string
	loaded  []string
	deleted []string
	toggled []string
	fresh   int
	busy    bool
}

func newFakeController() *fakeController {
	return &fakeController{view: chatsvc.View{
		SessionID:    "s1",
		State:        chatsvc.StateIdle,
		InputEnabled: true,
		Messages: []chatsvc.MessageView{{
			Message: chat.Message{ID: chatsvc.WelcomeMessageID, Role: chat.RoleAssistant, Text: "欢迎"},
			Visible: "欢迎",
		}},
		History: []chat.HistoryEntry{{ID: "s1", Title: "头痛"}, {ID: "s0", Title: "胃痛"}},
	}}
}

func (f *fakeController) Snapshot() chatsvc.View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view
}

func (f *fakeController) Send(text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return false
	}
	f.sent = append(f.sent, text)
	return true
}

func (f *fakeController) NewSession() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fresh++
}

func (f *fakeController) LoadSession(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded = append(f.loaded, id)
	return true
}

func (f *fakeController) DeleteSession(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
}

func (f *fakeController) ToggleReferences(messageID string) (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggled = append(f.toggled, messageID)
	return true, true
}

func newTestModel(ctrl Controller) Model {
	m := New(ctrl, nil, WithMarkdownStyle("notty"))
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return updated.(Model)
}

func press(m Model, msg tea.KeyMsg) Model {
	updated, _ := m.Update(msg)
	return updated.(Model)
}

func typeText(m Model, text string) Model {
	return press(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
}

func TestEnterSendsAndClearsInput(t *testing.T) {
	ctrl := newFakeController()
	m := newTestModel(ctrl)

	m = typeText(m, "头痛怎么办")
	m = press(m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, []string{"头痛怎么办"}, ctrl.sent)
	assert.Empty(t, m.input.Value())
}

func TestEnterIgnoresBlankInput(t *testing.T) {
	ctrl := newFakeController()
	m := newTestModel(ctrl)

	m = typeText(m, "   ")
	press(m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Empty(t, ctrl.sent)
}

func TestRejectedSendKeepsInput(t *testing.T) {
	ctrl := newFakeController()
	m := newTestModel(ctrl)

	m = typeText(m, "第二个问题")
	ctrl.busy = true
	m = press(m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, "第二个问题", m.input.Value())
	assert.Equal(t, "请等待当前回答完成", m.status)
}

func TestTypingIsBlockedWhileBusy(t *testing.T) {
	ctrl := newFakeController()
	ctrl.view.InputEnabled = false
	ctrl.view.State = chatsvc.StateSending
	m := newTestModel(ctrl)

	m = typeText(m, "abc")
	assert.Empty(t, m.input.Value())
}

func TestCtrlNStartsSession(t *testing.T) {
	ctrl := newFakeController()
	m := newTestModel(ctrl)

	m = press(m, tea.KeyMsg{Type: tea.KeyCtrlN})

	assert.Equal(t, 1, ctrl.fresh)
	assert.Equal(t, "已开始新的会话", m.status)
}

func TestHistoryNavigation(t *testing.T) {
	ctrl := newFakeController()
	m := newTestModel(ctrl)

	m = press(m, tea.KeyMsg{Type: tea.KeyTab})
	require.True(t, m.focusHistory)
	require.True(t, m.showHistory)

	m = press(m, tea.KeyMsg{Type: tea.KeyDown})
	m = press(m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, m.selected, "selection stops at the last entry")

	m = press(m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, []string{"s0"}, ctrl.loaded)
	assert.False(t, m.focusHistory)

	m = press(m, tea.KeyMsg{Type: tea.KeyTab})
	m = press(m, tea.KeyMsg{Type: tea.KeyUp})
	m = press(m, tea.KeyMsg{Type: tea.KeyCtrlD})
	assert.Equal(t, []string{"s1"}, ctrl.deleted)

	m = press(m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, m.focusHistory)
	assert.True(t, m.showHistory)

	m = press(m, tea.KeyMsg{Type: tea.KeyCtrlH})
	assert.False(t, m.showHistory)
}

func TestCtrlRTogglesLatestEligibleAnswer(t *testing.T) {
	ctrl := newFakeController()
	cases := []chat.ReferenceCase{{ID: 1, Question: "党参", Answer: "适量"}}
	ctrl.view.Messages = append(ctrl.view.Messages,
		chatsvc.MessageView{Message: chat.Message{ID: "a1", Role: chat.RoleAssistant, Text: "旧", ReferenceCases: cases}, Visible: "旧", ReferencesAvailable: true},
		chatsvc.MessageView{Message: chat.Message{ID: "u2", Role: chat.RoleUser, Text: "问"}, Visible: "问"},
		chatsvc.MessageView{Message: chat.Message{ID: "a2", Role: chat.RoleAssistant, Text: "新", ReferenceCases: cases}, Visible: "新", ReferencesAvailable: true},
	)
	m := newTestModel(ctrl)

	press(m, tea.KeyMsg{Type: tea.KeyCtrlR})
	assert.Equal(t, []string{"a2"}, ctrl.toggled)
}

func TestCtrlRWithoutReferences(t *testing.T) {
	ctrl := newFakeController()
	m := newTestModel(ctrl)

	m = press(m, tea.KeyMsg{Type: tea.KeyCtrlR})
	assert.Empty(t, ctrl.toggled)
	assert.Equal(t, "暂无可展开的参考病例", m.status)
}

func TestTranscriptRendering(t *testing.T) {
	ctrl := newFakeController()
	ctrl.view.Messages = append(ctrl.view.Messages,
		chatsvc.MessageView{Message: chat.Message{ID: "u1", Role: chat.RoleUser, Text: "胸闷"}, Visible: "胸闷"},
		chatsvc.MessageView{Message: chat.Message{ID: "a1", Role: chat.RoleAssistant, Text: "建议就医",
			ReferenceCases: []chat.ReferenceCase{{ID: 1, Question: "胸闷气短", Answer: "心电图", Department: "心内科"}}},
			Visible: "建议", Animating: true},
	)
	m := newTestModel(ctrl)

	transcript := m.renderTranscript()
	assert.Contains(t, transcript, "胸闷")
	assert.Contains(t, transcript, "建议▌")
	assert.NotContains(t, transcript, "参考病例", "cases stay hidden while animating")

	ctrl.view.Messages[2].Animating = false
	ctrl.view.Messages[2].Visible = "建议就医"
	ctrl.view.Messages[2].ReferencesAvailable = true
	ctrl.view.Messages[2].ReferencesExpanded = true
	updated, _ := m.Update(changedMsg{})
	m = updated.(Model)

	transcript = m.renderTranscript()
	assert.Contains(t, transcript, "建议就医")
	assert.Contains(t, transcript, "心内科")
	assert.Contains(t, transcript, "#1")
}

func TestLoadingPlaceholderShowsSpinnerText(t *testing.T) {
	ctrl := newFakeController()
	ctrl.view.State = chatsvc.StateSending
	ctrl.view.Sending = true
	ctrl.view.InputEnabled = false
	ctrl.view.Messages = append(ctrl.view.Messages,
		chatsvc.MessageView{Message: chat.Message{ID: "loading-1", Role: chat.RoleAssistant, Loading: true}},
	)
	m := newTestModel(ctrl)

	assert.Contains(t, m.renderTranscript(), "正在生成回答")
	assert.Contains(t, m.View(), "模型生成中")
}

func stubClipboard(t *testing.T, err error) *[]string {
	t.Helper()
	var copied []string
	original := clipboardWriteAll
	clipboardWriteAll = func(text string) error {
		copied = append(copied, text)
		return err
	}
	t.Cleanup(func() { clipboardWriteAll = original })
	return &copied
}

func TestCtrlYCopiesLatestAnswer(t *testing.T) {
	copied := stubClipboard(t, nil)
	ctrl := newFakeController()
	ctrl.view.Messages = append(ctrl.view.Messages,
		chatsvc.MessageView{Message: chat.Message{ID: "a1", Role: chat.RoleAssistant, Text: "**多喝水**"}, Visible: "**多喝水**"},
		chatsvc.MessageView{Message: chat.Message{ID: "u2", Role: chat.RoleUser, Text: "还有呢"}, Visible: "还有呢"},
	)
	m := newTestModel(ctrl)

	m = press(m, tea.KeyMsg{Type: tea.KeyCtrlY})
	assert.Equal(t, []string{"**多喝水**"}, *copied)
	assert.Equal(t, "已复制最新回答", m.status)
}

func TestCtrlYFallsBackToStatusLine(t *testing.T) {
	copied := stubClipboard(t, errors.New("no clipboard utility"))
	ctrl := newFakeController()
	ctrl.view.Messages = append(ctrl.view.Messages,
		chatsvc.MessageView{Message: chat.Message{ID: "a1", Role: chat.RoleAssistant, Text: "多喝水"}, Visible: "多喝水"},
	)
	m := newTestModel(ctrl)

	m = press(m, tea.KeyMsg{Type: tea.KeyCtrlY})
	assert.Len(t, *copied, 1)
	assert.Equal(t, "复制失败，回答原文：多喝水", m.status)
}

func TestCtrlYWithoutAnswer(t *testing.T) {
	copied := stubClipboard(t, nil)
	m := newTestModel(newFakeController())

	m = press(m, tea.KeyMsg{Type: tea.KeyCtrlY})
	assert.Empty(t, *copied, "the welcome message is not an answer")
	assert.Equal(t, "暂无回答", m.status)
}

func TestNotifierCoalesces(t *testing.T) {
	n := NewNotifier()
	for i := 0; i < 10; i++ {
		n.Listen(chatsvc.Event{Kind: chatsvc.EventFrame})
	}

	done := make(chan tea.Msg, 1)
	go func() { done <- n.Wait()() }()
	select {
	case msg := <-done:
		assert.IsType(t, changedMsg{}, msg)
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}
	assert.Len(t, n.ch, 0)
}

func TestViewShowsHeaderAndHelp(t *testing.T) {
	m := newTestModel(newFakeController())
	out := m.View()
	assert.Contains(t, out, "Medical RAG")
	assert.True(t, strings.Contains(out, "Ctrl+N"))
}
