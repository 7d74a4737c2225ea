// Package ui is the terminal chat window. It only draws controller
// snapshots and forwards key presses; all chat semantics live in the
// controller.
package ui

import (
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/zhouzirui/medrag-chat/internal/model/chat"
	chatsvc "github.com/zhouzirui/medrag-chat/internal/service/chat"
)

const (
	historyPanelWidth = 30
	headerHeight      = 2
	inputHeight       = 3
	footerHeight      = 2
	maxStatusRunes    = 200
)

// clipboardWriteAll is swapped out in tests.
var clipboardWriteAll = clipboard.WriteAll

// Controller is what the window drives.
type Controller interface {
	Snapshot() chatsvc.View
	Send(text string) bool
	NewSession()
	LoadSession(id string) bool
	DeleteSession(id string)
	ToggleReferences(messageID string) (bool, bool)
}

// Option customises the model.
type Option func(*Model)

// WithMarkdownStyle selects a glamour standard style ("dark", "light",
// "notty"). The default detects the terminal background.
func WithMarkdownStyle(style string) Option {
	return func(m *Model) { m.markdownStyle = style }
}

type renderedMarkdown struct {
	text  string
	width int
	out   string
}

// Model is the bubbletea model of the chat window.
type Model struct {
	ctrl     Controller
	notifier *Notifier
	styles   Styles

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	markdownStyle string
	markdown      *glamour.TermRenderer
	rendered      map[string]renderedMarkdown

	view         chatsvc.View
	showHistory  bool
	focusHistory bool
	selected     int
	status       string

	width  int
	height int
	ready  bool
}

// New creates the window. notifier may be nil when nothing pushes changes.
func New(ctrl Controller, notifier *Notifier, opts ...Option) Model {
	styles := DefaultStyles()

	ti := textinput.New()
	ti.Placeholder = "请输入你的问题，Enter 发送"
	ti.Prompt = "│ "
	ti.CharLimit = 2000
	ti.Width = 80
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Busy

	m := Model{
		ctrl:     ctrl,
		notifier: notifier,
		styles:   styles,
		input:    ti,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		rendered: make(map[string]renderedMarkdown),
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.markdown = newMarkdownRenderer(m.markdownStyle, 76)
	m = m.refresh(true)
	return m
}

func newMarkdownRenderer(style string, width int) *glamour.TermRenderer {
	if width < 20 {
		width = 20
	}
	styleOpt := glamour.WithAutoStyle()
	if style != "" {
		styleOpt = glamour.WithStandardStyle(style)
	}
	renderer, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width))
	if err != nil {
		return nil
	}
	return renderer
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.spinner.Tick}
	if m.notifier != nil {
		cmds = append(cmds, m.notifier.Wait())
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.focusHistory {
			return m.updateHistoryKeys(msg)
		}
		return m.updateInputKeys(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m = m.resize()
		return m.refresh(true), nil

	case changedMsg:
		m = m.refresh(false)
		if m.notifier != nil {
			return m, m.notifier.Wait()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.view.Sending {
			m = m.refresh(false)
		}
		return m, cmd

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) updateInputKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		return m.submit(), nil

	case tea.KeyCtrlN:
		m.ctrl.NewSession()
		m.status = "已开始新的会话"
		return m.refresh(true), nil

	case tea.KeyCtrlH:
		m.showHistory = !m.showHistory
		m = m.resize()
		return m.refresh(false), nil

	case tea.KeyTab:
		m.showHistory = true
		m.focusHistory = true
		m.input.Blur()
		m = m.resize()
		return m.refresh(false), nil

	case tea.KeyCtrlR:
		return m.toggleLatestReferences(), nil

	case tea.KeyCtrlY:
		return m.copyLatestAnswer(), nil

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if !m.view.InputEnabled {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateHistoryKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	history := m.view.History

	switch msg.Type {
	case tea.KeyEsc, tea.KeyTab:
		m.focusHistory = false
		m.input.Focus()
		return m.refresh(false), nil

	case tea.KeyCtrlH:
		m.showHistory = false
		m.focusHistory = false
		m.input.Focus()
		m = m.resize()
		return m.refresh(false), nil

	case tea.KeyUp:
		if m.selected > 0 {
			m.selected--
		}
		return m, nil

	case tea.KeyDown:
		if m.selected < len(history)-1 {
			m.selected++
		}
		return m, nil

	case tea.KeyEnter:
		if m.selected >= len(history) {
			return m, nil
		}
		entry := history[m.selected]
		if m.ctrl.LoadSession(entry.ID) {
			m.status = "已打开：" + entry.Title
			m.focusHistory = false
			m.input.Focus()
		} else {
			m.status = "该会话没有保存的消息"
		}
		return m.refresh(true), nil

	case tea.KeyCtrlD:
		if m.selected >= len(history) {
			return m, nil
		}
		entry := history[m.selected]
		m.ctrl.DeleteSession(entry.ID)
		m.status = "已删除：" + entry.Title
		return m.refresh(true), nil
	}

	return m, nil
}

func (m Model) submit() Model {
	text := m.input.Value()
	if strings.TrimSpace(text) == "" {
		return m
	}
	if !m.ctrl.Send(text) {
		m.status = "请等待当前回答完成"
		return m
	}
	m.input.Reset()
	m.status = ""
	return m.refresh(true)
}

// toggleLatestReferences acts on the newest answer whose cases may be shown.
func (m Model) toggleLatestReferences() Model {
	for i := len(m.view.Messages) - 1; i >= 0; i-- {
		mv := m.view.Messages[i]
		if !mv.ReferencesAvailable {
			continue
		}
		expanded, ok := m.ctrl.ToggleReferences(mv.ID)
		if !ok {
			break
		}
		return m.refresh(expanded)
	}
	m.status = "暂无可展开的参考病例"
	return m
}

// copyLatestAnswer puts the full text of the newest answer on the system
// clipboard. Without a clipboard the text is shown in the status line instead.
func (m Model) copyLatestAnswer() Model {
	text, ok := m.latestAnswer()
	if !ok {
		m.status = "暂无回答"
		return m
	}
	if err := clipboardWriteAll(text); err != nil {
		m.status = "复制失败，回答原文：" + truncate(text, maxStatusRunes)
		return m
	}
	m.status = "已复制最新回答"
	return m
}

func (m Model) latestAnswer() (string, bool) {
	for i := len(m.view.Messages) - 1; i >= 0; i-- {
		mv := m.view.Messages[i]
		if mv.Role == chat.RoleAssistant && !mv.Loading && mv.ID != chatsvc.WelcomeMessageID {
			return mv.Text, true
		}
	}
	return "", false
}

// refresh re-reads the controller and redraws the transcript. The viewport
// follows new content only when it was already at the bottom or pinned.
func (m Model) refresh(pinBottom bool) Model {
	atBottom := m.viewport.AtBottom()
	m.view = m.ctrl.Snapshot()

	if m.selected >= len(m.view.History) {
		m.selected = len(m.view.History) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}

	if m.view.InputEnabled {
		m.input.Placeholder = "请输入你的问题，Enter 发送"
	} else {
		m.input.Placeholder = "正在等待回答..."
	}

	m.viewport.SetContent(m.renderTranscript())
	if pinBottom || atBottom {
		m.viewport.GotoBottom()
	}
	return m
}

func (m Model) resize() Model {
	if !m.ready {
		return m
	}
	chatWidth := m.width - 2
	if m.showHistory {
		chatWidth -= historyPanelWidth + 2
	}
	if chatWidth < 20 {
		chatWidth = 20
	}
	chatHeight := m.height - headerHeight - inputHeight - footerHeight
	if chatHeight < 3 {
		chatHeight = 3
	}

	m.viewport.Width = chatWidth
	m.viewport.Height = chatHeight
	m.input.Width = chatWidth - 4
	m.markdown = newMarkdownRenderer(m.markdownStyle, chatWidth-4)
	m.rendered = make(map[string]renderedMarkdown)
	return m
}

func (m Model) renderTranscript() string {
	var sb strings.Builder
	wrap := lipgloss.NewStyle().Width(m.viewport.Width)

	for _, mv := range m.view.Messages {
		if mv.Role == chat.RoleUser {
			sb.WriteString(m.styles.User.Render("你") + "\n")
			sb.WriteString(wrap.Render(mv.Text))
			sb.WriteString("\n")
			continue
		}

		sb.WriteString(m.styles.Assistant.Render("助手") + "\n")
		switch {
		case mv.Loading:
			sb.WriteString(m.spinner.View() + m.styles.Muted.Render(" 正在生成回答..."))
		case mv.Animating:
			sb.WriteString(wrap.Render(mv.Visible + "▌"))
		default:
			sb.WriteString(m.renderMarkdown(mv.ID, mv.Text))
		}
		sb.WriteString("\n")

		if mv.ReferencesAvailable {
			sb.WriteString(m.renderReferences(mv))
		}
	}
	return sb.String()
}

func (m Model) renderReferences(mv chatsvc.MessageView) string {
	if !mv.ReferencesExpanded {
		return m.styles.Muted.Render(fmt.Sprintf("参考病例 %d 条 · Ctrl+R 展开", len(mv.ReferenceCases))) + "\n"
	}

	var sb strings.Builder
	sb.WriteString(m.styles.Muted.Render("参考病例 · Ctrl+R 收起") + "\n")
	for _, rc := range mv.ReferenceCases {
		var item strings.Builder
		fmt.Fprintf(&item, "#%d 问：%s\n答：%s", rc.ID, rc.Question, rc.Answer)
		if rc.Department != "" {
			fmt.Fprintf(&item, "\n科室：%s", rc.Department)
		}
		sb.WriteString(m.styles.Reference.Width(m.viewport.Width-2).Render(item.String()))
		sb.WriteString("\n")
	}
	return sb.String()
}

// renderMarkdown falls back to plain text when glamour fails or panics.
func (m Model) renderMarkdown(id, text string) (out string) {
	if cached, ok := m.rendered[id]; ok && cached.text == text && cached.width == m.viewport.Width {
		return cached.out
	}

	defer func() {
		if r := recover(); r != nil {
			out = text
		}
	}()

	out = text
	if m.markdown != nil && text != "" {
		if rendered, err := m.markdown.Render(text); err == nil {
			out = strings.Trim(rendered, "\n")
		}
	}
	m.rendered[id] = renderedMarkdown{text: text, width: m.viewport.Width, out: out}
	return out
}

func (m Model) View() string {
	header := m.renderHeader()
	chatView := m.viewport.View()
	if m.showHistory {
		chatView = lipgloss.JoinHorizontal(lipgloss.Top, m.renderHistoryPanel(), " ", chatView)
	}
	inputArea := m.styles.Input.Render(m.input.View())

	return lipgloss.JoinVertical(lipgloss.Left, header, chatView, inputArea, m.renderFooter())
}

func (m Model) renderHeader() string {
	title := m.styles.Header.Render(" Medical RAG 医疗健康咨询 ")

	var status string
	switch m.view.State {
	case chatsvc.StateSending:
		status = m.styles.Busy.Render(m.spinner.View() + " 模型生成中")
	case chatsvc.StateTyping:
		status = m.styles.Busy.Render("● 输出中")
	default:
		status = m.styles.Ready.Render("● 就绪")
	}

	sessionTitle := m.view.Title
	if sessionTitle == "" {
		sessionTitle = "新的会话"
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, title, "  ", status, "  ", m.styles.Title.Render(sessionTitle)) + "\n"
}

func (m Model) renderHistoryPanel() string {
	var sb strings.Builder
	sb.WriteString(m.styles.Muted.Render("历史会话") + "\n")
	if len(m.view.History) == 0 {
		sb.WriteString(m.styles.Muted.Render("暂无记录"))
	}
	for i, entry := range m.view.History {
		line := truncate(entry.Title, historyPanelWidth-6)
		if line == "" {
			line = "(无标题)"
		}
		switch {
		case m.focusHistory && i == m.selected:
			line = m.styles.Selected.Render("› " + line)
		case entry.ID == m.view.SessionID:
			line = m.styles.Ready.Render("• " + line)
		default:
			line = "  " + line
		}
		sb.WriteString(line + "\n")
	}

	style := m.styles.Panel
	if m.focusHistory {
		style = m.styles.PanelFocus
	}
	return style.Width(historyPanelWidth).Height(m.viewport.Height - 2).Render(sb.String())
}

func (m Model) renderFooter() string {
	help := "Enter 发送 • Ctrl+N 新会话 • Ctrl+H 历史 • Tab 选择历史 • Ctrl+R 参考病例 • Ctrl+Y 复制回答 • Ctrl+C 退出"
	if m.focusHistory {
		help = "↑/↓ 选择 • Enter 打开 • Ctrl+D 删除 • Esc 返回输入"
	}
	footer := m.styles.Muted.Render(help)
	if m.status != "" {
		footer = m.styles.Title.Render(m.status) + "\n" + footer
	}
	return footer
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
