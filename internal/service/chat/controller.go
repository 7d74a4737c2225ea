package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/medrag-chat/internal/model/chat"
	"github.com/zhouzirui/medrag-chat/internal/service/disclosure"
	"github.com/zhouzirui/medrag-chat/internal/service/typewriter"
)

const (
	WelcomeMessageID      = "welcome"
	DefaultWelcomeText    = "欢迎使用 Medical RAG 医疗健康咨询助手。请用自然语言描述你的不适或疑问，例如“高血压能吃党参吗？”、“长期胃痛该挂什么科？”。"
	DefaultErrorText      = "请求失败，请稍后再试。"
	DefaultRequestTimeout = 60 * time.Second

	placeholderPrefix = "loading-"
)

var errEmptyResponse = errors.New("asker returned no response")

// Options tunes a Controller. Zero values fall back to the defaults above.
type Options struct {
	WelcomeText    string
	ErrorText      string
	RequestTimeout time.Duration
	Logger         *zap.Logger
	Listener       Listener
	// NewID mints message ids.
	NewID func() string
}

func (o Options) withDefaults() Options {
	if o.WelcomeText == "" {
		o.WelcomeText = DefaultWelcomeText
	}
	if o.ErrorText == "" {
		o.ErrorText = DefaultErrorText
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}

// request tags an in-flight ask with the session and placeholder it targets.
type request struct {
	sessionID     string
	placeholderID string
	question      string
}

// typing is the current typewriter target. It stays set after completion so
// the reference toggle of the latest answer can tell "finished" from "running".
type typing struct {
	messageID string
	visible   string
	done      bool
}

// Controller drives one chat window: the active session, the single in-flight
// request and the single running reveal.
type Controller struct {
	manager  *Manager
	asker    Asker
	renderer *typewriter.Renderer
	logger   *zap.Logger
	opts     Options

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	session chat.Session
	state   State
	pending *request
	typing  *typing
	refs    disclosure.Set
	closed  bool
}

// NewController starts on a fresh session.
func NewController(manager *Manager, asker Asker, renderer *typewriter.Renderer, opts Options) *Controller {
	opts = opts.withDefaults()
	if renderer == nil {
		renderer = typewriter.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		manager:  manager,
		asker:    asker,
		renderer: renderer,
		logger:   opts.Logger.Named("chat"),
		opts:     opts,
		baseCtx:  ctx,
		cancel:   cancel,
	}

	c.mu.Lock()
	events := c.newSessionLocked()
	c.mu.Unlock()
	c.publish(events)

	return c
}

// Send submits text. It is a no-op returning false unless the controller is
// idle and text is non-blank.
func (c *Controller) Send(text string) bool {
	question := strings.TrimSpace(text)

	c.mu.Lock()
	if c.closed || c.state != StateIdle || question == "" {
		c.mu.Unlock()
		return false
	}

	user := chat.Message{ID: c.opts.NewID(), Role: chat.RoleUser, Text: question}
	placeholder := chat.Message{ID: placeholderPrefix + c.opts.NewID(), Role: chat.RoleAssistant, Loading: true}
	c.session.Messages = append(c.session.Messages, user, placeholder)
	c.session.Title = chat.TitleOf(c.session.Messages)
	c.state = StateSending

	req := &request{sessionID: c.session.ID, placeholderID: placeholder.ID, question: question}
	c.pending = req

	events := c.commitLocked()
	events = append(events, c.eventLocked(EventMessages), c.eventLocked(EventState))
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Debug("question sent", zap.String("session", req.sessionID), zap.String("placeholder", req.placeholderID))
	c.publish(events)

	go c.dispatch(req)
	return true
}

// NewSession abandons the current session for a fresh one.
func (c *Controller) NewSession() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	events := c.newSessionLocked()
	c.mu.Unlock()
	c.publish(events)
}

// LoadSession switches to a stored session. Returns false, changing nothing,
// when no messages are stored under id.
func (c *Controller) LoadSession(id string) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	events, ok := c.loadLocked(id)
	c.mu.Unlock()
	c.publish(events)
	return ok
}

// DeleteSession removes id from history and storage. Deleting the active
// session falls back to the most recent remaining one, or a fresh session.
func (c *Controller) DeleteSession(id string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	next, hasNext, err := c.manager.Delete(id)
	if err != nil {
		c.logger.Error("failed to delete session", zap.String("session", id), zap.Error(err))
	}
	events := []Event{c.eventLocked(EventHistory)}

	if id == c.session.ID {
		loaded := false
		if hasNext {
			var evs []Event
			evs, loaded = c.loadLocked(next)
			events = append(events, evs...)
		}
		if !loaded {
			events = append(events, c.newSessionLocked()...)
		}
	}
	c.mu.Unlock()
	c.publish(events)
}

// ToggleReferences expands or collapses the reference cases of messageID.
// ok is false when the toggle is not currently available for that message.
func (c *Controller) ToggleReferences(messageID string) (expanded bool, ok bool) {
	c.mu.Lock()
	idx := c.indexLocked(messageID)
	if idx < 0 || !c.referencesAvailableLocked(c.session.Messages[idx]) {
		c.mu.Unlock()
		return false, false
	}

	expanded, pin := c.refs.Toggle(messageID)
	ev := c.eventLocked(EventReferences)
	ev.MessageID = messageID
	ev.Expanded = expanded
	events := []Event{ev}
	if pin {
		scroll := c.eventLocked(EventScrollToBottom)
		scroll.MessageID = messageID
		events = append(events, scroll)
	}
	c.mu.Unlock()

	c.publish(events)
	return expanded, true
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// InputEnabled is true only while idle.
func (c *Controller) InputEnabled() bool {
	return c.State() == StateIdle
}

// SessionID returns the active session id.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.ID
}

// Messages returns a copy of the active thread.
func (c *Controller) Messages() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return chat.CloneMessages(c.session.Messages)
}

// History returns the history index.
func (c *Controller) History() []chat.HistoryEntry {
	return c.manager.History()
}

// Snapshot returns everything a shell needs to render the window.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	view := View{
		SessionID:    c.session.ID,
		Title:        c.session.Title,
		State:        c.state,
		InputEnabled: c.state == StateIdle,
		Sending:      c.state == StateSending,
		Messages:     make([]MessageView, 0, len(c.session.Messages)),
		History:      c.manager.History(),
	}

	for _, msg := range c.session.Messages {
		mv := MessageView{
			Message:             msg.Clone(),
			Visible:             msg.Text,
			ReferencesAvailable: c.referencesAvailableLocked(msg),
			ReferencesExpanded:  c.refs.Expanded(msg.ID),
		}
		if c.typing != nil && c.typing.messageID == msg.ID && !c.typing.done {
			mv.Visible = c.typing.visible
			mv.Animating = true
		}
		view.Messages = append(view.Messages, mv)
	}
	return view
}

// Close cancels the reveal and any in-flight request and waits for it to drain.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.abandonLocked()
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

func (c *Controller) dispatch(req *request) {
	defer c.wg.Done()

	ctx, cancel := context.WithTimeout(c.baseCtx, c.opts.RequestTimeout)
	defer cancel()

	resp, err := c.asker.Ask(ctx, req.question)
	if err == nil && resp == nil {
		err = errEmptyResponse
	}
	c.resolve(req, resp, err)
}

// resolve applies a finished request, provided its session is still active
// and its placeholder is still unresolved.
func (c *Controller) resolve(req *request, resp *chat.AskResponse, err error) {
	c.mu.Lock()
	idx := -1
	if !c.closed && c.pending == req && c.session.ID == req.sessionID {
		idx = c.indexLocked(req.placeholderID)
	}
	if idx < 0 || !c.session.Messages[idx].Loading {
		c.mu.Unlock()
		c.logger.Debug("discarding stale response",
			zap.String("session", req.sessionID),
			zap.String("placeholder", req.placeholderID),
			zap.NamedError("askError", err))
		return
	}
	c.pending = nil

	revealID := ""
	if err != nil {
		c.logger.Warn("ask failed", zap.String("session", req.sessionID), zap.Error(err))
		c.session.Messages[idx] = chat.Message{ID: c.opts.NewID(), Role: chat.RoleAssistant, Text: c.opts.ErrorText}
		c.typing = nil
		c.state = StateIdle
	} else {
		answer := chat.Message{
			ID:             c.opts.NewID(),
			Role:           chat.RoleAssistant,
			Text:           resp.Answer,
			ReferenceCases: resp.ReferenceCases(),
		}
		c.session.Messages[idx] = answer
		c.state = StateTyping
		c.typing = &typing{messageID: answer.ID}
		revealID = answer.ID
	}

	events := c.commitLocked()
	events = append(events, c.eventLocked(EventMessages), c.eventLocked(EventState))
	c.mu.Unlock()

	// The clock starts only after the answer has been announced, so frames
	// never precede the messages event that introduces them.
	c.publish(events)
	if revealID != "" {
		c.startReveal(revealID)
	}
}

// startReveal hands messageID to the renderer unless the session moved on
// while the resolve events were being published.
func (c *Controller) startReveal(messageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.typing == nil || c.typing.messageID != messageID || c.typing.done {
		return
	}
	idx := c.indexLocked(messageID)
	if idx < 0 {
		return
	}
	c.typing.visible = c.renderer.Render(typewriter.Target{
		MessageID: messageID,
		Text:      c.session.Messages[idx].Text,
		Enabled:   true,
	}, revealSink{c: c})
}

func (c *Controller) onFrame(messageID, visible string) {
	c.mu.Lock()
	if c.typing == nil || c.typing.messageID != messageID || c.typing.done {
		c.mu.Unlock()
		return
	}
	c.typing.visible = visible
	ev := c.eventLocked(EventFrame)
	ev.MessageID = messageID
	ev.Text = visible
	c.mu.Unlock()

	c.publish([]Event{ev})
}

func (c *Controller) onTypingDone(messageID string) {
	c.mu.Lock()
	if c.typing == nil || c.typing.messageID != messageID || c.typing.done {
		c.mu.Unlock()
		return
	}
	c.typing.done = true
	if idx := c.indexLocked(messageID); idx >= 0 {
		c.typing.visible = c.session.Messages[idx].Text
	}
	if c.state == StateTyping {
		c.state = StateIdle
	}
	events := []Event{c.eventLocked(EventState)}
	c.mu.Unlock()

	c.publish(events)
}

func (c *Controller) newSessionLocked() []Event {
	c.abandonLocked()
	c.session = c.manager.Create(chat.Message{
		ID:   WelcomeMessageID,
		Role: chat.RoleAssistant,
		Text: c.opts.WelcomeText,
	})
	c.state = StateIdle
	return []Event{c.eventLocked(EventSession), c.eventLocked(EventMessages), c.eventLocked(EventState)}
}

func (c *Controller) loadLocked(id string) ([]Event, bool) {
	session, err := c.manager.Open(id)
	if err != nil {
		c.logger.Debug("session not loaded", zap.String("session", id), zap.Error(err))
		return nil, false
	}
	c.abandonLocked()
	c.session = session
	c.state = StateIdle

	events := []Event{c.eventLocked(EventSession), c.eventLocked(EventMessages), c.eventLocked(EventState)}
	touched, err := c.manager.Touch(session)
	if err != nil {
		c.logger.Error("failed to reorder history", zap.String("session", id), zap.Error(err))
	}
	if touched {
		events = append(events, c.eventLocked(EventHistory))
	}
	return events, true
}

// abandonLocked drops the reveal and request bound to the current session.
func (c *Controller) abandonLocked() {
	c.renderer.Cancel()
	c.typing = nil
	c.pending = nil
	c.refs.Retain(nil)
}

func (c *Controller) commitLocked() []Event {
	persisted, err := c.manager.Commit(c.session)
	if err != nil {
		c.logger.Error("failed to persist session", zap.String("session", c.session.ID), zap.Error(err))
	}
	if !persisted {
		return nil
	}
	return []Event{c.eventLocked(EventHistory)}
}

func (c *Controller) referencesAvailableLocked(msg chat.Message) bool {
	isTarget := c.typing != nil && c.typing.messageID == msg.ID
	done := isTarget && c.typing.done
	return disclosure.Eligible(msg, isTarget, done)
}

func (c *Controller) indexLocked(messageID string) int {
	for i, msg := range c.session.Messages {
		if msg.ID == messageID {
			return i
		}
	}
	return -1
}

func (c *Controller) eventLocked(kind EventKind) Event {
	return Event{Kind: kind, SessionID: c.session.ID, State: c.state}
}

func (c *Controller) publish(events []Event) {
	if c.opts.Listener == nil {
		return
	}
	for _, ev := range events {
		c.opts.Listener(ev)
	}
}

// revealSink routes renderer callbacks back into the controller.
type revealSink struct {
	c *Controller
}

func (s revealSink) Frame(messageID, visible string) { s.c.onFrame(messageID, visible) }
func (s revealSink) Done(messageID string)           { s.c.onTypingDone(messageID) }
