// Package typewriter reveals a completed answer one character at a time.
package typewriter

import (
	"sync"
	"time"
	"unicode/utf8"
)

const (
	DefaultInterval  = 15 * time.Millisecond
	DefaultMaxLength = 1200
)

// Target describes the message a renderer slot is asked to show.
type Target struct {
	MessageID string
	Text      string
	// Enabled is true only for the current animation target.
	Enabled bool
	Loading bool
}

// Sink receives reveal progress. Calls come from the renderer's own goroutine,
// never from inside Render or Cancel. Done may still arrive for a run that
// completed just before a Cancel, so a sink must check the message id against
// its own current target before acting on it.
type Sink interface {
	Frame(messageID, visible string)
	Done(messageID string)
}

// Option customises a Renderer.
type Option func(*Renderer)

// WithInterval sets the tick interval.
func WithInterval(d time.Duration) Option {
	return func(r *Renderer) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithMaxLength sets the length above which animation is skipped.
func WithMaxLength(n int) Option {
	return func(r *Renderer) {
		if n > 0 {
			r.maxLength = n
		}
	}
}

// WithTicker replaces the clock, mainly for tests.
func WithTicker(fn TickerFunc) Option {
	return func(r *Renderer) {
		if fn != nil {
			r.newTicker = fn
		}
	}
}

// Renderer owns a single reveal slot: at most one clock runs at a time and a
// run cancelled before its final tick never reports completion.
type Renderer struct {
	interval  time.Duration
	maxLength int
	newTicker TickerFunc

	mu      sync.Mutex
	current *run
	// finished is the last run that completed, so re-rendering it does not replay.
	finished *run
}

type run struct {
	messageID string
	text      string
	visible   string
	stop      chan struct{}
	stopOnce  sync.Once
}

func (r *run) cancel() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// New creates a renderer with the default 15ms/1200 settings.
func New(opts ...Option) *Renderer {
	r := &Renderer{
		interval:  DefaultInterval,
		maxLength: DefaultMaxLength,
		newTicker: NewRealTicker,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render applies target to the slot and returns the text to display now.
func (r *Renderer) Render(t Target, sink Sink) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !t.Enabled || t.Loading {
		if r.current != nil && r.current.messageID == t.MessageID {
			r.cancelLocked()
		}
		return t.Text
	}

	if cur := r.current; cur != nil && cur.messageID == t.MessageID && cur.text == t.Text {
		return cur.visible
	}
	if fin := r.finished; fin != nil && fin.messageID == t.MessageID && fin.text == t.Text {
		return fin.text
	}

	r.cancelLocked()

	next := &run{
		messageID: t.MessageID,
		text:      t.Text,
		stop:      make(chan struct{}),
	}
	r.current = next

	length := utf8.RuneCountInString(t.Text)
	if length == 0 || length > r.maxLength {
		next.visible = t.Text
		go r.complete(next, sink)
		return t.Text
	}

	ticker := r.newTicker(r.interval)
	go r.reveal(next, ticker, []rune(t.Text), sink)
	return ""
}

// Cancel stops the running clock, if any. A run that had not reached its last
// tick will not report; one that already finished may still deliver Done.
func (r *Renderer) Cancel() {
	r.mu.Lock()
	r.cancelLocked()
	r.mu.Unlock()
}

// Active returns the message currently being revealed.
func (r *Renderer) Active() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return "", false
	}
	return r.current.messageID, true
}

func (r *Renderer) cancelLocked() {
	r.finished = nil
	if r.current == nil {
		return
	}
	r.current.cancel()
	r.current = nil
}

func (r *Renderer) complete(cur *run, sink Sink) {
	if !r.finish(cur) {
		return
	}
	sink.Done(cur.messageID)
}

func (r *Renderer) reveal(cur *run, ticker Ticker, runes []rune, sink Sink) {
	defer ticker.Stop()

	shown := 0
	for {
		select {
		case <-cur.stop:
			return
		case <-ticker.C():
		}

		shown++
		visible := string(runes[:shown])
		if !r.advance(cur, visible) {
			return
		}
		sink.Frame(cur.messageID, visible)

		if shown >= len(runes) {
			if r.finish(cur) {
				sink.Done(cur.messageID)
			}
			return
		}
	}
}

// advance records progress if cur is still the active run.
func (r *Renderer) advance(cur *run, visible string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != cur {
		return false
	}
	cur.visible = visible
	return true
}

// finish releases the slot if cur still owns it.
func (r *Renderer) finish(cur *run) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != cur {
		return false
	}
	r.current = nil
	r.finished = cur
	cur.cancel()
	return true
}
