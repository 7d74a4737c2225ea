package stream

import (
	"sync"

	"go.uber.org/zap"

	chatsvc "github.com/zhouzirui/medrag-chat/internal/service/chat"
)

const defaultBuffer = 256

// Broker fans controller events out to every connected feed. Publish never
// blocks: a subscriber whose buffer is full misses the event and is expected
// to resynchronise from a snapshot.
type Broker struct {
	mu     sync.RWMutex
	subs   map[uint64]chan chatsvc.Event
	nextID uint64
	closed bool
	buffer int
	logger *zap.Logger
}

// NewBroker creates a broker. buffer <= 0 selects the default.
func NewBroker(buffer int, logger *zap.Logger) *Broker {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		subs:   make(map[uint64]chan chatsvc.Event),
		buffer: buffer,
		logger: logger.Named("broker"),
	}
}

// Publish is a chatsvc.Listener.
func (b *Broker) Publish(ev chatsvc.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("subscriber lagging, event dropped", zap.Uint64("subscriber", id), zap.String("kind", string(ev.Kind)))
		}
	}
}

// Subscribe registers a feed. The returned cancel func closes the channel
// and is safe to call more than once.
// After Close it returns an already closed channel.
func (b *Broker) Subscribe() (<-chan chatsvc.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan chatsvc.Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			// Close may already have closed it.
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(ch)
			}
		})
	}
}

// Close ends every feed by closing its channel. Connected streams return,
// so an http.Server shutdown does not wait on them.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
	b.logger.Debug("broker closed")
}

// Subscribers reports the number of live feeds.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
