package bus

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/loykin/gestures/internal/metrics"
)

// Wildcard subscribers receive every published message.
const Wildcard = "*"

// Message is one publication on the bus.
type Message struct {
	Topic   string
	Payload any
}

// Handler receives messages. A returned error is logged and does not stop
// delivery to other handlers.
type Handler func(Message) error

// Bus is the publish/subscribe port between the engine and its producers
// and listeners.
type Bus interface {
	Publish(topic string, payload any)
	Subscribe(topic string, h Handler) (unsubscribe func())
}

type subscription struct {
	id uint64
	h  Handler
}

// Local is a synchronous in-process Bus. Publish returns after every
// handler ran. Handlers may publish or subscribe re-entrantly.
type Local struct {
	mu     sync.RWMutex
	subs   map[string][]subscription
	nextID uint64
	logger *slog.Logger
}

func NewLocal(logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{subs: make(map[string][]subscription), logger: logger}
}

func (b *Local) Subscribe(topic string, h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, h: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(topic, id) })
	}
}

func (b *Local) remove(topic string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[topic]
	for i, s := range list {
		if s.id == id {
			// copy so in-flight Publish snapshots stay intact
			next := make([]subscription, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			if len(next) == 0 {
				delete(b.subs, topic)
			} else {
				b.subs[topic] = next
			}
			return
		}
	}
}

func (b *Local) Publish(topic string, payload any) {
	b.mu.RLock()
	direct := b.subs[topic]
	wild := b.subs[Wildcard]
	b.mu.RUnlock()

	msg := Message{Topic: topic, Payload: payload}
	for _, s := range direct {
		b.deliver(s.h, msg)
	}
	if topic == Wildcard {
		return
	}
	for _, s := range wild {
		b.deliver(s.h, msg)
	}
}

// deliver runs one handler under a guard so a failing listener cannot starve the rest.
func (b *Local) deliver(h Handler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncListenerError(msg.Topic)
			b.logger.Error("bus listener panicked", "topic", msg.Topic, "panic", fmt.Sprint(r))
		}
	}()
	if err := h(msg); err != nil {
		metrics.IncListenerError(msg.Topic)
		b.logger.Warn("bus listener failed", "topic", msg.Topic, "error", err)
	}
}
