package activity

import (
	"context"
	"sync"
)

// Handler receives published activity.
type Handler func(*Activity)

// Bus fans persisted activity out to in-process subscribers.
type Bus interface {
	Publish(ctx context.Context, a *Activity) error
	// Subscribe registers h and returns a function that removes it.
	Subscribe(h Handler) (unsubscribe func())
}

// LocalBus is an in-process Bus. Handlers run synchronously on the publishing
// goroutine, in subscription order.
type LocalBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers []subscription
}

type subscription struct {
	id int
	h  Handler
}

// NewLocalBus creates an empty LocalBus.
func NewLocalBus() *LocalBus {
	return &LocalBus{}
}

// Publish delivers a to every current subscriber.
func (b *LocalBus) Publish(_ context.Context, a *Activity) error {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	for i, s := range b.handlers {
		handlers[i] = s.h
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(a)
	}
	return nil
}

// Subscribe registers h.
func (b *LocalBus) Subscribe(h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers = append(b.handlers, subscription{id: id, h: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.handlers {
				if s.id == id {
					b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
					return
				}
			}
		})
	}
}
