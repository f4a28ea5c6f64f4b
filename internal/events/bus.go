// Package events provides a typed, project-scoped event bus. Subscriptions are
// explicit and end either through the returned cancel function or when the
// subscriber's context is done.
package events

import (
	"context"
	"sync"
	"time"
)

// KnowledgeBaseRebuilt is published after a project's knowledge base rebuild
// was accepted by the backend.
type KnowledgeBaseRebuilt struct {
	ProjectID string
	At        time.Time
}

// Handler receives events for the project it subscribed to.
type Handler func(KnowledgeBaseRebuilt)

type subscription struct {
	projectID string
	handler   Handler
}

// Bus delivers KnowledgeBaseRebuilt events to subscribers whose project id
// matches the event.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]subscription)}
}

// Subscribe registers h for events of projectID and returns a function that
// removes the subscription. The returned function is idempotent.
func (b *Bus) Subscribe(projectID string, h Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = subscription{projectID: projectID, handler: h}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// SubscribeContext is Subscribe bounded by ctx: the subscription ends when
// ctx is done or the returned function is called.
func (b *Bus) SubscribeContext(ctx context.Context, projectID string, h Handler) func() {
	unsubscribe := b.Subscribe(projectID, h)
	stop := context.AfterFunc(ctx, unsubscribe)
	return func() {
		stop()
		unsubscribe()
	}
}

// Publish delivers evt synchronously to matching subscribers and returns how
// many received it.
func (b *Bus) Publish(evt KnowledgeBaseRebuilt) int {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	b.mu.RLock()
	var handlers []Handler
	for _, s := range b.subs {
		if s.projectID == evt.ProjectID {
			handlers = append(handlers, s.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(evt)
	}
	return len(handlers)
}

// Len reports the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
