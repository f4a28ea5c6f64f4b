// Package poller runs the document status polling loop. It is active only
// while the committed list holds a document in a transient status.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/valter-silva-au/riskdesk/pkg/models"
)

// DefaultInterval is the poll cadence used when none is configured.
const DefaultInterval = 3 * time.Second

// State is the controller's current mode.
type State string

const (
	StateIdle    State = "idle"
	StatePolling State = "polling"
)

// FetchFunc performs one silent fetch. Its result is expected to flow back
// through the reconciler, which calls Sync again.
type FetchFunc func(ctx context.Context)

// Controller starts a ticker when Sync sees a transient document and stops it
// when none remain. The ticker never outlives the parent context.
type Controller struct {
	parent   context.Context
	interval time.Duration
	fetch    FetchFunc
	onChange func(State)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
	loops  sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

// WithStateHook registers fn to be called on every Idle/Polling transition.
func WithStateHook(fn func(State)) Option {
	return func(c *Controller) { c.onChange = fn }
}

// New creates an idle controller scoped to parent.
func New(parent context.Context, interval time.Duration, fetch FetchFunc, opts ...Option) *Controller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	c := &Controller{
		parent:   parent,
		interval: interval,
		fetch:    fetch,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sync re-evaluates the transient predicate for the committed list.
func (c *Controller) Sync(docs []models.Document) State {
	if models.HasTransient(docs) {
		c.start()
		return StatePolling
	}
	c.Stop()
	return StateIdle
}

// Active reports whether the ticker is running.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

func (c *Controller) start() {
	c.mu.Lock()
	if c.cancel != nil || c.closed || c.parent.Err() != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(c.parent)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	hook := c.onChange
	c.loops.Add(1)
	c.mu.Unlock()

	go c.loop(ctx, done)
	if hook != nil {
		hook(StatePolling)
	}
}

func (c *Controller) loop(ctx context.Context, done chan struct{}) {
	defer c.loops.Done()
	defer close(done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if c.clear(done) && c.onChange != nil {
				c.onChange(StateIdle)
			}
			return
		case <-ticker.C:
			c.fetch(ctx)
		}
	}
}

// clear drops the controller's reference to a loop that ended on its own,
// e.g. because the parent context was cancelled. It reports whether the
// loop was still current.
func (c *Controller) clear(done chan struct{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != done {
		return false
	}
	c.cancel()
	c.cancel = nil
	c.done = nil
	return true
}

// Stop tears the ticker down without waiting for the loop to exit, so it is
// safe to call from inside a fetch.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel, c.done = nil, nil
	hook := c.onChange
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if hook != nil {
		hook(StateIdle)
	}
}

// Close stops the controller permanently and waits for every loop it started
// to exit. It must not be called from inside a fetch.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.Stop()
	c.loops.Wait()
}
