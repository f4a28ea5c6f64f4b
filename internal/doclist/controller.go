// Package doclist keeps the document list for the selected project in sync
// with the backend: it loads, reconciles, polls while documents are in a
// transient status and refreshes when the project's knowledge base is
// rebuilt.
package doclist

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/valter-silva-au/riskdesk/internal/api"
	"github.com/valter-silva-au/riskdesk/internal/events"
	"github.com/valter-silva-au/riskdesk/internal/poller"
	"github.com/valter-silva-au/riskdesk/internal/reconcile"
	"github.com/valter-silva-au/riskdesk/pkg/models"
)

// EventLogger records activity events.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}

// Config wires a Controller. Backend is required.
type Config struct {
	Backend  api.Backend
	Store    *reconcile.Store
	Bus      *events.Bus
	Interval time.Duration
	Logger   *zap.Logger
	Events   EventLogger
}

// Controller owns the reconciled list and the polling loop of one document
// list view. Backend filtering is authoritative; results are not filtered
// again on the client.
type Controller struct {
	parent  context.Context
	backend api.Backend
	store   *reconcile.Store
	bus     *events.Bus
	logger  *zap.Logger
	events  EventLogger
	every   time.Duration

	mu          sync.Mutex
	filter      models.DocumentFilter
	loading     bool
	scopeCancel context.CancelFunc
	poll        *poller.Controller
	unsubBus    func()
	closed      bool

	unsubStore func()
}

// New creates a Controller with no project selected. Its polling never
// outlives parent.
func New(parent context.Context, cfg Config) *Controller {
	if cfg.Store == nil {
		cfg.Store = reconcile.NewStore(nil)
	}
	if cfg.Bus == nil {
		cfg.Bus = events.NewBus()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	c := &Controller{
		parent:  parent,
		backend: cfg.Backend,
		store:   cfg.Store,
		bus:     cfg.Bus,
		logger:  cfg.Logger,
		events:  cfg.Events,
		every:   cfg.Interval,
	}
	c.unsubStore = c.store.Subscribe(c.onCommit)
	return c
}

// Store exposes the reconciled store shared with the action orchestrator.
func (c *Controller) Store() *reconcile.Store { return c.store }

// SelectProject switches the view to projectID and loads its documents. The
// previous project's polling and subscriptions are torn down first. An empty
// projectID lists documents across all projects.
func (c *Controller) SelectProject(ctx context.Context, projectID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return api.Validationf("document list is closed")
	}
	oldPoll, oldUnsub := c.poll, c.unsubBus
	if c.scopeCancel != nil {
		c.scopeCancel()
	}
	scope, cancel := context.WithCancel(c.parent)
	c.scopeCancel = cancel
	c.filter.ProjectID = projectID
	c.poll = poller.New(scope, c.every, func(ctx context.Context) {
		_ = c.Refresh(ctx, true)
	}, poller.WithStateHook(c.onPollState))
	c.unsubBus = nil
	if projectID != "" {
		c.unsubBus = c.bus.SubscribeContext(scope, projectID, func(evt events.KnowledgeBaseRebuilt) {
			c.logger.Debug("knowledge base rebuilt, refreshing", zap.String("project_id", evt.ProjectID))
			_ = c.Refresh(scope, true)
		})
	}
	c.mu.Unlock()

	// Reset first so fetches still in flight for the old project are dropped.
	c.store.Reset()
	if oldUnsub != nil {
		oldUnsub()
	}
	if oldPoll != nil {
		oldPoll.Close()
	}
	return c.Refresh(ctx, false)
}

// Bus returns the bus the controller listens on for rebuild events.
func (c *Controller) Bus() *events.Bus { return c.bus }

// UseFilter sets the search text and status filter without reloading; the
// next SelectProject or Refresh uses them.
func (c *Controller) UseFilter(search string, status models.DocumentStatus) {
	c.mu.Lock()
	c.filter.Search = search
	c.filter.Status = status
	c.mu.Unlock()
}

// SetFilter changes the search text and status filter and reloads. The
// reconciliation cache is per filter, so the list starts fresh.
func (c *Controller) SetFilter(ctx context.Context, search string, status models.DocumentStatus) error {
	c.UseFilter(search, status)

	c.store.Reset()
	return c.Refresh(ctx, false)
}

// Refresh fetches the list and runs it through the reconciler. A silent
// refresh does not set the loading flag. On failure the list is cleared and
// the error recorded.
func (c *Controller) Refresh(ctx context.Context, silent bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	filter := c.filter
	epoch := c.store.Epoch()
	if !silent {
		c.loading = true
	}
	c.mu.Unlock()

	docs, err := c.backend.ListDocuments(ctx, filter)

	c.mu.Lock()
	if !silent {
		c.loading = false
	}
	c.mu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		c.logger.Warn("document fetch failed",
			zap.String("project_id", filter.ProjectID),
			zap.Bool("silent", silent),
			zap.Error(err))
		if c.store.Epoch() == epoch {
			c.store.Fail(err)
		}
		return err
	}

	d := c.store.ApplySince(epoch, docs)
	c.logger.Debug("documents reconciled",
		zap.String("project_id", filter.ProjectID),
		zap.Int("count", len(docs)),
		zap.Stringer("decision", d.Kind),
		zap.String("reason", string(d.Reason)))
	return nil
}

// Documents returns the committed list.
func (c *Controller) Documents() []models.Document { return c.store.Snapshot() }

// Err returns the last fetch error message, if any.
func (c *Controller) Err() string { return c.store.Err() }

// Loading reports whether a non-silent fetch is in flight.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Filter returns the active filter, including the selected project.
func (c *Controller) Filter() models.DocumentFilter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// ProjectID returns the selected project.
func (c *Controller) ProjectID() string { return c.Filter().ProjectID }

// PollingActive reports whether the polling timer is running.
func (c *Controller) PollingActive() bool {
	c.mu.Lock()
	p := c.poll
	c.mu.Unlock()
	return p != nil && p.Active()
}

// Close stops polling and releases every subscription. It must not be called
// from inside a poll fetch.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	p, unsub := c.poll, c.unsubBus
	if c.scopeCancel != nil {
		c.scopeCancel()
	}
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if p != nil {
		p.Close()
	}
	c.unsubStore()
}

func (c *Controller) onCommit(ch reconcile.Change) {
	c.mu.Lock()
	p := c.poll
	c.mu.Unlock()
	if p == nil {
		return
	}
	p.Sync(ch.Documents)
}

func (c *Controller) onPollState(s poller.State) {
	projectID := c.ProjectID()
	c.logger.Debug("polling state changed", zap.String("project_id", projectID), zap.String("state", string(s)))
	if c.events == nil {
		return
	}
	eventType := "poll.stopped"
	if s == poller.StatePolling {
		eventType = "poll.started"
	}
	_ = c.events.LogEvent(eventType, map[string]any{"project_id": projectID})
}
