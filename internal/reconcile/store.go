package reconcile

import (
	"sync"

	"github.com/valter-silva-au/riskdesk/pkg/models"
)

// ReasonStale marks fetch results discarded because the list was mutated
// locally while the fetch was in flight.
const ReasonStale Reason = "stale"

// FrameScheduler runs deferred commits, typically on the next render frame.
type FrameScheduler interface {
	Schedule(fn func())
}

// ImmediateScheduler runs deferred commits synchronously.
type ImmediateScheduler struct{}

// Schedule calls fn right away.
func (ImmediateScheduler) Schedule(fn func()) { fn() }

// Change describes a commit delivered to subscribers.
type Change struct {
	Documents []models.Document
	Revision  uint64
	Reason    Reason
	Err       string
}

// Store holds the committed document list and the side cache used for
// change detection. All writes go through Apply, Mutate, Fail or Reset.
type Store struct {
	mu        sync.Mutex
	committed []models.Document
	cache     []models.Document
	revision  uint64
	epoch     uint64
	writes    uint64 // bumped by every reconciled fetch and local write
	err       string
	scheduler FrameScheduler

	nextSub int
	subs    map[int]func(Change)
}

// NewStore creates an empty store. A nil scheduler commits immediately.
func NewStore(scheduler FrameScheduler) *Store {
	if scheduler == nil {
		scheduler = ImmediateScheduler{}
	}
	return &Store{
		scheduler: scheduler,
		subs:      make(map[int]func(Change)),
	}
}

// Subscribe registers fn to be called after every commit. The returned
// function removes the subscription.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Apply reconciles a fetched list against the cache and commits it when
// warranted.
func (s *Store) Apply(next []models.Document) Decision {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()
	return s.ApplySince(epoch, next)
}

// ApplySince is Apply for a fetch that started at epoch. If the list was
// mutated locally since then, the result is discarded. A deferred commit only
// runs if no later fetch or local write has been reconciled in the meantime.
func (s *Store) ApplySince(epoch uint64, next []models.Document) Decision {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return Decision{Kind: Suppress, Reason: ReasonStale}
	}
	s.writes++
	write := s.writes
	d := Decide(s.cache, next)
	if !d.Committed() {
		s.mu.Unlock()
		return d
	}
	docs := clone(next)
	if !d.Deferred {
		change := s.commitLocked(docs, d.Reason)
		subs := s.subscribersLocked()
		s.mu.Unlock()
		notify(subs, change)
		return d
	}
	s.mu.Unlock()

	s.scheduler.Schedule(func() {
		s.mu.Lock()
		if epoch != s.epoch || write != s.writes {
			s.mu.Unlock()
			return
		}
		change := s.commitLocked(docs, d.Reason)
		subs := s.subscribersLocked()
		s.mu.Unlock()
		notify(subs, change)
	})
	return d
}

// Mutate applies a local change to the committed list, as optimistic
// actions do. In-flight fetches started before the mutation are discarded.
func (s *Store) Mutate(fn func([]models.Document) []models.Document) []models.Document {
	s.mu.Lock()
	next := fn(clone(s.committed))
	s.epoch++
	s.writes++
	change := s.commitLocked(clone(next), "mutate")
	subs := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, change)
	return clone(next)
}

// Fail records a fetch error. The list is cleared rather than left stale
// next to the error.
func (s *Store) Fail(err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	s.mu.Lock()
	s.epoch++
	s.writes++
	change := s.commitLocked(nil, "failed")
	s.err = msg
	change.Err = msg
	subs := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, change)
}

// Reset empties the store, for example when the selected project changes.
func (s *Store) Reset() {
	s.mu.Lock()
	s.epoch++
	s.writes++
	change := s.commitLocked(nil, "reset")
	subs := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, change)
}

// Snapshot returns a copy of the committed list.
func (s *Store) Snapshot() []models.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.committed)
}

// Find returns the committed document with the given id.
func (s *Store) Find(id int) (models.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.committed {
		if d.ID == id {
			return d, true
		}
	}
	return models.Document{}, false
}

// Revision increments on every commit.
func (s *Store) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Epoch identifies the current local-mutation generation.
func (s *Store) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Err returns the last fetch error, cleared by the next successful commit.
func (s *Store) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Store) commitLocked(docs []models.Document, reason Reason) Change {
	if docs == nil {
		docs = []models.Document{}
	}
	s.committed = docs
	s.cache = clone(docs)
	s.revision++
	s.err = ""
	return Change{Documents: clone(docs), Revision: s.revision, Reason: reason}
}

func (s *Store) subscribersLocked() []func(Change) {
	out := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}

func notify(subs []func(Change), c Change) {
	for _, fn := range subs {
		fn(c)
	}
}

func clone(docs []models.Document) []models.Document {
	if docs == nil {
		return nil
	}
	out := make([]models.Document, len(docs))
	copy(out, docs)
	return out
}

// BatchScheduler queues deferred commits until Flush is called, so that
// several commits arriving within one frame produce a single render.
type BatchScheduler struct {
	mu      sync.Mutex
	pending []func()
}

// Schedule queues fn.
func (b *BatchScheduler) Schedule(fn func()) {
	b.mu.Lock()
	b.pending = append(b.pending, fn)
	b.mu.Unlock()
}

// Flush runs queued commits in order and reports how many ran.
func (b *BatchScheduler) Flush() int {
	b.mu.Lock()
	fns := b.pending
	b.pending = nil
	b.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

// Pending reports how many commits are queued.
func (b *BatchScheduler) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
