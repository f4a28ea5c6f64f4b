package reconcile

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/valter-silva-au/riskdesk/pkg/models"
)

func TestStore_FirstLoadCommitsAndNotifies(t *testing.T) {
	s := NewStore(nil)
	var got []Change
	unsub := s.Subscribe(func(c Change) { got = append(got, c) })
	defer unsub()

	docs := []models.Document{doc(1, models.DocStatusCompleted, 100)}
	d := s.Apply(docs)
	if !d.Committed() || d.Reason != ReasonFirstLoad {
		t.Fatalf("Apply() = %+v", d)
	}
	if len(got) != 1 || got[0].Reason != ReasonFirstLoad || got[0].Revision != 1 {
		t.Fatalf("changes = %+v", got)
	}
	if diff := cmp.Diff(docs, s.Snapshot()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_EmptyFirstLoadStillCommits(t *testing.T) {
	s := NewStore(nil)
	if d := s.Apply(nil); !d.Committed() {
		t.Fatalf("empty first load should commit, got %+v", d)
	}
	if s.Snapshot() == nil {
		t.Error("committed list should be empty, not nil")
	}
}

// Scenario: a processing document polled back as completed commits.
func TestStore_ProcessingToCompletedCommits(t *testing.T) {
	s := NewStore(nil)
	s.Apply([]models.Document{doc(7, models.DocStatusProcessing, 40)})

	d := s.Apply([]models.Document{doc(7, models.DocStatusCompleted, 100)})
	if !d.Committed() || d.Reason != ReasonFieldsChanged {
		t.Fatalf("Apply() = %+v", d)
	}
	got, _ := s.Find(7)
	if got.Status != models.DocStatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
}

// Scenario: an unchanged processing document does not re-render.
func TestStore_UnchangedPollSuppressed(t *testing.T) {
	s := NewStore(nil)
	s.Apply([]models.Document{doc(7, models.DocStatusProcessing, 40)})
	rev := s.Revision()

	notified := 0
	s.Subscribe(func(Change) { notified++ })
	d := s.Apply([]models.Document{doc(7, models.DocStatusProcessing, 40)})
	if d.Committed() {
		t.Fatalf("Apply() = %+v, want suppress", d)
	}
	if s.Revision() != rev || notified != 0 {
		t.Errorf("revision %d -> %d, notified %d", rev, s.Revision(), notified)
	}
}

func TestStore_DeferredCommitsWaitForFlush(t *testing.T) {
	sched := &BatchScheduler{}
	s := NewStore(sched)
	s.Apply([]models.Document{doc(7, models.DocStatusProcessing, 40)})
	if sched.Pending() != 0 {
		t.Fatal("first load must not be deferred")
	}

	s.Apply([]models.Document{doc(7, models.DocStatusProcessing, 60)})
	s.Apply([]models.Document{doc(7, models.DocStatusProcessing, 80)})
	if got, _ := s.Find(7); got.Progress != 40 {
		t.Fatalf("progress = %d before flush, want 40", got.Progress)
	}
	if sched.Pending() != 2 {
		t.Fatalf("pending = %d, want 2", sched.Pending())
	}

	if n := sched.Flush(); n != 2 {
		t.Fatalf("Flush() = %d", n)
	}
	if got, _ := s.Find(7); got.Progress != 80 {
		t.Errorf("progress = %d after flush, want 80", got.Progress)
	}
	if sched.Pending() != 0 {
		t.Error("queue should be empty after flush")
	}
}

// Scenario: an upload lands while a status change waits for the next frame.
func TestStore_ImmediateCommitSupersedesQueuedCommit(t *testing.T) {
	sched := &BatchScheduler{}
	s := NewStore(sched)
	s.Apply([]models.Document{doc(1, models.DocStatusProcessing, 40), doc(2, models.DocStatusCompleted, 100)})

	d := s.Apply([]models.Document{doc(1, models.DocStatusCompleted, 100), doc(2, models.DocStatusCompleted, 100)})
	if !d.Deferred {
		t.Fatalf("Apply() = %+v, want deferred", d)
	}
	latest := []models.Document{
		doc(1, models.DocStatusCompleted, 100),
		doc(2, models.DocStatusCompleted, 100),
		doc(3, models.DocStatusUploading, 0),
	}
	if d := s.Apply(latest); d.Reason != ReasonCountChanged || d.Deferred {
		t.Fatalf("Apply() = %+v, want immediate count_changed", d)
	}

	rev := s.Revision()
	sched.Flush()

	if diff := cmp.Diff(latest, s.Snapshot()); diff != "" {
		t.Errorf("queued commit overwrote the newer list (-want +got):\n%s", diff)
	}
	if s.Revision() != rev {
		t.Errorf("revision %d -> %d, superseded commit should not run", rev, s.Revision())
	}
	if !models.HasTransient(s.Snapshot()) {
		t.Error("uploading document lost, polling would stop")
	}
}

func TestStore_UnchangedFetchSupersedesQueuedCommit(t *testing.T) {
	sched := &BatchScheduler{}
	s := NewStore(sched)
	first := []models.Document{doc(7, models.DocStatusProcessing, 40)}
	s.Apply(first)

	s.Apply([]models.Document{doc(7, models.DocStatusProcessing, 60)})
	if d := s.Apply(first); d.Committed() {
		t.Fatalf("Apply() = %+v, want suppress", d)
	}
	sched.Flush()

	if diff := cmp.Diff(first, s.Snapshot()); diff != "" {
		t.Errorf("committed list should match the latest fetch (-want +got):\n%s", diff)
	}
}

func TestStore_StaleFetchDiscarded(t *testing.T) {
	s := NewStore(nil)
	s.Apply([]models.Document{doc(1, models.DocStatusCompleted, 100), doc(3, models.DocStatusProcessed, 100)})

	epoch := s.Epoch()
	// A delete lands while a poll is in flight.
	s.Mutate(func(docs []models.Document) []models.Document { return docs[:1] })

	stale := []models.Document{doc(1, models.DocStatusCompleted, 100), doc(3, models.DocStatusProcessed, 100)}
	d := s.ApplySince(epoch, stale)
	if d.Committed() || d.Reason != ReasonStale {
		t.Fatalf("ApplySince() = %+v, want stale", d)
	}
	if _, ok := s.Find(3); ok {
		t.Error("stale poll resurrected a deleted document")
	}
}

func TestStore_DeferredCommitDroppedAfterMutation(t *testing.T) {
	sched := &BatchScheduler{}
	s := NewStore(sched)
	s.Apply([]models.Document{doc(7, models.DocStatusProcessing, 40)})
	s.Apply([]models.Document{doc(7, models.DocStatusProcessing, 90)})

	s.Reset()
	sched.Flush()
	if len(s.Snapshot()) != 0 {
		t.Errorf("queued commit should be dropped after reset, got %v", s.Snapshot())
	}
}

func TestStore_FailClearsListAndRecordsError(t *testing.T) {
	s := NewStore(nil)
	s.Apply([]models.Document{doc(1, models.DocStatusCompleted, 100)})

	var last Change
	s.Subscribe(func(c Change) { last = c })
	s.Fail(errors.New("connection refused"))

	if len(s.Snapshot()) != 0 {
		t.Error("list should be cleared on failure")
	}
	if s.Err() != "connection refused" || last.Err != "connection refused" {
		t.Errorf("err = %q, change err = %q", s.Err(), last.Err)
	}

	// The next load is a first load again and clears the error.
	if d := s.Apply([]models.Document{doc(1, models.DocStatusCompleted, 100)}); d.Reason != ReasonFirstLoad {
		t.Errorf("Apply() after failure = %+v", d)
	}
	if s.Err() != "" {
		t.Errorf("err should clear, got %q", s.Err())
	}
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := NewStore(nil)
	s.Apply([]models.Document{doc(1, models.DocStatusCompleted, 100)})
	snap := s.Snapshot()
	snap[0].Name = "tampered"
	if got, _ := s.Find(1); got.Name == "tampered" {
		t.Error("snapshot aliases committed state")
	}
}

func TestStore_Unsubscribe(t *testing.T) {
	s := NewStore(nil)
	n := 0
	unsub := s.Subscribe(func(Change) { n++ })
	s.Apply([]models.Document{doc(1, models.DocStatusCompleted, 100)})
	unsub()
	s.Reset()
	if n != 1 {
		t.Errorf("notified %d times, want 1", n)
	}
}
