package events

import (
	"context"
	"testing"
	"time"
)

func TestPublish_MatchesProject(t *testing.T) {
	b := NewBus()
	var gotA, gotB int
	b.Subscribe("proj-a", func(KnowledgeBaseRebuilt) { gotA++ })
	b.Subscribe("proj-b", func(KnowledgeBaseRebuilt) { gotB++ })

	if n := b.Publish(KnowledgeBaseRebuilt{ProjectID: "proj-a"}); n != 1 {
		t.Errorf("Publish() delivered to %d, want 1", n)
	}
	if gotA != 1 || gotB != 0 {
		t.Errorf("a=%d b=%d", gotA, gotB)
	}
}

func TestPublish_StampsTime(t *testing.T) {
	b := NewBus()
	var evt KnowledgeBaseRebuilt
	b.Subscribe("p", func(e KnowledgeBaseRebuilt) { evt = e })
	b.Publish(KnowledgeBaseRebuilt{ProjectID: "p"})
	if evt.At.IsZero() {
		t.Error("event time not set")
	}

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b.Publish(KnowledgeBaseRebuilt{ProjectID: "p", At: at})
	if !evt.At.Equal(at) {
		t.Errorf("At = %v, want %v", evt.At, at)
	}
}

func TestSubscribe_UnsubscribeIdempotent(t *testing.T) {
	b := NewBus()
	unsub := b.Subscribe("p", func(KnowledgeBaseRebuilt) {})
	other := b.Subscribe("p", func(KnowledgeBaseRebuilt) {})
	defer other()

	unsub()
	unsub()
	if b.Len() != 1 {
		t.Errorf("Len() = %d, want 1", b.Len())
	}
}

func TestSubscribeContext_EndsOnCancel(t *testing.T) {
	b := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	b.SubscribeContext(ctx, "p", func(KnowledgeBaseRebuilt) { calls++ })

	b.Publish(KnowledgeBaseRebuilt{ProjectID: "p"})
	cancel()

	deadline := time.Now().Add(time.Second)
	for b.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if b.Len() != 0 {
		t.Fatal("subscription survived context cancellation")
	}
	b.Publish(KnowledgeBaseRebuilt{ProjectID: "p"})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestSubscribeContext_ExplicitCancel(t *testing.T) {
	b := NewBus()
	unsub := b.SubscribeContext(context.Background(), "p", func(KnowledgeBaseRebuilt) {})
	unsub()
	if b.Len() != 0 {
		t.Errorf("Len() = %d, want 0", b.Len())
	}
}
