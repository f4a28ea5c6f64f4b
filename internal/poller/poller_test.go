package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/valter-silva-au/riskdesk/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	transient = []models.Document{{ID: 7, Status: models.DocStatusProcessing, Progress: 40}}
	settled   = []models.Document{{ID: 7, Status: models.DocStatusCompleted, Progress: 100}}
)

type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (l *stateLog) record(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *stateLog) get() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.states...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSync_ActiveIffTransient(t *testing.T) {
	var fetches atomic.Int32
	c := New(context.Background(), 10*time.Millisecond, func(context.Context) { fetches.Add(1) })
	defer c.Close()

	if c.Active() {
		t.Fatal("new controller should be idle")
	}
	if got := c.Sync(transient); got != StatePolling || !c.Active() {
		t.Fatalf("Sync(transient) = %s, active=%v", got, c.Active())
	}
	waitFor(t, func() bool { return fetches.Load() >= 2 })

	if got := c.Sync(settled); got != StateIdle || c.Active() {
		t.Fatalf("Sync(settled) = %s, active=%v", got, c.Active())
	}
	if got := c.Sync(nil); got != StateIdle {
		t.Errorf("Sync(nil) = %s", got)
	}
}

func TestSync_RepeatedTransientKeepsOneLoop(t *testing.T) {
	var log stateLog
	c := New(context.Background(), time.Hour, func(context.Context) {}, WithStateHook(log.record))
	defer c.Close()

	for i := 0; i < 5; i++ {
		c.Sync(transient)
	}
	c.Sync(settled)
	c.Sync(settled)

	got := log.get()
	want := []State{StatePolling, StateIdle}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("transitions = %v, want %v", got, want)
	}
}

func TestStopFromInsideFetch(t *testing.T) {
	var c *Controller
	stopped := make(chan struct{})
	var once sync.Once
	c = New(context.Background(), 5*time.Millisecond, func(context.Context) {
		c.Sync(settled)
		once.Do(func() { close(stopped) })
	})
	defer c.Close()

	c.Sync(transient)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch never ran")
	}
	if c.Active() {
		t.Error("controller should be idle after the fetch saw a settled list")
	}
}

func TestParentCancelStopsPolling(t *testing.T) {
	var log stateLog
	ctx, cancel := context.WithCancel(context.Background())
	c := New(ctx, time.Hour, func(context.Context) {}, WithStateHook(log.record))
	defer c.Close()

	c.Sync(transient)
	cancel()
	waitFor(t, func() bool { return !c.Active() })
	waitFor(t, func() bool { return len(log.get()) == 2 })

	// A cancelled parent never restarts the ticker.
	c.Sync(transient)
	if c.Active() {
		t.Error("controller started polling under a cancelled parent")
	}
}

func TestClosePreventsRestart(t *testing.T) {
	c := New(context.Background(), time.Hour, func(context.Context) {})
	c.Sync(transient)
	c.Close()
	if c.Active() {
		t.Fatal("Close should stop polling")
	}
	c.Sync(transient)
	if c.Active() {
		t.Error("closed controller restarted")
	}
}

func TestNew_DefaultInterval(t *testing.T) {
	c := New(context.Background(), 0, func(context.Context) {})
	if c.interval != DefaultInterval {
		t.Errorf("interval = %s, want %s", c.interval, DefaultInterval)
	}
}
