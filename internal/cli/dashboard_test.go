package cli

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valter-silva-au/riskdesk/internal/actions"
	"github.com/valter-silva-au/riskdesk/internal/api"
	"github.com/valter-silva-au/riskdesk/internal/storage"
	"github.com/valter-silva-au/riskdesk/pkg/models"
)

func newTestDashboard(t *testing.T, prefs storage.PreferencesManager) (dashboardModel, *api.MockBackend) {
	t.Helper()
	backend := api.NewMockBackend(api.DefaultSeed())
	backend.SetAutoAdvance(false)
	if prefs == nil {
		prefs = storage.NewPreferencesManager(t.TempDir())
	}
	m, cleanup := newDashboard(context.Background(), backend, prefs)
	t.Cleanup(cleanup)
	return m, backend
}

// step feeds msg to the model and returns the updated model and command.
func step(m dashboardModel, msg tea.Msg) (dashboardModel, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(dashboardModel), cmd
}

// settle runs cmd and feeds its message back, as the program loop would.
func settle(t *testing.T, m dashboardModel, cmd tea.Cmd) dashboardModel {
	t.Helper()
	require.NotNil(t, cmd)
	m, _ = step(m, cmd())
	return m
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// loaded returns a dashboard with the overview and first project loaded.
func loaded(t *testing.T, prefs storage.PreferencesManager) (dashboardModel, *api.MockBackend) {
	t.Helper()
	m, backend := newTestDashboard(t, prefs)
	m, cmd := step(m, m.loadOverview())
	m = settle(t, m, cmd)
	return m, backend
}

func docIDs(docs []models.Document) []int {
	out := make([]int, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}

func TestDashboard_LoadsOverviewAndFirstProject(t *testing.T) {
	m, _ := loaded(t, nil)

	assert.False(t, m.loading)
	require.NotNil(t, m.stats)
	assert.Equal(t, 7, m.stats.TotalDocuments)
	assert.Len(t, m.projects, 3)
	assert.Equal(t, "1", m.projectID)
	assert.Equal(t, []int{1, 2, 3, 4}, docIDs(m.docs))
	assert.Equal(t, "1", m.prefs.Get().LastProjectID)
}

func TestDashboard_RestoresLastProject(t *testing.T) {
	prefs := storage.NewPreferencesManager(t.TempDir())
	prefs.SelectProject("2")

	m, _ := loaded(t, prefs)

	assert.Equal(t, 1, m.projectIdx)
	assert.Equal(t, "2", m.projectID)
	assert.Equal(t, []int{5, 6}, docIDs(m.docs))
}

func TestDashboard_OverviewError(t *testing.T) {
	m, backend := newTestDashboard(t, nil)
	backend.FailNext(api.OpListProjects, nil)

	m, cmd := step(m, m.loadOverview())

	assert.Nil(t, cmd)
	require.Error(t, m.err)
	assert.Contains(t, m.err.Error(), "loading projects")
	m, _ = step(m, tea.WindowSizeMsg{Width: 120, Height: 40})
	assert.Contains(t, m.View(), "Error:")
}

func TestDashboard_SelectProjectWithEnter(t *testing.T) {
	m, _ := loaded(t, nil)

	m, _ = step(m, key("j"))
	m, _ = step(m, key("j"))
	assert.Equal(t, 2, m.projectIdx)
	m, _ = step(m, key("j"))
	assert.Equal(t, 2, m.projectIdx, "cursor stops at the last project")

	m, cmd := step(m, key("enter"))
	m = settle(t, m, cmd)

	assert.Equal(t, "3", m.projectID)
	assert.Equal(t, []int{7}, docIDs(m.docs))

	// Enter on the open project moves focus to the documents.
	m, cmd = step(m, key("enter"))
	assert.Nil(t, cmd)
	assert.Equal(t, panelDocuments, m.activePanel)
}

func TestDashboard_SearchAppliesFilter(t *testing.T) {
	m, _ := loaded(t, nil)

	m, _ = step(m, key("/"))
	require.True(t, m.searching)
	m, _ = step(m, key("balance"))
	m, cmd := step(m, key("enter"))
	assert.False(t, m.searching)
	m = settle(t, m, cmd)

	assert.Equal(t, []int{2}, docIDs(m.docs))
	assert.Equal(t, "balance", m.prefs.Get().LastSearch)
}

func TestDashboard_StatusFilterCycles(t *testing.T) {
	m, _ := loaded(t, nil)

	var cmd tea.Cmd
	for m.statusIdx < len(statusFilters) && statusFilters[m.statusIdx] != models.DocStatusFailed {
		m, cmd = step(m, key("s"))
	}
	m = settle(t, m, cmd)

	assert.Equal(t, []int{4}, docIDs(m.docs))
	assert.Equal(t, models.DocStatusFailed, m.prefs.Get().LastStatus)

	m, cmd = step(m, key("s"))
	m = settle(t, m, cmd)
	assert.Empty(t, m.docs, "no KB parse failures in project 1")
}

func TestDashboard_DeleteAfterConfirmation(t *testing.T) {
	m, backend := loaded(t, nil)
	var prompts []actions.Prompt
	m.bridge.attach(func(msg tea.Msg) {
		if c, ok := msg.(confirmRequestMsg); ok {
			prompts = append(prompts, c.prompt)
			c.reply <- true
		}
	})

	m, _ = step(m, key("tab"))
	m, _ = step(m, key("j"))
	m, cmd := step(m, key("d"))
	assert.Equal(t, 1, m.busy)
	m = settle(t, m, cmd)

	assert.Equal(t, 0, m.busy)
	assert.Equal(t, []int{1, 3, 4}, docIDs(m.docs))
	require.Len(t, prompts, 1)
	assert.True(t, prompts[0].Danger)

	remaining, err := backend.ListDocuments(context.Background(), models.DocumentFilter{ProjectID: "1"})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 4}, docIDs(remaining))
}

func TestDashboard_ActionWithoutProgramIsCancelled(t *testing.T) {
	m, _ := loaded(t, nil)

	m, _ = step(m, key("tab"))
	m, cmd := step(m, key("d"))
	m = settle(t, m, cmd)

	assert.Equal(t, []int{1, 2, 3, 4}, docIDs(m.docs))
}

func TestDashboard_ConfirmPrompt(t *testing.T) {
	m, _ := loaded(t, nil)

	first := confirmRequestMsg{prompt: actions.Prompt{Title: "Delete document", Message: "Sure?", Danger: true}, reply: make(chan bool, 1)}
	m, _ = step(m, first)
	require.NotNil(t, m.confirm)

	second := confirmRequestMsg{prompt: actions.Prompt{Title: "Other"}, reply: make(chan bool, 1)}
	m, _ = step(m, second)
	assert.False(t, <-second.reply, "a second prompt is declined while one is open")

	m, _ = step(m, tea.WindowSizeMsg{Width: 120, Height: 40})
	assert.Contains(t, m.View(), "Delete document")

	m, _ = step(m, key("y"))
	assert.True(t, <-first.reply)
	assert.Nil(t, m.confirm)

	third := confirmRequestMsg{prompt: actions.Prompt{Title: "Again"}, reply: make(chan bool, 1)}
	m, _ = step(m, third)
	m, _ = step(m, key("esc"))
	assert.False(t, <-third.reply)
}

func TestDashboard_QuitDeclinesPromptAndSavesPreferences(t *testing.T) {
	dir := t.TempDir()
	m, _ := loaded(t, storage.NewPreferencesManager(dir))

	pending := confirmRequestMsg{prompt: actions.Prompt{Title: "Delete"}, reply: make(chan bool, 1)}
	m, _ = step(m, pending)
	_, cmd := step(m, tea.KeyMsg{Type: tea.KeyCtrlC})

	assert.False(t, <-pending.reply)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	reloaded := storage.NewPreferencesManager(dir)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, "1", reloaded.Get().LastProjectID)
}

func TestDashboard_DeferredCommitsWaitForFrame(t *testing.T) {
	m, backend := loaded(t, nil)

	backend.SetStatus(2, models.DocStatusCompleted)
	require.NoError(t, m.list.Refresh(context.Background(), true))

	assert.Equal(t, 1, m.sched.Pending())
	assert.Equal(t, models.DocStatusProcessing, m.docs[1].Status)

	m, cmd := step(m, frameTickMsg(time.Now()))
	assert.NotNil(t, cmd, "frame ticks keep running")
	assert.Equal(t, 0, m.sched.Pending())
	assert.Equal(t, models.DocStatusCompleted, m.docs[1].Status)
}

// startProgram runs m in a headless program and returns it with a channel
// that yields the final model.
func startProgram(t *testing.T, ctx context.Context, m dashboardModel) (*tea.Program, <-chan tea.Model) {
	t.Helper()
	p := tea.NewProgram(m,
		tea.WithContext(ctx),
		tea.WithInput(bytes.NewReader(nil)),
		tea.WithOutput(io.Discard),
		tea.WithoutSignals(),
		tea.WithoutRenderer(),
	)
	m.bridge.attach(p.Send)
	t.Cleanup(func() { m.bridge.attach(nil) })

	done := make(chan tea.Model, 1)
	go func() {
		final, _ := p.Run()
		done <- final
	}()
	return p, done
}

func TestDashboard_FrameFlushUnderProgram(t *testing.T) {
	m, backend := newTestDashboard(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p, done := startProgram(t, ctx, m)

	require.Eventually(t, func() bool { return len(m.list.Documents()) == 4 }, 5*time.Second, 10*time.Millisecond)

	backend.SetStatus(1, models.DocStatusKBParseFailed)
	require.NoError(t, m.list.Refresh(context.Background(), true))
	require.Eventually(t, func() bool {
		d, ok := m.list.Store().Find(1)
		return ok && d.Status == models.DocStatusKBParseFailed && m.sched.Pending() == 0
	}, 2*time.Second, 10*time.Millisecond)

	sent := make(chan struct{})
	go func() {
		p.Send(tea.QuitMsg{})
		close(sent)
	}()
	select {
	case <-sent:
	case <-time.After(2 * time.Second):
		t.Fatal("event loop stopped accepting messages after a frame flush")
	}

	var final tea.Model
	select {
	case final = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("program did not exit")
	}
	fm, ok := final.(dashboardModel)
	require.True(t, ok)
	require.NotEmpty(t, fm.docs)
	assert.Equal(t, models.DocStatusKBParseFailed, fm.docs[0].Status)
}

func TestDashboard_ToastsExpire(t *testing.T) {
	m, _ := newTestDashboard(t, nil)
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	for i := 0; i < maxToasts+2; i++ {
		m, _ = step(m, noticeMsg{Level: actions.LevelError, Title: "Delete failed", Message: "disk full"})
	}
	assert.Len(t, m.toasts, maxToasts)

	m, _ = step(m, tea.WindowSizeMsg{Width: 80, Height: 30})
	assert.Contains(t, m.View(), "Delete failed: disk full")

	now = now.Add(toastTTL + time.Second)
	m, _ = step(m, frameTickMsg(now))
	assert.Empty(t, m.toasts)
}

func TestDashboard_View(t *testing.T) {
	m, _ := loaded(t, nil)
	assert.Equal(t, "Loading...", m.View())

	m, _ = step(m, tea.WindowSizeMsg{Width: 140, Height: 40})
	view := m.View()

	for _, want := range []string{"RiskDesk", "Projects", "Acme Manufacturing", "Balance Sheet Q4.xlsx", "Processing", "7 documents"} {
		assert.True(t, strings.Contains(view, want), "view should contain %q", want)
	}
}

func TestUIBridge_ConfirmWithoutProgram(t *testing.T) {
	b := &uiBridge{}
	assert.False(t, b.Confirm(actions.Prompt{Title: "x"}))
	assert.False(t, b.Send(docsChangedMsg{}))

	var got []tea.Msg
	b.attach(func(msg tea.Msg) { got = append(got, msg) })
	b.Notify(actions.Notice{Title: "hello"})
	require.Len(t, got, 1)
	assert.Equal(t, "hello", got[0].(noticeMsg).Title)
}

func TestClamp(t *testing.T) {
	tests := []struct {
		i, n, want int
	}{
		{0, 0, 0},
		{-1, 3, 0},
		{1, 3, 1},
		{5, 3, 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clamp(tt.i, tt.n))
	}
}
