package internal

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/riskdesk/internal/api"
	"github.com/valter-silva-au/riskdesk/internal/cli"
	"github.com/valter-silva-au/riskdesk/internal/config"
	"github.com/valter-silva-au/riskdesk/internal/observability"
	"github.com/valter-silva-au/riskdesk/pkg/models"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, config.FileName), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestResolveBasePath_HomeSet(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(HomeEnv, tmpDir)

	got := ResolveBasePath()
	if got != tmpDir {
		t.Errorf("ResolveBasePath() = %q, want %q", got, tmpDir)
	}
}

func TestResolveBasePath_FindsConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "sub", "nested")
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeConfig(t, tmpDir, "api:\n  mock: true\n")

	t.Chdir(subDir)
	t.Setenv(HomeEnv, "")

	got, err := filepath.EvalSymlinks(ResolveBasePath())
	if err != nil {
		t.Fatal(err)
	}
	want, _ := filepath.EvalSymlinks(tmpDir)
	if got != want {
		t.Errorf("ResolveBasePath() = %q, want %q (should find %s in parent)", got, want, config.FileName)
	}
}

func TestResolveBasePath_FallbackToCwd(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)
	t.Setenv(HomeEnv, "")

	got, _ := filepath.EvalSymlinks(ResolveBasePath())
	want, _ := filepath.EvalSymlinks(tmpDir)
	if got != want {
		t.Errorf("ResolveBasePath() = %q, want %q (should fall back to cwd)", got, want)
	}
}

func TestNewApp_Defaults(t *testing.T) {
	tmpDir := t.TempDir()
	app, err := NewApp(tmpDir)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer app.Close()

	if app.BasePath != tmpDir {
		t.Errorf("app.BasePath = %q, want %q", app.BasePath, tmpDir)
	}
	if _, ok := app.Backend.(*api.HTTPBackend); !ok {
		t.Errorf("app.Backend = %T, want *api.HTTPBackend", app.Backend)
	}
	if app.EventLog == nil || app.AlertEngine == nil || app.MetricsCalc == nil {
		t.Error("observability services should be wired")
	}
	if app.Notifier != nil {
		t.Error("notifier should be nil when notifications are disabled")
	}
	if app.Config.Polling.IntervalSeconds != 3 {
		t.Errorf("polling interval = %d, want 3", app.Config.Polling.IntervalSeconds)
	}

	// CLI globals point at the same services.
	if cli.Backend != app.Backend || cli.Prefs != app.Prefs || cli.Bus != app.Bus || cli.Recorder != app.Recorder {
		t.Error("CLI package variables not wired")
	}
}

func TestNewApp_MockBackend(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, "api:\n  mock: true\nlog:\n  level: debug\n")

	app, err := NewApp(tmpDir)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer app.Close()

	projects, err := app.Backend.ListProjects(context.Background())
	if err != nil {
		t.Fatalf("ListProjects() error = %v", err)
	}
	if len(projects) != 3 {
		t.Errorf("got %d projects, want 3 from the demo seed", len(projects))
	}
}

func TestNewApp_InvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, "api:\n  base_url: ftp://example.com\npolling:\n  interval_seconds: 0\n")

	_, err := NewApp(tmpDir)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"api.base_url", "polling.interval_seconds"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %q", err.Error(), want)
		}
	}
}

func TestNewApp_SlackNotifier(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `api:
  mock: true
notifications:
  enabled: true
  slack:
    webhook_url: https://hooks.slack.com/services/T000/B000/XXXX
`)

	app, err := NewApp(tmpDir)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer app.Close()
	if app.Notifier == nil {
		t.Error("expected a Slack notifier")
	}
}

func TestNewApp_EventsReachLog(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, "api:\n  mock: true\n")

	app, err := NewApp(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	if err := app.Recorder.LogEvent(observability.EventDocumentDeleted, map[string]any{"document_id": 2}); err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}
	events, err := app.EventLog.Read(observability.EventFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Type != observability.EventDocumentDeleted {
		t.Errorf("events = %+v", events)
	}
	if err := app.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, EventLogFile)); err != nil {
		t.Errorf("event log file missing: %v", err)
	}
}

func TestAlertThresholds(t *testing.T) {
	def := observability.DefaultAlertThresholds()

	got := alertThresholds(models.AlertConfig{})
	if got != def {
		t.Errorf("zero config should keep defaults, got %+v", got)
	}

	got = alertThresholds(models.AlertConfig{WindowMinutes: 10, MaxFailures: 9, StuckPollMinutes: 5})
	if got.Window != 10*time.Minute || got.MaxFailures != 9 || got.StuckPoll != 5*time.Minute {
		t.Errorf("overrides not applied: %+v", got)
	}
	if got.MaxNetworkFailures != def.MaxNetworkFailures || got.MaxRollbacks != def.MaxRollbacks {
		t.Errorf("unset values should keep defaults: %+v", got)
	}
}

func TestClose_NilEventLog(t *testing.T) {
	app := &App{}
	if err := app.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
