// Package internal provides the App struct that wires all components of
// RiskDesk together and initializes the CLI layer.
package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/valter-silva-au/riskdesk/internal/api"
	"github.com/valter-silva-au/riskdesk/internal/cli"
	"github.com/valter-silva-au/riskdesk/internal/config"
	"github.com/valter-silva-au/riskdesk/internal/events"
	"github.com/valter-silva-au/riskdesk/internal/logging"
	"github.com/valter-silva-au/riskdesk/internal/observability"
	"github.com/valter-silva-au/riskdesk/internal/storage"
	"github.com/valter-silva-au/riskdesk/pkg/models"
)

// EventLogFile is the JSONL activity log, relative to the base path.
const EventLogFile = ".riskdesk_events.jsonl"

// HomeEnv overrides the base path lookup.
const HomeEnv = "RISKDESK_HOME"

// App holds all service dependencies for RiskDesk.
type App struct {
	BasePath string

	// Configuration
	ConfigMgr config.Manager
	Config    *models.Config

	// Diagnostics
	Logger  *zap.Logger
	syncLog func()

	// Backend and local state
	Backend api.Backend
	Prefs   storage.PreferencesManager
	Bus     *events.Bus

	// Observability
	EventLog    observability.EventLog
	Recorder    *observability.Recorder
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
}

// NewApp creates and wires all components of RiskDesk. basePath is the
// directory holding .riskdeskrc and the local state files.
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	app.ConfigMgr = config.NewManager(basePath)
	cfg, err := app.ConfigMgr.Load()
	if err != nil {
		return nil, err
	}
	if err := app.ConfigMgr.Validate(cfg); err != nil {
		return nil, err
	}
	app.Config = cfg

	// --- Logging ---
	logger, syncLog, err := logging.New(basePath, cfg.Log.File, cfg.Log.Level)
	if err != nil {
		// Non-fatal: run without diagnostics if the log file can't be opened.
		logger, syncLog = zap.NewNop(), func() {}
	}
	app.Logger = logger
	app.syncLog = syncLog

	// --- Backend ---
	app.Backend, err = api.New(cfg.API)
	if err != nil {
		return nil, fmt.Errorf("creating backend: %w", err)
	}
	app.Logger.Debug("backend configured",
		zap.Bool("mock", cfg.API.Mock),
		zap.String("base_url", cfg.API.BaseURL))

	// --- Local state ---
	app.Prefs = storage.NewPreferencesManager(basePath)
	if err := app.Prefs.Load(); err != nil {
		// Non-fatal: start with empty preferences.
		app.Logger.Warn("loading preferences", zap.Error(err))
	}
	app.Bus = events.NewBus()

	// --- Observability ---
	app.EventLog, err = observability.NewJSONLEventLog(filepath.Join(basePath, EventLogFile))
	if err != nil {
		// Non-fatal: disable observability if log can't be created.
		app.Logger.Warn("event log disabled", zap.Error(err))
		app.EventLog = nil
	}
	app.Recorder = &observability.Recorder{Log: app.EventLog}
	if app.EventLog != nil {
		app.AlertEngine = observability.NewAlertEngine(app.EventLog, alertThresholds(cfg.Notifications.Alerts))
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
	}
	if cfg.Notifications.Enabled && cfg.Notifications.Slack.WebhookURL != "" {
		app.Notifier = observability.NewSlackNotifier(cfg.Notifications.Slack.WebhookURL)
	}

	// --- Wire CLI package-level variables ---
	cli.BasePath = basePath
	cli.Cfg = cfg
	cli.ConfigMgr = app.ConfigMgr
	cli.Logger = app.Logger
	cli.Backend = app.Backend
	cli.Prefs = app.Prefs
	cli.Bus = app.Bus

	cli.EventLog = app.EventLog
	cli.Recorder = app.Recorder
	cli.AlertEngine = app.AlertEngine
	cli.MetricsCalc = app.MetricsCalc
	cli.Notifier = app.Notifier

	return app, nil
}

// alertThresholds overlays configured values on the defaults; zero keeps the
// default.
func alertThresholds(c models.AlertConfig) observability.AlertThresholds {
	t := observability.DefaultAlertThresholds()
	if c.WindowMinutes > 0 {
		t.Window = time.Duration(c.WindowMinutes) * time.Minute
	}
	if c.MaxFailures > 0 {
		t.MaxFailures = c.MaxFailures
	}
	if c.MaxNetworkFailures > 0 {
		t.MaxNetworkFailures = c.MaxNetworkFailures
	}
	if c.MaxRollbacks > 0 {
		t.MaxRollbacks = c.MaxRollbacks
	}
	if c.StuckPollMinutes > 0 {
		t.StuckPoll = time.Duration(c.StuckPollMinutes) * time.Minute
	}
	return t
}

// Close releases resources held by the App: it saves preferences, closes the
// event log and flushes the logger. It is safe to call Close on an App whose
// EventLog is nil.
func (a *App) Close() error {
	var firstErr error
	if a.Prefs != nil {
		if err := a.Prefs.Save(); err != nil {
			firstErr = err
		}
	}
	if a.EventLog != nil {
		if err := a.EventLog.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.syncLog != nil {
		a.syncLog()
	}
	return firstErr
}

// ResolveBasePath determines the RiskDesk data directory. It checks the
// RISKDESK_HOME env var, then walks up from the current directory looking
// for .riskdeskrc, then falls back to the current directory.
func ResolveBasePath() string {
	if home := os.Getenv(HomeEnv); home != "" {
		return home
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, config.FileName)); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	cwd, _ := os.Getwd()
	return cwd
}
