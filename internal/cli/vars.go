package cli

import (
	"go.uber.org/zap"

	"github.com/valter-silva-au/riskdesk/internal/api"
	"github.com/valter-silva-au/riskdesk/internal/config"
	"github.com/valter-silva-au/riskdesk/internal/events"
	"github.com/valter-silva-au/riskdesk/internal/observability"
	"github.com/valter-silva-au/riskdesk/internal/storage"
	"github.com/valter-silva-au/riskdesk/pkg/models"
)

// Service instances, set during app initialization in app.go.
var (
	BasePath  string
	Cfg       *models.Config
	ConfigMgr config.Manager
	Logger    = zap.NewNop()
	Backend   api.Backend
	Prefs     storage.PreferencesManager
	Bus       *events.Bus
)

// Observability service instances, set during app initialization in app.go.
var (
	EventLog    observability.EventLog
	Recorder    *observability.Recorder
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
)
