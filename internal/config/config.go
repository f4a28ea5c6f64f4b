// Package config loads riskdesk settings from .riskdeskrc and RISKDESK_*
// environment variables using Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/valter-silva-au/riskdesk/internal/logging"
	"github.com/valter-silva-au/riskdesk/pkg/models"
)

// FileName is the config file looked up in the base path. A .yaml or .yml
// extension is also accepted.
const FileName = ".riskdeskrc"

// EnvPrefix prefixes environment overrides, e.g. RISKDESK_API_BASE_URL.
const EnvPrefix = "RISKDESK"

// Manager loads, validates and writes the client configuration.
type Manager interface {
	Load() (*models.Config, error)
	Validate(cfg *models.Config) error
	Save(cfg *models.Config) (string, error)
}

type viperManager struct {
	basePath string
}

// NewManager creates a Manager reading from basePath.
func NewManager(basePath string) Manager {
	return &viperManager{basePath: basePath}
}

// Default returns the configuration used when no file is present.
func Default() *models.Config {
	return &models.Config{
		API: models.APIConfig{
			BaseURL:        "http://localhost:8080",
			TimeoutSeconds: 30,
		},
		Polling:  models.PollingConfig{IntervalSeconds: 3},
		Download: models.DownloadConfig{Dir: "."},
		Log: models.LogConfig{
			Level: "info",
			File:  logging.DefaultFile,
		},
	}
}

func setDefaults(v *viper.Viper, cfg *models.Config) {
	v.SetDefault("api.base_url", cfg.API.BaseURL)
	v.SetDefault("api.mock", cfg.API.Mock)
	v.SetDefault("api.token", cfg.API.Token)
	v.SetDefault("api.timeout_seconds", cfg.API.TimeoutSeconds)
	v.SetDefault("api.seed_file", cfg.API.SeedFile)
	v.SetDefault("polling.interval_seconds", cfg.Polling.IntervalSeconds)
	v.SetDefault("download.dir", cfg.Download.Dir)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("notifications.enabled", cfg.Notifications.Enabled)
	v.SetDefault("notifications.slack.webhook_url", cfg.Notifications.Slack.WebhookURL)
	v.SetDefault("notifications.alerts.window_minutes", 0)
	v.SetDefault("notifications.alerts.max_failures", 0)
	v.SetDefault("notifications.alerts.max_network_failures", 0)
	v.SetDefault("notifications.alerts.max_rollbacks", 0)
	v.SetDefault("notifications.alerts.stuck_poll_minutes", 0)
}

// Load reads .riskdeskrc from the base path, applies environment overrides
// and fills the rest with defaults. A missing file is not an error.
func (m *viperManager) Load() (*models.Config, error) {
	v := viper.New()
	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(m.basePath)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading %s: %w", FileName, err)
		}
	}

	cfg := &models.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", FileName, err)
	}
	if cfg.API.SeedFile != "" && !filepath.IsAbs(cfg.API.SeedFile) {
		cfg.API.SeedFile = filepath.Join(m.basePath, cfg.API.SeedFile)
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (m *viperManager) Validate(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string

	if !cfg.API.Mock {
		if cfg.API.BaseURL == "" {
			errs = append(errs, "api.base_url must not be empty unless api.mock is set")
		} else if u, err := url.Parse(cfg.API.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Sprintf("api.base_url %q must be an http(s) URL", cfg.API.BaseURL))
		}
	}
	if cfg.API.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Sprintf("api.timeout_seconds must be positive, got %d", cfg.API.TimeoutSeconds))
	}
	if cfg.API.Mock && cfg.API.SeedFile != "" {
		if _, err := os.Stat(cfg.API.SeedFile); err != nil {
			errs = append(errs, fmt.Sprintf("api.seed_file %q cannot be read", cfg.API.SeedFile))
		}
	}
	if cfg.Polling.IntervalSeconds < 1 {
		errs = append(errs, fmt.Sprintf("polling.interval_seconds must be at least 1, got %d", cfg.Polling.IntervalSeconds))
	}
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, fmt.Sprintf("log.level: %v", err))
	}
	if cfg.Notifications.Enabled {
		hook := cfg.Notifications.Slack.WebhookURL
		if u, err := url.Parse(hook); hook == "" || err != nil || u.Scheme != "https" {
			errs = append(errs, "notifications.slack.webhook_url must be an https URL when notifications are enabled")
		}
	}
	a := cfg.Notifications.Alerts
	if a.WindowMinutes < 0 || a.MaxFailures < 0 || a.MaxNetworkFailures < 0 || a.MaxRollbacks < 0 || a.StuckPollMinutes < 0 {
		errs = append(errs, "notifications.alerts values must be non-negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Save writes cfg to <base>/.riskdeskrc and returns the path.
func (m *viperManager) Save(cfg *models.Config) (string, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encoding config: %w", err)
	}
	path := filepath.Join(m.basePath, FileName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}
