package models

// APIConfig selects and configures the backend the client talks to.
type APIConfig struct {
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	Mock           bool   `yaml:"mock" mapstructure:"mock"`
	Token          string `yaml:"token,omitempty" mapstructure:"token"`
	TimeoutSeconds int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	SeedFile       string `yaml:"seed_file,omitempty" mapstructure:"seed_file"`
}

// PollingConfig controls the document status polling loop.
type PollingConfig struct {
	IntervalSeconds int `yaml:"interval_seconds" mapstructure:"interval_seconds"`
}

// LogConfig controls diagnostic logging.
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file,omitempty" mapstructure:"file"`
}

// SlackConfig holds the webhook used to forward error notifications.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url,omitempty" mapstructure:"webhook_url"`
}

// AlertConfig overrides the alert thresholds evaluated over the event log.
// Zero values keep the defaults.
type AlertConfig struct {
	WindowMinutes      int `yaml:"window_minutes,omitempty" mapstructure:"window_minutes"`
	MaxFailures        int `yaml:"max_failures,omitempty" mapstructure:"max_failures"`
	MaxNetworkFailures int `yaml:"max_network_failures,omitempty" mapstructure:"max_network_failures"`
	MaxRollbacks       int `yaml:"max_rollbacks,omitempty" mapstructure:"max_rollbacks"`
	StuckPollMinutes   int `yaml:"stuck_poll_minutes,omitempty" mapstructure:"stuck_poll_minutes"`
}

// NotificationConfig groups external notification channels.
type NotificationConfig struct {
	Enabled bool        `yaml:"enabled" mapstructure:"enabled"`
	Slack   SlackConfig `yaml:"slack" mapstructure:"slack"`
	Alerts  AlertConfig `yaml:"alerts" mapstructure:"alerts"`
}

// DownloadConfig controls where downloaded documents are saved.
type DownloadConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// Config holds client settings read from .riskdeskrc via Viper.
type Config struct {
	API           APIConfig          `yaml:"api" mapstructure:"api"`
	Polling       PollingConfig      `yaml:"polling" mapstructure:"polling"`
	Download      DownloadConfig     `yaml:"download" mapstructure:"download"`
	Log           LogConfig          `yaml:"log" mapstructure:"log"`
	Notifications NotificationConfig `yaml:"notifications" mapstructure:"notifications"`
}

// Preferences is UI state remembered between runs.
type Preferences struct {
	LastProjectID string         `yaml:"last_project_id,omitempty"`
	LastSearch    string         `yaml:"last_search,omitempty"`
	LastStatus    DocumentStatus `yaml:"last_status,omitempty"`
	// RecentProjects lists project IDs, most recently selected first.
	RecentProjects []string `yaml:"recent_projects,omitempty"`
}
