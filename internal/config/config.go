// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger       LoggerConfig       `mapstructure:"logger" yaml:"logger"`
	State        StateConfig        `mapstructure:"state" yaml:"state"`
	Mission      MissionConfig      `mapstructure:"mission" yaml:"mission"`
	Integrations IntegrationsConfig `mapstructure:"integrations" yaml:"integrations"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// StateConfig locates durable mission storage. Dir defaults to
// ~/.missionctl; the active mission document lives under Dir/active and
// archived missions under Dir/archive.
type StateConfig struct {
	Dir        string `mapstructure:"dir" yaml:"dir"`
	ArchiveDir string `mapstructure:"archive_dir" yaml:"archive_dir"`
}

// ActiveDocumentPath returns the path of the active mission document.
func (s StateConfig) ActiveDocumentPath() string {
	return filepath.Join(s.Dir, "active", "mission.json")
}

// MissionConfig carries mission construction defaults.
type MissionConfig struct {
	DefaultCycleBudget int    `mapstructure:"default_cycle_budget" yaml:"default_cycle_budget"`
	Workspace          string `mapstructure:"workspace" yaml:"workspace"`
}

// IntegrationsConfig enables and tunes the event subscribers.
type IntegrationsConfig struct {
	Checkpoint CheckpointConfig `mapstructure:"checkpoint" yaml:"checkpoint"`
	Transcript TranscriptConfig `mapstructure:"transcript" yaml:"transcript"`
	Git        GitConfig        `mapstructure:"git" yaml:"git"`
	Analytics  AnalyticsConfig  `mapstructure:"analytics" yaml:"analytics"`
}

// CheckpointConfig configures the file-snapshot subscriber.
type CheckpointConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
}

// TranscriptConfig configures the append-only event log. The transcript is
// audit-only; the mission document stays the source of truth.
type TranscriptConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// GitConfig configures the workspace git checkpointer.
type GitConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	AuthorName  string `mapstructure:"author_name" yaml:"author_name"`
	AuthorEmail string `mapstructure:"author_email" yaml:"author_email"`
}

// AnalyticsConfig configures the Postgres event recorder.
type AnalyticsConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	DatabaseURL     string        `mapstructure:"database_url" yaml:"-"`
	EventsPerSecond float64       `mapstructure:"events_per_second" yaml:"events_per_second"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	home, err := homedir.Dir()
	if err != nil {
		home = "."
	}
	stateDir := filepath.Join(home, ".missionctl")

	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "missionctl")
	v.SetDefault("logger.log_file", filepath.Join(stateDir, "missionctl.log"))
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- State --
	v.SetDefault("state.dir", stateDir)
	v.SetDefault("state.archive_dir", filepath.Join(stateDir, "archive"))

	// -- Mission --
	v.SetDefault("mission.default_cycle_budget", 3)
	v.SetDefault("mission.workspace", ".")

	// -- Integrations --
	v.SetDefault("integrations.checkpoint.enabled", true)
	v.SetDefault("integrations.checkpoint.dir", filepath.Join(stateDir, "checkpoints"))
	v.SetDefault("integrations.transcript.enabled", true)
	v.SetDefault("integrations.transcript.file", filepath.Join(stateDir, "transcript.jsonl"))
	v.SetDefault("integrations.transcript.max_size", 20)
	v.SetDefault("integrations.transcript.max_backups", 5)
	v.SetDefault("integrations.transcript.max_age", 90)
	v.SetDefault("integrations.transcript.compress", true)
	v.SetDefault("integrations.git.enabled", false)
	v.SetDefault("integrations.git.author_name", "missionctl")
	v.SetDefault("integrations.git.author_email", "missionctl@localhost")
	v.SetDefault("integrations.analytics.enabled", false)
	v.SetDefault("integrations.analytics.events_per_second", 20.0)
	v.SetDefault("integrations.analytics.connect_timeout", "5s")
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are static; this only fires on a programming error.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Sensitive values come from the environment, never the config file.
	v.BindEnv("integrations.analytics.database_url", "MISSIONCTL_ANALYTICS_DB_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.State.Dir == "" {
		return fmt.Errorf("state.dir is a required configuration field")
	}
	if c.Mission.DefaultCycleBudget < 1 {
		return fmt.Errorf("mission.default_cycle_budget must be >= 1")
	}
	if c.Integrations.Analytics.Enabled {
		if c.Integrations.Analytics.DatabaseURL == "" {
			return fmt.Errorf("analytics enabled but MISSIONCTL_ANALYTICS_DB_URL is not set")
		}
		if c.Integrations.Analytics.EventsPerSecond <= 0 {
			return fmt.Errorf("integrations.analytics.events_per_second must be positive")
		}
	}
	if c.Integrations.Git.Enabled {
		if c.Integrations.Git.AuthorName == "" || c.Integrations.Git.AuthorEmail == "" {
			return fmt.Errorf("integrations.git.author_name and author_email are required when git checkpointing is enabled")
		}
	}
	return nil
}
