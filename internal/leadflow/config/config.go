package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v6"
)

// DatabaseConfig selects the persistent backend. Both fields must be set for
// MongoDB to be tried at all.
type DatabaseConfig struct {
	URL  string `env:"DATABASE_URL" json:"url"`
	Name string `env:"DATABASE_NAME" json:"name"`

	// ProbeTimeout bounds the one-time startup probe.
	ProbeTimeout time.Duration `env:"DATABASE_PROBE_TIMEOUT" envDefault:"2s" json:"probe_timeout"`
}

// Enabled reports whether MongoDB is configured.
func (c DatabaseConfig) Enabled() bool {
	return c.URL != "" && c.Name != ""
}

// RealtimeConfig holds configuration for the websocket fan-out.
type RealtimeConfig struct {
	// WebSocketPath is the route prefix; the project id is appended.
	WebSocketPath string `env:"WEBSOCKET_PATH" envDefault:"/ws/projects" json:"websocket_path"`

	// WriteTimeout is the per-send write deadline applied to every observer.
	WriteTimeout time.Duration `env:"REALTIME_WRITE_TIMEOUT" envDefault:"5s" json:"write_timeout"`
}

// JournalConfig configures the optional Redis stream journal of realtime events.
type JournalConfig struct {
	Addr     string `env:"REDIS_ADDR" json:"addr"`
	Password string `env:"REDIS_PASSWORD" json:"-"`
	Database int    `env:"REDIS_DB" envDefault:"0" json:"database"`

	StreamPrefix string `env:"JOURNAL_STREAM_PREFIX" envDefault:"leadflow:events:" json:"stream_prefix"`
	MaxLen       int64  `env:"JOURNAL_MAX_LEN" envDefault:"1000" json:"max_len"`
}

// Enabled reports whether a Redis address was given.
func (c JournalConfig) Enabled() bool {
	return c.Addr != ""
}

// DemoConfig drives the demo bootstrap.
type DemoConfig struct {
	ProjectName string `env:"DEMO_PROJECT_NAME" envDefault:"Leadflow Demo" json:"project_name"`
	LeadCount   int    `env:"DEMO_LEAD_COUNT" envDefault:"35" json:"lead_count"`
}

type TracingConfig struct {
	Enabled     bool   `env:"TRACING_ENABLED" envDefault:"false" json:"enabled"`
	ServiceName string `env:"TRACING_SERVICE_NAME" envDefault:"leadflow" json:"service_name"`
}

// LeadflowConfig holds all configuration for the Leadflow module.
type LeadflowConfig struct {
	Database DatabaseConfig `json:"database"`
	Realtime RealtimeConfig `json:"realtime"`
	Journal  JournalConfig  `json:"journal"`
	Demo     DemoConfig     `json:"demo"`
	Tracing  TracingConfig  `json:"tracing"`
}

// LoadConfig loads configuration from environment variables and applies defaults.
func LoadConfig() (*LeadflowConfig, error) {
	cfg := &LeadflowConfig{}

	if err := env.Parse(&cfg.Database); err != nil {
		return nil, errors.New("failed to load database configuration from environment: " + err.Error())
	}
	if err := env.Parse(&cfg.Realtime); err != nil {
		return nil, errors.New("failed to load realtime configuration from environment: " + err.Error())
	}
	if err := env.Parse(&cfg.Journal); err != nil {
		return nil, errors.New("failed to load journal configuration from environment: " + err.Error())
	}
	if err := env.Parse(&cfg.Demo); err != nil {
		return nil, errors.New("failed to load demo configuration from environment: " + err.Error())
	}
	if err := env.Parse(&cfg.Tracing); err != nil {
		return nil, errors.New("failed to load tracing configuration from environment: " + err.Error())
	}

	cfg.Validate()
	return cfg, nil
}

// Validate replaces unusable values with their defaults.
func (c *LeadflowConfig) Validate() {
	d := DefaultConfig()
	if c.Database.ProbeTimeout <= 0 {
		c.Database.ProbeTimeout = d.Database.ProbeTimeout
	}
	if c.Realtime.WebSocketPath == "" {
		c.Realtime.WebSocketPath = d.Realtime.WebSocketPath
	}
	if c.Realtime.WriteTimeout <= 0 {
		c.Realtime.WriteTimeout = d.Realtime.WriteTimeout
	}
	if c.Journal.StreamPrefix == "" {
		c.Journal.StreamPrefix = d.Journal.StreamPrefix
	}
	if c.Journal.MaxLen <= 0 {
		c.Journal.MaxLen = d.Journal.MaxLen
	}
	if c.Demo.ProjectName == "" {
		c.Demo.ProjectName = d.Demo.ProjectName
	}
	if c.Demo.LeadCount < 0 {
		c.Demo.LeadCount = d.Demo.LeadCount
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = d.Tracing.ServiceName
	}
}

// DefaultConfig returns a LeadflowConfig with default values and no
// persistent backend or journal.
func DefaultConfig() *LeadflowConfig {
	return &LeadflowConfig{
		Database: DatabaseConfig{
			ProbeTimeout: 2 * time.Second,
		},
		Realtime: RealtimeConfig{
			WebSocketPath: "/ws/projects",
			WriteTimeout:  5 * time.Second,
		},
		Journal: JournalConfig{
			StreamPrefix: "leadflow:events:",
			MaxLen:       1000,
		},
		Demo: DemoConfig{
			ProjectName: "Leadflow Demo",
			LeadCount:   35,
		},
		Tracing: TracingConfig{
			ServiceName: "leadflow",
		},
	}
}
