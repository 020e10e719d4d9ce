package hunt

import (
	"time"

	"github.com/hazyhaar/chasse/hunt/internal/fetch"
)

// Config configures the analysis service.
type Config struct {
	// Fetch settings for the fetch_content tool.
	Fetch fetch.Config

	// SettingsPath is the JSON file backing the preference store.
	SettingsPath string

	// ToolAddr is the listen address for the worker tool link.
	ToolAddr string

	// WorkerCommand and WorkerArgs launch the analysis worker binary.
	WorkerCommand string
	WorkerArgs    []string

	// MaxSessionDuration bounds a whole analysis run.
	MaxSessionDuration time.Duration

	// IdleTimeout fails a session with no tool activity for this long.
	IdleTimeout time.Duration

	// GracePeriod is how long a signalled worker gets before being killed.
	GracePeriod time.Duration
}

func (c *Config) defaults() {
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 30 * time.Second
	}
	if c.Fetch.MaxBytes <= 0 {
		c.Fetch.MaxBytes = 10 * 1024 * 1024
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "chasse/1.0"
	}
	if c.SettingsPath == "" {
		c.SettingsPath = "data/settings.json"
	}
	if c.ToolAddr == "" {
		c.ToolAddr = "127.0.0.1:0"
	}
	if c.WorkerCommand == "" {
		c.WorkerCommand = "chasse-agent"
	}
	if c.MaxSessionDuration <= 0 {
		c.MaxSessionDuration = 2 * time.Minute
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Second
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = 5 * time.Second
	}
}

func defaultConfig() *Config {
	c := &Config{}
	c.defaults()
	return c
}
