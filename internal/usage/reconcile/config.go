package reconcile

import (
	"time"

	"github.com/smallbiznis/htmlpdf/internal/config"
)

// Config controls the outbox reconcile loop.
type Config struct {
	Enabled      bool
	BatchSize    int
	PollInterval time.Duration
	RunTimeout   time.Duration
	RowTimeout   time.Duration
	// RecordGrace is how long a rendered row may wait for its request to record it.
	RecordGrace time.Duration
	// StaleAfter marks pending rows whose render never finished.
	StaleAfter time.Duration
	LeaderTTL  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		BatchSize:    100,
		PollInterval: 30 * time.Second,
		RunTimeout:   20 * time.Second,
		RowTimeout:   2 * time.Second,
		RecordGrace:  time.Minute,
		StaleAfter:   10 * time.Minute,
		LeaderTTL:    time.Minute,
	}
}

// FromAppConfig overlays the environment settings on the defaults.
func FromAppConfig(cfg config.Config) Config {
	out := DefaultConfig()
	out.Enabled = cfg.Reconcile.Enabled
	out.PollInterval = cfg.Reconcile.PollInterval
	out.StaleAfter = cfg.Reconcile.StaleAfter
	return out.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	if c.RowTimeout <= 0 {
		c.RowTimeout = defaults.RowTimeout
	}
	if c.RecordGrace <= 0 {
		c.RecordGrace = defaults.RecordGrace
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = defaults.StaleAfter
	}
	if c.LeaderTTL <= 0 {
		c.LeaderTTL = defaults.LeaderTTL
	}
	return c
}
