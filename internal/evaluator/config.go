package evaluator

import (
	"time"

	"github.com/smallbiznis/partnerflow/internal/config"
)

// Config controls the evaluator loop.
type Config struct {
	Enabled     bool
	RunInterval time.Duration
	BatchSize   int
	RunTimeout  time.Duration
}

func DefaultConfig() Config {
	defaults := config.DefaultEvaluatorConfig()
	return Config{
		Enabled:     defaults.Enabled,
		RunInterval: defaults.RunInterval,
		BatchSize:   defaults.BatchSize,
		RunTimeout:  defaults.RunTimeout,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	return c
}

func fromHolder(holder *config.EvaluatorConfigHolder) Config {
	cfg := holder.Get()
	return Config{
		Enabled:     cfg.Enabled,
		RunInterval: cfg.RunInterval,
		BatchSize:   cfg.BatchSize,
		RunTimeout:  cfg.RunTimeout,
	}.withDefaults()
}
