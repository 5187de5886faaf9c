package sweeper

import (
	"time"

	"github.com/badrx15/creavisionbot/internal/config"
)

// Config controls the sweep period and the back-off after a failed sweep.
type Config struct {
	Timeout    time.Duration
	RetryDelay time.Duration
	RunTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Timeout:    30 * time.Minute,
		RetryDelay: time.Minute,
		RunTimeout: 2 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Timeout:    cfg.Conversation.Timeout,
		RetryDelay: cfg.Conversation.SweepRetryDelay,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = defaults.Timeout
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaults.RetryDelay
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	return c
}
