package observability

import (
	"strings"

	"github.com/badrx15/creavisionbot/internal/config"
)

// Config is the telemetry view of the application config shared by the
// logger, tracer and meter providers.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	Telemetry config.TelemetryConfig
}

func NewConfig(cfg config.Config) Config {
	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = "creavisionbot"
	}
	return Config{
		ServiceName: name,
		Environment: strings.TrimSpace(cfg.Environment),
		Version:     strings.TrimSpace(cfg.AppVersion),
		Telemetry:   cfg.Telemetry,
	}
}

// Debug is true for debug logging or a development environment.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.Telemetry.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}
