package observability

import (
	"testing"

	"github.com/badrx15/creavisionbot/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestNewConfigCarriesTelemetry(t *testing.T) {
	cfg := NewConfig(config.Config{
		AppName:     " ",
		Environment: "production",
		AppVersion:  "1.2.3",
		Telemetry: config.TelemetryConfig{
			LogLevel:      "info",
			OtelEnabled:   true,
			OTLPEndpoint:  "collector:4317",
			OTLPProtocol:  "grpc",
			SamplingRatio: 0.5,
		},
	})

	assert.Equal(t, "creavisionbot", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.Version)
	assert.True(t, cfg.Telemetry.OtelEnabled)
	assert.Equal(t, "collector:4317", cfg.Telemetry.OTLPEndpoint)
	assert.False(t, cfg.Debug())
}

func TestConfigDebug(t *testing.T) {
	cases := []struct {
		env   string
		level string
		want  bool
	}{
		{env: "production", level: "info", want: false},
		{env: "production", level: "DEBUG", want: true},
		{env: "Development", level: "info", want: true},
		{env: "test", level: "", want: true},
	}
	for _, tc := range cases {
		cfg := Config{Environment: tc.env, Telemetry: config.TelemetryConfig{LogLevel: tc.level}}
		assert.Equal(t, tc.want, cfg.Debug(), "env=%s level=%s", tc.env, tc.level)
	}
}
