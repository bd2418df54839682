package telemetry

import (
	"testing"
	"time"

	"github.com/fyrsmithlabs/bellaqa/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, ProtocolGRPC, cfg.Protocol)
	assert.Equal(t, "bellaqa", cfg.ServiceName)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.Sampling.Rate)
	assert.Equal(t, 15*time.Second, cfg.Metrics.ExportInterval.Duration())
	assert.Equal(t, 5*time.Second, cfg.Shutdown.Timeout.Duration())
}

func TestConfig_Validate(t *testing.T) {
	enabled := func(mutate func(*Config)) *Config {
		cfg := NewDefaultConfig()
		cfg.Enabled = true
		mutate(cfg)
		return cfg
	}

	tests := []struct {
		name   string
		config *Config
		errMsg string
	}{
		{name: "defaults", config: NewDefaultConfig()},
		{name: "disabled skips checks", config: &Config{}},
		{name: "enabled local", config: enabled(func(*Config) {})},
		{name: "http protocol", config: enabled(func(c *Config) { c.Protocol = ProtocolHTTP })},
		{
			name:   "missing endpoint",
			config: enabled(func(c *Config) { c.Endpoint = "" }),
			errMsg: "endpoint is required",
		},
		{
			name:   "missing service name",
			config: enabled(func(c *Config) { c.ServiceName = "" }),
			errMsg: "service_name is required",
		},
		{
			name:   "unknown protocol",
			config: enabled(func(c *Config) { c.Protocol = "udp" }),
			errMsg: "protocol must be",
		},
		{
			name:   "insecure remote",
			config: enabled(func(c *Config) { c.Endpoint = "otel.example.com:4317" }),
			errMsg: "insecure connections",
		},
		{
			name: "secure remote",
			config: enabled(func(c *Config) {
				c.Endpoint = "https://otel.example.com:4318"
				c.Insecure = false
			}),
		},
		{
			name:   "sampling out of range",
			config: enabled(func(c *Config) { c.Sampling.Rate = 1.5 }),
			errMsg: "sampling.rate",
		},
		{
			name:   "zero export interval",
			config: enabled(func(c *Config) { c.Metrics.ExportInterval = config.Duration(0) }),
			errMsg: "export_interval",
		},
		{
			name:   "zero shutdown timeout",
			config: enabled(func(c *Config) { c.Shutdown.Timeout = 0 }),
			errMsg: "shutdown.timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConfig_IsLocalEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		want     bool
	}{
		{"localhost:4317", true},
		{"127.0.0.1:4317", true},
		{"127.1.2.3:4317", true},
		{"[::1]:4317", true},
		{"http://localhost:4318", true},
		{"collector:4317", false},
		{"10.0.0.5:4317", false},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			cfg := &Config{Endpoint: tt.endpoint}
			assert.Equal(t, tt.want, cfg.isLocalEndpoint())
		})
	}
}
