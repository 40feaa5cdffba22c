package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.NotNil(t, cfg)
	assert.Equal(t, 160, cfg.M)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidation(t *testing.T) {
	with := func(mutate func(*Config)) *Config {
		cfg := DefaultConfig()
		mutate(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name:    "valid config",
			config:  DefaultConfig(),
			wantErr: false,
		},
		{
			name:    "small ring",
			config:  with(func(c *Config) { c.M = 8 }),
			wantErr: false,
		},
		{
			name:    "HTTP API disabled",
			config:  with(func(c *Config) { c.HTTPPort = 0 }),
			wantErr: false,
		},
		{
			name:    "empty host",
			config:  with(func(c *Config) { c.Host = "" }),
			wantErr: true,
		},
		{
			name:    "invalid M (too large)",
			config:  with(func(c *Config) { c.M = 161 }),
			wantErr: true,
		},
		{
			name:    "invalid M (too small)",
			config:  with(func(c *Config) { c.M = 0 }),
			wantErr: true,
		},
		{
			name:    "invalid port (negative)",
			config:  with(func(c *Config) { c.Port = -1 }),
			wantErr: true,
		},
		{
			name:    "invalid port (too large)",
			config:  with(func(c *Config) { c.Port = 70000 }),
			wantErr: true,
		},
		{
			name:    "invalid HTTP port",
			config:  with(func(c *Config) { c.HTTPPort = -1 }),
			wantErr: true,
		},
		{
			name:    "HTTP port clashes with RPC port",
			config:  with(func(c *Config) { c.HTTPPort = c.Port }),
			wantErr: true,
		},
		{
			name:    "zero maintenance interval",
			config:  with(func(c *Config) { c.MaintenanceInterval = 0 }),
			wantErr: true,
		},
		{
			name:    "zero RPC timeout",
			config:  with(func(c *Config) { c.RPCTimeout = 0 }),
			wantErr: true,
		},
		{
			name:    "negative hop limit",
			config:  with(func(c *Config) { c.MaxLookupHops = -1 }),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigFields(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 8440, cfg.Port)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "", cfg.Join)
	assert.Equal(t, time.Second, cfg.MaintenanceInterval)
	assert.Equal(t, 5*time.Second, cfg.RPCTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, "127.0.0.1:8440", cfg.Address())
}

func TestLookupHopLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.M = 8
	assert.Equal(t, 16, cfg.LookupHopLimit())

	cfg.MaxLookupHops = 5
	assert.Equal(t, 5, cfg.LookupHopLimit())
}
