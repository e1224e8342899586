package config

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "Format",
		},
		{
			name:    "zero shutdown timeout",
			mutate:  func(c *Config) { c.Server.ShutdownTimeout = 0 },
			wantErr: "ShutdownTimeout",
		},
		{
			name:    "unknown store",
			mutate:  func(c *Config) { c.Store.Type = "tape" },
			wantErr: "Type",
		},
		{
			name:    "negative workers",
			mutate:  func(c *Config) { c.Adapters.FSBroker.Workers = -1 },
			wantErr: "Workers",
		},
		{
			name: "rate limit without rates",
			mutate: func(c *Config) {
				c.Adapters.FSBroker.RateLimit.Enabled = true
			},
			wantErr: "rate_limit",
		},
		{
			name: "metrics port collides with adapter",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Port = c.Adapters.FSBroker.Port
			},
			wantErr: "metrics.port",
		},
		{
			name:    "discovery without endpoints",
			mutate:  func(c *Config) { c.Discovery.Enabled = true },
			wantErr: "discovery.endpoints",
		},
		{
			name: "discovery with bad advertise address",
			mutate: func(c *Config) {
				c.Discovery.Enabled = true
				c.Discovery.Endpoints = []string{"localhost:2379"}
				c.Discovery.AdvertiseAddr = "no-port"
			},
			wantErr: "advertise_addr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Expected valid config, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}
