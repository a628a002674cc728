package app

import (
	"strings"
	"testing"

	"github.com/mjansen/ledgerlink/internal/ratelimit"
	"github.com/mjansen/ledgerlink/internal/upstream"
)

func TestDefaultConfig(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default() error: %v", err)
	}

	if cfg.Mode != ModeLocal {
		t.Errorf("Mode = %q, want %q", cfg.Mode, ModeLocal)
	}
	if cfg.Server.Host != DefaultConfigServerHost {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, DefaultConfigServerHost)
	}
	if cfg.Server.Port != DefaultConfigServerPort {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, DefaultConfigServerPort)
	}
	if cfg.Upstream.BaseURL != upstream.DefaultAPIBaseURL {
		t.Errorf("Upstream.BaseURL = %q, want %q", cfg.Upstream.BaseURL, upstream.DefaultAPIBaseURL)
	}
	if cfg.Upstream.TokenURL != upstream.Endpoint.TokenURL {
		t.Errorf("Upstream.TokenURL = %q, want %q", cfg.Upstream.TokenURL, upstream.Endpoint.TokenURL)
	}
	if cfg.Storage.Backend != StorageBackendMemory {
		t.Errorf("Storage.Backend = %q, want %q", cfg.Storage.Backend, StorageBackendMemory)
	}
	if cfg.Quota.Requests != ratelimit.DefaultQuota {
		t.Errorf("Quota.Requests = %d, want %d", cfg.Quota.Requests, ratelimit.DefaultQuota)
	}
	if cfg.Quota.Window != ratelimit.DefaultWindow {
		t.Errorf("Quota.Window = %v, want %v", cfg.Quota.Window, ratelimit.DefaultWindow)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults: %v", err)
	}
}

func TestApplyDefaultsRemoteStorage(t *testing.T) {
	cfg := &Config{Mode: ModeRemote}
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatalf("ApplyDefaults() error: %v", err)
	}

	if cfg.Storage.Backend != StorageBackendSQLite {
		t.Errorf("Storage.Backend = %q, want %q", cfg.Storage.Backend, StorageBackendSQLite)
	}
	if cfg.Storage.Path == "" {
		t.Error("Storage.Path not defaulted for sqlite backend")
	}
}

func TestValidateRemoteMode(t *testing.T) {
	base := func() *Config {
		cfg, err := Default()
		if err != nil {
			t.Fatalf("Default() error: %v", err)
		}
		cfg.Mode = ModeRemote
		cfg.Session.SigningSecret = "secret"
		cfg.Upstream.ClientID = "client-id"
		cfg.Storage.Backend = StorageBackendSQLite
		cfg.Storage.Path = "/tmp/credentials.db"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "missing signing secret",
			mutate:  func(c *Config) { c.Session.SigningSecret = "" },
			wantErr: "signing_secret",
		},
		{
			name:    "missing client id",
			mutate:  func(c *Config) { c.Upstream.ClientID = "" },
			wantErr: "client_id",
		},
		{
			name: "memory storage rejected",
			mutate: func(c *Config) {
				c.Storage.Backend = StorageBackendMemory
				c.Storage.Path = ""
			},
			wantErr: "durable storage",
		},
		{
			name: "sqlite without path",
			mutate: func(c *Config) {
				c.Storage.Path = ""
			},
			wantErr: "storage.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateBadUpstreamURL(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default() error: %v", err)
	}
	cfg.Upstream.BaseURL = "not a url"

	if err := cfg.Validate(); err == nil {
		t.Error("Validate() accepted malformed upstream base url")
	}
}
