package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mjansen/ledgerlink/internal/credstore"
	"github.com/mjansen/ledgerlink/internal/ratelimit"
	"github.com/mjansen/ledgerlink/internal/upstream"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
	LogFormatOTLP LogFormat = "otlp"
)

// Mode selects how the broker sources credentials.
type Mode string

const (
	// ModeLocal serves a single credential set supplied via process
	// configuration.
	ModeLocal Mode = "local"

	// ModeRemote issues, stores and refreshes credentials for multiple
	// subjects against the upstream OAuth endpoint.
	ModeRemote Mode = "remote"
)

// StorageBackend represents the credential storage backends supported.
type StorageBackend string

const (
	StorageBackendMemory  StorageBackend = "memory"
	StorageBackendSQLite  StorageBackend = "sqlite"
	StorageBackendKeyring StorageBackend = "keyring"
)

// Default configuration values
const (
	DefaultConfigLogFormat       = LogFormatText
	DefaultConfigMode            = ModeLocal
	DefaultConfigServerHost      = "127.0.0.1"
	DefaultConfigServerPort      = 4300
	DefaultConfigShutdownTimeout = 5 * time.Second
	DefaultConfigStorageBackend  = StorageBackendMemory
	DefaultConfigLocalSubject    = "default"
	DefaultKeyringService        = "ledgerlink"
)

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// UpstreamConfig holds upstream API configuration. BaseURL is required:
// a broker without an upstream is a misconfiguration, caught at startup.
type UpstreamConfig struct {
	BaseURL  string `json:"base_url" validate:"required,url"`
	AuthURL  string `json:"auth_url" validate:"omitempty,url"`
	TokenURL string `json:"token_url" validate:"omitempty,url"`

	// OAuth client credentials for the refresh handshake (remote mode).
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// SessionConfig holds inbound session validation configuration.
type SessionConfig struct {
	// SigningSecret verifies inbound session tokens. Required in remote
	// mode; a missing value is a fatal startup error.
	SigningSecret string `json:"signing_secret,omitempty"`
}

// StorageConfig describes how to construct the credential store.
type StorageConfig struct {
	Backend StorageBackend `json:"backend" validate:"required,oneof=memory sqlite keyring"`

	// Backend-specific settings (mutually exclusive based on Backend)
	Path           string `json:"path,omitempty"`            // For sqlite storage: path to database file
	EnvKey         string `json:"env_key,omitempty"`         // For memory storage: optional seed variable
	KeyringService string `json:"keyring_service,omitempty"` // For keyring storage: service identifier
}

// NewStore creates a credential store from the storage configuration.
func (s *StorageConfig) NewStore() (credstore.Store, error) {
	switch s.Backend {
	case StorageBackendMemory:
		if s.EnvKey != "" {
			return credstore.NewMemoryStoreFromEnv(s.EnvKey)
		}
		return credstore.NewMemoryStore(), nil
	case StorageBackendSQLite:
		return credstore.OpenSQLiteStore(s.Path)
	case StorageBackendKeyring:
		return credstore.NewKeyringStore(s.KeyringService)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", s.Backend)
	}
}

// QuotaConfig holds the upstream request quota.
type QuotaConfig struct {
	Requests int           `json:"requests"`
	Window   time.Duration `json:"window"`
}

// NewLimiter creates the process-wide rate limiter for the quota.
func (q *QuotaConfig) NewLimiter() *ratelimit.Limiter {
	return ratelimit.New(q.Requests, q.Window)
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level `json:"log_level"`
	LogFormat LogFormat  `json:"log_format" validate:"oneof=text json otlp"`

	Mode Mode `json:"mode" validate:"required,oneof=local remote"`

	// LocalSubject is the subject id used for requests in local mode,
	// where callers carry no credentials.
	LocalSubject string `json:"local_subject,omitempty"`

	Server   ServerConfig   `json:"server"`
	Shutdown ShutdownConfig `json:"shutdown"`
	Upstream UpstreamConfig `json:"upstream"`
	Session  SessionConfig  `json:"session"`
	Storage  StorageConfig  `json:"storage"`
	Quota    QuotaConfig    `json:"quota"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Mode == "" {
		c.Mode = DefaultConfigMode
	}
	if c.LocalSubject == "" {
		c.LocalSubject = DefaultConfigLocalSubject
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultConfigServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultConfigServerPort
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = upstream.DefaultAPIBaseURL
	}
	if c.Upstream.AuthURL == "" {
		c.Upstream.AuthURL = upstream.Endpoint.AuthURL
	}
	if c.Upstream.TokenURL == "" {
		c.Upstream.TokenURL = upstream.Endpoint.TokenURL
	}
	if c.Storage.Backend == "" {
		if c.Mode == ModeRemote {
			c.Storage.Backend = StorageBackendSQLite
		} else {
			c.Storage.Backend = DefaultConfigStorageBackend
		}
	}
	if c.Quota.Requests == 0 {
		c.Quota.Requests = ratelimit.DefaultQuota
	}
	if c.Quota.Window == 0 {
		c.Quota.Window = ratelimit.DefaultWindow
	}

	// Dynamic defaults based on storage backend
	switch c.Storage.Backend {
	case StorageBackendSQLite:
		if c.Storage.Path == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("storage.path required (auto-detect failed: %w)", err)
			}
			c.Storage.Path = filepath.Join(configDir, "ledgerlink", "credentials.db")
		}
	case StorageBackendKeyring:
		if c.Storage.KeyringService == "" {
			c.Storage.KeyringService = DefaultKeyringService
		}
	case StorageBackendMemory:
		// env_key is optional (unseeded store when absent)
	}

	return nil
}

// Validate validates the configuration using struct tags and mode-specific
// cross-field rules. Missing required values are fatal at startup, never
// runtime-recoverable.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.Mode == ModeRemote {
		if c.Session.SigningSecret == "" {
			return errors.New("session.signing_secret required in remote mode")
		}
		if c.Upstream.ClientID == "" {
			return errors.New("upstream.client_id required in remote mode")
		}
		// Memory storage loses issued credentials on restart; every
		// remote subject would need re-authorization.
		if c.Storage.Backend == StorageBackendMemory {
			return errors.New("remote mode requires durable storage, use sqlite or keyring")
		}
	}

	switch c.Storage.Backend {
	case StorageBackendSQLite:
		if c.Storage.Path == "" {
			return errors.New("storage.path required for sqlite storage")
		}
	case StorageBackendKeyring:
		if c.Storage.KeyringService == "" {
			return errors.New("storage.keyring_service required for keyring storage")
		}
	}

	return nil
}
