package main

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk configuration for the server binary.
// Values under provider.supabase may be overridden with the
// SUPABASE_PROJECT_URL and SUPABASE_API_KEY environment variables so
// secrets can stay out of the config file.
type fileConfig struct {
	ListenAddr string `yaml:"listen_addr"`

	// Issuer pins the externally visible base URL. When empty every
	// endpoint derives it from the request origin.
	Issuer string `yaml:"issuer"`

	TrustProxy        bool `yaml:"trust_proxy"`
	TrustedProxyCount int  `yaml:"trusted_proxy_count"`

	AuthorizationCodeTTL int64 `yaml:"authorization_code_ttl"`
	AccessTokenTTL       int64 `yaml:"access_token_ttl"`

	RequiredScope      string   `yaml:"required_scope"`
	AllowUnscopedUsers bool     `yaml:"allow_unscoped_users"`
	SupportedScopes    []string `yaml:"supported_scopes"`

	Provider providerConfig `yaml:"provider"`

	Security struct {
		// EncryptionKey is a base64 encoded 32 byte key. Empty disables
		// session encryption at rest.
		EncryptionKey string `yaml:"encryption_key"`
		AuditLogging  bool   `yaml:"audit_logging"`
	} `yaml:"security"`

	Telemetry struct {
		Enabled        bool   `yaml:"enabled"`
		ServiceName    string `yaml:"service_name"`
		ServiceVersion string `yaml:"service_version"`
		LogClientIPs   bool   `yaml:"log_client_ips"`
	} `yaml:"telemetry"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

type providerConfig struct {
	// Name selects the identity provider: "supabase" or "local".
	Name string `yaml:"name"`

	Supabase struct {
		ProjectURL string `yaml:"project_url"`
		APIKey     string `yaml:"api_key"`
	} `yaml:"supabase"`
}

func loadConfig(path string) (*fileConfig, error) {
	cfg := &fileConfig{}
	cfg.ListenAddr = ":8080"
	cfg.Provider.Name = "local"
	cfg.Security.AuditLogging = true
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("SUPABASE_PROJECT_URL"); v != "" {
		cfg.Provider.Supabase.ProjectURL = v
	}
	if v := os.Getenv("SUPABASE_API_KEY"); v != "" {
		cfg.Provider.Supabase.APIKey = v
	}
	if v := os.Getenv("AUTH_ENCRYPTION_KEY"); v != "" {
		cfg.Security.EncryptionKey = v
	}

	return cfg, nil
}

func (c *fileConfig) logLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *fileConfig) newLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.logLevel()}
	if c.Log.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
