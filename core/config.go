package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultSessionTTL      = 30 * time.Minute
	defaultCatalogCacheTTL = 5 * time.Minute
	defaultCallbackPath    = "/source-connections/callback"
	defaultCronSchedule    = "0 */6 * * *"
)

type HandshakeConfig struct {
	SessionTTL      string `koanf:"session_ttl" mapstructure:"session_ttl"`
	CallbackBaseURL string `koanf:"callback_base_url" mapstructure:"callback_base_url"`
	CallbackPath    string `koanf:"callback_path" mapstructure:"callback_path"`
}

// TTL returns the parsed session lifetime, falling back to the default when unset.
func (c HandshakeConfig) TTL() time.Duration {
	parsed, err := time.ParseDuration(strings.TrimSpace(c.SessionTTL))
	if err != nil || parsed <= 0 {
		return defaultSessionTTL
	}
	return parsed
}

type SyncConfig struct {
	DefaultCronSchedule   string `koanf:"default_cron_schedule" mapstructure:"default_cron_schedule"`
	RunImmediatelyDefault bool   `koanf:"run_immediately_default" mapstructure:"run_immediately_default"`
}

type CatalogConfig struct {
	CacheTTL string `koanf:"cache_ttl" mapstructure:"cache_ttl"`
}

func (c CatalogConfig) TTL() time.Duration {
	parsed, err := time.ParseDuration(strings.TrimSpace(c.CacheTTL))
	if err != nil || parsed <= 0 {
		return defaultCatalogCacheTTL
	}
	return parsed
}

type OAuthProviderConfig struct {
	AuthURL            string   `koanf:"auth_url" mapstructure:"auth_url"`
	TokenURL           string   `koanf:"token_url" mapstructure:"token_url"`
	ClientID           string   `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret       string   `koanf:"client_secret" mapstructure:"client_secret"`
	ClientSecretInBody bool     `koanf:"client_secret_in_body" mapstructure:"client_secret_in_body"`
	Scopes             []string `koanf:"scopes" mapstructure:"scopes"`
}

type OAuthConfig struct {
	Providers map[string]OAuthProviderConfig `koanf:"providers" mapstructure:"providers"`
}

type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name"`
	Handshake   HandshakeConfig `koanf:"handshake" mapstructure:"handshake"`
	Sync        SyncConfig      `koanf:"sync" mapstructure:"sync"`
	Catalog     CatalogConfig   `koanf:"catalog" mapstructure:"catalog"`
	OAuth       OAuthConfig     `koanf:"oauth" mapstructure:"oauth"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "source_connections",
		Handshake: HandshakeConfig{
			SessionTTL:   defaultSessionTTL.String(),
			CallbackPath: defaultCallbackPath,
		},
		Sync: SyncConfig{
			DefaultCronSchedule:   defaultCronSchedule,
			RunImmediatelyDefault: true,
		},
		Catalog: CatalogConfig{
			CacheTTL: defaultCatalogCacheTTL.String(),
		},
		OAuth: OAuthConfig{
			Providers: map[string]OAuthProviderConfig{},
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if raw := strings.TrimSpace(c.Handshake.SessionTTL); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("core: handshake.session_ttl is invalid: %w", err)
		}
		if parsed <= 0 {
			return fmt.Errorf("core: handshake.session_ttl must be positive")
		}
	}
	if raw := strings.TrimSpace(c.Catalog.CacheTTL); raw != "" {
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("core: catalog.cache_ttl is invalid: %w", err)
		}
	}
	for shortName, provider := range c.OAuth.Providers {
		if strings.TrimSpace(provider.AuthURL) == "" || strings.TrimSpace(provider.TokenURL) == "" {
			return fmt.Errorf("core: oauth.providers.%s requires auth_url and token_url", shortName)
		}
	}
	return nil
}
