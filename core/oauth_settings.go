package core

import (
	"context"
	"fmt"
	"strings"
)

// ConfigOAuthSettingsProvider serves per-source OAuth client settings from
// the oauth.providers config block.
type ConfigOAuthSettingsProvider struct {
	providers map[string]OAuthProviderConfig
}

func NewConfigOAuthSettingsProvider(cfg OAuthConfig) *ConfigOAuthSettingsProvider {
	providers := make(map[string]OAuthProviderConfig, len(cfg.Providers))
	for shortName, provider := range cfg.Providers {
		providers[strings.TrimSpace(shortName)] = provider
	}
	return &ConfigOAuthSettingsProvider{providers: providers}
}

func (p *ConfigOAuthSettingsProvider) OAuthSettings(_ context.Context, shortName string) (OAuthSettings, error) {
	shortName = strings.TrimSpace(shortName)
	if p == nil {
		return OAuthSettings{}, fmt.Errorf("core: oauth settings provider is nil")
	}
	provider, ok := p.providers[shortName]
	if !ok {
		return OAuthSettings{}, ConfigurationError(
			fmt.Sprintf("no oauth settings configured for source %q", shortName),
			map[string]any{"short_name": shortName},
		)
	}
	return OAuthSettings{
		ShortName:          shortName,
		AuthURL:            strings.TrimSpace(provider.AuthURL),
		TokenURL:           strings.TrimSpace(provider.TokenURL),
		ClientID:           strings.TrimSpace(provider.ClientID),
		ClientSecret:       provider.ClientSecret,
		ClientSecretInBody: provider.ClientSecretInBody,
		Scopes:             append([]string(nil), provider.Scopes...),
	}, nil
}

var _ OAuthSettingsProvider = (*ConfigOAuthSettingsProvider)(nil)
