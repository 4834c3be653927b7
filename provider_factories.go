package sourceconnections

import (
	"fmt"
	"strings"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-source-connections/core"
	"github.com/goliatone/go-source-connections/providers"
	"github.com/goliatone/go-source-connections/security"
	sqlstore "github.com/goliatone/go-source-connections/store/sql"
)

// NewOAuthClient returns the form-encoded OAuth2 code exchange client.
func NewOAuthClient(opts ...providers.OAuth2ClientOption) *providers.OAuth2Client {
	return providers.NewOAuth2Client(opts...)
}

// AppKeySecretProvider builds an AES-GCM provider from a base64 key, or from
// a raw passphrase when the value is not valid base64.
func AppKeySecretProvider(key string, opts ...security.Option) (*security.AppKeySecretProvider, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("sourceconnections: app key is required")
	}
	if provider, err := security.NewAppKeySecretProviderFromBase64(key, opts...); err == nil {
		return provider, nil
	}
	return security.NewAppKeySecretProviderFromString(key, opts...)
}

// AgeSecretProvider builds an age X25519 provider. Extra recipients receive
// escrow copies of every sealed credential.
func AgeSecretProvider(privateKey string, escrowRecipients ...string) (*security.AgeSecretProvider, error) {
	opts := []security.AgeOption{}
	if len(escrowRecipients) > 0 {
		opts = append(opts, security.WithAgeRecipients(escrowRecipients...))
	}
	return security.NewAgeSecretProvider(privateKey, opts...)
}

// RotatingSecretProvider encrypts with active and still decrypts blobs
// sealed by any retired key.
func RotatingSecretProvider(active core.KeyedSecretProvider, retired ...core.KeyedSecretProvider) (*security.KeyringSecretProvider, error) {
	opts := make([]security.KeyringOption, 0, len(retired))
	for _, provider := range retired {
		opts = append(opts, security.WithRetiredKey(provider, security.KeyRotationWindow{}))
	}
	return security.NewKeyringSecretProvider(active, opts...)
}

// SQLRepositoryFactory binds the SQL stores to client. Catalog reads are
// cached for cfg.Catalog.TTL().
func SQLRepositoryFactory(cfg Config, client *persistence.Client) (*sqlstore.RepositoryFactory, error) {
	if client == nil {
		return nil, fmt.Errorf("sourceconnections: persistence client is required")
	}
	cacheConfig := repositorycache.DefaultConfig()
	cacheConfig.TTL = cfg.Catalog.TTL()
	cacheService, err := repositorycache.NewCacheService(cacheConfig)
	if err != nil {
		return nil, fmt.Errorf("sourceconnections: source cache: %w", err)
	}
	return sqlstore.NewRepositoryFactoryFromPersistence(client, sqlstore.WithSourceCache(cacheService))
}

// SetupSQL wires Setup to the SQL stores behind client.
func SetupSQL(cfg Config, client *persistence.Client, opts ...Option) (*Service, *sqlstore.RepositoryFactory, error) {
	factory, err := SQLRepositoryFactory(cfg, client)
	if err != nil {
		return nil, nil, err
	}
	base := []Option{
		core.WithRepositoryFactory(factory),
		core.WithPersistenceClient(factory.DB()),
	}
	service, err := Setup(cfg, append(base, opts...)...)
	if err != nil {
		return nil, nil, err
	}
	return service, factory, nil
}
