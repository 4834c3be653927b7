package sourceconnections

import "github.com/goliatone/go-source-connections/core"

type Config = core.Config

type HandshakeConfig = core.HandshakeConfig
type SyncConfig = core.SyncConfig
type CatalogConfig = core.CatalogConfig
type OAuthConfig = core.OAuthConfig
type OAuthProviderConfig = core.OAuthProviderConfig

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type Source = core.Source
type Schema = core.Schema
type FieldSpec = core.FieldSpec
type SchemaRegistry = core.SchemaRegistry

type CreateSourceConnectionRequest = core.CreateSourceConnectionRequest
type BeginHandshakeRequest = core.BeginHandshakeRequest
type CompleteHandshakeRequest = core.CompleteHandshakeRequest
type GetSourceConnectionRequest = core.GetSourceConnectionRequest
type ListSourceConnectionsRequest = core.ListSourceConnectionsRequest
type DeleteSourceConnectionRequest = core.DeleteSourceConnectionRequest
type RunSourceConnectionRequest = core.RunSourceConnectionRequest
type UpdateSyncJobRequest = core.UpdateSyncJobRequest
type UpsertEntitiesRequest = core.UpsertEntitiesRequest

var (
	WithLogger                = core.WithLogger
	WithLoggerProvider        = core.WithLoggerProvider
	WithMetricsRecorder       = core.WithMetricsRecorder
	WithErrorFactory          = core.WithErrorFactory
	WithErrorMapper           = core.WithErrorMapper
	WithSecretProvider        = core.WithSecretProvider
	WithPersistenceClient     = core.WithPersistenceClient
	WithRepositoryFactory     = core.WithRepositoryFactory
	WithConfigProvider        = core.WithConfigProvider
	WithOptionsResolver       = core.WithOptionsResolver
	WithPersistence           = core.WithPersistence
	WithSourceCatalog         = core.WithSourceCatalog
	WithSchemaRegistry        = core.WithSchemaRegistry
	WithSyncExecutionService  = core.WithSyncExecutionService
	WithJobEnqueuer           = core.WithJobEnqueuer
	WithOAuthProviderClient   = core.WithOAuthProviderClient
	WithOAuthSettingsProvider = core.WithOAuthSettingsProvider
	WithDestinationCleanup    = core.WithDestinationCleanup
	WithCredentialValidator   = core.WithCredentialValidator
	WithCallbackURLResolver   = core.WithCallbackURLResolver
	WithClock                 = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

// Setup builds a service with the stock OAuth2 client. Options given by
// the caller are applied afterwards and win.
func Setup(cfg Config, opts ...Option) (*Service, error) {
	defaults := []Option{
		core.WithOAuthProviderClient(NewOAuthClient()),
	}
	return core.NewService(cfg, append(defaults, opts...)...)
}
