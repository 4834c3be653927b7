package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

type Service struct {
	config               Config
	logger               Logger
	loggerProvider       LoggerProvider
	metricsRecorder      MetricsRecorder
	errorFactory         ErrorFactory
	errorMapper          ErrorMapper
	persistenceClient    any
	repositoryFactory    any
	configProvider       ConfigProvider
	optionsResolver      OptionsResolver
	persistence          Persistence
	catalog              SourceCatalog
	schemas              *SchemaRegistry
	vault                *CredentialVault
	syncExecution        SyncExecutionService
	oauthClient          OAuthProviderClient
	oauthSettings        OAuthSettingsProvider
	destinationCleanup   DestinationCleanup
	credentialValidators map[string]CredentialValidator
	entityDiff           *EntityDiffEngine
	callbackResolver     CallbackURLResolver
	clock                func() time.Time
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("source_connections", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("source_connections"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.schemaRegistry == nil {
		builder.schemaRegistry = NewSchemaRegistry()
	}
	if builder.clock == nil {
		builder.clock = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if (builder.persistence == nil || builder.sourceCatalog == nil) && builder.repositoryFactory != nil {
		var stores StoreProvider
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			built, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			stores = built
		} else if provided, ok := builder.repositoryFactory.(StoreProvider); ok {
			stores = provided
		}
		if stores != nil {
			if builder.persistence == nil {
				builder.persistence = stores.Persistence()
			}
			if builder.sourceCatalog == nil {
				builder.sourceCatalog = stores.SourceCatalog()
			}
		}
	}
	if builder.persistence == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: persistence is required"))
	}
	if builder.sourceCatalog == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: source catalog is required"))
	}
	vault, err := NewCredentialVault(builder.secretProvider)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	if builder.oauthSettings == nil {
		builder.oauthSettings = NewConfigOAuthSettingsProvider(finalConfig.OAuth)
	}
	if builder.syncExecution == nil {
		builder.syncExecution = NewJobSyncExecutionService(
			builder.persistence,
			builder.jobEnqueuer,
			WithSyncExecutionLogger(logger),
			WithSyncExecutionClock(builder.clock),
		)
	}
	validators := make(map[string]CredentialValidator, len(builder.credentialValidators))
	for shortName, validator := range builder.credentialValidators {
		validators[shortName] = validator
	}

	return &Service{
		config:               finalConfig,
		logger:               logger,
		loggerProvider:       provider,
		metricsRecorder:      builder.metricsRecorder,
		errorFactory:         builder.errorFactory,
		errorMapper:          builder.errorMapper,
		persistenceClient:    builder.persistenceClient,
		repositoryFactory:    builder.repositoryFactory,
		configProvider:       builder.configProvider,
		optionsResolver:      builder.optionsResolver,
		persistence:          builder.persistence,
		catalog:              builder.sourceCatalog,
		schemas:              builder.schemaRegistry,
		vault:                vault,
		syncExecution:        builder.syncExecution,
		oauthClient:          builder.oauthClient,
		oauthSettings:        builder.oauthSettings,
		destinationCleanup:   builder.destinationCleanup,
		credentialValidators: validators,
		entityDiff:           NewEntityDiffEngine(builder.persistence.Stores().Entities()),
		callbackResolver:     builder.callbackResolver,
		clock:                builder.clock,
	}, nil
}

func NewServiceFromDependencies(cfg Config, deps ServiceDependencies) (*Service, error) {
	opts := []Option{
		WithLogger(deps.Logger),
		WithLoggerProvider(deps.LoggerProvider),
		WithMetricsRecorder(deps.MetricsRecorder),
		WithErrorFactory(deps.ErrorFactory),
		WithErrorMapper(deps.ErrorMapper),
		WithSecretProvider(deps.SecretProvider),
		WithPersistenceClient(deps.PersistenceClient),
		WithRepositoryFactory(deps.RepositoryFactory),
		WithConfigProvider(deps.ConfigProvider),
		WithOptionsResolver(deps.OptionsResolver),
		WithPersistence(deps.Persistence),
		WithSourceCatalog(deps.SourceCatalog),
		WithSchemaRegistry(deps.SchemaRegistry),
		WithSyncExecutionService(deps.SyncExecution),
		WithJobEnqueuer(deps.JobEnqueuer),
		WithOAuthProviderClient(deps.OAuthClient),
		WithOAuthSettingsProvider(deps.OAuthSettings),
		WithDestinationCleanup(deps.DestinationCleanup),
		WithCallbackURLResolver(deps.CallbackURLResolver),
	}
	for shortName, validator := range deps.CredentialValidators {
		opts = append(opts, WithCredentialValidator(shortName, validator))
	}
	return NewService(cfg, opts...)
}

type ServiceDependencies struct {
	Logger               Logger
	LoggerProvider       LoggerProvider
	MetricsRecorder      MetricsRecorder
	ErrorFactory         ErrorFactory
	ErrorMapper          ErrorMapper
	SecretProvider       SecretProvider
	PersistenceClient    any
	RepositoryFactory    any
	ConfigProvider       ConfigProvider
	OptionsResolver      OptionsResolver
	Persistence          Persistence
	SourceCatalog        SourceCatalog
	SchemaRegistry       *SchemaRegistry
	SyncExecution        SyncExecutionService
	JobEnqueuer          JobEnqueuer
	OAuthClient          OAuthProviderClient
	OAuthSettings        OAuthSettingsProvider
	DestinationCleanup   DestinationCleanup
	CredentialValidators map[string]CredentialValidator
	CallbackURLResolver  CallbackURLResolver
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	var secretProvider SecretProvider
	if s.vault != nil {
		secretProvider = s.vault.provider
	}
	validators := make(map[string]CredentialValidator, len(s.credentialValidators))
	for shortName, validator := range s.credentialValidators {
		validators[shortName] = validator
	}
	return ServiceDependencies{
		Logger:               s.logger,
		LoggerProvider:       s.loggerProvider,
		MetricsRecorder:      s.metricsRecorder,
		ErrorFactory:         s.errorFactory,
		ErrorMapper:          s.errorMapper,
		SecretProvider:       secretProvider,
		PersistenceClient:    s.persistenceClient,
		RepositoryFactory:    s.repositoryFactory,
		ConfigProvider:       s.configProvider,
		OptionsResolver:      s.optionsResolver,
		Persistence:          s.persistence,
		SourceCatalog:        s.catalog,
		SchemaRegistry:       s.schemas,
		SyncExecution:        s.syncExecution,
		OAuthClient:          s.oauthClient,
		OAuthSettings:        s.oauthSettings,
		DestinationCleanup:   s.destinationCleanup,
		CredentialValidators: validators,
		CallbackURLResolver:  s.callbackResolver,
	}
}

func (s *Service) Logger() Logger {
	if s == nil {
		return nil
	}
	return s.logger
}

func (s *Service) SchemaRegistry() *SchemaRegistry {
	if s == nil {
		return nil
	}
	return s.schemas
}

func (s *Service) EntityDiff() *EntityDiffEngine {
	if s == nil {
		return nil
	}
	return s.entityDiff
}

func (s *Service) SyncExecution() SyncExecutionService {
	if s == nil {
		return nil
	}
	return s.syncExecution
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return serviceErrorMapper(err)
	}
	if mapped := s.errorMapper(err); mapped != nil {
		return mapped
	}
	return err
}

func (s *Service) now() time.Time {
	if s == nil || s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func (s *Service) getSource(ctx context.Context, shortName string) (Source, error) {
	shortName = strings.TrimSpace(shortName)
	if shortName == "" {
		return Source{}, BadInputError("short_name", "short_name is required")
	}
	source, err := s.catalog.GetSource(ctx, shortName)
	if err != nil {
		if isNotFound(err, ErrSourceNotFound) {
			return Source{}, NotFoundError("source", shortName)
		}
		return Source{}, err
	}
	return source, nil
}

func isNotFound(err error, sentinel error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, sentinel)
}
