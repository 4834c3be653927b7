package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig        Config
	logger               Logger
	loggerProvider       LoggerProvider
	metricsRecorder      MetricsRecorder
	errorFactory         ErrorFactory
	errorMapper          ErrorMapper
	secretProvider       SecretProvider
	persistenceClient    any
	repositoryFactory    any
	configProvider       ConfigProvider
	optionsResolver      OptionsResolver
	persistence          Persistence
	sourceCatalog        SourceCatalog
	schemaRegistry       *SchemaRegistry
	syncExecution        SyncExecutionService
	jobEnqueuer          JobEnqueuer
	oauthClient          OAuthProviderClient
	oauthSettings        OAuthSettingsProvider
	destinationCleanup   DestinationCleanup
	credentialValidators map[string]CredentialValidator
	callbackResolver     CallbackURLResolver
	clock                func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

// WithSecretProvider sets the vault backend. Without one NewService fails.
func WithSecretProvider(provider SecretProvider) Option {
	return func(b *serviceBuilder) {
		b.secretProvider = provider
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithPersistence(persistence Persistence) Option {
	return func(b *serviceBuilder) {
		b.persistence = persistence
	}
}

func WithSourceCatalog(catalog SourceCatalog) Option {
	return func(b *serviceBuilder) {
		b.sourceCatalog = catalog
	}
}

func WithSchemaRegistry(registry *SchemaRegistry) Option {
	return func(b *serviceBuilder) {
		b.schemaRegistry = registry
	}
}

func WithSyncExecutionService(service SyncExecutionService) Option {
	return func(b *serviceBuilder) {
		b.syncExecution = service
	}
}

// WithJobEnqueuer is used by the default sync execution service to dispatch
// jobs after commit.
func WithJobEnqueuer(enqueuer JobEnqueuer) Option {
	return func(b *serviceBuilder) {
		b.jobEnqueuer = enqueuer
	}
}

func WithOAuthProviderClient(client OAuthProviderClient) Option {
	return func(b *serviceBuilder) {
		b.oauthClient = client
	}
}

func WithOAuthSettingsProvider(provider OAuthSettingsProvider) Option {
	return func(b *serviceBuilder) {
		b.oauthSettings = provider
	}
}

func WithDestinationCleanup(cleanup DestinationCleanup) Option {
	return func(b *serviceBuilder) {
		b.destinationCleanup = cleanup
	}
}

func WithCredentialValidator(shortName string, validator CredentialValidator) Option {
	return func(b *serviceBuilder) {
		shortName = strings.TrimSpace(shortName)
		if shortName == "" || validator == nil {
			return
		}
		if b.credentialValidators == nil {
			b.credentialValidators = map[string]CredentialValidator{}
		}
		b.credentialValidators[shortName] = validator
	}
}

func WithCallbackURLResolver(resolver CallbackURLResolver) Option {
	return func(b *serviceBuilder) {
		b.callbackResolver = resolver
	}
}

func WithClock(clock func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.clock = clock
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("source_connections", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		schemaRegistry:  NewSchemaRegistry(),
		clock:           func() time.Time { return time.Now().UTC() },
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return serviceErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	return copyAnyMap(l.Values), nil
}

// NewStaticConfigLoader serves a fixed raw map, mostly for embedding hosts and tests.
func NewStaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	handshake := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Handshake.SessionTTL) != "" {
		handshake["session_ttl"] = cfg.Handshake.SessionTTL
	}
	if includeZero || strings.TrimSpace(cfg.Handshake.CallbackBaseURL) != "" {
		handshake["callback_base_url"] = cfg.Handshake.CallbackBaseURL
	}
	if includeZero || strings.TrimSpace(cfg.Handshake.CallbackPath) != "" {
		handshake["callback_path"] = cfg.Handshake.CallbackPath
	}
	if len(handshake) > 0 {
		layer["handshake"] = handshake
	}

	sync := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Sync.DefaultCronSchedule) != "" {
		sync["default_cron_schedule"] = cfg.Sync.DefaultCronSchedule
	}
	if includeZero || cfg.Sync.RunImmediatelyDefault {
		sync["run_immediately_default"] = cfg.Sync.RunImmediatelyDefault
	}
	if len(sync) > 0 {
		layer["sync"] = sync
	}

	if includeZero || strings.TrimSpace(cfg.Catalog.CacheTTL) != "" {
		layer["catalog"] = map[string]any{"cache_ttl": cfg.Catalog.CacheTTL}
	}

	if includeZero || len(cfg.OAuth.Providers) > 0 {
		providers := make(map[string]any, len(cfg.OAuth.Providers))
		for shortName, provider := range cfg.OAuth.Providers {
			providers[shortName] = map[string]any{
				"auth_url":              provider.AuthURL,
				"token_url":             provider.TokenURL,
				"client_id":             provider.ClientID,
				"client_secret":         provider.ClientSecret,
				"client_secret_in_body": provider.ClientSecretInBody,
				"scopes":                append([]string(nil), provider.Scopes...),
			}
		}
		layer["oauth"] = map[string]any{"providers": providers}
	}
	return layer
}
