package sqlstore

import (
	"fmt"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	repository "github.com/goliatone/go-repository-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-source-connections/core"
	"github.com/uptrace/bun"
)

type RepositoryFactoryOption func(*RepositoryFactory)

// WithSourceCache serves catalog reads through the given cache service.
func WithSourceCache(cacheService repositorycache.CacheService) RepositoryFactoryOption {
	return func(f *RepositoryFactory) {
		f.cacheService = cacheService
	}
}

func WithClock(now func() time.Time) RepositoryFactoryOption {
	return func(f *RepositoryFactory) {
		if now != nil {
			f.now = now
		}
	}
}

type RepositoryFactory struct {
	db           *bun.DB
	now          func() time.Time
	cacheService repositorycache.CacheService

	unitOfWork    *UnitOfWork
	sourceCatalog *SourceCatalog
	cachedCatalog *CachedSourceCatalog
}

func NewRepositoryFactory(opts ...RepositoryFactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...RepositoryFactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...RepositoryFactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.unitOfWork != nil && f.sourceCatalog != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) Persistence() core.Persistence {
	if f == nil || f.unitOfWork == nil {
		return nil
	}
	return f.unitOfWork
}

// SourceCatalog prefers the cached catalog when a cache service was given.
func (f *RepositoryFactory) SourceCatalog() core.SourceCatalog {
	if f == nil {
		return nil
	}
	if f.cachedCatalog != nil {
		return f.cachedCatalog
	}
	if f.sourceCatalog == nil {
		return nil
	}
	return f.sourceCatalog
}

func (f *RepositoryFactory) UnitOfWork() *UnitOfWork {
	if f == nil {
		return nil
	}
	return f.unitOfWork
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	credentialRepo := repository.NewRepository[*credentialRecord](f.db, credentialHandlers())
	if validator, ok := credentialRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("sqlstore: invalid credential repository wiring: %w", err)
		}
	}
	connectionRepo := repository.NewRepository[*connectionRecord](f.db, connectionHandlers())
	if validator, ok := connectionRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("sqlstore: invalid connection repository wiring: %w", err)
		}
	}
	sourceConnectionRepo := repository.NewRepository[*sourceConnectionRecord](f.db, sourceConnectionHandlers())
	if validator, ok := sourceConnectionRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("sqlstore: invalid source connection repository wiring: %w", err)
		}
	}

	catalog, err := NewSourceCatalog(f.db)
	if err != nil {
		return err
	}
	catalog.now = f.now
	f.sourceCatalog = catalog

	f.unitOfWork = &UnitOfWork{
		db:  f.db,
		now: f.now,
		repos: &repositories{
			credentials:       credentialRepo,
			connections:       connectionRepo,
			sourceConnections: sourceConnectionRepo,
		},
	}

	if f.cacheService != nil {
		cached, err := NewCachedSourceCatalog(catalog, f.cacheService)
		if err != nil {
			return err
		}
		f.cachedCatalog = cached
	}
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
