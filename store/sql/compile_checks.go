package sqlstore

import "github.com/goliatone/go-source-connections/core"

var (
	_ core.Persistence            = (*UnitOfWork)(nil)
	_ core.TxStores               = (*TxStores)(nil)
	_ core.CredentialStore        = (*CredentialStore)(nil)
	_ core.ConnectionStore        = (*ConnectionStore)(nil)
	_ core.CollectionStore        = (*CollectionStore)(nil)
	_ core.SyncStore              = (*SyncStore)(nil)
	_ core.SyncJobStore           = (*SyncJobStore)(nil)
	_ core.SourceConnectionStore  = (*SourceConnectionStore)(nil)
	_ core.InitSessionStore       = (*InitSessionStore)(nil)
	_ core.EntityStore            = (*EntityStore)(nil)
	_ core.SourceCatalog          = (*SourceCatalog)(nil)
	_ core.SourceWriter           = (*SourceCatalog)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
