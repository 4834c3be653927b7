package sqlstore

import (
	"context"
	"fmt"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-source-connections/core"
	"github.com/uptrace/bun"
)

type repositories struct {
	credentials       repository.Repository[*credentialRecord]
	connections       repository.Repository[*connectionRecord]
	sourceConnections repository.Repository[*sourceConnectionRecord]
}

// dbScope is the query target shared by every store built for one
// transaction, or for the plain database handle outside of one.
type dbScope struct {
	db    bun.IDB
	tx    *bun.Tx
	repos *repositories
	now   func() time.Time
}

func (s dbScope) timestamp() time.Time {
	if s.now == nil {
		return time.Now().UTC()
	}
	return s.now().UTC()
}

func createRecord[T any](ctx context.Context, scope dbScope, repo repository.Repository[T], record T) (T, error) {
	if scope.tx != nil {
		return repo.CreateTx(ctx, *scope.tx, record)
	}
	return repo.Create(ctx, record)
}

// UnitOfWork runs service writes inside a bun transaction and fires
// after-commit hooks once the transaction has committed.
type UnitOfWork struct {
	db    *bun.DB
	repos *repositories
	now   func() time.Time
}

func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context, tx core.TxStores) error) error {
	if u == nil || u.db == nil {
		return fmt.Errorf("sqlstore: unit of work is not configured")
	}
	if fn == nil {
		return fmt.Errorf("sqlstore: transaction callback is required")
	}

	var hooks []func(ctx context.Context)
	err := u.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		stores := &TxStores{scope: dbScope{db: tx, tx: &tx, repos: u.repos, now: u.now}}
		if err := fn(ctx, stores); err != nil {
			return err
		}
		hooks = stores.afterCommit
		return nil
	})
	if err != nil {
		return err
	}
	for _, hook := range hooks {
		hook(ctx)
	}
	return nil
}

// Stores returns stores bound to the database handle. Writes through them
// autocommit and AfterCommit hooks run immediately.
func (u *UnitOfWork) Stores() core.TxStores {
	if u == nil {
		return &TxStores{}
	}
	return &TxStores{scope: dbScope{db: u.db, repos: u.repos, now: u.now}}
}

type TxStores struct {
	scope       dbScope
	afterCommit []func(ctx context.Context)
}

func (t *TxStores) AfterCommit(fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	if t.scope.tx == nil {
		fn(context.Background())
		return
	}
	t.afterCommit = append(t.afterCommit, fn)
}

func (t *TxStores) Credentials() core.CredentialStore {
	return &CredentialStore{scope: t.scope}
}

func (t *TxStores) Connections() core.ConnectionStore {
	return &ConnectionStore{scope: t.scope}
}

func (t *TxStores) Collections() core.CollectionStore {
	return &CollectionStore{scope: t.scope}
}

func (t *TxStores) Syncs() core.SyncStore {
	return &SyncStore{scope: t.scope}
}

func (t *TxStores) SyncJobs() core.SyncJobStore {
	return &SyncJobStore{scope: t.scope}
}

func (t *TxStores) SourceConnections() core.SourceConnectionStore {
	return &SourceConnectionStore{scope: t.scope}
}

func (t *TxStores) InitSessions() core.InitSessionStore {
	return &InitSessionStore{scope: t.scope}
}

func (t *TxStores) Entities() core.EntityStore {
	return &EntityStore{scope: t.scope}
}
