package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-source-connections/core"
)

type InitSessionStore struct {
	scope dbScope
}

func (s *InitSessionStore) Create(ctx context.Context, session core.ConnectionInitSession) (core.ConnectionInitSession, error) {
	if s == nil || s.scope.db == nil {
		return core.ConnectionInitSession{}, fmt.Errorf("sqlstore: init session store is not configured")
	}
	if strings.TrimSpace(session.State) == "" {
		return core.ConnectionInitSession{}, fmt.Errorf("sqlstore: state is required")
	}
	record := newInitSessionRecord(session, s.scope.timestamp())
	if _, err := s.scope.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return core.ConnectionInitSession{}, core.ErrDuplicateState
		}
		return core.ConnectionInitSession{}, err
	}
	return record.toDomain(), nil
}

func (s *InitSessionStore) GetByState(ctx context.Context, state string) (core.ConnectionInitSession, error) {
	if s == nil || s.scope.db == nil {
		return core.ConnectionInitSession{}, fmt.Errorf("sqlstore: init session store is not configured")
	}
	record := &initSessionRecord{}
	err := s.scope.db.NewSelect().
		Model(record).
		Where("?TableAlias.state = ?", strings.TrimSpace(state)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.ConnectionInitSession{}, core.ErrInitSessionNotFound
		}
		return core.ConnectionInitSession{}, err
	}
	return record.toDomain(), nil
}

// MarkCompleted is a conditional update on status and expiry so two
// concurrent callbacks for one state cannot both complete the session, and a
// callback that outlives the session TTL cannot complete it either.
func (s *InitSessionStore) MarkCompleted(ctx context.Context, id string, finalConnectionID string, at time.Time) error {
	if s == nil || s.scope.db == nil {
		return fmt.Errorf("sqlstore: init session store is not configured")
	}
	trimmedID := strings.TrimSpace(id)
	result, err := s.scope.db.NewUpdate().
		Model((*initSessionRecord)(nil)).
		Set("status = ?", string(core.InitSessionStatusCompleted)).
		Set("final_connection_id = ?", strings.TrimSpace(finalConnectionID)).
		Set("updated_at = ?", at.UTC()).
		Where("id = ?", trimmedID).
		Where("status = ?", string(core.InitSessionStatusPending)).
		Where("expires_at > ?", at.UTC()).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := result.RowsAffected(); affected > 0 {
		return nil
	}
	record := new(initSessionRecord)
	err = s.scope.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", trimmedID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.ErrInitSessionNotFound
		}
		return err
	}
	if record.Status != string(core.InitSessionStatusPending) {
		return core.ErrInitSessionNotPending
	}
	// still pending, so the row lapsed
	return core.ErrInitSessionNotFound
}
