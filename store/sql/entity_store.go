package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-source-connections/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type EntityStore struct {
	scope dbScope
}

func (s *EntityStore) GetMany(ctx context.Context, syncID string, entityIDs []string) (map[string]core.Entity, error) {
	if s == nil || s.scope.db == nil {
		return nil, fmt.Errorf("sqlstore: entity store is not configured")
	}
	out := make(map[string]core.Entity, len(entityIDs))
	if len(entityIDs) == 0 {
		return out, nil
	}
	records := []entityRecord{}
	if err := s.scope.db.NewSelect().
		Model(&records).
		Where("?TableAlias.sync_id = ?", strings.TrimSpace(syncID)).
		Where("?TableAlias.entity_id IN (?)", bun.In(entityIDs)).
		Scan(ctx); err != nil {
		return nil, err
	}
	for i := range records {
		out[records[i].EntityID] = records[i].toDomain()
	}
	return out, nil
}

// Upsert inserts missing rows and rewrites existing ones unless a later job
// already stamped them. Each row is written with a conditional statement so
// an older job racing a newer one cannot win.
func (s *EntityStore) Upsert(ctx context.Context, organizationID string, syncID string, jobID string, records []core.UpsertEntity) ([]core.Entity, error) {
	if s == nil || s.scope.db == nil {
		return nil, fmt.Errorf("sqlstore: entity store is not configured")
	}
	syncID = strings.TrimSpace(syncID)
	jobID = strings.TrimSpace(jobID)
	now := s.scope.timestamp()

	written := make([]string, 0, len(records))
	for _, record := range records {
		row := &entityRecord{
			ID:             uuid.NewString(),
			OrganizationID: strings.TrimSpace(organizationID),
			SyncID:         syncID,
			EntityID:       record.EntityID,
			Hash:           record.Hash,
			SyncJobID:      jobID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		result, err := s.scope.db.NewInsert().
			Model(row).
			On("CONFLICT (sync_id, entity_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return nil, err
		}
		if affected, _ := result.RowsAffected(); affected > 0 {
			written = append(written, record.EntityID)
			continue
		}

		result, err = s.scope.db.NewUpdate().
			Model((*entityRecord)(nil)).
			Set("hash = ?", record.Hash).
			Set("sync_job_id = ?", jobID).
			Set("updated_at = ?", now).
			Where("sync_id = ?", syncID).
			Where("entity_id = ?", record.EntityID).
			Where("sync_job_id <= ?", jobID).
			Exec(ctx)
		if err != nil {
			return nil, err
		}
		if affected, _ := result.RowsAffected(); affected > 0 {
			written = append(written, record.EntityID)
		}
	}

	stored, err := s.GetMany(ctx, syncID, written)
	if err != nil {
		return nil, err
	}
	out := make([]core.Entity, 0, len(written))
	for _, entityID := range written {
		if entity, ok := stored[entityID]; ok {
			out = append(out, entity)
		}
	}
	return out, nil
}

func (s *EntityStore) Stamp(ctx context.Context, syncID string, jobID string, entityIDs []string) (int, error) {
	if s == nil || s.scope.db == nil {
		return 0, fmt.Errorf("sqlstore: entity store is not configured")
	}
	if len(entityIDs) == 0 {
		return 0, nil
	}
	jobID = strings.TrimSpace(jobID)
	result, err := s.scope.db.NewUpdate().
		Model((*entityRecord)(nil)).
		Set("sync_job_id = ?", jobID).
		Set("updated_at = ?", s.scope.timestamp()).
		Where("sync_id = ?", strings.TrimSpace(syncID)).
		Where("entity_id IN (?)", bun.In(entityIDs)).
		Where("sync_job_id <= ?", jobID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *EntityStore) ListNotStamped(ctx context.Context, syncID string, jobID string) ([]core.Entity, error) {
	if s == nil || s.scope.db == nil {
		return nil, fmt.Errorf("sqlstore: entity store is not configured")
	}
	records := []entityRecord{}
	if err := s.scope.db.NewSelect().
		Model(&records).
		Where("?TableAlias.sync_id = ?", strings.TrimSpace(syncID)).
		Where("?TableAlias.sync_job_id <> ?", strings.TrimSpace(jobID)).
		OrderExpr("?TableAlias.entity_id ASC").
		Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]core.Entity, 0, len(records))
	for i := range records {
		out = append(out, records[i].toDomain())
	}
	return out, nil
}

func (s *EntityStore) DeleteByIDs(ctx context.Context, ids []string) error {
	if s == nil || s.scope.db == nil {
		return fmt.Errorf("sqlstore: entity store is not configured")
	}
	if len(ids) == 0 {
		return nil
	}
	_, err := s.scope.db.NewDelete().
		Model((*entityRecord)(nil)).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	return err
}

func (s *EntityStore) DeleteBySync(ctx context.Context, syncID string) error {
	if s == nil || s.scope.db == nil {
		return fmt.Errorf("sqlstore: entity store is not configured")
	}
	_, err := s.scope.db.NewDelete().
		Model((*entityRecord)(nil)).
		Where("sync_id = ?", strings.TrimSpace(syncID)).
		Exec(ctx)
	return err
}
