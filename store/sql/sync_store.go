package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-source-connections/core"
)

type SyncStore struct {
	scope dbScope
}

func (s *SyncStore) Create(ctx context.Context, sync core.Sync) (core.Sync, error) {
	if s == nil || s.scope.db == nil {
		return core.Sync{}, fmt.Errorf("sqlstore: sync store is not configured")
	}
	if strings.TrimSpace(sync.SourceConnectionID) == "" {
		return core.Sync{}, fmt.Errorf("sqlstore: source connection id is required")
	}
	record := newSyncRecord(sync, s.scope.timestamp())
	if _, err := s.scope.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.Sync{}, err
	}
	return record.toDomain(), nil
}

func (s *SyncStore) Get(ctx context.Context, organizationID string, id string) (core.Sync, error) {
	if s == nil || s.scope.db == nil {
		return core.Sync{}, fmt.Errorf("sqlstore: sync store is not configured")
	}
	record := &syncRecord{}
	err := s.scope.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Where("?TableAlias.organization_id = ?", strings.TrimSpace(organizationID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.Sync{}, fmt.Errorf("%w: %s", core.ErrSyncNotFound, id)
		}
		return core.Sync{}, err
	}
	return record.toDomain(), nil
}

func (s *SyncStore) Delete(ctx context.Context, organizationID string, id string) error {
	if s == nil || s.scope.db == nil {
		return fmt.Errorf("sqlstore: sync store is not configured")
	}
	result, err := s.scope.db.NewDelete().
		Model((*syncRecord)(nil)).
		Where("id = ?", strings.TrimSpace(id)).
		Where("organization_id = ?", strings.TrimSpace(organizationID)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: %s", core.ErrSyncNotFound, id)
	}
	return nil
}

type SyncJobStore struct {
	scope dbScope
}

func (s *SyncJobStore) Create(ctx context.Context, job core.SyncJob) (core.SyncJob, error) {
	if s == nil || s.scope.db == nil {
		return core.SyncJob{}, fmt.Errorf("sqlstore: sync job store is not configured")
	}
	job.SyncID = strings.TrimSpace(job.SyncID)
	if job.SyncID == "" {
		return core.SyncJob{}, fmt.Errorf("sqlstore: sync id is required")
	}
	if strings.TrimSpace(job.ID) == "" {
		job.ID = core.NewSyncJobID()
	}
	now := s.scope.timestamp()
	job.CreatedAt, job.UpdatedAt = now, now

	record := newSyncJobRecord(job)
	if _, err := s.scope.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.SyncJob{}, err
	}
	return record.toDomain(), nil
}

func (s *SyncJobStore) Get(ctx context.Context, id string) (core.SyncJob, error) {
	if s == nil || s.scope.db == nil {
		return core.SyncJob{}, fmt.Errorf("sqlstore: sync job store is not configured")
	}
	record := &syncJobRecord{}
	err := s.scope.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.SyncJob{}, fmt.Errorf("%w: %s", core.ErrSyncJobNotFound, id)
		}
		return core.SyncJob{}, err
	}
	return record.toDomain(), nil
}

// Update rewrites the mutable job columns. created_at is preserved.
func (s *SyncJobStore) Update(ctx context.Context, job core.SyncJob) (core.SyncJob, error) {
	if s == nil || s.scope.db == nil {
		return core.SyncJob{}, fmt.Errorf("sqlstore: sync job store is not configured")
	}
	job.ID = strings.TrimSpace(job.ID)
	if job.ID == "" {
		return core.SyncJob{}, fmt.Errorf("sqlstore: sync job id is required")
	}
	job.UpdatedAt = s.scope.timestamp()
	record := newSyncJobRecord(job)
	result, err := s.scope.db.NewUpdate().
		Model(record).
		Column(
			"status",
			"entities_inserted",
			"entities_updated",
			"entities_deleted",
			"entities_kept",
			"entities_skipped",
			"started_at",
			"completed_at",
			"failed_at",
			"error",
			"updated_at",
		).
		WherePK().
		Exec(ctx)
	if err != nil {
		return core.SyncJob{}, err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return core.SyncJob{}, fmt.Errorf("%w: %s", core.ErrSyncJobNotFound, job.ID)
	}
	return s.Get(ctx, job.ID)
}

// ListBySync returns the newest jobs first. Job ids are time ordered.
func (s *SyncJobStore) ListBySync(ctx context.Context, syncID string, limit int) ([]core.SyncJob, error) {
	if s == nil || s.scope.db == nil {
		return nil, fmt.Errorf("sqlstore: sync job store is not configured")
	}
	records := []syncJobRecord{}
	query := s.scope.db.NewSelect().
		Model(&records).
		Where("?TableAlias.sync_id = ?", strings.TrimSpace(syncID)).
		OrderExpr("?TableAlias.id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]core.SyncJob, 0, len(records))
	for i := range records {
		out = append(out, records[i].toDomain())
	}
	return out, nil
}

func (s *SyncJobStore) LatestBySync(ctx context.Context, syncID string) (core.SyncJob, error) {
	jobs, err := s.ListBySync(ctx, syncID, 1)
	if err != nil {
		return core.SyncJob{}, err
	}
	if len(jobs) == 0 {
		return core.SyncJob{}, fmt.Errorf("%w: sync %s", core.ErrSyncJobNotFound, syncID)
	}
	return jobs[0], nil
}

func (s *SyncJobStore) DeleteBySync(ctx context.Context, syncID string) error {
	if s == nil || s.scope.db == nil {
		return fmt.Errorf("sqlstore: sync job store is not configured")
	}
	_, err := s.scope.db.NewDelete().
		Model((*syncJobRecord)(nil)).
		Where("sync_id = ?", strings.TrimSpace(syncID)).
		Exec(ctx)
	return err
}
