package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-source-connections/core"
)

type SourceConnectionStore struct {
	scope dbScope
}

func (s *SourceConnectionStore) Create(ctx context.Context, sc core.SourceConnection) (core.SourceConnection, error) {
	if s == nil || s.scope.db == nil || s.scope.repos == nil {
		return core.SourceConnection{}, fmt.Errorf("sqlstore: source connection store is not configured")
	}
	if strings.TrimSpace(sc.OrganizationID) == "" {
		return core.SourceConnection{}, fmt.Errorf("sqlstore: organization id is required")
	}
	sc.ID = ensureID(sc.ID)
	now := s.scope.timestamp()
	sc.CreatedAt, sc.UpdatedAt = now, now

	created, err := createRecord(ctx, s.scope, s.scope.repos.sourceConnections, newSourceConnectionRecord(sc))
	if err != nil {
		return core.SourceConnection{}, err
	}
	return created.toDomain(), nil
}

func (s *SourceConnectionStore) Update(ctx context.Context, sc core.SourceConnection) (core.SourceConnection, error) {
	if s == nil || s.scope.db == nil {
		return core.SourceConnection{}, fmt.Errorf("sqlstore: source connection store is not configured")
	}
	sc.ID = strings.TrimSpace(sc.ID)
	sc.UpdatedAt = s.scope.timestamp()
	record := newSourceConnectionRecord(sc)
	result, err := s.scope.db.NewUpdate().
		Model(record).
		ExcludeColumn("id", "organization_id", "created_at").
		WherePK().
		Where("organization_id = ?", strings.TrimSpace(sc.OrganizationID)).
		Exec(ctx)
	if err != nil {
		return core.SourceConnection{}, err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return core.SourceConnection{}, fmt.Errorf("%w: %s", core.ErrSourceConnectionNotFound, sc.ID)
	}
	return s.Get(ctx, sc.OrganizationID, sc.ID)
}

func (s *SourceConnectionStore) Get(ctx context.Context, organizationID string, id string) (core.SourceConnection, error) {
	if s == nil || s.scope.db == nil {
		return core.SourceConnection{}, fmt.Errorf("sqlstore: source connection store is not configured")
	}
	record := &sourceConnectionRecord{}
	err := s.scope.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Where("?TableAlias.organization_id = ?", strings.TrimSpace(organizationID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.SourceConnection{}, fmt.Errorf("%w: %s", core.ErrSourceConnectionNotFound, id)
		}
		return core.SourceConnection{}, err
	}
	return record.toDomain(), nil
}

// List orders by creation time so offset paging is stable.
func (s *SourceConnectionStore) List(ctx context.Context, organizationID string, filter core.SourceConnectionFilter) ([]core.SourceConnection, error) {
	if s == nil || s.scope.db == nil {
		return nil, fmt.Errorf("sqlstore: source connection store is not configured")
	}
	records := []sourceConnectionRecord{}
	query := s.scope.db.NewSelect().
		Model(&records).
		Where("?TableAlias.organization_id = ?", strings.TrimSpace(organizationID)).
		OrderExpr("?TableAlias.created_at ASC, ?TableAlias.id ASC")
	if readableID := strings.TrimSpace(filter.ReadableCollectionID); readableID != "" {
		query = query.Where("?TableAlias.readable_collection_id = ?", readableID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]core.SourceConnection, 0, len(records))
	for i := range records {
		out = append(out, records[i].toDomain())
	}
	return out, nil
}

func (s *SourceConnectionStore) Delete(ctx context.Context, organizationID string, id string) error {
	if s == nil || s.scope.db == nil {
		return fmt.Errorf("sqlstore: source connection store is not configured")
	}
	result, err := s.scope.db.NewDelete().
		Model((*sourceConnectionRecord)(nil)).
		Where("id = ?", strings.TrimSpace(id)).
		Where("organization_id = ?", strings.TrimSpace(organizationID)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: %s", core.ErrSourceConnectionNotFound, id)
	}
	return nil
}
