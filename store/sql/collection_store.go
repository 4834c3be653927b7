package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-source-connections/core"
)

type CollectionStore struct {
	scope dbScope
}

func (s *CollectionStore) Create(ctx context.Context, collection core.Collection) (core.Collection, error) {
	if s == nil || s.scope.db == nil {
		return core.Collection{}, fmt.Errorf("sqlstore: collection store is not configured")
	}
	if strings.TrimSpace(collection.ReadableID) == "" {
		return core.Collection{}, fmt.Errorf("sqlstore: readable id is required")
	}
	record := newCollectionRecord(collection, s.scope.timestamp())
	if _, err := s.scope.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return core.Collection{}, fmt.Errorf("%w: %s", core.ErrReadableIDTaken, collection.ReadableID)
		}
		return core.Collection{}, err
	}
	return record.toDomain(), nil
}

func (s *CollectionStore) GetByReadableID(ctx context.Context, organizationID string, readableID string) (core.Collection, error) {
	if s == nil || s.scope.db == nil {
		return core.Collection{}, fmt.Errorf("sqlstore: collection store is not configured")
	}
	record := &collectionRecord{}
	err := s.scope.db.NewSelect().
		Model(record).
		Where("?TableAlias.readable_id = ?", strings.TrimSpace(readableID)).
		Where("?TableAlias.organization_id = ?", strings.TrimSpace(organizationID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.Collection{}, fmt.Errorf("%w: %s", core.ErrCollectionNotFound, readableID)
		}
		return core.Collection{}, err
	}
	return record.toDomain(), nil
}

// ReadableIDExists checks across every organization; readable ids are
// globally unique.
func (s *CollectionStore) ReadableIDExists(ctx context.Context, readableID string) (bool, error) {
	if s == nil || s.scope.db == nil {
		return false, fmt.Errorf("sqlstore: collection store is not configured")
	}
	return s.scope.db.NewSelect().
		Model((*collectionRecord)(nil)).
		Where("?TableAlias.readable_id = ?", strings.TrimSpace(readableID)).
		Exists(ctx)
}
