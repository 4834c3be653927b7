package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-source-connections/core"
)

type ConnectionStore struct {
	scope dbScope
}

func (s *ConnectionStore) Create(ctx context.Context, connection core.Connection) (core.Connection, error) {
	if s == nil || s.scope.db == nil || s.scope.repos == nil {
		return core.Connection{}, fmt.Errorf("sqlstore: connection store is not configured")
	}
	if strings.TrimSpace(connection.ShortName) == "" {
		return core.Connection{}, fmt.Errorf("sqlstore: short name is required")
	}
	if strings.TrimSpace(string(connection.IntegrationType)) == "" {
		return core.Connection{}, fmt.Errorf("sqlstore: integration type is required")
	}
	record := newConnectionRecord(connection, s.scope.timestamp())
	created, err := createRecord(ctx, s.scope, s.scope.repos.connections, record)
	if err != nil {
		return core.Connection{}, err
	}
	return created.toDomain(), nil
}

// Get resolves connections owned by the organization plus native
// connections, which carry no organization.
func (s *ConnectionStore) Get(ctx context.Context, organizationID string, id string) (core.Connection, error) {
	if s == nil || s.scope.db == nil {
		return core.Connection{}, fmt.Errorf("sqlstore: connection store is not configured")
	}
	record := &connectionRecord{}
	err := s.scope.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Where("(?TableAlias.organization_id = ? OR ?TableAlias.organization_id IS NULL)", strings.TrimSpace(organizationID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.Connection{}, fmt.Errorf("%w: %s", core.ErrConnectionNotFound, id)
		}
		return core.Connection{}, err
	}
	return record.toDomain(), nil
}

func (s *ConnectionStore) Delete(ctx context.Context, organizationID string, id string) error {
	if s == nil || s.scope.db == nil {
		return fmt.Errorf("sqlstore: connection store is not configured")
	}
	trimmedOrg := strings.TrimSpace(organizationID)
	if trimmedOrg == "" {
		return fmt.Errorf("%w: %s", core.ErrConnectionNotFound, id)
	}
	result, err := s.scope.db.NewDelete().
		Model((*connectionRecord)(nil)).
		Where("id = ?", strings.TrimSpace(id)).
		Where("organization_id = ?", trimmedOrg).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: %s", core.ErrConnectionNotFound, id)
	}
	return nil
}

func (s *ConnectionStore) CountByCredential(ctx context.Context, credentialID string) (int, error) {
	if s == nil || s.scope.db == nil {
		return 0, fmt.Errorf("sqlstore: connection store is not configured")
	}
	return s.scope.db.NewSelect().
		Model((*connectionRecord)(nil)).
		Where("?TableAlias.integration_credential_id = ?", strings.TrimSpace(credentialID)).
		Count(ctx)
}
