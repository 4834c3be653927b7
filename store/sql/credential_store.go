package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-source-connections/core"
)

type CredentialStore struct {
	scope dbScope
}

func (s *CredentialStore) Create(ctx context.Context, credential core.IntegrationCredential) (core.IntegrationCredential, error) {
	if s == nil || s.scope.db == nil || s.scope.repos == nil {
		return core.IntegrationCredential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	if strings.TrimSpace(credential.OrganizationID) == "" {
		return core.IntegrationCredential{}, fmt.Errorf("sqlstore: organization id is required")
	}
	if len(credential.EncryptedCredentials) == 0 {
		return core.IntegrationCredential{}, fmt.Errorf("sqlstore: encrypted credentials are required")
	}
	record := newCredentialRecord(credential, s.scope.timestamp())
	created, err := createRecord(ctx, s.scope, s.scope.repos.credentials, record)
	if err != nil {
		return core.IntegrationCredential{}, err
	}
	return created.toDomain(), nil
}

func (s *CredentialStore) Get(ctx context.Context, organizationID string, id string) (core.IntegrationCredential, error) {
	if s == nil || s.scope.db == nil {
		return core.IntegrationCredential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	record := &credentialRecord{}
	err := s.scope.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Where("?TableAlias.organization_id = ?", strings.TrimSpace(organizationID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.IntegrationCredential{}, fmt.Errorf("%w: %s", core.ErrCredentialNotFound, id)
		}
		return core.IntegrationCredential{}, err
	}
	return record.toDomain(), nil
}

func (s *CredentialStore) Delete(ctx context.Context, organizationID string, id string) error {
	if s == nil || s.scope.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	result, err := s.scope.db.NewDelete().
		Model((*credentialRecord)(nil)).
		Where("id = ?", strings.TrimSpace(id)).
		Where("organization_id = ?", strings.TrimSpace(organizationID)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: %s", core.ErrCredentialNotFound, id)
	}
	return nil
}
