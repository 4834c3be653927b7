package sqlstore

import (
	"time"

	"github.com/goliatone/go-source-connections/core"
)

func newSourceRecord(source core.Source) *sourceRecord {
	return &sourceRecord{
		ShortName:            source.ShortName,
		Name:                 source.Name,
		Description:          source.Description,
		Kind:                 string(source.Kind),
		AuthMethod:           string(source.AuthMethod),
		OAuthType:            string(source.OAuthType),
		AuthSchema:           source.AuthSchema,
		ConfigSchema:         source.ConfigSchema,
		RequiresBYOC:         source.RequiresBYOC,
		SupportsAuthProvider: source.SupportsAuthProvider,
		Labels:               copyStrings(source.Labels),
		CreatedAt:            source.CreatedAt,
		UpdatedAt:            source.UpdatedAt,
	}
}

func (r *sourceRecord) toDomain() core.Source {
	if r == nil {
		return core.Source{}
	}
	return core.Source{
		ShortName:            r.ShortName,
		Name:                 r.Name,
		Description:          r.Description,
		Kind:                 core.IntegrationType(r.Kind),
		AuthMethod:           core.AuthMethod(r.AuthMethod),
		OAuthType:            core.OAuthType(r.OAuthType),
		AuthSchema:           r.AuthSchema,
		ConfigSchema:         r.ConfigSchema,
		RequiresBYOC:         r.RequiresBYOC,
		SupportsAuthProvider: r.SupportsAuthProvider,
		Labels:               copyStrings(r.Labels),
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

func newCredentialRecord(in core.IntegrationCredential, now time.Time) *credentialRecord {
	return &credentialRecord{
		ID:                   ensureID(in.ID),
		OrganizationID:       in.OrganizationID,
		Name:                 in.Name,
		Description:          in.Description,
		IntegrationShortName: in.IntegrationShortName,
		AuthMethod:           string(in.AuthMethod),
		OAuthType:            string(in.OAuthType),
		EncryptedCredentials: append([]byte(nil), in.EncryptedCredentials...),
		EncryptionKeyID:      in.EncryptionKeyID,
		EncryptionVersion:    in.EncryptionVersion,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

func (r *credentialRecord) toDomain() core.IntegrationCredential {
	if r == nil {
		return core.IntegrationCredential{}
	}
	return core.IntegrationCredential{
		ID:                   r.ID,
		OrganizationID:       r.OrganizationID,
		Name:                 r.Name,
		Description:          r.Description,
		IntegrationShortName: r.IntegrationShortName,
		AuthMethod:           core.AuthMethod(r.AuthMethod),
		OAuthType:            core.OAuthType(r.OAuthType),
		EncryptedCredentials: append([]byte(nil), r.EncryptedCredentials...),
		EncryptionKeyID:      r.EncryptionKeyID,
		EncryptionVersion:    r.EncryptionVersion,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

func newConnectionRecord(in core.Connection, now time.Time) *connectionRecord {
	status := in.Status
	if status == "" {
		status = core.ConnectionStatusActive
	}
	return &connectionRecord{
		ID:                      ensureID(in.ID),
		OrganizationID:          in.OrganizationID,
		Name:                    in.Name,
		IntegrationType:         string(in.IntegrationType),
		ShortName:               in.ShortName,
		IntegrationCredentialID: in.IntegrationCredentialID,
		Status:                  string(status),
		CreatedAt:               now,
		UpdatedAt:               now,
	}
}

func (r *connectionRecord) toDomain() core.Connection {
	if r == nil {
		return core.Connection{}
	}
	return core.Connection{
		ID:                      r.ID,
		OrganizationID:          r.OrganizationID,
		Name:                    r.Name,
		IntegrationType:         core.IntegrationType(r.IntegrationType),
		ShortName:               r.ShortName,
		IntegrationCredentialID: r.IntegrationCredentialID,
		Status:                  core.ConnectionStatus(r.Status),
		CreatedAt:               r.CreatedAt,
		UpdatedAt:               r.UpdatedAt,
	}
}

func newCollectionRecord(in core.Collection, now time.Time) *collectionRecord {
	return &collectionRecord{
		ID:             ensureID(in.ID),
		OrganizationID: in.OrganizationID,
		Name:           in.Name,
		ReadableID:     in.ReadableID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (r *collectionRecord) toDomain() core.Collection {
	if r == nil {
		return core.Collection{}
	}
	return core.Collection{
		ID:             r.ID,
		OrganizationID: r.OrganizationID,
		Name:           r.Name,
		ReadableID:     r.ReadableID,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func newSyncRecord(in core.Sync, now time.Time) *syncRecord {
	status := in.Status
	if status == "" {
		status = core.SyncStatusActive
	}
	return &syncRecord{
		ID:                       ensureID(in.ID),
		OrganizationID:           in.OrganizationID,
		Name:                     in.Name,
		SourceConnectionID:       in.SourceConnectionID,
		DestinationConnectionIDs: copyStrings(in.DestinationConnectionIDs),
		CronSchedule:             in.CronSchedule,
		NextScheduledRun:         cloneTimePointer(in.NextScheduledRun),
		Status:                   string(status),
		RunImmediately:           in.RunImmediately,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
}

func (r *syncRecord) toDomain() core.Sync {
	if r == nil {
		return core.Sync{}
	}
	return core.Sync{
		ID:                       r.ID,
		OrganizationID:           r.OrganizationID,
		Name:                     r.Name,
		SourceConnectionID:       r.SourceConnectionID,
		DestinationConnectionIDs: copyStrings(r.DestinationConnectionIDs),
		CronSchedule:             r.CronSchedule,
		NextScheduledRun:         cloneTimePointer(r.NextScheduledRun),
		Status:                   core.SyncStatus(r.Status),
		RunImmediately:           r.RunImmediately,
		CreatedAt:                r.CreatedAt,
		UpdatedAt:                r.UpdatedAt,
	}
}

func newSyncJobRecord(in core.SyncJob) *syncJobRecord {
	status := in.Status
	if status == "" {
		status = core.SyncJobStatusPending
	}
	return &syncJobRecord{
		ID:               in.ID,
		SyncID:           in.SyncID,
		OrganizationID:   in.OrganizationID,
		Status:           string(status),
		EntitiesInserted: in.EntitiesInserted,
		EntitiesUpdated:  in.EntitiesUpdated,
		EntitiesDeleted:  in.EntitiesDeleted,
		EntitiesKept:     in.EntitiesKept,
		EntitiesSkipped:  in.EntitiesSkipped,
		StartedAt:        cloneTimePointer(in.StartedAt),
		CompletedAt:      cloneTimePointer(in.CompletedAt),
		FailedAt:         cloneTimePointer(in.FailedAt),
		Error:            in.Error,
		CreatedAt:        in.CreatedAt,
		UpdatedAt:        in.UpdatedAt,
	}
}

func (r *syncJobRecord) toDomain() core.SyncJob {
	if r == nil {
		return core.SyncJob{}
	}
	return core.SyncJob{
		ID:               r.ID,
		SyncID:           r.SyncID,
		OrganizationID:   r.OrganizationID,
		Status:           core.SyncJobStatus(r.Status),
		EntitiesInserted: r.EntitiesInserted,
		EntitiesUpdated:  r.EntitiesUpdated,
		EntitiesDeleted:  r.EntitiesDeleted,
		EntitiesKept:     r.EntitiesKept,
		EntitiesSkipped:  r.EntitiesSkipped,
		StartedAt:        cloneTimePointer(r.StartedAt),
		CompletedAt:      cloneTimePointer(r.CompletedAt),
		FailedAt:         cloneTimePointer(r.FailedAt),
		Error:            r.Error,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func newSourceConnectionRecord(in core.SourceConnection) *sourceConnectionRecord {
	return &sourceConnectionRecord{
		ID:                       in.ID,
		OrganizationID:           in.OrganizationID,
		Name:                     in.Name,
		Description:              in.Description,
		ShortName:                in.ShortName,
		ConfigFields:             copyAnyMap(in.ConfigFields),
		ConnectionID:             in.ConnectionID,
		SyncID:                   in.SyncID,
		ReadableCollectionID:     in.ReadableCollectionID,
		AuthProviderConnectionID: in.AuthProviderConnectionID,
		AuthProviderConfig:       copyAnyMap(in.AuthProviderConfig),
		ConnectionInitSessionID:  in.ConnectionInitSessionID,
		IsAuthenticated:          in.IsAuthenticated,
		CreatedAt:                in.CreatedAt,
		UpdatedAt:                in.UpdatedAt,
	}
}

func (r *sourceConnectionRecord) toDomain() core.SourceConnection {
	if r == nil {
		return core.SourceConnection{}
	}
	return core.SourceConnection{
		ID:                       r.ID,
		OrganizationID:           r.OrganizationID,
		Name:                     r.Name,
		Description:              r.Description,
		ShortName:                r.ShortName,
		ConfigFields:             copyAnyMap(r.ConfigFields),
		ConnectionID:             r.ConnectionID,
		SyncID:                   r.SyncID,
		ReadableCollectionID:     r.ReadableCollectionID,
		AuthProviderConnectionID: r.AuthProviderConnectionID,
		AuthProviderConfig:       copyAnyMap(r.AuthProviderConfig),
		ConnectionInitSessionID:  r.ConnectionInitSessionID,
		IsAuthenticated:          r.IsAuthenticated,
		CreatedAt:                r.CreatedAt,
		UpdatedAt:                r.UpdatedAt,
	}
}

func newInitSessionRecord(in core.ConnectionInitSession, now time.Time) *initSessionRecord {
	status := in.Status
	if status == "" {
		status = core.InitSessionStatusPending
	}
	return &initSessionRecord{
		ID:                 ensureID(in.ID),
		OrganizationID:     in.OrganizationID,
		ShortName:          in.ShortName,
		State:              in.State,
		Payload:            copyAnyMap(in.Payload),
		Overrides:          copyAnyMap(in.Overrides),
		Status:             string(status),
		ExpiresAt:          in.ExpiresAt.UTC(),
		FinalConnectionID:  in.FinalConnectionID,
		SourceConnectionID: in.SourceConnectionID,
		RedirectURL:        in.RedirectURL,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func (r *initSessionRecord) toDomain() core.ConnectionInitSession {
	if r == nil {
		return core.ConnectionInitSession{}
	}
	return core.ConnectionInitSession{
		ID:                 r.ID,
		OrganizationID:     r.OrganizationID,
		ShortName:          r.ShortName,
		State:              r.State,
		Payload:            copyAnyMap(r.Payload),
		Overrides:          copyAnyMap(r.Overrides),
		Status:             core.InitSessionStatus(r.Status),
		ExpiresAt:          r.ExpiresAt,
		FinalConnectionID:  r.FinalConnectionID,
		SourceConnectionID: r.SourceConnectionID,
		RedirectURL:        r.RedirectURL,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

func (r *entityRecord) toDomain() core.Entity {
	if r == nil {
		return core.Entity{}
	}
	return core.Entity{
		ID:             r.ID,
		OrganizationID: r.OrganizationID,
		SyncID:         r.SyncID,
		EntityID:       r.EntityID,
		Hash:           r.Hash,
		SyncJobID:      r.SyncJobID,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// copyAnyMap never returns nil so jsonb columns stay NOT NULL.
func copyAnyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func copyStrings(in []string) []string {
	out := make([]string, 0, len(in))
	return append(out, in...)
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}
