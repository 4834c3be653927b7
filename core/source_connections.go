package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type GetSourceConnectionRequest struct {
	OrganizationID     string
	SourceConnectionID string
	Reveal             bool
}

type ListSourceConnectionsRequest struct {
	OrganizationID       string
	ReadableCollectionID string
	Limit                int
	Offset               int
}

type DeleteSourceConnectionRequest struct {
	OrganizationID     string
	SourceConnectionID string
	DeleteData         bool
}

type RunSourceConnectionRequest struct {
	OrganizationID     string
	SourceConnectionID string
}

type ListSourceConnectionJobsRequest struct {
	OrganizationID     string
	SourceConnectionID string
	Limit              int
}

// UpdateSyncJobRequest reports progress from a sync worker. Nil counters are
// left unchanged.
type UpdateSyncJobRequest struct {
	SyncJobID        string
	Status           SyncJobStatus
	EntitiesInserted *int
	EntitiesUpdated  *int
	EntitiesDeleted  *int
	EntitiesKept     *int
	EntitiesSkipped  *int
	Error            string
}

func (s *Service) GetSourceConnection(ctx context.Context, req GetSourceConnectionRequest) (details SourceConnectionDetails, err error) {
	if s == nil {
		return SourceConnectionDetails{}, fmt.Errorf("core: service is nil")
	}
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"organization_id":      strings.TrimSpace(req.OrganizationID),
		"source_connection_id": strings.TrimSpace(req.SourceConnectionID),
		"reveal":               req.Reveal,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "get_source_connection", err, fields)
	}()

	stores := s.persistence.Stores()
	sc, err := s.loadSourceConnection(ctx, stores, req.OrganizationID, req.SourceConnectionID)
	if err != nil {
		return SourceConnectionDetails{}, s.mapError(err)
	}
	fields["short_name"] = sc.ShortName
	details, err = s.describe(ctx, stores, sc)
	if err != nil {
		return SourceConnectionDetails{}, s.mapError(err)
	}
	authFields, method, err := s.credentialView(ctx, stores, sc, req.Reveal)
	if err != nil {
		return SourceConnectionDetails{}, s.mapError(err)
	}
	details.AuthFields = authFields
	details.AuthMethod = method
	return details, nil
}

func (s *Service) ListSourceConnections(ctx context.Context, req ListSourceConnectionsRequest) (items []SourceConnectionDetails, err error) {
	if s == nil {
		return nil, fmt.Errorf("core: service is nil")
	}
	startedAt := time.Now().UTC()
	organizationID := strings.TrimSpace(req.OrganizationID)
	fields := map[string]any{
		"organization_id":        organizationID,
		"readable_collection_id": strings.TrimSpace(req.ReadableCollectionID),
	}
	defer func() {
		fields["count"] = len(items)
		s.observeOperation(ctx, startedAt, "list_source_connections", err, fields)
	}()

	if organizationID == "" {
		return nil, s.mapError(BadInputError("organization_id", "organization_id is required"))
	}
	stores := s.persistence.Stores()
	rows, err := stores.SourceConnections().List(ctx, organizationID, SourceConnectionFilter{
		ReadableCollectionID: strings.TrimSpace(req.ReadableCollectionID),
		Limit:                clampLimit(req.Limit),
		Offset:               max(req.Offset, 0),
	})
	if err != nil {
		return nil, s.mapError(err)
	}
	items = make([]SourceConnectionDetails, 0, len(rows))
	for _, row := range rows {
		details, err := s.describe(ctx, stores, row)
		if err != nil {
			return nil, s.mapError(err)
		}
		items = append(items, details)
	}
	return items, nil
}

// DeleteSourceConnection removes the aggregate and the records it owns.
// Destination cleanup is best effort; its failure is logged and ignored.
func (s *Service) DeleteSourceConnection(ctx context.Context, req DeleteSourceConnectionRequest) (deleted SourceConnection, err error) {
	if s == nil {
		return SourceConnection{}, fmt.Errorf("core: service is nil")
	}
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"organization_id":      strings.TrimSpace(req.OrganizationID),
		"source_connection_id": strings.TrimSpace(req.SourceConnectionID),
		"delete_data":          req.DeleteData,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "delete_source_connection", err, fields)
	}()

	sc, err := s.loadSourceConnection(ctx, s.persistence.Stores(), req.OrganizationID, req.SourceConnectionID)
	if err != nil {
		return SourceConnection{}, s.mapError(err)
	}
	fields["short_name"] = sc.ShortName

	if req.DeleteData && sc.SyncID != "" && s.destinationCleanup != nil {
		if cleanupErr := s.destinationCleanup.DeleteBySyncID(ctx, sc.SyncID); cleanupErr != nil {
			s.logWarn(ctx, "destination cleanup failed", map[string]any{
				"organization_id":      sc.OrganizationID,
				"source_connection_id": sc.ID,
				"sync_id":              sc.SyncID,
				"error":                cleanupErr.Error(),
			})
		}
	}

	err = s.persistence.RunInTx(ctx, func(ctx context.Context, tx TxStores) error {
		if err := tx.SourceConnections().Delete(ctx, sc.OrganizationID, sc.ID); err != nil {
			return err
		}
		if sc.SyncID != "" {
			if err := tx.SyncJobs().DeleteBySync(ctx, sc.SyncID); err != nil {
				return err
			}
			if err := tx.Entities().DeleteBySync(ctx, sc.SyncID); err != nil {
				return err
			}
			if err := tx.Syncs().Delete(ctx, sc.OrganizationID, sc.SyncID); err != nil && !isNotFound(err, ErrSyncNotFound) {
				return err
			}
		}
		if sc.ConnectionID == "" {
			return nil
		}
		connection, err := tx.Connections().Get(ctx, sc.OrganizationID, sc.ConnectionID)
		if err != nil {
			if isNotFound(err, ErrConnectionNotFound) {
				return nil
			}
			return err
		}
		if connection.IsNative() {
			return nil
		}
		credentialID := connection.IntegrationCredentialID
		if err := tx.Connections().Delete(ctx, sc.OrganizationID, connection.ID); err != nil {
			return err
		}
		if credentialID == "" {
			return nil
		}
		remaining, err := tx.Connections().CountByCredential(ctx, credentialID)
		if err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}
		if err := tx.Credentials().Delete(ctx, sc.OrganizationID, credentialID); err != nil && !isNotFound(err, ErrCredentialNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return SourceConnection{}, s.mapError(err)
	}
	return sc, nil
}

// RunSourceConnection triggers a new job for the connection's sync.
func (s *Service) RunSourceConnection(ctx context.Context, req RunSourceConnectionRequest) (job SyncJob, err error) {
	if s == nil {
		return SyncJob{}, fmt.Errorf("core: service is nil")
	}
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"organization_id":      strings.TrimSpace(req.OrganizationID),
		"source_connection_id": strings.TrimSpace(req.SourceConnectionID),
	}
	defer func() {
		if job.ID != "" {
			fields["sync_job_id"] = job.ID
		}
		s.observeOperation(ctx, startedAt, "run_source_connection", err, fields)
	}()

	stores := s.persistence.Stores()
	sc, err := s.loadSourceConnection(ctx, stores, req.OrganizationID, req.SourceConnectionID)
	if err != nil {
		return SyncJob{}, s.mapError(err)
	}
	fields["short_name"] = sc.ShortName
	if !sc.IsAuthenticated || sc.SyncID == "" {
		return SyncJob{}, s.mapError(InvalidStateError(
			"source connection has no authenticated sync to run",
			map[string]any{"source_connection_id": sc.ID},
		))
	}
	latest, err := stores.SyncJobs().LatestBySync(ctx, sc.SyncID)
	switch {
	case err == nil:
		if latest.Status == SyncJobStatusPending || latest.Status == SyncJobStatusRunning {
			return SyncJob{}, s.mapError(InvalidStateError(
				"source connection already has a job in progress",
				map[string]any{"source_connection_id": sc.ID, "sync_job_id": latest.ID},
			))
		}
	case isNotFound(err, ErrSyncJobNotFound):
	default:
		return SyncJob{}, s.mapError(err)
	}

	job, err = s.syncExecution.Trigger(ctx, sc.OrganizationID, sc.SyncID)
	if err != nil {
		return SyncJob{}, s.mapError(err)
	}
	return job, nil
}

func (s *Service) ListSourceConnectionJobs(ctx context.Context, req ListSourceConnectionJobsRequest) (jobs []SyncJob, err error) {
	if s == nil {
		return nil, fmt.Errorf("core: service is nil")
	}
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"organization_id":      strings.TrimSpace(req.OrganizationID),
		"source_connection_id": strings.TrimSpace(req.SourceConnectionID),
	}
	defer func() {
		fields["count"] = len(jobs)
		s.observeOperation(ctx, startedAt, "list_source_connection_jobs", err, fields)
	}()

	sc, err := s.loadSourceConnection(ctx, s.persistence.Stores(), req.OrganizationID, req.SourceConnectionID)
	if err != nil {
		return nil, s.mapError(err)
	}
	if sc.SyncID == "" {
		return []SyncJob{}, nil
	}
	jobs, err = s.syncExecution.ListJobs(ctx, sc.OrganizationID, sc.SyncID, clampLimit(req.Limit))
	if err != nil {
		return nil, s.mapError(err)
	}
	return jobs, nil
}

// UpdateSyncJob applies a status transition and counters reported by a sync
// worker.
func (s *Service) UpdateSyncJob(ctx context.Context, req UpdateSyncJobRequest) (job SyncJob, err error) {
	if s == nil {
		return SyncJob{}, fmt.Errorf("core: service is nil")
	}
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"sync_job_id": strings.TrimSpace(req.SyncJobID),
		"status":      string(req.Status),
	}
	defer func() {
		if job.SyncID != "" {
			fields["organization_id"] = job.OrganizationID
			fields["sync_id"] = job.SyncID
		}
		s.observeOperation(ctx, startedAt, "update_sync_job", err, fields)
	}()

	jobID := strings.TrimSpace(req.SyncJobID)
	if jobID == "" {
		return SyncJob{}, s.mapError(BadInputError("sync_job_id", "sync_job_id is required"))
	}
	err = s.persistence.RunInTx(ctx, func(ctx context.Context, tx TxStores) error {
		current, err := tx.SyncJobs().Get(ctx, jobID)
		if err != nil {
			return err
		}
		if req.Status != "" {
			if err := current.TransitionTo(req.Status, s.now()); err != nil {
				return InvalidStateError(err.Error(), map[string]any{
					"sync_job_id": current.ID,
					"status":      string(current.Status),
				})
			}
		}
		applyCounter(&current.EntitiesInserted, req.EntitiesInserted)
		applyCounter(&current.EntitiesUpdated, req.EntitiesUpdated)
		applyCounter(&current.EntitiesDeleted, req.EntitiesDeleted)
		applyCounter(&current.EntitiesKept, req.EntitiesKept)
		applyCounter(&current.EntitiesSkipped, req.EntitiesSkipped)
		if msg := strings.TrimSpace(req.Error); msg != "" {
			current.Error = msg
		}
		updated, err := tx.SyncJobs().Update(ctx, current)
		if err != nil {
			return err
		}
		job = updated
		return nil
	})
	if err != nil {
		return SyncJob{}, s.mapError(err)
	}
	return job, nil
}

func (s *Service) loadSourceConnection(ctx context.Context, stores TxStores, organizationID string, id string) (SourceConnection, error) {
	organizationID = strings.TrimSpace(organizationID)
	id = strings.TrimSpace(id)
	if organizationID == "" {
		return SourceConnection{}, BadInputError("organization_id", "organization_id is required")
	}
	if id == "" {
		return SourceConnection{}, BadInputError("source_connection_id", "source_connection_id is required")
	}
	sc, err := stores.SourceConnections().Get(ctx, organizationID, id)
	if err != nil {
		if isNotFound(err, ErrSourceConnectionNotFound) {
			return SourceConnection{}, NotFoundError("source_connection", id)
		}
		return SourceConnection{}, err
	}
	return sc, nil
}

func (s *Service) describe(ctx context.Context, stores TxStores, sc SourceConnection) (SourceConnectionDetails, error) {
	sync, latest, err := s.syncState(ctx, stores, sc)
	if err != nil {
		return SourceConnectionDetails{}, err
	}
	return SourceConnectionDetails{
		SourceConnection: sc,
		Status:           DeriveSourceConnectionStatus(sc, sync, latest),
		Sync:             sync,
		SyncJob:          latest,
	}, nil
}

func (s *Service) deriveStatus(ctx context.Context, stores TxStores, sc SourceConnection) (SourceConnectionStatus, error) {
	sync, latest, err := s.syncState(ctx, stores, sc)
	if err != nil {
		return "", err
	}
	return DeriveSourceConnectionStatus(sc, sync, latest), nil
}

func (s *Service) syncState(ctx context.Context, stores TxStores, sc SourceConnection) (*Sync, *SyncJob, error) {
	if sc.SyncID == "" {
		return nil, nil, nil
	}
	sync, err := stores.Syncs().Get(ctx, sc.OrganizationID, sc.SyncID)
	if err != nil {
		if isNotFound(err, ErrSyncNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	latest, err := stores.SyncJobs().LatestBySync(ctx, sync.ID)
	if err != nil {
		if isNotFound(err, ErrSyncJobNotFound) {
			return &sync, nil, nil
		}
		return nil, nil, err
	}
	return &sync, &latest, nil
}

// credentialView returns the auth fields to show for sc. Without reveal only
// field names survive.
func (s *Service) credentialView(ctx context.Context, stores TxStores, sc SourceConnection, reveal bool) (map[string]any, AuthMethod, error) {
	if sc.ConnectionID == "" {
		return nil, "", nil
	}
	connection, err := stores.Connections().Get(ctx, sc.OrganizationID, sc.ConnectionID)
	if err != nil {
		if isNotFound(err, ErrConnectionNotFound) {
			return nil, "", nil
		}
		return nil, "", err
	}
	if connection.IntegrationCredentialID == "" {
		if sc.AuthProviderConnectionID != "" {
			return nil, AuthMethodAuthProvider, nil
		}
		return nil, AuthMethodNone, nil
	}
	credential, err := stores.Credentials().Get(ctx, sc.OrganizationID, connection.IntegrationCredentialID)
	if err != nil {
		if isNotFound(err, ErrCredentialNotFound) {
			return nil, "", ForbiddenError(
				"credential is not visible to this organization",
				map[string]any{"source_connection_id": sc.ID},
			)
		}
		return nil, "", err
	}
	if reveal {
		fields, err := s.vault.Decrypt(ctx, credential.EncryptedCredentials)
		if err != nil {
			return nil, "", err
		}
		return fields, credential.AuthMethod, nil
	}
	return s.maskedAuthFields(ctx, sc.ShortName), credential.AuthMethod, nil
}

// maskedAuthFields lists the source's auth schema fields without decrypting
// anything. Unknown schemas fall back to a single masked entry.
func (s *Service) maskedAuthFields(ctx context.Context, shortName string) map[string]any {
	fallback := map[string]any{"credentials": MaskedValue}
	source, err := s.catalog.GetSource(ctx, shortName)
	if err != nil {
		return fallback
	}
	schema, err := s.schemas.ResolveAuthSchema(source)
	if err != nil || len(schema.Fields) == 0 {
		return fallback
	}
	out := make(map[string]any, len(schema.Fields))
	for _, field := range schema.Fields {
		out[field.Name] = MaskedValue
	}
	return out
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}

func applyCounter(target *int, value *int) {
	if value == nil || *value < 0 {
		return
	}
	*target = *value
}
