package command

import (
	"strings"

	"github.com/goliatone/go-source-connections/core"
)

const (
	TypeCreateSourceConnection = "source_connections.command.create"
	TypeBeginHandshake         = "source_connections.command.handshake.begin"
	TypeCompleteHandshake      = "source_connections.command.handshake.complete"
	TypeDeleteSourceConnection = "source_connections.command.delete"
	TypeRunSourceConnection    = "source_connections.command.run"
	TypeUpdateSyncJob          = "source_connections.command.sync_job.update"
	TypeUpsertEntities         = "source_connections.command.entities.upsert"
	TypeMarkEntities           = "source_connections.command.entities.mark"
	TypeApplyEntityDiff        = "source_connections.command.entities.apply"
	TypePruneEntities          = "source_connections.command.entities.prune"
	TypeUpsertSource           = "source_connections.command.source.upsert"
)

type CreateSourceConnectionMessage struct {
	Request core.CreateSourceConnectionRequest
}

func (CreateSourceConnectionMessage) Type() string { return TypeCreateSourceConnection }

func (m CreateSourceConnectionMessage) Validate() error {
	if err := requireOrganization(m.Request.OrganizationID); err != nil {
		return err
	}
	return requireField("short_name", m.Request.ShortName)
}

type BeginHandshakeMessage struct {
	Request core.BeginHandshakeRequest
}

func (BeginHandshakeMessage) Type() string { return TypeBeginHandshake }

func (m BeginHandshakeMessage) Validate() error {
	if err := requireOrganization(m.Request.OrganizationID); err != nil {
		return err
	}
	return requireField("short_name", m.Request.ShortName)
}

// CompleteHandshakeMessage carries the provider callback. It is not scoped
// to an organization; the state token identifies the session.
type CompleteHandshakeMessage struct {
	State string
	Code  string
}

func (CompleteHandshakeMessage) Type() string { return TypeCompleteHandshake }

func (m CompleteHandshakeMessage) Validate() error {
	if err := requireField("state", m.State); err != nil {
		return err
	}
	return requireField("code", m.Code)
}

type DeleteSourceConnectionMessage struct {
	OrganizationID     string
	SourceConnectionID string
	DeleteData         bool
}

func (DeleteSourceConnectionMessage) Type() string { return TypeDeleteSourceConnection }

func (m DeleteSourceConnectionMessage) Validate() error {
	if err := requireOrganization(m.OrganizationID); err != nil {
		return err
	}
	return requireField("source_connection_id", m.SourceConnectionID)
}

type RunSourceConnectionMessage struct {
	OrganizationID     string
	SourceConnectionID string
}

func (RunSourceConnectionMessage) Type() string { return TypeRunSourceConnection }

func (m RunSourceConnectionMessage) Validate() error {
	if err := requireOrganization(m.OrganizationID); err != nil {
		return err
	}
	return requireField("source_connection_id", m.SourceConnectionID)
}

type UpdateSyncJobMessage struct {
	Request core.UpdateSyncJobRequest
}

func (UpdateSyncJobMessage) Type() string { return TypeUpdateSyncJob }

func (m UpdateSyncJobMessage) Validate() error {
	return requireField("sync_job_id", m.Request.SyncJobID)
}

type UpsertEntitiesMessage struct {
	Request core.UpsertEntitiesRequest
}

func (UpsertEntitiesMessage) Type() string { return TypeUpsertEntities }

func (m UpsertEntitiesMessage) Validate() error {
	return validateSyncJob(m.Request.SyncID, m.Request.SyncJobID)
}

type MarkEntitiesMessage struct {
	SyncID    string
	SyncJobID string
	EntityIDs []string
}

func (MarkEntitiesMessage) Type() string { return TypeMarkEntities }

func (m MarkEntitiesMessage) Validate() error {
	return validateSyncJob(m.SyncID, m.SyncJobID)
}

type ApplyEntityDiffMessage struct {
	Request core.UpsertEntitiesRequest
}

func (ApplyEntityDiffMessage) Type() string { return TypeApplyEntityDiff }

func (m ApplyEntityDiffMessage) Validate() error {
	return validateSyncJob(m.Request.SyncID, m.Request.SyncJobID)
}

type PruneEntitiesMessage struct {
	SyncID    string
	SyncJobID string
}

func (PruneEntitiesMessage) Type() string { return TypePruneEntities }

func (m PruneEntitiesMessage) Validate() error {
	return validateSyncJob(m.SyncID, m.SyncJobID)
}

type UpsertSourceMessage struct {
	Source core.Source
}

func (UpsertSourceMessage) Type() string { return TypeUpsertSource }

func (m UpsertSourceMessage) Validate() error {
	if err := requireField("short_name", m.Source.ShortName); err != nil {
		return err
	}
	return requireField("auth_method", string(m.Source.AuthMethod))
}

func requireOrganization(organizationID string) error {
	return requireField("organization_id", organizationID)
}

func validateSyncJob(syncID string, jobID string) error {
	if err := requireField("sync_id", syncID); err != nil {
		return err
	}
	return requireField("sync_job_id", jobID)
}

func requireField(field string, value string) error {
	if strings.TrimSpace(value) == "" {
		return commandValidationError(field, field+" is required")
	}
	return nil
}
