package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-source-connections/core"
)

// MutatingService is the slice of core.Service the commands drive.
type MutatingService interface {
	CreateSourceConnection(ctx context.Context, req core.CreateSourceConnectionRequest) (core.SourceConnectionDetails, error)
	BeginHandshake(ctx context.Context, req core.BeginHandshakeRequest) (core.BeginHandshakeResult, error)
	CompleteHandshake(ctx context.Context, req core.CompleteHandshakeRequest) (core.CompleteHandshakeResult, error)
	DeleteSourceConnection(ctx context.Context, req core.DeleteSourceConnectionRequest) (core.SourceConnection, error)
	RunSourceConnection(ctx context.Context, req core.RunSourceConnectionRequest) (core.SyncJob, error)
	UpdateSyncJob(ctx context.Context, req core.UpdateSyncJobRequest) (core.SyncJob, error)
}

type EntityDiffService interface {
	BulkUpsert(ctx context.Context, req core.UpsertEntitiesRequest) ([]core.Entity, error)
	MarkJob(ctx context.Context, syncID string, jobID string, entityIDs []string) (int, error)
	Apply(ctx context.Context, req core.UpsertEntitiesRequest) (core.DiffResult, error)
	Prune(ctx context.Context, syncID string, jobID string) ([]core.Entity, error)
}

type CreateSourceConnectionCommand struct {
	service MutatingService
}

func NewCreateSourceConnectionCommand(service MutatingService) *CreateSourceConnectionCommand {
	return &CreateSourceConnectionCommand{service: service}
}

func (c *CreateSourceConnectionCommand) Execute(ctx context.Context, msg CreateSourceConnectionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: source connection service is required")
	}
	out, err := c.service.CreateSourceConnection(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type BeginHandshakeCommand struct {
	service MutatingService
}

func NewBeginHandshakeCommand(service MutatingService) *BeginHandshakeCommand {
	return &BeginHandshakeCommand{service: service}
}

func (c *BeginHandshakeCommand) Execute(ctx context.Context, msg BeginHandshakeMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: handshake service is required")
	}
	out, err := c.service.BeginHandshake(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CompleteHandshakeCommand struct {
	service MutatingService
}

func NewCompleteHandshakeCommand(service MutatingService) *CompleteHandshakeCommand {
	return &CompleteHandshakeCommand{service: service}
}

func (c *CompleteHandshakeCommand) Execute(ctx context.Context, msg CompleteHandshakeMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: handshake service is required")
	}
	out, err := c.service.CompleteHandshake(ctx, core.CompleteHandshakeRequest{State: msg.State, Code: msg.Code})
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DeleteSourceConnectionCommand struct {
	service MutatingService
}

func NewDeleteSourceConnectionCommand(service MutatingService) *DeleteSourceConnectionCommand {
	return &DeleteSourceConnectionCommand{service: service}
}

func (c *DeleteSourceConnectionCommand) Execute(ctx context.Context, msg DeleteSourceConnectionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: source connection service is required")
	}
	out, err := c.service.DeleteSourceConnection(ctx, core.DeleteSourceConnectionRequest{
		OrganizationID:     msg.OrganizationID,
		SourceConnectionID: msg.SourceConnectionID,
		DeleteData:         msg.DeleteData,
	})
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RunSourceConnectionCommand struct {
	service MutatingService
}

func NewRunSourceConnectionCommand(service MutatingService) *RunSourceConnectionCommand {
	return &RunSourceConnectionCommand{service: service}
}

func (c *RunSourceConnectionCommand) Execute(ctx context.Context, msg RunSourceConnectionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: source connection service is required")
	}
	out, err := c.service.RunSourceConnection(ctx, core.RunSourceConnectionRequest{
		OrganizationID:     msg.OrganizationID,
		SourceConnectionID: msg.SourceConnectionID,
	})
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UpdateSyncJobCommand struct {
	service MutatingService
}

func NewUpdateSyncJobCommand(service MutatingService) *UpdateSyncJobCommand {
	return &UpdateSyncJobCommand{service: service}
}

func (c *UpdateSyncJobCommand) Execute(ctx context.Context, msg UpdateSyncJobMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: sync job service is required")
	}
	out, err := c.service.UpdateSyncJob(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UpsertEntitiesCommand struct {
	diff EntityDiffService
}

func NewUpsertEntitiesCommand(diff EntityDiffService) *UpsertEntitiesCommand {
	return &UpsertEntitiesCommand{diff: diff}
}

func (c *UpsertEntitiesCommand) Execute(ctx context.Context, msg UpsertEntitiesMessage) error {
	if c == nil || c.diff == nil {
		return commandDependencyError("command: entity diff engine is required")
	}
	out, err := c.diff.BulkUpsert(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type MarkEntitiesCommand struct {
	diff EntityDiffService
}

func NewMarkEntitiesCommand(diff EntityDiffService) *MarkEntitiesCommand {
	return &MarkEntitiesCommand{diff: diff}
}

func (c *MarkEntitiesCommand) Execute(ctx context.Context, msg MarkEntitiesMessage) error {
	if c == nil || c.diff == nil {
		return commandDependencyError("command: entity diff engine is required")
	}
	stamped, err := c.diff.MarkJob(ctx, msg.SyncID, msg.SyncJobID, msg.EntityIDs)
	if err != nil {
		return err
	}
	storeResult(ctx, stamped)
	return nil
}

type ApplyEntityDiffCommand struct {
	diff EntityDiffService
}

func NewApplyEntityDiffCommand(diff EntityDiffService) *ApplyEntityDiffCommand {
	return &ApplyEntityDiffCommand{diff: diff}
}

func (c *ApplyEntityDiffCommand) Execute(ctx context.Context, msg ApplyEntityDiffMessage) error {
	if c == nil || c.diff == nil {
		return commandDependencyError("command: entity diff engine is required")
	}
	out, err := c.diff.Apply(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type PruneEntitiesCommand struct {
	diff EntityDiffService
}

func NewPruneEntitiesCommand(diff EntityDiffService) *PruneEntitiesCommand {
	return &PruneEntitiesCommand{diff: diff}
}

func (c *PruneEntitiesCommand) Execute(ctx context.Context, msg PruneEntitiesMessage) error {
	if c == nil || c.diff == nil {
		return commandDependencyError("command: entity diff engine is required")
	}
	out, err := c.diff.Prune(ctx, msg.SyncID, msg.SyncJobID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

// UpsertSourceCommand seeds or refreshes catalog rows.
type UpsertSourceCommand struct {
	writer core.SourceWriter
}

func NewUpsertSourceCommand(writer core.SourceWriter) *UpsertSourceCommand {
	return &UpsertSourceCommand{writer: writer}
}

func (c *UpsertSourceCommand) Execute(ctx context.Context, msg UpsertSourceMessage) error {
	if c == nil || c.writer == nil {
		return commandDependencyError("command: source catalog writer is required")
	}
	out, err := c.writer.UpsertSource(ctx, msg.Source)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
