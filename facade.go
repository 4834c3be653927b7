package sourceconnections

import (
	"context"
	"fmt"

	sourcecommand "github.com/goliatone/go-source-connections/command"
	"github.com/goliatone/go-source-connections/core"
	sourcequery "github.com/goliatone/go-source-connections/query"
)

// CommandQueryService is the surface the facade binds handlers to.
type CommandQueryService interface {
	sourcecommand.MutatingService
	sourcequery.SourceConnectionReader
	EntityDiff() *core.EntityDiffEngine
	Dependencies() core.ServiceDependencies
}

type Commands struct {
	CreateSourceConnection *sourcecommand.CreateSourceConnectionCommand
	BeginHandshake         *sourcecommand.BeginHandshakeCommand
	CompleteHandshake      *sourcecommand.CompleteHandshakeCommand
	DeleteSourceConnection *sourcecommand.DeleteSourceConnectionCommand
	RunSourceConnection    *sourcecommand.RunSourceConnectionCommand
	UpdateSyncJob          *sourcecommand.UpdateSyncJobCommand
	UpsertEntities         *sourcecommand.UpsertEntitiesCommand
	MarkEntities           *sourcecommand.MarkEntitiesCommand
	ApplyEntityDiff        *sourcecommand.ApplyEntityDiffCommand
	PruneEntities          *sourcecommand.PruneEntitiesCommand
	// UpsertSource is nil when the catalog is read only.
	UpsertSource *sourcecommand.UpsertSourceCommand
}

type Queries struct {
	GetSourceConnection      *sourcequery.GetSourceConnectionQuery
	ListSourceConnections    *sourcequery.ListSourceConnectionsQuery
	ListSourceConnectionJobs *sourcequery.ListSourceConnectionJobsQuery
	CollectionStatus         *sourcequery.CollectionStatusQuery
	GetSource                *sourcequery.GetSourceQuery
	ListSources              *sourcequery.ListSourcesQuery
	ListOutdatedEntities     *sourcequery.ListOutdatedEntitiesQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	sourceWriter core.SourceWriter
}

// WithSourceWriter overrides the writer used by the UpsertSource command.
func WithSourceWriter(writer core.SourceWriter) FacadeOption {
	return func(options *facadeOptions) {
		options.sourceWriter = writer
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("sourceconnections: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	deps := service.Dependencies()
	catalog := deps.SourceCatalog
	if catalog == nil {
		return nil, fmt.Errorf("sourceconnections: source catalog is required")
	}
	writer := cfg.sourceWriter
	if writer == nil {
		writer, _ = catalog.(core.SourceWriter)
	}
	diff := service.EntityDiff()

	facade := &Facade{service: service}
	facade.commands = Commands{
		CreateSourceConnection: sourcecommand.NewCreateSourceConnectionCommand(service),
		BeginHandshake:         sourcecommand.NewBeginHandshakeCommand(service),
		CompleteHandshake:      sourcecommand.NewCompleteHandshakeCommand(service),
		DeleteSourceConnection: sourcecommand.NewDeleteSourceConnectionCommand(service),
		RunSourceConnection:    sourcecommand.NewRunSourceConnectionCommand(service),
		UpdateSyncJob:          sourcecommand.NewUpdateSyncJobCommand(service),
		UpsertEntities:         sourcecommand.NewUpsertEntitiesCommand(diff),
		MarkEntities:           sourcecommand.NewMarkEntitiesCommand(diff),
		ApplyEntityDiff:        sourcecommand.NewApplyEntityDiffCommand(diff),
		PruneEntities:          sourcecommand.NewPruneEntitiesCommand(diff),
	}
	if writer != nil {
		facade.commands.UpsertSource = sourcecommand.NewUpsertSourceCommand(writer)
	}
	facade.queries = Queries{
		GetSourceConnection:      sourcequery.NewGetSourceConnectionQuery(service),
		ListSourceConnections:    sourcequery.NewListSourceConnectionsQuery(service),
		ListSourceConnectionJobs: sourcequery.NewListSourceConnectionJobsQuery(service),
		CollectionStatus:         sourcequery.NewCollectionStatusQuery(service),
		GetSource:                sourcequery.NewGetSourceQuery(catalog),
		ListSources:              sourcequery.NewListSourcesQuery(catalog),
		ListOutdatedEntities:     sourcequery.NewListOutdatedEntitiesQuery(diff),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// SeedSources registers the schemas of every pack, then writes their
// sources through the UpsertSource command.
func (f *Facade) SeedSources(ctx context.Context, hooks *ExtensionHooks) error {
	if f == nil || f.service == nil {
		return fmt.Errorf("sourceconnections: facade is not configured")
	}
	if hooks == nil {
		return nil
	}
	if f.commands.UpsertSource == nil {
		return fmt.Errorf("sourceconnections: source catalog is read only")
	}
	upsert := f.commands.UpsertSource
	return hooks.Apply(ctx, f.service.Dependencies().SchemaRegistry, func(ctx context.Context, source core.Source) error {
		return upsert.Execute(ctx, sourcecommand.UpsertSourceMessage{Source: source})
	})
}
