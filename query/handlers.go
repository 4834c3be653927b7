package query

import (
	"context"
	"errors"

	"github.com/goliatone/go-source-connections/core"
)

type SourceConnectionReader interface {
	GetSourceConnection(ctx context.Context, req core.GetSourceConnectionRequest) (core.SourceConnectionDetails, error)
	ListSourceConnections(ctx context.Context, req core.ListSourceConnectionsRequest) ([]core.SourceConnectionDetails, error)
	ListSourceConnectionJobs(ctx context.Context, req core.ListSourceConnectionJobsRequest) ([]core.SyncJob, error)
	CollectionStatus(ctx context.Context, organizationID string, readableID string) (core.CollectionStatusResult, error)
}

type OutdatedEntityReader interface {
	Outdated(ctx context.Context, syncID string, jobID string) ([]core.Entity, error)
}

type GetSourceConnectionQuery struct {
	reader SourceConnectionReader
}

func NewGetSourceConnectionQuery(reader SourceConnectionReader) *GetSourceConnectionQuery {
	return &GetSourceConnectionQuery{reader: reader}
}

func (q *GetSourceConnectionQuery) Query(ctx context.Context, msg GetSourceConnectionMessage) (core.SourceConnectionDetails, error) {
	if q == nil || q.reader == nil {
		return core.SourceConnectionDetails{}, queryDependencyError("query: source connection reader is required")
	}
	return q.reader.GetSourceConnection(ctx, core.GetSourceConnectionRequest{
		OrganizationID:     msg.OrganizationID,
		SourceConnectionID: msg.SourceConnectionID,
		Reveal:             msg.Reveal,
	})
}

type ListSourceConnectionsQuery struct {
	reader SourceConnectionReader
}

func NewListSourceConnectionsQuery(reader SourceConnectionReader) *ListSourceConnectionsQuery {
	return &ListSourceConnectionsQuery{reader: reader}
}

func (q *ListSourceConnectionsQuery) Query(ctx context.Context, msg ListSourceConnectionsMessage) ([]core.SourceConnectionDetails, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: source connection reader is required")
	}
	return q.reader.ListSourceConnections(ctx, core.ListSourceConnectionsRequest{
		OrganizationID:       msg.OrganizationID,
		ReadableCollectionID: msg.ReadableCollectionID,
		Limit:                msg.Limit,
		Offset:               msg.Offset,
	})
}

type ListSourceConnectionJobsQuery struct {
	reader SourceConnectionReader
}

func NewListSourceConnectionJobsQuery(reader SourceConnectionReader) *ListSourceConnectionJobsQuery {
	return &ListSourceConnectionJobsQuery{reader: reader}
}

func (q *ListSourceConnectionJobsQuery) Query(ctx context.Context, msg ListSourceConnectionJobsMessage) ([]core.SyncJob, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: source connection reader is required")
	}
	return q.reader.ListSourceConnectionJobs(ctx, core.ListSourceConnectionJobsRequest{
		OrganizationID:     msg.OrganizationID,
		SourceConnectionID: msg.SourceConnectionID,
		Limit:              msg.Limit,
	})
}

type CollectionStatusQuery struct {
	reader SourceConnectionReader
}

func NewCollectionStatusQuery(reader SourceConnectionReader) *CollectionStatusQuery {
	return &CollectionStatusQuery{reader: reader}
}

func (q *CollectionStatusQuery) Query(ctx context.Context, msg CollectionStatusMessage) (core.CollectionStatusResult, error) {
	if q == nil || q.reader == nil {
		return core.CollectionStatusResult{}, queryDependencyError("query: source connection reader is required")
	}
	return q.reader.CollectionStatus(ctx, msg.OrganizationID, msg.ReadableCollectionID)
}

type GetSourceQuery struct {
	catalog core.SourceCatalog
}

func NewGetSourceQuery(catalog core.SourceCatalog) *GetSourceQuery {
	return &GetSourceQuery{catalog: catalog}
}

func (q *GetSourceQuery) Query(ctx context.Context, msg GetSourceMessage) (core.Source, error) {
	if q == nil || q.catalog == nil {
		return core.Source{}, queryDependencyError("query: source catalog is required")
	}
	source, err := q.catalog.GetSource(ctx, msg.ShortName)
	if err != nil {
		return core.Source{}, mapCatalogError(err, msg.ShortName)
	}
	return source, nil
}

type ListSourcesQuery struct {
	catalog core.SourceCatalog
}

func NewListSourcesQuery(catalog core.SourceCatalog) *ListSourcesQuery {
	return &ListSourcesQuery{catalog: catalog}
}

func (q *ListSourcesQuery) Query(ctx context.Context, _ ListSourcesMessage) ([]core.Source, error) {
	if q == nil || q.catalog == nil {
		return nil, queryDependencyError("query: source catalog is required")
	}
	return q.catalog.ListSources(ctx)
}

type ListOutdatedEntitiesQuery struct {
	reader OutdatedEntityReader
}

func NewListOutdatedEntitiesQuery(reader OutdatedEntityReader) *ListOutdatedEntitiesQuery {
	return &ListOutdatedEntitiesQuery{reader: reader}
}

func (q *ListOutdatedEntitiesQuery) Query(ctx context.Context, msg ListOutdatedEntitiesMessage) ([]core.Entity, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: entity diff engine is required")
	}
	return q.reader.Outdated(ctx, msg.SyncID, msg.SyncJobID)
}

func mapCatalogError(err error, shortName string) error {
	if errors.Is(err, core.ErrSourceNotFound) {
		return core.NotFoundError("source", shortName)
	}
	return err
}
