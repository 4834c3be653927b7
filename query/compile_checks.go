package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-source-connections/core"
)

var (
	_ gocmd.Querier[GetSourceConnectionMessage, core.SourceConnectionDetails]     = (*GetSourceConnectionQuery)(nil)
	_ gocmd.Querier[ListSourceConnectionsMessage, []core.SourceConnectionDetails] = (*ListSourceConnectionsQuery)(nil)
	_ gocmd.Querier[ListSourceConnectionJobsMessage, []core.SyncJob]              = (*ListSourceConnectionJobsQuery)(nil)
	_ gocmd.Querier[CollectionStatusMessage, core.CollectionStatusResult]         = (*CollectionStatusQuery)(nil)
	_ gocmd.Querier[GetSourceMessage, core.Source]                                = (*GetSourceQuery)(nil)
	_ gocmd.Querier[ListSourcesMessage, []core.Source]                            = (*ListSourcesQuery)(nil)
	_ gocmd.Querier[ListOutdatedEntitiesMessage, []core.Entity]                   = (*ListOutdatedEntitiesQuery)(nil)

	_ SourceConnectionReader = (*core.Service)(nil)
	_ OutdatedEntityReader   = (*core.EntityDiffEngine)(nil)
)
