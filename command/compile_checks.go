package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-source-connections/core"
)

var (
	_ gocmd.Commander[CreateSourceConnectionMessage] = (*CreateSourceConnectionCommand)(nil)
	_ gocmd.Commander[BeginHandshakeMessage]         = (*BeginHandshakeCommand)(nil)
	_ gocmd.Commander[CompleteHandshakeMessage]      = (*CompleteHandshakeCommand)(nil)
	_ gocmd.Commander[DeleteSourceConnectionMessage] = (*DeleteSourceConnectionCommand)(nil)
	_ gocmd.Commander[RunSourceConnectionMessage]    = (*RunSourceConnectionCommand)(nil)
	_ gocmd.Commander[UpdateSyncJobMessage]          = (*UpdateSyncJobCommand)(nil)
	_ gocmd.Commander[UpsertEntitiesMessage]         = (*UpsertEntitiesCommand)(nil)
	_ gocmd.Commander[MarkEntitiesMessage]           = (*MarkEntitiesCommand)(nil)
	_ gocmd.Commander[ApplyEntityDiffMessage]        = (*ApplyEntityDiffCommand)(nil)
	_ gocmd.Commander[PruneEntitiesMessage]          = (*PruneEntitiesCommand)(nil)
	_ gocmd.Commander[UpsertSourceMessage]           = (*UpsertSourceCommand)(nil)

	_ MutatingService   = (*core.Service)(nil)
	_ EntityDiffService = (*core.EntityDiffEngine)(nil)
)
