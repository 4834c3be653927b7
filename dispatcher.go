package sourceconnections

import (
	"fmt"

	"github.com/goliatone/go-command/runner"
	"github.com/goliatone/go-source-connections/adapters/gocommand"
)

// RegisterHandlers subscribes every facade command and query with the
// go-command dispatcher and registers them on adapter. On error the
// subscriptions made so far are dropped.
func (f *Facade) RegisterHandlers(adapter *gocommand.RegistryAdapter, runnerOpts ...runner.Option) (gocommand.Subscriptions, error) {
	if f == nil {
		return nil, fmt.Errorf("sourceconnections: facade is not configured")
	}
	if adapter == nil {
		return nil, fmt.Errorf("sourceconnections: registry adapter is required")
	}

	subs := gocommand.Subscriptions{}
	cmds := f.commands
	qrys := f.queries
	steps := []func() error{
		func() error { return gocommand.Command(adapter, &subs, cmds.CreateSourceConnection, runnerOpts...) },
		func() error { return gocommand.Command(adapter, &subs, cmds.BeginHandshake, runnerOpts...) },
		func() error { return gocommand.Command(adapter, &subs, cmds.CompleteHandshake, runnerOpts...) },
		func() error { return gocommand.Command(adapter, &subs, cmds.DeleteSourceConnection, runnerOpts...) },
		func() error { return gocommand.Command(adapter, &subs, cmds.RunSourceConnection, runnerOpts...) },
		func() error { return gocommand.Command(adapter, &subs, cmds.UpdateSyncJob, runnerOpts...) },
		func() error { return gocommand.Command(adapter, &subs, cmds.UpsertEntities, runnerOpts...) },
		func() error { return gocommand.Command(adapter, &subs, cmds.MarkEntities, runnerOpts...) },
		func() error { return gocommand.Command(adapter, &subs, cmds.ApplyEntityDiff, runnerOpts...) },
		func() error { return gocommand.Command(adapter, &subs, cmds.PruneEntities, runnerOpts...) },
		func() error { return gocommand.Command(adapter, &subs, cmds.UpsertSource, runnerOpts...) },
		func() error { return gocommand.Querier(adapter, &subs, qrys.GetSourceConnection, runnerOpts...) },
		func() error { return gocommand.Querier(adapter, &subs, qrys.ListSourceConnections, runnerOpts...) },
		func() error { return gocommand.Querier(adapter, &subs, qrys.ListSourceConnectionJobs, runnerOpts...) },
		func() error { return gocommand.Querier(adapter, &subs, qrys.CollectionStatus, runnerOpts...) },
		func() error { return gocommand.Querier(adapter, &subs, qrys.GetSource, runnerOpts...) },
		func() error { return gocommand.Querier(adapter, &subs, qrys.ListSources, runnerOpts...) },
		func() error { return gocommand.Querier(adapter, &subs, qrys.ListOutdatedEntities, runnerOpts...) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			subs.Unsubscribe()
			return nil, err
		}
	}
	return subs, nil
}
