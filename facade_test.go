package sourceconnections

import (
	"context"
	"testing"

	gocmd "github.com/goliatone/go-command"
	sourcecommand "github.com/goliatone/go-source-connections/command"
	"github.com/goliatone/go-source-connections/core"
	sourcequery "github.com/goliatone/go-source-connections/query"
	"github.com/goliatone/go-source-connections/security"
)

func stripePack() SourcePack {
	return SourcePack{
		Name: "payments",
		Sources: []core.Source{{
			ShortName:    "stripe",
			Name:         "Stripe",
			Kind:         core.IntegrationTypeSource,
			AuthMethod:   core.AuthMethodDirect,
			AuthSchema:   "stripe_auth",
			ConfigSchema: "stripe_config",
		}},
		Schemas: []core.Schema{
			{
				Name:   "stripe_auth",
				Fields: []core.FieldSpec{{Name: "api_key", Type: core.FieldTypeString, Required: true, Secret: true, Pattern: `^sk_`}},
			},
			{
				Name:   "stripe_config",
				Fields: []core.FieldSpec{{Name: "include_test_data", Type: core.FieldTypeBoolean, Default: false}},
			},
		},
	}
}

func newMemoryFacade(t *testing.T) (*Facade, *core.MemoryPersistence) {
	t.Helper()
	provider, err := security.NewAppKeySecretProviderFromString("facade-test-key", security.WithKeyID("facade"))
	if err != nil {
		t.Fatalf("new app key provider: %v", err)
	}
	persistence := core.NewMemoryPersistence()
	svc, err := Setup(DefaultConfig(),
		WithPersistence(persistence),
		WithSourceCatalog(persistence),
		WithSecretProvider(provider),
	)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	hooks := NewExtensionHooks()
	if err := hooks.RegisterSourcePack(stripePack()); err != nil {
		t.Fatalf("register pack: %v", err)
	}
	if err := facade.SeedSources(context.Background(), hooks); err != nil {
		t.Fatalf("seed sources: %v", err)
	}
	return facade, persistence
}

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	facade, _ := newMemoryFacade(t)

	commands := facade.Commands()
	if commands.CreateSourceConnection == nil || commands.CompleteHandshake == nil || commands.PruneEntities == nil {
		t.Fatalf("expected command handlers to be wired")
	}
	if commands.UpsertSource == nil {
		t.Fatalf("expected writable catalog to wire UpsertSource")
	}
	queries := facade.Queries()
	if queries.CollectionStatus == nil || queries.ListSources == nil || queries.ListOutdatedEntities == nil {
		t.Fatalf("expected query handlers to be wired")
	}
}

func TestFacade_ProvisionsThroughCommandsAndQueries(t *testing.T) {
	facade, _ := newMemoryFacade(t)
	ctx := context.Background()

	collector := gocmd.NewResult[core.SourceConnectionDetails]()
	runImmediately := false
	err := facade.Commands().CreateSourceConnection.Execute(gocmd.ContextWithResult(ctx, collector), sourcecommand.CreateSourceConnectionMessage{
		Request: core.CreateSourceConnectionRequest{
			OrganizationID: "org_1",
			ShortName:      "stripe",
			Name:           "Payments",
			AuthFields:     map[string]any{"api_key": "sk_live_123"},
			RunImmediately: &runImmediately,
		},
	})
	if err != nil {
		t.Fatalf("create source connection: %v", err)
	}
	created, ok := collector.Load()
	if !ok || created.SourceConnection.ID == "" {
		t.Fatalf("expected created connection in result collector")
	}

	details, err := facade.Queries().GetSourceConnection.Query(ctx, sourcequery.GetSourceConnectionMessage{
		OrganizationID:     "org_1",
		SourceConnectionID: created.SourceConnection.ID,
		Reveal:             true,
	})
	if err != nil {
		t.Fatalf("get source connection: %v", err)
	}
	if details.AuthFields["api_key"] != "sk_live_123" {
		t.Fatalf("expected revealed credential, got %#v", details.AuthFields)
	}

	status, err := facade.Queries().CollectionStatus.Query(ctx, sourcequery.CollectionStatusMessage{
		OrganizationID:       "org_1",
		ReadableCollectionID: created.SourceConnection.ReadableCollectionID,
	})
	if err != nil {
		t.Fatalf("collection status: %v", err)
	}
	if _, ok := status.Children[created.SourceConnection.ID]; !ok {
		t.Fatalf("expected connection in collection status children, got %#v", status.Children)
	}

	sources, err := facade.Queries().ListSources.Query(ctx, sourcequery.ListSourcesMessage{})
	if err != nil || len(sources) != 1 || sources[0].ShortName != "stripe" {
		t.Fatalf("unexpected seeded sources %#v (%v)", sources, err)
	}
}

func TestNewFacade_RequiresService(t *testing.T) {
	facade, err := NewFacade(nil)
	if err == nil {
		t.Fatalf("expected nil service error")
	}
	if facade != nil {
		t.Fatalf("expected nil facade on error")
	}
}
