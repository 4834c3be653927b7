package command

import (
	"context"
	"errors"
	"testing"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-source-connections/core"
)

type stubMutatingService struct {
	createFn   func(context.Context, core.CreateSourceConnectionRequest) (core.SourceConnectionDetails, error)
	beginFn    func(context.Context, core.BeginHandshakeRequest) (core.BeginHandshakeResult, error)
	completeFn func(context.Context, core.CompleteHandshakeRequest) (core.CompleteHandshakeResult, error)
	deleteFn   func(context.Context, core.DeleteSourceConnectionRequest) (core.SourceConnection, error)
	runFn      func(context.Context, core.RunSourceConnectionRequest) (core.SyncJob, error)
	updateFn   func(context.Context, core.UpdateSyncJobRequest) (core.SyncJob, error)
}

func (s stubMutatingService) CreateSourceConnection(ctx context.Context, req core.CreateSourceConnectionRequest) (core.SourceConnectionDetails, error) {
	if s.createFn == nil {
		return core.SourceConnectionDetails{}, errors.New("unexpected create")
	}
	return s.createFn(ctx, req)
}

func (s stubMutatingService) BeginHandshake(ctx context.Context, req core.BeginHandshakeRequest) (core.BeginHandshakeResult, error) {
	if s.beginFn == nil {
		return core.BeginHandshakeResult{}, errors.New("unexpected begin")
	}
	return s.beginFn(ctx, req)
}

func (s stubMutatingService) CompleteHandshake(ctx context.Context, req core.CompleteHandshakeRequest) (core.CompleteHandshakeResult, error) {
	if s.completeFn == nil {
		return core.CompleteHandshakeResult{}, errors.New("unexpected complete")
	}
	return s.completeFn(ctx, req)
}

func (s stubMutatingService) DeleteSourceConnection(ctx context.Context, req core.DeleteSourceConnectionRequest) (core.SourceConnection, error) {
	if s.deleteFn == nil {
		return core.SourceConnection{}, errors.New("unexpected delete")
	}
	return s.deleteFn(ctx, req)
}

func (s stubMutatingService) RunSourceConnection(ctx context.Context, req core.RunSourceConnectionRequest) (core.SyncJob, error) {
	if s.runFn == nil {
		return core.SyncJob{}, errors.New("unexpected run")
	}
	return s.runFn(ctx, req)
}

func (s stubMutatingService) UpdateSyncJob(ctx context.Context, req core.UpdateSyncJobRequest) (core.SyncJob, error) {
	if s.updateFn == nil {
		return core.SyncJob{}, errors.New("unexpected update")
	}
	return s.updateFn(ctx, req)
}

func TestCreateSourceConnectionCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.SourceConnectionDetails{
		SourceConnection: core.SourceConnection{ID: "sc_1", ShortName: "stripe"},
		Status:           core.SourceConnectionStatusInProgress,
	}
	called := false
	svc := stubMutatingService{
		createFn: func(_ context.Context, req core.CreateSourceConnectionRequest) (core.SourceConnectionDetails, error) {
			called = true
			if req.OrganizationID != "org_1" || req.ShortName != "stripe" {
				t.Fatalf("unexpected request %#v", req)
			}
			return expected, nil
		},
	}

	cmd := NewCreateSourceConnectionCommand(svc)
	collector := gocmd.NewResult[core.SourceConnectionDetails]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, CreateSourceConnectionMessage{Request: core.CreateSourceConnectionRequest{
		OrganizationID: "org_1",
		ShortName:      "stripe",
		AuthFields:     map[string]any{"api_key": "sk_test"},
	}})
	if err != nil {
		t.Fatalf("execute create: %v", err)
	}
	if !called {
		t.Fatalf("expected create service invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.SourceConnection.ID != "sc_1" || result.Status != core.SourceConnectionStatusInProgress {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestHandshakeCommands_DelegateToService(t *testing.T) {
	t.Run("begin", func(t *testing.T) {
		svc := stubMutatingService{
			beginFn: func(_ context.Context, req core.BeginHandshakeRequest) (core.BeginHandshakeResult, error) {
				if req.ShortName != "github" || req.Overrides.ClientID != "byoc" {
					t.Fatalf("unexpected begin request %#v", req)
				}
				return core.BeginHandshakeResult{SessionID: "sess_1", AuthorizationURL: "https://github.com/login/oauth/authorize?state=s"}, nil
			},
		}
		collector := gocmd.NewResult[core.BeginHandshakeResult]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		err := NewBeginHandshakeCommand(svc).Execute(ctx, BeginHandshakeMessage{Request: core.BeginHandshakeRequest{
			OrganizationID: "org_1",
			ShortName:      "github",
			Overrides:      core.ClientOverrides{ClientID: "byoc"},
		}})
		if err != nil {
			t.Fatalf("execute begin: %v", err)
		}
		if result, ok := collector.Load(); !ok || result.SessionID != "sess_1" {
			t.Fatalf("expected stored begin result, got %#v", result)
		}
	})

	t.Run("complete", func(t *testing.T) {
		svc := stubMutatingService{
			completeFn: func(_ context.Context, req core.CompleteHandshakeRequest) (core.CompleteHandshakeResult, error) {
				if req.State != "state_1" || req.Code != "code_1" {
					t.Fatalf("unexpected complete request %#v", req)
				}
				return core.CompleteHandshakeResult{RedirectURL: "https://app.example/done"}, nil
			},
		}
		collector := gocmd.NewResult[core.CompleteHandshakeResult]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := NewCompleteHandshakeCommand(svc).Execute(ctx, CompleteHandshakeMessage{State: "state_1", Code: "code_1"}); err != nil {
			t.Fatalf("execute complete: %v", err)
		}
		if result, ok := collector.Load(); !ok || result.RedirectURL != "https://app.example/done" {
			t.Fatalf("expected stored complete result, got %#v", result)
		}
	})

	t.Run("complete propagates service errors", func(t *testing.T) {
		svc := stubMutatingService{
			completeFn: func(context.Context, core.CompleteHandshakeRequest) (core.CompleteHandshakeResult, error) {
				return core.CompleteHandshakeResult{}, core.InvalidStateError("session already completed", nil)
			},
		}
		err := NewCompleteHandshakeCommand(svc).Execute(context.Background(), CompleteHandshakeMessage{State: "s", Code: "c"})
		if err == nil {
			t.Fatalf("expected service error")
		}
	})
}

func TestLifecycleCommands_DelegateToService(t *testing.T) {
	t.Run("delete", func(t *testing.T) {
		svc := stubMutatingService{
			deleteFn: func(_ context.Context, req core.DeleteSourceConnectionRequest) (core.SourceConnection, error) {
				if req.SourceConnectionID != "sc_1" || !req.DeleteData {
					t.Fatalf("unexpected delete request %#v", req)
				}
				return core.SourceConnection{ID: "sc_1"}, nil
			},
		}
		err := NewDeleteSourceConnectionCommand(svc).Execute(context.Background(), DeleteSourceConnectionMessage{
			OrganizationID:     "org_1",
			SourceConnectionID: "sc_1",
			DeleteData:         true,
		})
		if err != nil {
			t.Fatalf("execute delete: %v", err)
		}
	})

	t.Run("run", func(t *testing.T) {
		svc := stubMutatingService{
			runFn: func(_ context.Context, req core.RunSourceConnectionRequest) (core.SyncJob, error) {
				return core.SyncJob{ID: "job_1", Status: core.SyncJobStatusPending}, nil
			},
		}
		collector := gocmd.NewResult[core.SyncJob]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := NewRunSourceConnectionCommand(svc).Execute(ctx, RunSourceConnectionMessage{OrganizationID: "org_1", SourceConnectionID: "sc_1"}); err != nil {
			t.Fatalf("execute run: %v", err)
		}
		if result, _ := collector.Load(); result.ID != "job_1" {
			t.Fatalf("expected stored job, got %#v", result)
		}
	})

	t.Run("update sync job", func(t *testing.T) {
		inserted := 4
		svc := stubMutatingService{
			updateFn: func(_ context.Context, req core.UpdateSyncJobRequest) (core.SyncJob, error) {
				if req.Status != core.SyncJobStatusRunning || req.EntitiesInserted == nil || *req.EntitiesInserted != 4 {
					t.Fatalf("unexpected update request %#v", req)
				}
				return core.SyncJob{ID: req.SyncJobID, Status: req.Status}, nil
			},
		}
		err := NewUpdateSyncJobCommand(svc).Execute(context.Background(), UpdateSyncJobMessage{Request: core.UpdateSyncJobRequest{
			SyncJobID:        "job_1",
			Status:           core.SyncJobStatusRunning,
			EntitiesInserted: &inserted,
		}})
		if err != nil {
			t.Fatalf("execute update: %v", err)
		}
	})
}

func TestEntityCommands_RunAgainstDiffEngine(t *testing.T) {
	persistence := core.NewMemoryPersistence()
	engine := core.NewEntityDiffEngine(persistence.Stores().Entities())
	ctx := context.Background()

	upsert := NewUpsertEntitiesCommand(engine)
	if err := upsert.Execute(ctx, UpsertEntitiesMessage{Request: core.UpsertEntitiesRequest{
		OrganizationID: "org_1",
		SyncID:         "sync_1",
		SyncJobID:      "job-0001",
		Records:        []core.UpsertEntity{{EntityID: "A", Hash: "h1"}, {EntityID: "B", Hash: "h2"}},
	}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	applied := gocmd.NewResult[core.DiffResult]()
	if err := NewApplyEntityDiffCommand(engine).Execute(gocmd.ContextWithResult(ctx, applied), ApplyEntityDiffMessage{Request: core.UpsertEntitiesRequest{
		OrganizationID: "org_1",
		SyncID:         "sync_1",
		SyncJobID:      "job-0002",
		Records:        []core.UpsertEntity{{EntityID: "A", Hash: "h1-new"}},
	}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	result, ok := applied.Load()
	if !ok || len(result.Updated) != 1 || result.Updated[0] != "A" {
		t.Fatalf("expected A to be updated, got %#v", result)
	}

	marked := gocmd.NewResult[int]()
	if err := NewMarkEntitiesCommand(engine).Execute(gocmd.ContextWithResult(ctx, marked), MarkEntitiesMessage{
		SyncID:    "sync_1",
		SyncJobID: "job-0002",
		EntityIDs: []string{"A"},
	}); err != nil {
		t.Fatalf("mark: %v", err)
	}

	pruned := gocmd.NewResult[[]core.Entity]()
	if err := NewPruneEntitiesCommand(engine).Execute(gocmd.ContextWithResult(ctx, pruned), PruneEntitiesMessage{
		SyncID:    "sync_1",
		SyncJobID: "job-0002",
	}); err != nil {
		t.Fatalf("prune: %v", err)
	}
	removed, _ := pruned.Load()
	if len(removed) != 1 || removed[0].EntityID != "B" {
		t.Fatalf("expected B to be pruned, got %#v", removed)
	}
}

func TestUpsertSourceCommand_WritesCatalog(t *testing.T) {
	persistence := core.NewMemoryPersistence()
	cmd := NewUpsertSourceCommand(persistence)
	msg := UpsertSourceMessage{Source: core.Source{ShortName: "stripe", Name: "Stripe", AuthMethod: core.AuthMethodDirect}}
	if err := msg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := cmd.Execute(context.Background(), msg); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, err := persistence.GetSource(context.Background(), "stripe"); err != nil {
		t.Fatalf("expected seeded source: %v", err)
	}
	if err := (UpsertSourceMessage{}).Validate(); err == nil {
		t.Fatalf("expected validation error for empty source")
	}
}

func TestMessages_Validate(t *testing.T) {
	cases := map[string]interface{ Validate() error }{
		"begin without org":     BeginHandshakeMessage{Request: core.BeginHandshakeRequest{ShortName: "github"}},
		"complete without code": CompleteHandshakeMessage{State: "s"},
		"delete without id":     DeleteSourceConnectionMessage{OrganizationID: "org_1"},
		"run without org":       RunSourceConnectionMessage{SourceConnectionID: "sc_1"},
		"update without job":    UpdateSyncJobMessage{},
		"mark without sync":     MarkEntitiesMessage{SyncJobID: "job"},
		"prune without job":     PruneEntitiesMessage{SyncID: "sync"},
		"upsert without sync":   UpsertEntitiesMessage{},
		"apply without sync":    ApplyEntityDiffMessage{},
	}
	for name, msg := range cases {
		if err := msg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	if err := (CompleteHandshakeMessage{State: "s", Code: "c"}).Validate(); err != nil {
		t.Fatalf("expected valid complete message, got %v", err)
	}
}
