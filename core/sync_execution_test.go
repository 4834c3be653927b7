package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestJobSyncExecution_DispatchesAfterCommit(t *testing.T) {
	ctx := context.Background()
	persistence := NewMemoryPersistence()
	enqueuer := &captureEnqueuer{}
	service := NewJobSyncExecutionService(persistence, enqueuer)

	var job *SyncJob
	err := persistence.RunInTx(ctx, func(ctx context.Context, tx TxStores) error {
		var err error
		_, job, err = service.CreateAndRun(ctx, tx, SyncSpec{
			OrganizationID:     testOrg,
			Name:               "Sync for Stripe",
			SourceConnectionID: "conn_1",
			RunImmediately:     true,
		})
		if err != nil {
			return err
		}
		if enqueuer.count() != 0 {
			return errors.New("dispatched before commit")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run in tx: %v", err)
	}
	if enqueuer.count() != 1 {
		t.Fatalf("expected one dispatch after commit, got %d", enqueuer.count())
	}
	msg := enqueuer.messages[0]
	if msg.JobID != JobIDSourceSync || msg.IdempotencyKey != job.ID {
		t.Fatalf("unexpected message %#v", msg)
	}
	if msg.Parameters["sync_job_id"] != job.ID || msg.Parameters["organization_id"] != testOrg {
		t.Fatalf("unexpected message parameters %#v", msg.Parameters)
	}
}

func TestJobSyncExecution_RollbackSkipsDispatch(t *testing.T) {
	ctx := context.Background()
	persistence := NewMemoryPersistence()
	enqueuer := &captureEnqueuer{}
	service := NewJobSyncExecutionService(persistence, enqueuer)

	err := persistence.RunInTx(ctx, func(ctx context.Context, tx TxStores) error {
		if _, _, err := service.CreateAndRun(ctx, tx, SyncSpec{
			OrganizationID:     testOrg,
			SourceConnectionID: "conn_1",
			RunImmediately:     true,
		}); err != nil {
			return err
		}
		return errors.New("later step failed")
	})
	if err == nil {
		t.Fatalf("expected rollback error")
	}
	if enqueuer.count() != 0 {
		t.Fatalf("expected no dispatch after rollback")
	}
	if counts := persistence.Counts(); counts["syncs"] != 0 || counts["sync_jobs"] != 0 {
		t.Fatalf("expected rollback to discard rows, got %#v", counts)
	}
}

func TestJobSyncExecution_EnqueueFailureMarksJobFailed(t *testing.T) {
	ctx := context.Background()
	persistence := NewMemoryPersistence()
	enqueuer := &captureEnqueuer{err: errors.New("queue offline")}
	failedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service := NewJobSyncExecutionService(persistence, enqueuer, WithSyncExecutionClock(func() time.Time { return failedAt }))

	var job *SyncJob
	if err := persistence.RunInTx(ctx, func(ctx context.Context, tx TxStores) error {
		var err error
		_, job, err = service.CreateAndRun(ctx, tx, SyncSpec{
			OrganizationID:     testOrg,
			SourceConnectionID: "conn_1",
			RunImmediately:     true,
		})
		return err
	}); err != nil {
		t.Fatalf("run in tx: %v", err)
	}

	stored, err := persistence.Stores().SyncJobs().Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if stored.Status != SyncJobStatusFailed || stored.Error != "queue offline" {
		t.Fatalf("expected failed job with error, got %#v", stored)
	}
	if stored.FailedAt == nil || !stored.FailedAt.Equal(failedAt) {
		t.Fatalf("expected failed_at from clock, got %v", stored.FailedAt)
	}
}

func TestJobSyncExecution_RequiresTransactionAndIdentifiers(t *testing.T) {
	ctx := context.Background()
	service := NewJobSyncExecutionService(NewMemoryPersistence(), nil)
	if _, _, err := service.CreateAndRun(ctx, nil, SyncSpec{OrganizationID: testOrg, SourceConnectionID: "conn_1"}); err == nil {
		t.Fatalf("expected missing transaction error")
	}
	persistence := NewMemoryPersistence()
	err := persistence.RunInTx(ctx, func(ctx context.Context, tx TxStores) error {
		_, _, err := service.CreateAndRun(ctx, tx, SyncSpec{OrganizationID: testOrg})
		return err
	})
	if err == nil {
		t.Fatalf("expected missing source connection error")
	}
}

func TestJobSyncExecution_TriggerUnknownSync(t *testing.T) {
	service := NewJobSyncExecutionService(NewMemoryPersistence(), &captureEnqueuer{})
	_, err := service.Trigger(context.Background(), testOrg, "missing")
	if !errors.Is(err, ErrSyncNotFound) {
		t.Fatalf("expected sync not found, got %v", err)
	}
}

func TestNewSyncJobID_IsTimeOrdered(t *testing.T) {
	previous := NewSyncJobID()
	for i := 0; i < 50; i++ {
		next := NewSyncJobID()
		if next <= previous {
			t.Fatalf("expected %s to sort after %s", next, previous)
		}
		previous = next
	}
}
