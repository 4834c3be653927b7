package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobIDSourceSync names the execution message consumed by sync workers.
const JobIDSourceSync = "source_connections.sync.run"

// NewSyncJobID returns a time-ordered id so that later jobs sort after
// earlier ones.
func NewSyncJobID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

type SyncExecutionOption func(*JobSyncExecutionService)

func WithSyncExecutionLogger(logger Logger) SyncExecutionOption {
	return func(s *JobSyncExecutionService) {
		s.logger = logger
	}
}

func WithSyncExecutionClock(clock func() time.Time) SyncExecutionOption {
	return func(s *JobSyncExecutionService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// JobSyncExecutionService persists Sync and SyncJob rows and hands pending
// jobs to a queue once the owning transaction commits.
type JobSyncExecutionService struct {
	persistence Persistence
	enqueuer    JobEnqueuer
	logger      Logger
	clock       func() time.Time
}

func NewJobSyncExecutionService(persistence Persistence, enqueuer JobEnqueuer, opts ...SyncExecutionOption) *JobSyncExecutionService {
	service := &JobSyncExecutionService{
		persistence: persistence,
		enqueuer:    enqueuer,
		clock:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(service)
		}
	}
	return service
}

func (s *JobSyncExecutionService) CreateAndRun(ctx context.Context, tx TxStores, spec SyncSpec) (Sync, *SyncJob, error) {
	if s == nil {
		return Sync{}, nil, fmt.Errorf("core: sync execution service is nil")
	}
	if tx == nil {
		return Sync{}, nil, fmt.Errorf("core: sync creation requires a transaction")
	}
	if strings.TrimSpace(spec.OrganizationID) == "" {
		return Sync{}, nil, fmt.Errorf("core: sync organization_id is required")
	}
	if strings.TrimSpace(spec.SourceConnectionID) == "" {
		return Sync{}, nil, fmt.Errorf("core: sync source connection id is required")
	}

	sync, err := tx.Syncs().Create(ctx, Sync{
		ID:                       uuid.NewString(),
		OrganizationID:           spec.OrganizationID,
		Name:                     spec.Name,
		SourceConnectionID:       spec.SourceConnectionID,
		DestinationConnectionIDs: append([]string(nil), spec.DestinationConnectionIDs...),
		CronSchedule:             strings.TrimSpace(spec.CronSchedule),
		Status:                   SyncStatusActive,
		RunImmediately:           spec.RunImmediately,
	})
	if err != nil {
		return Sync{}, nil, err
	}
	if !spec.RunImmediately {
		return sync, nil, nil
	}

	job, err := tx.SyncJobs().Create(ctx, SyncJob{
		ID:             NewSyncJobID(),
		SyncID:         sync.ID,
		OrganizationID: sync.OrganizationID,
		Status:         SyncJobStatusPending,
	})
	if err != nil {
		return Sync{}, nil, err
	}
	dispatched := job
	tx.AfterCommit(func(ctx context.Context) {
		s.dispatch(ctx, dispatched)
	})
	return sync, &job, nil
}

func (s *JobSyncExecutionService) Trigger(ctx context.Context, organizationID string, syncID string) (SyncJob, error) {
	if s == nil || s.persistence == nil {
		return SyncJob{}, fmt.Errorf("core: sync execution service is not configured")
	}
	var created SyncJob
	err := s.persistence.RunInTx(ctx, func(ctx context.Context, tx TxStores) error {
		sync, err := tx.Syncs().Get(ctx, organizationID, syncID)
		if err != nil {
			return err
		}
		job, err := tx.SyncJobs().Create(ctx, SyncJob{
			ID:             NewSyncJobID(),
			SyncID:         sync.ID,
			OrganizationID: sync.OrganizationID,
			Status:         SyncJobStatusPending,
		})
		if err != nil {
			return err
		}
		created = job
		tx.AfterCommit(func(ctx context.Context) {
			s.dispatch(ctx, job)
		})
		return nil
	})
	if err != nil {
		return SyncJob{}, err
	}
	return created, nil
}

func (s *JobSyncExecutionService) ListJobs(ctx context.Context, organizationID string, syncID string, limit int) ([]SyncJob, error) {
	if s == nil || s.persistence == nil {
		return nil, fmt.Errorf("core: sync execution service is not configured")
	}
	stores := s.persistence.Stores()
	if _, err := stores.Syncs().Get(ctx, organizationID, syncID); err != nil {
		return nil, err
	}
	return stores.SyncJobs().ListBySync(ctx, syncID, limit)
}

func (s *JobSyncExecutionService) dispatch(ctx context.Context, job SyncJob) {
	if s.enqueuer == nil {
		s.log(ctx, "debug", "sync job created without a queue", job, nil)
		return
	}
	msg := &JobExecutionMessage{
		JobID: JobIDSourceSync,
		Parameters: map[string]any{
			"organization_id": job.OrganizationID,
			"sync_id":         job.SyncID,
			"sync_job_id":     job.ID,
		},
		IdempotencyKey: job.ID,
		DedupPolicy:    "drop",
	}
	if err := s.enqueuer.Enqueue(ctx, msg); err != nil {
		s.log(ctx, "error", "sync job dispatch failed", job, err)
		if s.persistence == nil {
			return
		}
		failed := job
		if transitionErr := failed.TransitionTo(SyncJobStatusFailed, s.clock()); transitionErr != nil {
			return
		}
		failed.Error = err.Error()
		if _, updateErr := s.persistence.Stores().SyncJobs().Update(ctx, failed); updateErr != nil {
			s.log(ctx, "error", "sync job failure not recorded", job, updateErr)
		}
	}
}

func (s *JobSyncExecutionService) log(ctx context.Context, level string, message string, job SyncJob, err error) {
	if s.logger == nil {
		return
	}
	logger := s.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	args := []any{
		"organization_id", job.OrganizationID,
		"sync_id", job.SyncID,
		"sync_job_id", job.ID,
	}
	if err != nil {
		args = append(args, "error", err.Error())
	}
	switch level {
	case "error":
		logger.Error(message, args...)
	default:
		logger.Debug(message, args...)
	}
}

var _ SyncExecutionService = (*JobSyncExecutionService)(nil)
