package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-source-connections/core"
)

// SyncRun identifies the job carried by a source sync delivery.
type SyncRun struct {
	OrganizationID string
	SyncID         string
	SyncJobID      string
}

// ParseSyncRun reads the parameters written by the sync execution service.
func ParseSyncRun(msg *core.JobExecutionMessage) (SyncRun, error) {
	if msg == nil {
		return SyncRun{}, fmt.Errorf("gojob: execution message is required")
	}
	if msg.JobID != core.JobIDSourceSync {
		return SyncRun{}, fmt.Errorf("gojob: unexpected job id %q", msg.JobID)
	}
	run := SyncRun{
		OrganizationID: stringParam(msg.Parameters, "organization_id"),
		SyncID:         stringParam(msg.Parameters, "sync_id"),
		SyncJobID:      stringParam(msg.Parameters, "sync_job_id"),
	}
	if run.SyncJobID == "" {
		run.SyncJobID = strings.TrimSpace(msg.IdempotencyKey)
	}
	if run.SyncID == "" || run.SyncJobID == "" {
		return SyncRun{}, fmt.Errorf("gojob: sync_id and sync_job_id are required")
	}
	return run, nil
}

// SyncOutcome carries the entity counters recorded on a finished job.
type SyncOutcome struct {
	Inserted int
	Updated  int
	Deleted  int
	Kept     int
	Skipped  int
}

// SyncRunner performs the data movement for one sync job.
type SyncRunner func(ctx context.Context, run SyncRun) (SyncOutcome, error)

type SyncJobUpdater interface {
	UpdateSyncJob(ctx context.Context, req core.UpdateSyncJobRequest) (core.SyncJob, error)
}

type SyncWorkerOption func(*SyncWorker)

func WithSyncWorkerLogger(logger core.Logger) SyncWorkerOption {
	return func(w *SyncWorker) {
		w.logger = logger
	}
}

// WithSyncWorkerHook observes every delivery the worker handles.
func WithSyncWorkerHook(hook core.JobWorkerHook) SyncWorkerOption {
	return func(w *SyncWorker) {
		w.hook = hook
	}
}

func WithSyncWorkerClock(now func() time.Time) SyncWorkerOption {
	return func(w *SyncWorker) {
		if now != nil {
			w.now = now
		}
	}
}

func WithSyncWorkerRetryDelay(delay time.Duration) SyncWorkerOption {
	return func(w *SyncWorker) {
		if delay >= 0 {
			w.retryDelay = delay
		}
	}
}

// SyncWorker drains source sync deliveries. Each job moves pending to
// running, then to completed or failed depending on the runner result.
type SyncWorker struct {
	dequeuer   core.JobDequeuer
	updater    SyncJobUpdater
	runner     SyncRunner
	logger     core.Logger
	hook       core.JobWorkerHook
	now        func() time.Time
	retryDelay time.Duration
}

// attemptNacker is implemented by deliveries that apply a retry policy per
// attempt, such as DeliveryAdapter.
type attemptNacker interface {
	NackForAttempt(ctx context.Context, opts core.JobNackOptions, attempt int) error
}

// syncDelivery is one in-flight delivery with the data its hook events share.
type syncDelivery struct {
	core.JobDelivery
	run       SyncRun
	attempt   int
	startedAt time.Time
}

func (d *syncDelivery) nack(ctx context.Context, opts core.JobNackOptions) error {
	if nacker, ok := d.JobDelivery.(attemptNacker); ok {
		return nacker.NackForAttempt(ctx, opts, d.attempt)
	}
	return d.JobDelivery.Nack(ctx, opts)
}

func NewSyncWorker(dequeuer core.JobDequeuer, updater SyncJobUpdater, runner SyncRunner, opts ...SyncWorkerOption) *SyncWorker {
	w := &SyncWorker{
		dequeuer:   dequeuer,
		updater:    updater,
		runner:     runner,
		now:        func() time.Time { return time.Now().UTC() },
		retryDelay: 5 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// ProcessNext handles a single delivery. Runner failures are recorded on
// the job and acked; only bookkeeping failures are handed back to the queue.
func (w *SyncWorker) ProcessNext(ctx context.Context) error {
	if w == nil || w.dequeuer == nil || w.updater == nil || w.runner == nil {
		return fmt.Errorf("gojob: sync worker is not configured")
	}
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}
	current := &syncDelivery{
		JobDelivery: delivery,
		attempt:     deliveryAttempt(delivery),
		startedAt:   w.now(),
	}

	current.run, err = ParseSyncRun(delivery.Message())
	if err != nil {
		w.log(ctx, "error", "sync delivery rejected", SyncRun{}, err)
		w.emit(ctx, w.hookFailure, current, err, 0)
		return current.nack(ctx, core.JobNackOptions{Disposition: core.JobNackDeadLetter, Reason: err.Error()})
	}

	if _, err := w.updater.UpdateSyncJob(ctx, core.UpdateSyncJobRequest{
		SyncJobID: current.run.SyncJobID,
		Status:    core.SyncJobStatusRunning,
	}); err != nil {
		if hasTextCode(err, core.ErrorInvalidState) || hasTextCode(err, core.ErrorNotFound) {
			// already claimed, finished or deleted
			w.log(ctx, "debug", "sync delivery skipped", current.run, err)
			return delivery.Ack(ctx)
		}
		return w.requeue(ctx, current, err)
	}
	w.emit(ctx, w.hookStart, current, nil, 0)

	outcome, runErr := w.runner(ctx, current.run)
	final := core.UpdateSyncJobRequest{SyncJobID: current.run.SyncJobID, Status: core.SyncJobStatusCompleted}
	if runErr != nil {
		final.Status = core.SyncJobStatusFailed
		final.Error = runErr.Error()
		w.log(ctx, "error", "sync job failed", current.run, runErr)
	} else {
		final.EntitiesInserted = &outcome.Inserted
		final.EntitiesUpdated = &outcome.Updated
		final.EntitiesDeleted = &outcome.Deleted
		final.EntitiesKept = &outcome.Kept
		final.EntitiesSkipped = &outcome.Skipped
	}
	if _, err := w.updater.UpdateSyncJob(ctx, final); err != nil {
		return w.requeue(ctx, current, err)
	}
	if runErr != nil {
		w.emit(ctx, w.hookFailure, current, runErr, 0)
	} else {
		w.emit(ctx, w.hookSuccess, current, nil, 0)
	}
	return delivery.Ack(ctx)
}

// Run calls ProcessNext until ctx is done or the dequeuer fails.
func (w *SyncWorker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.ProcessNext(ctx); err != nil {
			return err
		}
	}
}

func (w *SyncWorker) requeue(ctx context.Context, current *syncDelivery, cause error) error {
	w.log(ctx, "error", "sync job bookkeeping failed", current.run, cause)
	w.emit(ctx, w.hookRetry, current, cause, w.retryDelay)
	return current.nack(ctx, core.JobNackOptions{
		Disposition: core.JobNackRetry,
		Delay:       w.retryDelay,
		Reason:      cause.Error(),
	})
}

func (w *SyncWorker) hookStart(ctx context.Context, event core.JobWorkerEvent) {
	w.hook.OnStart(ctx, event)
}

func (w *SyncWorker) hookSuccess(ctx context.Context, event core.JobWorkerEvent) {
	w.hook.OnSuccess(ctx, event)
}

func (w *SyncWorker) hookFailure(ctx context.Context, event core.JobWorkerEvent) {
	w.hook.OnFailure(ctx, event)
}

func (w *SyncWorker) hookRetry(ctx context.Context, event core.JobWorkerEvent) {
	w.hook.OnRetry(ctx, event)
}

func (w *SyncWorker) emit(ctx context.Context, fire func(context.Context, core.JobWorkerEvent), current *syncDelivery, err error, delay time.Duration) {
	if w.hook == nil {
		return
	}
	fire(ctx, core.JobWorkerEvent{
		Message:   current.Message(),
		Attempt:   current.attempt,
		Delay:     delay,
		Err:       err,
		StartedAt: current.startedAt,
		Duration:  w.now().Sub(current.startedAt),
	})
}

func deliveryAttempt(delivery core.JobDelivery) int {
	if reader, ok := delivery.(attemptsReader); ok {
		if attempts := reader.Attempts(); attempts > 0 {
			return attempts
		}
	}
	return 1
}

func (w *SyncWorker) log(ctx context.Context, level string, message string, run SyncRun, err error) {
	if w.logger == nil {
		return
	}
	logger := w.logger.WithContext(ctx)
	args := []any{
		"organization_id", run.OrganizationID,
		"sync_id", run.SyncID,
		"sync_job_id", run.SyncJobID,
	}
	if err != nil {
		args = append(args, "error", err.Error())
	}
	if level == "error" {
		logger.Error(message, args...)
		return
	}
	logger.Debug(message, args...)
}

func hasTextCode(err error, code string) bool {
	var rich *goerrors.Error
	return goerrors.As(err, &rich) && rich.TextCode == code
}

func stringParam(params map[string]any, key string) string {
	value, ok := params[key]
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(value))
}
