package gojob

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/goliatone/go-source-connections/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

// ToExecutionMessage converts a sync message into the go-job wire form.
func ToExecutionMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	out := &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     map[string]any{},
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
	maps.Copy(out.Parameters, msg.Parameters)
	return out
}

// FromExecutionMessage is the inverse of ToExecutionMessage. go-job fields
// the sync pipeline does not use are dropped.
func FromExecutionMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	out := &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     map[string]any{},
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
	maps.Copy(out.Parameters, msg.Parameters)
	return out
}

// EnqueuerAdapter publishes sync job messages onto a go-job queue. The
// dispatch receipt of the last publish is kept for logging.
type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
	last     queue.EnqueueReceipt
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if msg == nil || strings.TrimSpace(msg.JobID) == "" {
		return fmt.Errorf("gojob: execution message with a job id is required")
	}
	receipt, err := a.enqueuer.Enqueue(ctx, ToExecutionMessage(msg))
	if err != nil {
		return fmt.Errorf("gojob: enqueue %s: %w", msg.JobID, err)
	}
	a.last = receipt
	return nil
}

// LastReceipt returns the receipt of the most recent successful publish.
func (a *EnqueuerAdapter) LastReceipt() queue.EnqueueReceipt {
	if a == nil {
		return queue.EnqueueReceipt{}
	}
	return a.last
}

// RetryPolicy bounds how often a sync delivery goes back to the queue.
// Once attempt reaches MaxAttempts a retry becomes failed, or dead_letter
// when DeadLetterOnMax is set.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

func (p RetryPolicy) exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}

// NormalizeAttempt resolves the final disposition and delay of a nack for
// the given attempt.
func (p RetryPolicy) NormalizeAttempt(opts core.JobNackOptions, attempt int) core.JobNackOptions {
	opts.Reason = strings.TrimSpace(opts.Reason)
	if opts.Disposition == "" {
		opts.Disposition = core.JobNackRetry
	}
	if opts.Disposition == core.JobNackRetry && p.exhausted(attempt) {
		opts.Disposition = core.JobNackFailed
		if p.DeadLetterOnMax {
			opts.Disposition = core.JobNackDeadLetter
		}
	}
	switch {
	case opts.Disposition != core.JobNackRetry, opts.Delay < 0:
		opts.Delay = 0
	case p.MaxDelay > 0 && opts.Delay > p.MaxDelay:
		opts.Delay = p.MaxDelay
	}
	return opts
}

// ToNackOptions maps a normalized nack onto go-job dispositions.
func ToNackOptions(opts core.JobNackOptions) queue.NackOptions {
	disposition := queue.NackDispositionRetry
	switch opts.Disposition {
	case core.JobNackDeadLetter:
		disposition = queue.NackDispositionDeadLetter
	case core.JobNackFailed:
		disposition = queue.NackDispositionFailed
	}
	return queue.NackOptions{
		Disposition: disposition,
		Delay:       opts.Delay,
		Reason:      opts.Reason,
	}
}

var _ core.JobEnqueuer = (*EnqueuerAdapter)(nil)
