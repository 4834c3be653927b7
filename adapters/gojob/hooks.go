package gojob

import (
	"context"

	"github.com/goliatone/go-source-connections/core"

	"github.com/goliatone/go-job/queue/worker"
)

// HookBridge forwards sync worker events to a go-job worker hook, so the
// hooks written for go-job workers (worker.HookFuncs included) can observe
// source syncs too.
type HookBridge struct {
	hook worker.Hook
}

func NewHookBridge(hook worker.Hook) *HookBridge {
	return &HookBridge{hook: hook}
}

func (b *HookBridge) OnStart(ctx context.Context, event core.JobWorkerEvent) {
	if b == nil || b.hook == nil {
		return
	}
	b.hook.OnStart(ctx, toWorkerEvent(event))
}

func (b *HookBridge) OnSuccess(ctx context.Context, event core.JobWorkerEvent) {
	if b == nil || b.hook == nil {
		return
	}
	b.hook.OnSuccess(ctx, toWorkerEvent(event))
}

func (b *HookBridge) OnFailure(ctx context.Context, event core.JobWorkerEvent) {
	if b == nil || b.hook == nil {
		return
	}
	b.hook.OnFailure(ctx, toWorkerEvent(event))
}

func (b *HookBridge) OnRetry(ctx context.Context, event core.JobWorkerEvent) {
	if b == nil || b.hook == nil {
		return
	}
	b.hook.OnRetry(ctx, toWorkerEvent(event))
}

func toWorkerEvent(event core.JobWorkerEvent) worker.Event {
	return worker.Event{
		Message:   ToExecutionMessage(event.Message),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
}

var _ core.JobWorkerHook = (*HookBridge)(nil)
