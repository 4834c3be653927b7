package core

import (
	"context"
	"maps"
	"strconv"
)

// MetricPrefix namespaces every metric this package records.
//
// Service operations emit, tagged with operation, status and, when known,
// organization_id and short_name:
//
//	source_connections.<operation>.total        counter
//	source_connections.<operation>.duration_ms  histogram
//
// The sync worker hook emits, tagged with job_id and attempt:
//
//	source_connections.sync_worker.<event>.total        counter
//	source_connections.sync_worker.<event>.duration_ms  histogram (success and failure only)
//
// where event is one of start, success, failure or retry.
const MetricPrefix = "source_connections"

func operationCounterName(operation string) string {
	return MetricPrefix + "." + operation + ".total"
}

func operationDurationName(operation string) string {
	return MetricPrefix + "." + operation + ".duration_ms"
}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// MetricsJobHook records sync worker deliveries on a MetricsRecorder.
type MetricsJobHook struct {
	recorder MetricsRecorder
}

func NewMetricsJobHook(recorder MetricsRecorder) *MetricsJobHook {
	if recorder == nil {
		recorder = NopMetricsRecorder{}
	}
	return &MetricsJobHook{recorder: recorder}
}

func (h *MetricsJobHook) OnStart(ctx context.Context, event JobWorkerEvent) {
	h.record(ctx, "start", event, false)
}

func (h *MetricsJobHook) OnSuccess(ctx context.Context, event JobWorkerEvent) {
	h.record(ctx, "success", event, true)
}

func (h *MetricsJobHook) OnFailure(ctx context.Context, event JobWorkerEvent) {
	h.record(ctx, "failure", event, true)
}

func (h *MetricsJobHook) OnRetry(ctx context.Context, event JobWorkerEvent) {
	h.record(ctx, "retry", event, false)
}

func (h *MetricsJobHook) record(ctx context.Context, name string, event JobWorkerEvent, timed bool) {
	if h == nil || h.recorder == nil {
		return
	}
	tags := map[string]string{"attempt": strconv.Itoa(event.Attempt)}
	if event.Message != nil {
		tags["job_id"] = event.Message.JobID
	}
	base := MetricPrefix + ".sync_worker." + name
	h.recorder.IncCounter(ctx, base+".total", 1, tags)
	if timed {
		h.recorder.ObserveHistogram(ctx, base+".duration_ms", float64(event.Duration.Milliseconds()), cloneTags(tags))
	}
}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	return maps.Clone(tags)
}

var (
	_ MetricsRecorder = NopMetricsRecorder{}
	_ JobWorkerHook   = (*MetricsJobHook)(nil)
)
