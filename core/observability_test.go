package core

import (
	"context"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFieldMap(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFieldMap(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFieldMap(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := *l.records
	out := make([]capturedLog, len(items))
	copy(out, items)
	return out
}

func cloneFieldMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}

func TestServiceObservability_CreateSuccess(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	h := newTestHarness(t,
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)

	createStripeConnection(t, h)

	if !hasCounter(metrics.counters, "source_connections.create_source_connection.total", "success") {
		t.Fatalf("expected create_source_connection success counter")
	}
	if !hasHistogram(metrics.histograms, "source_connections.create_source_connection.duration_ms", "success") {
		t.Fatalf("expected create_source_connection duration histogram")
	}
	if !hasLog(logger.snapshot(), "debug", "create_source_connection succeeded", "create_source_connection") {
		t.Fatalf("expected create_source_connection succeeded structured log")
	}
	for _, record := range logger.snapshot() {
		for key, value := range record.fields {
			if value == "sk_test_x" {
				t.Fatalf("plaintext credential leaked into log field %q", key)
			}
		}
	}
}

func TestServiceObservability_ForbiddenFailure(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	h := newTestHarness(t,
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)

	_, err := h.svc.CreateSourceConnection(context.Background(), CreateSourceConnectionRequest{
		OrganizationID: testOrg,
		ShortName:      "github",
		AuthFields:     map[string]any{"access_token": "raw"},
	})
	if err == nil {
		t.Fatalf("expected forbidden error")
	}
	if !hasCounter(metrics.counters, "source_connections.create_source_connection.total", "failure") {
		t.Fatalf("expected create_source_connection failure counter")
	}
	if !hasLog(logger.snapshot(), "error", "create_source_connection failed", "create_source_connection") {
		t.Fatalf("expected create_source_connection failure log")
	}
}

func TestServiceObservability_EnrichesStructuredErrorFields(t *testing.T) {
	logger := newCaptureLogger()
	h := newTestHarness(t,
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)

	richErr := goerrors.New("provider timeout", goerrors.CategoryExternal).
		WithCode(502).
		WithTextCode(ErrorUpstreamAuthFailed).
		WithMetadata(map[string]any{
			"trace_id":      "trace_123",
			"client_secret": "secret_value",
		})
	h.svc.observeOperation(
		context.Background(),
		time.Now().UTC().Add(-100*time.Millisecond),
		"complete_handshake",
		richErr,
		map[string]any{"short_name": "github", "access_token": "tok"},
	)

	records := logger.snapshot()
	if len(records) == 0 {
		t.Fatalf("expected logs to be emitted")
	}
	last := records[len(records)-1]
	if last.fields["error_text_code"] != ErrorUpstreamAuthFailed {
		t.Fatalf("expected error_text_code %q, got %#v", ErrorUpstreamAuthFailed, last.fields["error_text_code"])
	}
	if last.fields["access_token"] != RedactedValue {
		t.Fatalf("expected access_token field to be redacted, got %#v", last.fields["access_token"])
	}
	metadata, ok := last.fields["error_metadata"].(map[string]any)
	if !ok {
		t.Fatalf("expected redacted error_metadata map, got %#v", last.fields["error_metadata"])
	}
	if metadata["client_secret"] != RedactedValue {
		t.Fatalf("expected client_secret to be redacted, got %#v", metadata["client_secret"])
	}
	if metadata["trace_id"] != "trace_123" {
		t.Fatalf("expected trace_id to stay visible, got %#v", metadata["trace_id"])
	}
}

func hasCounter(items []capturedCounter, name string, status string) bool {
	for _, item := range items {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasHistogram(items []capturedHistogram, name string, status string) bool {
	for _, item := range items {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasLog(items []capturedLog, level string, message string, eventType string) bool {
	for _, item := range items {
		if item.level != level {
			continue
		}
		if item.msg != message {
			continue
		}
		if item.fields["event_type"] == eventType {
			return true
		}
	}
	return false
}

func TestMetricsJobHook_RecordsWorkerEvents(t *testing.T) {
	recorder := &captureMetricsRecorder{}
	hook := NewMetricsJobHook(recorder)
	event := JobWorkerEvent{
		Message:  &JobExecutionMessage{JobID: JobIDSourceSync},
		Attempt:  2,
		Duration: 1500 * time.Millisecond,
	}

	hook.OnStart(context.Background(), event)
	hook.OnSuccess(context.Background(), event)
	hook.OnRetry(context.Background(), event)

	if len(recorder.counters) != 3 {
		t.Fatalf("expected one counter per event, got %#v", recorder.counters)
	}
	if recorder.counters[1].name != "source_connections.sync_worker.success.total" {
		t.Fatalf("unexpected counter name %q", recorder.counters[1].name)
	}
	if recorder.counters[1].tags["job_id"] != JobIDSourceSync || recorder.counters[1].tags["attempt"] != "2" {
		t.Fatalf("unexpected counter tags %#v", recorder.counters[1].tags)
	}
	if len(recorder.histograms) != 1 || recorder.histograms[0].name != "source_connections.sync_worker.success.duration_ms" || recorder.histograms[0].value != 1500 {
		t.Fatalf("expected only the success duration, got %#v", recorder.histograms)
	}

	NewMetricsJobHook(nil).OnFailure(context.Background(), event)
}
