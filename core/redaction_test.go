package core

import "testing"

func TestRedactSensitiveMapPreservesTraceabilityMetadata(t *testing.T) {
	redacted := RedactSensitiveMap(map[string]any{
		"trace_id":             "trace_1",
		"organization_id":      "org_1",
		"credential_id":        "cred_1",
		"source_connection_id": "sc_1",
		"access_token":         "secret-token",
		"client_secret":        "shh",
		"nested":               map[string]any{"refresh_token": "refresh", "sync_job_id": "job_1"},
		"events":               []any{map[string]any{"api_key": "key_1"}, map[string]any{"entity_id": "ext_1"}},
	})

	for _, key := range []string{"trace_id", "organization_id", "credential_id", "source_connection_id"} {
		if redacted[key] == RedactedValue {
			t.Fatalf("expected %s to remain visible", key)
		}
	}
	if redacted["access_token"] != RedactedValue {
		t.Fatalf("expected access_token to be redacted, got %#v", redacted["access_token"])
	}
	if redacted["client_secret"] != RedactedValue {
		t.Fatalf("expected client_secret to be redacted, got %#v", redacted["client_secret"])
	}
	nested, ok := redacted["nested"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested redacted map")
	}
	if nested["refresh_token"] != RedactedValue {
		t.Fatalf("expected nested refresh_token to be redacted, got %#v", nested["refresh_token"])
	}
	if nested["sync_job_id"] != "job_1" {
		t.Fatalf("expected nested sync_job_id to remain visible, got %#v", nested["sync_job_id"])
	}
	events, ok := redacted["events"].([]any)
	if !ok || len(events) != 2 {
		t.Fatalf("expected events slice, got %#v", redacted["events"])
	}
	if events[0].(map[string]any)["api_key"] != RedactedValue {
		t.Fatalf("expected api_key in slice to be redacted")
	}
}
