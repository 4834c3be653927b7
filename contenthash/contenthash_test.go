package contenthash

import (
	"encoding/json"
	"testing"
)

func TestSum_IgnoresMapOrderAndNumericRepresentation(t *testing.T) {
	typed := map[string]any{
		"id":     42,
		"name":   "Acme",
		"tags":   []string{"a", "b"},
		"nested": map[string]any{"count": int64(3), "ratio": 0.5},
	}
	raw, err := json.Marshal(typed)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	left, err := Sum(typed)
	if err != nil {
		t.Fatalf("sum typed: %v", err)
	}
	right, err := Sum(decoded)
	if err != nil {
		t.Fatalf("sum decoded: %v", err)
	}
	if left != right {
		t.Fatalf("expected equal digests, got %s and %s", left, right)
	}
	if len(left) != 64 {
		t.Fatalf("expected 32 byte hex digest, got %d chars", len(left))
	}
}

func TestSum_DetectsChanges(t *testing.T) {
	base := MustSum(map[string]any{"id": 1, "title": "draft"})
	changed := MustSum(map[string]any{"id": 1, "title": "final"})
	if base == changed {
		t.Fatalf("expected different digests for changed payload")
	}
	reordered := MustSum([]any{2, 1})
	if reordered == MustSum([]any{1, 2}) {
		t.Fatalf("expected slice order to be significant")
	}
}

func TestSumBytes_IsKeyed(t *testing.T) {
	data, err := Canonical("hello")
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	keyed, err := SumBytes(data)
	if err != nil {
		t.Fatalf("sum bytes: %v", err)
	}
	if keyed == "" || keyed == MustSum("hello!") {
		t.Fatalf("unexpected digest %q", keyed)
	}
	if again, _ := SumBytes(data); again != keyed {
		t.Fatalf("expected stable digest")
	}
}
