package core

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestServiceErrorMapper_AssignsStableCodes(t *testing.T) {
	mapped := serviceErrorMapper(fmt.Errorf("%w: conn_1", ErrConnectionNotFound))
	if mapped.TextCode != ErrorNotFound {
		t.Fatalf("expected not found text code, got %q", mapped.TextCode)
	}
	if mapped.Code == 0 {
		t.Fatalf("expected http status code on mapped error")
	}

	mapped = serviceErrorMapper(ErrInitSessionNotPending)
	if mapped.TextCode != ErrorInvalidState {
		t.Fatalf("expected invalid state code, got %q", mapped.TextCode)
	}
	if mapped.Category != goerrors.CategoryConflict {
		t.Fatalf("expected conflict category, got %q", mapped.Category)
	}

	mapped = serviceErrorMapper(UpstreamAuthError("github", stderrors.New("bad code")))
	if mapped.TextCode != ErrorUpstreamAuthFailed || mapped.Code != 502 {
		t.Fatalf("expected upstream auth failure with 502, got %q/%d", mapped.TextCode, mapped.Code)
	}
}

func TestSchemaValidationError_ToServiceError(t *testing.T) {
	err := &SchemaValidationError{
		Schema: "stripe_auth",
		Violations: []FieldViolation{
			{Path: "api_key", Message: "field required"},
			{Path: "region", Message: "must be one of [us eu]"},
		},
	}
	mapped := serviceErrorMapper(fmt.Errorf("wrapped: %w", err))
	if mapped.TextCode != ErrorValidationFailed {
		t.Fatalf("expected validation text code, got %q", mapped.TextCode)
	}
	if mapped.Metadata["schema"] != "stripe_auth" {
		t.Fatalf("expected schema metadata, got %#v", mapped.Metadata)
	}
	violations, ok := mapped.Metadata["violations"].([]map[string]any)
	if !ok || len(violations) != 2 {
		t.Fatalf("expected both violations in metadata, got %#v", mapped.Metadata["violations"])
	}
}

func TestServiceMethods_MapErrorsToStableServiceCodes(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)

	_, err := h.svc.CreateSourceConnection(ctx, CreateSourceConnectionRequest{
		OrganizationID: testOrg,
		ShortName:      "",
	})
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors type, got %T", err)
	}
	if richErr.TextCode != ErrorBadInput {
		t.Fatalf("expected bad input text code, got %q", richErr.TextCode)
	}

	_, err = h.svc.CreateSourceConnection(ctx, CreateSourceConnectionRequest{
		OrganizationID: testOrg,
		ShortName:      "missing",
	})
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors type, got %T", err)
	}
	if richErr.TextCode != ErrorNotFound {
		t.Fatalf("expected source not found code, got %q", richErr.TextCode)
	}
	if richErr.Metadata["entity"] != "source" {
		t.Fatalf("expected source entity metadata, got %#v", richErr.Metadata)
	}
}
