package query

import (
	"context"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-source-connections/core"
)

func TestGetSourceConnectionMessage_ValidateReturnsRichError(t *testing.T) {
	err := (GetSourceConnectionMessage{OrganizationID: "org_1"}).Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", rich.Category)
	}
	if rich.TextCode != core.ErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.ErrorBadInput, rich.TextCode)
	}
	if rich.Code != http.StatusBadRequest {
		t.Fatalf("expected %d code, got %d", http.StatusBadRequest, rich.Code)
	}
	validation := rich.AllValidationErrors()
	if len(validation) == 0 {
		t.Fatalf("expected validation errors in envelope")
	}
	if validation[0].Field != "source_connection_id" {
		t.Fatalf("expected source_connection_id validation field, got %q", validation[0].Field)
	}
}

func TestGetSourceConnectionQuery_NilReaderReturnsRichError(t *testing.T) {
	var q *GetSourceConnectionQuery
	_, err := q.Query(context.Background(), GetSourceConnectionMessage{})
	if err == nil {
		t.Fatalf("expected dependency error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
	if rich.TextCode != core.ErrorInternal {
		t.Fatalf("expected %q text code, got %q", core.ErrorInternal, rich.TextCode)
	}
}

func TestGetSourceQuery_MapsMissingSourceToNotFound(t *testing.T) {
	q := NewGetSourceQuery(core.NewMemoryPersistence())
	_, err := q.Query(context.Background(), GetSourceMessage{ShortName: "missing"})

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.TextCode != core.ErrorNotFound {
		t.Fatalf("expected %q text code, got %q", core.ErrorNotFound, rich.TextCode)
	}
}
