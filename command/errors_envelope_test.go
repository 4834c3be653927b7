package command

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-source-connections/core"
)

func TestCreateSourceConnectionMessage_ValidateReturnsRichError(t *testing.T) {
	err := (CreateSourceConnectionMessage{Request: core.CreateSourceConnectionRequest{OrganizationID: "org_1"}}).Validate()
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
	validation := rich.AllValidationErrors()
	if len(validation) != 1 || validation[0].Field != "short_name" {
		t.Fatalf("expected short_name field error, got %#v", validation)
	}
}

func TestCreateSourceConnectionCommand_NilServiceReturnsRichError(t *testing.T) {
	var cmd *CreateSourceConnectionCommand
	err := cmd.Execute(context.Background(), CreateSourceConnectionMessage{})
	if err == nil {
		t.Fatalf("expected command dependency error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
}
