package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorNotFound              = "SOURCE_CONNECTION_NOT_FOUND"
	ErrorValidationFailed      = "SOURCE_CONNECTION_VALIDATION_FAILED"
	ErrorConflict              = "SOURCE_CONNECTION_CONFLICT"
	ErrorInvalidState          = "SOURCE_CONNECTION_INVALID_STATE"
	ErrorForbidden             = "SOURCE_CONNECTION_FORBIDDEN"
	ErrorMissingAuthentication = "SOURCE_CONNECTION_MISSING_AUTHENTICATION"
	ErrorBadInput              = "SOURCE_CONNECTION_BAD_INPUT"
	ErrorUpstreamAuthFailed    = "SOURCE_CONNECTION_UPSTREAM_AUTH_FAILED"
	ErrorConfiguration         = "SOURCE_CONNECTION_CONFIGURATION_ERROR"
	ErrorInternal              = "SOURCE_CONNECTION_INTERNAL_ERROR"
)

var (
	ErrSourceNotFound           = errors.New("core: source not found")
	ErrCredentialNotFound       = errors.New("core: integration credential not found")
	ErrConnectionNotFound       = errors.New("core: connection not found")
	ErrCollectionNotFound       = errors.New("core: collection not found")
	ErrSyncNotFound             = errors.New("core: sync not found")
	ErrSyncJobNotFound          = errors.New("core: sync job not found")
	ErrSourceConnectionNotFound = errors.New("core: source connection not found")
	ErrInitSessionNotFound      = errors.New("core: connection init session not found")
	ErrInitSessionNotPending    = errors.New("core: connection init session is not pending")
	ErrReadableIDTaken          = errors.New("core: collection readable id already exists")
	ErrDuplicateState           = errors.New("core: connection init session state already exists")
)

// FieldViolation is a single schema failure addressed by its field path.
type FieldViolation struct {
	Path    string
	Message string
}

// SchemaValidationError aggregates every violation found while validating
// input against one schema.
type SchemaValidationError struct {
	Schema     string
	Violations []FieldViolation
}

func (e *SchemaValidationError) Error() string {
	if e == nil {
		return ""
	}
	parts := make([]string, 0, len(e.Violations))
	for _, violation := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", violation.Path, violation.Message))
	}
	return fmt.Sprintf("core: %s validation failed: %s", e.Schema, strings.Join(parts, "; "))
}

// ToServiceError converts the aggregate into a go-errors validation envelope.
func (e *SchemaValidationError) ToServiceError() *goerrors.Error {
	if e == nil {
		return nil
	}
	fields := make([]goerrors.FieldError, 0, len(e.Violations))
	violations := make([]map[string]any, 0, len(e.Violations))
	for _, violation := range e.Violations {
		fields = append(fields, goerrors.FieldError{
			Field:   violation.Path,
			Message: violation.Message,
		})
		violations = append(violations, map[string]any{
			"field":   violation.Path,
			"message": violation.Message,
		})
	}
	return goerrors.NewValidation(fmt.Sprintf("invalid fields for %s", e.Schema), fields...).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorValidationFailed).
		WithSeverity(goerrors.SeverityError).
		WithMetadata(map[string]any{
			"schema":     e.Schema,
			"violations": violations,
		})
}

func NotFoundError(entity string, id string) *goerrors.Error {
	return newServiceError(
		fmt.Sprintf("%s %q not found", entity, strings.TrimSpace(id)),
		goerrors.CategoryNotFound,
		ErrorNotFound,
	).WithMetadata(map[string]any{"entity": entity, "id": strings.TrimSpace(id)})
}

func ConflictError(message string, metadata map[string]any) *goerrors.Error {
	err := newServiceError(message, goerrors.CategoryConflict, ErrorConflict)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

func InvalidStateError(message string, metadata map[string]any) *goerrors.Error {
	err := newServiceError(message, goerrors.CategoryConflict, ErrorInvalidState)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

func ForbiddenError(message string, metadata map[string]any) *goerrors.Error {
	err := newServiceError(message, goerrors.CategoryAuthz, ErrorForbidden)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

func MissingAuthenticationError(shortName string) *goerrors.Error {
	return newServiceError(
		fmt.Sprintf("no authentication supplied for source %q", shortName),
		goerrors.CategoryBadInput,
		ErrorMissingAuthentication,
	).WithMetadata(map[string]any{"short_name": shortName})
}

func BadInputError(field string, message string) *goerrors.Error {
	return goerrors.NewValidation(message, goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorBadInput).
		WithSeverity(goerrors.SeverityError).
		WithMetadata(map[string]any{"field": field})
}

func UpstreamAuthError(shortName string, err error) *goerrors.Error {
	wrapped := goerrors.Wrap(err, goerrors.CategoryExternal, fmt.Sprintf("authentication with %q failed", shortName)).
		WithCode(http.StatusBadGateway).
		WithTextCode(ErrorUpstreamAuthFailed).
		WithMetadata(map[string]any{"short_name": shortName})
	return wrapped
}

func ConfigurationError(message string, metadata map[string]any) *goerrors.Error {
	err := newServiceError(message, goerrors.CategoryInternal, ErrorConfiguration)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var schemaErr *SchemaValidationError
	if errors.As(err, &schemaErr) {
		return schemaErr.ToServiceError()
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureServiceErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrSourceNotFound):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ErrorNotFound).WithMetadata(map[string]any{"entity": "source"})
	case errors.Is(err, ErrCredentialNotFound):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ErrorNotFound).WithMetadata(map[string]any{"entity": "integration_credential"})
	case errors.Is(err, ErrConnectionNotFound):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ErrorNotFound).WithMetadata(map[string]any{"entity": "connection"})
	case errors.Is(err, ErrCollectionNotFound):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ErrorNotFound).WithMetadata(map[string]any{"entity": "collection"})
	case errors.Is(err, ErrSyncNotFound), errors.Is(err, ErrSyncJobNotFound):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ErrorNotFound).WithMetadata(map[string]any{"entity": "sync"})
	case errors.Is(err, ErrSourceConnectionNotFound):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ErrorNotFound).WithMetadata(map[string]any{"entity": "source_connection"})
	case errors.Is(err, ErrInitSessionNotFound):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ErrorNotFound).WithMetadata(map[string]any{"entity": "connection_init_session"})
	case errors.Is(err, ErrInitSessionNotPending):
		return newServiceError(err.Error(), goerrors.CategoryConflict, ErrorInvalidState)
	case errors.Is(err, ErrReadableIDTaken), errors.Is(err, ErrDuplicateState):
		return newServiceError(err.Error(), goerrors.CategoryConflict, ErrorConflict)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "is required"), strings.Contains(msg, "invalid"):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureServiceErrorEnvelope(mapped)
}

func newServiceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return ErrorBadInput
	case goerrors.CategoryValidation:
		return ErrorValidationFailed
	case goerrors.CategoryNotFound:
		return ErrorNotFound
	case goerrors.CategoryAuthz:
		return ErrorForbidden
	case goerrors.CategoryConflict:
		return ErrorConflict
	case goerrors.CategoryExternal, goerrors.CategoryAuth:
		return ErrorUpstreamAuthFailed
	default:
		return ErrorInternal
	}
}

func serviceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return serviceErrorMapper(err)
	}
	if mapped := mapper(err); mapped != nil {
		return mapped
	}
	return err
}
