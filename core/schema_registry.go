package core

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

type FieldType string

const (
	FieldTypeString     FieldType = "string"
	FieldTypeInteger    FieldType = "integer"
	FieldTypeNumber     FieldType = "number"
	FieldTypeBoolean    FieldType = "boolean"
	FieldTypeStringList FieldType = "string_list"
	FieldTypeObject     FieldType = "object"
)

type FieldSpec struct {
	Name        string
	Type        FieldType
	Required    bool
	Default     any
	Secret      bool
	Enum        []string
	Pattern     string
	Description string
}

// Normalizer runs after field coercion and may add cross-field violations.
type Normalizer func(fields map[string]any) []FieldViolation

type Schema struct {
	Name      string
	Fields    []FieldSpec
	Normalize Normalizer

	patterns map[string]*regexp.Regexp
}

// HasRequiredFields reports whether empty input is rejected.
func (s Schema) HasRequiredFields() bool {
	for _, field := range s.Fields {
		if field.Required {
			return true
		}
	}
	return false
}

// SecretFields lists fields flagged as secret, in declaration order.
func (s Schema) SecretFields() []string {
	out := []string{}
	for _, field := range s.Fields {
		if field.Secret {
			out = append(out, field.Name)
		}
	}
	return out
}

// SchemaRegistry maps declared schema names to statically known schemas.
// Registration happens at startup; lookups are safe for concurrent use.
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[string]Schema
}

func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{schemas: map[string]Schema{}}
}

// MustSchemaRegistry builds a registry from statically declared schemas and
// panics if any of them is invalid.
func MustSchemaRegistry(schemas ...Schema) *SchemaRegistry {
	registry := NewSchemaRegistry()
	if err := registry.RegisterAll(schemas...); err != nil {
		panic(err)
	}
	return registry
}

// RegisterAll registers schemas in order and stops at the first invalid one.
func (r *SchemaRegistry) RegisterAll(schemas ...Schema) error {
	for _, schema := range schemas {
		if err := r.Register(schema); err != nil {
			return err
		}
	}
	return nil
}

func (r *SchemaRegistry) Register(schema Schema) error {
	if r == nil {
		return fmt.Errorf("core: schema registry is nil")
	}
	name := strings.TrimSpace(schema.Name)
	if name == "" {
		return fmt.Errorf("core: schema name is required")
	}
	seen := map[string]struct{}{}
	schema.patterns = map[string]*regexp.Regexp{}
	for _, field := range schema.Fields {
		fieldName := strings.TrimSpace(field.Name)
		if fieldName == "" {
			return fmt.Errorf("core: schema %q has a field without name", name)
		}
		if _, ok := seen[fieldName]; ok {
			return fmt.Errorf("core: schema %q declares field %q twice", name, fieldName)
		}
		seen[fieldName] = struct{}{}
		if strings.TrimSpace(field.Pattern) != "" {
			compiled, err := regexp.Compile(field.Pattern)
			if err != nil {
				return fmt.Errorf("core: schema %q field %q has invalid pattern: %w", name, fieldName, err)
			}
			schema.patterns[fieldName] = compiled
		}
	}
	schema.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.schemas == nil {
		r.schemas = map[string]Schema{}
	}
	r.schemas[name] = schema
	return nil
}

func (r *SchemaRegistry) Lookup(name string) (Schema, bool) {
	if r == nil {
		return Schema{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	schema, ok := r.schemas[strings.TrimSpace(name)]
	return schema, ok
}

func (r *SchemaRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *SchemaRegistry) ResolveAuthSchema(source Source) (Schema, error) {
	return r.resolve(source, "auth", source.AuthSchema)
}

func (r *SchemaRegistry) ResolveConfigSchema(source Source) (Schema, error) {
	return r.resolve(source, "config", source.ConfigSchema)
}

func (r *SchemaRegistry) resolve(source Source, kind string, name string) (Schema, error) {
	name = strings.TrimSpace(name)
	metadata := map[string]any{"short_name": source.ShortName, "schema_kind": kind}
	if name == "" {
		return Schema{}, ConfigurationError(
			fmt.Sprintf("source %q does not declare a %s schema", source.ShortName, kind),
			metadata,
		)
	}
	schema, ok := r.Lookup(name)
	if !ok {
		metadata["schema"] = name
		return Schema{}, ConfigurationError(
			fmt.Sprintf("%s schema %q for source %q is not registered", kind, name, source.ShortName),
			metadata,
		)
	}
	return schema, nil
}

// Validate coerces raw input against schema. Unknown keys are dropped and
// every violation is reported in field order.
func (r *SchemaRegistry) Validate(schema Schema, raw map[string]any) (map[string]any, error) {
	if raw == nil {
		if schema.HasRequiredFields() {
			violations := []FieldViolation{}
			for _, field := range schema.Fields {
				if field.Required {
					violations = append(violations, FieldViolation{Path: field.Name, Message: "field required"})
				}
			}
			return nil, &SchemaValidationError{Schema: schema.Name, Violations: violations}
		}
		return schema.defaults(), nil
	}

	normalized := make(map[string]any, len(schema.Fields))
	violations := []FieldViolation{}
	for _, field := range schema.Fields {
		value, present := raw[field.Name]
		if !present || value == nil || isBlankString(value) {
			if field.Default != nil {
				normalized[field.Name] = cloneValue(field.Default)
				continue
			}
			if field.Required {
				violations = append(violations, FieldViolation{Path: field.Name, Message: "field required"})
			}
			continue
		}
		coerced, err := coerceField(field, value)
		if err != nil {
			violations = append(violations, FieldViolation{Path: field.Name, Message: err.Error()})
			continue
		}
		if message := schema.checkConstraints(field, coerced); message != "" {
			violations = append(violations, FieldViolation{Path: field.Name, Message: message})
			continue
		}
		normalized[field.Name] = coerced
	}
	if len(violations) == 0 && schema.Normalize != nil {
		violations = append(violations, schema.Normalize(normalized)...)
	}
	if len(violations) > 0 {
		return nil, &SchemaValidationError{Schema: schema.Name, Violations: violations}
	}
	return normalized, nil
}

func (s Schema) defaults() map[string]any {
	out := map[string]any{}
	for _, field := range s.Fields {
		if field.Default != nil {
			out[field.Name] = cloneValue(field.Default)
		}
	}
	return out
}

func (s Schema) checkConstraints(field FieldSpec, value any) string {
	text, isString := value.(string)
	if len(field.Enum) > 0 && isString {
		matched := false
		for _, candidate := range field.Enum {
			if candidate == text {
				matched = true
				break
			}
		}
		if !matched {
			return fmt.Sprintf("must be one of %s", strings.Join(field.Enum, ", "))
		}
	}
	if pattern := s.patterns[field.Name]; pattern != nil && isString && !pattern.MatchString(text) {
		return "does not match the expected format"
	}
	return ""
}

func coerceField(field FieldSpec, value any) (any, error) {
	switch field.Type {
	case FieldTypeString, "":
		switch typed := value.(type) {
		case string:
			return strings.TrimSpace(typed), nil
		case json.Number:
			return typed.String(), nil
		default:
			return nil, fmt.Errorf("must be a string")
		}
	case FieldTypeInteger:
		return coerceInteger(value)
	case FieldTypeNumber:
		return coerceNumber(value)
	case FieldTypeBoolean:
		switch typed := value.(type) {
		case bool:
			return typed, nil
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(typed))
			if err != nil {
				return nil, fmt.Errorf("must be a boolean")
			}
			return parsed, nil
		default:
			return nil, fmt.Errorf("must be a boolean")
		}
	case FieldTypeStringList:
		switch typed := value.(type) {
		case []string:
			return trimStrings(typed), nil
		case []any:
			out := make([]string, 0, len(typed))
			for index, item := range typed {
				text, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("item %d must be a string", index)
				}
				out = append(out, strings.TrimSpace(text))
			}
			return out, nil
		case string:
			if strings.TrimSpace(typed) == "" {
				return []string{}, nil
			}
			return trimStrings(strings.Split(typed, ",")), nil
		default:
			return nil, fmt.Errorf("must be a list of strings")
		}
	case FieldTypeObject:
		typed, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("must be an object")
		}
		return copyAnyMap(typed), nil
	default:
		return nil, fmt.Errorf("has unsupported type %q", field.Type)
	}
}

func coerceInteger(value any) (any, error) {
	switch typed := value.(type) {
	case int:
		return int64(typed), nil
	case int32:
		return int64(typed), nil
	case int64:
		return typed, nil
	case float64:
		if typed != math.Trunc(typed) {
			return nil, fmt.Errorf("must be an integer")
		}
		return int64(typed), nil
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return nil, fmt.Errorf("must be an integer")
		}
		return parsed, nil
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("must be an integer")
		}
		return parsed, nil
	default:
		return nil, fmt.Errorf("must be an integer")
	}
}

func coerceNumber(value any) (any, error) {
	switch typed := value.(type) {
	case int:
		return float64(typed), nil
	case int64:
		return float64(typed), nil
	case float32:
		return float64(typed), nil
	case float64:
		return typed, nil
	case json.Number:
		parsed, err := typed.Float64()
		if err != nil {
			return nil, fmt.Errorf("must be a number")
		}
		return parsed, nil
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return nil, fmt.Errorf("must be a number")
		}
		return parsed, nil
	default:
		return nil, fmt.Errorf("must be a number")
	}
}

func isBlankString(value any) bool {
	text, ok := value.(string)
	return ok && strings.TrimSpace(text) == ""
}

func trimStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return copyAnyMap(typed)
	case []string:
		return append([]string(nil), typed...)
	default:
		return value
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
