package core

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestSchemaRegistry_ResolveRequiresDeclaredAndRegisteredSchema(t *testing.T) {
	registry := testSchemas(t)

	_, err := registry.ResolveConfigSchema(Source{ShortName: "broken", AuthSchema: "stripe_auth"})
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.TextCode != ErrorConfiguration {
		t.Fatalf("expected configuration error for undeclared schema, got %v", err)
	}

	_, err = registry.ResolveAuthSchema(Source{ShortName: "ghost", AuthSchema: "ghost_auth"})
	if !goerrors.As(err, &richErr) || richErr.TextCode != ErrorConfiguration {
		t.Fatalf("expected configuration error for unregistered schema, got %v", err)
	}
	if richErr.Metadata["schema"] != "ghost_auth" {
		t.Fatalf("expected schema name in metadata, got %#v", richErr.Metadata)
	}

	schema, err := registry.ResolveAuthSchema(Source{ShortName: "stripe", AuthSchema: "stripe_auth"})
	if err != nil {
		t.Fatalf("resolve stripe auth schema: %v", err)
	}
	if got := schema.SecretFields(); !reflect.DeepEqual(got, []string{"api_key"}) {
		t.Fatalf("expected api_key secret field, got %#v", got)
	}
}

func TestSchemaRegistry_ValidateAbsentFields(t *testing.T) {
	registry := testSchemas(t)

	config, _ := registry.Lookup("stripe_config")
	normalized, err := registry.Validate(config, nil)
	if err != nil {
		t.Fatalf("expected defaults for optional schema, got %v", err)
	}
	if normalized["include_test_data"] != false {
		t.Fatalf("expected default include_test_data=false, got %#v", normalized)
	}

	auth, _ := registry.Lookup("stripe_auth")
	_, err = registry.Validate(auth, nil)
	var schemaErr *SchemaValidationError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected schema validation error, got %v", err)
	}
	if len(schemaErr.Violations) != 1 || schemaErr.Violations[0].Path != "api_key" {
		t.Fatalf("expected api_key required violation, got %#v", schemaErr.Violations)
	}
}

func TestSchemaRegistry_ValidateAggregatesViolations(t *testing.T) {
	registry := NewSchemaRegistry()
	err := registry.Register(Schema{
		Name: "warehouse_config",
		Fields: []FieldSpec{
			{Name: "host", Type: FieldTypeString, Required: true},
			{Name: "port", Type: FieldTypeInteger, Default: int64(5432)},
			{Name: "region", Type: FieldTypeString, Enum: []string{"us", "eu"}},
			{Name: "tables", Type: FieldTypeStringList},
			{Name: "ssl", Type: FieldTypeBoolean},
		},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	schema, _ := registry.Lookup("warehouse_config")

	_, err = registry.Validate(schema, map[string]any{
		"port":   "not-a-port",
		"region": "ap",
		"ssl":    "yes please",
	})
	var schemaErr *SchemaValidationError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected schema validation error, got %v", err)
	}
	paths := []string{}
	for _, violation := range schemaErr.Violations {
		paths = append(paths, violation.Path)
	}
	if !reflect.DeepEqual(paths, []string{"host", "port", "region", "ssl"}) {
		t.Fatalf("expected violations in field order, got %#v", paths)
	}

	normalized, err := registry.Validate(schema, map[string]any{
		"host":    " db.internal ",
		"tables":  "users, orders",
		"ssl":     "true",
		"unknown": "dropped",
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if normalized["host"] != "db.internal" {
		t.Fatalf("expected trimmed host, got %#v", normalized["host"])
	}
	if normalized["port"] != int64(5432) {
		t.Fatalf("expected default port, got %#v", normalized["port"])
	}
	if !reflect.DeepEqual(normalized["tables"], []string{"users", "orders"}) {
		t.Fatalf("expected split tables, got %#v", normalized["tables"])
	}
	if normalized["ssl"] != true {
		t.Fatalf("expected ssl=true, got %#v", normalized["ssl"])
	}
	if _, ok := normalized["unknown"]; ok {
		t.Fatalf("expected unknown keys to be dropped")
	}
}

func TestSchemaRegistry_NormalizerAddsCrossFieldViolations(t *testing.T) {
	registry := MustSchemaRegistry(Schema{
		Name: "range_config",
		Fields: []FieldSpec{
			{Name: "from", Type: FieldTypeInteger, Required: true},
			{Name: "to", Type: FieldTypeInteger, Required: true},
		},
		Normalize: func(fields map[string]any) []FieldViolation {
			if fields["from"].(int64) > fields["to"].(int64) {
				return []FieldViolation{{Path: "to", Message: "must not be before from"}}
			}
			return nil
		},
	})
	schema, ok := registry.Lookup("range_config")
	if !ok {
		t.Fatalf("expected schema registered through constructor")
	}
	_, err := registry.Validate(schema, map[string]any{"from": 10, "to": float64(3)})
	var schemaErr *SchemaValidationError
	if !errors.As(err, &schemaErr) || schemaErr.Violations[0].Path != "to" {
		t.Fatalf("expected normalizer violation, got %v", err)
	}
}

func TestSchemaRegistry_RegisterRejectsBadSchemas(t *testing.T) {
	registry := NewSchemaRegistry()
	if err := registry.Register(Schema{Name: "dup", Fields: []FieldSpec{{Name: "a"}, {Name: "a"}}}); err == nil {
		t.Fatalf("expected duplicate field error")
	}
	if err := registry.Register(Schema{Name: "bad", Fields: []FieldSpec{{Name: "a", Pattern: "("}}}); err == nil {
		t.Fatalf("expected invalid pattern error")
	}
	if len(registry.Names()) != 0 {
		t.Fatalf("expected no schemas registered, got %#v", registry.Names())
	}
}

func TestSchemaRegistry_StaticSchemasFailLoudly(t *testing.T) {
	registry := NewSchemaRegistry()
	err := registry.RegisterAll(
		Schema{Name: "ok"},
		Schema{Name: "bad", Fields: []FieldSpec{{Name: "token", Pattern: "("}}},
	)
	if err == nil || !strings.Contains(err.Error(), `schema "bad" field "token" has invalid pattern`) {
		t.Fatalf("expected invalid pattern error naming the schema, got %v", err)
	}
	if _, ok := registry.Lookup("ok"); !ok {
		t.Fatalf("expected schemas before the invalid one to stay registered")
	}

	defer func() {
		if recovered := recover(); recovered == nil {
			t.Fatalf("expected MustSchemaRegistry to panic on an invalid pattern")
		}
	}()
	MustSchemaRegistry(Schema{Name: "bad", Fields: []FieldSpec{{Name: "token", Pattern: "("}}})
}
