// Package schema validates request payloads against per-object JSON schemas.
//
// Schemas are keyed by base key (cs:<producer>:<object>) and compiled eagerly
// when the Registry is built, so a malformed schema definition fails at
// startup rather than on a request path. Base keys without a registered
// schema validate vacuously: the allow-lists already constrain which base
// keys can exist, so unknown objects are deliberately not schema-checked.
// A Registry is immutable after construction and safe for concurrent use.
package schema

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/threelight/redisgate/errors"
	"github.com/threelight/redisgate/keyspace"
)

// Definition is a JSON-schema document expressed as generic Go data, the
// shape produced by decoding a YAML or JSON configuration file.
type Definition map[string]any

// ValidationError reports every violation found in one payload. Its Error
// text is the aggregated field-level message written back to the client.
type ValidationError struct {
	BaseKey    string
	Violations []string
}

// Error joins all violations into one message, not just the first.
func (e *ValidationError) Error() string {
	return strings.Join(e.Violations, ", ")
}

// Is marks a ValidationError as a schema violation for the errors taxonomy.
func (e *ValidationError) Is(target error) bool {
	return target == errors.ErrSchemaViolation
}

// Registry holds the compiled schema for every base key that has one.
type Registry struct {
	schemas map[string]*gojsonschema.Schema
}

// NewRegistry compiles every definition in the table. Any compilation
// failure is fatal: it indicates misconfiguration, never a request problem.
func NewRegistry(defs map[string]Definition) (*Registry, error) {
	r := &Registry{schemas: make(map[string]*gojsonschema.Schema, len(defs))}

	for baseKey, def := range defs {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(map[string]any(def)))
		if err != nil {
			return nil, errors.WrapFatal(
				fmt.Errorf("%w for base key %s: %v", errors.ErrBadSchema, baseKey, err),
				"Registry", "NewRegistry", "compile schema")
		}
		r.schemas[baseKey] = compiled
	}

	return r, nil
}

// Has reports whether a schema is registered for the given base key.
func (r *Registry) Has(baseKey string) bool {
	_, ok := r.schemas[baseKey]
	return ok
}

// Len returns the number of registered schemas.
func (r *Registry) Len() int {
	return len(r.schemas)
}

// Validate checks value (raw JSON bytes) against the schema registered for
// the key's base key. A missing schema validates vacuously. On failure the
// returned *ValidationError aggregates every violated field.
func (r *Registry) Validate(key string, value []byte) error {
	baseKey := keyspace.BaseKey(key)
	compiled, ok := r.schemas[baseKey]
	if !ok {
		return nil
	}

	result, err := compiled.Validate(gojsonschema.NewBytesLoader(value))
	if err != nil {
		return errors.WrapInvalid(err, "Registry", "Validate", "load value")
	}
	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, violation := range result.Errors() {
		violations = append(violations, violation.String())
	}
	return &ValidationError{BaseKey: baseKey, Violations: violations}
}
