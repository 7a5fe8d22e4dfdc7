package agenty

import (
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"strings"

	invopop "github.com/invopop/jsonschema"
	santhosh "github.com/santhosh-tekuri/jsonschema/v6"
)

// OutputSchema is the declared shape of an agent's structured output. It pairs
// the JSON Schema advertised to the model with a compiled validator used by
// the extraction-retry loop.
type OutputSchema struct {
	name      string
	schemaMap map[string]any
	compiled  *santhosh.Schema
}

// OutputFor declares the output shape from a Go type by reflection. The type's
// json and jsonschema struct tags drive the advertised schema.
func OutputFor[T any]() (*OutputSchema, error) {
	reflector := &invopop.Reflector{DoNotReference: true}
	schema := reflector.Reflect(new(T))
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(data, &schemaMap); err != nil {
		return nil, err
	}
	name := reflect.TypeOf(*new(T)).Name()
	if name == "" {
		name = "output"
	}
	return OutputFromMap(name, schemaMap)
}

// OutputFromMap declares the output shape from a raw JSON Schema map. The map
// is defensively copied; construction fails when the schema does not compile.
func OutputFromMap(name string, schemaMap map[string]any) (*OutputSchema, error) {
	if schemaMap == nil {
		return nil, fmt.Errorf("output schema map must not be nil")
	}
	data, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("failed to deep copy schema map: %w", err)
	}
	var schemaCopy map[string]any
	if err := json.Unmarshal(data, &schemaCopy); err != nil {
		return nil, fmt.Errorf("failed to deep copy schema map: %w", err)
	}
	stripSchemaIDs(schemaCopy)
	compiled, err := compileRawSchema(schemaCopy)
	if err != nil {
		return nil, fmt.Errorf("failed to compile output schema: %w", err)
	}
	return &OutputSchema{
		name:      name,
		schemaMap: schemaCopy,
		compiled:  compiled,
	}, nil
}

// Name returns the schema name recorded in agent snapshots.
func (s *OutputSchema) Name() string { return s.name }

// Schema returns a shallow copy of the JSON Schema (top-level keys only).
// Nested maps are shared; callers must not mutate them.
func (s *OutputSchema) Schema() map[string]any {
	return maps.Clone(s.schemaMap)
}

// Validate checks an already-parsed value against the declared shape.
// Failures come back as ClientError wrapping ErrValidation so the message can
// be fed to the model for self-correction.
func (s *OutputSchema) Validate(v any) error {
	return validateAgainstSchema(s.compiled, v)
}

// Boundary is the delimiter pair used to locate a structured-output span
// inside free-form model text.
type Boundary struct {
	Start string
	End   string
}

// DefaultBoundary delimits a fenced JSON block.
func DefaultBoundary() Boundary {
	return Boundary{Start: "```json", End: "```"}
}

// extractSpan locates the structured-output candidate in content: first the
// delimited block, then the widest brace-delimited span as fallback. Returns
// ok=false when neither exists.
func extractSpan(content string, b Boundary) (string, bool) {
	if b.Start != "" && b.End != "" {
		if start := strings.Index(content, b.Start); start >= 0 {
			rest := content[start+len(b.Start):]
			if end := strings.Index(rest, b.End); end >= 0 {
				return strings.TrimSpace(rest[:end]), true
			}
		}
	}
	open := strings.Index(content, "{")
	last := strings.LastIndex(content, "}")
	if open >= 0 && last > open {
		return strings.TrimSpace(content[open : last+1]), true
	}
	return "", false
}
