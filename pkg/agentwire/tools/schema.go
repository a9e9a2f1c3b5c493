package tools

import (
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/conneroisu/agentwire/pkg/agenterrs"
)

// defaultSchema is the raw schema used for tools that declare none.
var defaultSchema = json.RawMessage(`{"type":"object"}`)

// SchemaFromMap converts a raw schema map into a typed schema by
// round-tripping through JSON. A missing type defaults to "object",
// which tool input schemas require.
func SchemaFromMap(m map[string]any) (*jsonschema.Schema, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, agenterrs.NewConfigError("schema is not JSON-serializable")
	}

	var s jsonschema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, agenterrs.NewConfigError("schema does not parse as JSON Schema")
	}
	if s.Type == "" {
		s.Type = "object"
	}

	return &s, nil
}

// MustSchema is SchemaFromMap for static schemas; it panics on error.
func MustSchema(m map[string]any) *jsonschema.Schema {
	s, err := SchemaFromMap(m)
	if err != nil {
		panic(err)
	}
	return s
}

// rawSchema renders a tool's input schema as raw JSON for the MCP
// tool declaration.
func rawSchema(t Tool) json.RawMessage {
	if t.InputSchema == nil {
		return defaultSchema
	}
	data, err := json.Marshal(t.InputSchema)
	if err != nil {
		return defaultSchema
	}
	return data
}
