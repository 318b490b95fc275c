package dispatch

import (
	"github.com/google/jsonschema-go/jsonschema"
)

// validateArgs resolves schema and validates args against it, so a tool
// handler can assume well-typed arguments instead of doing its own
// ad-hoc `.(string)` type assertions.
func validateArgs(schema *jsonschema.Schema, args map[string]any) error {
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return err
	}
	return resolved.Validate(args)
}

// StringProp is a small helper for building a required or optional
// string property when declaring a Tool's Schema, mirroring the
// teacher's mcp.WithString(name, mcp.Required(), mcp.Description(...))
// builder shape without depending on MCP transport types.
func StringProp(description string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: description}
}

// NumberProp is the numeric counterpart to StringProp.
func NumberProp(description string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "number", Description: description}
}

// ObjectSchema builds a top-level object schema from named properties,
// marking requiredFields as required.
func ObjectSchema(properties map[string]*jsonschema.Schema, requiredFields ...string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:       "object",
		Properties: properties,
		Required:   requiredFields,
	}
}
