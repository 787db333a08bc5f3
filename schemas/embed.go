// Package schemas provides access to embedded JSON schemas.
package schemas

import (
	_ "embed"
)

// Embed the composed-tool JSON Schema into the binary for validation and
// tooling. The schema defines the structure of composed tool definitions
// and enables IDE autocompletion, early validation, and schema-based tools.
//
//go:embed composed_tool.schema.json
var composedToolSchema []byte

// GetComposedToolSchema returns the embedded composed-tool JSON Schema as
// raw bytes. This schema can be used for validation, IDE integration, or
// schema export.
func GetComposedToolSchema() []byte {
	return composedToolSchema
}

// GetComposedToolSchemaString returns the embedded composed-tool JSON
// Schema as a string. This is a convenience method for use cases that need
// the schema as a string.
func GetComposedToolSchemaString() string {
	return string(composedToolSchema)
}
