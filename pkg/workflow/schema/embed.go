package schema

import (
	"github.com/tombee/switchboard/schemas"
)

// GetEmbeddedSchema returns the embedded composed-tool JSON Schema as raw bytes.
// This schema can be used for validation, IDE integration, or schema export.
//
// The schema is embedded via the schemas package at the module root level,
// since go:embed directives cannot reference parent directories.
func GetEmbeddedSchema() []byte {
	return schemas.GetComposedToolSchema()
}

// GetEmbeddedSchemaString returns the embedded composed-tool JSON Schema as a string.
// This is a convenience method for use cases that need the schema as a string.
func GetEmbeddedSchemaString() string {
	return schemas.GetComposedToolSchemaString()
}
