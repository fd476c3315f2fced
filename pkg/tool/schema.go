package tool

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// MustSchema generates the JSON schema for an argument struct using its
// json/jsonschema struct tags. It panics on reflection failure, which can
// only happen for a malformed argument type; tools call it at construction
// time.
func MustSchema(v any) map[string]any {
	schema, err := generateSchema(v)
	if err != nil {
		panic(fmt.Sprintf("tool: failed to generate schema for %T: %v", v, err))
	}
	return schema
}

func generateSchema(v any) (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		// Use jsonschema tags to determine required fields
		RequiredFromJSONSchemaTags: true,

		// Don't add $ref for definitions (inline everything)
		ExpandedStruct: true,

		// Don't add $schema and $id
		DoNotReference: true,
	}

	schema := reflector.Reflect(v)

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	delete(result, "$schema")
	delete(result, "$id")
	return result, nil
}
