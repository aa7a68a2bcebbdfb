package tool

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	jsonschemav6 "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agentkit-run/agentkit/internal/core"
)

// compileSchema turns a tool's declared core.ToolInputSchema into a
// validator. An empty schema (no properties, no required fields) compiles
// to a permissive validator that accepts any object.
func compileSchema(name string, schema core.ToolInputSchema) (*jsonschemav6.Schema, error) {
	raw, err := json.Marshal(toJSONSchemaDoc(schema))
	if err != nil {
		return nil, fmt.Errorf("marshalling schema for tool %s: %w", name, err)
	}

	url := "mem://agentkit/tool/" + name + ".json"
	compiler := jsonschemav6.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("adding schema resource for tool %s: %w", name, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compiling schema for tool %s: %w", name, err)
	}
	return compiled, nil
}

func toJSONSchemaDoc(schema core.ToolInputSchema) map[string]any {
	typ := schema.Type
	if typ == "" {
		typ = "object"
	}
	doc := map[string]any{"type": typ}
	if len(schema.Properties) > 0 {
		props := make(map[string]any, len(schema.Properties))
		for name, p := range schema.Properties {
			prop := map[string]any{"type": p.Type}
			if p.Description != "" {
				prop["description"] = p.Description
			}
			props[name] = prop
		}
		doc["properties"] = props
	}
	if len(schema.Required) > 0 {
		doc["required"] = schema.Required
	}
	return doc
}

// validateArguments decodes args through a JSON round-trip (the same
// representation the schema compiler expects: maps, slices, float64,
// string, bool, nil) and validates it against the tool's compiled schema.
func validateArguments(compiled *jsonschemav6.Schema, args map[string]any) error {
	if compiled == nil {
		return nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshalling arguments: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("unmarshalling arguments: %w", err)
	}
	if decoded == nil {
		decoded = map[string]any{}
	}
	return compiled.Validate(decoded)
}

// GenerateInputSchema reflects over a Go struct describing a tool's
// arguments and produces the flat core.ToolInputSchema the catalogue and
// remote agent protocol expect. Nested/array properties collapse to their
// JSON Schema primitive type name, matching the single-level shape
// spec.md §6.4 declares for the tool catalogue.
func GenerateInputSchema(args any) core.ToolInputSchema {
	reflector := &jsonschema.Reflector{ExpandedStruct: true, DoNotReference: true}
	doc := reflector.Reflect(args)
	if doc == nil || doc.Properties == nil {
		return core.ToolInputSchema{Type: "object"}
	}

	result := core.ToolInputSchema{Type: "object", Properties: make(map[string]core.ToolSchemaProperty)}
	for pair := doc.Properties.Oldest(); pair != nil; pair = pair.Next() {
		result.Properties[pair.Key] = core.ToolSchemaProperty{
			Type:        schemaTypeName(pair.Value),
			Description: pair.Value.Description,
		}
	}
	result.Required = append(result.Required, doc.Required...)
	return result
}

func schemaTypeName(s *jsonschema.Schema) string {
	if s.Type != "" {
		return s.Type
	}
	return "string"
}
