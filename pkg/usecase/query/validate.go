package query

import (
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/noctua/pkg/model"
	"google.golang.org/genai"
)

// validateStructured decodes the model's structured output, fills documented
// defaults for absent fields, and validates the result against the caller's
// schema. RejectDefaults skips the fill, so any under-specification by the
// model surfaces as a validation error.
func validateStructured(answer string, rs *model.ResultSchema) (any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(answer), &obj); err != nil {
		return nil, goerr.Wrap(model.ErrValidation, "structured output is not valid JSON",
			goerr.V("cause", err.Error()))
	}

	resolved, err := rs.Schema.Resolve(nil)
	if err != nil {
		return nil, goerr.Wrap(model.ErrValidation, "failed to resolve schema",
			goerr.V("cause", err.Error()))
	}

	if rs.FillPolicy != model.RejectDefaults {
		if err := resolved.ApplyDefaults(&obj); err != nil {
			return nil, goerr.Wrap(model.ErrValidation, "failed to apply schema defaults",
				goerr.V("cause", err.Error()))
		}
		fillRequiredDefaults(obj, rs.Schema)
	}

	if err := resolved.Validate(obj); err != nil {
		return nil, goerr.Wrap(model.ErrValidation, "structured output does not match schema",
			goerr.V("cause", err.Error()))
	}
	return obj, nil
}

// fillRequiredDefaults fills absent required properties that document a
// default. ApplyDefaults leaves required properties untouched, so they are
// handled here before validation.
func fillRequiredDefaults(obj map[string]any, schema *jsonschema.Schema) {
	for _, name := range schema.Required {
		if _, ok := obj[name]; ok {
			continue
		}
		prop, ok := schema.Properties[name]
		if !ok || prop.Default == nil {
			continue
		}
		var v any
		if err := json.Unmarshal(prop.Default, &v); err != nil {
			continue
		}
		obj[name] = v
	}
}

// DecodeObject converts the loosely-typed Object of a QueryResult into T.
func DecodeObject[T any](result *model.QueryResult) (T, error) {
	var out T
	raw, err := json.Marshal(result.Object)
	if err != nil {
		return out, goerr.Wrap(err, "failed to re-encode result object")
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, goerr.Wrap(err, "failed to decode result object")
	}
	return out, nil
}

// convertJSONSchemaToGenai converts JSON Schema to Gemini genai.Schema
func convertJSONSchemaToGenai(schema *jsonschema.Schema) (*genai.Schema, error) {
	if schema == nil {
		return nil, nil
	}

	genaiSchema := &genai.Schema{}

	switch schema.Type {
	case "object":
		genaiSchema.Type = genai.TypeObject
	case "string":
		genaiSchema.Type = genai.TypeString
	case "number", "integer":
		genaiSchema.Type = genai.TypeNumber
	case "boolean":
		genaiSchema.Type = genai.TypeBoolean
	case "array":
		genaiSchema.Type = genai.TypeArray
	default:
		if schema.Type != "" {
			return nil, goerr.New("unsupported schema type", goerr.V("type", schema.Type))
		}
	}

	if schema.Description != "" {
		genaiSchema.Description = schema.Description
	}

	if len(schema.Enum) > 0 {
		genaiSchema.Enum = make([]string, len(schema.Enum))
		for i, v := range schema.Enum {
			if s, ok := v.(string); ok {
				genaiSchema.Enum[i] = s
			}
		}
	}

	if len(schema.Properties) > 0 {
		genaiSchema.Properties = make(map[string]*genai.Schema)
		for name, propSchema := range schema.Properties {
			converted, err := convertJSONSchemaToGenai(propSchema)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to convert property schema",
					goerr.V("property", name))
			}
			genaiSchema.Properties[name] = converted
		}
	}

	if len(schema.Required) > 0 {
		genaiSchema.Required = schema.Required
	}

	if schema.Items != nil {
		converted, err := convertJSONSchemaToGenai(schema.Items)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to convert items schema")
		}
		genaiSchema.Items = converted
	}

	return genaiSchema, nil
}
