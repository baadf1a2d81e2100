package query

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/noctua/pkg/model"
	"google.golang.org/genai"
)

func classificationSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"topic":      {Type: "string"},
			"confidence": {Type: "number", Default: json.RawMessage(`0.5`)},
		},
		Required: []string{"topic", "confidence"},
	}
}

func TestValidateStructuredFillsDefaults(t *testing.T) {
	obj, err := validateStructured(`{"topic": "raft"}`, &model.ResultSchema{
		Schema: classificationSchema(),
	})
	gt.NoError(t, err)

	m := obj.(map[string]any)
	gt.Equal(t, m["topic"], "raft")
	gt.Equal(t, m["confidence"], 0.5)
}

func TestValidateStructuredFillsOptionalDefaults(t *testing.T) {
	schema := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"topic":      {Type: "string"},
			"confidence": {Type: "number", Default: json.RawMessage(`0.5`)},
		},
		Required: []string{"topic"},
	}

	obj, err := validateStructured(`{"topic": "raft"}`, &model.ResultSchema{Schema: schema})
	gt.NoError(t, err)

	m := obj.(map[string]any)
	gt.Equal(t, m["topic"], "raft")
	gt.Equal(t, m["confidence"], 0.5)
}

func TestValidateStructuredValidWithoutRepair(t *testing.T) {
	obj, err := validateStructured(`{"topic": "raft", "confidence": 0.9}`, &model.ResultSchema{
		Schema: classificationSchema(),
	})
	gt.NoError(t, err)
	gt.Equal(t, obj.(map[string]any)["confidence"], 0.9)
}

func TestValidateStructuredRejectDefaults(t *testing.T) {
	_, err := validateStructured(`{"topic": "raft"}`, &model.ResultSchema{
		Schema:     classificationSchema(),
		FillPolicy: model.RejectDefaults,
	})
	gt.True(t, errors.Is(err, model.ErrValidation))
}

func TestValidateStructuredNotJSON(t *testing.T) {
	_, err := validateStructured(`the model ignored the schema`, &model.ResultSchema{
		Schema: classificationSchema(),
	})
	gt.True(t, errors.Is(err, model.ErrValidation))
}

func TestValidateStructuredIrreparableFailure(t *testing.T) {
	_, err := validateStructured(`{"confidence": "very high"}`, &model.ResultSchema{
		Schema: classificationSchema(),
	})
	gt.True(t, errors.Is(err, model.ErrValidation))
}

func TestConvertJSONSchemaToGenai(t *testing.T) {
	schema := &jsonschema.Schema{
		Type:        "object",
		Description: "a classification",
		Properties: map[string]*jsonschema.Schema{
			"topic": {Type: "string", Enum: []any{"raft", "paxos"}},
			"tags":  {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
		},
		Required: []string{"topic"},
	}

	converted, err := convertJSONSchemaToGenai(schema)
	gt.NoError(t, err)
	gt.Equal(t, converted.Type, genai.TypeObject)
	gt.Equal(t, converted.Description, "a classification")
	gt.Equal(t, converted.Properties["topic"].Enum, []string{"raft", "paxos"})
	gt.Equal(t, converted.Properties["tags"].Items.Type, genai.TypeString)
	gt.Equal(t, converted.Required, []string{"topic"})
}

func TestConvertJSONSchemaToGenaiUnsupportedType(t *testing.T) {
	_, err := convertJSONSchemaToGenai(&jsonschema.Schema{Type: "null"})
	gt.Error(t, err)
}
