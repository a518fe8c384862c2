// Package schema validates canonical event content against the JSON Schema
// registered for the event's content type before transmission.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/vitalbridge/go-healthsync/core"
)

const numberSchema = `{"type": "number"}`

const dateSchema = `{"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"}`

const noteSchema = `{"type": "string", "minLength": 1}`

const boolSchema = `{"type": "boolean"}`

const bloodPressureSchema = `{
	"type": "object",
	"required": ["systolic", "diastolic"],
	"properties": {
		"systolic": {"type": "number", "minimum": 0},
		"diastolic": {"type": "number", "minimum": 0}
	}
}`

const workoutSchema = `{
	"type": "object",
	"minProperties": 1,
	"properties": {
		"activityType": {"type": "string", "minLength": 1},
		"duration": {"type": "number", "minimum": 0},
		"distance": {"type": "number", "minimum": 0},
		"energy": {"type": "number", "minimum": 0},
		"segments": {"type": "array"}
	}
}`

const audiogramSchema = `{
	"type": "object",
	"required": ["points"],
	"properties": {
		"points": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["ear", "frequency", "sensitivity"],
				"properties": {
					"ear": {"type": "string", "enum": ["left", "right"]},
					"frequency": {"type": "number", "exclusiveMinimum": 0},
					"sensitivity": {"type": "number"}
				}
			}
		}
	}
}`

const activitySummarySchema = `{
	"type": "object",
	"minProperties": 1,
	"properties": {
		"date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
		"activeEnergy": {"type": "number", "minimum": 0},
		"exerciseTime": {"type": "number", "minimum": 0},
		"standHours": {"type": "number", "minimum": 0}
	}
}`

const clinicalSchema = `{
	"type": "object",
	"properties": {
		"resourceType": {"type": "string", "minLength": 1},
		"displayName": {"type": "string"}
	}
}`

// contentSchemas maps each canonical content type to its schema document.
// Numeric content types share the number schema.
var contentSchemas = map[string]string{
	"mass/kg":                 numberSchema,
	"length/cm":               numberSchema,
	"count/generic":           numberSchema,
	"count/steps":             numberSchema,
	"frequency/bpm":           numberSchema,
	"pressure/mmhg":           numberSchema,
	"ratio/percent":           numberSchema,
	"energy/kcal":             numberSchema,
	"temperature/c":           numberSchema,
	"density/mmol-l":          numberSchema,
	"speed/ms":                numberSchema,
	"time/h":                  numberSchema,
	"date/iso8601":            dateSchema,
	"note/txt":                noteSchema,
	"boolean/bool":            boolSchema,
	"blood-pressure/mmhg-bpm": bloodPressureSchema,
	"activity/plain":          workoutSchema,
	"audiogram/data":          audiogramSchema,
	"activity-summary/data":   activitySummarySchema,
	"clinical/fhir":           clinicalSchema,
}

// Validator holds the compiled content schemas. Compile once, validate per
// event.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	compiled := make(map[string]*jsonschema.Schema, len(contentSchemas))
	for contentType, document := range contentSchemas {
		resource := "healthsync:///" + contentType
		if err := compiler.AddResource(resource, strings.NewReader(document)); err != nil {
			return nil, fmt.Errorf("schema: add %s: %w", contentType, err)
		}
		schema, err := compiler.Compile(resource)
		if err != nil {
			return nil, fmt.Errorf("schema: compile %s: %w", contentType, err)
		}
		compiled[contentType] = schema
	}
	return &Validator{schemas: compiled}, nil
}

// ValidateEvent checks the event content against the schema registered for
// its content type. Content types without a registered schema pass, and a
// null content always passes since a null-content event carries an
// attachment instead.
func (v *Validator) ValidateEvent(event core.CanonicalEvent) error {
	if v == nil {
		return nil
	}
	if event.Content.IsNull() {
		return nil
	}
	schema, ok := v.schemas[event.Type]
	if !ok {
		return nil
	}
	raw, err := json.Marshal(event.Content.JSON())
	if err != nil {
		return fmt.Errorf("schema: encode %s content: %w", event.Type, err)
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("schema: decode %s content: %w", event.Type, err)
	}
	if err := schema.Validate(value); err != nil {
		return fmt.Errorf("schema: %s content invalid: %w", event.Type, err)
	}
	return nil
}
