package strategy

import (
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// paramsSchema validates window parameters. Integers may arrive as strings
// because the values are often templated in by provisioning tooling; the
// window package coerces them after validation. Unknown keys are allowed so
// strategies can carry operator annotations.
const paramsSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"window_size": {
			"type": ["integer", "string"],
			"minimum": 1,
			"pattern": "^[0-9]+$"
		},
		"time_out": {
			"type": ["boolean", "string"]
		},
		"time_minutes": {
			"type": ["integer", "string"],
			"minimum": 1,
			"pattern": "^[0-9]+$"
		}
	},
	"additionalProperties": true
}`

var paramsSchemaLoader = gojsonschema.NewStringLoader(paramsSchema)

// ValidateParams checks a raw strategy parameter map against the params
// schema. A nil or empty map is valid; every parameter has a default.
func ValidateParams(params map[string]any) error {
	if len(params) == 0 {
		return nil
	}

	result, err := gojsonschema.Validate(paramsSchemaLoader, gojsonschema.NewGoLoader(params))
	if err != nil {
		return &ValidationError{Field: "params", Message: err.Error()}
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return &ValidationError{Field: "params", Message: strings.Join(details, "; ")}
	}
	return nil
}
