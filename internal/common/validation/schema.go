package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Error joins the individual messages so a result can be carried as details.
func (r *ValidationResult) Error() string {
	parts := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		parts[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return strings.Join(parts, "; ")
}

// ApplicationSchema describes the body of a decision request. Income and
// family size carry no bounds: out-of-range values are logged and scored.
var ApplicationSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"applicant_id", "income", "family_size"},
	"properties": map[string]interface{}{
		"applicant_id": map[string]interface{}{"type": "string", "minLength": 1},
		"income":       map[string]interface{}{"type": "number"},
		"family_size":  map[string]interface{}{"type": "integer"},
		"documents": map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "string"},
		},
	},
}

// ChatSchema describes the body of a chatbot request. session_id is optional;
// when present the conversation continues that session.
var ChatSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"user_id", "messages"},
	"properties": map[string]interface{}{
		"user_id":    map[string]interface{}{"type": "string", "minLength": 1},
		"session_id": map[string]interface{}{"type": "string"},
		"messages": map[string]interface{}{
			"type":     "array",
			"minItems": 1,
			"items":    map[string]interface{}{"type": "string"},
		},
		"context": map[string]interface{}{"type": "object"},
	},
}

// Validate checks a decoded JSON document against schema. An error is
// returned only when the schema itself cannot be compiled.
func Validate(schema map[string]interface{}, document interface{}) (*ValidationResult, error) {
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(document))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "(root)" {
			if p, ok := desc.Details()["property"].(string); ok {
				field = p
			}
		}
		out.Errors = append(out.Errors, ValidationError{
			Field:   field,
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return out, nil
}
