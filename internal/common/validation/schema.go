package validation

import (
	"encoding/json"
	"fmt"
	"regexp"
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

// Validator checks documents against a compiled JSON schema (draft-07).
type Validator struct {
	schema *gojsonschema.Schema
}

// NewValidator compiles a schema given as a Go value (usually a map produced
// by schema.ToJSONSchema).
func NewValidator(schema map[string]interface{}) (*Validator, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile JSON schema: %w", err)
	}
	return &Validator{schema: compiled}, nil
}

// NewValidatorFromJSON compiles a schema from its JSON text.
func NewValidatorFromJSON(schemaJSON string) (*Validator, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to compile JSON schema: %w", err)
	}
	return &Validator{schema: compiled}, nil
}

// Validate reports every violation in document. A loader failure is returned
// as an error, not as a violation.
func (v *Validator) Validate(document interface{}) (*ValidationResult, error) {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(document))
	if err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, re := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   re.Field(),
			Message: re.Description(),
			Code:    strings.ToUpper(re.Type()),
		})
	}
	return out, nil
}

// ValidateAgainst is a one-shot helper for schemas that are not reused.
func ValidateAgainst(schema map[string]interface{}, document interface{}) (*ValidationResult, error) {
	v, err := NewValidator(schema)
	if err != nil {
		return nil, err
	}
	return v.Validate(document)
}

// CheckSchema reports whether schemaJSON is a well-formed JSON schema.
func CheckSchema(schemaJSON json.RawMessage) error {
	_, err := NewValidatorFromJSON(string(schemaJSON))
	return err
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}

// GetErrorsForField returns errors for a field and everything nested under it.
func (vr *ValidationResult) GetErrorsForField(field string) []ValidationError {
	var fieldErrors []ValidationError
	for _, err := range vr.Errors {
		if err.Field == field || strings.HasPrefix(err.Field, field+".") {
			fieldErrors = append(fieldErrors, err)
		}
	}
	return fieldErrors
}

var (
	phonePattern = regexp.MustCompile(`^\+?[\d\s\-\(\)]{10,}$`)
	urlPattern   = regexp.MustCompile(`^https?://[^\s/$.?#].[^\s]*$`)
)

// ValidatePhone validates basic phone number format
func ValidatePhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// ValidateURL accepts absolute http(s) URLs.
func ValidateURL(url string) bool {
	return urlPattern.MatchString(url)
}
