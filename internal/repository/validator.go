package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/me/wftemplates/pkg/model"
)

// ErrValidation is matched by errors from a Validator.
var ErrValidation = errors.New("schema validation failed")

// ValidationError lists why a template schema was rejected.
type ValidationError struct {
	Identifier string
	Details    []model.FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Details))
	for i, d := range e.Details {
		msgs[i] = d.String()
	}
	prefix := "schema validation failed"
	if e.Identifier != "" {
		prefix = "template " + e.Identifier + ": " + prefix
	}
	if len(msgs) == 0 {
		return prefix
	}
	return prefix + ": " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Validator checks a resolved template schema.
type Validator interface {
	Validate(doc any) error
}

// SchemaValidator validates documents against one JSON-Schema definition.
type SchemaValidator struct {
	schema *gojsonschema.Schema
}

// NewSchemaValidator compiles definition, a decoded JSON-Schema document.
func NewSchemaValidator(definition any) (*SchemaValidator, error) {
	if _, ok := definition.(map[string]any); !ok {
		return nil, fmt.Errorf("schema definition must be a mapping, got %T", definition)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(definition))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &SchemaValidator{schema: schema}, nil
}

// Validate returns nil or a *ValidationError. The document is only
// checked: schema "default" values are not filled in.
func (v *SchemaValidator) Validate(doc any) error {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return &ValidationError{Details: []model.FieldError{{Message: err.Error()}}}
	}
	if result.Valid() {
		return nil
	}
	details := make([]model.FieldError, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		details = append(details, model.FieldError{
			Field:   re.Field(),
			Message: re.Description(),
		})
	}
	return &ValidationError{Details: details}
}
