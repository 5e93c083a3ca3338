/**
 * @description
 * Package validation turns untyped request bodies into validated domain inputs.
 * Invalid input is an ordinary outcome: every parse function returns either a
 * typed record or an Errors value listing field-level violations.
 *
 * @dependencies
 * - github.com/go-playground/validator/v10: struct-tag constraint checks.
 * - github.com/shopspring/decimal: amount coercion and rounding.
 */
package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/transfa/finance-service/internal/domain"
)

// FieldError is a single violation attached to a payload field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors is the list of violations for one payload.
type Errors []FieldError

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Has reports whether any violation is attached to field.
func (e Errors) Has(field string) bool {
	for _, fe := range e {
		if fe.Field == field {
			return true
		}
	}
	return false
}

func (e *Errors) add(field, message string) {
	*e = append(*e, FieldError{Field: field, Message: message})
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// required only checks that a pointer is set; notblank rejects "" after trimming.
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	_ = v.RegisterValidation("transaction_type", func(fl validator.FieldLevel) bool {
		return domain.TransactionType(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("transaction_category", func(fl validator.FieldLevel) bool {
		return domain.Category(fl.Field().String()).Valid()
	})
	return v
}

// messages maps "field.tag" to the text reported for that violation.
type messages map[string]string

func (m messages) lookup(fe validator.FieldError) string {
	if msg, ok := m[fe.Field()+"."+fe.Tag()]; ok {
		return msg
	}
	if msg, ok := m[fe.Field()+".*"]; ok {
		return msg
	}
	switch fe.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "uuid":
		return fmt.Sprintf("%s must be a valid UUID", fe.Field())
	}
	return fmt.Sprintf("%s failed the %s check", fe.Field(), fe.Tag())
}

// check runs the struct-tag validator and appends translated violations to errs.
// Fields that already carry a decoding error are skipped.
func check(payload interface{}, msgs messages, errs *Errors) {
	err := validate.Struct(payload)
	if err == nil {
		return
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		errs.add("body", err.Error())
		return
	}
	for _, fe := range fieldErrs {
		if errs.Has(fe.Field()) {
			continue
		}
		errs.add(fe.Field(), msgs.lookup(fe))
	}
}

// decodeObject splits a JSON object into its raw members.
func decodeObject(body []byte) (map[string]json.RawMessage, Errors) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, Errors{{Field: "body", Message: "Request body is required"}}
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil || raw == nil {
		return nil, Errors{{Field: "body", Message: "Request body must be a JSON object"}}
	}
	return raw, nil
}

// present reports whether field exists and is not JSON null.
func present(raw map[string]json.RawMessage, field string) bool {
	value, ok := raw[field]
	return ok && !bytes.Equal(bytes.TrimSpace(value), []byte("null"))
}

// stringField decodes an optional string member, trimming surrounding whitespace.
// It returns nil when the member is absent or null.
func stringField(raw map[string]json.RawMessage, field string, errs *Errors) *string {
	if !present(raw, field) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw[field], &s); err != nil {
		errs.add(field, fmt.Sprintf("%s must be a string", field))
		return nil
	}
	s = strings.TrimSpace(s)
	return &s
}
