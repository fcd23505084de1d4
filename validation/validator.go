package validation

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/kbukum/mediascribe/errors"
)

// FieldError names one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validator checks path and query parameters that have no struct to carry
// tags. Checks chain and every failure is kept:
//
//	err := validation.New().
//		RequiredUUID("id", c.Param("id")).
//		Range("limit", limit, 1, 500).
//		Validate()
type Validator struct {
	fields []FieldError
}

// New returns an empty Validator.
func New() *Validator { return &Validator{} }

// Check records message for field unless ok.
func (v *Validator) Check(ok bool, field, message string) *Validator {
	if !ok {
		v.fields = append(v.fields, FieldError{Field: field, Message: message})
	}
	return v
}

// Errors returns the failures so far.
func (v *Validator) Errors() []FieldError { return v.fields }

// Validate returns an INVALID_INPUT error listing every failure, or nil.
func (v *Validator) Validate() error {
	if len(v.fields) == 0 {
		return nil
	}
	return fieldErrors(v.fields)
}

func fieldErrors(fes []FieldError) *errors.AppError {
	parts := make([]string, len(fes))
	for i, fe := range fes {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return errors.Validation(strings.Join(parts, "; ")).WithDetail("fields", fes)
}

// RequiredUUID accepts a parseable, non-nil UUID. Job ids are UUIDs.
func (v *Validator) RequiredUUID(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		return v.Check(false, field, "is required")
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return v.Check(false, field, "must be a valid UUID")
	}
	return v.Check(id != uuid.Nil, field, "must not be empty")
}

// Range accepts minVal <= value <= maxVal.
func (v *Validator) Range(field string, value, minVal, maxVal int) *Validator {
	return v.Check(value >= minVal && value <= maxVal, field, fmt.Sprintf("must be between %d and %d", minVal, maxVal))
}

// Min accepts value >= minVal.
func (v *Validator) Min(field string, value, minVal int) *Validator {
	return v.Check(value >= minVal, field, fmt.Sprintf("must be at least %d", minVal))
}

// OneOf accepts an empty value or one listed in allowed.
func (v *Validator) OneOf(field, value string, allowed []string) *Validator {
	return v.Check(value == "" || slices.Contains(allowed, value), field, "must be one of: "+strings.Join(allowed, ", "))
}
