// Package validation checks API input and returns errors.AppError values
// with per-field details.
//
// Struct tags use go-playground/validator with two extra tags, "language"
// (ISO 639-1 code or "auto") and "source" (a non-blank reference of sane
// length):
//
//	type SubmitRequest struct {
//	    Source   string `json:"source" validate:"required,source"`
//	    Language string `json:"language" validate:"omitempty,language"`
//	}
//	err := validation.Validate(req)
//
// Query and path parameters use the chained Validator:
//
//	v := validation.New()
//	v.RequiredUUID("id", id).OneOf("format", format, formats)
//	err := v.Validate()
package validation
