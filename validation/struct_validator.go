package validation

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/kbukum/mediascribe/errors"
)

// MaxSourceLength bounds a source reference.
const MaxSourceLength = 2048

var (
	validate *validator.Validate
	once     sync.Once
)

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return toSnakeCase(fld.Name)
			}
			return name
		})
		_ = validate.RegisterValidation("language", isLanguage)
		_ = validate.RegisterValidation("source", isSource)
	})
	return validate
}

// isLanguage accepts "auto" or a two or three letter lowercase ISO 639 code.
func isLanguage(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "auto" {
		return true
	}
	if len(s) < 2 || len(s) > 3 {
		return false
	}
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

func isSource(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return strings.TrimSpace(s) != "" && len(s) <= MaxSourceLength && !strings.ContainsAny(s, "\r\n")
}

// Validate validates a struct using its `validate` tags.
func Validate(s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.Validation("validation failed")
	}

	fes := make([]FieldError, 0, len(validationErrors))
	for _, e := range validationErrors {
		fes = append(fes, FieldError{Field: e.Field(), Message: formatValidationError(e)})
	}
	return fieldErrors(fes)
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "oneof":
		return "must be one of: " + e.Param()
	case "language":
		return "must be an ISO 639-1 language code or \"auto\""
	case "source":
		return "must be a single-line reference of at most 2048 characters"
	default:
		return "is invalid"
	}
}

func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
