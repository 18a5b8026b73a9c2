package dto

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

var (
	anonymousIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
	templateIDPattern  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)
)

func init() {
	validate = validator.New()
	validate.RegisterValidation("anonymous_id", validateAnonymousID)
	validate.RegisterValidation("template_id", validateTemplateID)
}

func GetValidator() *validator.Validate {
	return validate
}

// ValidAnonymousID reports whether s is an acceptable opaque identifier.
func ValidAnonymousID(s string) bool {
	return anonymousIDPattern.MatchString(s)
}

func validateAnonymousID(fl validator.FieldLevel) bool {
	return ValidAnonymousID(fl.Field().String())
}

// Template ids end up in file names, so only slugs are accepted.
func validateTemplateID(fl validator.FieldLevel) bool {
	return templateIDPattern.MatchString(fl.Field().String())
}

func FormatValidationErrors(err error) []ValidationError {
	var errors []ValidationError

	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, fieldError := range validationErrors {
			var message string

			switch fieldError.Tag() {
			case "required":
				message = fieldError.Field() + " is required"
			case "min":
				message = fieldError.Field() + " must be at least " + fieldError.Param() + " characters"
			case "max":
				message = fieldError.Field() + " must be at most " + fieldError.Param() + " characters"
			case "oneof":
				message = fieldError.Field() + " must be one of: " + fieldError.Param()
			case "anonymous_id":
				message = fieldError.Field() + " must be 1-128 characters of letters, digits, '.', '_', ':' or '-'"
			case "template_id":
				message = fieldError.Field() + " must be 1-64 letters, digits, '_' or '-'"
			default:
				message = fieldError.Field() + " is invalid"
			}

			errors = append(errors, ValidationError{
				Field:   fieldError.Field(),
				Message: message,
			})
		}
	}

	return errors
}

type Validator interface {
	Validate() error
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationErrorResponse struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors"`
}

func CreateValidationErrorResponse(err error) ValidationErrorResponse {
	return ValidationErrorResponse{
		Code:    400,
		Message: "Validation failed",
		Errors:  FormatValidationErrors(err),
	}
}
