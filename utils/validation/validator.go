package validation

import (
	"fmt"
	"strings"

	"github.com/agentsphere/agentsphere-api/model"
	"github.com/go-playground/validator/v10"
)

// Validator wraps the go-playground validator
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new validator instance with the chat_type tag registered
func NewValidator() *Validator {
	v := validator.New()
	_ = v.RegisterValidation("chat_type", func(fl validator.FieldLevel) bool {
		switch model.ChatType(fl.Field().String()) {
		case model.ChatTypeSingle, model.ChatTypeGroup:
			return true
		}
		return false
	})
	return &Validator{validate: v}
}

// ValidateStruct validates a struct using struct tags
func (v *Validator) ValidateStruct(s interface{}) error {
	return v.validate.Struct(s)
}

// FormatValidationErrors converts validation errors to a user-friendly format
func FormatValidationErrors(err error) map[string]string {
	errors := make(map[string]string)

	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrs {
			field := strings.ToLower(e.Field())
			switch e.Tag() {
			case "required":
				errors[field] = fmt.Sprintf("%s is required", e.Field())
			case "min":
				errors[field] = fmt.Sprintf("%s must be at least %s", e.Field(), e.Param())
			case "max":
				errors[field] = fmt.Sprintf("%s must be at most %s", e.Field(), e.Param())
			case "chat_type":
				errors[field] = fmt.Sprintf("%s must be single or group", e.Field())
			default:
				errors[field] = fmt.Sprintf("%s is invalid", e.Field())
			}
		}
	}

	return errors
}
