package binder

import (
	"github.com/autorenamer/autorenamer/pkg/template"
	"github.com/go-playground/validator/v10"
)

// templateValidator accepts rename templates whose braces are balanced. The
// empty string clears the template and is allowed.
func templateValidator(fl validator.FieldLevel) bool {
	return template.Validate(fl.Field().String()) == nil
}

// userIDValidator accepts positive chat platform user ids.
func userIDValidator(fl validator.FieldLevel) bool {
	return fl.Field().Int() > 0
}
