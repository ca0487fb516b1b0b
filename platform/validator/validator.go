// Package validator configures go-playground/validator for request DTOs.
package validator

import (
	"itou_backend/platform/phone"

	"github.com/go-playground/validator/v10"
)

type Validator struct {
	v *validator.Validate
}

// New registers the custom tags used by DTOs:
//
//	frphone  dialable number, French plan assumed without a country code
func New() *Validator {
	v := validator.New()
	_ = v.RegisterValidation("frphone", func(fl validator.FieldLevel) bool {
		return phone.IsValid(fl.Field().String())
	})
	return &Validator{v: v}
}

func (val *Validator) Struct(s any) error {
	return val.v.Struct(s)
}
