package config

import (
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"
)

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("cronspec", validateCron)
	_ = v.RegisterValidation("langtag", validateLanguageTag)
	return v
}

// validateCron accepts standard five-field cron expressions and descriptors.
func validateCron(fl validator.FieldLevel) bool {
	_, err := cron.ParseStandard(fl.Field().String())
	return err == nil
}

func validateLanguageTag(fl validator.FieldLevel) bool {
	_, err := language.Parse(fl.Field().String())
	return err == nil
}
