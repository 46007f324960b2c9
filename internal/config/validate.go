package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
)

// ValidationError maps a configuration key, such as "mail.from", to the
// reason its value was rejected.
type ValidationError map[string]string

// Error implements the error interface.
func (ve ValidationError) Error() string {
	if len(ve) == 0 {
		return "invalid configuration"
	}

	b, err := json.Marshal(map[string]string(ve))
	if err != nil {
		return fmt.Sprintf("invalid configuration (failed to marshal: %v)", err)
	}
	return "invalid configuration: " + string(b)
}

// Validate checks the common settings and the section of the selected
// provider. Sections of unselected providers are ignored.
func (c *Config) Validate() error {
	v, trans, err := newValidator()
	if err != nil {
		return err
	}

	errs := make(ValidationError)
	if err := collect(errs, v, trans, "", c); err != nil {
		return err
	}

	var section any
	switch c.Provider {
	case ProviderSMTP:
		section = &c.SMTP
	case ProviderSES:
		section = &c.SES
	case ProviderGraph:
		section = &c.Graph
	}
	if section != nil {
		if err := collect(errs, v, trans, c.Provider, section); err != nil {
			return err
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// newValidator builds a validator that names fields by their YAML keys and
// renders English messages.
func newValidator() (*validator.Validate, ut.Translator, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	enLang := en.New()
	uni := ut.New(enLang, enLang)
	trans, _ := uni.GetTranslator("en")
	if err := enTranslations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, nil, fmt.Errorf("failed to register translations: %w", err)
	}
	return validate, trans, nil
}

// collect validates s and records each field error under its dotted key.
func collect(errs ValidationError, v *validator.Validate, trans ut.Translator, prefix string, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	for _, fe := range fieldErrs {
		// Namespace starts with the Go type name, e.g. "Config.mail.from".
		_, key, _ := strings.Cut(fe.Namespace(), ".")
		if prefix != "" {
			key = prefix + "." + key
		}
		errs[key] = fe.Translate(trans)
	}
	return nil
}
