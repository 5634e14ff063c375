package job

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var jobIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

type validatorSvc struct {
	validate   *validator.Validate
	translator ut.Translator
}

var (
	vOnce sync.Once
	vSvc  *validatorSvc
)

// getValidator returns the shared validator, reporting field names by their
// JSON tag so errors match the wire contract.
func getValidator() *validatorSvc {
	vOnce.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ := uni.GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})

		_ = en_translations.RegisterDefaultTranslations(v, trans)

		_ = v.RegisterValidation("detector_function", func(fl validator.FieldLevel) bool {
			return Function(fl.Field().String()).IsKnown()
		})
		registerMessage(v, trans, "detector_function", "{0} is not a known detector function")

		_ = v.RegisterValidation("job_id", func(fl validator.FieldLevel) bool {
			return jobIDPattern.MatchString(fl.Field().String())
		})
		registerMessage(v, trans, "job_id", "{0} must be lowercase alphanumeric, '-' or '_'")

		vSvc = &validatorSvc{validate: v, translator: trans}
	})
	return vSvc
}

func registerMessage(v *validator.Validate, trans ut.Translator, tag, text string) {
	_ = v.RegisterTranslation(tag, trans,
		func(t ut.Translator) error { return t.Add(tag, text, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			msg, err := t.T(tag, fe.Field())
			if err != nil {
				return fe.Error()
			}
			return msg
		},
	)
}

// Validate checks c against the rules the service enforces on job creation.
// It returns the first violation as a *ConfigurationError.
func (c *JobConfiguration) Validate() error {
	if c == nil {
		return NewConfigurationError("", "configuration is nil")
	}

	svc := getValidator()
	if err := svc.validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &ConfigurationError{
				Field:   fieldPath(fe.Namespace()),
				Message: fe.Translate(svc.translator),
			}
		}
		return NewConfigurationError("", "%v", err)
	}

	for i, d := range c.AnalysisConfig.Detectors {
		if err := d.validate(fmt.Sprintf("analysisConfig.detectors[%d]", i)); err != nil {
			return err
		}
	}

	return c.DataDescription.validate("dataDescription")
}

// validate applies the rules linking a detector's function to its fields.
func (d Detector) validate(path string) error {
	switch {
	case d.Function.RequiresFieldName() && d.FieldName == "":
		return NewConfigurationError(path+".fieldName", "function %q requires a fieldName", d.Function)
	case !d.Function.RequiresFieldName() && d.FieldName != "":
		return NewConfigurationError(path+".fieldName", "function %q does not take a fieldName", d.Function)
	case d.Function.IsRare() && d.ByFieldName == "":
		return NewConfigurationError(path+".byFieldName", "function %q requires a byFieldName", d.Function)
	case d.Function == FunctionFreqRare && d.OverFieldName == "":
		return NewConfigurationError(path+".overFieldName", "function %q requires an overFieldName", d.Function)
	}
	return nil
}

func (d DataDescription) validate(path string) error {
	if !d.IsEpochTime() && !strings.ContainsRune(d.TimeFormat, 'y') {
		return NewConfigurationError(path+".timeFormat", "timeFormat %q is neither epoch nor a date pattern with a year", d.TimeFormat)
	}
	if d.Format == FormatDelimited {
		if d.FieldDelimiter == "" {
			return NewConfigurationError(path+".fieldDelimiter", "fieldDelimiter is required for %s data", FormatDelimited)
		}
		return nil
	}
	if d.FieldDelimiter != "" {
		return NewConfigurationError(path+".fieldDelimiter", "fieldDelimiter is only valid for %s data", FormatDelimited)
	}
	if d.QuoteCharacter != "" {
		return NewConfigurationError(path+".quoteCharacter", "quoteCharacter is only valid for %s data", FormatDelimited)
	}
	return nil
}

// fieldPath drops the root type name from a validator namespace:
// "JobConfiguration.analysisConfig.bucketSpan" -> "analysisConfig.bucketSpan".
func fieldPath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}
