package config

import (
	"reflect"

	sserr "github.com/StricklySoft/stricklysoft-oidc/pkg/errors"
)

// Validator is implemented by configuration structs needing checks beyond
// the required tag. Load calls Validate after required fields pass.
// Returned *sserr.Error values are passed through unchanged; other errors
// are wrapped with [sserr.CodeValidation].
type Validator interface {
	Validate() error
}

func validate(cfg any, rv reflect.Value) error {
	if err := validateRequired(rv, ""); err != nil {
		return err
	}
	v, ok := cfg.(Validator)
	if !ok {
		return nil
	}
	if err := v.Validate(); err != nil {
		if _, coded := sserr.AsError(err); coded {
			return err
		}
		return sserr.Wrap(err, sserr.CodeValidation, "config: custom validation failed")
	}
	return nil
}

// validateRequired reports the first zero-valued field tagged
// required:"true", naming it by its dotted path (e.g., "Claims.Names.Sub").
func validateRequired(rv reflect.Value, path string) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field, sf := rv.Field(i), rt.Field(i)
		if !field.CanSet() {
			continue
		}
		fieldPath := sf.Name
		if path != "" {
			fieldPath = path + "." + sf.Name
		}
		if field.Kind() == reflect.Struct && sf.Type != durationType {
			if err := validateRequired(field, fieldPath); err != nil {
				return err
			}
			continue
		}
		if sf.Tag.Get("required") == "true" && field.IsZero() {
			return sserr.Newf(sserr.CodeValidationRequired, "config: required field %q is empty", fieldPath)
		}
	}
	return nil
}
