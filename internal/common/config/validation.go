package config

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/flow-db/flowload/internal/common/flowerrors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their configuration key rather than the Go field name.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// Validate checks the validate tags of config. Each failing field is returned as an
// *flowerrors.ErrInvalidArgument, combined in a *multierror.Error.
func Validate(config interface{}) error {
	err := validate.Struct(config)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return errors.WithStack(err)
	}
	var result *multierror.Error
	for _, fieldErr := range validationErrors {
		result = multierror.Append(result, &flowerrors.ErrInvalidArgument{
			Name:    stripPrefix(fieldErr.Namespace()),
			Value:   fieldErr.Value(),
			Message: describe(fieldErr),
		})
	}
	return result.ErrorOrNil()
}

func describe(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "is required but was not found"
	case "min", "gte":
		return "must be at least " + err.Param()
	case "max", "lte":
		return "must be at most " + err.Param()
	case "oneof":
		return "must be one of " + err.Param()
	case "url":
		return "must be an absolute url"
	default:
		return "fails " + err.Tag()
	}
}

func stripPrefix(s string) string {
	if idx := strings.Index(s, "."); idx != -1 {
		return s[idx+1:]
	}
	return s
}
