package utils

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/Ramsey-B/thistle/pkg/apperrors"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the validate tags on value. The first failing field is reported
// by its JSON name.
func Validate[T any](value T) (T, error) {
	if err := validate.Struct(value); err != nil {
		return value, toValidationError(err)
	}
	return value, nil
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	fe := verrs[0]
	msg := fmt.Sprintf("failed rule %q", fe.Tag())
	if fe.Param() != "" {
		msg = fmt.Sprintf("failed rule %q (%s)", fe.Tag(), fe.Param())
	}
	return apperrors.Validation(fe.Field(), "%s", msg)
}
