// Package validation runs struct-tag validation and turns failures into
// field-level apperr errors.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ayush/endpix/internal/apperr"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Messages maps a JSON field name to the message reported when that field
// fails any of its rules.
type Messages map[string]string

// Struct validates v. Failures come back as a KindValidation error with one
// FieldError per failing field, in declaration order.
func Struct(v any, messages Messages) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Wrap(apperr.KindInternal, "validation failed", err)
	}

	fields := make([]apperr.FieldError, 0, len(verrs))
	seen := make(map[string]bool, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		if seen[name] {
			continue
		}
		seen[name] = true
		msg, ok := messages[name]
		if !ok {
			msg = fmt.Sprintf("%s is invalid", name)
		}
		fields = append(fields, apperr.FieldError{Field: name, Message: msg})
	}
	return apperr.Validation(fields...)
}
