package validation

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	errors "github.com/frahmantamala/table-reservation/internal"
)

var validate = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	return v
}

// Struct runs `validate` tags on a request DTO and reports field errors by json name.
func Struct(dest any) *errors.AppError {
	err := validate.Struct(dest)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return errors.NewValidationError(err.Error(), errors.ErrCodeValidationFailed)
	}

	out := make([]errors.ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, errors.ValidationError{
			Field:   fe.Field(),
			Message: fmt.Sprintf("%s %s", fe.Field(), message(fe)),
			Code:    strings.ToUpper(fe.Tag()),
		})
	}
	return errors.NewValidationError("Validation failed", errors.ErrCodeValidationFailed).
		WithDetails(errors.ValidationErrors{Errors: out})
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "email":
		return "must be a valid email"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "datetime":
		return fmt.Sprintf("must match the format %s", fe.Param())
	}
	return "is invalid"
}
