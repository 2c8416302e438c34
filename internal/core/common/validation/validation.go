package validation

import (
	"fmt"
	"time"

	errors "github.com/frahmantamala/table-reservation/internal"
)

type ValidatorFunc func(interface{}) *errors.AppError

type FieldValidator struct {
	FieldName  string
	Value      interface{}
	Validators []ValidatorFunc
}

type ValidationBuilder struct {
	fields []*FieldValidator
}

func NewValidator() *ValidationBuilder {
	return &ValidationBuilder{fields: make([]*FieldValidator, 0)}
}

func (v *ValidationBuilder) Field(name string, value interface{}) *FieldValidator {
	fv := &FieldValidator{
		FieldName:  name,
		Value:      value,
		Validators: make([]ValidatorFunc, 0),
	}
	v.fields = append(v.fields, fv)
	return fv
}

func (fv *FieldValidator) fail(message string, code errors.ErrorCode) *errors.AppError {
	return errors.NewValidationFieldError(fv.FieldName, message, code)
}

func (fv *FieldValidator) Required() *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		missing := false
		switch v := value.(type) {
		case string:
			missing = v == ""
		case int:
			missing = v == 0
		case int64:
			missing = v == 0
		case *string:
			missing = v == nil || *v == ""
		case time.Time:
			missing = v.IsZero()
		case nil:
			missing = true
		}
		if missing {
			return fv.fail(fmt.Sprintf("%s is required", fv.FieldName), errors.ErrCodeValidationFailed)
		}
		return nil
	})
	return fv
}

func toInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case int32:
		return int64(v), true
	}
	return 0, false
}

func (fv *FieldValidator) MinInt(min int64, code errors.ErrorCode) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if v, ok := toInt64(value); ok && v < min {
			return fv.fail(fmt.Sprintf("%s must be at least %d", fv.FieldName, min), code)
		}
		return nil
	})
	return fv
}

func (fv *FieldValidator) MaxInt(max int64, code errors.ErrorCode) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if v, ok := toInt64(value); ok && v > max {
			return fv.fail(fmt.Sprintf("%s must not exceed %d", fv.FieldName, max), code)
		}
		return nil
	})
	return fv
}

func (fv *FieldValidator) MaxLength(max int) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if v, ok := value.(string); ok && len(v) > max {
			return fv.fail(fmt.Sprintf("%s must not exceed %d characters", fv.FieldName, max), errors.ErrCodeValidationFailed)
		}
		return nil
	})
	return fv
}

// NotBefore rejects a time earlier than floor.
func (fv *FieldValidator) NotBefore(floor time.Time, code errors.ErrorCode) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if v, ok := value.(time.Time); ok && v.Before(floor) {
			return fv.fail(fmt.Sprintf("%s cannot be in the past", fv.FieldName), code)
		}
		return nil
	})
	return fv
}

// After requires the value to be strictly later than other.
func (fv *FieldValidator) After(other time.Time, otherName string, code errors.ErrorCode) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if v, ok := value.(time.Time); ok && !v.After(other) {
			return fv.fail(fmt.Sprintf("%s must be after %s", fv.FieldName, otherName), code)
		}
		return nil
	})
	return fv
}

func (fv *FieldValidator) Custom(validator func(interface{}) *errors.AppError) *FieldValidator {
	fv.Validators = append(fv.Validators, validator)
	return fv
}

func (v *ValidationBuilder) Validate() *errors.AppError {
	var validationErrors []errors.ValidationError

	for _, field := range v.fields {
		for _, validator := range field.Validators {
			appErr := validator(field.Value)
			if appErr == nil {
				continue
			}
			if details, ok := appErr.Details.(errors.ValidationErrors); ok {
				validationErrors = append(validationErrors, details.Errors...)
				continue
			}
			validationErrors = append(validationErrors, errors.ValidationError{
				Field:   field.FieldName,
				Message: appErr.Message,
				Code:    string(appErr.Code),
			})
		}
	}

	if len(validationErrors) > 0 {
		return errors.NewValidationError("Validation failed", errors.ErrCodeValidationFailed).
			WithDetails(errors.ValidationErrors{Errors: validationErrors})
	}
	return nil
}

func ValidateGuestCount(guests, capacity int) *errors.AppError {
	if guests < 1 {
		return errors.ErrInvalidGuests
	}
	if capacity > 0 && guests > capacity {
		return errors.ErrCapacityExceeded.WithMessage(
			fmt.Sprintf("guest count %d exceeds table capacity %d", guests, capacity))
	}
	return nil
}

func ValidateWindow(start, end time.Time) *errors.AppError {
	if !end.After(start) {
		return errors.ErrInvalidWindow
	}
	return nil
}
