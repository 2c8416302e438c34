package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation      ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound        ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized    ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden       ErrorType = "FORBIDDEN"
	ErrorTypeConflict        ErrorType = "CONFLICT"
	ErrorTypeState           ErrorType = "STATE_ERROR"
	ErrorTypeDeadlineExpired ErrorType = "DEADLINE_EXPIRED"
	ErrorTypeRateLimited     ErrorType = "RATE_LIMITED"
	ErrorTypeInternal        ErrorType = "INTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidWindow    ErrorCode = "INVALID_TIME_WINDOW"
	ErrCodeInvalidDate      ErrorCode = "INVALID_DATE"
	ErrCodeInvalidGuests    ErrorCode = "INVALID_GUEST_COUNT"
	ErrCodeCapacityExceeded ErrorCode = "CAPACITY_EXCEEDED"
	ErrCodeOutsideHours     ErrorCode = "OUTSIDE_OPENING_HOURS"
	ErrCodeInvalidBody      ErrorCode = "INVALID_REQUEST_BODY"

	ErrCodeSlotTaken       ErrorCode = "SLOT_ALREADY_RESERVED"
	ErrCodeVIPTaken        ErrorCode = "VIP_TABLE_ALREADY_RESERVED"
	ErrCodeDuplicateWaiter ErrorCode = "DUPLICATE_WAITLIST_ENTRY"
	ErrCodeEmailTaken      ErrorCode = "EMAIL_ALREADY_REGISTERED"

	ErrCodeInvalidReservationState ErrorCode = "INVALID_RESERVATION_STATUS"
	ErrCodeInvalidPaymentState     ErrorCode = "INVALID_PAYMENT_STATUS"
	ErrCodeInvalidWaitlistState    ErrorCode = "INVALID_WAITLIST_STATUS"

	ErrCodePaymentDeadline ErrorCode = "PAYMENT_DEADLINE_EXPIRED"
	ErrCodeClaimDeadline   ErrorCode = "CLAIM_DEADLINE_EXPIRED"

	ErrCodeRestaurantNotFound  ErrorCode = "RESTAURANT_NOT_FOUND"
	ErrCodeTableNotFound       ErrorCode = "TABLE_NOT_FOUND"
	ErrCodeReservationNotFound ErrorCode = "RESERVATION_NOT_FOUND"
	ErrCodePaymentNotFound     ErrorCode = "PAYMENT_NOT_FOUND"
	ErrCodeWaitlistNotFound    ErrorCode = "WAITLIST_ENTRY_NOT_FOUND"
	ErrCodeUserNotFound        ErrorCode = "USER_NOT_FOUND"

	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeUserInactive       ErrorCode = "USER_INACTIVE"
	ErrCodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired       ErrorCode = "TOKEN_EXPIRED"
	ErrCodeMissingCapability  ErrorCode = "MISSING_CAPABILITY"

	ErrCodeGatewayBusy ErrorCode = "PAYMENT_GATEWAY_BUSY"
	ErrCodeRateLimited ErrorCode = "TOO_MANY_REQUESTS"
	ErrCodeInternal    ErrorCode = "INTERNAL_ERROR"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			messages := make([]string, len(validationErrors.Errors))
			for i, err := range validationErrors.Errors {
				messages[i] = err.Message
			}
			return strings.Join(messages, "; ")
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on Type and Code so sentinels survive WithCause/WithDetails copies.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithCause returns a copy; the package-level sentinels are never mutated.
func (e *AppError) WithCause(cause error) *AppError {
	cp := *e
	cp.Cause = cause
	return &cp
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// WithMessage keeps the type and code but replaces the human-readable text.
func (e *AppError) WithMessage(message string) *AppError {
	cp := *e
	cp.Message = message
	return &cp
}

// WithStatus overrides the HTTP status for call sites that keep a legacy code.
func (e *AppError) WithStatus(status int) *AppError {
	cp := *e
	cp.StatusCode = status
	return &cp
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewStateError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeState,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewDeadlineExpiredError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeDeadlineExpired,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusGone,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       ErrCodeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

var (
	ErrInvalidWindow    = NewValidationError("end time must be after start time", ErrCodeInvalidWindow)
	ErrInvalidGuests    = NewValidationError("guest count must be at least 1", ErrCodeInvalidGuests)
	ErrCapacityExceeded = NewValidationError("guest count exceeds table capacity", ErrCodeCapacityExceeded)

	ErrSlotTaken       = NewConflictError("table is already reserved for this time window", ErrCodeSlotTaken)
	ErrVIPTaken        = NewConflictError("VIP table is already reserved for this date", ErrCodeVIPTaken)
	ErrDuplicateWaiter = NewConflictError("an active waitlist entry already exists for this slot", ErrCodeDuplicateWaiter)

	ErrInvalidReservationState = NewStateError("operation not allowed for the reservation's current status", ErrCodeInvalidReservationState)
	ErrInvalidPaymentState     = NewStateError("payment is not pending", ErrCodeInvalidPaymentState)
	ErrInvalidWaitlistState    = NewStateError("operation not allowed for the waitlist entry's current status", ErrCodeInvalidWaitlistState)

	ErrPaymentDeadlineExpired = NewDeadlineExpiredError("payment deadline has passed", ErrCodePaymentDeadline)
	ErrClaimDeadlineExpired   = NewDeadlineExpiredError("waitlist claim window has passed", ErrCodeClaimDeadline)

	ErrRestaurantNotFound  = NewNotFoundError("Restaurant not found", ErrCodeRestaurantNotFound)
	ErrTableNotFound       = NewNotFoundError("Table not found", ErrCodeTableNotFound)
	ErrReservationNotFound = NewNotFoundError("Reservation not found", ErrCodeReservationNotFound)
	ErrPaymentNotFound     = NewNotFoundError("Payment not found", ErrCodePaymentNotFound)
	ErrWaitlistNotFound    = NewNotFoundError("Waitlist entry not found", ErrCodeWaitlistNotFound)
	ErrUserNotFound        = NewNotFoundError("User not found", ErrCodeUserNotFound)

	ErrInvalidCredentials = NewUnauthorizedError("Invalid email or password", ErrCodeInvalidCredentials)
	ErrUserInactive       = NewForbiddenError("User account is inactive", ErrCodeUserInactive)
	ErrInvalidToken       = NewUnauthorizedError("Invalid token", ErrCodeInvalidToken)
	ErrTokenExpired       = NewUnauthorizedError("Token has expired", ErrCodeTokenExpired)
	ErrMissingCapability  = NewForbiddenError("insufficient permissions", ErrCodeMissingCapability)

	ErrGatewayBusy = &AppError{
		Type:       ErrorTypeInternal,
		Code:       ErrCodeGatewayBusy,
		Message:    "payment gateway queue is full, try again later",
		StatusCode: http.StatusServiceUnavailable,
	}
	ErrRateLimited = &AppError{
		Type:       ErrorTypeRateLimited,
		Code:       ErrCodeRateLimited,
		Message:    "rate limit exceeded",
		StatusCode: http.StatusTooManyRequests,
	}
)

// IsAppError unwraps err looking for an *AppError.
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType reports whether err carries an AppError of the given type.
func IsType(err error, t ErrorType) bool {
	appErr, ok := IsAppError(err)
	return ok && appErr.Type == t
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
