package transport

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/table-reservation/internal"
	"github.com/frahmantamala/table-reservation/internal/core/common/validation"
	"github.com/frahmantamala/table-reservation/internal/core/user"
	"github.com/frahmantamala/table-reservation/pkg/logger"
)

// BaseHandler provides common functionality for HTTP handlers
type BaseHandler struct {
	Logger *slog.Logger
}

// NewBaseHandler creates a base handler with logger
func NewBaseHandler(lg *slog.Logger) *BaseHandler {
	if lg == nil {
		lg = logger.LoggerWrapper()
		if lg == nil {
			lg = slog.Default()
		}
	}
	return &BaseHandler{Logger: lg}
}

// WriteJSON writes a JSON response
func (h *BaseHandler) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.Logger.Error("failed to encode JSON response", "error", err)
	}
}

// WriteError writes an error response without an AppError behind it.
func (h *BaseHandler) WriteError(w http.ResponseWriter, status int, message string) {
	h.Logger.Error("http error", "status", status, "message", message)
	h.WriteJSON(w, status, internal.Response{Error: &internal.AppError{
		Type:    internal.ErrorTypeInternal,
		Code:    internal.ErrorCode(strconv.Itoa(status)),
		Message: message,
	}})
}

// HandleError renders err as {"error": {...}}. Anything that is not an AppError
// is logged and reported as a 500 without leaking the cause.
func (h *BaseHandler) HandleError(w http.ResponseWriter, err error) {
	appErr, ok := internal.IsAppError(err)
	if !ok {
		h.Logger.Error("unhandled error", "error", err)
		appErr = internal.NewInternalError("internal server error", err)
	}
	if appErr.StatusCode >= http.StatusInternalServerError {
		h.Logger.Error("request failed", "code", appErr.Code, "error", appErr.Cause)
	}
	status, body := appErr.ToHTTPResponse()
	h.WriteJSON(w, status, body)
}

// HandleStateAsBadRequest is HandleError with state errors downgraded to 400.
func (h *BaseHandler) HandleStateAsBadRequest(w http.ResponseWriter, err error) {
	if appErr, ok := internal.IsAppError(err); ok && appErr.Type == internal.ErrorTypeState {
		err = appErr.WithStatus(http.StatusBadRequest)
	}
	h.HandleError(w, err)
}

// DecodeJSON reads a JSON body into dest and validates its struct tags.
// An empty body decodes as the zero value.
func (h *BaseHandler) DecodeJSON(r *http.Request, dest interface{}) error {
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(dest); err != nil && !errors.Is(err, io.EOF) {
			return internal.NewValidationError("invalid request body", internal.ErrCodeInvalidBody)
		}
	}
	if appErr := validation.Struct(dest); appErr != nil {
		return appErr
	}
	return nil
}

// Principal returns the authenticated caller or an unauthorized error.
func (h *BaseHandler) Principal(r *http.Request) (*user.Principal, error) {
	p, ok := internal.UserFromContext(r.Context())
	if !ok || p == nil {
		return nil, internal.NewUnauthorizedError("authentication required", internal.ErrCodeInvalidToken)
	}
	return p, nil
}

// PathID parses a positive integer URL parameter.
func (h *BaseHandler) PathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, internal.NewValidationFieldError(name, "invalid "+name, internal.ErrCodeValidationFailed)
	}
	return id, nil
}

// QueryInt parses an optional integer query parameter.
func (h *BaseHandler) QueryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, internal.NewValidationFieldError(name, name+" must be an integer", internal.ErrCodeValidationFailed)
	}
	return v, nil
}
