package payment

import (
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/table-reservation/internal"
)

// VerifyRequest represents the request payload for POST /payment/verify
type VerifyRequest struct {
	PaymentID int64  `json:"payment_id" validate:"required,gt=0"`
	RefID     string `json:"ref_id" validate:"omitempty,max=128"`
}

type FailRequest struct {
	Reason string `json:"reason" validate:"max=255"`
}

// RetryRequest represents retry request
type RetryRequest struct {
	ReservationID int64 `json:"reservation_id" validate:"required,gt=0"`
}

// CallbackRequest is the gateway's report for one charge.
type CallbackRequest struct {
	RefID         string `json:"ref_id" validate:"required"`
	PaymentID     int64  `json:"payment_id"`
	Status        string `json:"status" validate:"required,oneof=success failed"`
	FailureReason string `json:"failure_reason,omitempty"`
}

const (
	CallbackStatusSuccess = "success"
	CallbackStatusFailed  = "failed"
)

type CallbackResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type VerifyResponse struct {
	Detail string `json:"detail"`
	*VerifyResult
}

type HistoryResponse struct {
	Count   int64         `json:"count"`
	Results []HistoryItem `json:"results"`
}

// ParseHistoryFilter reads the history query string. Dates accept RFC 3339 or
// YYYY-MM-DD; a bare created_to date covers that whole day.
func ParseHistoryFilter(r *http.Request) (HistoryFilter, error) {
	q := r.URL.Query()
	f := HistoryFilter{
		Status:   q.Get("status"),
		Ordering: q.Get("ordering"),
	}

	var err error
	if f.MinAmount, err = parseAmount(q.Get("min_amount"), "min_amount"); err != nil {
		return f, err
	}
	if f.MaxAmount, err = parseAmount(q.Get("max_amount"), "max_amount"); err != nil {
		return f, err
	}
	if f.CreatedFrom, err = parseInstant(q.Get("created_from"), "created_from", false); err != nil {
		return f, err
	}
	if f.CreatedTo, err = parseInstant(q.Get("created_to"), "created_to", true); err != nil {
		return f, err
	}
	if f.Limit, err = parseInt(q.Get("limit"), "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = parseInt(q.Get("offset"), "offset"); err != nil {
		return f, err
	}
	return f, nil
}

func parseAmount(raw, field string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, internal.NewValidationFieldError(field, field+" must be a number", internal.ErrCodeValidationFailed)
	}
	return &d, nil
}

func parseInstant(raw, field string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, internal.NewValidationFieldError(field, field+" must be a date or RFC 3339 timestamp", internal.ErrCodeInvalidDate)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func parseInt(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, internal.NewValidationFieldError(field, field+" must be an integer", internal.ErrCodeValidationFailed)
	}
	return v, nil
}
