package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/frahmantamala/table-reservation/internal/core/datamodel/payment"
	"github.com/frahmantamala/table-reservation/internal/reservation"
)

type Payment = payment.Payment

const (
	StatusPending  = payment.StatusPending
	StatusVerified = payment.StatusVerified
	StatusFailed   = payment.StatusFailed
)

// Repository is the write side of the ledger. WithTx rebinds it to an open transaction.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id int64) (*Payment, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*Payment, error)
	GetByRefID(ctx context.Context, ref string) (*Payment, error)
	LatestForReservation(ctx context.Context, reservationID int64) (*Payment, error)
	ListPendingForReservation(ctx context.Context, reservationID int64) ([]*Payment, error)
	ReservationOwner(ctx context.Context, reservationID int64) (int64, error)
	TransitionStatus(ctx context.Context, id int64, from, to string, fields map[string]interface{}) (bool, error)
	SetRefID(ctx context.Context, id int64, ref string) error
}

// HistoryReader is the read model behind the history endpoints.
type HistoryReader interface {
	List(ctx context.Context, f HistoryFilter) ([]HistoryItem, int64, error)
	Get(ctx context.Context, id int64) (*HistoryItem, error)
}

// HistoryFilter narrows a history listing. A nil UserID lists every user.
type HistoryFilter struct {
	UserID      *int64
	Status      string
	MinAmount   *decimal.Decimal
	MaxAmount   *decimal.Decimal
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Ordering    string
	Limit       int
	Offset      int
}

// HistoryItem is one payment joined with the reservation it pays for.
type HistoryItem struct {
	ID                int64           `db:"id" json:"id"`
	ReservationID     int64           `db:"reservation_id" json:"reservation_id"`
	UserID            int64           `db:"user_id" json:"user_id"`
	Amount            decimal.Decimal `db:"amount" json:"amount"`
	RefID             *string         `db:"ref_id" json:"ref_id,omitempty"`
	Status            string          `db:"status" json:"status"`
	FailureReason     *string         `db:"failure_reason" json:"failure_reason,omitempty"`
	VerifiedAt        *time.Time      `db:"verified_at" json:"verified_at,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	TableID           int64           `db:"table_id" json:"table_id"`
	StartAt           time.Time       `db:"start_at" json:"start_at"`
	EndAt             time.Time       `db:"end_at" json:"end_at"`
	ReservationStatus string          `db:"reservation_status" json:"reservation_status"`
}

// Orderings maps the accepted ordering keys to columns. A leading '-' sorts descending.
var Orderings = map[string]string{
	"created_at":  "p.created_at",
	"verified_at": "p.verified_at",
	"amount":      "p.amount",
	"status":      "p.status",
}

const DefaultOrdering = "-created_at"

// VerifyResult is what a verification left behind, including the expired path.
type VerifyResult struct {
	Payment     *Payment                 `json:"payment"`
	Reservation *reservation.Reservation `json:"reservation"`
}

// Charge is what the ledger hands to the gateway on checkout.
type Charge struct {
	PaymentID int64
	RefID     string
	Amount    decimal.Decimal
}

// Gateway accepts charges asynchronously and reports back through the callback.
type Gateway interface {
	NewRef() string
	Submit(ctx context.Context, c Charge) error
}
