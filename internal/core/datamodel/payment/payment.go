package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusPending  = "pending"
	StatusVerified = "verified"
	StatusFailed   = "failed"
)

type Payment struct {
	ID            int64           `gorm:"primaryKey" json:"id"`
	ReservationID int64           `gorm:"column:reservation_id;not null;index" json:"reservation_id"`
	Amount        decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	RefID         *string         `gorm:"column:ref_id" json:"ref_id,omitempty"`
	Status        string          `gorm:"column:status;not null;default:pending;index" json:"status"`
	FailureReason *string         `gorm:"column:failure_reason" json:"failure_reason,omitempty"`
	VerifiedAt    *time.Time      `gorm:"column:verified_at" json:"verified_at,omitempty"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (p *Payment) IsPending() bool {
	return p.Status == StatusPending
}
