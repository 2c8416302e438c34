package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frahmantamala/table-reservation/internal"
	"github.com/frahmantamala/table-reservation/internal/core/datamodel/payment"
	"github.com/frahmantamala/table-reservation/internal/core/datamodel/reservation"
	paymentpkg "github.com/frahmantamala/table-reservation/internal/payment"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) paymentpkg.Repository {
	return &PaymentRepository{
		db: db,
	}
}

func (r *PaymentRepository) WithTx(tx *gorm.DB) paymentpkg.Repository {
	return &PaymentRepository{db: tx}
}

func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*payment.Payment, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *PaymentRepository) GetByIDForUpdate(ctx context.Context, id int64) (*payment.Payment, error) {
	return r.first(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id))
}

func (r *PaymentRepository) GetByRefID(ctx context.Context, ref string) (*payment.Payment, error) {
	return r.first(r.db.WithContext(ctx).Where("ref_id = ?", ref))
}

func (r *PaymentRepository) LatestForReservation(ctx context.Context, reservationID int64) (*payment.Payment, error) {
	return r.first(r.db.WithContext(ctx).
		Where("reservation_id = ?", reservationID).
		Order("created_at DESC, id DESC"))
}

func (r *PaymentRepository) ListPendingForReservation(ctx context.Context, reservationID int64) ([]*payment.Payment, error) {
	var payments []*payment.Payment
	err := r.db.WithContext(ctx).
		Where("reservation_id = ? AND status = ?", reservationID, payment.StatusPending).
		Order("id ASC").
		Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) ReservationOwner(ctx context.Context, reservationID int64) (int64, error) {
	var res reservation.Reservation
	err := r.db.WithContext(ctx).Select("id", "user_id").Where("id = ?", reservationID).First(&res).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, internal.ErrReservationNotFound
		}
		return 0, err
	}
	return res.UserID, nil
}

// TransitionStatus updates the row only while it is still in from.
func (r *PaymentRepository) TransitionStatus(ctx context.Context, id int64, from, to string, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&payment.Payment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *PaymentRepository) SetRefID(ctx context.Context, id int64, ref string) error {
	return r.db.WithContext(ctx).
		Model(&payment.Payment{}).
		Where("id = ? AND ref_id IS NULL", id).
		Updates(map[string]interface{}{"ref_id": ref, "updated_at": time.Now().UTC()}).Error
}

func (r *PaymentRepository) first(q *gorm.DB) (*payment.Payment, error) {
	var p payment.Payment
	if err := q.First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}
