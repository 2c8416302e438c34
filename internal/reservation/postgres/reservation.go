package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frahmantamala/table-reservation/internal"
	"github.com/frahmantamala/table-reservation/internal/core/datamodel/payment"
	reservationDatamodel "github.com/frahmantamala/table-reservation/internal/core/datamodel/reservation"
	"github.com/frahmantamala/table-reservation/internal/reservation"
)

// ReservationRepository implements reservation.Repository using GORM.
type ReservationRepository struct {
	db *gorm.DB
}

func NewReservationRepository(db *gorm.DB) reservation.Repository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) WithTx(tx *gorm.DB) reservation.Repository {
	return &ReservationRepository{db: tx}
}

func (r *ReservationRepository) GetRestaurant(ctx context.Context, id int64) (*reservation.Restaurant, error) {
	var rest reservation.Restaurant
	if err := r.db.WithContext(ctx).First(&rest, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrRestaurantNotFound
		}
		return nil, err
	}
	return &rest, nil
}

func (r *ReservationRepository) GetTable(ctx context.Context, id int64) (*reservation.Table, error) {
	var t reservation.Table
	if err := r.db.WithContext(ctx).First(&t, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrTableNotFound
		}
		return nil, err
	}
	return &t, nil
}

// LockTable takes a row lock on the table for the rest of the transaction.
// SQLite has no row locks and the dialect drops the clause.
func (r *ReservationRepository) LockTable(ctx context.Context, id int64) (*reservation.Table, error) {
	var t reservation.Table
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&t, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrTableNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *ReservationRepository) ListTables(ctx context.Context, restaurantID int64, minCapacity int) ([]*reservation.Table, error) {
	var tables []*reservation.Table
	err := r.db.WithContext(ctx).
		Where("restaurant_id = ? AND capacity >= ?", restaurantID, minCapacity).
		Order("capacity ASC, number ASC").
		Find(&tables).Error
	return tables, err
}

func (r *ReservationRepository) active(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&reservation.Reservation{}).
		Where("status IN ?", reservationDatamodel.ActiveStatuses)
}

// HasConflict applies the half-open overlap rule: start_at < end AND end_at > start.
func (r *ReservationRepository) HasConflict(ctx context.Context, tableID int64, date, start, end time.Time, excludeID int64) (bool, error) {
	q := r.active(ctx).
		Where("table_id = ? AND date = ?", tableID, date).
		Where("start_at < ? AND end_at > ?", end, start)
	if excludeID > 0 {
		q = q.Where("id <> ?", excludeID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *ReservationRepository) HasActiveOnDate(ctx context.Context, tableID int64, date time.Time, excludeID int64) (bool, error) {
	q := r.active(ctx).Where("table_id = ? AND date = ?", tableID, date)
	if excludeID > 0 {
		q = q.Where("id <> ?", excludeID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *ReservationRepository) ListActiveOnDate(ctx context.Context, tableIDs []int64, date time.Time) ([]*reservation.Reservation, error) {
	var out []*reservation.Reservation
	if len(tableIDs) == 0 {
		return out, nil
	}
	err := r.active(ctx).
		Where("table_id IN ? AND date = ?", tableIDs, date).
		Order("start_at ASC").
		Find(&out).Error
	return out, err
}

// CreateWithPayment inserts the reservation and links the payment to it.
func (r *ReservationRepository) CreateWithPayment(ctx context.Context, res *reservation.Reservation, p *payment.Payment) error {
	db := r.db.WithContext(ctx)
	if err := db.Create(res).Error; err != nil {
		return err
	}
	p.ReservationID = res.ID
	return db.Create(p).Error
}

func (r *ReservationRepository) GetByID(ctx context.Context, id int64) (*reservation.Reservation, error) {
	return r.get(r.db.WithContext(ctx), id)
}

func (r *ReservationRepository) GetByIDForUpdate(ctx context.Context, id int64) (*reservation.Reservation, error) {
	return r.get(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *ReservationRepository) get(db *gorm.DB, id int64) (*reservation.Reservation, error) {
	var res reservation.Reservation
	if err := db.Where("id = ?", id).First(&res).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrReservationNotFound
		}
		return nil, err
	}
	return &res, nil
}

func (r *ReservationRepository) ListByUser(ctx context.Context, userID int64, status string, limit, offset int) ([]*reservation.Reservation, int64, error) {
	q := r.db.WithContext(ctx).Model(&reservation.Reservation{}).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []*reservation.Reservation
	err := q.Order("date DESC, start_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	return out, total, err
}

// TransitionStatus updates the row only while it is in one of the from statuses.
// It reports whether a row changed.
func (r *ReservationRepository) TransitionStatus(ctx context.Context, id int64, from []string, to string, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&reservation.Reservation{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *ReservationRepository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*reservation.Reservation, error) {
	var out []*reservation.Reservation
	err := r.db.WithContext(ctx).
		Where("status = ? AND payment_deadline IS NOT NULL AND payment_deadline < ?", reservation.StatusPending, now).
		Order("payment_deadline ASC, id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *ReservationRepository) ListCompletable(ctx context.Context, now time.Time, limit int) ([]*reservation.Reservation, error) {
	var out []*reservation.Reservation
	err := r.db.WithContext(ctx).
		Where("status = ? AND end_at <= ?", reservation.StatusConfirmed, now).
		Order("end_at ASC, id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
