package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frahmantamala/table-reservation/internal"
	waitlistDatamodel "github.com/frahmantamala/table-reservation/internal/core/datamodel/waitlist"
	"github.com/frahmantamala/table-reservation/internal/reservation"
	"github.com/frahmantamala/table-reservation/internal/waitlist"
)

type WaitlistRepository struct {
	db *gorm.DB
}

func NewWaitlistRepository(db *gorm.DB) waitlist.Repository {
	return &WaitlistRepository{db: db}
}

func (r *WaitlistRepository) WithTx(tx *gorm.DB) waitlist.Repository {
	return &WaitlistRepository{db: tx}
}

func (r *WaitlistRepository) Create(ctx context.Context, e *waitlist.Entry) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *WaitlistRepository) GetByID(ctx context.Context, id int64) (*waitlist.Entry, error) {
	return r.get(r.db.WithContext(ctx), id)
}

func (r *WaitlistRepository) GetByIDForUpdate(ctx context.Context, id int64) (*waitlist.Entry, error) {
	return r.get(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *WaitlistRepository) get(db *gorm.DB, id int64) (*waitlist.Entry, error) {
	var e waitlist.Entry
	if err := db.Where("id = ?", id).First(&e).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrWaitlistNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *WaitlistRepository) HasOpenDuplicate(ctx context.Context, userID int64, slot reservation.Slot) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&waitlist.Entry{}).
		Where("user_id = ? AND table_id = ? AND date = ? AND start_at = ? AND end_at = ?",
			userID, slot.TableID, slot.Date, slot.Start, slot.End).
		Where("status IN ?", waitlistDatamodel.OpenStatuses).
		Count(&n).Error
	return n > 0, err
}

// MaxPosition looks at every entry in the bucket, terminal ones included.
func (r *WaitlistRepository) MaxPosition(ctx context.Context, tableID int64, date, start time.Time) (int, error) {
	var max int
	err := r.db.WithContext(ctx).
		Model(&waitlist.Entry{}).
		Where("table_id = ? AND date = ? AND start_at = ?", tableID, date, start).
		Select("COALESCE(MAX(position), 0)").
		Scan(&max).Error
	return max, err
}

// FirstWaiting orders by creation time; position only breaks exact ties before id.
func (r *WaitlistRepository) FirstWaiting(ctx context.Context, slot reservation.Slot) (*waitlist.Entry, error) {
	var e waitlist.Entry
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("table_id = ? AND date = ? AND status = ?", slot.TableID, slot.Date, waitlist.StatusWaiting).
		Where("start_at < ? AND end_at > ?", slot.End, slot.Start).
		Order("created_at ASC, position ASC, id ASC").
		Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *WaitlistRepository) TransitionStatus(ctx context.Context, id int64, from []string, to string, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&waitlist.Entry{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *WaitlistRepository) ListByUser(ctx context.Context, userID int64, status string, limit, offset int) ([]*waitlist.Entry, int64, error) {
	q := r.db.WithContext(ctx).Model(&waitlist.Entry{}).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []*waitlist.Entry
	err := q.Order("date DESC, start_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	return out, total, err
}

func (r *WaitlistRepository) ListExpiredClaims(ctx context.Context, now time.Time, limit int) ([]*waitlist.Entry, error) {
	var out []*waitlist.Entry
	err := r.db.WithContext(ctx).
		Where("status = ? AND payment_deadline IS NOT NULL AND payment_deadline < ?", waitlist.StatusNotified, now).
		Order("payment_deadline ASC, id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
