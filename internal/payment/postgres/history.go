package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/frahmantamala/table-reservation/internal"
	paymentpkg "github.com/frahmantamala/table-reservation/internal/payment"
)

const historyFrom = `
FROM payments p
JOIN reservations r ON r.id = p.reservation_id`

const historyColumns = `
SELECT p.id, p.reservation_id, r.user_id, p.amount, p.ref_id, p.status,
       p.failure_reason, p.verified_at, p.created_at,
       r.table_id, r.start_at, r.end_at, r.status AS reservation_status`

// HistoryReader serves payment history straight from SQL. Placeholders are
// written as '?' and rebound for the driver the handle was opened with.
type HistoryReader struct {
	db *sqlx.DB
}

func NewHistoryReader(db *sqlx.DB) *HistoryReader {
	return &HistoryReader{db: db}
}

func (h *HistoryReader) List(ctx context.Context, f paymentpkg.HistoryFilter) ([]paymentpkg.HistoryItem, int64, error) {
	where, args := historyWhere(f)

	var total int64
	countQuery := h.db.Rebind("SELECT COUNT(*)" + historyFrom + where)
	if err := h.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	query := h.db.Rebind(historyColumns + historyFrom + where + orderBy(f.Ordering) + " LIMIT ? OFFSET ?")
	args = append(args, f.Limit, f.Offset)

	items := []paymentpkg.HistoryItem{}
	if err := h.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (h *HistoryReader) Get(ctx context.Context, id int64) (*paymentpkg.HistoryItem, error) {
	var item paymentpkg.HistoryItem
	query := h.db.Rebind(historyColumns + historyFrom + " WHERE p.id = ?")
	if err := h.db.GetContext(ctx, &item, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, internal.ErrPaymentNotFound
		}
		return nil, err
	}
	return &item, nil
}

func historyWhere(f paymentpkg.HistoryFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if f.UserID != nil {
		conds = append(conds, "r.user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.Status != "" {
		conds = append(conds, "p.status = ?")
		args = append(args, f.Status)
	}
	if f.MinAmount != nil {
		conds = append(conds, "p.amount >= ?")
		args = append(args, f.MinAmount.InexactFloat64())
	}
	if f.MaxAmount != nil {
		conds = append(conds, "p.amount <= ?")
		args = append(args, f.MaxAmount.InexactFloat64())
	}
	if f.CreatedFrom != nil {
		conds = append(conds, "p.created_at >= ?")
		args = append(args, f.CreatedFrom.UTC())
	}
	if f.CreatedTo != nil {
		conds = append(conds, "p.created_at <= ?")
		args = append(args, f.CreatedTo.UTC())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// orderBy only ever emits whitelisted columns.
func orderBy(ordering string) string {
	if ordering == "" {
		ordering = paymentpkg.DefaultOrdering
	}
	dir := "ASC"
	if strings.HasPrefix(ordering, "-") {
		dir = "DESC"
		ordering = ordering[1:]
	}
	col, ok := paymentpkg.Orderings[ordering]
	if !ok {
		col, dir = "p.created_at", "DESC"
	}
	return " ORDER BY " + col + " " + dir + ", p.id " + dir
}
