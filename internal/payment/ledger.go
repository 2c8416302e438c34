package payment

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/frahmantamala/table-reservation/internal"
	reservationDatamodel "github.com/frahmantamala/table-reservation/internal/core/datamodel/reservation"
	"github.com/frahmantamala/table-reservation/internal/core/user"
	"github.com/frahmantamala/table-reservation/internal/reservation"
	"github.com/frahmantamala/table-reservation/pkg/db"
)

// Reservations is the slice of the reservation service the ledger drives.
type Reservations interface {
	Get(ctx context.Context, id int64) (*reservation.Reservation, error)
	ConfirmInTx(ctx context.Context, tx *gorm.DB, id int64) (*reservation.Reservation, error)
}

// Ledger records payment attempts and confirms reservations when one verifies.
type Ledger struct {
	tx           db.TxRunner
	repo         Repository
	history      HistoryReader
	reservations Reservations
	gateway      Gateway
	now          func() time.Time
	logger       *slog.Logger
}

func NewLedger(tx db.TxRunner, repo Repository, history HistoryReader, reservations Reservations, logger *slog.Logger) *Ledger {
	return &Ledger{
		tx:           tx,
		repo:         repo,
		history:      history,
		reservations: reservations,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger,
	}
}

func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

func (l *Ledger) WithGateway(g Gateway) *Ledger {
	l.gateway = g
	return l
}

// Verify settles a pending payment and confirms its reservation in the same
// transaction. When the reservation's deadline has already passed, the
// reservation is committed as EXPIRED, the payment as FAILED, and
// ErrPaymentDeadlineExpired is returned alongside the result.
func (l *Ledger) Verify(ctx context.Context, paymentID int64, ref string, actor *user.Principal) (*VerifyResult, error) {
	var (
		result      *VerifyResult
		deadlineErr error
	)
	err := l.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := l.repo.WithTx(tx)

		p, err := repo.GetByIDForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if actor != nil {
			owner, err := repo.ReservationOwner(ctx, p.ReservationID)
			if err != nil {
				return err
			}
			if !actor.Owns(owner, user.CapViewAllPayments) {
				return internal.ErrPaymentNotFound
			}
		}
		if !p.IsPending() {
			return internal.ErrInvalidPaymentState.WithMessage("payment is already " + p.Status)
		}

		r, confirmErr := l.reservations.ConfirmInTx(ctx, tx, p.ReservationID)
		if errors.Is(confirmErr, internal.ErrPaymentDeadlineExpired) {
			reason := reservationDatamodel.ExpiredReason
			if err := l.transition(ctx, repo, p, StatusFailed, map[string]interface{}{"failure_reason": reason}); err != nil {
				return err
			}
			p.FailureReason = &reason
			deadlineErr = confirmErr
			result = &VerifyResult{Payment: p, Reservation: r}
			return nil
		}
		if confirmErr != nil {
			return confirmErr
		}

		now := l.now()
		fields := map[string]interface{}{"verified_at": now}
		if ref != "" {
			fields["ref_id"] = ref
		}
		if err := l.transition(ctx, repo, p, StatusVerified, fields); err != nil {
			return err
		}
		p.VerifiedAt = &now
		if ref != "" {
			p.RefID = &ref
		}
		result = &VerifyResult{Payment: p, Reservation: r}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if deadlineErr != nil {
		l.logger.Warn("payment arrived after deadline",
			"payment_id", paymentID,
			"reservation_id", result.Payment.ReservationID)
		return result, deadlineErr
	}

	l.logger.Info("payment verified",
		"payment_id", paymentID,
		"reservation_id", result.Payment.ReservationID,
		"amount", result.Payment.Amount.String())
	return result, nil
}

// Fail marks a pending payment FAILED. The reservation is left alone; the
// customer may retry until the payment deadline.
func (l *Ledger) Fail(ctx context.Context, paymentID int64, reason string) (*Payment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "payment failed"
	}

	var failed *Payment
	err := l.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := l.repo.WithTx(tx)
		p, err := repo.GetByIDForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if !p.IsPending() {
			return internal.ErrInvalidPaymentState.WithMessage("payment is already " + p.Status)
		}
		if err := l.transition(ctx, repo, p, StatusFailed, map[string]interface{}{"failure_reason": reason}); err != nil {
			return err
		}
		p.FailureReason = &reason
		failed = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("payment failed", "payment_id", paymentID, "reason", reason)
	return failed, nil
}

// VoidPending fails every pending attempt of a reservation that can no longer
// be paid. It is safe to call repeatedly.
func (l *Ledger) VoidPending(ctx context.Context, reservationID int64, reason string) (int, error) {
	pending, err := l.repo.ListPendingForReservation(ctx, reservationID)
	if err != nil {
		return 0, internal.NewInternalError("failed to list pending payments", err)
	}
	voided := 0
	for _, p := range pending {
		ok, err := l.repo.TransitionStatus(ctx, p.ID, StatusPending, StatusFailed, map[string]interface{}{"failure_reason": reason})
		if err != nil {
			return voided, internal.NewInternalError("failed to void payment", err)
		}
		if ok {
			voided++
		}
	}
	return voided, nil
}

// Retry opens a new attempt for a pending reservation whose last attempt failed.
func (l *Ledger) Retry(ctx context.Context, reservationID int64, actor *user.Principal) (*Payment, error) {
	r, err := l.reservations.Get(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if actor != nil && !actor.Owns(r.UserID, user.CapViewAllPayments) {
		return nil, internal.ErrReservationNotFound
	}
	if r.Status != reservation.StatusPending {
		return nil, internal.ErrInvalidReservationState.WithMessage("cannot pay for reservation with status '" + r.Status + "'")
	}
	if r.DeadlinePassed(l.now()) {
		return nil, internal.ErrPaymentDeadlineExpired
	}

	var created *Payment
	err = l.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := l.repo.WithTx(tx)
		latest, err := repo.LatestForReservation(ctx, reservationID)
		if err != nil && !errors.Is(err, internal.ErrPaymentNotFound) {
			return err
		}
		if latest != nil && latest.Status != StatusFailed {
			return internal.ErrInvalidPaymentState.WithMessage("latest payment attempt is " + latest.Status)
		}
		p := &Payment{
			ReservationID: reservationID,
			Amount:        r.Price,
			Status:        StatusPending,
		}
		if err := repo.Create(ctx, p); err != nil {
			return internal.NewInternalError("failed to create payment", err)
		}
		created = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("payment retry opened", "payment_id", created.ID, "reservation_id", reservationID)
	return created, nil
}

// Checkout hands a pending payment to the gateway. The reference is assigned
// once, so repeated checkouts resubmit under the same ref.
func (l *Ledger) Checkout(ctx context.Context, paymentID int64, actor *user.Principal) (*Payment, error) {
	if l.gateway == nil {
		return nil, internal.ErrGatewayBusy.WithMessage("payment gateway is disabled")
	}

	p, err := l.repo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	r, err := l.reservations.Get(ctx, p.ReservationID)
	if err != nil {
		return nil, err
	}
	if actor != nil && !actor.Owns(r.UserID, user.CapViewAllPayments) {
		return nil, internal.ErrPaymentNotFound
	}
	if !p.IsPending() {
		return nil, internal.ErrInvalidPaymentState.WithMessage("payment is already " + p.Status)
	}
	if r.Status != reservation.StatusPending {
		return nil, internal.ErrInvalidReservationState.WithMessage("cannot pay for reservation with status '" + r.Status + "'")
	}
	if r.DeadlinePassed(l.now()) {
		return nil, internal.ErrPaymentDeadlineExpired
	}

	if p.RefID == nil {
		ref := l.gateway.NewRef()
		if err := l.repo.SetRefID(ctx, p.ID, ref); err != nil {
			return nil, internal.NewInternalError("failed to assign payment reference", err)
		}
		p.RefID = &ref
	}

	if err := l.gateway.Submit(ctx, Charge{PaymentID: p.ID, RefID: *p.RefID, Amount: p.Amount}); err != nil {
		return nil, err
	}

	l.logger.Info("payment submitted to gateway", "payment_id", p.ID, "ref_id", *p.RefID)
	return p, nil
}

func (l *Ledger) Get(ctx context.Context, id int64) (*Payment, error) {
	return l.repo.GetByID(ctx, id)
}

func (l *Ledger) GetByRef(ctx context.Context, ref string) (*Payment, error) {
	return l.repo.GetByRefID(ctx, ref)
}

// History lists payments. Callers without payments:view_all only see their own.
func (l *Ledger) History(ctx context.Context, actor *user.Principal, f HistoryFilter) ([]HistoryItem, int64, error) {
	if actor != nil && !actor.Can(user.CapViewAllPayments) {
		f.UserID = &actor.ID
	}
	if f.Ordering == "" {
		f.Ordering = DefaultOrdering
	}
	if _, ok := Orderings[strings.TrimPrefix(f.Ordering, "-")]; !ok {
		return nil, 0, internal.NewValidationFieldError("ordering", "unsupported ordering '"+f.Ordering+"'", internal.ErrCodeValidationFailed)
	}
	if f.Status != "" && f.Status != StatusPending && f.Status != StatusVerified && f.Status != StatusFailed {
		return nil, 0, internal.NewValidationFieldError("status", "unknown payment status '"+f.Status+"'", internal.ErrCodeValidationFailed)
	}
	if f.MinAmount != nil && f.MaxAmount != nil && f.MinAmount.GreaterThan(*f.MaxAmount) {
		return nil, 0, internal.NewValidationFieldError("min_amount", "min_amount must not exceed max_amount", internal.ErrCodeValidationFailed)
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	items, total, err := l.history.List(ctx, f)
	if err != nil {
		return nil, 0, internal.NewInternalError("failed to list payments", err)
	}
	return items, total, nil
}

// Detail returns one history row, hidden behind NotFound from non-owners.
func (l *Ledger) Detail(ctx context.Context, id int64, actor *user.Principal) (*HistoryItem, error) {
	item, err := l.history.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor != nil && !actor.Owns(item.UserID, user.CapViewAllPayments) {
		return nil, internal.ErrPaymentNotFound
	}
	return item, nil
}

func (l *Ledger) transition(ctx context.Context, repo Repository, p *Payment, to string, fields map[string]interface{}) error {
	ok, err := repo.TransitionStatus(ctx, p.ID, StatusPending, to, fields)
	if err != nil {
		return internal.NewInternalError("failed to update payment", err)
	}
	if !ok {
		return internal.ErrInvalidPaymentState
	}
	p.Status = to
	return nil
}
