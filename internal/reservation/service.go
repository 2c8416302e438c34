package reservation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/frahmantamala/table-reservation/internal"
	"github.com/frahmantamala/table-reservation/internal/core/common/validation"
	"github.com/frahmantamala/table-reservation/internal/core/datamodel/payment"
	reservationDatamodel "github.com/frahmantamala/table-reservation/internal/core/datamodel/reservation"
	"github.com/frahmantamala/table-reservation/internal/core/user"
	"github.com/frahmantamala/table-reservation/pkg/db"
)

// Repository is the reservation store. WithTx rebinds it to an open transaction.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	GetRestaurant(ctx context.Context, id int64) (*Restaurant, error)
	GetTable(ctx context.Context, id int64) (*Table, error)
	LockTable(ctx context.Context, id int64) (*Table, error)
	ListTables(ctx context.Context, restaurantID int64, minCapacity int) ([]*Table, error)

	HasConflict(ctx context.Context, tableID int64, date, start, end time.Time, excludeID int64) (bool, error)
	HasActiveOnDate(ctx context.Context, tableID int64, date time.Time, excludeID int64) (bool, error)
	ListActiveOnDate(ctx context.Context, tableIDs []int64, date time.Time) ([]*Reservation, error)

	CreateWithPayment(ctx context.Context, r *Reservation, p *payment.Payment) error
	GetByID(ctx context.Context, id int64) (*Reservation, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*Reservation, error)
	ListByUser(ctx context.Context, userID int64, status string, limit, offset int) ([]*Reservation, int64, error)
	TransitionStatus(ctx context.Context, id int64, from []string, to string, fields map[string]interface{}) (bool, error)

	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*Reservation, error)
	ListCompletable(ctx context.Context, now time.Time, limit int) ([]*Reservation, error)
}

type Config struct {
	PaymentGracePeriod time.Duration
}

// Service owns the reservation state machine. Every transition is guarded by
// its status precondition in the UPDATE itself.
type Service struct {
	tx     db.TxRunner
	repo   Repository
	grace  time.Duration
	now    func() time.Time
	logger *slog.Logger
}

func NewService(tx db.TxRunner, repo Repository, cfg Config, logger *slog.Logger) *Service {
	grace := cfg.PaymentGracePeriod
	if grace <= 0 {
		grace = 15 * time.Minute
	}
	return &Service{
		tx:     tx,
		repo:   repo,
		grace:  grace,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// WithClock swaps the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Now() time.Time {
	return s.now()
}

// Create admits a reservation and its payment record in one transaction.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Booking, error) {
	var booking *Booking
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		b, err := s.CreateInTx(ctx, tx, cmd)
		if err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("reservation created",
		"reservation_id", booking.Reservation.ID,
		"payment_id", booking.Payment.ID,
		"user_id", cmd.UserID,
		"table_id", cmd.TableID,
		"price", booking.Reservation.Price.String())
	return booking, nil
}

// CreateInTx runs the admission checks against tx. The table row is locked first,
// so concurrent admissions on the same table serialize on Postgres.
func (s *Service) CreateInTx(ctx context.Context, tx *gorm.DB, cmd CreateCommand) (*Booking, error) {
	cmd.Date = DateOf(cmd.Date)
	cmd.Start = cmd.Start.UTC()
	cmd.End = cmd.End.UTC()

	if err := validation.ValidateWindow(cmd.Start, cmd.End); err != nil {
		return nil, err
	}
	if cmd.GuestCount < 1 {
		return nil, internal.ErrInvalidGuests
	}

	repo := s.repo.WithTx(tx)

	table, err := repo.LockTable(ctx, cmd.TableID)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateGuestCount(cmd.GuestCount, table.Capacity); err != nil {
		return nil, err
	}

	if table.IsVIP() {
		taken, err := repo.HasActiveOnDate(ctx, table.ID, cmd.Date, 0)
		if err != nil {
			return nil, internal.NewInternalError("failed to check VIP availability", err)
		}
		if taken {
			return nil, internal.ErrVIPTaken
		}
	}

	conflict, err := repo.HasConflict(ctx, table.ID, cmd.Date, cmd.Start, cmd.End, 0)
	if err != nil {
		return nil, internal.NewInternalError("failed to check slot availability", err)
	}
	if conflict {
		return nil, internal.ErrSlotTaken
	}

	rest, err := repo.GetRestaurant(ctx, table.RestaurantID)
	if err != nil {
		return nil, err
	}

	grace := s.grace
	if cmd.PaymentGrace > 0 {
		grace = cmd.PaymentGrace
	}
	deadline := s.now().Add(grace)
	price := Price(rest, table, cmd.GuestCount)

	r := &Reservation{
		UserID:          cmd.UserID,
		TableID:         table.ID,
		Date:            cmd.Date,
		StartAt:         cmd.Start,
		EndAt:           cmd.End,
		GuestCount:      cmd.GuestCount,
		Price:           price,
		Status:          StatusPending,
		PaymentDeadline: &deadline,
	}
	p := &payment.Payment{
		Amount: price,
		Status: payment.StatusPending,
	}
	if err := repo.CreateWithPayment(ctx, r, p); err != nil {
		if db.IsExclusionViolation(err) {
			return nil, internal.ErrSlotTaken
		}
		return nil, internal.NewInternalError("failed to create reservation", err)
	}

	return &Booking{Reservation: r, Payment: p}, nil
}

func (s *Service) Confirm(ctx context.Context, id int64) (*Reservation, error) {
	var (
		confirmed   *Reservation
		deadlineErr error
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r, err := s.ConfirmInTx(ctx, tx, id)
		if errors.Is(err, internal.ErrPaymentDeadlineExpired) {
			// keep the EXPIRED transition
			deadlineErr = err
			confirmed = r
			return nil
		}
		if err != nil {
			return err
		}
		confirmed = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return confirmed, deadlineErr
}

// ConfirmInTx moves a PENDING reservation to CONFIRMED. When the payment deadline
// has already passed it moves it to EXPIRED instead and returns
// ErrPaymentDeadlineExpired; the caller must still commit tx.
func (s *Service) ConfirmInTx(ctx context.Context, tx *gorm.DB, id int64) (*Reservation, error) {
	repo := s.repo.WithTx(tx)

	r, err := repo.GetByIDForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.CanConfirm() {
		return nil, internal.ErrInvalidReservationState.WithMessage("cannot confirm reservation with status '" + r.Status + "'")
	}

	now := s.now()
	if r.DeadlinePassed(now) {
		ok, err := repo.TransitionStatus(ctx, id, []string{StatusPending}, StatusExpired, map[string]interface{}{
			"cancellation_reason": reservationDatamodel.ExpiredReason,
		})
		if err != nil {
			return nil, internal.NewInternalError("failed to expire reservation", err)
		}
		if !ok {
			return nil, internal.ErrInvalidReservationState
		}
		r.Status = StatusExpired
		r.CancellationReason = reservationDatamodel.ExpiredReason
		s.logger.Info("reservation expired at confirmation", "reservation_id", id, "deadline", r.PaymentDeadline)
		return r, internal.ErrPaymentDeadlineExpired
	}

	ok, err := repo.TransitionStatus(ctx, id, []string{StatusPending}, StatusConfirmed, map[string]interface{}{
		"payment_deadline": nil,
	})
	if err != nil {
		return nil, internal.NewInternalError("failed to confirm reservation", err)
	}
	if !ok {
		return nil, internal.ErrInvalidReservationState
	}
	r.Status = StatusConfirmed
	r.PaymentDeadline = nil
	return r, nil
}

// Cancel frees an active reservation. A nil actor is the system; otherwise the
// actor must own the reservation or hold the cancel-any capability.
func (s *Service) Cancel(ctx context.Context, id int64, actor *user.Principal, reason string) (*Reservation, error) {
	var cancelled *Reservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		r, err := repo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if actor != nil && !actor.Owns(r.UserID, user.CapCancelAnyBooking) {
			return internal.ErrReservationNotFound
		}
		if !r.CanCancel() {
			return internal.ErrInvalidReservationState.
				WithMessage("Cannot cancel reservation with status '" + r.Status + "'.")
		}

		ok, err := repo.TransitionStatus(ctx, id, reservationDatamodel.ActiveStatuses, StatusCancelled, map[string]interface{}{
			"cancellation_reason": reason,
			"payment_deadline":    nil,
		})
		if err != nil {
			return internal.NewInternalError("failed to cancel reservation", err)
		}
		if !ok {
			return internal.ErrInvalidReservationState
		}
		r.Status = StatusCancelled
		r.CancellationReason = reason
		r.PaymentDeadline = nil
		cancelled = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("reservation cancelled", "reservation_id", id, "reason", reason)
	return cancelled, nil
}

// Complete closes a CONFIRMED reservation whose window has ended.
func (s *Service) Complete(ctx context.Context, id int64) (*Reservation, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusConfirmed {
		return nil, internal.ErrInvalidReservationState
	}
	if r.EndAt.After(s.now()) {
		return nil, internal.ErrInvalidReservationState.WithMessage("reservation has not ended yet")
	}

	ok, err := s.repo.TransitionStatus(ctx, id, []string{StatusConfirmed}, StatusCompleted, nil)
	if err != nil {
		return nil, internal.NewInternalError("failed to complete reservation", err)
	}
	if !ok {
		return nil, internal.ErrInvalidReservationState
	}
	r.Status = StatusCompleted
	return r, nil
}

// MarkExpired moves a PENDING reservation to EXPIRED. The bool is false when the
// row was no longer pending, which makes repeated sweeps a no-op.
func (s *Service) MarkExpired(ctx context.Context, id int64) (*Reservation, bool, error) {
	return s.markExpired(ctx, s.repo, id)
}

func (s *Service) MarkExpiredInTx(ctx context.Context, tx *gorm.DB, id int64) (*Reservation, bool, error) {
	return s.markExpired(ctx, s.repo.WithTx(tx), id)
}

func (s *Service) markExpired(ctx context.Context, repo Repository, id int64) (*Reservation, bool, error) {
	ok, err := repo.TransitionStatus(ctx, id, []string{StatusPending}, StatusExpired, map[string]interface{}{
		"cancellation_reason": reservationDatamodel.ExpiredReason,
	})
	if err != nil {
		return nil, false, internal.NewInternalError("failed to expire reservation", err)
	}
	r, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return r, ok, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Reservation, error) {
	return s.repo.GetByID(ctx, id)
}

// GetForActor hides reservations the actor may not see behind NotFound.
func (s *Service) GetForActor(ctx context.Context, id int64, actor *user.Principal) (*Reservation, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor != nil && !actor.Owns(r.UserID, user.CapViewAllBookings) {
		return nil, internal.ErrReservationNotFound
	}
	return r, nil
}

func (s *Service) ListForUser(ctx context.Context, userID int64, status string, limit, offset int) ([]*Reservation, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByUser(ctx, userID, status, limit, offset)
}

func (s *Service) ListExpiredPending(ctx context.Context, limit int) ([]*Reservation, error) {
	return s.repo.ListExpiredPending(ctx, s.now(), limit)
}

func (s *Service) ListCompletable(ctx context.Context, limit int) ([]*Reservation, error) {
	return s.repo.ListCompletable(ctx, s.now(), limit)
}

// IsAvailable reports whether the slot is free, ignoring excludeID.
func (s *Service) IsAvailable(ctx context.Context, tx *gorm.DB, slot Slot, excludeID int64) (bool, error) {
	repo := s.repo
	if tx != nil {
		repo = repo.WithTx(tx)
	}
	conflict, err := repo.HasConflict(ctx, slot.TableID, DateOf(slot.Date), slot.Start.UTC(), slot.End.UTC(), excludeID)
	if err != nil {
		return false, err
	}
	return !conflict, nil
}

func (s *Service) GetTable(ctx context.Context, id int64) (*Table, error) {
	return s.repo.GetTable(ctx, id)
}

// LockTable holds the table row lock for the rest of tx. Work that must not
// interleave with admissions on the same table takes it first.
func (s *Service) LockTable(ctx context.Context, tx *gorm.DB, id int64) (*Table, error) {
	return s.repo.WithTx(tx).LockTable(ctx, id)
}
