package waitlist

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/frahmantamala/table-reservation/internal"
	"github.com/frahmantamala/table-reservation/internal/core/common/validation"
	"github.com/frahmantamala/table-reservation/internal/core/user"
	"github.com/frahmantamala/table-reservation/internal/reservation"
	"github.com/frahmantamala/table-reservation/pkg/db"
)

// Reservations is the slice of the reservation service the waitlist needs to
// hand a claimed slot over.
type Reservations interface {
	GetTable(ctx context.Context, id int64) (*reservation.Table, error)
	LockTable(ctx context.Context, tx *gorm.DB, id int64) (*reservation.Table, error)
	IsAvailable(ctx context.Context, tx *gorm.DB, slot reservation.Slot, excludeID int64) (bool, error)
	CreateInTx(ctx context.Context, tx *gorm.DB, cmd reservation.CreateCommand) (*reservation.Booking, error)
}

const bucketPositionIndex = "idx_waitlist_bucket_position"

type Config struct {
	ClaimWindow time.Duration
}

type Service struct {
	tx           db.TxRunner
	repo         Repository
	reservations Reservations
	claimWindow  time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

func NewService(tx db.TxRunner, repo Repository, reservations Reservations, cfg Config, logger *slog.Logger) *Service {
	claim := cfg.ClaimWindow
	if claim <= 0 {
		claim = 30 * time.Minute
	}
	return &Service{
		tx:           tx,
		repo:         repo,
		reservations: reservations,
		claimWindow:  claim,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Join queues the user for a window. Positions grow per (table, date, start)
// bucket and are never reused. The table row lock serializes joins on a bucket
// between reading the last position and inserting the next.
func (s *Service) Join(ctx context.Context, cmd JoinCommand) (*Entry, error) {
	cmd.Date = reservation.DateOf(cmd.Date)
	cmd.Start = cmd.Start.UTC()
	cmd.End = cmd.End.UTC()

	if err := validation.ValidateWindow(cmd.Start, cmd.End); err != nil {
		return nil, err
	}
	if cmd.GuestCount < 1 {
		return nil, internal.ErrInvalidGuests
	}
	table, err := s.reservations.GetTable(ctx, cmd.TableID)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateGuestCount(cmd.GuestCount, table.Capacity); err != nil {
		return nil, err
	}

	var entry *Entry
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.reservations.LockTable(ctx, tx, cmd.TableID); err != nil {
			return err
		}
		repo := s.repo.WithTx(tx)

		dup, err := repo.HasOpenDuplicate(ctx, cmd.UserID, cmd.Slot())
		if err != nil {
			return internal.NewInternalError("failed to check waitlist", err)
		}
		if dup {
			return internal.ErrDuplicateWaiter
		}

		last, err := repo.MaxPosition(ctx, cmd.TableID, cmd.Date, cmd.Start)
		if err != nil {
			return internal.NewInternalError("failed to assign waitlist position", err)
		}

		e := &Entry{
			UserID:     cmd.UserID,
			TableID:    cmd.TableID,
			Date:       cmd.Date,
			StartAt:    cmd.Start,
			EndAt:      cmd.End,
			GuestCount: cmd.GuestCount,
			Status:     StatusWaiting,
			Position:   last + 1,
		}
		if err := repo.Create(ctx, e); err != nil {
			if db.IsUniqueViolation(err, bucketPositionIndex) {
				return internal.NewInternalError("waitlist position already taken", err)
			}
			if db.IsUniqueViolation(err, "") {
				return internal.ErrDuplicateWaiter
			}
			return internal.NewInternalError("failed to join waitlist", err)
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("waitlist joined",
		"entry_id", entry.ID,
		"user_id", entry.UserID,
		"table_id", entry.TableID,
		"position", entry.Position)
	return entry, nil
}

// Cancel withdraws a WAITING entry. A nil actor is the system.
func (s *Service) Cancel(ctx context.Context, id int64, actor *user.Principal) (*Entry, error) {
	var cancelled *Entry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		e, err := repo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if actor != nil && !actor.Owns(e.UserID, user.CapManageWaitlist) {
			return internal.ErrWaitlistNotFound
		}
		if e.Status != StatusWaiting {
			return internal.ErrInvalidWaitlistState.WithMessage("cannot cancel waitlist entry with status '" + e.Status + "'")
		}
		ok, err := repo.TransitionStatus(ctx, id, []string{StatusWaiting}, StatusCancelled, nil)
		if err != nil {
			return internal.NewInternalError("failed to cancel waitlist entry", err)
		}
		if !ok {
			return internal.ErrInvalidWaitlistState
		}
		e.Status = StatusCancelled
		cancelled = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("waitlist entry cancelled", "entry_id", id)
	return cancelled, nil
}

func (s *Service) FindFirstWaiting(ctx context.Context, slot reservation.Slot) (*Entry, error) {
	return s.repo.FirstWaiting(ctx, normalize(slot))
}

// Promote notifies the oldest waiter overlapping slot and opens its claim
// window. No waiter is a normal outcome and returns nil, nil.
func (s *Service) Promote(ctx context.Context, slot reservation.Slot) (*Entry, error) {
	slot = normalize(slot)

	var promoted *Entry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		e, err := repo.FirstWaiting(ctx, slot)
		if err != nil {
			return internal.NewInternalError("failed to find waitlist entry", err)
		}
		if e == nil {
			return nil
		}

		now := s.now()
		deadline := now.Add(s.claimWindow)
		ok, err := repo.TransitionStatus(ctx, e.ID, []string{StatusWaiting}, StatusNotified, map[string]interface{}{
			"notified_at":      now,
			"payment_deadline": deadline,
		})
		if err != nil {
			return internal.NewInternalError("failed to promote waitlist entry", err)
		}
		if !ok {
			// lost the row to a concurrent cancel or promotion
			return nil
		}
		e.Status = StatusNotified
		e.NotifiedAt = &now
		e.PaymentDeadline = &deadline
		promoted = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	if promoted != nil {
		s.logger.Info("waitlist entry promoted",
			"entry_id", promoted.ID,
			"user_id", promoted.UserID,
			"table_id", promoted.TableID,
			"claim_deadline", promoted.PaymentDeadline)
	}
	return promoted, nil
}

// Convert turns a NOTIFIED entry into a PENDING reservation whose payment
// deadline is the entry's claim deadline. If the claim window has passed the
// entry is committed as EXPIRED and ErrClaimDeadlineExpired is returned. Any
// other failure leaves the entry NOTIFIED.
func (s *Service) Convert(ctx context.Context, id int64, actor *user.Principal) (*Conversion, error) {
	var (
		conv       *Conversion
		expiredErr error
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		e, err := repo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if actor != nil && !actor.Owns(e.UserID, user.CapManageWaitlist) {
			return internal.ErrWaitlistNotFound
		}
		if e.Status != StatusNotified {
			return internal.ErrInvalidWaitlistState.WithMessage("This request is no longer valid.")
		}

		now := s.now()
		if e.ClaimExpired(now) {
			if _, err := repo.TransitionStatus(ctx, id, []string{StatusNotified}, StatusExpired, nil); err != nil {
				return internal.NewInternalError("failed to expire waitlist entry", err)
			}
			e.Status = StatusExpired
			conv = &Conversion{Entry: e}
			expiredErr = internal.ErrClaimDeadlineExpired
			return nil
		}

		slot := SlotOf(e)
		free, err := s.reservations.IsAvailable(ctx, tx, slot, 0)
		if err != nil {
			return internal.NewInternalError("failed to check slot availability", err)
		}
		if !free {
			return internal.ErrSlotTaken.WithMessage("This table is no longer available.")
		}

		grace := s.claimWindow
		if e.PaymentDeadline != nil {
			grace = e.PaymentDeadline.Sub(now)
		}
		booking, err := s.reservations.CreateInTx(ctx, tx, reservation.CreateCommand{
			UserID:       e.UserID,
			TableID:      e.TableID,
			Date:         e.Date,
			Start:        e.StartAt,
			End:          e.EndAt,
			GuestCount:   e.GuestCount,
			PaymentGrace: grace,
		})
		if err != nil {
			return err
		}

		ok, err := repo.TransitionStatus(ctx, id, []string{StatusNotified}, StatusConverted, map[string]interface{}{
			"reservation_id": booking.Reservation.ID,
		})
		if err != nil {
			return internal.NewInternalError("failed to link waitlist entry", err)
		}
		if !ok {
			return internal.ErrInvalidWaitlistState
		}
		e.Status = StatusConverted
		e.ReservationID = &booking.Reservation.ID
		conv = &Conversion{Entry: e, Booking: booking}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expiredErr != nil {
		s.logger.Info("waitlist claim expired at conversion", "entry_id", id)
		return conv, expiredErr
	}

	s.logger.Info("waitlist entry converted",
		"entry_id", id,
		"reservation_id", conv.Booking.Reservation.ID,
		"payment_id", conv.Booking.Payment.ID)
	return conv, nil
}

// Expire closes a NOTIFIED entry whose claim window lapsed. The bool is false
// when the entry had already moved on.
func (s *Service) Expire(ctx context.Context, id int64) (*Entry, bool, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if e.Status != StatusNotified {
		return e, false, nil
	}
	if !e.ClaimExpired(s.now()) {
		return nil, false, internal.ErrInvalidWaitlistState.WithMessage("claim window for entry " + strconv.FormatInt(id, 10) + " is still open")
	}
	ok, err := s.repo.TransitionStatus(ctx, id, []string{StatusNotified}, StatusExpired, nil)
	if err != nil {
		return nil, false, internal.NewInternalError("failed to expire waitlist entry", err)
	}
	if ok {
		e.Status = StatusExpired
		s.logger.Info("waitlist entry expired", "entry_id", id, "user_id", e.UserID)
	}
	return e, ok, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Entry, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListForUser(ctx context.Context, userID int64, status string, limit, offset int) ([]*Entry, int64, error) {
	if status != "" && !knownStatus(status) {
		return nil, 0, internal.NewValidationFieldError("status", "unknown waitlist status '"+status+"'", internal.ErrCodeValidationFailed)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByUser(ctx, userID, status, limit, offset)
}

func (s *Service) ListExpiredClaims(ctx context.Context, limit int) ([]*Entry, error) {
	return s.repo.ListExpiredClaims(ctx, s.now(), limit)
}

func knownStatus(status string) bool {
	switch status {
	case StatusWaiting, StatusNotified, StatusConverted, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

func normalize(slot reservation.Slot) reservation.Slot {
	return reservation.Slot{
		TableID: slot.TableID,
		Date:    reservation.DateOf(slot.Date),
		Start:   slot.Start.UTC(),
		End:     slot.End.UTC(),
	}
}
