package payment_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/frahmantamala/table-reservation/internal"
	"github.com/frahmantamala/table-reservation/internal/core/datamodel/restaurant"
	"github.com/frahmantamala/table-reservation/internal/core/user"
	"github.com/frahmantamala/table-reservation/internal/payment"
	paymentpg "github.com/frahmantamala/table-reservation/internal/payment/postgres"
	"github.com/frahmantamala/table-reservation/internal/reservation"
	reservationpg "github.com/frahmantamala/table-reservation/internal/reservation/postgres"
	"github.com/frahmantamala/table-reservation/internal/testutil"
	"github.com/frahmantamala/table-reservation/pkg/db"
)

type fakeGateway struct {
	mu      sync.Mutex
	seq     int
	charges []payment.Charge
	err     error
}

func (g *fakeGateway) NewRef() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("ref-%d", g.seq)
}

func (g *fakeGateway) Submit(_ context.Context, c payment.Charge) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.charges = append(g.charges, c)
	return nil
}

var _ = Describe("Ledger", func() {
	var (
		conn    *gorm.DB
		ctx     context.Context
		now     time.Time
		day     time.Time
		table   *restaurant.Table
		resSvc  *reservation.Service
		ledger  *payment.Ledger
		gateway *fakeGateway
		owner   *user.Principal
		other   *user.Principal
		staff   *user.Principal
		booking *reservation.Booking
	)

	clock := func() time.Time { return now }

	reload := func(id int64) *reservation.Reservation {
		r, err := resSvc.Get(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		return r
	}

	BeforeEach(func() {
		var err error
		conn, err = testutil.NewDB()
		Expect(err).NotTo(HaveOccurred())
		rest, err := testutil.SeedRestaurant(conn)
		Expect(err).NotTo(HaveOccurred())
		table, err = testutil.SeedTable(conn, rest.ID, 1, restaurant.TableTypeNormal, 4)
		Expect(err).NotTo(HaveOccurred())

		ctx = context.Background()
		now = time.Now().UTC()
		day = testutil.Day(1)
		owner = &user.Principal{ID: 1, Role: user.RoleCustomer}
		other = &user.Principal{ID: 2, Role: user.RoleCustomer}
		staff = &user.Principal{ID: 3, Role: user.RoleStaff}

		tx := db.FromGorm(conn)
		resSvc = reservation.NewService(tx, reservationpg.NewReservationRepository(conn),
			reservation.Config{PaymentGracePeriod: 15 * time.Minute}, testutil.Logger()).WithClock(clock)

		sqlDB, err := conn.DB()
		Expect(err).NotTo(HaveOccurred())
		gateway = &fakeGateway{}
		ledger = payment.NewLedger(tx, paymentpg.NewPaymentRepository(conn),
			paymentpg.NewHistoryReader(sqlx.NewDb(sqlDB, "sqlite3")), resSvc, testutil.Logger()).
			WithClock(clock).
			WithGateway(gateway)

		booking, err = resSvc.Create(ctx, reservation.CreateCommand{
			UserID:     owner.ID,
			TableID:    table.ID,
			Date:       day,
			Start:      testutil.At(day, 12, 0),
			End:        testutil.At(day, 14, 0),
			GuestCount: 2,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		sqlDB, _ := conn.DB()
		sqlDB.Close()
	})

	Describe("Verify", func() {
		It("verifies the payment and confirms the reservation together", func() {
			res, err := ledger.Verify(ctx, booking.Payment.ID, "bank-123", owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Payment.Status).To(Equal(payment.StatusVerified))
			Expect(res.Payment.VerifiedAt).NotTo(BeNil())
			Expect(*res.Payment.RefID).To(Equal("bank-123"))
			Expect(res.Reservation.Status).To(Equal(reservation.StatusConfirmed))

			stored, err := ledger.Get(ctx, booking.Payment.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(payment.StatusVerified))
			Expect(reload(booking.Reservation.ID).Status).To(Equal(reservation.StatusConfirmed))
		})

		It("rejects a second verification without touching the reservation", func() {
			_, err := ledger.Verify(ctx, booking.Payment.ID, "", owner)
			Expect(err).NotTo(HaveOccurred())

			_, err = ledger.Verify(ctx, booking.Payment.ID, "", owner)
			Expect(err).To(MatchError(internal.ErrInvalidPaymentState))
			Expect(reload(booking.Reservation.ID).Status).To(Equal(reservation.StatusConfirmed))
		})

		It("expires the reservation and fails the payment after the deadline", func() {
			now = now.Add(16 * time.Minute)

			res, err := ledger.Verify(ctx, booking.Payment.ID, "", owner)
			Expect(err).To(MatchError(internal.ErrPaymentDeadlineExpired))
			Expect(res.Payment.Status).To(Equal(payment.StatusFailed))

			stored, err := ledger.Get(ctx, booking.Payment.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(payment.StatusFailed))
			Expect(*stored.FailureReason).To(Equal("payment deadline expired"))
			Expect(reload(booking.Reservation.ID).Status).To(Equal(reservation.StatusExpired))
		})

		It("hides other customers' payments", func() {
			_, err := ledger.Verify(ctx, booking.Payment.ID, "", other)
			Expect(err).To(MatchError(internal.ErrPaymentNotFound))
			Expect(reload(booking.Reservation.ID).Status).To(Equal(reservation.StatusPending))
		})

		It("lets staff verify on behalf of a customer", func() {
			_, err := ledger.Verify(ctx, booking.Payment.ID, "", staff)
			Expect(err).NotTo(HaveOccurred())
		})

		It("leaves the payment pending when the reservation was cancelled", func() {
			_, err := resSvc.Cancel(ctx, booking.Reservation.ID, owner, "")
			Expect(err).NotTo(HaveOccurred())

			_, err = ledger.Verify(ctx, booking.Payment.ID, "", owner)
			Expect(err).To(MatchError(internal.ErrInvalidReservationState))

			stored, err := ledger.Get(ctx, booking.Payment.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(payment.StatusPending))
		})
	})

	Describe("Fail", func() {
		It("fails a pending payment and leaves the reservation pending", func() {
			p, err := ledger.Fail(ctx, booking.Payment.ID, "card declined")
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Status).To(Equal(payment.StatusFailed))
			Expect(*p.FailureReason).To(Equal("card declined"))
			Expect(reload(booking.Reservation.ID).Status).To(Equal(reservation.StatusPending))

			_, err = ledger.Fail(ctx, booking.Payment.ID, "again")
			Expect(err).To(MatchError(internal.ErrInvalidPaymentState))
		})
	})

	Describe("Retry", func() {
		It("opens a new attempt once the last one failed", func() {
			_, err := ledger.Retry(ctx, booking.Reservation.ID, owner)
			Expect(err).To(MatchError(internal.ErrInvalidPaymentState))

			_, err = ledger.Fail(ctx, booking.Payment.ID, "declined")
			Expect(err).NotTo(HaveOccurred())

			p, err := ledger.Retry(ctx, booking.Reservation.ID, owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.ID).NotTo(Equal(booking.Payment.ID))
			Expect(p.Status).To(Equal(payment.StatusPending))
			Expect(p.Amount.Equal(booking.Reservation.Price)).To(BeTrue())

			_, err = ledger.Verify(ctx, p.ID, "", owner)
			Expect(err).NotTo(HaveOccurred())
		})

		It("refuses after the deadline", func() {
			_, err := ledger.Fail(ctx, booking.Payment.ID, "declined")
			Expect(err).NotTo(HaveOccurred())
			now = now.Add(time.Hour)

			_, err = ledger.Retry(ctx, booking.Reservation.ID, owner)
			Expect(err).To(MatchError(internal.ErrPaymentDeadlineExpired))
		})

		It("hides other customers' reservations", func() {
			_, err := ledger.Retry(ctx, booking.Reservation.ID, other)
			Expect(err).To(MatchError(internal.ErrReservationNotFound))
		})
	})

	Describe("VoidPending", func() {
		It("fails every pending attempt once", func() {
			n, err := ledger.VoidPending(ctx, booking.Reservation.ID, "reservation cancelled")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))

			n, err = ledger.VoidPending(ctx, booking.Reservation.ID, "reservation cancelled")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
		})
	})

	Describe("Checkout", func() {
		It("assigns a reference once and submits the charge", func() {
			p, err := ledger.Checkout(ctx, booking.Payment.ID, owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(*p.RefID).To(Equal("ref-1"))

			p, err = ledger.Checkout(ctx, booking.Payment.ID, owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(*p.RefID).To(Equal("ref-1"))

			Expect(gateway.charges).To(HaveLen(2))
			Expect(gateway.charges[0].Amount.Equal(booking.Payment.Amount)).To(BeTrue())

			byRef, err := ledger.GetByRef(ctx, "ref-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(byRef.ID).To(Equal(booking.Payment.ID))
		})

		It("surfaces a full gateway queue", func() {
			gateway.err = internal.ErrGatewayBusy
			_, err := ledger.Checkout(ctx, booking.Payment.ID, owner)
			Expect(err).To(MatchError(internal.ErrGatewayBusy))
		})
	})

	Describe("History", func() {
		BeforeEach(func() {
			_, err := resSvc.Create(ctx, reservation.CreateCommand{
				UserID:     other.ID,
				TableID:    table.ID,
				Date:       day,
				Start:      testutil.At(day, 18, 0),
				End:        testutil.At(day, 20, 0),
				GuestCount: 3,
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("scopes customers to their own payments", func() {
			items, total, err := ledger.History(ctx, owner, payment.HistoryFilter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(int64(1)))
			Expect(items[0].UserID).To(Equal(owner.ID))
		})

		It("shows staff everything", func() {
			_, total, err := ledger.History(ctx, staff, payment.HistoryFilter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(int64(2)))
		})

		It("rejects unknown orderings", func() {
			_, _, err := ledger.History(ctx, staff, payment.HistoryFilter{Ordering: "-user_id"})
			Expect(internal.IsType(err, internal.ErrorTypeValidation)).To(BeTrue())
		})

		It("hides another customer's detail", func() {
			_, err := ledger.Detail(ctx, booking.Payment.ID, other)
			Expect(err).To(MatchError(internal.ErrPaymentNotFound))

			item, err := ledger.Detail(ctx, booking.Payment.ID, owner)
			Expect(err).NotTo(HaveOccurred())
			Expect(item.ReservationID).To(Equal(booking.Reservation.ID))
		})
	})
})
