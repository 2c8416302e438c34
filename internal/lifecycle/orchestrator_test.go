package lifecycle_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/frahmantamala/table-reservation/internal"
	"github.com/frahmantamala/table-reservation/internal/core/datamodel/restaurant"
	"github.com/frahmantamala/table-reservation/internal/core/events"
	"github.com/frahmantamala/table-reservation/internal/core/user"
	"github.com/frahmantamala/table-reservation/internal/lifecycle"
	"github.com/frahmantamala/table-reservation/internal/payment"
	paymentpg "github.com/frahmantamala/table-reservation/internal/payment/postgres"
	"github.com/frahmantamala/table-reservation/internal/reservation"
	reservationpg "github.com/frahmantamala/table-reservation/internal/reservation/postgres"
	"github.com/frahmantamala/table-reservation/internal/testutil"
	"github.com/frahmantamala/table-reservation/internal/waitlist"
	waitlistpg "github.com/frahmantamala/table-reservation/internal/waitlist/postgres"
	"github.com/frahmantamala/table-reservation/pkg/db"
	"github.com/frahmantamala/table-reservation/pkg/metrics"
)

type recorder struct {
	mu    sync.Mutex
	types []string
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, e.EventType())
	return nil
}

func (r *recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.types...)
}

var _ = Describe("Orchestrator", func() {
	var (
		conn   *gorm.DB
		ctx    context.Context
		now    time.Time
		day    time.Time
		table  *restaurant.Table
		resSvc *reservation.Service
		ledger *payment.Ledger
		wlSvc  *waitlist.Service
		outbox *recorder
		alice  *user.Principal
		bob    *user.Principal
		carol  *user.Principal
		dave   *user.Principal
	)

	clock := func() time.Time { return now }

	build := func(autoConvert bool) *lifecycle.Orchestrator {
		return lifecycle.NewOrchestrator(resSvc, ledger, wlSvc, outbox,
			metrics.NewLifecycleMetrics(prometheus.NewRegistry()),
			lifecycle.Config{AutoConvert: autoConvert, RetryMaxAttempts: 2, RetryBaseDelay: time.Millisecond},
			testutil.Logger())
	}

	book := func(o *lifecycle.Orchestrator, u *user.Principal, startH, endH int) *reservation.Booking {
		b, err := o.CreateReservation(ctx, reservation.CreateCommand{
			UserID:     u.ID,
			TableID:    table.ID,
			Date:       day,
			Start:      testutil.At(day, startH, 0),
			End:        testutil.At(day, endH, 0),
			GuestCount: 2,
		})
		Expect(err).NotTo(HaveOccurred())
		return b
	}

	join := func(o *lifecycle.Orchestrator, u *user.Principal, startH, endH int) *waitlist.Entry {
		e, err := o.JoinWaitlist(ctx, waitlist.JoinCommand{
			UserID:     u.ID,
			TableID:    table.ID,
			Date:       day,
			Start:      testutil.At(day, startH, 0),
			End:        testutil.At(day, endH, 0),
			GuestCount: 2,
		})
		Expect(err).NotTo(HaveOccurred())
		return e
	}

	entry := func(id int64) *waitlist.Entry {
		e, err := wlSvc.Get(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		return e
	}

	res := func(id int64) *reservation.Reservation {
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
		outbox = &recorder{}
		alice = &user.Principal{ID: 1, Role: user.RoleCustomer}
		bob = &user.Principal{ID: 2, Role: user.RoleCustomer}
		carol = &user.Principal{ID: 3, Role: user.RoleCustomer}
		dave = &user.Principal{ID: 4, Role: user.RoleCustomer}

		tx := db.FromGorm(conn)
		resSvc = reservation.NewService(tx, reservationpg.NewReservationRepository(conn),
			reservation.Config{PaymentGracePeriod: 15 * time.Minute}, testutil.Logger()).WithClock(clock)
		ledger = payment.NewLedger(tx, paymentpg.NewPaymentRepository(conn), nil, resSvc, testutil.Logger()).
			WithClock(clock)
		wlSvc = waitlist.NewService(tx, waitlistpg.NewWaitlistRepository(conn), resSvc,
			waitlist.Config{ClaimWindow: 30 * time.Minute}, testutil.Logger()).WithClock(clock)
	})

	AfterEach(func() {
		sqlDB, _ := conn.DB()
		sqlDB.Close()
	})

	Describe("CancelReservation", func() {
		It("hands the slot to the first overlapping waiter and leaves others alone", func() {
			o := build(true)
			a := book(o, alice, 12, 14)
			b := join(o, bob, 12, 14)
			c := join(o, carol, 18, 20)

			_, err := o.CancelReservation(ctx, a.Reservation.ID, alice, "plans changed")
			Expect(err).NotTo(HaveOccurred())

			converted := entry(b.ID)
			Expect(converted.Status).To(Equal(waitlist.StatusConverted))
			Expect(converted.ReservationID).NotTo(BeNil())

			r := res(*converted.ReservationID)
			Expect(r.UserID).To(Equal(bob.ID))
			Expect(r.Status).To(Equal(reservation.StatusPending))
			Expect(r.PaymentDeadline).NotTo(BeNil())
			Expect(r.PaymentDeadline.Sub(now)).To(BeNumerically("~", 30*time.Minute, time.Second))

			Expect(entry(c.ID).Status).To(Equal(waitlist.StatusWaiting))

			p, err := ledger.Get(ctx, a.Payment.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Status).To(Equal(payment.StatusFailed))

			Expect(outbox.Types()).To(ContainElements(
				"reservation.cancelled", "slot.freed", "waitlist.notified", "waitlist.converted"))
		})

		It("notifies the earlier of two waiters when auto-convert is off", func() {
			o := build(false)
			a := book(o, alice, 12, 14)
			c := join(o, carol, 12, 14)
			d := join(o, dave, 13, 15)

			_, err := o.CancelReservation(ctx, a.Reservation.ID, alice, "")
			Expect(err).NotTo(HaveOccurred())

			notified := entry(c.ID)
			Expect(notified.Status).To(Equal(waitlist.StatusNotified))
			Expect(notified.PaymentDeadline).NotTo(BeNil())
			Expect(entry(d.ID).Status).To(Equal(waitlist.StatusWaiting))
		})

		It("leaves the entry notified when the slot was retaken", func() {
			o := build(true)
			a := book(o, alice, 12, 14)
			b := join(o, bob, 11, 13)
			book(o, dave, 10, 12)

			_, err := o.CancelReservation(ctx, a.Reservation.ID, alice, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(entry(b.ID).Status).To(Equal(waitlist.StatusNotified))
		})

		It("rejects a second cancellation without promoting again", func() {
			o := build(false)
			a := book(o, alice, 12, 14)
			_, err := o.CancelReservation(ctx, a.Reservation.ID, alice, "")
			Expect(err).NotTo(HaveOccurred())
			_, err = o.CancelReservation(ctx, a.Reservation.ID, alice, "")
			Expect(err).To(MatchError(internal.ErrInvalidReservationState))
		})
	})

	Describe("VerifyPayment", func() {
		It("confirms on time", func() {
			o := build(true)
			a := book(o, alice, 12, 14)
			result, err := o.VerifyPayment(ctx, a.Payment.ID, "bank-1", alice)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Reservation.Status).To(Equal(reservation.StatusConfirmed))
			Expect(outbox.Types()).To(ContainElements("payment.verified", "reservation.confirmed"))
		})

		It("releases the slot to the waitlist when the payment is late", func() {
			o := build(false)
			a := book(o, alice, 12, 14)
			b := join(o, bob, 12, 14)

			now = now.Add(16 * time.Minute)
			_, err := o.VerifyPayment(ctx, a.Payment.ID, "", alice)
			Expect(err).To(MatchError(internal.ErrPaymentDeadlineExpired))

			Expect(res(a.Reservation.ID).Status).To(Equal(reservation.StatusExpired))
			Expect(entry(b.ID).Status).To(Equal(waitlist.StatusNotified))
		})
	})

	Describe("ClaimWaitlist", func() {
		It("passes an expired claim to the next waiter", func() {
			o := build(false)
			a := book(o, alice, 12, 14)
			b := join(o, bob, 12, 14)
			c := join(o, carol, 12, 14)
			_, err := o.CancelReservation(ctx, a.Reservation.ID, alice, "")
			Expect(err).NotTo(HaveOccurred())

			now = now.Add(31 * time.Minute)
			_, err = o.ClaimWaitlist(ctx, b.ID, bob)
			Expect(err).To(MatchError(internal.ErrClaimDeadlineExpired))
			Expect(entry(b.ID).Status).To(Equal(waitlist.StatusExpired))
			Expect(entry(c.ID).Status).To(Equal(waitlist.StatusNotified))
		})

		It("converts within the claim window", func() {
			o := build(false)
			a := book(o, alice, 12, 14)
			b := join(o, bob, 12, 14)
			_, err := o.CancelReservation(ctx, a.Reservation.ID, alice, "")
			Expect(err).NotTo(HaveOccurred())

			conv, err := o.ClaimWaitlist(ctx, b.ID, bob)
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Booking.Reservation.UserID).To(Equal(bob.ID))
			Expect(outbox.Types()).To(ContainElement("reservation.created"))
		})
	})

	Describe("sweeps", func() {
		It("expires a stale pending reservation and promotes a waiter", func() {
			o := build(false)
			a := book(o, alice, 12, 14)
			b := join(o, bob, 12, 14)

			now = now.Add(16 * time.Minute)
			stale, err := o.ListExpiredPending(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(stale).To(HaveLen(1))

			Expect(o.ExpireReservation(ctx, stale[0].ID)).To(Succeed())
			Expect(res(a.Reservation.ID).Status).To(Equal(reservation.StatusExpired))
			Expect(entry(b.ID).Status).To(Equal(waitlist.StatusNotified))

			p, err := ledger.Get(ctx, a.Payment.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Status).To(Equal(payment.StatusFailed))

			By("running the same item again")
			Expect(o.ExpireReservation(ctx, stale[0].ID)).To(Succeed())
		})

		It("cascades an expired claim to the next waiter", func() {
			o := build(false)
			a := book(o, alice, 12, 14)
			b := join(o, bob, 12, 14)
			c := join(o, carol, 12, 14)
			_, err := o.CancelReservation(ctx, a.Reservation.ID, alice, "")
			Expect(err).NotTo(HaveOccurred())

			now = now.Add(31 * time.Minute)
			lapsed, err := o.ListExpiredClaims(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(lapsed).To(HaveLen(1))
			Expect(lapsed[0].ID).To(Equal(b.ID))

			Expect(o.ExpireClaim(ctx, b.ID)).To(Succeed())
			Expect(entry(b.ID).Status).To(Equal(waitlist.StatusExpired))
			Expect(entry(c.ID).Status).To(Equal(waitlist.StatusNotified))
		})

		It("completes confirmed reservations once they end", func() {
			o := build(false)
			a := book(o, alice, 12, 14)
			_, err := o.VerifyPayment(ctx, a.Payment.ID, "", alice)
			Expect(err).NotTo(HaveOccurred())

			now = testutil.At(day, 15, 0)
			done, err := o.ListCompletable(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(done).To(HaveLen(1))
			Expect(o.CompleteReservation(ctx, done[0].ID)).To(Succeed())
			Expect(res(a.Reservation.ID).Status).To(Equal(reservation.StatusCompleted))
		})
	})
})
