package waitlist_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/frahmantamala/table-reservation/internal"
	"github.com/frahmantamala/table-reservation/internal/core/datamodel/restaurant"
	"github.com/frahmantamala/table-reservation/internal/core/user"
	"github.com/frahmantamala/table-reservation/internal/reservation"
	reservationpg "github.com/frahmantamala/table-reservation/internal/reservation/postgres"
	"github.com/frahmantamala/table-reservation/internal/testutil"
	"github.com/frahmantamala/table-reservation/internal/waitlist"
	waitlistpg "github.com/frahmantamala/table-reservation/internal/waitlist/postgres"
	"github.com/frahmantamala/table-reservation/pkg/db"
)

var _ = Describe("Service", func() {
	var (
		conn   *gorm.DB
		ctx    context.Context
		now    time.Time
		day    time.Time
		table  *restaurant.Table
		resSvc *reservation.Service
		svc    *waitlist.Service
		alice  *user.Principal
		bob    *user.Principal
	)

	clock := func() time.Time { return now }

	join := func(u *user.Principal, startH, endH, guests int) (*waitlist.Entry, error) {
		return svc.Join(ctx, waitlist.JoinCommand{
			UserID:     u.ID,
			TableID:    table.ID,
			Date:       day,
			Start:      testutil.At(day, startH, 0),
			End:        testutil.At(day, endH, 0),
			GuestCount: guests,
		})
	}

	book := func(u *user.Principal, startH, endH int) *reservation.Booking {
		b, err := resSvc.Create(ctx, reservation.CreateCommand{
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

	slot := func(startH, endH int) reservation.Slot {
		return reservation.Slot{TableID: table.ID, Date: day, Start: testutil.At(day, startH, 0), End: testutil.At(day, endH, 0)}
	}

	reload := func(id int64) *waitlist.Entry {
		e, err := svc.Get(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		return e
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
		alice = &user.Principal{ID: 1, Role: user.RoleCustomer}
		bob = &user.Principal{ID: 2, Role: user.RoleCustomer}

		tx := db.FromGorm(conn)
		resSvc = reservation.NewService(tx, reservationpg.NewReservationRepository(conn),
			reservation.Config{PaymentGracePeriod: 15 * time.Minute}, testutil.Logger()).WithClock(clock)
		svc = waitlist.NewService(tx, waitlistpg.NewWaitlistRepository(conn), resSvc,
			waitlist.Config{ClaimWindow: 30 * time.Minute}, testutil.Logger()).WithClock(clock)
	})

	AfterEach(func() {
		sqlDB, _ := conn.DB()
		sqlDB.Close()
	})

	Describe("Join", func() {
		It("assigns increasing positions per bucket", func() {
			a, err := join(alice, 12, 14, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Position).To(Equal(1))
			Expect(a.Status).To(Equal(waitlist.StatusWaiting))

			b, err := join(bob, 12, 14, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(b.Position).To(Equal(2))

			other, err := join(bob, 18, 20, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(other.Position).To(Equal(1))
		})

		It("never reuses a position after a cancellation", func() {
			a, err := join(alice, 12, 14, 2)
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.Cancel(ctx, a.ID, alice)
			Expect(err).NotTo(HaveOccurred())

			again, err := join(alice, 12, 14, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Position).To(Equal(2))
		})

		It("rejects a duplicate open entry", func() {
			_, err := join(alice, 12, 14, 2)
			Expect(err).NotTo(HaveOccurred())
			_, err = join(alice, 12, 14, 3)
			Expect(err).To(MatchError(internal.ErrDuplicateWaiter))
		})

		It("rejects parties larger than the table", func() {
			_, err := join(alice, 12, 14, 5)
			Expect(err).To(MatchError(internal.ErrCapacityExceeded))
		})

		It("rejects an inverted window", func() {
			_, err := join(alice, 14, 12, 2)
			Expect(internal.IsType(err, internal.ErrorTypeValidation)).To(BeTrue())
		})

		It("rejects an unknown table", func() {
			_, err := svc.Join(ctx, waitlist.JoinCommand{
				UserID: alice.ID, TableID: 999, Date: day,
				Start: testutil.At(day, 12, 0), End: testutil.At(day, 14, 0), GuestCount: 2,
			})
			Expect(err).To(MatchError(internal.ErrTableNotFound))
		})
	})

	Describe("Cancel", func() {
		It("hides the entry from other customers", func() {
			a, err := join(alice, 12, 14, 2)
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.Cancel(ctx, a.ID, bob)
			Expect(err).To(MatchError(internal.ErrWaitlistNotFound))
		})

		It("only cancels waiting entries", func() {
			a, err := join(alice, 12, 14, 2)
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.Promote(ctx, slot(12, 14))
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Cancel(ctx, a.ID, alice)
			Expect(err).To(MatchError(internal.ErrInvalidWaitlistState))
		})
	})

	Describe("Promote", func() {
		It("returns nothing when nobody waits", func() {
			e, err := svc.Promote(ctx, slot(12, 14))
			Expect(err).NotTo(HaveOccurred())
			Expect(e).To(BeNil())
		})

		It("notifies the earliest overlapping waiter and leaves the rest", func() {
			first, err := join(alice, 13, 15, 2)
			Expect(err).NotTo(HaveOccurred())
			second, err := join(bob, 12, 14, 2)
			Expect(err).NotTo(HaveOccurred())
			elsewhere, err := join(bob, 18, 20, 2)
			Expect(err).NotTo(HaveOccurred())

			e, err := svc.Promote(ctx, slot(12, 14))
			Expect(err).NotTo(HaveOccurred())
			Expect(e.ID).To(Equal(first.ID))
			Expect(e.Status).To(Equal(waitlist.StatusNotified))
			Expect(e.NotifiedAt).NotTo(BeNil())
			Expect(e.PaymentDeadline.Sub(now)).To(Equal(30 * time.Minute))

			Expect(reload(second.ID).Status).To(Equal(waitlist.StatusWaiting))
			Expect(reload(elsewhere.ID).Status).To(Equal(waitlist.StatusWaiting))

			next, err := svc.Promote(ctx, slot(12, 14))
			Expect(err).NotTo(HaveOccurred())
			Expect(next.ID).To(Equal(second.ID))
		})

		It("ignores windows that only touch the freed slot", func() {
			_, err := join(alice, 14, 16, 2)
			Expect(err).NotTo(HaveOccurred())

			e, err := svc.FindFirstWaiting(ctx, slot(12, 14))
			Expect(err).NotTo(HaveOccurred())
			Expect(e).To(BeNil())
		})
	})

	Describe("Convert", func() {
		var blocker *reservation.Booking

		BeforeEach(func() {
			blocker = book(bob, 12, 14)
		})

		It("creates a pending reservation carrying the claim deadline", func() {
			a, err := join(alice, 12, 14, 2)
			Expect(err).NotTo(HaveOccurred())
			_, err = resSvc.Cancel(ctx, blocker.Reservation.ID, bob, "changed plans")
			Expect(err).NotTo(HaveOccurred())
			promoted, err := svc.Promote(ctx, slot(12, 14))
			Expect(err).NotTo(HaveOccurred())

			now = now.Add(10 * time.Minute)
			conv, err := svc.Convert(ctx, a.ID, alice)
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Entry.Status).To(Equal(waitlist.StatusConverted))
			Expect(*conv.Entry.ReservationID).To(Equal(conv.Booking.Reservation.ID))

			r := conv.Booking.Reservation
			Expect(r.Status).To(Equal(reservation.StatusPending))
			Expect(r.UserID).To(Equal(alice.ID))
			Expect(r.PaymentDeadline.Equal(*promoted.PaymentDeadline)).To(BeTrue())
			Expect(conv.Booking.Payment).NotTo(BeNil())

			stored := reload(a.ID)
			Expect(stored.Status).To(Equal(waitlist.StatusConverted))
			Expect(stored.ReservationID).NotTo(BeNil())
		})

		It("keeps the entry notified when the slot is still taken", func() {
			a, err := join(alice, 12, 14, 2)
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.Promote(ctx, slot(12, 14))
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Convert(ctx, a.ID, alice)
			Expect(err).To(MatchError(internal.ErrSlotTaken))
			Expect(reload(a.ID).Status).To(Equal(waitlist.StatusNotified))
		})

		It("expires the entry once the claim window has passed", func() {
			a, err := join(alice, 12, 14, 2)
			Expect(err).NotTo(HaveOccurred())
			_, err = resSvc.Cancel(ctx, blocker.Reservation.ID, bob, "")
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.Promote(ctx, slot(12, 14))
			Expect(err).NotTo(HaveOccurred())

			now = now.Add(31 * time.Minute)
			_, err = svc.Convert(ctx, a.ID, alice)
			Expect(err).To(MatchError(internal.ErrClaimDeadlineExpired))
			Expect(reload(a.ID).Status).To(Equal(waitlist.StatusExpired))
		})

		It("refuses entries that were never promoted", func() {
			a, err := join(alice, 12, 14, 2)
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.Convert(ctx, a.ID, alice)
			Expect(err).To(MatchError(internal.ErrInvalidWaitlistState))
		})
	})

	Describe("Expire", func() {
		It("only expires lapsed claims, once", func() {
			a, err := join(alice, 12, 14, 2)
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.Promote(ctx, slot(12, 14))
			Expect(err).NotTo(HaveOccurred())

			_, _, err = svc.Expire(ctx, a.ID)
			Expect(err).To(MatchError(internal.ErrInvalidWaitlistState))

			now = now.Add(31 * time.Minute)
			lapsed, err := svc.ListExpiredClaims(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(lapsed).To(HaveLen(1))

			e, changed, err := svc.Expire(ctx, a.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(changed).To(BeTrue())
			Expect(e.Status).To(Equal(waitlist.StatusExpired))

			_, changed, err = svc.Expire(ctx, a.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(changed).To(BeFalse())
		})
	})

	Describe("ListForUser", func() {
		It("pages the caller's entries", func() {
			_, err := join(alice, 12, 14, 2)
			Expect(err).NotTo(HaveOccurred())
			_, err = join(alice, 18, 20, 2)
			Expect(err).NotTo(HaveOccurred())
			_, err = join(bob, 12, 14, 2)
			Expect(err).NotTo(HaveOccurred())

			entries, total, err := svc.ListForUser(ctx, alice.ID, "", 1, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(int64(2)))
			Expect(entries).To(HaveLen(1))

			_, _, err = svc.ListForUser(ctx, alice.ID, "bogus", 10, 0)
			Expect(internal.IsType(err, internal.ErrorTypeValidation)).To(BeTrue())
		})
	})
})
