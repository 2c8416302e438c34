package reservation_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/frahmantamala/table-reservation/internal"
	"github.com/frahmantamala/table-reservation/internal/core/datamodel/restaurant"
	"github.com/frahmantamala/table-reservation/internal/reservation"
	"github.com/frahmantamala/table-reservation/internal/reservation/postgres"
	"github.com/frahmantamala/table-reservation/internal/testutil"
	"github.com/frahmantamala/table-reservation/pkg/db"
)

var _ = Describe("AvailabilityService", func() {
	var (
		conn    *gorm.DB
		search  *reservation.AvailabilityService
		booking *reservation.Service
		rest    *restaurant.Restaurant
		small   *restaurant.Table
		large   *restaurant.Table
		vip     *restaurant.Table
		ctx     context.Context
		date    string
	)

	BeforeEach(func() {
		var err error
		conn, err = testutil.NewDB()
		Expect(err).NotTo(HaveOccurred())
		rest, err = testutil.SeedRestaurant(conn)
		Expect(err).NotTo(HaveOccurred())
		_, err = testutil.SeedTable(conn, rest.ID, 1, restaurant.TableTypeNormal, 2)
		Expect(err).NotTo(HaveOccurred())
		small, err = testutil.SeedTable(conn, rest.ID, 2, restaurant.TableTypeNormal, 4)
		Expect(err).NotTo(HaveOccurred())
		large, err = testutil.SeedTable(conn, rest.ID, 3, restaurant.TableTypeNormal, 8)
		Expect(err).NotTo(HaveOccurred())
		vip, err = testutil.SeedTable(conn, rest.ID, 4, restaurant.TableTypeVIP, 4)
		Expect(err).NotTo(HaveOccurred())

		repo := postgres.NewReservationRepository(conn)
		search = reservation.NewAvailabilityService(repo, time.UTC, testutil.Logger())
		booking = reservation.NewService(db.FromGorm(conn), repo, reservation.Config{}, testutil.Logger())
		ctx = context.Background()
		date = testutil.Day(1).Format(reservation.DateLayout)
	})

	AfterEach(func() {
		sqlDB, _ := conn.DB()
		sqlDB.Close()
	})

	It("filters by rounded-up party size and ranks free, cheap, small tables first", func() {
		day := testutil.Day(1)
		_, err := booking.Create(ctx, reservation.CreateCommand{
			UserID: 1, TableID: small.ID, Date: day,
			Start: testutil.At(day, 12, 0), End: testutil.At(day, 14, 0), GuestCount: 2,
		})
		Expect(err).NotTo(HaveOccurred())

		res, err := search.Search(ctx, reservation.AvailabilityQuery{
			RestaurantID: rest.ID, Date: date, StartTime: "13:00", EndTime: "15:00", NumberOfPeople: 3,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.SeatsNeeded).To(Equal(4))
		Expect(res.Results).To(HaveLen(3))

		Expect(res.Results[0].Table.ID).To(Equal(large.ID))
		Expect(res.Results[0].HasReservation).To(BeFalse())
		Expect(res.Results[0].Price.Equal(decimal.NewFromInt(70))).To(BeTrue())

		Expect(res.Results[1].Table.ID).To(Equal(vip.ID))
		Expect(res.Results[1].SeatPrice.Equal(decimal.NewFromInt(25))).To(BeTrue())
		Expect(res.Results[1].Price.Equal(decimal.NewFromInt(75))).To(BeTrue())

		Expect(res.Results[2].Table.ID).To(Equal(small.ID))
		Expect(res.Results[2].HasReservation).To(BeTrue())
		Expect(res.Results[2].DayReservations).To(HaveLen(1))
	})

	It("defaults to the opening hours of today", func() {
		res, err := search.Search(ctx, reservation.AvailabilityQuery{RestaurantID: rest.ID})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.StartTime).To(Equal("10:00"))
		Expect(res.EndTime).To(Equal("22:00"))
		Expect(res.NumberOfPeople).To(Equal(1))
		Expect(res.Results).To(HaveLen(4))
	})

	It("rejects windows outside opening hours", func() {
		_, err := search.Search(ctx, reservation.AvailabilityQuery{
			RestaurantID: rest.ID, Date: date, StartTime: "08:00", EndTime: "11:00",
		})
		Expect(internal.IsType(err, internal.ErrorTypeValidation)).To(BeTrue())
	})

	It("rejects past dates", func() {
		_, err := search.Search(ctx, reservation.AvailabilityQuery{
			RestaurantID: rest.ID, Date: testutil.Day(-1).Format(reservation.DateLayout),
		})
		Expect(internal.IsType(err, internal.ErrorTypeValidation)).To(BeTrue())
	})

	It("rejects inverted windows", func() {
		_, err := search.Search(ctx, reservation.AvailabilityQuery{
			RestaurantID: rest.ID, Date: date, StartTime: "15:00", EndTime: "13:00",
		})
		Expect(internal.IsType(err, internal.ErrorTypeValidation)).To(BeTrue())
	})

	It("returns not found for unknown restaurants", func() {
		_, err := search.Search(ctx, reservation.AvailabilityQuery{RestaurantID: 404})
		Expect(err).To(MatchError(internal.ErrRestaurantNotFound))
	})
})
