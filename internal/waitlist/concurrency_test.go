package waitlist_test

import (
	"context"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/table-reservation/internal/core/datamodel/restaurant"
	"github.com/frahmantamala/table-reservation/internal/reservation"
	reservationpg "github.com/frahmantamala/table-reservation/internal/reservation/postgres"
	"github.com/frahmantamala/table-reservation/internal/testutil"
	"github.com/frahmantamala/table-reservation/internal/waitlist"
	waitlistpg "github.com/frahmantamala/table-reservation/internal/waitlist/postgres"
	"github.com/frahmantamala/table-reservation/pkg/db"
)

var _ = Describe("Service with concurrent joins", func() {
	It("hands out each bucket position exactly once", func() {
		dir, err := os.MkdirTemp("", "waitlist-race")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, dir)

		conn, err := testutil.NewSharedDB(dir)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() {
			sqlDB, _ := conn.DB()
			sqlDB.Close()
		})

		rest, err := testutil.SeedRestaurant(conn)
		Expect(err).NotTo(HaveOccurred())
		table, err := testutil.SeedTable(conn, rest.ID, 1, restaurant.TableTypeNormal, 4)
		Expect(err).NotTo(HaveOccurred())

		tx := db.FromGorm(conn)
		resSvc := reservation.NewService(tx, reservationpg.NewReservationRepository(conn),
			reservation.Config{PaymentGracePeriod: 15 * time.Minute}, testutil.Logger())
		svc := waitlist.NewService(tx, waitlistpg.NewWaitlistRepository(conn), resSvc,
			waitlist.Config{ClaimWindow: 30 * time.Minute}, testutil.Logger())

		day := testutil.Day(1)
		const joiners = 8

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			positions []int
			failures  []error
		)
		for i := 0; i < joiners; i++ {
			wg.Add(1)
			go func(userID int64) {
				defer GinkgoRecover()
				defer wg.Done()
				e, err := svc.Join(context.Background(), waitlist.JoinCommand{
					UserID:     userID,
					TableID:    table.ID,
					Date:       day,
					Start:      testutil.At(day, 12, 0),
					End:        testutil.At(day, 14, 0),
					GuestCount: 2,
				})
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failures = append(failures, err)
					return
				}
				positions = append(positions, e.Position)
			}(int64(100 + i))
		}
		wg.Wait()

		Expect(failures).To(BeEmpty())
		Expect(positions).To(ConsistOf(1, 2, 3, 4, 5, 6, 7, 8))
	})
})
