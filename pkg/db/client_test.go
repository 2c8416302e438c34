package db_test

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/frahmantamala/table-reservation/pkg/db"
)

type txProbe struct {
	ID   int64
	Name string `gorm:"uniqueIndex"`
}

var _ = Describe("Client", func() {
	var (
		conn   *gorm.DB
		client *db.Client
		ctx    context.Context
	)

	BeforeEach(func() {
		var err error
		conn, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{SkipDefaultTransaction: true})
		Expect(err).NotTo(HaveOccurred())
		Expect(conn.AutoMigrate(&txProbe{})).To(Succeed())
		client = db.FromGorm(conn)
		ctx = context.Background()
	})

	It("commits when fn succeeds and rolls back when it fails", func() {
		Expect(client.WithTx(ctx, func(tx *gorm.DB) error {
			return tx.Create(&txProbe{Name: "committed"}).Error
		})).To(Succeed())

		err := client.WithTx(ctx, func(tx *gorm.DB) error {
			if err := tx.Create(&txProbe{Name: "rolled"}).Error; err != nil {
				return err
			}
			return errors.New("boom")
		})
		Expect(err).To(MatchError("boom"))

		var count int64
		Expect(conn.Model(&txProbe{}).Count(&count).Error).To(Succeed())
		Expect(count).To(Equal(int64(1)))
	})

	It("pings the underlying handle", func() {
		Expect(client.Ping(ctx)).To(Succeed())
	})

	It("detects unique violations from sqlite", func() {
		Expect(conn.Create(&txProbe{Name: "dup"}).Error).To(Succeed())
		err := conn.Create(&txProbe{Name: "dup"}).Error
		Expect(db.IsUniqueViolation(err, "")).To(BeTrue())
		Expect(db.IsExclusionViolation(err)).To(BeFalse())
	})

	It("classifies postgres error codes", func() {
		excl := &pgconn.PgError{Code: "23P01", ConstraintName: "reservations_no_overlap"}
		uniq := &pgconn.PgError{Code: "23505", ConstraintName: "uniq_waitlist_open"}

		Expect(db.IsExclusionViolation(excl)).To(BeTrue())
		Expect(db.IsUniqueViolation(uniq, "uniq_waitlist_open")).To(BeTrue())
		Expect(db.IsUniqueViolation(uniq, "other")).To(BeFalse())
		Expect(db.IsUniqueViolation(nil, "")).To(BeFalse())
	})
})
