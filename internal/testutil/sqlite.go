// Package testutil opens throwaway SQLite stores with the full schema for package tests.
package testutil

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/table-reservation/internal/core/datamodel/payment"
	"github.com/frahmantamala/table-reservation/internal/core/datamodel/reservation"
	"github.com/frahmantamala/table-reservation/internal/core/datamodel/restaurant"
	"github.com/frahmantamala/table-reservation/internal/core/datamodel/user"
	"github.com/frahmantamala/table-reservation/internal/core/datamodel/waitlist"
)

// Models lists every persisted type in migration order.
func Models() []interface{} {
	return []interface{}{
		&user.User{},
		&restaurant.Restaurant{},
		&restaurant.Table{},
		&reservation.Reservation{},
		&payment.Payment{},
		&waitlist.Entry{},
	}
}

// NewDB returns an in-memory store pinned to a single connection, so every
// handle sees the same database. Callers must run in-transaction work on tx only.
func NewDB() (*gorm.DB, error) {
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:  gormlogger.New(log.New(io.Discard, "", 0), gormlogger.Config{LogLevel: gormlogger.Silent}),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := conn.AutoMigrate(Models()...); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return conn, nil
}

// NewSharedDB opens a file-backed store under dir with a connection pool, for
// tests that race goroutines against one database. Transactions begin
// IMMEDIATE, so writers queue on the database lock for up to five seconds.
func NewSharedDB(dir string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000", filepath.Join(dir, "shared.db"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormlogger.New(log.New(io.Discard, "", 0), gormlogger.Config{LogLevel: gormlogger.Silent}),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(8)

	if err := conn.AutoMigrate(Models()...); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return conn, nil
}

func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// SeedRestaurant creates a restaurant open 10:00-22:00 charging 10 per seat, 25 for VIP.
func SeedRestaurant(db *gorm.DB) (*restaurant.Restaurant, error) {
	r := &restaurant.Restaurant{
		Name:               "Test Bistro",
		Address:            "1 Test Street",
		NormalPricePerSeat: decimal.NewFromInt(10),
		VIPPricePerSeat:    decimal.NewFromInt(25),
		OpeningTime:        "10:00",
		ClosingTime:        "22:00",
	}
	return r, db.Create(r).Error
}

func SeedTable(db *gorm.DB, restaurantID int64, number int, tableType string, capacity int) (*restaurant.Table, error) {
	t := &restaurant.Table{
		RestaurantID: restaurantID,
		Number:       number,
		TableType:    tableType,
		Capacity:     capacity,
	}
	return t, db.Create(t).Error
}

func SeedUser(db *gorm.DB, email, role string) (*user.User, error) {
	u := &user.User{
		Email:        email,
		Name:         email,
		PasswordHash: "x",
		Role:         role,
		IsActive:     true,
	}
	return u, db.Create(u).Error
}

// Day returns the UTC midnight of a date relative to today.
func Day(offsetDays int) time.Time {
	y, m, d := time.Now().UTC().AddDate(0, 0, offsetDays).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// At returns day + hh:mm in UTC.
func At(day time.Time, hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}
