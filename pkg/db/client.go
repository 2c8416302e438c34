package db

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Options mirrors the database section of the service config.
type Options struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Client wraps the shared GORM connection.
type Client struct {
	conn *gorm.DB
}

// TxRunner is the transaction surface services depend on.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// New opens a Postgres connection through the pgx-backed GORM driver.
func New(ctx context.Context, opts Options, logger *slog.Logger) (*Client, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	conn, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  opts.DSN,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger:                 silentLogger(),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening db connection: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql db handle: %w", err)
	}
	applyPoolSettings(sqlDB, opts)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if logger != nil {
		logger.Info("database connection established")
	}
	return &Client{conn: conn}, nil
}

// FromGorm wraps an already opened connection, e.g. SQLite in tests.
func FromGorm(conn *gorm.DB) *Client {
	return &Client{conn: conn}
}

func silentLogger() gormlogger.Interface {
	return gormlogger.New(
		log.New(io.Discard, "", log.LstdFlags),
		gormlogger.Config{LogLevel: gormlogger.Silent},
	)
}

func applyPoolSettings(sqlDB *sql.DB, opts Options) {
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if opts.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}
}

func (c *Client) DB() *gorm.DB {
	return c.conn
}

// SQL returns the pooled database/sql handle shared with sqlx read models.
func (c *Client) SQL() (*sql.DB, error) {
	return c.conn.DB()
}

func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (c *Client) Close() error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx executes fn inside a transaction, rolling back on error/panic.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	tx := c.conn.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
