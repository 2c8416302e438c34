package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation    = "23505"
	pgExclusionViolation = "23P01"
)

// IsUniqueViolation reports a unique constraint failure from Postgres or SQLite.
// When constraintName is set only that constraint matches.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolation {
			return false
		}
		return constraintName == "" || pgErr.ConstraintName == constraintName
	}
	msg := err.Error()
	if constraintName != "" && !strings.Contains(msg, constraintName) {
		return false
	}
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
}

// IsExclusionViolation reports a Postgres exclusion constraint failure, which is
// how overlapping active reservations surface when the GiST constraint fires.
func IsExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation
}
