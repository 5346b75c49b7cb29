package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"lendus/pkg/platform/sentinel"
)

// SQLSTATE codes the stores react to.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// sqlState extracts the SQLSTATE from either supported driver.
func sqlState(err error) (code, constraint string, ok bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint, true
	}
	return "", "", false
}

// IsUniqueViolation reports a unique/exclusion index rejection.
func IsUniqueViolation(err error) bool {
	code, _, ok := sqlState(err)
	return ok && code == codeUniqueViolation
}

// IsRetryable reports serialization failures, deadlocks and lock timeouts,
// all of which abort the transaction without partial effect.
func IsRetryable(err error) bool {
	code, _, ok := sqlState(err)
	if !ok {
		return false
	}
	switch code {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return true
	}
	return false
}

// ConstraintName returns the violated constraint, if the driver reported one.
func ConstraintName(err error) string {
	_, name, _ := sqlState(err)
	return name
}

// Classify maps driver errors onto store sentinels: unique violations become
// sentinel.ErrUniqueViolation, aborted transactions sentinel.ErrConflict. The
// driver error stays in the chain for logging.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case IsUniqueViolation(err):
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUniqueViolation, err)
	case IsRetryable(err):
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrConflict, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
