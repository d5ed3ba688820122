// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow the service layer to
// distinguish between different failure scenarios without depending on
// driver-specific error codes.
package repository

import (
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates a unique key, e.g. a
// second order with the same (user, idempotency key).
var ErrDuplicate = errors.New("duplicate")

// ErrEmailExists is returned when registering an already used email.
var ErrEmailExists = errors.New("email already exists")

// ErrTokenSuperseded is returned by token rotation when the presented
// record is no longer the head of its family (it was already rotated or
// the family was revoked in the meantime).
var ErrTokenSuperseded = errors.New("refresh token superseded")

// ErrInsufficientStock is returned by a conditional stock decrement that
// matched no row.
var ErrInsufficientStock = errors.New("insufficient stock")

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own.
var ErrForbidden = errors.New("forbidden")

const mysqlDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
