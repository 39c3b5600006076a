package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/lib/pq"
	"github.com/npezzotti/go-notify/internal/apperr"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// constraintFields maps unique constraints to the request field they guard.
var constraintFields = map[string]string{
	"channels_identifier_lowercase_key": "identifier",
	"memberships_pkey":                  "user_ids",
}

// translateError maps driver errors onto the apperr taxonomy. Errors that
// already carry a kind are returned unchanged.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}

	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("not found")
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return apperr.Unavailable("datastore unavailable", err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code == uniqueViolation {
			field := constraintFields[pqErr.Constraint]
			return apperr.Conflict(field, duplicateMessage(field), err)
		}
		if pqErr.Code == foreignKeyViolation {
			return apperr.Validation("user_ids", "unknown user")
		}
		if isRetryableCode(pqErr.Code) {
			return apperr.Unavailable("datastore unavailable", err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperr.Unavailable("datastore unavailable", err)
	}

	return err
}

func duplicateMessage(field string) string {
	switch field {
	case "identifier":
		return "identifier belongs to another channel"
	case "user_ids":
		return "user is already a member of the channel"
	}
	return "duplicate key"
}

// isRetryableCode reports whether the SQLSTATE describes a transient
// condition: connection exceptions, insufficient resources, operator
// intervention, serialization failures and deadlocks.
func isRetryableCode(code pq.ErrorCode) bool {
	c := string(code)
	switch {
	case strings.HasPrefix(c, "08"), strings.HasPrefix(c, "53"), strings.HasPrefix(c, "57"):
		return true
	case c == "40001", c == "40P01":
		return true
	}
	return false
}
