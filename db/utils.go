package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

// ErrorDetails appends the postgres detail, hint and position to err.
func ErrorDetails(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		var details []string
		if pgErr.Detail != "" {
			details = append(details, fmt.Sprintf("detail: %s", pgErr.Detail))
		}
		if pgErr.Hint != "" {
			details = append(details, fmt.Sprintf("hint: %s", pgErr.Hint))
		}
		if pgErr.Position != 0 {
			details = append(details, fmt.Sprintf("position: %d", pgErr.Position))
		}
		if len(details) > 0 {
			return fmt.Errorf("%w: %s", err, strings.Join(details, ", "))
		}
	}
	return err
}

func IsDBError(err error) bool {
	if oe, ok := oops.AsOops(err); ok {
		return lo.Contains(oe.Tags(), "db")
	}
	return false
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// ConstraintName returns the violated constraint, if any.
func ConstraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

func IsUniqueViolation(err error) bool {
	return pgCode(err) == pgerrcode.UniqueViolation
}

func IsForeignKeyError(err error) bool {
	return pgCode(err) == pgerrcode.ForeignKeyViolation
}

func IsCheckViolation(err error) bool {
	return pgCode(err) == pgerrcode.CheckViolation
}

func IsDeadlockError(err error) bool {
	code := pgCode(err)
	return code == pgerrcode.DeadlockDetected || code == pgerrcode.SerializationFailure
}
