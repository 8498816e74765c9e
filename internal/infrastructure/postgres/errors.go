package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/baechuer/artfront/services/visitor-state/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE classes that mean the database, not the statement, is at fault.
var transientClasses = map[string]bool{
	"08": true, // connection exception
	"40": true, // transaction rollback (serialization, deadlock)
	"53": true, // insufficient resources
	"57": true, // operator intervention (shutdown, cancel)
	"58": true, // system error
}

// wrapErr marks store outages as transient so callers can retry them.
// Statement failures such as constraint violations stay plain errors.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isTransient(err) {
		return domain.Transient(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return len(pgErr.Code) >= 2 && transientClasses[pgErr.Code[:2]]
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
