package postgres

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrWong99/frameingest/pkg/profilestore"
)

// classify wraps err in a *profilestore.Error with a Reason derived from the
// SQLSTATE class or the transport failure.
func classify(op string, fid int64, err error) error {
	return &profilestore.Error{Op: op, Reason: reasonFor(err), FID: fid, Err: err}
}

func reasonFor(err error) profilestore.Reason {
	if errors.Is(err, pgx.ErrNoRows) {
		return profilestore.ReasonNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return reasonForSQLState(pgErr.Code)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return profilestore.ReasonConnectivity
	}
	if pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return profilestore.ReasonConnectivity
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return profilestore.ReasonConnectivity
	}
	return profilestore.ReasonUnknown
}

// reasonForSQLState maps a PostgreSQL error code to a Reason.
// See https://www.postgresql.org/docs/current/errcodes-appendix.html.
func reasonForSQLState(code string) profilestore.Reason {
	switch {
	case strings.HasPrefix(code, "23"): // integrity constraint violation
		return profilestore.ReasonConstraint
	case strings.HasPrefix(code, "22"): // data exception
		return profilestore.ReasonSerialization
	case strings.HasPrefix(code, "08"), // connection exception
		strings.HasPrefix(code, "57P"), // operator intervention (shutdown)
		code == "53300":                // too many connections
		return profilestore.ReasonConnectivity
	default:
		return profilestore.ReasonUnknown
	}
}
