// Package postgres implements a Postgres-backed gate sample repository.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/vshulcz/Gatecounter/internal/domain"
	"github.com/vshulcz/Gatecounter/internal/misc"
	"github.com/vshulcz/Gatecounter/internal/ports"
)

// Repo persists gate samples in Postgres with retryable operations.
type Repo struct {
	db *sql.DB
}

var _ ports.SampleRepo = (*Repo)(nil)

var retryablePGCodes = map[string]struct{}{
	pgerrcode.ConnectionException:                           {},
	pgerrcode.ConnectionDoesNotExist:                        {},
	pgerrcode.ConnectionFailure:                             {},
	pgerrcode.SQLClientUnableToEstablishSQLConnection:       {},
	pgerrcode.SQLServerRejectedEstablishmentOfSQLConnection: {},
	pgerrcode.TransactionResolutionUnknown:                  {},
	pgerrcode.ProtocolViolation:                             {},
	pgerrcode.SerializationFailure:                          {},
	pgerrcode.DeadlockDetected:                              {},
	pgerrcode.LockNotAvailable:                              {},
	pgerrcode.TooManyConnections:                            {},
	pgerrcode.AdminShutdown:                                 {},
	pgerrcode.CrashShutdown:                                 {},
	pgerrcode.CannotConnectNow:                              {},
	pgerrcode.QueryCanceled:                                 {},
}

// Inserts are retried only when the statement certainly never reached the server.
var retryableWriteCodes = map[string]struct{}{
	pgerrcode.SQLClientUnableToEstablishSQLConnection:       {},
	pgerrcode.SQLServerRejectedEstablishmentOfSQLConnection: {},
	pgerrcode.TooManyConnections:                            {},
	pgerrcode.CannotConnectNow:                              {},
}

const (
	qLastSample = `
SELECT "timestamp", gate_name, alarm_count, alarm_diff,
       incoming_patrons_count, incoming_diff, outgoing_patrons_count, outgoing_diff
FROM lib_gate_counts
WHERE gate_name = $1
ORDER BY "timestamp" DESC
LIMIT 1`

	qInsertSample = `
INSERT INTO lib_gate_counts ("timestamp", gate_name, alarm_count, alarm_diff,
    incoming_patrons_count, incoming_diff, outgoing_patrons_count, outgoing_diff)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
)

// New returns a Postgres-backed repository.
func New(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// LastSample reads the newest row for gate or returns domain.ErrNotFound.
func (r *Repo) LastSample(ctx context.Context, gate string) (domain.GateSample, error) {
	var s domain.GateSample
	op := func() error {
		s = domain.GateSample{}
		return r.db.QueryRowContext(ctx, qLastSample, gate).Scan(
			&s.Timestamp, &s.GateName,
			&s.AlarmCount, &s.AlarmDiff,
			&s.IncomingCount, &s.IncomingDiff,
			&s.OutgoingCount, &s.OutgoingDiff,
		)
	}
	if err := misc.Retry(ctx, misc.DefaultBackoff, isRetryablePG, op); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.GateSample{}, domain.ErrNotFound
		}
		return domain.GateSample{}, err
	}
	return s, nil
}

// InsertSample appends one row.
func (r *Repo) InsertSample(ctx context.Context, s domain.GateSample) error {
	op := func() error {
		_, err := r.db.ExecContext(ctx, qInsertSample,
			s.Timestamp, s.GateName,
			s.AlarmCount, s.AlarmDiff,
			s.IncomingCount, s.IncomingDiff,
			s.OutgoingCount, s.OutgoingDiff,
		)
		return err
	}
	return misc.Retry(ctx, misc.DefaultBackoff, isRetryableWrite, op)
}

// Ping verifies the database connection using a short-lived context.
func (r *Repo) Ping(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	op := func() error {
		return r.db.PingContext(ctx)
	}
	return misc.Retry(ctx, misc.DefaultBackoff, isRetryablePG, op)
}

// IsRetryable reports whether the error should trigger a retry according to Postgres semantics.
func IsRetryable(err error) bool {
	return isRetryablePG(err)
}

func isRetryablePG(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var pqe *pq.Error
	if errors.As(err, &pqe) {
		return isRetryablePGCode(string(pqe.Code))
	}
	return false
}

func isRetryablePGCode(code string) bool {
	if _, ok := retryablePGCodes[code]; ok {
		return true
	}
	if strings.HasPrefix(code, "08") {
		return true
	}
	if strings.HasPrefix(code, "40") {
		return true
	}
	return false
}

// isRetryableWrite accepts driver.ErrBadConn because database/sql returns it only
// before the statement is sent on a pooled connection.
func isRetryableWrite(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var pqe *pq.Error
	if errors.As(err, &pqe) {
		_, ok := retryableWriteCodes[string(pqe.Code)]
		return ok
	}
	return false
}
