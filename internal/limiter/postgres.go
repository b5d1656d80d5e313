package limiter

import (
	"context"
	"crypto/sha256"
	"errors"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Config bounds how many misses are tolerated per window and how long a block lasts.
type Config struct {
	MaxMisses int
	Window    time.Duration
	BlockFor  time.Duration
}

// PG is a PostgreSQL-backed limiter with a sliding window and lockout, so every
// server instance sharing the store sees the same counters.
type PG struct {
	q   Querier
	cfg Config
	now func() time.Time
}

var _ Limiter = (*PG)(nil)

// Querier is the subset of the pool the limiter needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// New returns a PG limiter, or Nop when cfg.MaxMisses is not positive.
func New(q Querier, cfg Config) Limiter {
	if cfg.MaxMisses <= 0 {
		return Nop{}
	}
	return NewPG(q, cfg)
}

// NewPG constructs a PostgreSQL-backed limiter.
func NewPG(q Querier, cfg Config) *PG {
	return &PG{q: q, cfg: cfg, now: time.Now}
}

// HashIP returns a stable hash of the host part of addr to avoid storing raw addresses.
// The port is dropped so reconnects from one client share a counter.
func HashIP(addr string) []byte {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	sum := sha256.Sum256([]byte(host))
	return sum[:]
}

// Allow reports whether route is currently open for the client and a retry-after duration.
func (l *PG) Allow(ctx context.Context, route string, ipHash []byte) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM delete_limiter WHERE route=$1 AND ip_hash=$2`
	var blockedUntil time.Time
	err := l.q.QueryRow(ctx, q, route, ipHash).Scan(&blockedUntil)
	switch {
	case err == nil:
		if now := l.now(); blockedUntil.After(now) {
			return false, blockedUntil.Sub(now), nil
		}
		return true, 0, nil
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	default:
		return false, 0, err
	}
}

// Success resets counters for (route, ip).
func (l *PG) Success(ctx context.Context, route string, ipHash []byte) error {
	const q = `
UPDATE delete_limiter SET fail_count=0, blocked_until='epoch', updated_at=now()
WHERE route=$1 AND ip_hash=$2 AND fail_count > 0`
	_, err := l.q.Exec(ctx, q, route, ipHash)
	return err
}

// Miss records a delete that removed nothing; reaching MaxMisses inside Window blocks
// the client for BlockFor and restarts the count.
func (l *PG) Miss(ctx context.Context, route string, ipHash []byte) (bool, time.Duration, error) {
	const q = `
INSERT INTO delete_limiter (route, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1,$2,1,'epoch',now())
ON CONFLICT (route, ip_hash) DO UPDATE
SET
  fail_count = CASE WHEN EXCLUDED.updated_at - delete_limiter.updated_at > $3::interval THEN 1 ELSE delete_limiter.fail_count + 1 END,
  updated_at = now()
RETURNING fail_count`
	var misses int
	if err := l.q.QueryRow(ctx, q, route, ipHash, l.cfg.Window).Scan(&misses); err != nil {
		return false, 0, err
	}
	if misses < l.cfg.MaxMisses {
		return false, 0, nil
	}
	const upd = `UPDATE delete_limiter SET blocked_until=$3, fail_count=0 WHERE route=$1 AND ip_hash=$2`
	if _, err := l.q.Exec(ctx, upd, route, ipHash, l.now().Add(l.cfg.BlockFor)); err != nil {
		return false, 0, err
	}
	return true, l.cfg.BlockFor, nil
}
