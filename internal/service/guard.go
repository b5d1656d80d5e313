package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/passvault/internal/errs"
	"github.com/and161185/passvault/internal/limiter"
)

// RetryAfterError is returned for a delete miss while the client is blocked.
type RetryAfterError struct {
	After time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("%v: retry after %s", errs.ErrRateLimited, e.After.Round(time.Second))
}

func (e *RetryAfterError) Unwrap() error { return errs.ErrRateLimited }

// DeleteGuard applies the delete-miss limiter around the gateway's delete operations,
// keyed by route and client address.
//
// A block only changes how misses are answered: a blocked client that names an existing
// record still deletes it, and only a miss during the block is reported as rate limited.
type DeleteGuard struct {
	gw  CredentialGateway
	lim limiter.Limiter
	log *zap.Logger
}

// NewDeleteGuard constructs a guard; a nil limiter disables limiting and a nil
// logger discards limiter warnings.
func NewDeleteGuard(gw CredentialGateway, lim limiter.Limiter, log *zap.Logger) *DeleteGuard {
	if lim == nil {
		lim = limiter.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &DeleteGuard{gw: gw, lim: lim, log: log}
}

// DeleteByID parses rawID and deletes the record. An id that is not a UUID cannot
// name a record, so it is a miss like any other.
func (g *DeleteGuard) DeleteByID(ctx context.Context, rawID, addr string) (bool, error) {
	ipHash := limiter.HashIP(addr)
	blocked, err := g.blocked(ctx, limiter.RouteDeleteByID, ipHash)
	if err != nil {
		return false, err
	}

	removed := false
	if id, perr := uuid.FromString(rawID); perr == nil {
		if removed, err = g.gw.DeleteByID(ctx, id); err != nil {
			return false, err
		}
	}
	return g.settle(ctx, limiter.RouteDeleteByID, ipHash, removed, blocked)
}

// DeleteByOwnerMatch guards the structural-filter delete.
func (g *DeleteGuard) DeleteByOwnerMatch(ctx context.Context, looseID any, user map[string]any, addr string) (bool, error) {
	ipHash := limiter.HashIP(addr)
	blocked, err := g.blocked(ctx, limiter.RouteDeleteLoose, ipHash)
	if err != nil {
		return false, err
	}
	removed, err := g.gw.DeleteByOwnerMatch(ctx, looseID, user)
	if err != nil {
		return false, err
	}
	return g.settle(ctx, limiter.RouteDeleteLoose, ipHash, removed, blocked)
}

// blocked returns a non-nil RetryAfterError when the client is currently blocked.
func (g *DeleteGuard) blocked(ctx context.Context, route string, ipHash []byte) (*RetryAfterError, error) {
	allowed, retry, err := g.lim.Allow(ctx, route, ipHash)
	if err != nil {
		return nil, fmt.Errorf("limiter: %w", err)
	}
	if !allowed {
		return &RetryAfterError{After: retry}, nil
	}
	return nil, nil
}

// settle updates the counters and picks the outcome. Counter updates are best-effort:
// the delete itself has already been decided. The request that crosses the threshold
// still gets its plain miss; the block applies from the next one.
func (g *DeleteGuard) settle(ctx context.Context, route string, ipHash []byte, removed bool, blocked *RetryAfterError) (bool, error) {
	if removed {
		if blocked == nil {
			if err := g.lim.Success(ctx, route, ipHash); err != nil {
				g.log.Warn("limiter success", zap.String("route", route), zap.Error(err))
			}
		}
		return true, nil
	}
	if blocked != nil {
		return false, blocked
	}
	if _, _, err := g.lim.Miss(ctx, route, ipHash); err != nil {
		g.log.Warn("limiter miss", zap.String("route", route), zap.Error(err))
	}
	return false, nil
}
