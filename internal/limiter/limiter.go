// Package limiter throttles clients that keep deleting records that do not exist.
// Repeated misses from one address look like id probing, so after a threshold
// the address is blocked from the delete routes for a while.
package limiter

import (
	"context"
	"time"
)

// Route names used as limiter keys.
const (
	RouteDeleteByID  = "delete-by-id"
	RouteDeleteLoose = "delete-loose"
)

// Limiter tracks delete misses per (route, client address).
type Limiter interface {
	// Allow reports whether the client may call route now, and the retry-after when blocked.
	Allow(ctx context.Context, route string, ipHash []byte) (bool, time.Duration, error)
	// Success resets the miss counter after a delete that removed a record.
	Success(ctx context.Context, route string, ipHash []byte) error
	// Miss records a delete that matched nothing; it may place a temporary block.
	Miss(ctx context.Context, route string, ipHash []byte) (bool, time.Duration, error)
}

// Nop never blocks. It is used when the miss limit is zero.
type Nop struct{}

var _ Limiter = Nop{}

func (Nop) Allow(context.Context, string, []byte) (bool, time.Duration, error) { return true, 0, nil }
func (Nop) Success(context.Context, string, []byte) error                      { return nil }
func (Nop) Miss(context.Context, string, []byte) (bool, time.Duration, error)  { return false, 0, nil }
