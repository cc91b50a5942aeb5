// Package state holds the two buffers shared between the front-end and the
// protocol task: the confirmed device status and the pending patch of staged
// user changes. Both are guarded by bounded-wait locks; a caller that cannot
// acquire a guard within its timeout gets ErrLockTimeout and must skip the
// affected step.
package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultLockTimeout is the bounded wait used when none is configured.
const DefaultLockTimeout = 200 * time.Millisecond

// ErrLockTimeout is returned when a guard could not be acquired in time.
var ErrLockTimeout = errors.New("lock timeout")

// guard is a binary semaphore whose acquisition is bounded by a timeout.
type guard struct {
	name    string
	sem     *semaphore.Weighted
	timeout time.Duration
}

func newGuard(name string, timeout time.Duration) guard {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return guard{
		name:    name,
		sem:     semaphore.NewWeighted(1),
		timeout: timeout,
	}
}

// do runs fn while holding the guard.
func (g *guard) do(ctx context.Context, fn func()) error {
	if err := g.acquire(ctx); err != nil {
		return err
	}
	defer g.sem.Release(1)
	fn()
	return nil
}

func (g *guard) acquire(ctx context.Context) error {
	if g.sem.TryAcquire(1) {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w after %s", g.name, ErrLockTimeout, g.timeout)
	}
	return nil
}
