// Package portalloc hands out unique ports to worker processes from a
// configured range and paces re-allocation after a release so a crash-loop
// on one port can't starve every other worker waiting on the same range,
// grounded on apex-build-platform's IPRateLimiter
// (backend/internal/middleware/middleware.go: one *rate.Limiter per key,
// guarded by a map mutex) generalized from per-IP keys to per-port keys.
package portalloc

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Allocator hands out ports in [start, end] on a round-robin basis and
// rate-limits how soon a just-released port can be re-handed-out, so a
// worker that crash-loops on its assigned port doesn't immediately get it
// back and repeat the failure against whatever was listening on it.
type Allocator struct {
	start, end int
	cooldown   rate.Limit
	burst      int

	mu       sync.Mutex
	inUse    map[int]bool
	limiters map[int]*rate.Limiter
	nextFree int
}

// New creates an Allocator over the inclusive port range [start, end].
// cooldown is the minimum spacing enforced between successive allocations
// of the same port (as a rate.Limit, i.e. events per second); burst allows
// a port to be reused immediately the first time.
func New(start, end int, cooldown rate.Limit, burst int) *Allocator {
	if burst < 1 {
		burst = 1
	}
	return &Allocator{
		start:    start,
		end:      end,
		cooldown: cooldown,
		burst:    burst,
		inUse:    make(map[int]bool),
		limiters: make(map[int]*rate.Limiter),
		nextFree: start,
	}
}

// ErrExhausted is returned when every port in range is currently in use.
var ErrExhausted = fmt.Errorf("portalloc: no free port in configured range")

// Acquire reserves the next available port, waiting on ctx if the
// candidate port is still in its post-release cooldown window. It returns
// ErrExhausted if every port in the range is held by another worker.
func (a *Allocator) Acquire(ctx context.Context) (int, error) {
	for attempt := 0; attempt <= a.end-a.start; attempt++ {
		a.mu.Lock()
		port := a.nextFree
		a.nextFree++
		if a.nextFree > a.end {
			a.nextFree = a.start
		}
		if a.inUse[port] {
			a.mu.Unlock()
			continue
		}
		a.inUse[port] = true
		limiter := a.limiterFor(port)
		a.mu.Unlock()

		if err := limiter.Wait(ctx); err != nil {
			a.Release(port)
			return 0, err
		}
		return port, nil
	}
	return 0, ErrExhausted
}

// Release frees port for future allocation. The port's cooldown is
// measured from its previous acquisition, not from the release.
func (a *Allocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inUse, port)
}

func (a *Allocator) limiterFor(port int) *rate.Limiter {
	l, ok := a.limiters[port]
	if !ok {
		l = rate.NewLimiter(a.cooldown, a.burst)
		a.limiters[port] = l
	}
	return l
}

// InUse reports the number of ports currently allocated.
func (a *Allocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.inUse)
}
