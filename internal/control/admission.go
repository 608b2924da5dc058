// Package control implements the router's admission control and
// per-route-class circuit breakers, the gates every order passes through
// before it reaches the route selector or the execution engine.
package control

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/Numi2/sui-numi/internal/aggrerrors"
)

// Admission enforces a maximum inflight-request count (a counting
// semaphore) stacked with a sliding 1-second rate limiter. Acquire blocks,
// cooperatively polling, until both gates admit the caller; it is not
// fair across waiters, matching the Rust original's loop-and-sleep design.
type Admission struct {
	maxInflight int
	ratePerSec  int
	window      time.Duration
	pollEvery   time.Duration

	mu         sync.Mutex
	timestamps *list.List // of time.Time, oldest first

	sem    chan struct{}
	closed chan struct{}
	once   sync.Once
}

// NewAdmission constructs an admission gate. ratePerSec defaults to 200
// when zero, matching the original's `rate_per_sec.unwrap_or(200)`.
func NewAdmission(maxInflight, ratePerSec int) *Admission {
	if ratePerSec <= 0 {
		ratePerSec = 200
	}
	return &Admission{
		maxInflight: maxInflight,
		ratePerSec:  ratePerSec,
		window:      time.Second,
		pollEvery:   5 * time.Millisecond,
		timestamps:  list.New(),
		sem:         make(chan struct{}, maxInflight),
		closed:      make(chan struct{}),
	}
}

// Permit is released by the caller once the admitted unit of work
// completes, freeing its inflight slot.
type Permit struct {
	release func()
}

// Release returns the permit's inflight slot. Safe to call once; further
// calls are no-ops.
func (p *Permit) Release() {
	if p.release != nil {
		p.release()
		p.release = nil
	}
}

// Acquire blocks until both the rate limiter and the inflight semaphore
// admit the caller, or ctx is done, or the admission gate is closed.
func (a *Admission) Acquire(ctx context.Context) (*Permit, error) {
	for {
		select {
		case <-a.closed:
			return nil, aggrerrors.ErrShuttingDown
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if a.tryReserveRateSlot() {
			break
		}

		select {
		case <-time.After(a.pollEvery):
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-a.closed:
			return nil, aggrerrors.ErrShuttingDown
		}
	}

	select {
	case a.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-a.closed:
		return nil, aggrerrors.ErrShuttingDown
	}

	released := false
	return &Permit{release: func() {
		if released {
			return
		}
		released = true
		<-a.sem
	}}, nil
}

// tryReserveRateSlot prunes expired timestamps then reserves a slot if the
// sliding window has capacity.
func (a *Admission) tryReserveRateSlot() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	for e := a.timestamps.Front(); e != nil; {
		next := e.Next()
		if now.Sub(e.Value.(time.Time)) > a.window {
			a.timestamps.Remove(e)
			e = next
			continue
		}
		break
	}

	if a.timestamps.Len() < a.ratePerSec {
		a.timestamps.PushBack(now)
		return true
	}
	return false
}

// Close stops admitting new callers; in-flight permits are unaffected.
func (a *Admission) Close() {
	a.once.Do(func() { close(a.closed) })
}
