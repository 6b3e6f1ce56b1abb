package pricing

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

// ErrBusy is returned to non-blocking callers while a computation for the
// same fingerprint is in flight.
var ErrBusy = eris.New("pricing: computation in progress")

type flight struct {
	done    chan struct{}
	waiters int
}

// Coordinator guarantees at most one computation per fingerprint in this
// process. Fingerprints never share a lock.
type Coordinator struct {
	mu      sync.Mutex
	flights map[string]*flight
}

// NewCoordinator creates an empty lock table.
func NewCoordinator() *Coordinator {
	return &Coordinator{flights: make(map[string]*flight)}
}

// Acquire makes the caller the leader for key and returns its release
// function, or waits for the current leader to finish and returns
// leader=false. Non-blocking callers get ErrBusy instead of waiting.
// The leader must call release exactly once.
func (c *Coordinator) Acquire(ctx context.Context, key string, nonBlocking bool) (leader bool, release func(), err error) {
	c.mu.Lock()
	f, ok := c.flights[key]
	if !ok {
		f = &flight{done: make(chan struct{})}
		c.flights[key] = f
		c.mu.Unlock()
		var once sync.Once
		return true, func() { once.Do(func() { c.finish(key, f) }) }, nil
	}
	if nonBlocking {
		c.mu.Unlock()
		return false, nil, ErrBusy
	}
	f.waiters++
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		f.waiters--
		c.mu.Unlock()
	}()

	select {
	case <-f.done:
		return false, nil, nil
	case <-ctx.Done():
		return false, nil, eris.Wrap(ctx.Err(), "pricing: wait for computation")
	}
}

func (c *Coordinator) finish(key string, f *flight) {
	c.mu.Lock()
	if c.flights[key] == f {
		delete(c.flights, key)
	}
	c.mu.Unlock()
	close(f.done)
}

// Waiting reports how many callers are blocked on key.
func (c *Coordinator) Waiting(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.flights[key]; ok {
		return f.waiters
	}
	return 0
}

// InFlight reports whether a computation for key is running.
func (c *Coordinator) InFlight(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.flights[key]
	return ok
}
