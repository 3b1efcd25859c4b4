// Package inflight counts work that must finish before the server drains.
package inflight

import (
	"context"
	"net/http"
	"sync"

	"github.com/gaspardpetit/libsync/sdk/api/spi"
)

// Counter tracks in-flight operations. The zero value is ready to use.
type Counter struct {
	mu   sync.Mutex
	n    int64
	idle chan struct{} // closed when n drops to zero; nil or stale while idle
}

// Inc records the start of an operation.
func (c *Counter) Inc() {
	c.mu.Lock()
	if c.n == 0 {
		c.idle = make(chan struct{})
	}
	c.n++
	c.mu.Unlock()
}

// Dec records the end of an operation. Extra calls are ignored.
func (c *Counter) Dec() {
	c.mu.Lock()
	if c.n > 0 {
		c.n--
		if c.n == 0 {
			close(c.idle)
		}
	}
	c.mu.Unlock()
}

// Load returns the number of operations in flight.
func (c *Counter) Load() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Track runs fn as one in-flight operation.
func (c *Counter) Track(fn func()) {
	c.Inc()
	defer c.Dec()
	fn()
}

// WaitForZero blocks until nothing is in flight or ctx is done. It reports
// whether the counter reached zero.
func (c *Counter) WaitForZero(ctx context.Context) bool {
	c.mu.Lock()
	if c.n == 0 {
		c.mu.Unlock()
		return true
	}
	idle := c.idle
	c.mu.Unlock()
	select {
	case <-idle:
		return true
	case <-ctx.Done():
		return false
	}
}

// Middleware counts each HTTP request as in flight while it is served.
func (c *Counter) Middleware() spi.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.Inc()
			defer c.Dec()
			next.ServeHTTP(w, r)
		})
	}
}
