package inflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWaitForZero(t *testing.T) {
	var c Counter
	if !c.WaitForZero(context.Background()) {
		t.Fatalf("idle counter should not block")
	}
	c.Inc()
	c.Inc()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if c.WaitForZero(ctx) {
		t.Fatalf("wait returned true with work in flight")
	}

	done := make(chan bool)
	go func() { done <- c.WaitForZero(context.Background()) }()
	c.Dec()
	c.Dec()
	select {
	case ok := <-done:
		if !ok {
			t.Fatalf("wait returned false")
		}
	case <-time.After(time.Second):
		t.Fatalf("wait did not return after counter reached zero")
	}
	c.Dec()
	if c.Load() != 0 {
		t.Fatalf("extra Dec went negative: %d", c.Load())
	}
}

func TestTrackAndMiddleware(t *testing.T) {
	var c Counter
	c.Track(func() {
		if c.Load() != 1 {
			t.Fatalf("track did not count")
		}
	})
	h := c.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c.Load() != 1 {
			t.Fatalf("middleware did not count")
		}
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if c.Load() != 0 {
		t.Fatalf("counter not released: %d", c.Load())
	}
}
