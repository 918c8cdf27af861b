// Package health implements Kubernetes-style liveness and readiness probes.
// Registered checks run on background tickers with consecutive-failure and
// consecutive-success thresholds so a single slow probe does not flap the
// endpoint.
package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// CheckFunc probes one component; nil means healthy.
type CheckFunc func(ctx context.Context) error

const (
	failureThreshold = 3
	successThreshold = 1
)

// check holds one probe and its state. The counters are touched only by the
// single ticker goroutine; healthy and lastErr are read concurrently by the
// HTTP endpoints and use atomics.
type check struct {
	name    string
	timeout time.Duration
	fn      CheckFunc

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	fails int
	oks   int
}

func newCheck(name string, timeout time.Duration, fn CheckFunc) *check {
	c := &check{name: name, timeout: timeout, fn: fn}
	c.healthy.Store(true)
	return c
}

func (c *check) run(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.fn(probeCtx)
	c.lastErr.Store(&err)

	if err != nil {
		c.oks = 0
		if c.fails++; c.fails >= failureThreshold {
			c.healthy.Store(false)
		}
		return
	}
	c.fails = 0
	if c.oks++; c.oks >= successThreshold {
		c.healthy.Store(true)
	}
}

func (c *check) failure() (string, bool) {
	if c.healthy.Load() {
		return "", false
	}
	if p := c.lastErr.Load(); p != nil && *p != nil {
		return (*p).Error(), true
	}
	return "check is unhealthy", true
}

// Health tracks the probes for one service. The service starts not ready;
// call SetReady(true) after initialization and SetReady(false) on shutdown
// to drain traffic.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	live   []*check
	readyC []*check
	cancel context.CancelFunc
}

func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a probe for /livez (is the process functional).
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.live = append(h.live, newCheck(name, timeout, fn))
}

// AddReadinessCheck registers a probe for /readyz (can the service take
// traffic, e.g. database connectivity).
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readyC = append(h.readyC, newCheck(name, timeout, fn))
}

// Start launches one ticker goroutine per registered check. Call after all
// checks are registered.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	checks := append(append([]*check(nil), h.live...), h.readyC...)
	h.mu.Unlock()

	for _, c := range checks {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			c.run(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					c.run(ctx)
				}
			}
		}()
	}
}

// Stop cancels the probe goroutines. Safe to call repeatedly.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service was marked ready and all readiness
// probes pass.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.readyC {
		if _, failed := c.failure(); failed {
			return false
		}
	}
	return true
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	checks := append([]*check(nil), h.live...)
	h.mu.RUnlock()

	writeStatus(w, failures(checks))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	checks := append([]*check(nil), h.readyC...)
	h.mu.RUnlock()

	fails := failures(checks)
	if !h.ready.Load() {
		fails = append(fails, [2]string{"_readiness", "service is not ready"})
	}
	writeStatus(w, fails)
}

func failures(checks []*check) [][2]string {
	var out [][2]string
	for _, c := range checks {
		if msg, failed := c.failure(); failed {
			out = append(out, [2]string{c.name, msg})
		}
	}
	return out
}

func writeStatus(w http.ResponseWriter, fails [][2]string) {
	status := http.StatusOK
	var enc jx.Encoder
	enc.Obj(func(enc *jx.Encoder) {
		if len(fails) == 0 {
			enc.Field("status", func(enc *jx.Encoder) { enc.Str("ok") })
			return
		}
		enc.Field("status", func(enc *jx.Encoder) { enc.Str("unhealthy") })
		enc.Field("checks", func(enc *jx.Encoder) {
			enc.Obj(func(enc *jx.Encoder) {
				for _, f := range fails {
					enc.Field(f[0], func(enc *jx.Encoder) { enc.Str(f[1]) })
				}
			})
		})
	})
	if len(fails) > 0 {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(enc.Bytes())
}
