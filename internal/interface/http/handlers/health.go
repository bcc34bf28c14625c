// Package handlers contains the health checks behind the ops HTTP server.
package handlers

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// TYPES
// ══════════════════════════════════════════════════════════════════════════════

// HealthChecker reports the worker's aggregated health.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// HealthCheckFunc checks one dependency and returns an error when it is down.
type HealthCheckFunc func(ctx context.Context) error

// HealthStatus is the body of /healthz and /readyz.
type HealthStatus struct {
	// Healthy is false when a required check failed.
	Healthy bool `json:"healthy"`

	// Ready is false when any check failed, optional ones included.
	Ready bool `json:"ready"`

	Message   string                 `json:"message,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Healthy  bool   `json:"healthy"`
	Optional bool   `json:"optional,omitempty"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPOSITE HEALTH CHECKER
// ══════════════════════════════════════════════════════════════════════════════

// DefaultCheckTimeout bounds each check unless WithCheckTimeout says otherwise.
const DefaultCheckTimeout = 5 * time.Second

type check struct {
	name     string
	fn       HealthCheckFunc
	optional bool
}

// CompositeHealthChecker runs named checks concurrently. Postgres is
// registered as required; Redis as optional, because without it the cycle
// runs unlocked and events stay in-process.
type CompositeHealthChecker struct {
	mu      sync.RWMutex
	checks  []check
	started time.Time
	version string
	timeout time.Duration
}

// Option configures a CompositeHealthChecker.
type Option func(*CompositeHealthChecker)

// WithCheckTimeout overrides DefaultCheckTimeout. Non-positive values are ignored.
func WithCheckTimeout(d time.Duration) Option {
	return func(c *CompositeHealthChecker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewCompositeHealthChecker creates a checker with no checks.
func NewCompositeHealthChecker(version string, opts ...Option) *CompositeHealthChecker {
	c := &CompositeHealthChecker{
		started: time.Now(),
		version: version,
		timeout: DefaultCheckTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddCheck registers a required check; re-adding a name replaces it.
func (c *CompositeHealthChecker) AddCheck(name string, fn HealthCheckFunc) {
	c.add(check{name: name, fn: fn})
}

// AddOptionalCheck registers a check whose failure only clears Ready.
func (c *CompositeHealthChecker) AddOptionalCheck(name string, fn HealthCheckFunc) {
	c.add(check{name: name, fn: fn, optional: true})
}

func (c *CompositeHealthChecker) add(p check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.checks {
		if c.checks[i].name == p.name {
			c.checks[i] = p
			return
		}
	}
	c.checks = append(c.checks, p)
}

// Check runs every check under its own timeout and aggregates the results.
func (c *CompositeHealthChecker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := append([]check(nil), c.checks...)
	c.mu.RUnlock()

	status := HealthStatus{
		Healthy:   true,
		Ready:     true,
		Uptime:    time.Since(c.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Version:   c.version,
	}
	if len(checks) == 0 {
		status.Message = "No health checks registered"
		return status
	}

	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, p := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.run(ctx, p)
		}()
	}
	wg.Wait()

	status.Checks = make(map[string]CheckResult, len(checks))
	var failed []string
	for i, p := range checks {
		r := results[i]
		status.Checks[p.name] = r
		if r.Healthy {
			continue
		}
		failed = append(failed, p.name)
		status.Ready = false
		if !r.Optional {
			status.Healthy = false
		}
	}

	if len(failed) == 0 {
		status.Message = "All checks passed"
		return status
	}
	sort.Strings(failed)
	status.Message = "Some checks failed: " + strings.Join(failed, ", ")
	return status
}

func (c *CompositeHealthChecker) run(ctx context.Context, p check) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := p.fn(ctx)
	r := CheckResult{
		Healthy:  err == nil,
		Optional: p.optional,
		Message:  "OK",
		Duration: time.Since(start).Round(time.Millisecond).String(),
	}
	if err != nil {
		r.Message = err.Error()
	}
	return r
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH CHECKS
// ══════════════════════════════════════════════════════════════════════════════

// Pinger is implemented by the Postgres connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewDatabaseCheck pings db.
func NewDatabaseCheck(db Pinger) HealthCheckFunc {
	return db.Ping
}
