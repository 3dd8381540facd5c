// Package health provides a named, pluggable health-check registry, used by
// Realm.HealthCheck (spec §4.9) to report per-land and per-subsystem
// status.
package health

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Status is the overall or per-check health state.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the outcome of a single named check.
type CheckResult struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Response is the aggregate result of running every registered check.
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Duration  time.Duration          `json:"duration"`
	Checks    map[string]CheckResult `json:"checks"`
}

// Checker runs named checks and aggregates their results.
type Checker struct {
	checks     map[string]func(context.Context) error
	checkOrder []string
	onResult   func(name string, healthy bool)
}

// NewChecker creates an empty Checker. onResult, if non-nil, is invoked
// after every check runs (used to feed internal/metrics).
func NewChecker(onResult func(name string, healthy bool)) *Checker {
	return &Checker{
		checks:   make(map[string]func(context.Context) error),
		onResult: onResult,
	}
}

// Register adds a named check. Re-registering a name replaces it in place
// without disturbing run order.
func (c *Checker) Register(name string, check func(context.Context) error) {
	if _, exists := c.checks[name]; !exists {
		c.checkOrder = append(c.checkOrder, name)
	}
	c.checks[name] = check
}

// Run executes every registered check with a 5s per-check timeout and
// returns the aggregate Response.
func (c *Checker) Run(ctx context.Context) Response {
	start := time.Now()
	resp := Response{Timestamp: start, Checks: make(map[string]CheckResult, len(c.checks)), Status: StatusHealthy}

	for _, name := range c.checkOrder {
		check := c.checks[name]
		checkStart := time.Now()

		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := check(checkCtx)
		cancel()

		result := CheckResult{Name: name, Status: StatusHealthy, Duration: time.Since(checkStart)}
		if err != nil {
			result.Status = StatusUnhealthy
			result.Error = err.Error()
			resp.Status = StatusUnhealthy
			logrus.WithFields(logrus.Fields{"check": name, "error": err}).Warn("health check failed")
		}

		if c.onResult != nil {
			c.onResult(name, err == nil)
		}

		resp.Checks[name] = result
	}

	resp.Duration = time.Since(start)
	return resp
}
