// Package health tracks whether the relay's dependencies are usable and
// exposes the result over HTTP and the standard gRPC health protocol.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported for the relay.
const ServiceName = "relay"

// checkTimeout bounds a single probe.
const checkTimeout = 5 * time.Second

// Check probes one dependency.
type Check func(ctx context.Context) error

// Report is a snapshot of the latest probe results.
type Report struct {
	Ready     bool              `json:"ready"`
	Checks    map[string]string `json:"checks"`
	CheckedAt time.Time         `json:"checked_at"`
}

type namedCheck struct {
	name  string
	check Check
}

// Checker runs registered checks on an interval.
type Checker struct {
	interval time.Duration
	logger   *slog.Logger
	grpc     *health.Server

	mu      sync.RWMutex
	checks  []namedCheck
	results map[string]error
	at      time.Time
}

// NewChecker creates a Checker. Until the first run it reports not ready.
func NewChecker(interval time.Duration, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	c := &Checker{
		interval: interval,
		logger:   logger,
		grpc:     health.NewServer(),
		results:  make(map[string]error),
	}
	c.grpc.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	c.grpc.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return c
}

// Add registers a named check. Call before Run.
func (c *Checker) Add(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, namedCheck{name: name, check: check})
}

// Run probes immediately and then every interval until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.CheckNow(ctx)
	for {
		select {
		case <-ticker.C:
			c.CheckNow(ctx)
		case <-ctx.Done():
			c.grpc.Shutdown()
			return
		}
	}
}

// CheckNow runs every check once and returns the new report.
func (c *Checker) CheckNow(ctx context.Context) Report {
	c.mu.RLock()
	checks := append([]namedCheck(nil), c.checks...)
	c.mu.RUnlock()

	results := make(map[string]error, len(checks))
	for _, nc := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := nc.check(checkCtx)
		cancel()
		if err != nil {
			c.logger.Warn("Health check failed", "check", nc.name, "error", err)
		}
		results[nc.name] = err
	}

	c.mu.Lock()
	wasReady := c.readyLocked()
	c.results = results
	c.at = time.Now()
	ready := c.readyLocked()
	c.mu.Unlock()

	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ready {
		status = healthpb.HealthCheckResponse_SERVING
	}
	c.grpc.SetServingStatus("", status)
	c.grpc.SetServingStatus(ServiceName, status)
	if ready != wasReady {
		c.logger.Info("Health status changed", "ready", ready)
	}
	return c.Report()
}

// Report returns the latest results.
func (c *Checker) Report() Report {
	c.mu.RLock()
	defer c.mu.RUnlock()

	checks := make(map[string]string, len(c.results))
	for name, err := range c.results {
		if err != nil {
			checks[name] = err.Error()
		} else {
			checks[name] = "ok"
		}
	}
	return Report{Ready: c.readyLocked(), Checks: checks, CheckedAt: c.at}
}

func (c *Checker) readyLocked() bool {
	if c.at.IsZero() {
		return false
	}
	for _, err := range c.results {
		if err != nil {
			return false
		}
	}
	return true
}
