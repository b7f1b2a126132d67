package metrics

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// HealthStatus represents the health status of the node.
type HealthStatus struct {
	Healthy   bool             `json:"healthy"`
	Message   string           `json:"message,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Checks    map[string]Check `json:"checks,omitempty"`
	Uptime    time.Duration    `json:"uptime"`
}

// Check represents an individual health check result.
type Check struct {
	Name    string        `json:"name"`
	Healthy bool          `json:"healthy"`
	Message string        `json:"message,omitempty"`
	Latency time.Duration `json:"latency,omitempty"`
}

// HealthCheckFunc is a function that performs a health check.
type HealthCheckFunc func(ctx context.Context) Check

// HealthChecker runs named health checks and caches the last result.
type HealthChecker struct {
	mu        sync.RWMutex
	checks    map[string]HealthCheckFunc
	status    atomic.Pointer[HealthStatus]
	startTime time.Time
}

// NewHealthChecker creates a health checker with no checks registered.
func NewHealthChecker() *HealthChecker {
	h := &HealthChecker{
		checks:    make(map[string]HealthCheckFunc),
		startTime: time.Now(),
	}
	h.status.Store(&HealthStatus{Healthy: true, Timestamp: h.startTime})
	return h
}

// RegisterCheck registers a health check under name, replacing any previous one.
func (h *HealthChecker) RegisterCheck(name string, check HealthCheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// IsHealthy reports the result of the last Check.
func (h *HealthChecker) IsHealthy() bool {
	return h.status.Load().Healthy
}

// GetStatus returns the result of the last Check.
func (h *HealthChecker) GetStatus() *HealthStatus {
	return h.status.Load()
}

// Check runs every registered check and stores the combined status. The
// message of the first failing check, by name, becomes the status message.
func (h *HealthChecker) Check(ctx context.Context) *HealthStatus {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	checks := make(map[string]HealthCheckFunc, len(h.checks))
	for name, fn := range h.checks {
		checks[name] = fn
	}
	h.mu.RUnlock()
	sort.Strings(names)

	status := &HealthStatus{
		Healthy:   true,
		Timestamp: time.Now(),
		Checks:    make(map[string]Check, len(checks)),
		Uptime:    time.Since(h.startTime),
	}

	for _, name := range names {
		start := time.Now()
		result := checks[name](ctx)
		result.Name = name
		if result.Latency == 0 {
			result.Latency = time.Since(start)
		}
		status.Checks[name] = result

		if !result.Healthy && status.Healthy {
			status.Healthy = false
			status.Message = name + ": " + result.Message
		}
	}

	h.status.Store(status)
	return status
}
