// Package health aggregates readiness signals from the service's
// backing systems (intel database, simulator backend, chain RPC) for
// the /health endpoint.
package health

import (
	"context"
	"sync"
	"time"
)

// checkTimeout caps how long a single subsystem check may take, so one
// slow dependency cannot stall the whole health report.
const checkTimeout = 2 * time.Second

// Status is the outcome of checking a single subsystem.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker reports on one subsystem. It must honor ctx cancellation.
type Checker func(ctx context.Context) Status

// Registry holds named subsystem checkers and runs them on demand.
// Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	names  []string
	checks map[string]Checker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{checks: make(map[string]Checker)}
}

// Register adds a subsystem checker under name. Registering the same
// name again replaces the previous checker.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.checks[name]; !exists {
		r.names = append(r.names, name)
	}
	r.checks[name] = check
}

// CheckAll runs every registered checker concurrently, each under its
// own deadline, and reports the aggregate plus per-subsystem results in
// registration order.
func (r *Registry) CheckAll(ctx context.Context) (healthy bool, statuses []Status) {
	r.mu.RLock()
	names := make([]string, len(r.names))
	copy(names, r.names)
	checks := make(map[string]Checker, len(r.checks))
	for name, check := range r.checks {
		checks[name] = check
	}
	r.mu.RUnlock()

	statuses = make([]Status, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string, check Checker) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			status := check(checkCtx)
			if status.Name == "" {
				status.Name = name
			}
			statuses[i] = status
		}(i, name, checks[name])
	}
	wg.Wait()

	healthy = true
	for _, status := range statuses {
		if !status.Healthy {
			healthy = false
		}
	}
	return healthy, statuses
}
