// Package health aggregates dependency probes into liveness and readiness
// endpoints. Each registered check runs concurrently under its own
// deadline; the report takes the most severe component status.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status of one component or of the whole service.
type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

func (s Status) severity() int {
	switch s {
	case StatusUp:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// DefaultCheckTimeout bounds a single check when none is configured.
const DefaultCheckTimeout = 3 * time.Second

// Check probes one dependency.
type Check func(ctx context.Context) ComponentHealth

type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Report is the outcome of one Run.
type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

// PingCheck turns a ping into a Check reporting failStatus on error, so an
// optional store can degrade the service without failing readiness.
func PingCheck(ping func(ctx context.Context) error, failStatus Status) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: failStatus, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// Checker holds the registered checks.
type Checker struct {
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	checks map[string]Check
	last   Status
}

// NewChecker returns a Checker with DefaultCheckTimeout per check.
func NewChecker() *Checker {
	return &Checker{
		timeout: DefaultCheckTimeout,
		checks:  make(map[string]Check),
		last:    StatusUp,
		logger:  slog.Default().With("component", "health"),
	}
}

// Register adds or replaces the check stored under name.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	c.checks[name] = check
	c.mu.Unlock()
}

// Run probes every component. A check that overruns its deadline without
// returning is reported down.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	checks := make([]Check, len(names))
	sort.Strings(names)
	for i, name := range names {
		checks[i] = c.checks[name]
	}
	c.mu.RUnlock()

	results := make([]ComponentHealth, len(names))
	var g errgroup.Group
	for i := range checks {
		g.Go(func() error {
			results[i] = c.probe(ctx, checks[i])
			return nil
		})
	}
	g.Wait()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(names)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	for i, name := range names {
		report.Components[name] = results[i]
		if results[i].Status.severity() > report.Status.severity() {
			report.Status = results[i].Status
		}
	}
	c.noteTransition(report)
	return report
}

func (c *Checker) probe(ctx context.Context, check Check) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan ComponentHealth, 1)
	go func() { done <- check(ctx) }()

	var result ComponentHealth
	select {
	case result = <-done:
	case <-ctx.Done():
		result = ComponentHealth{Status: StatusDown, Message: "check timed out"}
	}
	result.Latency = time.Since(start).Round(time.Millisecond).String()
	return result
}

// noteTransition logs only when the overall status changes.
func (c *Checker) noteTransition(report Report) {
	c.mu.Lock()
	prev := c.last
	c.last = report.Status
	c.mu.Unlock()
	if prev == report.Status {
		return
	}
	var failing []string
	for name, comp := range report.Components {
		if comp.Status != StatusUp {
			failing = append(failing, name)
		}
	}
	sort.Strings(failing)
	c.logger.Warn("health status changed", "from", prev, "to", report.Status, "failing", failing)
}

// LiveHandler answers 200 while the process can serve HTTP at all.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// ReadyHandler runs the checks and answers 503 only when something is
// down; a degraded service keeps taking traffic.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		code := http.StatusOK
		if report.Status == StatusDown {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, report)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
