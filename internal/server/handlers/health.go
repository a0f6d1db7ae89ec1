package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	apperrors "github.com/3leaps/edison/internal/errors"
)

// Check results.
const (
	checkHealthy   = "healthy"
	checkUnhealthy = "unhealthy"
	checkTimeout   = "timeout"

	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// checkTimeoutDuration bounds a single CheckHealth call.
const checkTimeoutDuration = 5 * time.Second

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthCheckerFunc adapts a function to HealthChecker.
type HealthCheckerFunc func(ctx context.Context) error

// CheckHealth calls f(ctx).
func (f HealthCheckerFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

// HealthResponse is the body of a successful probe.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthManager runs registered checkers for the probe endpoints.
type HealthManager struct {
	version    string
	started    time.Time
	respondErr HTTPErrorResponder

	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

// NewHealthManager creates a manager reporting version.
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		version:    version,
		started:    time.Now(),
		respondErr: DefaultErrorResponder,
		checkers:   make(map[string]HealthChecker),
	}
}

// SetErrorResponder sets how failed probes are written. nil restores
// DefaultErrorResponder.
func (m *HealthManager) SetErrorResponder(responder HTTPErrorResponder) {
	m.respondErr = responderOrDefault(responder)
}

// RegisterChecker adds or replaces the checker for name.
func (m *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = checker
}

func (m *HealthManager) runChecks(ctx context.Context) map[string]string {
	m.mu.RLock()
	checkers := make(map[string]HealthChecker, len(m.checkers))
	for name, c := range m.checkers {
		checkers[name] = c
	}
	m.mu.RUnlock()

	results := make(map[string]string, len(checkers))
	for name, c := range checkers {
		cctx, cancel := context.WithTimeout(ctx, checkTimeoutDuration)
		err := c.CheckHealth(cctx)
		cancel()
		switch {
		case err == nil:
			results[name] = checkHealthy
		case errors.Is(err, context.DeadlineExceeded):
			results[name] = checkTimeout
		default:
			results[name] = checkUnhealthy
		}
	}
	return results
}

func (m *HealthManager) determineOverallStatus(results map[string]string) string {
	overall := statusHealthy
	for _, r := range results {
		switch r {
		case checkUnhealthy:
			return statusUnhealthy
		case checkTimeout:
			overall = statusDegraded
		}
	}
	return overall
}

func (m *HealthManager) respond(w http.ResponseWriter, r *http.Request, withChecks bool) {
	var checks map[string]string
	status := statusHealthy
	if withChecks {
		checks = m.runChecks(r.Context())
		status = m.determineOverallStatus(checks)
	}

	if status == statusUnhealthy {
		m.respondErr(w, r, apperrors.New(http.StatusServiceUnavailable, apperrors.CodeServiceUnavailable,
			"service is unhealthy").WithDetails(map[string]any{"checks": checks}))
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    status,
		Version:   m.version,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(m.started).Truncate(time.Second).String(),
		Checks:    checks,
	})
}

// HealthHandler runs every checker.
func (m *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	m.respond(w, r, true)
}

// LivenessHandler reports that the process is serving requests.
func (m *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	m.respond(w, r, false)
}

// ReadinessHandler runs every checker.
func (m *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	m.respond(w, r, true)
}

// StartupHandler reports that startup has completed.
func (m *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	m.respond(w, r, false)
}
