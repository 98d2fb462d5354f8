package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// ErrDegraded marks a check that works but is impaired. Wrap it to explain why.
var ErrDegraded = errors.New("degraded")

// CheckFunc probes one dependency
type CheckFunc func(ctx context.Context) error

type dependency struct {
	name     string
	required bool
	check    CheckFunc
}

// HealthChecker serves liveness and readiness probes. Readiness fails when a
// required dependency fails; an optional failure only degrades it.
type HealthChecker struct {
	version string
	timeout time.Duration
	deps    []dependency
}

// NewHealthChecker creates a health checker with no dependencies
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{version: version, timeout: 5 * time.Second}
}

// Require adds a dependency the service cannot serve without
func (h *HealthChecker) Require(name string, check CheckFunc) *HealthChecker {
	h.deps = append(h.deps, dependency{name: name, required: true, check: check})
	return h
}

// Optional adds a dependency whose loss degrades the service
func (h *HealthChecker) Optional(name string, check CheckFunc) *HealthChecker {
	h.deps = append(h.deps, dependency{name: name, check: check})
	return h
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// Liveness reports that the process is serving
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, HealthStatus{Status: StatusHealthy, Timestamp: time.Now(), Version: h.version})
}

// Readiness runs every dependency check
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := h.Check(ctx)
	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, status)
}

func writeHealth(w http.ResponseWriter, code int, status HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

// Check runs all dependency checks concurrently
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus, len(h.deps)),
	}

	var mu sync.Mutex
	var g errgroup.Group
	for _, dep := range h.deps {
		dep := dep
		g.Go(func() error {
			result := probe(ctx, dep.check)

			mu.Lock()
			defer mu.Unlock()
			status.Dependencies[dep.name] = result
			status.Status = worst(status.Status, effective(result.Status, dep.required))
			return nil
		})
	}
	g.Wait()

	return status
}

func probe(ctx context.Context, check CheckFunc) DependencyStatus {
	start := time.Now()
	err := check(ctx)

	result := DependencyStatus{
		Status:    StatusHealthy,
		LatencyMS: time.Since(start).Milliseconds(),
		Timestamp: start,
	}
	switch {
	case errors.Is(err, ErrDegraded):
		result.Status = StatusDegraded
		result.Message = err.Error()
	case err != nil:
		result.Status = StatusUnhealthy
		result.Message = err.Error()
	}
	return result
}

// effective maps a dependency result onto the overall status
func effective(status string, required bool) string {
	if status == StatusUnhealthy && !required {
		return StatusDegraded
	}
	return status
}

func worst(a, b string) string {
	rank := map[string]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// DatabaseCheck runs a trivial query and reports an exhausted pool as degraded
func DatabaseCheck(db *sql.DB) CheckFunc {
	return func(ctx context.Context) error {
		var one int
		if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
			return errors.Join(errors.New("query failed"), err)
		}
		stats := db.Stats()
		if stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
			return errors.Join(ErrDegraded, errors.New("connection pool exhausted"))
		}
		return nil
	}
}

// RedisCheck pings the Redis server
func RedisCheck(client *redis.Client) CheckFunc {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

// RegisterHealthRoutes registers health check endpoints
func RegisterHealthRoutes(router *mux.Router, checker *HealthChecker) {
	router.HandleFunc("/healthz", checker.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/readyz", checker.Readiness).Methods(http.MethodGet)
}
