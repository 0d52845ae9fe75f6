package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// HealthStatus represents the health of a single dependency
type HealthStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthReport is the body of a readiness response
type HealthReport struct {
	Status    string                  `json:"status"`
	Timestamp time.Time               `json:"timestamp"`
	Checks    map[string]HealthStatus `json:"checks"`
}

// HealthChecker probes the service dependencies
type HealthChecker struct {
	mu     sync.RWMutex
	db     *sql.DB
	redis  *redis.Client
	ready  bool
	logger *Logger
}

// NewHealthChecker creates a health checker. Either dependency may be nil
// when the service runs without it.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client, logger *Logger) *HealthChecker {
	if logger == nil {
		logger = NewLogger(InfoLevel, nil)
	}
	return &HealthChecker{db: db, redis: redisClient, logger: logger}
}

// SetReady marks the service as ready to receive traffic
func (h *HealthChecker) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// Check runs all dependency probes and returns the aggregate report
func (h *HealthChecker) Check(ctx context.Context) HealthReport {
	report := HealthReport{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]HealthStatus),
	}

	if h.db != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := h.db.PingContext(pingCtx)
		cancel()
		if err != nil {
			report.Status = "unhealthy"
			report.Checks["database"] = HealthStatus{Status: "unhealthy", Message: err.Error()}
		} else {
			report.Checks["database"] = HealthStatus{Status: "healthy"}
		}
	}

	if h.redis != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := h.redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			// rate limiting degrades to the local limiter, so redis being
			// down makes the service degraded rather than unhealthy
			if report.Status == "healthy" {
				report.Status = "degraded"
			}
			report.Checks["redis"] = HealthStatus{Status: "unhealthy", Message: err.Error()}
		} else {
			report.Checks["redis"] = HealthStatus{Status: "healthy"}
		}
	}

	return report
}

// LivenessHandler responds 200 whenever the process is running
func (h *HealthChecker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	}
}

// ReadinessHandler responds 200 when the service is marked ready and its
// critical dependencies pass their probes, 503 otherwise
func (h *HealthChecker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.mu.RLock()
		ready := h.ready
		h.mu.RUnlock()

		w.Header().Set("Content-Type", "application/json")

		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "not ready"})
			return
		}

		report := h.Check(r.Context())
		if report.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(report)
	}
}
