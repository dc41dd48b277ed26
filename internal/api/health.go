package api

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/dental-appointment-assistant/pkg/logging"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

const (
	depOK       = "ok"
	depDown     = "down"
	depDisabled = "disabled"
)

// dependency is one readiness probe. Non-critical ones degrade the status
// instead of failing it.
type dependency struct {
	name     string
	pinger   Pinger
	critical bool
}

type HealthHandler struct {
	deps    []dependency
	logger  *logging.Logger
	env     string
	version string
}

// NewHealthHandler probes Postgres as critical and Redis, when configured, as
// non-critical: the slot lock and chat transcripts can be lost without
// breaking scheduling.
func NewHealthHandler(pg Pinger, rdb *redis.Client, env, version string, logger *logging.Logger) *HealthHandler {
	if logger == nil {
		logger = logging.Default()
	}
	deps := []dependency{{name: "postgres", pinger: pg, critical: true}}
	if rdb != nil {
		deps = append(deps, dependency{
			name:   "redis",
			pinger: pingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
		})
	} else {
		deps = append(deps, dependency{name: "redis"})
	}
	return &HealthHandler{deps: deps, logger: logger, env: env, version: version}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	})
}

// Readiness answers 503 only when a critical dependency is down.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	results := make(map[string]string, len(h.deps))
	status := "ok"

	for _, dep := range h.deps {
		if dep.pinger == nil {
			results[dep.name] = depDisabled
			continue
		}

		pingCtx, pingCancel := context.WithTimeout(ctx, time.Second)
		err := dep.pinger.Ping(pingCtx)
		pingCancel()

		if err == nil {
			results[dep.name] = depOK
			continue
		}

		results[dep.name] = depDown
		h.logger.Warn("readiness probe failed", "dependency", dep.name, "request_id", GetRequestID(r.Context()), "error", err)
		switch {
		case dep.critical:
			status = "error"
		case status == "ok":
			status = "degraded"
		}
	}

	httpStatus := http.StatusOK
	if status == "error" {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, ReadinessResponse{
		Status:       status,
		Version:      h.version,
		Env:          h.env,
		Dependencies: results,
	})
}
