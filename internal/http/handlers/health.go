// Package handlers implements the devlens HTTP surface over the service
// layer, following the teacher's thin-handler pattern: parse input,
// delegate to a service, map the result or error onto the wire shape.
package handlers

import (
	"context"
	"database/sql"

	"github.com/jmylchreest/devlens/internal/version"
)

// HealthOutput is the liveness/readiness probe response body.
type HealthOutput struct {
	Body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
}

// HealthHandlers serves the unauthenticated liveness/readiness probes.
type HealthHandlers struct {
	DB *sql.DB
}

// Livez always reports healthy once the process is running; it never
// touches external dependencies so it can't be dragged down by a slow DB.
func (h *HealthHandlers) Livez(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	out := &HealthOutput{}
	out.Body.Status = "ok"
	out.Body.Version = version.Get().Version
	return out, nil
}

// Readyz additionally pings the database, reporting unready rather than
// erroring so orchestrators can distinguish "starting up" from "crashed".
func (h *HealthHandlers) Readyz(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	out := &HealthOutput{}
	out.Body.Version = version.Get().Version
	if err := h.DB.PingContext(ctx); err != nil {
		out.Body.Status = "not ready"
		return out, nil
	}
	out.Body.Status = "ok"
	return out, nil
}
