package api

import (
	"context"
	"net/http"
	"time"
)

const healthCheckTimeout = 3 * time.Second

type componentStatus struct {
	Component string `json:"component"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

type healthResponse struct {
	Status        string            `json:"status"`
	UptimeSeconds int64             `json:"uptimeSeconds"`
	Database      string            `json:"db"`
	Components    []componentStatus `json:"components"`
	Timestamp     time.Time         `json:"timestamp"`
}

func (h *Handler) componentHealth(ctx context.Context) ([]componentStatus, string, int) {
	overallStatus := "ok"
	statusCode := http.StatusOK
	recordComponent := func(component string, err error) componentStatus {
		status := "ok"
		message := ""
		if err != nil {
			status = "degraded"
			message = err.Error()
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
		return componentStatus{Component: component, Status: status, Error: message}
	}

	components := make([]componentStatus, 0, len(h.Probes)+1)
	if h.Store != nil {
		components = append(components, recordComponent("datastore", h.Store.Ping(ctx)))
	}
	for _, probe := range h.Probes {
		if probe.Check == nil {
			continue
		}
		components = append(components, recordComponent(probe.Name, probe.Check(ctx)))
	}
	return components, overallStatus, statusCode
}

// Healthcheck reports 200 when every dependency answers and 503 otherwise.
func (h *Handler) Healthcheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	components, status, code := h.componentHealth(ctx)
	database := "disconnected"
	for _, component := range components {
		if component.Component == "datastore" && component.Status == "ok" {
			database = "connected"
		}
	}
	var uptime int64
	if !h.StartedAt.IsZero() {
		uptime = int64(time.Since(h.StartedAt).Seconds())
	}
	respond(w, code, healthResponse{
		Status:        status,
		UptimeSeconds: uptime,
		Database:      database,
		Components:    components,
		Timestamp:     time.Now().UTC(),
	}, "health check "+status)
}
