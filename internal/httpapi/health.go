package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const readinessTimeout = 3 * time.Second

// HealthChecker is implemented by dependencies the readiness probe checks.
// The storage layer implements it via its Health method.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// CheckFunc adapts a function, such as a pool's Ping, to HealthChecker.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) Health(ctx context.Context) error { return f(ctx) }

// HealthCheck names a dependency for the readiness report.
type HealthCheck struct {
	Name    string
	Checker HealthChecker
}

// ReadinessResponse represents the JSON response from the readiness probe.
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

type healthHandler struct {
	appName     string
	version     string
	environment string
	checks      []HealthCheck
}

func (h *healthHandler) register(g *echo.Group) {
	g.GET("", h.health)
	g.GET("/live", h.live)
	g.GET("/ready", h.ready)
}

func (h *healthHandler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":      "healthy",
		"service":     h.appName,
		"version":     h.version,
		"environment": h.environment,
	})
}

func (h *healthHandler) live(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"alive": true, "service": h.appName})
}

// ready checks every dependency under one 3 second budget and answers 503
// when any of them fails.
func (h *healthHandler) ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessTimeout)
	defer cancel()

	resp := ReadinessResponse{
		Status:    "healthy",
		Checks:    make(map[string]string, len(h.checks)),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK
	for _, check := range h.checks {
		if err := check.Checker.Health(ctx); err != nil {
			resp.Checks[check.Name] = "disconnected"
			resp.Status = "unhealthy"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[check.Name] = "connected"
	}
	return c.JSON(code, resp)
}
