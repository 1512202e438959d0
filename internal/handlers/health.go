package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthHandler reports store reachability and live socket count.
type HealthHandler struct {
	ping        func(ctx context.Context) error
	connections func() int
}

func NewHealthHandler(ping func(ctx context.Context) error, connections func() int) *HealthHandler {
	return &HealthHandler{ping: ping, connections: connections}
}

func (h *HealthHandler) HealthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status, code, mongo := "healthy", http.StatusOK, "up"
	if err := h.ping(ctx); err != nil {
		status, code, mongo = "degraded", http.StatusServiceUnavailable, "down"
	}
	return c.JSON(code, echo.Map{
		"status":      status,
		"service":     "socialgraph",
		"mongo":       mongo,
		"connections": h.connections(),
	})
}
