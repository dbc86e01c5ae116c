package handler

import (
	"net/http"
	"os"

	"github.com/labstack/echo/v4"

	"odata-batch-go/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns gateway status information.
func (h *HealthHandler) Status(c echo.Context) error {
	tmpDir := h.cfg.Batch.TmpDir
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":             "ok",
		"version":            string(h.version),
		"upstream_url":       sanitizeURL(h.cfg.Upstream.BaseURL),
		"forwarding":         h.cfg.Upstream.ForwardingEnabled(),
		"tmp_dir":            tmpDir,
		"buffer_size":        h.cfg.Batch.BufferSize,
		"response_as_string": h.cfg.Batch.ResponseAsString,
	})
}

func sanitizeURL(raw string) string {
	return userinfoPattern.ReplaceAllString(raw, "${1}[REDACTED]@")
}
