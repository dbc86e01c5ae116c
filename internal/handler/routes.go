package handler

import (
	"github.com/labstack/echo/v4"

	"odata-batch-go/internal/middleware"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
func RegisterRoutes(e *echo.Echo, b *BatchHandler, health *HealthHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/status", health.Status)

	multipart := middleware.RequireMultipartMixed()
	e.POST("/$batch", b.Forward, multipart)
	e.POST("/batch/echo", b.Echo, multipart)
	e.POST("/batch/validate", b.Validate, multipart)
}
