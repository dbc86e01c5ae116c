package middleware

import (
	"mime"
	"net/http"

	"github.com/labstack/echo/v4"

	"odata-batch-go/internal/batch"
)

// hopByHopHeaders are connection-scoped headers that must not reach the
// batch codec or the upstream service.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Upgrade",
}

// SecurityHeaders returns an Echo middleware that adds security headers
// and strips hop-by-hop headers from requests. Batch responses carry
// per-request data and are never cached.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			for _, h := range hopByHopHeaders {
				c.Request().Header.Del(h)
			}

			header := c.Response().Header()
			header.Set("X-Content-Type-Options", "nosniff")
			header.Set("X-Frame-Options", "DENY")
			if header.Get("Cache-Control") == "" {
				header.Set("Cache-Control", "no-store")
			}

			return next(c)
		}
	}
}

// RequireMultipartMixed rejects requests whose body is not multipart/mixed
// with 415 Unsupported Media Type.
func RequireMultipartMixed() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			mediaType, _, err := mime.ParseMediaType(c.Request().Header.Get(echo.HeaderContentType))
			if err != nil || mediaType != batch.ContentTypeMultipartMixed {
				return c.JSON(http.StatusUnsupportedMediaType, map[string]string{
					"error": "batch requests must be sent as multipart/mixed",
				})
			}
			return next(c)
		}
	}
}
