package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestSecurityHeaders_AddsHeaders(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeaders())
	e.GET("/test", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if v := rec.Header().Get("X-Content-Type-Options"); v != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want %q", v, "nosniff")
	}
	if v := rec.Header().Get("X-Frame-Options"); v != "DENY" {
		t.Errorf("X-Frame-Options = %q, want %q", v, "DENY")
	}
	if v := rec.Header().Get("Cache-Control"); v != "no-store" {
		t.Errorf("Cache-Control = %q, want %q", v, "no-store")
	}
}

func TestSecurityHeaders_HandlerCacheControlWins(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeaders())
	e.GET("/test", func(c echo.Context) error {
		c.Response().Header()["Cache-Control"] = []string{"max-age=60"}
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if v := rec.Header().Values("Cache-Control"); len(v) != 1 || v[0] != "max-age=60" {
		t.Errorf("Cache-Control = %q, want [max-age=60]", v)
	}
}

func TestSecurityHeaders_StripsHopByHop(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeaders())

	var got http.Header
	e.POST("/$batch", func(c echo.Context) error {
		got = c.Request().Header.Clone()
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodPost, "/$batch", http.NoBody)
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Proxy-Authorization", "Basic abc")
	req.Header.Set("Upgrade", "h2c")
	req.Header.Set("Content-Type", "multipart/mixed; boundary=b")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	for _, h := range []string{"Connection", "Proxy-Authorization", "Upgrade"} {
		if v := got.Get(h); v != "" {
			t.Errorf("%s should be stripped, got %q", h, v)
		}
	}
	if got.Get("Content-Type") == "" {
		t.Error("Content-Type was stripped")
	}
}

func TestRequireMultipartMixed(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		wantStatus  int
	}{
		{"multipart mixed", "multipart/mixed; boundary=batch_1", http.StatusOK},
		{"mixed case", "Multipart/Mixed; boundary=batch_1", http.StatusOK},
		{"json", "application/json", http.StatusUnsupportedMediaType},
		{"form", "multipart/form-data; boundary=x", http.StatusUnsupportedMediaType},
		{"missing", "", http.StatusUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.POST("/batch/validate", func(c echo.Context) error {
				return c.String(http.StatusOK, "ok")
			}, RequireMultipartMixed())

			req := httptest.NewRequest(http.MethodPost, "/batch/validate", strings.NewReader("x"))
			if tt.contentType != "" {
				req.Header.Set(echo.HeaderContentType, tt.contentType)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
