package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"

	"github.com/labstack/echo/v4"

	"odata-batch-go/internal/batch"
	"odata-batch-go/internal/model"
	"odata-batch-go/internal/service"
)

// userinfoPattern matches credentials embedded in URLs quoted by error messages.
var userinfoPattern = regexp.MustCompile(`(://)[^/@\s"]+@`)

// BatchHandler serves the $batch endpoints.
type BatchHandler struct {
	service *service.BatchService
	logger  *slog.Logger
}

// NewBatchHandler creates a BatchHandler.
func NewBatchHandler(svc *service.BatchService, logger *slog.Logger) *BatchHandler {
	return &BatchHandler{
		service: svc,
		logger:  logger.With("component", "batch_handler"),
	}
}

func newBatchRequest(c echo.Context) *model.BatchRequest {
	req := c.Request()
	return &model.BatchRequest{
		Ctx:         req.Context(),
		ContentType: req.Header.Get(echo.HeaderContentType),
		Header:      req.Header,
		Body:        req.Body,
	}
}

// Forward sends the batch to the upstream service and streams its answer back.
func (h *BatchHandler) Forward(c echo.Context) error {
	resp, err := h.service.Forward(newBatchRequest(c))
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	header := c.Response().Header()
	for key, vals := range resp.Header {
		header[key] = vals
	}
	c.Response().WriteHeader(resp.StatusCode)

	// The status is already sent, so a failed copy leaves the client with a
	// truncated body. Log it and move on.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming upstream response",
			"err", sanitizeError(err),
			"path", c.Request().URL.Path,
		)
	}
	return nil
}

// Echo answers the batch locally.
func (h *BatchHandler) Echo(c echo.Context) error {
	resp, err := h.service.Echo(newBatchRequest(c))
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	header := c.Response().Header()
	header.Set(echo.HeaderContentType, resp.ContentType)
	header.Set(echo.HeaderContentLength, strconv.FormatInt(resp.ContentLength, 10))
	c.Response().WriteHeader(resp.StatusCode)

	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("writing batch response",
			"err", err,
			"path", c.Request().URL.Path,
		)
	}
	return nil
}

// Validate parses the batch and returns its JSON summary.
func (h *BatchHandler) Validate(c echo.Context) error {
	summary, err := h.service.Validate(newBatchRequest(c))
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *BatchHandler) mapError(c echo.Context, err error) error {
	var (
		syntaxErr      *batch.SyntaxError
		unsupportedErr *batch.UnsupportedEntityError
		ioErr          *batch.IOError
	)

	if errors.As(err, &syntaxErr) || errors.Is(err, batch.ErrValidation) {
		h.logger.Warn("rejected batch",
			"err", err,
			"path", c.Request().URL.Path,
		)
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}

	h.logger.Error("batch error",
		"err", sanitizeError(err),
		"path", c.Request().URL.Path,
	)

	if errors.Is(err, service.ErrNoUpstream) {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "no upstream OData service configured",
		})
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error": "upstream request timed out",
		})
	}

	if errors.Is(err, context.Canceled) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "client disconnected",
		})
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error": "upstream request timed out",
		})
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream host unreachable",
		})
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream connection failed",
		})
	}

	if errors.As(err, &ioErr) || errors.As(err, &unsupportedErr) {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "batch buffering failed",
		})
	}

	return c.JSON(http.StatusBadGateway, map[string]string{
		"error": "upstream request failed",
	})
}

// sanitizeError redacts URL credentials from error messages.
func sanitizeError(err error) string {
	return userinfoPattern.ReplaceAllString(err.Error(), "${1}[REDACTED]@")
}
