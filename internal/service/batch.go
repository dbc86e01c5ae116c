// Package service implements the batch gateway: parsing, local answering
// and forwarding of OData $batch requests.
package service

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"odata-batch-go/internal/batch"
	"odata-batch-go/internal/client"
	"odata-batch-go/internal/config"
	"odata-batch-go/internal/metrics"
	"odata-batch-go/internal/model"
)

// ErrNoUpstream is returned by Forward when no upstream service is configured.
var ErrNoUpstream = errors.New("no upstream configured: set upstream.base_url or --upstream")

// forwardableRequestHeaders are the only inbound headers passed upstream
// next to the re-encoded Content-Type.
var forwardableRequestHeaders = []string{
	"Accept",
	"Accept-Language",
	"Authorization",
	"DataServiceVersion",
	"MaxDataServiceVersion",
	"OData-Version",
	"OData-MaxVersion",
	"X-CSRF-Token",
}

// forwardableResponseHeaders are the only upstream headers returned to the client.
var forwardableResponseHeaders = map[string]bool{
	"Content-Type":       true,
	"Content-Length":     true,
	"Dataserviceversion": true,
	"Odata-Version":      true,
	"Date":               true,
	"Cache-Control":      true,
}

const userAgent = "odata-batch-go/1.0"

// BatchService parses inbound batches and answers or forwards them.
// Every call works on its own charset context.
type BatchService struct {
	client   *client.UpstreamClient
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	batchURL string
}

// NewBatchService creates a BatchService. The metrics parameter is optional.
func NewBatchService(c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*BatchService, error) {
	s := &BatchService{
		client:  c,
		cfg:     cfg,
		logger:  logger.With("component", "batch_service"),
		metrics: m,
	}
	if cfg.Upstream.BaseURL != "" {
		u, err := url.Parse(cfg.Upstream.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse upstream base_url: %w", err)
		}
		u.Path = strings.TrimRight(u.Path, "/") + "/$batch"
		u.RawPath = ""
		s.batchURL = u.String()
	}
	return s, nil
}

// BatchURL returns the upstream $batch endpoint, or "" when forwarding is off.
func (s *BatchService) BatchURL() string { return s.batchURL }

func (s *BatchService) writerOptions() batch.WriterOptions {
	return batch.WriterOptions{
		Builder: batch.BuilderOptions{
			BufferSize: s.cfg.Batch.BufferSize,
			TempDir:    s.cfg.Batch.TmpDir,
		},
		AsString: s.cfg.Batch.ResponseAsString,
	}
}

// Parse decodes the inbound batch. The caller must Close every returned part.
func (s *BatchService) Parse(req *model.BatchRequest) ([]*batch.Part, *batch.Charsets, error) {
	cs := batch.NewCharsets()
	parts, err := batch.ParseRequest(cs, req.ContentType, req.Body)
	if err != nil {
		s.countParseError(err)
		return nil, nil, err
	}

	var queries, changes int
	for _, p := range parts {
		if p.IsChangeSet() {
			changes += len(p.ChangeSet)
		} else {
			queries++
		}
	}
	if s.metrics != nil {
		s.metrics.BatchParts.WithLabelValues(metrics.KindQuery).Add(float64(queries))
		s.metrics.BatchParts.WithLabelValues(metrics.KindChangeSetRequest).Add(float64(changes))
	}
	s.logger.Debug("parsed batch",
		"parts", len(parts),
		"queries", queries,
		"changeset_requests", changes,
	)
	return parts, cs, nil
}

func (s *BatchService) countParseError(err error) {
	if s.metrics == nil {
		return
	}
	var (
		syntaxErr *batch.SyntaxError
		ioErr     *batch.IOError
	)
	kind := metrics.ErrorIO
	switch {
	case errors.As(err, &syntaxErr):
		kind = metrics.ErrorSyntax
	case errors.Is(err, batch.ErrValidation):
		kind = metrics.ErrorValidation
	case errors.As(err, &ioErr):
		kind = metrics.ErrorIO
	}
	s.metrics.BatchParseErrors.WithLabelValues(kind).Inc()
}

// Forward re-encodes the batch and posts it to the upstream $batch
// endpoint. The caller is responsible for closing the response body.
func (s *BatchService) Forward(req *model.BatchRequest) (*model.UpstreamResponse, error) {
	if s.batchURL == "" {
		return nil, ErrNoUpstream
	}

	parts, cs, err := s.Parse(req)
	if err != nil {
		return nil, err
	}
	defer closeParts(parts)

	payload, err := batch.NewRequestWriter(cs, s.writerOptions()).Write(parts)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}
	defer func() { _ = payload.Body.Close() }()

	size := payload.Body.Size()
	s.metrics.ObserveWrite(metrics.DirectionRequest, size, payload.Spilled)
	s.logger.Debug("forwarding batch",
		"bytes", size,
		"spilled", payload.Spilled,
	)

	header := filterRequestHeaders(req.Header)
	header.Set("Content-Type", payload.ContentType)

	resp, err := s.client.PostBatch(req.Ctx, s.batchURL, header, payload.Body, size)
	if err != nil {
		s.logger.Error("upstream batch failed", "err", err)
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}

	resp.Header = filterResponseHeaders(resp.Header)
	return resp, nil
}

// Echo answers every sub-request locally: GET with 200, POST with 201 and
// the request body, every other change with 204.
func (s *BatchService) Echo(req *model.BatchRequest) (*model.BatchResponse, error) {
	parts, cs, err := s.Parse(req)
	if err != nil {
		return nil, err
	}
	defer closeParts(parts)

	responses := make([]*batch.ResponsePart, 0, len(parts))
	for _, p := range parts {
		if !p.IsChangeSet() {
			responses = append(responses, &batch.ResponsePart{
				Responses: []*batch.Response{{
					StatusCode: http.StatusOK,
					ContentID:  p.Query.ContentID,
				}},
			})
			continue
		}
		rp := &batch.ResponsePart{ChangeSet: true}
		for _, cp := range p.ChangeSet {
			rp.Responses = append(rp.Responses, echoResponse(cp))
		}
		responses = append(responses, rp)
	}

	res, err := batch.NewResponseWriter(cs, s.writerOptions()).Write(responses)
	if err != nil {
		return nil, fmt.Errorf("encode batch response: %w", err)
	}
	s.metrics.ObserveWrite(metrics.DirectionResponse, res.Length, res.Spilled)

	out := &model.BatchResponse{
		StatusCode:    res.StatusCode,
		ContentType:   res.ContentType,
		ContentLength: res.Length,
	}
	switch entity := res.Entity.(type) {
	case string:
		out.Body = io.NopCloser(strings.NewReader(entity))
	case *batch.Source:
		out.Body = entity
	default:
		return nil, fmt.Errorf("encode batch response: unexpected entity %T", res.Entity)
	}
	return out, nil
}

func echoResponse(cp *batch.ChangeSetPart) *batch.Response {
	r := &batch.Response{ContentID: cp.ContentID()}
	if cp.Method() != http.MethodPost {
		r.StatusCode = http.StatusNoContent
		return r
	}
	r.StatusCode = http.StatusCreated
	r.Header = map[string]string{"Location": cp.URI()}
	if ct := cp.Header(batch.HeaderContentType); ct != "" {
		r.Header[batch.HeaderContentType] = ct
	}
	if cp.Body().Size() > 0 {
		r.Body = cp.Body()
	}
	return r
}

// Validate parses the batch and describes it without answering it.
func (s *BatchService) Validate(req *model.BatchRequest) (*model.BatchSummary, error) {
	parts, _, err := s.Parse(req)
	if err != nil {
		return nil, err
	}
	defer closeParts(parts)

	summary := &model.BatchSummary{
		Parts:      len(parts),
		Queries:    []model.PartSummary{},
		ChangeSets: []model.ChangeSetSummary{},
	}
	for _, p := range parts {
		if !p.IsChangeSet() {
			summary.Queries = append(summary.Queries, model.PartSummary{
				Kind:      metrics.KindQuery,
				Method:    p.Query.Method,
				URI:       p.Query.URI,
				ContentID: p.Query.ContentID,
			})
			continue
		}
		cs := model.ChangeSetSummary{Requests: make([]model.PartSummary, 0, len(p.ChangeSet))}
		for _, cp := range p.ChangeSet {
			cs.Requests = append(cs.Requests, model.PartSummary{
				Kind:      metrics.KindChangeSetRequest,
				Method:    cp.Method(),
				URI:       cp.URI(),
				ContentID: cp.ContentID(),
				BodyBytes: cp.Body().Size(),
			})
		}
		summary.ChangeSets = append(summary.ChangeSets, cs)
	}
	return summary, nil
}

func closeParts(parts []*batch.Part) {
	for _, p := range parts {
		_ = p.Close()
	}
}

func filterRequestHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	for _, key := range forwardableRequestHeaders {
		if vals := src.Values(key); len(vals) > 0 {
			dst[http.CanonicalHeaderKey(key)] = vals
		}
	}
	dst.Set("User-Agent", userAgent)
	return dst
}

func filterResponseHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	for key, vals := range src {
		if forwardableResponseHeaders[http.CanonicalHeaderKey(key)] {
			dst[key] = vals
		}
	}
	return dst
}
