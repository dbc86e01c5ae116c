// Package model defines shared types for the batch gateway.
package model

import (
	"context"
	"io"
	"net/http"
)

// BatchRequest is an inbound $batch call.
type BatchRequest struct {
	Ctx         context.Context
	ContentType string
	Header      http.Header
	Body        io.Reader
}

// UpstreamResponse is the answer of the upstream OData service, streamed
// back to the caller.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// BatchResponse is a batch answered by the gateway itself.
type BatchResponse struct {
	StatusCode    int
	ContentType   string
	ContentLength int64
	Body          io.ReadCloser
}

// PartSummary describes one parsed sub-request.
type PartSummary struct {
	Kind      string `json:"kind"`
	Method    string `json:"method"`
	URI       string `json:"uri"`
	ContentID string `json:"content_id,omitempty"`
	BodyBytes int64  `json:"body_bytes"`
}

// ChangeSetSummary groups the requests of one change set.
type ChangeSetSummary struct {
	Requests []PartSummary `json:"requests"`
}

// BatchSummary is the result of validating a batch.
type BatchSummary struct {
	Parts      int                `json:"parts"`
	Queries    []PartSummary      `json:"queries"`
	ChangeSets []ChangeSetSummary `json:"changesets"`
}
