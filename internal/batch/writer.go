package batch

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// Response is one sub-response of a batch.
type Response struct {
	StatusCode int
	StatusInfo string
	Header     map[string]string
	// Body is nil, an io.Reader, a []byte or a string.
	Body      any
	ContentID string
}

// Entity implements EntityResponse.
func (r *Response) Entity() any { return r.Body }

// HeaderValue implements EntityResponse.
func (r *Response) HeaderValue(name string) string {
	for k, v := range r.Header {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// ResponsePart groups the responses of one top-level batch part.
type ResponsePart struct {
	ChangeSet bool
	Responses []*Response
}

// Result is a written batch response.
type Result struct {
	StatusCode  int
	ContentType string
	// Entity is a *Source in streaming mode or a string in string mode.
	Entity any
	Length int64
	// Spilled reports whether the body outgrew memory while being written.
	Spilled bool
}

// Payload is a written batch request.
type Payload struct {
	Body        *Source
	ContentType string
	// Spilled reports whether the body outgrew memory while being written.
	Spilled bool
}

// WriterOptions configures RequestWriter and ResponseWriter.
type WriterOptions struct {
	Builder BuilderOptions
	// AsString makes ResponseWriter return the body as a string.
	AsString bool
}

// partWriter appends lines to a BodyBuilder and remembers the first error,
// so that a sequence of appends can be checked once.
type partWriter struct {
	b   *BodyBuilder
	err error
}

func (w *partWriter) text(parts ...string) {
	for _, s := range parts {
		if w.err != nil {
			return
		}
		w.err = w.b.Append(s)
	}
}

func (w *partWriter) int(n int) {
	if w.err == nil {
		w.err = w.b.AppendInt(n)
	}
}

func (w *partWriter) body(body *Body) {
	if w.err != nil {
		_ = body.Source().Close()
		return
	}
	w.err = w.b.AppendBody(body)
}

func (w *partWriter) header(name, value string) {
	w.text(name, ": ", value, crlf)
}

func (w *partWriter) headers(h map[string]string, skip ...string) {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if slices.ContainsFunc(skip, func(s string) bool { return strings.EqualFold(s, k) }) {
			continue
		}
		w.header(k, h[k])
	}
}

func (w *partWriter) mimeHeaders(contentID string) {
	w.header(HeaderContentType, ContentTypeApplicationHTTP)
	w.header(HeaderContentTransferEncoding, BinaryEncoding)
	if contentID != "" {
		w.header(HeaderContentID, contentID)
	}
	w.text(crlf)
}

// RequestWriter serializes batch requests.
type RequestWriter struct {
	charsets *Charsets
	opts     WriterOptions
}

// NewRequestWriter returns a writer that tracks charsets in cs.
func NewRequestWriter(cs *Charsets, opts WriterOptions) *RequestWriter {
	return &RequestWriter{charsets: cs, opts: opts}
}

// Write serializes parts into a multipart/mixed body. Change-set bodies
// are consumed.
func (rw *RequestWriter) Write(parts []*Part) (*Payload, error) {
	boundary := GenerateBoundary("batch")
	b := NewBodyBuilder(rw.charsets, rw.opts.Builder)
	w := &partWriter{b: b}

	for _, p := range parts {
		w.text(boundaryPreamble, boundary, crlf)
		if p.IsChangeSet() {
			rw.writeChangeSet(w, p.ChangeSet)
		} else {
			rw.writeQuery(w, p.Query)
		}
	}
	w.text(boundaryPreamble, boundary, boundaryPreamble, crlf)

	if w.err != nil {
		_ = b.Discard()
		return nil, w.err
	}
	spilled := b.Spilled()
	src, err := b.ContentAsStream()
	if err != nil {
		return nil, err
	}
	return &Payload{
		Body:        src,
		ContentType: ContentTypeMultipartMixed + "; boundary=" + boundary,
		Spilled:     spilled,
	}, nil
}

func (rw *RequestWriter) writeQuery(w *partWriter, q *QueryPart) {
	w.mimeHeaders(q.ContentID)
	w.text(q.Method, " ", q.URI, " ", httpVersion, crlf)
	if q.Header != nil {
		for _, name := range q.Header.Names() {
			if strings.EqualFold(name, HeaderContentID) {
				continue
			}
			w.header(name, q.Header.Joined(name))
		}
	}
	w.text(crlf, crlf)
}

func (rw *RequestWriter) writeChangeSet(w *partWriter, changeSet []*ChangeSetPart) {
	boundary := GenerateBoundary("changeset")
	w.header(HeaderContentType, ContentTypeMultipartMixed+"; boundary="+boundary)
	w.text(crlf)
	for _, p := range changeSet {
		w.text(boundaryPreamble, boundary, crlf)
		w.mimeHeaders(p.ContentID())
		w.text(p.Method(), " ", p.URI(), " ", httpVersion, crlf)
		w.headers(p.Headers(), HeaderContentID, HeaderContentLength)
		body := BodyFromPart(p)
		if !body.IsEmpty() {
			w.header(HeaderContentLength, strconv.FormatInt(body.Len(), 10))
		}
		w.text(crlf)
		w.body(body)
		w.text(crlf)
	}
	w.text(boundaryPreamble, boundary, boundaryPreamble, crlf)
}

// ResponseWriter serializes batch responses.
type ResponseWriter struct {
	charsets *Charsets
	opts     WriterOptions
}

// NewResponseWriter returns a writer that tracks charsets in cs.
func NewResponseWriter(cs *Charsets, opts WriterOptions) *ResponseWriter {
	return &ResponseWriter{charsets: cs, opts: opts}
}

// Write serializes parts into a 202 Accepted multipart/mixed response.
func (rw *ResponseWriter) Write(parts []*ResponsePart) (*Result, error) {
	boundary := GenerateBoundary("batch")
	b := NewBodyBuilder(rw.charsets, rw.opts.Builder)
	w := &partWriter{b: b}

	for _, p := range parts {
		w.text(boundaryPreamble, boundary, crlf)
		if p.ChangeSet {
			rw.writeChangeSet(w, p.Responses)
		} else if len(p.Responses) > 0 {
			rw.writeResponse(w, p.Responses[0])
		}
		if w.err != nil {
			break
		}
	}
	w.text(boundaryPreamble, boundary, boundaryPreamble, crlf)

	if w.err != nil {
		_ = b.Discard()
		return nil, w.err
	}

	res := &Result{
		StatusCode:  http.StatusAccepted,
		ContentType: ContentTypeMultipartMixed + "; boundary=" + boundary,
		Spilled:     b.Spilled(),
	}
	if rw.opts.AsString {
		s, err := b.ContentAsString(rw.charsets.Default())
		if err != nil {
			return nil, err
		}
		res.Entity = s
		res.Length = b.CalculateLength(s)
		return res, nil
	}
	res.Length = b.Len()
	src, err := b.ContentAsStream()
	if err != nil {
		return nil, err
	}
	res.Entity = src
	return res, nil
}

func (rw *ResponseWriter) writeChangeSet(w *partWriter, responses []*Response) {
	boundary := GenerateBoundary("changeset")
	w.header(HeaderContentType, ContentTypeMultipartMixed+"; boundary="+boundary)
	w.text(crlf)
	for _, r := range responses {
		w.text(boundaryPreamble, boundary, crlf)
		rw.writeResponse(w, r)
	}
	w.text(boundaryPreamble, boundary, boundaryPreamble, crlf)
}

func (rw *ResponseWriter) writeResponse(w *partWriter, r *Response) {
	w.mimeHeaders(r.ContentID)
	if w.err != nil {
		return
	}

	info := r.StatusInfo
	if info == "" {
		info = http.StatusText(r.StatusCode)
	}
	w.text(httpVersion, " ")
	w.int(r.StatusCode)
	w.text(" ", info, crlf)
	w.headers(r.Header, HeaderContentLength, HeaderContentID)

	var body *Body
	if r.Body == nil {
		body = EmptyBody(rw.charsets)
	} else {
		var err error
		if body, err = BodyFromResponse(rw.charsets, r); err != nil {
			if w.err == nil {
				w.err = err
			}
			return
		}
	}
	if !body.IsEmpty() {
		w.header(HeaderContentLength, strconv.FormatInt(body.Len(), 10))
	}
	w.text(crlf)
	w.body(body)
	w.text(crlf)
}
