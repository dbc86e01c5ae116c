package batch

import (
	"io"
	"mime"
	"strings"
)

// QueryPart is a retrieve request outside any change set.
type QueryPart struct {
	Method    string
	URI       string
	Header    *Header
	ContentID string
}

// Part is one top-level part of a batch request: either a query or a
// change set.
type Part struct {
	Query     *QueryPart
	ChangeSet []*ChangeSetPart
}

// IsChangeSet reports whether the part is a change set.
func (p *Part) IsChangeSet() bool { return p.Query == nil }

// Close releases the bodies of every change-set request in the part.
func (p *Part) Close() error {
	var first error
	for _, r := range p.ChangeSet {
		if err := r.Body().Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ParseRequest decodes a batch request body sent with contentType.
func ParseRequest(cs *Charsets, contentType string, r io.Reader) ([]*Part, error) {
	boundary, err := BoundaryFromContentType(contentType)
	if err != nil {
		return nil, err
	}
	lines, err := ReadLines(r)
	if err != nil {
		return nil, err
	}
	rawParts, err := SplitByBoundary(lines, boundary)
	if err != nil {
		return nil, err
	}

	parts := make([]*Part, 0, len(rawParts))
	for _, raw := range rawParts {
		p, err := parsePart(cs, raw)
		if err != nil {
			closeParts(parts)
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, nil
}

func parsePart(cs *Charsets, lines []Line) (*Part, error) {
	mimeHeader, rest := ConsumeHeaders(lines)
	contentType := mimeHeader.Get(HeaderContentType)
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, syntaxErrorf(mimeHeader.Line(), "invalid part content type %q", contentType)
	}

	switch mediaType {
	case ContentTypeMultipartMixed:
		changeSet, err := parseChangeSet(cs, contentType, rest)
		if err != nil {
			return nil, err
		}
		return &Part{ChangeSet: changeSet}, nil
	case ContentTypeApplicationHTTP:
		if err := checkTransferEncoding(mimeHeader); err != nil {
			return nil, err
		}
		q, err := parseQuery(mimeHeader, rest)
		if err != nil {
			return nil, err
		}
		return &Part{Query: q}, nil
	default:
		return nil, syntaxErrorf(mimeHeader.Line(), "unsupported part content type %q", mediaType)
	}
}

func parseChangeSet(cs *Charsets, contentType string, lines []Line) ([]*ChangeSetPart, error) {
	boundary, err := BoundaryFromContentType(contentType)
	if err != nil {
		return nil, err
	}
	lines, _ = ConsumeBlankLine(lines)
	rawParts, err := SplitByBoundary(lines, boundary)
	if err != nil {
		return nil, err
	}

	out := make([]*ChangeSetPart, 0, len(rawParts))
	for _, raw := range rawParts {
		p, err := parseChangeSetRequest(cs, raw)
		if err != nil {
			closeChangeSet(out)
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func parseChangeSetRequest(cs *Charsets, lines []Line) (*ChangeSetPart, error) {
	mimeHeader, rest := ConsumeHeaders(lines)
	mediaType, _, err := mime.ParseMediaType(mimeHeader.Get(HeaderContentType))
	if err != nil || mediaType != ContentTypeApplicationHTTP {
		return nil, syntaxErrorf(mimeHeader.Line(), "change set part must be %s", ContentTypeApplicationHTTP)
	}
	if err := checkTransferEncoding(mimeHeader); err != nil {
		return nil, err
	}

	req, err := parseHTTPRequest(rest)
	if err != nil {
		return nil, err
	}
	if !IsChangeMethod(req.method) {
		return nil, syntaxErrorf(req.line, "method %q is not allowed inside a change set", req.method)
	}

	part, err := NewChangeSetPartBuilder(cs).
		Method(req.method).
		URI(req.uri).
		Headers(req.header.Map()).
		ContentID(contentID(req.header, mimeHeader)).
		BodyBytes(req.body).
		Build()
	if err != nil {
		return nil, err
	}
	return part, nil
}

func parseQuery(mimeHeader *Header, lines []Line) (*QueryPart, error) {
	req, err := parseHTTPRequest(lines)
	if err != nil {
		return nil, err
	}
	if req.method != "GET" {
		return nil, syntaxErrorf(req.line, "method %q is only allowed inside a change set", req.method)
	}
	return &QueryPart{
		Method:    req.method,
		URI:       req.uri,
		Header:    req.header,
		ContentID: contentID(req.header, mimeHeader),
	}, nil
}

type httpRequest struct {
	method string
	uri    string
	header *Header
	body   []byte
	line   int
}

// parseHTTPRequest reads a request line, its headers and the body that
// follows the blank line.
func parseHTTPRequest(lines []Line) (*httpRequest, error) {
	lines, _ = ConsumeBlankLine(lines)
	if len(lines) == 0 {
		return nil, syntaxErrorf(0, "missing request line")
	}
	first := lines[0]
	fields := strings.Fields(first.Text)
	if len(fields) != 3 || !strings.HasPrefix(fields[2], "HTTP/") {
		return nil, syntaxErrorf(first.Number, "invalid request line %q", strings.TrimSpace(first.Text))
	}

	header, rest := ConsumeHeaders(lines[1:])
	rest, _ = ConsumeBlankLine(rest)

	var body strings.Builder
	for _, l := range rest {
		body.WriteString(l.Text)
	}
	return &httpRequest{
		method: fields[0],
		uri:    fields[1],
		header: header,
		body:   []byte(body.String()),
		line:   first.Number,
	}, nil
}

func contentID(requestHeader, mimeHeader *Header) string {
	if id := requestHeader.Get(HeaderContentID); id != "" {
		return id
	}
	return mimeHeader.Get(HeaderContentID)
}

func checkTransferEncoding(h *Header) error {
	enc := h.Get(HeaderContentTransferEncoding)
	if enc != "" && !strings.EqualFold(enc, BinaryEncoding) {
		return syntaxErrorf(h.LineOf(HeaderContentTransferEncoding), "invalid %s %q", HeaderContentTransferEncoding, enc)
	}
	return nil
}

func closeParts(parts []*Part) {
	for _, p := range parts {
		_ = p.Close()
	}
}

func closeChangeSet(parts []*ChangeSetPart) {
	for _, p := range parts {
		_ = p.Body().Close()
	}
}
