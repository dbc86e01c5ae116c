package batch

import (
	"fmt"
	"strings"
)

// changeMethods are the HTTP methods allowed inside a change set. Matching
// is case-sensitive.
var changeMethods = map[string]bool{
	"PUT":    true,
	"POST":   true,
	"DELETE": true,
	"MERGE":  true,
	"PATCH":  true,
}

// IsChangeMethod reports whether method may appear in a change set.
func IsChangeMethod(method string) bool {
	return changeMethods[method]
}

// ChangeSetPart is one mutating request inside a change set. It is
// immutable once built.
type ChangeSetPart struct {
	method    string
	uri       string
	headers   map[string]string
	contentID string
	body      *Source
}

// Method returns the HTTP method.
func (p *ChangeSetPart) Method() string { return p.method }

// URI returns the request target.
func (p *ChangeSetPart) URI() string { return p.uri }

// ContentID returns the Content-Id, or "" when none was set.
func (p *ChangeSetPart) ContentID() string { return p.contentID }

// Body returns the request body. It is never nil.
func (p *ChangeSetPart) Body() *Source { return p.body }

// Headers returns a copy of the request headers.
func (p *ChangeSetPart) Headers() map[string]string {
	out := make(map[string]string, len(p.headers))
	for k, v := range p.headers {
		out[k] = v
	}
	return out
}

// Header returns the value of a header, matched case-insensitively.
func (p *ChangeSetPart) Header(name string) string {
	if v, ok := p.headers[name]; ok {
		return v
	}
	for k, v := range p.headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// ChangeSetPartBuilder accumulates the pieces of a ChangeSetPart. Setters
// may be called in any order and any number of times; the last call wins.
type ChangeSetPartBuilder struct {
	charsets *Charsets

	method    string
	methodErr error
	uri       string
	headers   map[string]string
	contentID string

	source     *Source
	byteBody   []byte
	hasBytes   bool
	stringBody string
	hasString  bool
}

// NewChangeSetPartBuilder returns a builder that encodes string bodies with
// the charset negotiated in cs.
func NewChangeSetPartBuilder(cs *Charsets) *ChangeSetPartBuilder {
	return &ChangeSetPartBuilder{
		charsets: cs,
		headers:  map[string]string{},
	}
}

// Method sets the HTTP method. A method outside the change-set set is
// reported by Err right away and by Build.
func (b *ChangeSetPartBuilder) Method(method string) *ChangeSetPartBuilder {
	if !IsChangeMethod(method) {
		b.method = ""
		b.methodErr = fmt.Errorf("%w: got %q", ErrInvalidMethod, method)
		return b
	}
	b.method = method
	b.methodErr = nil
	return b
}

// Err returns the validation error of the last Method call, if any.
func (b *ChangeSetPartBuilder) Err() error { return b.methodErr }

// URI sets the request target.
func (b *ChangeSetPartBuilder) URI(uri string) *ChangeSetPartBuilder {
	b.uri = uri
	return b
}

// Headers replaces the request headers.
func (b *ChangeSetPartBuilder) Headers(headers map[string]string) *ChangeSetPartBuilder {
	b.headers = make(map[string]string, len(headers))
	for k, v := range headers {
		b.headers[k] = v
	}
	return b
}

// ContentID sets the Content-Id.
func (b *ChangeSetPartBuilder) ContentID(id string) *ChangeSetPartBuilder {
	b.contentID = id
	return b
}

// Body sets a text body, encoded at Build time with the charset resolved
// from the headers.
func (b *ChangeSetPartBuilder) Body(text string) *ChangeSetPartBuilder {
	b.stringBody = text
	b.hasString = true
	return b
}

// BodyBytes sets a raw body.
func (b *ChangeSetPartBuilder) BodyBytes(p []byte) *ChangeSetPartBuilder {
	b.byteBody = p
	b.hasBytes = true
	return b
}

// BodySource sets a body stream. It takes precedence over BodyBytes and Body.
func (b *ChangeSetPartBuilder) BodySource(src *Source) *ChangeSetPartBuilder {
	b.source = src
	return b
}

// Build validates the accumulated state and returns a new ChangeSetPart.
func (b *ChangeSetPartBuilder) Build() (*ChangeSetPart, error) {
	if b.methodErr != nil {
		return nil, b.methodErr
	}
	if b.method == "" || b.uri == "" {
		return nil, ErrMissingMethodOrURI
	}

	body, err := b.resolveBody()
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(b.headers))
	for k, v := range b.headers {
		headers[k] = v
	}

	return &ChangeSetPart{
		method:    b.method,
		uri:       b.uri,
		headers:   headers,
		contentID: b.contentID,
		body:      body,
	}, nil
}

func (b *ChangeSetPartBuilder) resolveBody() (*Source, error) {
	switch {
	case b.source != nil:
		return b.source, nil
	case b.hasBytes:
		return BytesSource(b.byteBody), nil
	case b.hasString:
		return StringSource(b.stringBody, b.charsets.ResolveHeaders(b.headers))
	default:
		return EmptySource(), nil
	}
}
