package batch

import (
	"mime"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// Charset is a named text encoding.
type Charset struct {
	Name string
	enc  encoding.Encoding
}

var (
	// ISO88591 is the fallback charset for unlabelled text.
	ISO88591 = Charset{Name: ISOEncoding, enc: charmap.ISO8859_1}
	// UTF8 is used for JSON and XML content without a charset parameter.
	UTF8 = Charset{Name: UTF8Encoding, enc: unicode.UTF8}
)

// Encoding returns the underlying x/text encoding.
func (c Charset) Encoding() encoding.Encoding {
	if c.enc == nil {
		return charmap.ISO8859_1
	}
	return c.enc
}

// Encode converts text to bytes. Characters the charset cannot represent
// are replaced.
func (c Charset) Encode(text string) ([]byte, error) {
	b, err := encoding.ReplaceUnsupported(c.Encoding().NewEncoder()).Bytes([]byte(text))
	if err != nil {
		return nil, ioError("encode "+c.Name, err)
	}
	return b, nil
}

// Decode converts bytes in this charset to a string.
func (c Charset) Decode(b []byte) (string, error) {
	s, err := c.Encoding().NewDecoder().Bytes(b)
	if err != nil {
		return "", ioError("decode "+c.Name, err)
	}
	return string(s), nil
}

// LookupCharset returns the charset registered under an IANA name or alias.
func LookupCharset(name string) (Charset, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Charset{}, false
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return Charset{}, false
	}
	canonical, err := ianaindex.MIME.Name(enc)
	if err != nil || canonical == "" {
		canonical = strings.ToUpper(name)
	}
	return Charset{Name: canonical, enc: enc}, true
}

// Charsets tracks the most recently negotiated charset of one batch.
//
// Every resolution updates the default, which is later used to encode
// unlabelled text and to calibrate lengths. Use one Charsets per batch;
// it is not safe for concurrent use.
type Charsets struct {
	current Charset
}

// NewCharsets returns a context whose default is ISO-8859-1.
func NewCharsets() *Charsets {
	return &Charsets{current: ISO88591}
}

// Default returns the most recently negotiated charset.
func (c *Charsets) Default() Charset { return c.current }

// DefaultName returns the name of the most recently negotiated charset.
func (c *Charsets) DefaultName() string { return c.current.Name }

// SetDefault records cs as the current default.
func (c *Charsets) SetDefault(cs Charset) { c.current = cs }

// Resolve derives the charset for a Content-Type header value. An empty
// value means the header is absent.
func (c *Charsets) Resolve(contentType string) Charset {
	cs := resolveCharset(contentType)
	c.current = cs
	return cs
}

// ResolveHeaders looks up Content-Type case-insensitively in headers and
// resolves it.
func (c *Charsets) ResolveHeaders(headers map[string]string) Charset {
	var contentType string
	for k, v := range headers {
		if strings.EqualFold(k, HeaderContentType) {
			contentType = v
			break
		}
	}
	return c.Resolve(contentType)
}

func resolveCharset(contentType string) Charset {
	if strings.TrimSpace(contentType) == "" {
		return ISO88591
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ISO88591
	}
	if name, ok := params["charset"]; ok {
		if cs, ok := LookupCharset(name); ok {
			return cs
		}
	}
	if isJSONCompatible(mediaType) || strings.Contains(subtype(mediaType), "xml") {
		return UTF8
	}
	return ISO88591
}

func isJSONCompatible(mediaType string) bool {
	return mediaType == ContentTypeApplicationJSON
}

func subtype(mediaType string) string {
	if i := strings.IndexByte(mediaType, '/'); i >= 0 {
		return mediaType[i+1:]
	}
	return ""
}
