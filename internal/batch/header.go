package batch

import (
	"slices"
	"strings"
)

// singleValuedHeaders are never split on commas; their values may contain
// commas themselves (dates, media type parameters) or are defined as a
// single token.
var singleValuedHeaders = map[string]bool{
	"content-type":              true,
	"content-id":                true,
	"content-length":            true,
	"content-transfer-encoding": true,
	"content-disposition":       true,
	"date":                      true,
	"location":                  true,
	"host":                      true,
	"authorization":             true,
	"etag":                      true,
	"last-modified":             true,
	"expires":                   true,
	"if-modified-since":         true,
	"if-unmodified-since":       true,
	"retry-after":               true,
	"user-agent":                true,
	"server":                    true,
}

type headerField struct {
	name   string
	values []string
	line   int
}

// Header is a parsed MIME header block. Names are matched
// case-insensitively and keep the spelling of their first occurrence.
type Header struct {
	fields map[string]*headerField
	order  []string
	line   int
}

// NewHeader returns an empty header block that starts at line.
func NewHeader(line int) *Header {
	return &Header{fields: map[string]*headerField{}, line: line}
}

// Line returns the line number the block started at.
func (h *Header) Line() int { return h.line }

// Add records value under name. Values of list headers are split on
// commas. A value already recorded for name is not added twice.
func (h *Header) Add(name, value string, line int) {
	if singleValuedHeaders[strings.ToLower(name)] {
		h.AddValues(name, []string{strings.TrimSpace(value)}, line)
		return
	}
	h.AddValues(name, SplitValuesByComma(value), line)
}

// AddValues records values under name without further splitting.
func (h *Header) AddValues(name string, values []string, line int) {
	key := strings.ToLower(name)
	f, ok := h.fields[key]
	if !ok {
		f = &headerField{name: name, line: line}
		h.fields[key] = f
		h.order = append(h.order, key)
	}
	for _, v := range values {
		if !slices.Contains(f.values, v) {
			f.values = append(f.values, v)
		}
	}
}

// Values returns every value recorded for name, in encounter order.
func (h *Header) Values(name string) []string {
	if f, ok := h.fields[strings.ToLower(name)]; ok {
		return slices.Clone(f.values)
	}
	return nil
}

// Get returns the first value of name, or "".
func (h *Header) Get(name string) string {
	if f, ok := h.fields[strings.ToLower(name)]; ok && len(f.values) > 0 {
		return f.values[0]
	}
	return ""
}

// Joined returns the values of name joined with ", ".
func (h *Header) Joined(name string) string {
	return strings.Join(h.Values(name), ", ")
}

// LineOf returns the line name was first seen on, or 0.
func (h *Header) LineOf(name string) int {
	if f, ok := h.fields[strings.ToLower(name)]; ok {
		return f.line
	}
	return 0
}

// Names returns header names in the order they were first seen.
func (h *Header) Names() []string {
	out := make([]string, 0, len(h.order))
	for _, k := range h.order {
		out = append(out, h.fields[k].name)
	}
	return out
}

// Map flattens the block into one joined value per name.
func (h *Header) Map() map[string]string {
	out := make(map[string]string, len(h.order))
	for _, k := range h.order {
		f := h.fields[k]
		out[f.name] = strings.Join(f.values, ", ")
	}
	return out
}

// SplitValuesByComma splits a header value on commas and trims each piece.
func SplitValuesByComma(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}
