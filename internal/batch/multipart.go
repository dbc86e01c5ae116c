package batch

import (
	"mime"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// boundaryPattern is the RFC 2046 bchars set, 1 to 70 characters, not
// ending in a space.
var boundaryPattern = regexp.MustCompile(`^[A-Za-z0-9'()+_,\-./:=? ]{0,69}[A-Za-z0-9'()+_,\-./:=?]$`)

// GenerateBoundary returns a fresh boundary such as "batch_<uuid>".
func GenerateBoundary(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

// BoundaryFromContentType extracts the boundary parameter of a
// multipart/mixed content type.
func BoundaryFromContentType(contentType string) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", syntaxErrorf(0, "invalid content type %q: %v", contentType, err)
	}
	if mediaType != ContentTypeMultipartMixed {
		return "", syntaxErrorf(0, "content type must be %s; got %q", ContentTypeMultipartMixed, mediaType)
	}
	boundary, ok := params["boundary"]
	if !ok {
		return "", syntaxErrorf(0, "missing boundary parameter in %q", contentType)
	}
	if !boundaryPattern.MatchString(boundary) {
		return "", syntaxErrorf(0, "invalid boundary %q", boundary)
	}
	return boundary, nil
}

// SplitByBoundary returns the lines of every part delimited by boundary.
// Text before the first delimiter and after the close delimiter is ignored.
// The CRLF in front of each delimiter belongs to the delimiter and is
// removed from the preceding part.
func SplitByBoundary(lines []Line, boundary string) ([][]Line, error) {
	delimiter := boundaryPreamble + boundary
	closeDelimiter := delimiter + boundaryPreamble

	var (
		parts   [][]Line
		current []Line
		open    bool
		closed  bool
	)
	for _, line := range lines {
		trimmed := strings.TrimRight(line.Text, " \t\r\n")
		switch {
		case trimmed == closeDelimiter:
			if open {
				parts = append(parts, trimLastLine(current))
			}
			closed = true
		case trimmed == delimiter:
			if open {
				parts = append(parts, trimLastLine(current))
			}
			current = nil
			open = true
		case open:
			current = append(current, line)
		}
		if closed {
			break
		}
	}

	if len(lines) > 0 && !open {
		return nil, syntaxErrorf(lines[0].Number, "missing boundary delimiter %q", delimiter)
	}
	if !closed {
		last := 0
		if len(lines) > 0 {
			last = lines[len(lines)-1].Number
		}
		return nil, syntaxErrorf(last, "missing close delimiter %q", closeDelimiter)
	}
	return parts, nil
}

func trimLastLine(lines []Line) []Line {
	if len(lines) == 0 {
		return lines
	}
	out := append([]Line(nil), lines...)
	last := RemoveEndingCRLF(out[len(out)-1])
	if last.Text == "" {
		return out[:len(out)-1]
	}
	out[len(out)-1] = last
	return out
}
