package batch

import (
	"bufio"
	"errors"
	"io"
	"regexp"
	"strings"
)

// Line is one physical line of a batch payload, terminator included.
type Line struct {
	Text   string
	Number int
}

func (l Line) String() string { return l.Text }

// IsBlank reports whether the line holds nothing but whitespace.
func (l Line) IsBlank() bool { return strings.TrimSpace(l.Text) == "" }

// headerLinePattern matches "Name: value". Names are RFC 7230 tokens.
var headerLinePattern = regexp.MustCompile("^([A-Za-z0-9!#$%&'*+.^_`|~-]+):[ \t]?(.*?)\\s*$")

// ReadLines splits r into lines, keeping each line's terminator so that
// the original bytes can be reassembled exactly.
func ReadLines(r io.Reader) ([]Line, error) {
	br := bufio.NewReader(r)
	var lines []Line
	for n := 1; ; n++ {
		text, err := br.ReadString('\n')
		if text != "" {
			lines = append(lines, Line{Text: text, Number: n})
		}
		if errors.Is(err, io.EOF) {
			return lines, nil
		}
		if err != nil {
			return nil, ioError("read lines", err)
		}
	}
}

// RemoveEndingCRLF strips the final CRLF of a line together with any
// spaces that follow it. A line without a trailing CRLF is returned as is.
func RemoveEndingCRLF(line Line) Line {
	trimmed := strings.TrimRight(line.Text, " ")
	if !strings.HasSuffix(trimmed, crlf) {
		return line
	}
	return Line{Text: strings.TrimSuffix(trimmed, crlf), Number: line.Number}
}

// ConsumeHeaders parses the header block at the start of lines and returns
// it together with the lines that follow it. The block ends at the first
// line that is neither a header nor a folded continuation; that line is
// not consumed.
func ConsumeHeaders(lines []Line) (*Header, []Line) {
	start := 0
	if len(lines) > 0 {
		start = lines[0].Number
	}
	h := NewHeader(start)

	var (
		pendingName  string
		pendingValue string
		pendingLine  int
		pending      bool
	)
	flush := func() {
		if pending {
			h.Add(pendingName, pendingValue, pendingLine)
			pending = false
		}
	}

	i := 0
	for ; i < len(lines); i++ {
		text := lines[i].Text
		if pending && isContinuation(text) && !lines[i].IsBlank() {
			pendingValue += " " + strings.TrimSpace(text)
			continue
		}
		m := headerLinePattern.FindStringSubmatch(text)
		if m == nil {
			break
		}
		flush()
		pendingName = strings.TrimSpace(m[1])
		pendingValue = strings.TrimSpace(m[2])
		pendingLine = lines[i].Number
		pending = true
	}
	flush()

	return h, lines[i:]
}

// ConsumeBlankLine drops one leading blank line. It reports false when the
// first line is not blank.
func ConsumeBlankLine(lines []Line) ([]Line, bool) {
	if len(lines) == 0 || !lines[0].IsBlank() {
		return lines, false
	}
	return lines[1:], true
}

func isContinuation(text string) bool {
	return strings.HasPrefix(text, " ") || strings.HasPrefix(text, "\t")
}
