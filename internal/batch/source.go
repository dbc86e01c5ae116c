package batch

import (
	"bytes"
	"io"
	"os"
	"strings"
	"sync"
)

// Source is a readable byte stream paired with its exact length.
//
// A Source is consumed once. Whoever holds it last closes it; closing a
// file-backed Source removes the backing file.
type Source struct {
	r      io.Reader
	size   int64
	closer io.Closer
	once   sync.Once
	err    error
}

// NewSource wraps r, which must yield exactly size bytes. If r implements
// io.Closer it is closed by Close. Reads past size return io.EOF.
func NewSource(r io.Reader, size int64) *Source {
	s := &Source{r: io.LimitReader(r, size), size: size}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// BytesSource wraps b without copying.
func BytesSource(b []byte) *Source {
	return NewSource(bytes.NewReader(b), int64(len(b)))
}

// StringSource encodes text with cs and wraps the result.
func StringSource(text string, cs Charset) (*Source, error) {
	b, err := cs.Encode(text)
	if err != nil {
		return nil, err
	}
	return BytesSource(b), nil
}

// EmptySource returns a zero-length source.
func EmptySource() *Source {
	return NewSource(strings.NewReader(""), 0)
}

// Size reports the number of bytes the source yields.
func (s *Source) Size() int64 { return s.size }

// Read implements io.Reader.
func (s *Source) Read(p []byte) (int, error) { return s.r.Read(p) }

// Close releases the underlying stream. It is safe to call more than once.
func (s *Source) Close() error {
	s.once.Do(func() {
		if s.closer != nil {
			s.err = s.closer.Close()
		}
	})
	return s.err
}

// Bytes reads the remaining content fully and closes the source.
func (s *Source) Bytes() ([]byte, error) {
	defer func() { _ = s.Close() }()
	buf := bytes.NewBuffer(make([]byte, 0, s.size))
	if _, err := io.Copy(buf, s); err != nil {
		return nil, ioError("read source", err)
	}
	return buf.Bytes(), nil
}

// tempFile is a read handle on a temporary file that removes the file when
// closed. Close runs its cleanup exactly once.
type tempFile struct {
	*os.File
	once sync.Once
	err  error
}

func openTempFile(path string) (*tempFile, error) {
	f, err := os.Open(path)
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return &tempFile{File: f}, nil
}

func (t *tempFile) Close() error {
	t.once.Do(func() {
		t.err = t.File.Close()
		if err := os.Remove(t.File.Name()); err != nil && !os.IsNotExist(err) && t.err == nil {
			t.err = err
		}
	})
	return t.err
}
