package batch

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultBufferSize is the initial in-memory capacity of a BodyBuilder.
const DefaultBufferSize = 8192

// spillFactor times the initial capacity is the largest in-memory buffer a
// BodyBuilder grows to before it moves its content to a temporary file.
const spillFactor = 8

const tempFilePattern = "odata-batch-*.tmp"

// BuilderOptions configures a BodyBuilder.
type BuilderOptions struct {
	// BufferSize is the initial in-memory capacity. Zero means DefaultBufferSize.
	BufferSize int
	// TempDir is where spill files are created. Empty means os.TempDir().
	TempDir string
}

// BodyBuilder accumulates a batch body. Content is kept in memory until it
// outgrows spillFactor times the initial capacity, after which it lives in
// a temporary file for the rest of the builder's life.
//
// Reading the content out with ContentAsStream or ContentAsString closes
// the builder; further appends and reads fail with ErrClosed.
type BodyBuilder struct {
	charsets  *Charsets
	tempDir   string
	threshold int

	buf []byte

	file     *os.File
	fileSize int64
	spilled  bool

	closed bool
}

// NewBodyBuilder returns an empty builder that encodes text with the
// default charset tracked by cs.
func NewBodyBuilder(cs *Charsets, opts BuilderOptions) *BodyBuilder {
	size := opts.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &BodyBuilder{
		charsets:  cs,
		tempDir:   opts.TempDir,
		threshold: size * spillFactor,
		buf:       make([]byte, 0, size),
	}
}

// Append encodes text with the current default charset and appends it.
func (b *BodyBuilder) Append(text string) error {
	p, err := b.charsets.Default().Encode(text)
	if err != nil {
		return err
	}
	return b.AppendBytes(p)
}

// AppendInt appends the decimal rendering of n as text.
func (b *BodyBuilder) AppendInt(n int) error {
	return b.Append(strconv.Itoa(n))
}

// AppendBytes appends p unchanged.
func (b *BodyBuilder) AppendBytes(p []byte) error {
	return b.AppendSource(BytesSource(p))
}

// AppendBody appends the content of a Body wrapper.
func (b *BodyBuilder) AppendBody(body *Body) error {
	return b.AppendSource(body.Source())
}

// AppendSource copies src into the builder and closes it.
func (b *BodyBuilder) AppendSource(src *Source) error {
	defer func() { _ = src.Close() }()

	if b.closed {
		return ErrClosed
	}
	n := src.Size()

	if b.file != nil {
		return b.writeToFile(src, n)
	}

	if int64(cap(b.buf)-len(b.buf)) >= n {
		return b.writeToBuffer(src, n)
	}

	newSize := int64(cap(b.buf))*2 + n
	if newSize > int64(b.threshold) {
		return b.spill(src, n)
	}

	grown := make([]byte, len(b.buf), newSize)
	copy(grown, b.buf)
	b.buf = grown
	return b.writeToBuffer(src, n)
}

// Len reports the number of bytes accumulated so far. It keeps reporting
// that size after the content has been read out.
func (b *BodyBuilder) Len() int64 {
	if b.spilled {
		return b.fileSize
	}
	return int64(len(b.buf))
}

// Spilled reports whether the content has moved to a temporary file.
func (b *BodyBuilder) Spilled() bool { return b.spilled }

// CalculateLength returns the length a receiver will see for content.
//
// Text that was accumulated while ISO-8859-1 was the default charset is
// sent as UTF-8 further down the pipeline, so for string content the UTF-8
// length is returned in that case. Everything else reports Len.
func (b *BodyBuilder) CalculateLength(content any) int64 {
	s, ok := content.(string)
	if !ok || !strings.EqualFold(b.charsets.DefaultName(), ISOEncoding) {
		return b.Len()
	}
	p, err := unicode.UTF8.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return int64(len(s))
	}
	return int64(len(p))
}

// ContentAsStream closes the builder and returns its content. The caller
// must close the returned Source; for spilled content that removes the
// temporary file. The content can be read out only once; later calls fail
// with ErrClosed.
func (b *BodyBuilder) ContentAsStream() (*Source, error) {
	if b.closed {
		return nil, ErrClosed
	}
	if b.file == nil {
		return BytesSource(b.bufferContent()), nil
	}
	tf, err := b.releaseFile()
	if err != nil {
		return nil, err
	}
	return NewSource(tf, b.fileSize), nil
}

// ContentAsString closes the builder and decodes its content with cs.
// A spilled temporary file is removed before this returns.
func (b *BodyBuilder) ContentAsString(cs Charset) (string, error) {
	if b.closed {
		return "", ErrClosed
	}
	if b.file == nil {
		return cs.Decode(b.bufferContent())
	}
	tf, err := b.releaseFile()
	if err != nil {
		return "", err
	}
	defer func() { _ = tf.Close() }()

	var sb strings.Builder
	r := transform.NewReader(tf, cs.Encoding().NewDecoder())
	if _, err := io.CopyBuffer(&sb, r, make([]byte, DefaultBufferSize)); err != nil {
		return "", ioError("read temp file", err)
	}
	if err := tf.Close(); err != nil {
		return "", ioError("close temp file", err)
	}
	return sb.String(), nil
}

// Discard closes the builder without reading it and removes any temporary
// file. It is a no-op once the content has been read out.
func (b *BodyBuilder) Discard() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.buf = nil
	if b.file == nil {
		return nil
	}
	name := b.file.Name()
	err := b.file.Close()
	b.file = nil
	if rmErr := os.Remove(name); rmErr != nil && err == nil {
		err = rmErr
	}
	if err != nil {
		return ioError("discard temp file", err)
	}
	return nil
}

func (b *BodyBuilder) bufferContent() []byte {
	b.closed = true
	return b.buf
}

func (b *BodyBuilder) releaseFile() (*tempFile, error) {
	b.closed = true
	name := b.file.Name()
	err := b.file.Close()
	b.file = nil
	if err != nil {
		_ = os.Remove(name)
		return nil, ioError("close temp file", err)
	}
	tf, err := openTempFile(name)
	if err != nil {
		return nil, ioError("open temp file", err)
	}
	return tf, nil
}

func (b *BodyBuilder) writeToBuffer(src io.Reader, n int64) error {
	start := len(b.buf)
	b.buf = b.buf[:start+int(n)]
	if _, err := io.ReadFull(src, b.buf[start:]); err != nil {
		b.buf = b.buf[:start]
		return ioError("write buffer", err)
	}
	return nil
}

// spill moves the buffered content plus src into a new temporary file. On
// failure the in-memory content stays as it was.
func (b *BodyBuilder) spill(src io.Reader, n int64) error {
	dir := b.tempDir
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, tempFilePattern)
	if err != nil {
		return ioError("create temp file", err)
	}

	written, err := io.Copy(f, io.MultiReader(bytes.NewReader(b.buf), io.LimitReader(src, n)))
	if err == nil && written != int64(len(b.buf))+n {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return ioError("write temp file", err)
	}

	b.file = f
	b.fileSize = written
	b.spilled = true
	b.buf = nil
	return nil
}

func (b *BodyBuilder) writeToFile(src io.Reader, n int64) error {
	written, err := io.CopyN(b.file, src, n)
	if err == nil {
		b.fileSize += written
		return nil
	}
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	if written > 0 {
		if terr := b.file.Truncate(b.fileSize); terr == nil {
			_, _ = b.file.Seek(b.fileSize, io.SeekStart)
		}
	}
	return ioError("write temp file", err)
}
