package batch

import (
	"bytes"
	"fmt"
	"io"
)

const copyBufferSize = 8192

// EntityResponse is a response whose entity is written into a batch.
//
// Entity returns nil, an io.Reader, a []byte or a string.
type EntityResponse interface {
	Entity() any
	HeaderValue(name string) string
}

// Body carries one part's content as raw bytes, without charset conversion
// once the bytes are determined.
type Body struct {
	src *Source
}

// BodyFromPart reuses the body of a change-set part.
func BodyFromPart(p *ChangeSetPart) *Body {
	return &Body{src: p.Body()}
}

// BodyFromResponse reads the entity of resp into memory. Readers are
// consumed fully and closed if they implement io.Closer.
func BodyFromResponse(cs *Charsets, resp EntityResponse) (*Body, error) {
	if resp == nil {
		return &Body{src: EmptySource()}, nil
	}
	content, err := entityBytes(cs, resp)
	if err != nil {
		return nil, err
	}
	return &Body{src: BytesSource(content)}, nil
}

// EmptyBody returns a zero-length body and resets the default charset to
// ISO-8859-1.
func EmptyBody(cs *Charsets) *Body {
	cs.SetDefault(ISO88591)
	return &Body{src: EmptySource()}
}

// Len reports the body size in bytes.
func (b *Body) Len() int64 { return b.src.Size() }

// IsEmpty reports whether the body has no bytes.
func (b *Body) IsEmpty() bool { return b.src.Size() == 0 }

// Source returns the wrapped source. Ownership passes to the caller.
func (b *Body) Source() *Source { return b.src }

func entityBytes(cs *Charsets, resp EntityResponse) ([]byte, error) {
	switch entity := resp.Entity().(type) {
	case nil:
		return nil, nil
	case []byte:
		cs.SetDefault(ISO88591)
		return entity, nil
	case string:
		cs.SetDefault(UTF8)
		return cs.Default().Encode(entity)
	case io.Reader:
		cs.Resolve(resp.HeaderValue(HeaderContentType))
		return readEntity(entity)
	default:
		return nil, &UnsupportedEntityError{Type: fmt.Sprintf("%T", entity)}
	}
}

func readEntity(r io.Reader) (content []byte, err error) {
	if c, ok := r.(io.Closer); ok {
		defer func() {
			if cerr := c.Close(); cerr != nil && err == nil {
				err = ioError("close entity stream", cerr)
			}
		}()
	}
	var out bytes.Buffer
	if _, err := io.CopyBuffer(&out, r, make([]byte, copyBufferSize)); err != nil {
		return nil, ioError("read entity stream", err)
	}
	return out.Bytes(), nil
}
