// Package batch encodes and decodes OData $batch multipart payloads.
//
// The package covers the pieces needed to assemble and take apart a batch
// body: sized byte sources, charset negotiation, a spill-to-disk body
// accumulator, change-set parts and MIME header block parsing.
package batch

// Encoding labels used throughout the batch format.
const (
	BinaryEncoding = "binary"
	UTF8Encoding   = "UTF-8"
	ISOEncoding    = "ISO-8859-1"
)

// Header names used inside batch parts.
const (
	HeaderContentTransferEncoding = "Content-Transfer-Encoding"
	HeaderContentID               = "Content-Id"
	HeaderContentType             = "Content-Type"
	HeaderContentLength           = "Content-Length"
	HeaderAccept                  = "Accept"
	HeaderAcceptLanguage          = "Accept-Language"
)

// Media types recognised in batch parts.
const (
	ContentTypeApplicationHTTP = "application/http"
	ContentTypeMultipartMixed  = "multipart/mixed"
	ContentTypeApplicationJSON = "application/json"
)

const (
	crlf             = "\r\n"
	httpVersion      = "HTTP/1.1"
	boundaryPreamble = "--"
)
