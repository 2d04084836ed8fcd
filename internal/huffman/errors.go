package huffman

import "errors"

var (
	// ErrTableOverrun is returned when the in-band Huffman tree description
	// runs past the end of the payload before terminating.
	ErrTableOverrun = errors.New("huffman: table overrun")

	// ErrSymbolNotFound is returned when a bit window matches neither the
	// fast table nor any long-code entry.
	ErrSymbolNotFound = errors.New("huffman: symbol not found")

	// ErrLengthMismatch is returned when the decoded byte count does not
	// equal the payload's declared serialized length.
	ErrLengthMismatch = errors.New("huffman: serialized length mismatch")

	// ErrLengthExceeded is returned when the payload's declared serialized
	// length is more than twice the byte size of the output coefficient
	// planes.
	ErrLengthExceeded = errors.New("huffman: serialized length exceeded")
)
