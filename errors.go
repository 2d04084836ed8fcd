package openslide

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the error taxonomy of §7: IoError, FormatError,
// DecompressError, OutOfMemory, InvalidArgument.
var (
	// ErrIO covers short reads, seek failures and other positional-read
	// problems reported by the file-I/O collaborator.
	ErrIO = errors.New("openslide: io error")

	// ErrFormat covers a missing XML terminator, a wrong root tag, an
	// unexpected DICOM tag in the seektable prologue, or a block-header
	// record whose stride is neither 48 nor 80 bytes.
	ErrFormat = errors.New("openslide: format error")

	// ErrDecompress covers Huffman-tree overrun, unknown symbol and
	// serialized-length mismatches. It is always wrapped in a
	// *DecompressError that names the offending codeblock.
	ErrDecompress = errors.New("openslide: decompress error")

	// ErrOutOfMemory is returned by the block allocator when both its
	// free list and chunk growth are exhausted.
	ErrOutOfMemory = errors.New("openslide: out of memory")

	// ErrInvalidArgument covers an out-of-range scale or tile coordinate.
	ErrInvalidArgument = errors.New("openslide: invalid argument")

	// ErrClosed is returned by any decoder method called after Close.
	ErrClosed = errors.New("openslide: decoder closed")
)

// DecompressError wraps ErrDecompress with the identity of the codeblock
// whose payload failed to decode, so a caller that logs or retries can
// report which tile is affected without re-deriving block_id.
type DecompressError struct {
	BlockID int64
	Scale   int
	Color   int
	Cause   error
}

func (e *DecompressError) Error() string {
	return fmt.Sprintf("openslide: decompress block %d (scale=%d color=%d): %v", e.BlockID, e.Scale, e.Color, e.Cause)
}

func (e *DecompressError) Unwrap() error { return ErrDecompress }

// FormatErrorf wraps a formatted message as an ErrFormat.
func FormatErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrFormat}, args...)...)
}

// IOErrorf wraps a formatted message as an ErrIO.
func IOErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrIO}, args...)...)
}
