// Package fileio provides the positional file reader collaborator from
// spec.md §4.1 (C1b) and §1 ("File I/O primitives ... are treated as
// abstract services"). ReaderAt is the seam the rest of the decoder codes
// against; osFile is the concrete implementation used by the public API.
package fileio

import (
	"fmt"
	"io"
	"os"
)

// ReaderAt performs one blocking positional read, matching spec.md's
// read_at(offset, size) contract. A read that reaches end of file returns
// fewer than size bytes and a nil error, the same short-read-at-EOF
// convention as io.ReaderAt; only a genuine I/O failure is reported as an
// error.
type ReaderAt interface {
	ReadAt(offset int64, size int) ([]byte, error)
	Close() error
}

// osFile implements ReaderAt over an *os.File.
type osFile struct {
	f *os.File
}

// Open opens path for positional reads.
func Open(path string) (ReaderAt, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fileio: open %q: %w", path, err)
	}
	return &osFile{f: f}, nil
}

// ReadAt reads up to size bytes at offset, returning fewer at end of file.
func (o *osFile) ReadAt(offset int64, size int) ([]byte, error) {
	buf := make([]byte, size)
	n, err := o.f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("fileio: read %d bytes at %d: %w", size, offset, err)
	}
	return buf[:n], nil
}

func (o *osFile) Close() error { return o.f.Close() }
