package metadata

import "errors"

// Sentinel errors for the C5 parsing pipeline. isyntax.go wraps these as
// openslide.ErrFormat / openslide.ErrIO at the public API boundary.
var (
	ErrNoTerminator  = errors.New("metadata: no 0x04 XML/binary terminator found")
	ErrBadRoot       = errors.New("metadata: XML root is not DPUfsImport")
	ErrBadTag        = errors.New("metadata: unexpected DICOM tag in seektable prologue")
	ErrBadStride     = errors.New("metadata: block-header record stride is neither 48 nor 80 bytes")
	ErrTruncated     = errors.New("metadata: truncated while reading header structures")
	ErrBadBase64     = errors.New("metadata: malformed base64 payload")
	ErrSeektableSize = errors.New("metadata: seektable size is not a multiple of the entry stride")
)
