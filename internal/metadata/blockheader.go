package metadata

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/innovationcore/openslide/internal/tileindex"
)

// Block-header table records (spec.md §4.5): each is preceded by an 8-byte
// DICOM sequence-element prologue {u16 group, u16 element, u32 size}. The
// prologue's size tells a partial record (40 bytes, offset/size live in the
// seektable) from a full one (72 bytes, offset/size inline) apart; group and
// element are the same private tag on every record and are not branched on.
const (
	recordPrologueSize    = 8
	partialRecordPayload  = 40
	fullRecordPayload     = 72
	partialRecordStride   = recordPrologueSize + partialRecordPayload
	fullRecordStride      = recordPrologueSize + fullRecordPayload
)

// decodeBlockHeaderTable base64-decodes raw (the content of the
// BlockHeaderTable attribute) and appends one tileindex.Codeblock per
// record onto img.Codeblocks, in file order.
func decodeBlockHeaderTable(raw []byte, img *tileindex.Image) error {
	buf := make([]byte, base64.StdEncoding.DecodedLen(len(raw)))
	n, err := base64.StdEncoding.Decode(buf, raw)
	if err != nil {
		return fmt.Errorf("metadata: %w: block-header table: %v", ErrBadBase64, err)
	}
	buf = buf[:n]

	if len(buf) < 4 {
		return fmt.Errorf("metadata: %w: block-header table shorter than its size field", ErrTruncated)
	}
	payloadSize := binary.LittleEndian.Uint32(buf[:4])
	body := buf[4:]
	if uint64(len(body)) < uint64(payloadSize) {
		return fmt.Errorf("metadata: %w: block-header table payload truncated", ErrTruncated)
	}
	body = body[:payloadSize]

	off := 0
	for off < len(body) {
		if off+recordPrologueSize > len(body) {
			return fmt.Errorf("metadata: %w: block-header record prologue truncated", ErrTruncated)
		}
		size := binary.LittleEndian.Uint32(body[off+4 : off+8])
		recStart := off + recordPrologueSize

		var stride int
		var partial bool
		switch size {
		case partialRecordPayload:
			stride, partial = partialRecordStride, true
		case fullRecordPayload:
			stride, partial = fullRecordStride, false
		default:
			return ErrBadStride
		}
		if recStart+int(size) > len(body) {
			return fmt.Errorf("metadata: %w: block-header record body truncated", ErrTruncated)
		}
		rec := body[recStart:]

		cb := tileindex.Codeblock{
			X:                int(int32(binary.LittleEndian.Uint32(rec[0:4]))),
			Y:                int(int32(binary.LittleEndian.Uint32(rec[4:8]))),
			Color:            int(binary.LittleEndian.Uint32(rec[8:12])),
			Scale:            int(binary.LittleEndian.Uint32(rec[12:16])),
			Coefficient:      int(binary.LittleEndian.Uint32(rec[16:20])),
			HeaderTemplateID: int(binary.LittleEndian.Uint32(rec[20:24])),
		}
		if !partial {
			cb.BlockDataOffset = int64(binary.LittleEndian.Uint64(rec[24:32]))
			cb.BlockSize = int(binary.LittleEndian.Uint32(rec[32:36]))
		}

		img.Codeblocks = append(img.Codeblocks, cb)
		img.HeaderCodeblocksArePartial = partial

		off += stride
	}
	return nil
}
