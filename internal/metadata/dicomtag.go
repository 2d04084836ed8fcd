package metadata

import "github.com/jpfielding/dicos.go/pkg/dicos/tag"

// The seektable prologue and each seektable entry carry a private
// (odd-group) DICOM tag identifying themselves, per spec.md §4.5/§6. We
// reuse jpfielding/dicos.go's tag.Tag rather than hand-rolling a
// {group,element} pair, the same way it is used throughout that library's
// dataset readers.
var (
	tagBlockDataOffsetSeektable = tag.New(0x301D, 0x2015) // seektable prologue
	tagBlockDataOffsetEntry     = tag.New(0x301D, 0x2010) // per-entry tag

	tagBlockHeaderTable = tag.New(0x301D, 0x2014)
	tagImageData        = tag.New(0x301D, 0x1005)
	tagICCProfile       = tag.New(0x0028, 0x2000)
)

// isLargePayloadTag reports whether (group, element) names one of the
// known large XML leaves (spec.md §4.5 "Large base64 payloads") that
// should bypass byte-at-a-time tokenising in favour of a scan-for-'<'
// fast path.
func isLargePayloadTag(group, element uint16) bool {
	t := tag.New(group, element)
	return t.Equals(tagBlockHeaderTable) || t.Equals(tagImageData) || t.Equals(tagICCProfile)
}
