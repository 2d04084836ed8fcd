package metadata

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"
	"testing"

	"github.com/innovationcore/openslide/internal/tileindex"
)

// memReader is a fileio.ReaderAt backed by an in-memory buffer, for tests
// that never touch the filesystem.
type memReader struct {
	data []byte
}

// ReadAt mimics fileio.ReaderAt's short-read-at-EOF contract: a read past
// the end of the buffer returns whatever bytes remain (possibly none) and
// a nil error, never an error on offset alone.
func (m *memReader) ReadAt(offset int64, size int) ([]byte, error) {
	if offset < 0 || int(offset) > len(m.data) {
		return nil, fmt.Errorf("memReader: offset %d out of range of %d", offset, len(m.data))
	}
	end := int(offset) + size
	if end > len(m.data) {
		end = len(m.data)
	}
	return m.data[offset:end], nil
}

func (m *memReader) Close() error { return nil }

// buildBlockHeaderTable encodes one partial codeblock record and returns
// the attribute's base64 text content.
func buildBlockHeaderTable(t *testing.T, cb tileindex.Codeblock) string {
	t.Helper()
	rec := make([]byte, partialRecordPayload)
	binary.LittleEndian.PutUint32(rec[0:4], uint32(int32(cb.X)))
	binary.LittleEndian.PutUint32(rec[4:8], uint32(int32(cb.Y)))
	binary.LittleEndian.PutUint32(rec[8:12], uint32(cb.Color))
	binary.LittleEndian.PutUint32(rec[12:16], uint32(cb.Scale))
	binary.LittleEndian.PutUint32(rec[16:20], uint32(cb.Coefficient))
	binary.LittleEndian.PutUint32(rec[20:24], uint32(cb.HeaderTemplateID))

	prologue := make([]byte, recordPrologueSize)
	binary.LittleEndian.PutUint16(prologue[0:2], 0x301D)
	binary.LittleEndian.PutUint16(prologue[2:4], 0x2010)
	binary.LittleEndian.PutUint32(prologue[4:8], partialRecordPayload)

	record := append(prologue, rec...)

	sizeField := make([]byte, 4)
	binary.LittleEndian.PutUint32(sizeField, uint32(len(record)))

	return base64.StdEncoding.EncodeToString(append(sizeField, record...))
}

// buildSeektable encodes n entries, with the entry at index want set to
// (wantOffset, wantSize) and all others zeroed.
func buildSeektable(entryCount, want int, wantOffset int64, wantSize uint32) []byte {
	var buf bytes.Buffer
	size := uint32(entryCount * seektableEntryStride)

	prologue := make([]byte, recordPrologueSize)
	binary.LittleEndian.PutUint16(prologue[0:2], 0x301D)
	binary.LittleEndian.PutUint16(prologue[2:4], 0x2015)
	binary.LittleEndian.PutUint32(prologue[4:8], size)
	buf.Write(prologue)

	for i := 0; i < entryCount; i++ {
		entry := make([]byte, seektableEntryStride)
		binary.LittleEndian.PutUint16(entry[0:2], 0x301D)
		binary.LittleEndian.PutUint16(entry[2:4], 0x2010)
		binary.LittleEndian.PutUint32(entry[4:8], 20)
		if i == want {
			binary.LittleEndian.PutUint64(entry[8:16], uint64(wantOffset))
			binary.LittleEndian.PutUint32(entry[16:20], wantSize)
		}
		buf.Write(entry)
	}
	return buf.Bytes()
}

func dimObj(rangeAttr string) string {
	return `<DataObject ObjectType="PixelDataRepresentationDimension">` +
		`<Attribute Name="DICOM_DIMENSION_RANGE" Group="0x301D" Element="0x200B" PMSVR="String">` + rangeAttr + `</Attribute>` +
		`</DataObject>`
}

func buildFixture(t *testing.T, blockTableB64 string, seektable []byte) []byte {
	t.Helper()

	dims := dimObj("0,1,255") + dimObj("0,1,255") + dimObj("0,1,2") + dimObj("0,1,0")
	tplDims := dimObj("0,1,127") + dimObj("0,1,127") + dimObj("0,1,0") + dimObj("0,1,0") + dimObj("0,1,0")

	xml := `<DataObject ObjectType="DPUfsImport">` +
		`<Attribute Name="DICOM_MANUFACTURER" Group="0x0008" Element="0x0070" PMSVR="String">Philips</Attribute>` +
		`<Attribute Name="PIM_DP_SCANNED_IMAGES" Group="0x301D" Element="0x1003" PMSVR="IDataObjectArray">` +
		`<Array>` +
		`<DataObject ObjectType="DPScannedImage">` +
		`<Attribute Name="PIM_DP_IMAGE_TYPE" Group="0x301D" Element="0x1004" PMSVR="String">WSI</Attribute>` +
		`<Attribute Name="UFS_IMAGE_GENERAL_HEADERS" Group="0x301D" Element="0x2000" PMSVR="IDataObjectArray">` +
		`<Array>` +
		`<DataObject ObjectType="UFSImageGeneralHeader">` +
		`<Attribute Name="UFS_IMAGE_DIMENSIONS" Group="0x301D" Element="0x2003" PMSVR="IDataObjectArray">` +
		`<Array>` + dims + `</Array>` +
		`</Attribute>` +
		`</DataObject>` +
		`</Array>` +
		`</Attribute>` +
		`<Attribute Name="UFS_IMAGE_BLOCK_HEADER_TEMPLATES" Group="0x301D" Element="0x2009" PMSVR="IDataObjectArray">` +
		`<Array>` +
		`<DataObject ObjectType="UFSImageBlockHeaderTemplate">` +
		`<Attribute Name="UFS_IMAGE_DIMENSIONS" Group="0x301D" Element="0x2003" PMSVR="IDataObjectArray">` +
		`<Array>` + tplDims + `</Array>` +
		`</Attribute>` +
		`</DataObject>` +
		`</Array>` +
		`</Attribute>` +
		`<Attribute Name="UFS_IMAGE_BLOCK_HEADER_TABLE" Group="0x301D" Element="0x2014" PMSVR="String">` + blockTableB64 + `</Attribute>` +
		`</DataObject>` +
		`</Array>` +
		`</Attribute>` +
		`</DataObject>`

	buf := []byte(xml)
	buf = append(buf, 0x04)
	buf = append(buf, seektable...)
	return buf
}

func TestParseHappyPath(t *testing.T) {
	cb := tileindex.Codeblock{X: 0, Y: 0, Color: 0, Scale: 0, Coefficient: 0, HeaderTemplateID: 0}
	tableB64 := buildBlockHeaderTable(t, cb)
	seektable := buildSeektable(2, 1, 2000, 700)

	data := buildFixture(t, tableB64, seektable)
	hdr, images, err := Parse(&memReader{data: data})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if hdr.Manufacturer != "Philips" {
		t.Errorf("Manufacturer = %q, want Philips", hdr.Manufacturer)
	}

	wsi := wsiImage(images)
	if wsi == nil {
		t.Fatal("no WSI image found")
	}
	if wsi.Width != 256 || wsi.Height != 256 {
		t.Errorf("Width/Height = %d/%d, want 256/256", wsi.Width, wsi.Height)
	}
	if wsi.LevelCount != 1 || wsi.MaxScale != 0 {
		t.Errorf("LevelCount/MaxScale = %d/%d, want 1/0", wsi.LevelCount, wsi.MaxScale)
	}
	if wsi.BlockWidth != 128 || wsi.BlockHeight != 128 {
		t.Errorf("BlockWidth/BlockHeight = %d/%d, want 128/128", wsi.BlockWidth, wsi.BlockHeight)
	}
	if len(wsi.Codeblocks) != 1 {
		t.Fatalf("len(Codeblocks) = %d, want 1", len(wsi.Codeblocks))
	}

	got := wsi.Codeblocks[0]
	if got.BlockID != 1 {
		t.Errorf("BlockID = %d, want 1", got.BlockID)
	}
	if got.BlockDataOffset != 2000 || got.BlockSize != 700 {
		t.Errorf("BlockDataOffset/BlockSize = %d/%d, want 2000/700", got.BlockDataOffset, got.BlockSize)
	}

	if len(wsi.Levels) != 1 {
		t.Fatalf("len(Levels) = %d, want 1", len(wsi.Levels))
	}
	if !wsi.Levels[0].Tiles[0].Exists {
		t.Error("level 0 tile 0 should exist after data-chunk grouping")
	}
}

func TestParseMissingTerminator(t *testing.T) {
	_, _, err := Parse(&memReader{data: []byte("<DataObject ObjectType=\"DPUfsImport\">")})
	if err == nil {
		t.Fatal("expected error for missing terminator")
	}
}

func TestParseBadRoot(t *testing.T) {
	data := []byte(`<DataObject ObjectType="SomethingElse"></DataObject>`)
	data = append(data, 0x04)
	_, _, err := Parse(&memReader{data: data})
	if err == nil {
		t.Fatal("expected error for a document with no WSI image")
	}
}

func TestDecodeBlockHeaderTableBadStride(t *testing.T) {
	prologue := make([]byte, recordPrologueSize)
	binary.LittleEndian.PutUint32(prologue[4:8], 13) // neither 40 nor 72
	record := append(prologue, make([]byte, 13)...)
	sizeField := make([]byte, 4)
	binary.LittleEndian.PutUint32(sizeField, uint32(len(record)))
	raw := []byte(base64.StdEncoding.EncodeToString(append(sizeField, record...)))

	var img tileindex.Image
	err := decodeBlockHeaderTable(raw, &img)
	if err == nil || !strings.Contains(err.Error(), ErrBadStride.Error()) {
		t.Fatalf("decodeBlockHeaderTable error = %v, want ErrBadStride", err)
	}
}

func TestReadSeektableBadTag(t *testing.T) {
	prologue := make([]byte, recordPrologueSize)
	binary.LittleEndian.PutUint16(prologue[0:2], 0xBEEF)
	binary.LittleEndian.PutUint16(prologue[2:4], 0xBEEF)
	binary.LittleEndian.PutUint32(prologue[4:8], 0)

	_, err := readSeektable(&memReader{data: prologue}, 0)
	if err != ErrBadTag {
		t.Fatalf("readSeektable error = %v, want ErrBadTag", err)
	}
}

func TestReadSeektableSizeNotMultiple(t *testing.T) {
	prologue := make([]byte, recordPrologueSize)
	binary.LittleEndian.PutUint16(prologue[0:2], 0x301D)
	binary.LittleEndian.PutUint16(prologue[2:4], 0x2015)
	binary.LittleEndian.PutUint32(prologue[4:8], 13)

	_, err := readSeektable(&memReader{data: prologue}, 0)
	if err != ErrSeektableSize {
		t.Fatalf("readSeektable error = %v, want ErrSeektableSize", err)
	}
}
