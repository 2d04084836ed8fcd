// Package metadata implements C5: the streaming XML+seektable header
// parser. It drives internal/xmltoken's tokeniser over 1 MiB chunks read
// from a positional file reader, recognises the file's DICOM-style
// flattened attribute XML (spec.md §4.5), and builds the header templates,
// per-image attributes and codeblock index that internal/resolver and
// internal/tilecache consume.
package metadata

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/innovationcore/openslide/internal/fileio"
	"github.com/innovationcore/openslide/internal/tileindex"
	"github.com/innovationcore/openslide/internal/xmltoken"
)

const chunkSize = 1 << 20 // 1 MiB, per spec.md §4.5

// Header holds the file-level attributes read from the DPUfsImport
// DataObject, outside of any scanned image (spec.md §4.5's "material"
// UFS-import attributes).
type Header struct {
	Manufacturer      string
	ManufacturerModel string
	SoftwareVersions  string
	DeviceSerial      string
	Barcode           string // base64 payload, left encoded: callers rarely need the decoded bitmap

	MppX, MppY float64
	MppKnown   bool

	// DerivationDescription is the scanned-image-level provenance string
	// ("PHILIPS UFS V... | Quality=... | DWT=... | Compressor=..."), a
	// supplemented attribute (SPEC_FULL.md §5). It is a single field: when
	// several scanned images carry one, the last one parsed is kept.
	DerivationDescription string

	ICCProfile []byte
}

// nodeType mirrors C9's frame node_type.
type nodeType int

const (
	nodeOther nodeType = iota
	nodeAttribute
	nodeDataObject
	nodeArray
)

// objectCtx is the "which material DataObject am I inside" classification
// used to route DimensionRange leaves (spec.md §4.5) to the right
// destination: a header template field, or an image's general-header
// field. It simplifies the original's per-bit object-type flag set (§4.9)
// into a single current value, since these contexts never nest within
// each other for the fields we read.
type objectCtx int

const (
	ctxNone objectCtx = iota
	ctxDPUfsImport
	ctxScannedImage
	ctxGeneralHeader
	ctxBlockHeaderTemplate
	ctxDimension
)

type frame struct {
	typ         nodeType
	group       uint16
	element     uint16
	hasChildren bool
	ctx         objectCtx

	attrIndex int // 0=Name,1=Group,2=Element,3=PMSVR, for nodeAttribute frames
	group16   uint16
	element16 uint16
}

// parser drives the tokeniser and frame stack. One parser instance parses
// exactly one file header.
type parser struct {
	tok   *xmltoken.Tokenizer
	stack []frame

	header Header
	images []*tileindex.Image

	dimensionIndex      int
	headerTemplateIndex int
	templates           []tileindex.HeaderTemplate

	currentImage *tileindex.Image

	// bypassing is the large-payload fast path (spec.md §4.5). bypassBuf
	// holds the current leaf's text content, filled either by that bypass
	// or from the tokeniser's Content event.
	bypassing bool
	bypassBuf []byte
}

func newParser() *parser {
	return &parser{tok: xmltoken.New()}
}

func objectCtxForElement(element uint16) objectCtx {
	switch element {
	case 0:
		return ctxDPUfsImport
	case 0x1003: // PIM_DP_SCANNED_IMAGES
		return ctxScannedImage
	case 0x2000: // UFS_IMAGE_GENERAL_HEADERS
		return ctxGeneralHeader
	case 0x2009: // UFS_IMAGE_BLOCK_HEADER_TEMPLATES
		return ctxBlockHeaderTemplate
	case 0x2003, 0x200A: // UFS_IMAGE_DIMENSIONS, UFS_IMAGE_DIMENSION_RANGES
		return ctxDimension
	default:
		return ctxNone
	}
}

func (p *parser) top() *frame {
	if len(p.stack) == 0 {
		return nil
	}
	return &p.stack[len(p.stack)-1]
}

// ctx returns the innermost enclosing object context, walking outward from
// the top of the stack (most leaves sit directly under the context-setting
// DataObject, but some are nested one level deeper, e.g. inside an Array).
func (p *parser) ctx() objectCtx {
	for i := len(p.stack) - 1; i >= 0; i-- {
		if p.stack[i].ctx != ctxNone {
			return p.stack[i].ctx
		}
	}
	return ctxNone
}

// dimensionParentCtx finds the nearest enclosing ctxGeneralHeader or
// ctxBlockHeaderTemplate ancestor, skipping past the per-axis ctxDimension
// wrapper a DimensionRange leaf always sits directly under. ctx() alone
// would return that innermost ctxDimension, not the class of object whose
// field the range actually belongs to.
func (p *parser) dimensionParentCtx() objectCtx {
	for i := len(p.stack) - 1; i >= 0; i-- {
		switch p.stack[i].ctx {
		case ctxGeneralHeader, ctxBlockHeaderTemplate:
			return p.stack[i].ctx
		}
	}
	return ctxNone
}

func (p *parser) onElementStart() error {
	parent := p.top()
	f := frame{}
	if parent != nil {
		f.group, f.element = parent.group, parent.element
	}
	switch p.tok.Elem() {
	case "Attribute":
		f.typ = nodeAttribute
	case "DataObject":
		f.typ = nodeDataObject
		f.ctx = objectCtxForElement(f.element)
		if f.ctx == ctxBlockHeaderTemplate {
			// The template this object's DimensionRange fields will be
			// written into must exist before those fields are dispatched,
			// so it is created at the object's start, not its end.
			p.templates = append(p.templates, tileindex.HeaderTemplate{})
			p.headerTemplateIndex = len(p.templates) - 1
		}
	case "Array":
		f.typ = nodeArray
	default:
		f.typ = nodeOther
	}
	p.stack = append(p.stack, f)
	return nil
}

func (p *parser) onAttrEnd() error {
	f := p.top()
	if f == nil {
		return nil
	}
	val := string(p.tok.Data())
	switch f.typ {
	case nodeAttribute:
		switch f.attrIndex {
		case 0: // Name
		case 1: // Group="0x...."
			g, err := strconv.ParseUint(strings.TrimPrefix(val, "0x"), 16, 16)
			if err != nil {
				return fmt.Errorf("metadata: bad Group attribute %q: %w", val, err)
			}
			f.group16 = uint16(g)
		case 2: // Element="0x...."
			e, err := strconv.ParseUint(strings.TrimPrefix(val, "0x"), 16, 16)
			if err != nil {
				return fmt.Errorf("metadata: bad Element attribute %q: %w", val, err)
			}
			f.element16 = uint16(e)
			f.group, f.element = f.group16, f.element16
		case 3: // PMSVR="..."
			if val == "IDataObjectArray" {
				f.hasChildren = true
				// Dispatch immediately: the children are nested
				// DataObjects, not text content (spec.md §4.9).
				p.dispatchLeaf(f.group, f.element, nil)
			}
		}
		f.attrIndex++
	case nodeDataObject:
		if val == "DPScannedImage" {
			img := &tileindex.Image{}
			p.images = append(p.images, img)
			p.currentImage = img
		}
	}
	return nil
}

func (p *parser) onElementEnd() error {
	f := p.top()
	if f == nil {
		return fmt.Errorf("metadata: unmatched closing tag")
	}
	if f.typ == nodeAttribute && !f.hasChildren {
		p.dispatchLeaf(f.group, f.element, p.tok.Data())
	}
	if f.typ == nodeDataObject {
		switch f.ctx {
		case ctxGeneralHeader:
			p.dimensionIndex = 0
		case ctxBlockHeaderTemplate:
			p.dimensionIndex = 0
		case ctxDimension:
			p.dimensionIndex++
		}
	}
	p.stack = p.stack[:len(p.stack)-1]
	return nil
}

func (p *parser) dispatchLeaf(group, element uint16, value []byte) {
	if p.ctx() == ctxDPUfsImport && len(p.stack) <= 2 {
		p.ufsImportChildNode(group, element, value)
		return
	}
	p.scannedImageChildNode(group, element, value)
}

// stripLeadingBOM runs the very first chunk through a BOM-aware UTF-8
// decoder, which drops a single leading UTF-8 BOM if present (the chunk is
// returned as read if decoding fails); later chunks are fed as read. The
// result can differ in length from the bytes read, so file offsets are
// taken from the undecoded chunk.
func stripLeadingBOM(first []byte) []byte {
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(decoder, first)
	if err != nil {
		return first
	}
	return out
}

// Parse streams the file's XML+seektable header starting at offset 0 and
// returns the UFS-import header plus one tileindex.Image per scanned
// image (spec.md §4.5).
func Parse(ra fileio.ReaderAt) (*Header, []*tileindex.Image, error) {
	p := newParser()

	var fileOff int64
	firstChunk := true
	var terminatorFileOff int64 = -1

	for terminatorFileOff < 0 {
		chunk, err := ra.ReadAt(fileOff, chunkSize)
		if err != nil {
			return nil, nil, fmt.Errorf("metadata: reading header chunk at %d: %w", fileOff, err)
		}
		if len(chunk) == 0 {
			return nil, nil, ErrNoTerminator
		}
		raw := chunk
		if firstChunk {
			raw = stripLeadingBOM(chunk)
			firstChunk = false
		}

		idx := bytes.IndexByte(raw, 0x04)
		data := raw
		if idx >= 0 {
			data = raw[:idx]
		}

		if err := p.feedChunk(data); err != nil {
			return nil, nil, err
		}

		if idx >= 0 {
			terminatorFileOff = fileOff + int64(bytes.IndexByte(chunk, 0x04))
			break
		}
		fileOff += int64(len(chunk))
	}

	if _, err := p.tok.Close(); err != nil {
		return nil, nil, fmt.Errorf("metadata: %w: %v", ErrBadRoot, err)
	}

	wsi := wsiImage(p.images)
	if wsi == nil {
		return nil, nil, fmt.Errorf("metadata: %w: no WSI image found", ErrBadRoot)
	}
	wsi.HeaderTemplates = p.templates
	if len(p.templates) > 0 {
		// Every template shares the same base block shape; codeblocks at
		// scale s simply cover tileWidth<<s pixels (spec.md §4.5).
		wsi.BlockWidth = p.templates[0].BlockWidth
		wsi.BlockHeight = p.templates[0].BlockHeight
	}

	if err := readSeektableAndChunks(ra, terminatorFileOff+1, wsi, &p.header); err != nil {
		return nil, nil, err
	}

	return &p.header, p.images, nil
}

func wsiImage(images []*tileindex.Image) *tileindex.Image {
	for _, img := range images {
		if img.Type == tileindex.Wsi {
			return img
		}
	}
	return nil
}

// feedChunk runs one chunk of raw XML bytes through the tokeniser,
// engaging the large-payload bypass (spec.md §4.5) whenever the current
// leaf's (group,element) names a known large tag.
func (p *parser) feedChunk(chunk []byte) error {
	i := 0
	for i < len(chunk) {
		if p.bypassing {
			rest := chunk[i:]
			if j := bytes.IndexByte(rest, '<'); j >= 0 {
				p.bypassBuf = append(p.bypassBuf, rest[:j]...)
				i += j
				p.bypassing = false
				continue
			}
			p.bypassBuf = append(p.bypassBuf, rest...)
			return nil
		}

		c := chunk[i]
		ev, err := p.tok.Feed(c)
		if err != nil {
			return fmt.Errorf("metadata: %w", err)
		}
		i++

		switch ev {
		case xmltoken.ElementStart:
			p.bypassBuf = p.bypassBuf[:0]
			if err := p.onElementStart(); err != nil {
				return err
			}
		case xmltoken.Content:
			// The tokeniser clears its text buffer before reporting the
			// closing ElementEnd, so a leaf's text is kept here.
			p.bypassBuf = append(p.bypassBuf[:0], p.tok.Data()...)
		case xmltoken.AttrEnd:
			if err := p.onAttrEnd(); err != nil {
				return err
			}
		case xmltoken.StartTagEnd:
			// The start tag just closed and content is about to begin:
			// if this leaf names one of the large base64 payloads
			// (spec.md §4.5), skip byte-at-a-time tokenising of its
			// content and scan forward for '<' instead.
			if f := p.top(); f != nil && f.typ == nodeAttribute && isLargePayloadTag(f.group, f.element) {
				p.bypassing = true
				p.bypassBuf = p.bypassBuf[:0]
			}
		case xmltoken.ElementEnd:
			f := p.top()
			if f != nil && f.typ == nodeAttribute && !f.hasChildren && len(p.bypassBuf) > 0 {
				p.dispatchLeaf(f.group, f.element, p.bypassBuf)
				p.stack = p.stack[:len(p.stack)-1]
				p.bypassBuf = nil
				continue
			}
			if err := p.onElementEnd(); err != nil {
				return err
			}
		}
	}
	return nil
}
