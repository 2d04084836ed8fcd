package metadata

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/innovationcore/openslide/internal/thumbnail"
	"github.com/innovationcore/openslide/internal/tileindex"
)

// ufsImportChildNode handles material attributes living directly under the
// root DPUfsImport object (spec.md §4.5), switching on group then element
// the way isyntax_parse_ufsimport_child_node does.
func (p *parser) ufsImportChildNode(group, element uint16, value []byte) {
	val := string(value)
	switch group {
	case 0x0008:
		switch element {
		case 0x0070:
			p.header.Manufacturer = val
		case 0x1090:
			p.header.ManufacturerModel = val
		}
	case 0x0018:
		switch element {
		case 0x1000:
			p.header.DeviceSerial = val
		case 0x1020:
			p.header.SoftwareVersions = val
		}
	case 0x0028:
		if element == 0x2000 {
			if decoded, err := base64.StdEncoding.DecodeString(val); err == nil {
				p.header.ICCProfile = decoded
			}
		}
	case 0x301D:
		switch element {
		case 0x1001: // UfsInterfaceVersion, informational only
		case 0x1002:
			p.header.Barcode = val
		}
	}
}

// scannedImageChildNode handles attributes nested under one DPScannedImage
// object (spec.md §4.5), switching on group then element the way
// isyntax_parse_scannedimage_child_node does. It routes dimension and
// header-template fields using the enclosing object context and the
// running dimensionIndex/headerTemplateIndex counters.
func (p *parser) scannedImageChildNode(group, element uint16, value []byte) {
	img := p.currentImage
	if img == nil {
		return
	}
	val := string(value)

	switch group {
	case 0x0008:
		if element == 0x2111 {
			p.header.DerivationDescription = val
		}

	case 0x301D:
		switch element {
		case 0x1004: // ImageType: "WSI" | "LABELIMAGE" | "MACROIMAGE"
			switch val {
			case "WSI":
				img.Type = tileindex.Wsi
			case "LABELIMAGE":
				img.Type = tileindex.Label
			case "MACROIMAGE":
				img.Type = tileindex.Macro
			}
		case 0x1005: // ImageData: base64 JPEG thumbnail
			p.decodeThumbnail(img, val)
		case 0x2007: // DimensionScaleFactor (microns per pixel), by dimensionIndex
			mpp, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
			if err == nil {
				switch p.dimensionIndex {
				case 0:
					p.header.MppX = mpp
					p.header.MppKnown = true
				case 1:
					p.header.MppY = mpp
				}
			}
		case 0x200B: // DimensionRange
			p.handleDimensionRange(img, value)
		case 0x200F: // BlockCompressionMethod, informational only
		case 0x2013: // PixelTransformationMethod, informational only
		case 0x2014: // BlockHeaderTable
			if err := decodeBlockHeaderTable(value, img); err != nil {
				// A malformed table stops at the bad record: records
				// decoded before it stay in img.Codeblocks and the error
				// is dropped. Tiles left without codeblocks are treated
				// as absent from the file.
				_ = err
			}
		}
	}
}

// handleDimensionRange parses a "start,step,end" DimensionRange leaf and
// routes the derived field by the enclosing object's context and the
// current dimensionIndex (spec.md §4.5).
func (p *parser) handleDimensionRange(img *tileindex.Image, value []byte) {
	start, step, end, err := parseDimensionRange(value)
	if err != nil {
		return
	}
	if step < 1 {
		step = 1
	}
	numsteps := ((end + step) - start) / step

	switch p.dimensionParentCtx() {
	case ctxBlockHeaderTemplate:
		if p.headerTemplateIndex >= len(p.templates) {
			return
		}
		tpl := &p.templates[p.headerTemplateIndex]
		switch p.dimensionIndex {
		case 0:
			tpl.BlockWidth = numsteps
		case 1:
			tpl.BlockHeight = numsteps
		case 2:
			tpl.ColorComponent = start
		case 3:
			tpl.Scale = start
		case 4:
			if start == 0 {
				tpl.WaveletCoeff = 1
			} else {
				tpl.WaveletCoeff = 3
			}
		}

	case ctxGeneralHeader:
		switch p.dimensionIndex {
		case 0:
			img.OffsetX = start
			img.Width = numsteps
		case 1:
			img.OffsetY = start
			img.Height = numsteps
		case 3:
			img.LevelCount = numsteps
			img.MaxScale = start + numsteps - 1
		}
	}
}

// decodeThumbnail base64-decodes and JPEG-decodes a LABEL/MACRO image's
// embedded ImageData attribute (SPEC_FULL.md §5 supplemented feature). A
// malformed or missing thumbnail is not fatal to parsing the rest of the
// header: img is simply left without pixel data.
func (p *parser) decodeThumbnail(img *tileindex.Image, base64JPEG string) {
	raw, err := base64.StdEncoding.DecodeString(base64JPEG)
	if err != nil {
		return
	}
	bgra, w, h, err := thumbnail.Decode(raw)
	if err != nil {
		return
	}
	img.ThumbnailBGRA = bgra
	img.ThumbnailWidth = w
	img.ThumbnailHeight = h
}

func parseDimensionRange(value []byte) (start, step, end int, err error) {
	parts := strings.Split(strings.TrimSpace(string(value)), ",")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("metadata: DimensionRange expects 3 comma-separated integers, got %q", value)
	}
	vals := make([]int, 3)
	for i, s := range parts {
		n, convErr := strconv.Atoi(strings.TrimSpace(s))
		if convErr != nil {
			return 0, 0, 0, fmt.Errorf("metadata: bad DimensionRange integer %q: %w", s, convErr)
		}
		vals[i] = n
	}
	return vals[0], vals[1], vals[2], nil
}
