// Package thumbnail decodes the embedded JPEG label/macro sub-images
// (spec.md §4.5 "ImageData") into the packed BGRA pixel format the rest of
// the decoder uses for tile data (spec.md §4.4's ycocg_to_bgra convention).
package thumbnail

import (
	"bytes"
	"fmt"
	"image/jpeg"
)

// Decode parses a JPEG-encoded thumbnail and returns its pixels as
// row-major packed BGRA (4 bytes/pixel, alpha always 0xFF).
func Decode(jpegBytes []byte) (bgra []byte, width, height int, err error) {
	img, err := jpeg.Decode(bytes.NewReader(jpegBytes))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("thumbnail: decode jpeg: %w", err)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]byte, w*h*4)

	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			out[i+0] = byte(bl >> 8)
			out[i+1] = byte(g >> 8)
			out[i+2] = byte(r >> 8)
			out[i+3] = 0xFF
			i += 4
		}
	}
	return out, w, h, nil
}
