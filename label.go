package openslide

import "github.com/innovationcore/openslide/internal/tileindex"

// Thumbnail is a decoded label or macro image: a flat BGRA buffer plus a
// RotationDegrees field (SPEC_FULL.md §5 supplemented feature — not present
// in the distilled spec). RotationDegrees is always 0: no rotation attribute
// is read from the header.
type Thumbnail struct {
	Width, Height   int
	BGRA            []byte
	RotationDegrees int
}

// LabelBGRA returns the slide's label image, decoded once by
// internal/metadata/internal/thumbnail during Open, or false if the file
// carries none (spec.md §6: label_bgra returns None when absent).
func (d *Decoder) LabelBGRA() (Thumbnail, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return Thumbnail{}, false, ErrClosed
	}
	return thumbnailOf(d.label)
}

// MacroBGRA returns the slide's macro (overview) image, or false if the
// file carries none.
func (d *Decoder) MacroBGRA() (Thumbnail, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return Thumbnail{}, false, ErrClosed
	}
	return thumbnailOf(d.macro)
}

func thumbnailOf(img *tileindex.Image) (Thumbnail, bool, error) {
	if img == nil || img.ThumbnailBGRA == nil {
		return Thumbnail{}, false, nil
	}
	return Thumbnail{
		Width:           img.ThumbnailWidth,
		Height:          img.ThumbnailHeight,
		BGRA:            img.ThumbnailBGRA,
		RotationDegrees: img.RotationDegrees,
	}, true, nil
}
