package wavelet

import "github.com/innovationcore/openslide/internal/colorspace"

// absAll returns the absolute value of each element of a luma (colour 0)
// centre plane: the Y channel is encoded as a magnitude, per spec.md §4.4
// ("convert Y to its absolute value").
func absAll(in []int32) []int32 {
	out := make([]int32, len(in))
	for i, v := range in {
		if v < 0 {
			v = -v
		}
		out[i] = v
	}
	return out
}

// FinalizeBGRA reconstructs the 2*blockWidth x 2*blockHeight BGRA tile
// from three already-transformed colour Buffers (Y, Co, Cg, in that
// order), per spec.md §4.4. Callers skip this step entirely when the IDWT
// was only run to produce a child's LL subband.
func FinalizeBGRA(y, co, cg *Buffer) []byte {
	yPlane := absAll(y.Centre())
	coPlane := co.Centre()
	cgPlane := cg.Centre()
	return colorspace.TileToBGRA(yPlane, coPlane, cgPlane)
}
