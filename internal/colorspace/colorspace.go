// Package colorspace implements the final colour reconstruction stage of
// spec.md §4.4 (C4): the YCoCg-like reversible transform this container
// uses, with a magnitude-only Y channel, to BGRA. Structured after the
// teacher's jpeg2000/colorspace package (component-array in, component-array
// out, plus a packing helper), generalised from RCT/ICT's three-channel
// inverse to this format's four-term reconstruction and BGRA byte packing.
package colorspace

// InverseTransform converts one pixel's Y (magnitude), Co and Cg
// coefficients to RGB, per spec.md §4.4:
//
//	tmp = Y - Cg/2
//	G   = tmp + Cg
//	B   = tmp - Co/2
//	R   = B + Co
//
// y must already be the absolute value of the decoded Y coefficient; the
// wavelet stage (internal/wavelet) encodes Y as a signed magnitude and
// takes its absolute value before calling here.
func InverseTransform(y, co, cg int32) (r, g, b int32) {
	tmp := y - cg/2
	g = tmp + cg
	b = tmp - co/2
	r = b + co
	return r, g, b
}

// ConvertPlanesToRGB applies InverseTransform across three equal-length
// coefficient planes, returning separate R, G, B component slices.
func ConvertPlanesToRGB(y, co, cg []int32) (r, g, b []int32) {
	n := len(y)
	r = make([]int32, n)
	g = make([]int32, n)
	b = make([]int32, n)
	for i := 0; i < n; i++ {
		r[i], g[i], b[i] = InverseTransform(y[i], co[i], cg[i])
	}
	return r, g, b
}

// saturate clamps v to the range a byte can represent.
func saturate(v int32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// PackBGRA saturates and interleaves R, G, B component planes into a BGRA
// byte buffer with full opacity (A=255), the pixel format
// read_tile_bgra returns.
func PackBGRA(r, g, b []int32) []byte {
	n := len(r)
	out := make([]byte, n*4)
	for i := 0; i < n; i++ {
		out[i*4+0] = saturate(b[i])
		out[i*4+1] = saturate(g[i])
		out[i*4+2] = saturate(r[i])
		out[i*4+3] = 255
	}
	return out
}

// TileToBGRA reconstructs a full tile's BGRA buffer from its Y (already
// absolute-valued), Co and Cg coefficient planes in one pass.
func TileToBGRA(y, co, cg []int32) []byte {
	r, g, b := ConvertPlanesToRGB(y, co, cg)
	return PackBGRA(r, g, b)
}
