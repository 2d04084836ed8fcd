package wavelet

// perLevelPadding is pad_L = pad_R from spec.md §4.4: the margin width, in
// samples, added on each side of a tile's coefficients when building the
// stitched buffer.
const perLevelPadding = 4

// parallelCols53 is the recommended vertical-sweep group width from
// spec.md §4.4 (PARALLEL_COLS_53).
const parallelCols53 = 4

// firstValidPixel returns the offset, within the stitched buffer's LL
// quadrant, of the top-left sample belonging to a child tile's LL subband
// at the given scale, per spec.md §4.4:
//
//	first_valid_pixel = (PER_LEVEL_PADDING << scale) - (PER_LEVEL_PADDING - 1)
func firstValidPixel(scale int) int {
	return (perLevelPadding << uint(scale)) - (perLevelPadding - 1)
}
