package wavelet

import "testing"

func TestInverse1DCas1IsForwardInverse(t *testing.T) {
	tests := [][]int32{
		{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15},
		{100, 100, 100, 100, 100, 100, 100, 100},
		{10, -10, 10, -10, 10, -10, 10, -10},
		{123, -456, 789, -12, 345, -678, 901, -234},
		{0, 32767, -32768, 1, -1, 1000, -1000, 0},
		{1, 2, 3, 4, 5},
		{7},
		{3, -9},
	}
	for _, original := range tests {
		data := make([]int32, len(original))
		copy(data, original)

		forward1DCas1(data)
		inverse1DCas1(data)

		for i := range data {
			if data[i] != original[i] {
				t.Fatalf("round-trip mismatch at %d: got %d, want %d (input %v)", i, data[i], original[i], original)
			}
		}
	}
}

func TestInverse2DCas1IsForwardInverse(t *testing.T) {
	sizes := []int{2, 4, 8, 16}
	for _, n := range sizes {
		data := make([]int32, n*n)
		original := make([]int32, n*n)
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				v := int32((x*7 + y*13) % 101 - 50)
				data[y*n+x] = v
				original[y*n+x] = v
			}
		}

		forward2DCas1(data, n, n)
		inverse2DCas1(data, n, n)

		for i := range data {
			if data[i] != original[i] {
				t.Fatalf("size %d: round-trip mismatch at %d: got %d, want %d", n, i, data[i], original[i])
			}
		}
	}
}

func TestInverse2DCas1HandlesTailColumnGroup(t *testing.T) {
	// n=10 is not a multiple of parallelCols53 (4), exercising the tail
	// group path in inverseColumnsCas1.
	n := 10
	data := make([]int32, n*n)
	original := make([]int32, n*n)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			v := int32((x + y*3) % 17)
			data[y*n+x] = v
			original[y*n+x] = v
		}
	}

	forward2DCas1(data, n, n)
	inverse2DCas1(data, n, n)

	for i := range data {
		if data[i] != original[i] {
			t.Fatalf("tail-group round-trip mismatch at %d: got %d, want %d", i, data[i], original[i])
		}
	}
}
