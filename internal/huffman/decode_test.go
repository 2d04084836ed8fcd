package huffman

import "testing"

// bitWriter is a minimal LSB-first bit packer used only to build synthetic
// payloads for these tests; it mirrors bitio.Reader's bit order so that a
// Decompress call against its output exercises the real decode path.
type bitWriter struct {
	bytes []byte
	nbits int
}

func (w *bitWriter) writeBits(v uint64, n int) {
	for i := 0; i < n; i++ {
		bit := (v >> uint(i)) & 1
		byteIdx := w.nbits / 8
		for byteIdx >= len(w.bytes) {
			w.bytes = append(w.bytes, 0)
		}
		if bit != 0 {
			w.bytes[byteIdx] |= 1 << uint(w.nbits%8)
		}
		w.nbits++
	}
}

func (w *bitWriter) bytesPadded() []byte {
	return w.bytes
}

func TestSm2tcIsSelfInverse(t *testing.T) {
	cases := []uint16{0, 1, 0x7FFF, 0x8000, 0x8001, 0xFFFF, 0x0100, 0x8100}
	for _, x := range cases {
		y := uint16(sm2tc(x))
		back := sm2tc(y)
		// Negative zero (0x8000) maps to 0, which maps back to 0.
		want := x
		if x == 0x8000 {
			want = 0
		}
		if uint16(back) != want {
			t.Fatalf("sm2tc(sm2tc(%#04x)) = %#04x, want %#04x", x, uint16(back), want)
		}
	}
}

func TestSm2tcKnownValues(t *testing.T) {
	cases := []struct {
		in   uint16
		want int16
	}{
		{0x0000, 0},
		{0x0002, 2},
		{0x8002, -2},
		{0x8000, 0},
	}
	for _, c := range cases {
		got := sm2tc(c.in)
		if got != c.want {
			t.Fatalf("sm2tc(%#04x) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestUnshuffleSnakeRearrangesBlocks(t *testing.T) {
	// An 8x4 plane (two 4x4 areas side by side) stored as two consecutive
	// 4x4 blocks in flat snake order. Fill each block with distinct values
	// so the destination position is unambiguous.
	p := Params{BlockWidth: 8, BlockHeight: 4, CoeffCount: 1}
	flat := make([]int16, 32)
	for i := 0; i < 16; i++ {
		flat[i] = int16(i) // first 4x4 block: area (0,0)
	}
	for i := 0; i < 16; i++ {
		flat[16+i] = int16(100 + i) // second 4x4 block: area (4,0)
	}

	unshuffleSnake(flat, p)

	// Area (0,0) occupies rows 0..3, cols 0..3; area(4,0) occupies rows
	// 0..3, cols 4..7, both in an 8-wide rectangular layout.
	at := func(x, y int) int16 { return flat[y*p.BlockWidth+x] }
	if at(0, 0) != 0 || at(3, 3) != 15 {
		t.Fatalf("area(0,0) not placed correctly: at(0,0)=%d at(3,3)=%d", at(0, 0), at(3, 3))
	}
	if at(4, 0) != 100 || at(7, 3) != 115 {
		t.Fatalf("area(4,0) not placed correctly: at(4,0)=%d at(7,3)=%d", at(4, 0), at(7, 3))
	}
}

func TestDecompressDummyBlockIsZero(t *testing.T) {
	p := Params{Version: Version1, BlockWidth: 4, BlockHeight: 4, CoeffCount: 1}
	out, err := Decompress([]byte{1, 2, 3, 4, 5, 6, 7, 8}, p)
	if err != nil {
		t.Fatalf("Decompress() error = %v", err)
	}
	for i, v := range out {
		if v != 0 {
			t.Fatalf("out[%d] = %d, want 0 for dummy block", i, v)
		}
	}
}

// buildDegenerateV1Payload constructs a version-1 codeblock whose Huffman
// tree has a single symbol (the literal byte 0x00, with a zero-bit code),
// so the body decodes to serializedLength zero bytes without consuming any
// body bits. zeroRunSymbol is chosen distinct from 0x00 so it is never
// triggered.
func buildDegenerateV1Payload(serializedLength uint32) []byte {
	w := &bitWriter{}
	w.writeBits(uint64(serializedLength), 32) // serialized length
	w.writeBits(0xFF, 8)                      // zero-run symbol (unused here)
	w.writeBits(1, 8)                         // zero-run counter size
	w.writeBits(1, 1)                         // tree: leaf bit
	w.writeBits(0x00, 8)                      // tree: symbol byte
	// The fields above fill exactly 8 bytes; a trailing zero byte takes the
	// payload past Decompress's 8-byte dummy-block threshold so the tree is
	// actually parsed.
	return append(w.bytesPadded(), 0)
}

func TestDecompressDegenerateTreeAllZero(t *testing.T) {
	p := Params{Version: Version1, BlockWidth: 4, BlockHeight: 4, CoeffCount: 1}
	payload := buildDegenerateV1Payload(32) // 16 bitplanes * 2 bytes/bitplane
	out, err := Decompress(payload, p)
	if err != nil {
		t.Fatalf("Decompress() error = %v", err)
	}
	if len(out) != 16 {
		t.Fatalf("len(out) = %d, want 16", len(out))
	}
	for i, v := range out {
		if v != 0 {
			t.Fatalf("out[%d] = %d, want 0", i, v)
		}
	}
}

// buildSignAndMagnitudePayload builds a version-1 payload with three
// symbols (0x00, 0xFF, and zero-run symbol 0xFE never triggered) so that
// the body's bitplane-0 (sign) byte 0 and bitplane-1 byte 0 are both 0xFF,
// giving coefficients 0..7 (flat order) a sign-magnitude value of 0x8001.
func buildSignAndMagnitudePayload(bodyLen int, oneOffsets map[int]bool) []byte {
	w := &bitWriter{}
	w.writeBits(uint64(bodyLen), 32)
	w.writeBits(0xFE, 8)
	w.writeBits(1, 8)

	w.writeBits(0, 1)
	w.writeBits(1, 1)
	w.writeBits(0x00, 8)
	w.writeBits(1, 1)
	w.writeBits(0xFF, 8)

	for i := 0; i < bodyLen; i++ {
		if oneOffsets[i] {
			w.writeBits(1, 1)
		} else {
			w.writeBits(0, 1)
		}
	}
	return w.bytesPadded()
}

func TestDecompressCombinesSignAndMagnitudeBitplanes(t *testing.T) {
	// 4x4 block, 1 coefficient plane: 16 bitplanes each 2 bytes = 32 body
	// bytes. Bitplane 0 (sign) is body bytes [0,1]; bitplane 1 (magnitude
	// bit 0) is body bytes [2,3]. Setting byte 0 of each to 0xFF gives flat
	// coefficients 0..7 the sign-magnitude value 0x8001 (-1 in two's
	// complement).
	p := Params{Version: Version1, BlockWidth: 4, BlockHeight: 4, CoeffCount: 1}
	payload := buildSignAndMagnitudePayload(32, map[int]bool{0: true, 2: true})
	out, err := Decompress(payload, p)
	if err != nil {
		t.Fatalf("Decompress() error = %v", err)
	}
	foundNegativeOne := false
	for _, v := range out {
		if v == -1 {
			foundNegativeOne = true
		}
	}
	if !foundNegativeOne {
		t.Fatalf("expected at least one coefficient == -1, got %v", out)
	}
}
