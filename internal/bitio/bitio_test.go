package bitio

import "testing"

func TestReadBitsRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		n    int
		want uint64
	}{
		{name: "single byte low nibble", data: []byte{0x0F}, n: 4, want: 0xF},
		{name: "single byte full", data: []byte{0xAB}, n: 8, want: 0xAB},
		{name: "crosses byte boundary", data: []byte{0xFF, 0x01}, n: 9, want: 0x1FF},
		{name: "near end of buffer", data: []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}, n: 57, want: le64([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}) & ((1 << 57) - 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(tt.data)
			got := r.ReadBits(tt.n)
			if got != tt.want {
				t.Fatalf("ReadBits(%d) = %#x, want %#x", tt.n, got, tt.want)
			}
		})
	}
}

func TestReadBitsSequential(t *testing.T) {
	r := NewReader([]byte{0b10110010, 0b00001111})
	if got := r.ReadBits(4); got != 0b0010 {
		t.Fatalf("first nibble = %#b, want 0b0010", got)
	}
	if got := r.ReadBits(4); got != 0b1011 {
		t.Fatalf("second nibble = %#b, want 0b1011", got)
	}
	if got := r.ReadBits(8); got != 0b00001111 {
		t.Fatalf("third byte = %#b, want 0b00001111", got)
	}
}

func TestPeekDoesNotAdvance(t *testing.T) {
	r := NewReader([]byte{0xCA, 0xFE})
	p1 := r.PeekBits()
	p2 := r.PeekBits()
	if p1 != p2 {
		t.Fatalf("PeekBits mutated cursor: %#x != %#x", p1, p2)
	}
	if r.BitPos() != 0 {
		t.Fatalf("PeekBits advanced cursor to %d", r.BitPos())
	}
}

func TestPeekNearEndOfBufferDoesNotPanic(t *testing.T) {
	r := NewReader([]byte{0x01})
	r.Seek(7)
	_ = r.PeekBits() // must not index out of range despite the 1-byte buffer
}

func TestSeekAndLen(t *testing.T) {
	r := NewReader([]byte{0, 0, 0, 0})
	if r.Len() != 32 {
		t.Fatalf("Len() = %d, want 32", r.Len())
	}
	r.Consume(10)
	if r.Len() != 22 {
		t.Fatalf("Len() after consuming 10 bits = %d, want 22", r.Len())
	}
	r.Seek(0)
	if r.Len() != 32 {
		t.Fatalf("Len() after Seek(0) = %d, want 32", r.Len())
	}
}
