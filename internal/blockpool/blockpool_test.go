package blockpool

import "testing"

func TestAcquireReleaseRoundTrip(t *testing.T) {
	p := New(16, 0)
	b, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if len(b) != 16 {
		t.Fatalf("len(block) = %d, want 16", len(b))
	}
	if p.Outstanding() != 1 {
		t.Fatalf("Outstanding() = %d, want 1", p.Outstanding())
	}
	p.Release(b)
	if p.Outstanding() != 0 {
		t.Fatalf("Outstanding() after release = %d, want 0", p.Outstanding())
	}
}

func TestAcquireGrowsChunks(t *testing.T) {
	p := New(8, 0)
	p.chunkCap = 4
	blocks := make([][]byte, 10)
	for i := range blocks {
		b, err := p.Acquire()
		if err != nil {
			t.Fatalf("Acquire() #%d error = %v", i, err)
		}
		blocks[i] = b
	}
	if p.Outstanding() != 10 {
		t.Fatalf("Outstanding() = %d, want 10", p.Outstanding())
	}
	for _, b := range blocks {
		p.Release(b)
	}
}

func TestAcquireFailsAtMaxCapacity(t *testing.T) {
	p := New(8, 4)
	p.chunkCap = 4
	for i := 0; i < 4; i++ {
		if _, err := p.Acquire(); err != nil {
			t.Fatalf("Acquire() #%d error = %v", i, err)
		}
	}
	if _, err := p.Acquire(); err != ErrExhausted {
		t.Fatalf("Acquire() at capacity error = %v, want ErrExhausted", err)
	}
}

func TestReleaseUnknownBlockIsIgnored(t *testing.T) {
	p := New(8, 0)
	foreign := make([]byte, 8)
	p.Release(foreign) // must not panic
	if p.Outstanding() != 0 {
		t.Fatalf("Outstanding() = %d, want 0", p.Outstanding())
	}
}

func TestDestroyRejectsOutstandingBlocks(t *testing.T) {
	p := New(8, 0)
	b, _ := p.Acquire()
	if err := p.Destroy(); err != ErrOutstandingBlocks {
		t.Fatalf("Destroy() with outstanding block error = %v, want ErrOutstandingBlocks", err)
	}
	p.Release(b)
	if err := p.Destroy(); err != nil {
		t.Fatalf("Destroy() after release error = %v", err)
	}
}
