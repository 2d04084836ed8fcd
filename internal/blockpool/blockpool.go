// Package blockpool implements the chunked fixed-size block allocator from
// spec.md §4.2 (C2). Two pools are instantiated by the caller: one for LL
// blocks (block_width*block_height*2 bytes) and one for H blocks (three
// times that). The locking shape (a single mutex serialising acquire and
// release, expected to see low contention because blocks churn in bursts
// during tile load) mirrors the teacher's codec.Registry
// (codec/registry.go), generalised from a read-mostly map to a free-list
// pool.
package blockpool

import (
	"sync"
)

// defaultChunkCapacity is the number of blocks a newly grown chunk holds.
const defaultChunkCapacity = 256

// Pool is a growable set of fixed-size byte blocks with a free list. It is
// safe for concurrent use by many goroutines.
type Pool struct {
	mu sync.Mutex

	blockSize   int
	chunkCap    int
	maxCapacity int // 0 means unbounded

	chunks    [][]byte        // each chunk is chunkCap*blockSize bytes
	freeList  []block         // indices of currently-free blocks
	live      map[*byte]block // acquired blocks, keyed by &buf[0], for O(1) release
	liveCount int             // blocks currently acquired (not on the free list)
}

type block struct {
	chunk, index int
}

// New creates a pool of blocks of blockSize bytes. maxCapacity bounds the
// total number of blocks the pool will ever hold (0 = unbounded); acquire
// returns ErrExhausted once that bound, and the free list, are both
// exhausted.
func New(blockSize, maxCapacity int) *Pool {
	return &Pool{
		blockSize:   blockSize,
		chunkCap:    defaultChunkCapacity,
		maxCapacity: maxCapacity,
		live:        make(map[*byte]block),
	}
}

// capacity returns the total number of blocks currently allocated across all
// chunks. Caller must hold mu.
func (p *Pool) capacity() int {
	total := 0
	for _, c := range p.chunks {
		total += len(c) / p.blockSize
	}
	return total
}

// growLocked allocates one more chunk. Each new chunk is double the size of
// the previous one (the "doubling policy up to max_capacity" spec.md §4.2
// asks for), clamped so the pool never exceeds maxCapacity blocks in total.
// Caller must hold mu.
func (p *Pool) growLocked() error {
	total := p.capacity()
	if p.maxCapacity > 0 && total >= p.maxCapacity {
		return ErrExhausted
	}

	size := p.chunkCap
	if len(p.chunks) > 0 {
		size = len(p.chunks[len(p.chunks)-1]) / p.blockSize * 2
	}
	if p.maxCapacity > 0 && total+size > p.maxCapacity {
		size = p.maxCapacity - total
	}
	if size <= 0 {
		return ErrExhausted
	}

	next := len(p.chunks)
	p.chunks = append(p.chunks, make([]byte, size*p.blockSize))
	for i := size - 1; i >= 0; i-- {
		p.freeList = append(p.freeList, block{chunk: next, index: i})
	}
	return nil
}

// Acquire pops a block from the free list, growing the pool if needed.
func (p *Pool) Acquire() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.freeList) == 0 {
		if err := p.growLocked(); err != nil {
			return nil, err
		}
	}
	last := len(p.freeList) - 1
	b := p.freeList[last]
	p.freeList = p.freeList[:last]
	p.liveCount++

	start := b.index * p.blockSize
	buf := p.chunks[b.chunk][start : start+p.blockSize : start+p.blockSize]
	for i := range buf {
		buf[i] = 0
	}
	p.live[&buf[0]] = b
	return buf, nil
}

// Release returns a block to the free list. buf must be a slice previously
// returned by Acquire on this pool; Release is safe to call from any
// goroutine, including one different from the one that acquired it. A buf
// not owned by this pool (e.g. one of internal/wavelet's synthetic dummy
// blocks) is ignored rather than panicking.
func (p *Pool) Release(buf []byte) {
	if len(buf) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.live[&buf[0]]
	if !ok {
		return
	}
	delete(p.live, &buf[0])
	p.freeList = append(p.freeList, b)
	p.liveCount--
}

// Outstanding returns the number of blocks currently acquired and not yet
// released.
func (p *Pool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.liveCount
}

// Destroy frees all chunks after verifying no outstanding blocks remain.
func (p *Pool) Destroy() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.liveCount != 0 {
		return ErrOutstandingBlocks
	}
	p.chunks = nil
	p.freeList = nil
	return nil
}
