package blockpool

import "errors"

var (
	// ErrExhausted is returned by Acquire when the free list is empty and
	// the pool cannot grow further (maxCapacity reached).
	ErrExhausted = errors.New("blockpool: exhausted")

	// ErrOutstandingBlocks is returned by Destroy when blocks are still
	// acquired.
	ErrOutstandingBlocks = errors.New("blockpool: outstanding blocks")
)
