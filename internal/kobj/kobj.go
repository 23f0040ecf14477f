// Package kobj provides a minimal in-memory kernel-object allocator implementing hal.Allocator. It
// stands in for the boot-time physical allocator the specification names as an external
// collaborator (§6a); it is a demo/test fixture, not a production physical memory manager —
// per spec.md's Non-goals, this core provides no dynamic physical allocator of its own.
package kobj

import (
	"errors"

	"github.com/wardkernel/ward/internal/word"
)

// ErrExhausted is returned when the bump allocator has no more room.
var ErrExhausted = errors.New("kobj: exhausted")

// BumpAllocator hands out monotonically increasing, never-reused addresses from a fixed-size
// backing arena, mirroring the Cur_Addr-bump pattern used to build the boot-time kernel objects
// in the original's boot routine.
type BumpAllocator struct {
	arena []byte
	base  word.Word
	next  word.Word
}

// NewBumpAllocator creates an allocator over a fresh arena of size bytes, with addresses starting
// at base (typically a kernel-memory region's identity-mapped base address).
func NewBumpAllocator(base word.Word, size word.Word) *BumpAllocator {
	return &BumpAllocator{
		arena: make([]byte, size),
		base:  base,
		next:  base,
	}
}

// Alloc returns size bytes rounded up to a word boundary, or ErrExhausted.
func (a *BumpAllocator) Alloc(size word.Word) (word.Word, error) {
	size = word.RoundUp(size, 2)
	end := a.base + word.Word(len(a.arena))

	if a.next+size > end || a.next+size < a.next {
		return 0, ErrExhausted
	}

	addr := a.next
	a.next += size

	return addr, nil
}

// Free is a no-op: the bump allocator never reclaims memory. Kernel objects that are deleted are
// expected to be re-allocated from a free list by the real allocator this stands in for; modeling
// that is out of scope for the core (Non-goal: no dynamic physical allocator).
func (a *BumpAllocator) Free(word.Word, word.Word) {}
