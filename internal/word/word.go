// Package word defines the fixed-width integer type the kernel core computes on and the bit-packing
// helpers used to read and write the on-disk layouts at the hardware and software boundaries.
package word

import "fmt"

// Word is the base integer type the page table and MPU shadow table compute on. It is sized to
// match a pointer on the target MCU (config.WordBits), not the host running these tests.
type Word uint32

// Bits is the width of Word in bits.
const Bits = 32

func (w Word) String() string {
	return fmt.Sprintf("%#08x", uint32(w))
}

// MaskStart returns a mask keeping bits [start, Bits) set.
func MaskStart(start uint8) Word {
	if start >= Bits {
		return 0
	}

	return Word(^uint32(0)) << start
}

// MaskEnd returns a mask keeping bits [0, end] set.
func MaskEnd(end uint8) Word {
	if end >= Bits-1 {
		return ^Word(0)
	}

	return ^Word(0) >> (Bits - 1 - end)
}

// Mask returns a mask keeping bits [start, end] set, start <= end.
func Mask(start, end uint8) Word {
	return MaskStart(start) & MaskEnd(end)
}

// RoundDown rounds num down to a multiple of 2^pow.
func RoundDown(num Word, pow uint8) Word {
	return num & MaskStart(pow)
}

// RoundUp rounds num up to a multiple of 2^pow.
func RoundUp(num Word, pow uint8) Word {
	return RoundDown(num+MaskEnd(pow-1), pow)
}

// Pow2 returns 2^pow as a Word.
func Pow2(pow uint8) Word {
	return Word(1) << pow
}

// IsAligned reports whether addr is aligned to a word boundary.
func IsAligned(addr Word) bool {
	return addr&MaskEnd(1) == 0
}

// PackOrders packs a (sizeOrder, numOrder) pair into the single word the hardware/bootstrap
// boundary expects: low half holds numOrder, high half holds sizeOrder.
func PackOrders(sizeOrder, numOrder uint8) Word {
	return Word(numOrder) | Word(sizeOrder)<<(Bits/2)
}

// UnpackOrders reverses PackOrders.
func UnpackOrders(packed Word) (sizeOrder, numOrder uint8) {
	return uint8(packed >> (Bits / 2)), uint8(packed & MaskEnd(Bits/2-1))
}

// PackCounts packs a (dirCount, pageCount) pair into one word, matching the Dir_Page_Count wire
// layout: low half page count, high half directory count.
func PackCounts(dirCount, pageCount uint32) Word {
	return Word(pageCount) | Word(dirCount)<<(Bits/2)
}

// UnpackCounts reverses PackCounts.
func UnpackCounts(packed Word) (dirCount, pageCount uint32) {
	return uint32(packed >> (Bits / 2)), uint32(packed & MaskEnd(Bits/2-1))
}

// Page-table entry tag bits. An entry is either 0 (absent), PRESENT|TERMINAL|paddr (a page), or
// PRESENT|dirptr (a non-terminal directory pointer).
const (
	Present  Word = 1 << 0
	Terminal Word = 1 << 1
)

// TopLevelFlag is the low-order bit of a node's start address marking it a top-level node.
const TopLevelFlag Word = 1

// IsTopLevel reports whether the start address carries the top-level flag.
func IsTopLevel(start Word) bool {
	return start&TopLevelFlag != 0
}

// StartAddr masks off the top-level flag bit, yielding the arithmetic base address.
func StartAddr(start Word) Word {
	return start &^ TopLevelFlag
}

// MakeEntryPage builds a terminal page-table entry for the given physical address.
func MakeEntryPage(paddr Word) Word {
	return Present | Terminal | paddr
}

// MakeEntryDir builds a non-terminal page-table entry pointing at a child directory.
func MakeEntryDir(ptr Word) Word {
	return Present | ptr
}

// EntryPresent reports whether an entry is mapped (page or directory).
func EntryPresent(entry Word) bool {
	return entry&Present != 0
}

// EntryTerminal reports whether a present entry is a page (true) or a directory (false).
func EntryTerminal(entry Word) bool {
	return entry&Terminal != 0
}

// EntryAddr extracts the payload address from an entry, masking off the tag bits.
func EntryAddr(entry Word) Word {
	return entry &^ (Present | Terminal)
}
