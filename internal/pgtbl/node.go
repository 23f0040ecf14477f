// Package pgtbl implements the software page-table data structure: a multi-level node whose
// entries are either absent, terminal (a mapped page), or non-terminal (a child directory), plus
// the construction, attachment, and lookup operations defined on it. Top-level nodes additionally
// carry the MPU shadow table (internal/mpu) that caches a bounded subset of their mapped regions as
// hardware region descriptors.
package pgtbl

import (
	"errors"
	"fmt"

	"github.com/wardkernel/ward/internal/hal"
	"github.com/wardkernel/ward/internal/mpu"
	"github.com/wardkernel/ward/internal/word"
)

// Size and entry-count bounds a node's construction parameters must fall within.
const (
	MinNumOrder  = 1
	MaxNumOrder  = 8
	MinSizeOrder = 5
	MaxSizeOrder = 31

	// MPURepresentableNumOrder is the only num_order (eight entries) the MPU shadow table can
	// cache a region for.
	MPURepresentableNumOrder = 3
)

var (
	// ErrShape is returned when construction parameters fall outside the allowed ranges, or an
	// operation requires eight-entry (MPU-representable) shape and the node isn't shaped that way.
	ErrShape = errors.New("pgtbl: shape")

	// ErrOccupancy is returned for mapping over a present entry, or unmapping an absent or
	// wrong-kind entry.
	ErrOccupancy = errors.New("pgtbl: occupancy")

	// ErrConsistency is returned when a page's flags disagree with the node's shared page flags.
	ErrConsistency = errors.New("pgtbl: consistency")

	// ErrAttachment is returned for illegal attach/detach requests: attaching a top-level node,
	// an already-attached child, a child owning grandchildren, or detaching a non-empty directory.
	ErrAttachment = errors.New("pgtbl: attachment")
)

// Node is one level of a multi-level software page table. It holds up to 2^NumOrder entries, each
// covering 2^SizeOrder bytes, plus the metadata the specification requires: a back-pointer to the
// owning top-level, packed child/page counts, and the permission word shared by every mapped page.
type Node struct {
	// StartAddr is the base virtual address this node maps; its low bit is the top-level flag
	// (word.TopLevelFlag).
	StartAddr word.Word

	// Toplevel references the owning top-level node, or nil when this node is itself top-level or
	// is not yet attached to a parent.
	Toplevel *Node

	SizeOrder uint8
	NumOrder  uint8

	DirCount  uint32
	PageCount uint32

	// PageFlags is the permission word shared by every page mapped in this node (invariant 4: all
	// pages in one node have identical flags).
	PageFlags mpu.Flags

	// Entries is the node's page-table entry array, length 2^NumOrder. Each entry is 0 (absent),
	// a terminal page entry, or a non-terminal directory entry.
	Entries []word.Word

	// Shadow is the MPU shadow table, present only on top-level nodes (Toplevel == nil and
	// word.IsTopLevel(StartAddr)).
	Shadow *mpu.ShadowTable

	// Addr is this node's own kernel-object address, used as the payload of a parent's directory
	// entry. Assigned once at construction by the hal.Allocator.
	Addr word.Word

	// children maps an entry position to the child Node it points at. Real hardware/firmware would
	// recover a child from the raw pointer stored in Entries; this software model keeps a parallel
	// map because Go has no way to turn an arbitrary word back into a pointer.
	children map[int]*Node

	ic hal.IntController
}

// Check reports whether construction parameters are feasible, independent of any allocation.
func Check(sizeOrder, numOrder uint8) error {
	if numOrder < MinNumOrder || numOrder > MaxNumOrder {
		return fmt.Errorf("%w: num_order=%d not in [%d,%d]", ErrShape, numOrder, MinNumOrder, MaxNumOrder)
	}

	if sizeOrder < MinSizeOrder || sizeOrder > MaxSizeOrder {
		return fmt.Errorf("%w: size_order=%d not in [%d,%d]", ErrShape, sizeOrder, MinSizeOrder, MaxSizeOrder)
	}

	return nil
}

// New allocates and initializes a page-table node covering [start, start+2^sizeOrder*2^numOrder).
// If top is true, the node is a top-level node: its shadow table is initialized and StartAddr
// carries word.TopLevelFlag.
func New(alloc hal.Allocator, ic hal.IntController, start word.Word, top bool, sizeOrder, numOrder uint8) (*Node, error) {
	if err := Check(sizeOrder, numOrder); err != nil {
		return nil, err
	}

	addr, err := alloc.Alloc(word.Word(1) << numOrder * 4)
	if err != nil {
		return nil, fmt.Errorf("pgtbl: new: %w", err)
	}

	n := &Node{
		StartAddr: word.StartAddr(start),
		SizeOrder: sizeOrder,
		NumOrder:  numOrder,
		Entries:   make([]word.Word, word.Pow2(numOrder)),
		Addr:      addr,
		children:  make(map[int]*Node),
		ic:        ic,
	}

	if top {
		n.StartAddr |= word.TopLevelFlag
		n.Shadow = &mpu.ShadowTable{}
		n.Shadow.Init()
	}

	return n, nil
}

// IsTop reports whether this node is itself a top-level node.
func (n *Node) IsTop() bool {
	return word.IsTopLevel(n.StartAddr)
}

// DelCheck reports whether the node may be deleted: it must have no child directories and must not
// itself be attached to a parent. Page count is not checked: deleting the node implicitly releases
// all of its leaf mappings, and orphaned children are already forbidden by the attachment
// invariant.
func (n *Node) DelCheck() error {
	if n.DirCount != 0 {
		return fmt.Errorf("%w: dir_count=%d", ErrAttachment, n.DirCount)
	}

	if n.Toplevel != nil {
		return fmt.Errorf("%w: still attached to a top-level", ErrAttachment)
	}

	return nil
}

// Pack returns the (size_order, num_order) and (dir_count, page_count) metadata words in the exact
// packed layout the hardware/bootstrap boundary expects (word.PackOrders / word.PackCounts).
func (n *Node) Pack() (sizeNumOrder, dirPageCount word.Word) {
	return word.PackOrders(n.SizeOrder, n.NumOrder), word.PackCounts(n.DirCount, n.PageCount)
}

// mask critical sections: page-table mutations run entirely with interrupts masked, so the fault
// path can never observe a half-written shadow table (specification §5).
func (n *Node) masked(fn func() error) error {
	if n.ic == nil {
		return fn()
	}

	wasEnabled := n.ic.DisableInt()
	defer func() {
		if wasEnabled {
			n.ic.EnableInt()
		}
	}()

	return fn()
}

// Refillable implementation, so mpu.Update can inspect this node without pgtbl needing to depend on
// anything mpu doesn't already expose.

func (n *Node) RefillNumOrder() uint8        { return n.NumOrder }
func (n *Node) RefillSizeOrder() uint8       { return n.SizeOrder }
func (n *Node) RefillStartAddr() word.Word   { return n.StartAddr }
func (n *Node) RefillPageFlags() mpu.Flags   { return n.PageFlags }
func (n *Node) RefillEntries() []word.Word   { return n.Entries }

// RefillShadow returns the shadow table that owns this node's MPU representation: its own, if it
// is top-level, or its top-level's, if attached. Detached non-top nodes have no owner.
func (n *Node) RefillShadow() *mpu.ShadowTable {
	if n.Toplevel != nil {
		return n.Toplevel.Shadow
	}

	if n.IsTop() {
		return n.Shadow
	}

	return nil
}
