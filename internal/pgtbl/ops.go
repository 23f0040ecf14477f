package pgtbl

// ops.go implements the page-table operations defined over Node: mapping and unmapping individual
// pages, attaching and detaching child directories, looking up a single entry, and walking a whole
// tree to resolve an address, the last of which is what the fault path drives on a recoverable MPU
// miss.

import (
	"fmt"

	"github.com/wardkernel/ward/internal/mpu"
	"github.com/wardkernel/ward/internal/word"
)

// posErr reports a position outside a node's entry array.
func posErr(n *Node, pos int) error {
	return fmt.Errorf("%w: pos=%d not in [0,%d)", ErrShape, pos, len(n.Entries))
}

func checkPos(n *Node, pos int) error {
	if pos < 0 || pos >= len(n.Entries) {
		return posErr(n, pos)
	}

	return nil
}

// topLevel returns the shadow-table-owning top-level node for n: itself, if n is top-level, else
// its attached Toplevel. Returns nil if n is a detached non-top node.
func (n *Node) topLevel() *Node {
	if n.IsTop() {
		return n
	}

	return n.Toplevel
}

// refresh recomputes n's MPU representation if n is MPU-representable (eight entries) and attached
// to (or is) a top-level node. Non-representable or unattached nodes are silently skipped: they
// have no hardware region of their own, and their ancestors are refreshed independently whenever
// their own entries change.
func (n *Node) refresh() error {
	if n.NumOrder != MPURepresentableNumOrder {
		return nil
	}

	if n.topLevel() == nil {
		return nil
	}

	if err := mpu.Update(n, mpu.OpAdd); err != nil {
		return fmt.Errorf("pgtbl: refresh: %w", err)
	}

	return nil
}

// PageMap maps a terminal page at pos, pointing at paddr, with the given permission flags. It fails
// if pos is occupied, or if flags disagree with every other page already mapped in this node
// (invariant: one shared permission word per node).
func (n *Node) PageMap(pos int, paddr word.Word, flags mpu.Flags) error {
	var err error
	err = n.masked(func() error {
		if e := checkPos(n, pos); e != nil {
			return e
		}

		if word.EntryPresent(n.Entries[pos]) {
			return fmt.Errorf("%w: pos=%d already mapped", ErrOccupancy, pos)
		}

		if n.NumOrder != MPURepresentableNumOrder {
			return fmt.Errorf("%w: num_order=%d, page maps need %d", ErrShape, n.NumOrder, MPURepresentableNumOrder)
		}

		if n.PageCount > 0 && n.PageFlags != flags {
			return fmt.Errorf("%w: flags %s disagree with node flags %s", ErrConsistency, flags, n.PageFlags)
		}

		oldFlags := n.PageFlags
		n.PageFlags = flags
		n.Entries[pos] = word.MakeEntryPage(paddr)
		n.PageCount++

		if e := n.refresh(); e != nil {
			n.Entries[pos] = 0
			n.PageCount--
			n.PageFlags = oldFlags

			return e
		}

		return nil
	})

	return err
}

// PageUnmap removes the terminal page at pos.
func (n *Node) PageUnmap(pos int) error {
	return n.masked(func() error {
		if e := checkPos(n, pos); e != nil {
			return e
		}

		entry := n.Entries[pos]
		if !word.EntryPresent(entry) || !word.EntryTerminal(entry) {
			return fmt.Errorf("%w: pos=%d is not a mapped page", ErrOccupancy, pos)
		}

		n.Entries[pos] = 0
		n.PageCount--

		if e := n.refresh(); e != nil {
			n.Entries[pos] = entry
			n.PageCount++

			return e
		}

		return nil
	})
}

// PgdirMap attaches child as the directory entry at pos. child must not already be attached to any
// top-level, must not itself be a top-level node (only one level of a tree may own a shadow table),
// and must not already own any child directories of its own. If child already has static pages
// mapped, its MPU representation is refreshed against the new top-level's shadow table; a failure
// there rolls back the entry, the attachment, and the directory count.
func (n *Node) PgdirMap(pos int, child *Node) error {
	return n.masked(func() error {
		if e := checkPos(n, pos); e != nil {
			return e
		}

		if word.EntryPresent(n.Entries[pos]) {
			return fmt.Errorf("%w: pos=%d already occupied", ErrOccupancy, pos)
		}

		if child.Toplevel != nil || child.IsTop() || child.DirCount != 0 {
			return fmt.Errorf("%w: child already attached, is itself top-level, or owns child directories", ErrAttachment)
		}

		top := n.topLevel()
		if top == nil {
			return fmt.Errorf("%w: parent is not attached to a top-level", ErrAttachment)
		}

		n.Entries[pos] = word.MakeEntryDir(child.Addr)
		n.children[pos] = child
		child.Toplevel = top
		n.DirCount++

		if child.PageCount > 0 && child.PageFlags&mpu.FlagStatic != 0 {
			if err := mpu.Update(child, mpu.OpAdd); err != nil {
				n.Entries[pos] = 0
				delete(n.children, pos)
				child.Toplevel = nil
				n.DirCount--

				return fmt.Errorf("pgtbl: pgdir_map: refresh: %w", err)
			}
		}

		return nil
	})
}

// PgdirUnmap detaches the child directory at pos from n. child must itself have no child
// directories of its own. If child has mapped pages, its MPU representation is cleared from the
// owning shadow table before it is detached, so no stale region is left pointing at memory this
// tree no longer reaches. The child itself is left intact, just detached; its own entries and
// counts are unchanged.
func (n *Node) PgdirUnmap(pos int) error {
	return n.masked(func() error {
		if e := checkPos(n, pos); e != nil {
			return e
		}

		entry := n.Entries[pos]
		if !word.EntryPresent(entry) || word.EntryTerminal(entry) {
			return fmt.Errorf("%w: pos=%d is not a directory", ErrOccupancy, pos)
		}

		child := n.children[pos]
		if child == nil {
			return fmt.Errorf("%w: pos=%d has no tracked child", ErrConsistency, pos)
		}

		if child.DirCount != 0 {
			return fmt.Errorf("%w: child at pos=%d still owns child directories", ErrAttachment, pos)
		}

		if child.PageCount > 0 {
			if err := mpu.Update(child, mpu.OpClear); err != nil {
				return fmt.Errorf("pgtbl: pgdir_unmap: clear: %w", err)
			}
		}

		n.Entries[pos] = 0
		delete(n.children, pos)
		child.Toplevel = nil
		n.DirCount--

		return nil
	})
}

// Lookup returns the raw entry at pos, without descending into a child directory.
func (n *Node) Lookup(pos int) (word.Word, error) {
	if e := checkPos(n, pos); e != nil {
		return 0, e
	}

	return n.Entries[pos], nil
}

// WalkResult is the outcome of descending a page-table tree to resolve one address.
type WalkResult struct {
	// Node and Pos identify the entry the walk stopped at.
	Node *Node
	Pos  int

	// Found is true iff the entry at Node.Entries[Pos] is a present terminal page.
	Found bool

	Paddr word.Word
	Flags mpu.Flags
}

// Walk descends from top toward addr, following directory entries until it reaches an absent
// entry, a terminal page, or a node that does not cover addr. It is the operation the fault path
// drives on a recoverable miss (specification §5).
func Walk(top *Node, addr word.Word) (WalkResult, error) {
	node := top

	for {
		base := word.StartAddr(node.StartAddr)
		span := word.Word(1) << node.SizeOrder
		count := word.Pow2(node.NumOrder)

		if addr < base || addr >= base+span*count {
			return WalkResult{}, fmt.Errorf("%w: addr %s outside node range", ErrShape, addr)
		}

		pos := int((addr - base) / span)
		entry := node.Entries[pos]

		if !word.EntryPresent(entry) {
			return WalkResult{Node: node, Pos: pos, Found: false}, nil
		}

		if word.EntryTerminal(entry) {
			return WalkResult{
				Node:  node,
				Pos:   pos,
				Found: true,
				Paddr: word.EntryAddr(entry) + (addr-base)%span,
				Flags: node.PageFlags,
			}, nil
		}

		child, ok := node.children[pos]
		if !ok {
			return WalkResult{}, fmt.Errorf("%w: pos=%d directory entry has no tracked child", ErrConsistency, pos)
		}

		node = child
	}
}
