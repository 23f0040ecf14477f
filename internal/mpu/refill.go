package mpu

// refill.go implements the MPU refill algorithm: computing a region descriptor from a single
// page-table node of eight equal-size entries, and reconciling that descriptor with the owning
// shadow table.

import (
	"errors"
	"fmt"

	"github.com/wardkernel/ward/internal/word"
)

// ErrNotRepresentable is returned when Update is asked to refill a node that isn't MPU-
// representable (num_order != 3 — not exactly eight entries).
var ErrNotRepresentable = errors.New("mpu: node is not MPU-representable")

// ErrNoOwner is returned when a node has neither a top-level of its own nor is itself top-level,
// so there is no shadow table to update.
var ErrNoOwner = errors.New("mpu: node has no owning shadow table")

// Op selects whether Update should add/refresh a region or unconditionally clear it.
type Op int

const (
	OpAdd Op = iota
	OpClear
)

// Refillable is the minimal view of a page-table node the refill algorithm needs. pgtbl.Node
// implements this; mpu never imports pgtbl, breaking what would otherwise be an import cycle
// between the page-table operations (which must trigger refills) and the refill algorithm (which
// must inspect node state).
type Refillable interface {
	RefillNumOrder() uint8
	RefillSizeOrder() uint8
	RefillStartAddr() word.Word
	RefillPageFlags() Flags
	RefillEntries() []word.Word
	// RefillShadow returns the owning top-level's shadow table, or nil if this node is neither
	// top-level nor attached to one.
	RefillShadow() *ShadowTable
}

// ComputeRASR builds the RASR value for a node of exactly eight equal-size entries. Bit i of the
// subregion-disable mask is cleared (the subregion is enabled) iff entries[i] is a present terminal
// (page) entry. If no entry is a mapped page, ComputeRASR returns 0, meaning "no region needed".
func ComputeRASR(entries []word.Word, flags Flags, sizeOrder uint8) word.Word {
	var srd word.Word

	for i, e := range entries {
		if word.EntryPresent(e) && word.EntryTerminal(e) {
			srd |= word.Word(1) << uint(i+8)
		}
	}

	if srd == 0 {
		return 0
	}

	rasr := (rasrSRD &^ srd) | rasrEnable

	if flags&FlagWrite != 0 {
		rasr |= apRW
	} else {
		rasr |= apRO
	}

	if flags&FlagExecute == 0 {
		rasr |= rasrXN
	}

	if flags&FlagCacheable != 0 {
		rasr |= rasrC
	}

	if flags&FlagBufferable != 0 {
		rasr |= rasrB
	}

	rasr |= word.Word(sizeOrder-1) << 1

	return rasr
}

// Update computes or clears a node's MPU representation and reconciles it with the owning shadow
// table. Op selects unconditional clear (used when unmapping a whole directory) versus add/refresh
// (used after any single page map/unmap, which recomputes the subregion mask from scratch).
func Update(n Refillable, op Op) error {
	if n.RefillNumOrder() != 3 {
		return fmt.Errorf("%w: num_order=%d", ErrNotRepresentable, n.RefillNumOrder())
	}

	shadow := n.RefillShadow()
	if shadow == nil {
		return ErrNoOwner
	}

	start := word.StartAddr(n.RefillStartAddr())
	sizeOrder := n.RefillSizeOrder()

	if op == OpClear {
		shadow.Clear(start, sizeOrder)
		return nil
	}

	rasr := ComputeRASR(n.RefillEntries(), n.RefillPageFlags(), sizeOrder)
	if rasr == 0 {
		shadow.Clear(start, sizeOrder)
		return nil
	}

	static := n.RefillPageFlags()&FlagStatic != 0
	if err := shadow.Add(start, sizeOrder, rasr, static); err != nil {
		return fmt.Errorf("mpu: update: %w", err)
	}

	return nil
}
