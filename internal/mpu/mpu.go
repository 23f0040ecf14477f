// Package mpu implements the MPU shadow table and the fault-driven refill algorithm: an 8-entry
// cache of hardware region descriptors that mirrors a bounded subset of a page table's mapped
// regions, plus the logic that computes and installs those descriptors from a page-table node.
package mpu

import (
	"errors"
	"fmt"

	"github.com/wardkernel/ward/internal/hal"
	"github.com/wardkernel/ward/internal/word"
)

// MaxRegions is the number of hardware MPU regions available. It is the one knob the specification
// says changes only the shadow table's width and the refill admission test, not the algorithm
// (spec.md §9's mpu_slots), but Cortex-M always has exactly 8 and the Data array below
// is sized to it; a different mpu_slots would require a differently sized ShadowTable type.
const MaxRegions = 8

// Flags is the RME-standard permission word shared by every page mapped in one page-table node.
type Flags word.Word

// Page permission and attribute bits.
const (
	FlagRead       Flags = 1 << 0
	FlagWrite      Flags = 1 << 1
	FlagExecute    Flags = 1 << 2
	FlagCacheable  Flags = 1 << 3
	FlagBufferable Flags = 1 << 4
	FlagStatic     Flags = 1 << 5
)

func (f Flags) String() string {
	s := ""
	for _, b := range []struct {
		bit Flags
		c   byte
	}{
		{FlagRead, 'R'}, {FlagWrite, 'W'}, {FlagExecute, 'X'},
		{FlagCacheable, 'C'}, {FlagBufferable, 'B'}, {FlagStatic, 'S'},
	} {
		if f&b.bit != 0 {
			s += string(b.c)
		} else {
			s += "-"
		}
	}

	return s
}

// Hardware RBAR/RASR bit layout, in the exact Cortex-M MPU register format.
const (
	rbarValid    = word.Word(1) << 4
	rbarSlotMask = word.Word(0x0f)

	rasrEnable = word.Word(1) << 0
	rasrXN     = word.Word(1) << 28
	rasrAP     = word.Word(0x7) << 24
	apRW       = word.Word(0x3) << 24
	apRO       = word.Word(0x6) << 24
	rasrC      = word.Word(1) << 17
	rasrB      = word.Word(1) << 16
	rasrSRD    = word.Word(0xff) << 8
	rasrSize   = word.Word(0x1f) << 1
)

// ErrCapacity is returned when no admissible MPU slot exists for an Add request.
var ErrCapacity = errors.New("mpu: capacity")

// ShadowTable is the software-side mirror of the hardware MPU for one address space. It lives
// inside each top-level page-table node (pgtbl.Node.Shadow).
type ShadowTable struct {
	// State packs occupancy (low 16 bits) and the static flag (high 16 bits) for each of the 8
	// slots, matching the specification's packed State word exactly.
	State uint32

	// Data holds the hardware region descriptors, one per slot; RBAR encodes the slot index in
	// its low 4 bits so a descriptor is self-describing.
	Data [MaxRegions]hal.Region
}

// Init resets the shadow table to 8 valid-but-empty descriptors, run when a top-level page-table
// node is initialized.
func (t *ShadowTable) Init() {
	t.State = 0

	for i := range t.Data {
		t.Data[i] = hal.Region{
			RBAR: rbarValid | word.Word(i),
			RASR: 0,
		}
	}
}

func (t *ShadowTable) occupied(slot int) bool {
	return t.State&(1<<uint(slot)) != 0
}

func (t *ShadowTable) static(slot int) bool {
	return t.State&(1<<uint(16+slot)) != 0
}

func (t *ShadowTable) setOccupied(slot int, v bool) {
	if v {
		t.State |= 1 << uint(slot)
	} else {
		t.State &^= 1 << uint(slot)
	}
}

func (t *ShadowTable) setStatic(slot int, v bool) {
	if v {
		t.State |= 1 << uint(16+slot)
	} else {
		t.State &^= 1 << uint(16+slot)
	}
}

// regionAddr extracts the base address encoded in a region's RBAR.
func regionAddr(rbar word.Word) word.Word {
	return rbar &^ (rbarValid | rbarSlotMask)
}

// regionSizeOrder extracts the size order encoded in a region's RASR.
func regionSizeOrder(rasr word.Word) uint8 {
	return uint8((rasr&rasrSize)>>1) + 1
}

func (t *ShadowTable) find(start word.Word, sizeOrder uint8) (int, bool) {
	for slot := 0; slot < MaxRegions; slot++ {
		if !t.occupied(slot) {
			continue
		}

		if regionAddr(t.Data[slot].RBAR) == start && regionSizeOrder(t.Data[slot].RASR) == sizeOrder {
			return slot, true
		}
	}

	return 0, false
}

// Clear removes the region matching (start, sizeOrder) from the shadow table, if present. It never
// fails: an absent match is a no-op, matching the specification exactly.
func (t *ShadowTable) Clear(start word.Word, sizeOrder uint8) {
	slot, ok := t.find(start, sizeOrder)
	if !ok {
		return
	}

	t.Data[slot] = hal.Region{RBAR: rbarValid | word.Word(slot), RASR: 0}
	t.setOccupied(slot, false)
	t.setStatic(slot, false)
}

// Add installs or updates the region (start, sizeOrder, rasr, static) in the shadow table.
//
// If a slot already matches (start, sizeOrder), its RASR and static bit are overwritten in place.
// Otherwise a victim slot is selected: the highest-indexed empty slot if any exist, else the
// highest-indexed occupied-but-dynamic (non-static) slot. Slot 0 is reserved for the fault path's
// dynamic refill and may only be chosen as a victim for a dynamic (non-static) request; a static
// request that can only be satisfied by evicting slot 0 fails instead.
func (t *ShadowTable) Add(start word.Word, sizeOrder uint8, rasr word.Word, static bool) error {
	if slot, ok := t.find(start, sizeOrder); ok {
		t.Data[slot].RASR = rasr
		t.setStatic(slot, static)

		return nil
	}

	victim, ok := t.selectVictim(static)
	if !ok {
		return fmt.Errorf("%w: no admissible slot for %s/%d", ErrCapacity, start, sizeOrder)
	}

	t.Data[victim] = hal.Region{
		RBAR: start | rbarValid | word.Word(victim),
		RASR: rasr,
	}
	t.setOccupied(victim, true)
	t.setStatic(victim, static)

	return nil
}

// selectVictim picks the single slot to (re)use for a new region, per the Add policy above. It
// resolves the specification's Open Question about the original's victim-selection arithmetic
// (spec.md §9) by tracking exactly one candidate slot rather than separate "last empty" and "last
// dynamic" variables that can disagree about which slot is actually written.
func (t *ShadowTable) selectVictim(static bool) (int, bool) {
	victim := -1

	// Prefer the highest-indexed empty slot.
	for slot := MaxRegions - 1; slot >= 0; slot-- {
		if !t.occupied(slot) {
			if slot != 0 || !static {
				victim = slot
				break
			}
		}
	}

	if victim >= 0 {
		return victim, true
	}

	// No empty slot is admissible; fall back to the highest-indexed dynamic slot.
	for slot := MaxRegions - 1; slot >= 0; slot-- {
		if t.occupied(slot) && !t.static(slot) {
			if slot != 0 || !static {
				return slot, true
			}
		}
	}

	return 0, false
}

// SetHardware publishes the shadow table's descriptors to the MPU, called by the (external)
// scheduler on a context switch.
func (t *ShadowTable) SetHardware(w hal.MPUWriter) {
	w.WriteRegions(t.Data)
}
