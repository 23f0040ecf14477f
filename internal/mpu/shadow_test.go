package mpu

import (
	"errors"
	"testing"

	"github.com/wardkernel/ward/internal/word"
)

func newTable() *ShadowTable {
	t := &ShadowTable{}
	t.Init()

	return t
}

// rasr12 is a minimal enabled RASR whose size field encodes size order 12, so regions added with it
// at sizeOrder 12 can be found again by find.
const rasr12 = word.Word(12-1)<<1 | rasrEnable

func TestInit(tt *testing.T) {
	tt.Parallel()

	t := newTable()

	for i := 0; i < MaxRegions; i++ {
		if t.occupied(i) {
			tt.Errorf("slot %d occupied after Init", i)
		}

		if t.static(i) {
			tt.Errorf("slot %d static after Init", i)
		}

		if t.Data[i].RBAR&rbarSlotMask != word.Word(i) {
			tt.Errorf("slot %d RBAR does not encode its own index: %s", i, t.Data[i].RBAR)
		}
	}
}

func TestAddAndClear(tt *testing.T) {
	tt.Parallel()

	t := newTable()

	if err := t.Add(0x2000_0000, 12, 0xdead_0000|rasr12, false); err != nil {
		tt.Fatalf("Add: %v", err)
	}

	slot, ok := t.find(0x2000_0000, 12)
	if !ok {
		tt.Fatalf("region not found after Add")
	}

	if t.Data[slot].RASR != 0xdead_0000|rasr12 {
		tt.Errorf("RASR = %s, want 0xdead0017", t.Data[slot].RASR)
	}

	t.Clear(0x2000_0000, 12)

	if _, ok := t.find(0x2000_0000, 12); ok {
		tt.Errorf("region still found after Clear")
	}
}

func TestAddOverwritesMatchingRegion(tt *testing.T) {
	tt.Parallel()

	t := newTable()

	_ = t.Add(0x2000_0000, 12, rasr12, false)
	_ = t.Add(0x2000_0000, 12, rasr12|rasrXN, true)

	slot, ok := t.find(0x2000_0000, 12)
	if !ok {
		tt.Fatalf("region not found")
	}

	if t.Data[slot].RASR != rasr12|rasrXN {
		tt.Errorf("RASR = %s, want %s (overwritten)", t.Data[slot].RASR, rasr12|rasrXN)
	}

	if !t.static(slot) {
		tt.Errorf("slot %d not marked static after overwrite", slot)
	}
}

func TestAddFillsFromHighestSlot(tt *testing.T) {
	tt.Parallel()

	t := newTable()

	if err := t.Add(0x3000_0000, 12, rasr12, false); err != nil {
		tt.Fatalf("Add: %v", err)
	}

	slot, ok := t.find(0x3000_0000, 12)
	if !ok || slot != MaxRegions-1 {
		tt.Errorf("first dynamic Add landed in slot %d, want %d", slot, MaxRegions-1)
	}
}

// TestAddSlot0ReservedForDynamic verifies that a static request never victimizes slot 0, even when
// it is the only empty slot remaining.
func TestAddSlot0ReservedForDynamic(tt *testing.T) {
	tt.Parallel()

	t := newTable()

	for i := MaxRegions - 1; i >= 1; i-- {
		addr := word.Word(0x1000_0000 + i*0x1000)
		if err := t.Add(addr, 12, rasr12, true); err != nil {
			tt.Fatalf("Add(%d): %v", i, err)
		}
	}

	// Only slot 0 remains empty; a static request must fail rather than take it.
	if err := t.Add(0x9000_0000, 12, rasr12, true); !errors.Is(err, ErrCapacity) {
		tt.Errorf("Add with only slot 0 free: err = %v, want ErrCapacity", err)
	}

	// A dynamic request may still take slot 0.
	if err := t.Add(0x9000_0000, 12, rasr12, false); err != nil {
		tt.Errorf("dynamic Add into slot 0 failed: %v", err)
	}

	if slot, ok := t.find(0x9000_0000, 12); !ok || slot != 0 {
		tt.Errorf("dynamic Add landed in slot %d, want 0", slot)
	}
}

// TestAdd_NoEmpty_ReplacesDynamic exercises the victim-selection fix: once every slot is occupied,
// a new region must evict the highest-indexed dynamic (non-static) slot, not some other slot the
// search happened to pass over.
func TestAdd_NoEmpty_ReplacesDynamic(tt *testing.T) {
	tt.Parallel()

	t := newTable()

	// Fill slots 7..1 statically, slot 0 dynamically: every slot occupied, only slot 0 evictable.
	for i := MaxRegions - 1; i >= 1; i-- {
		addr := word.Word(0x1000_0000 + i*0x1000)
		if err := t.Add(addr, 12, rasr12, true); err != nil {
			tt.Fatalf("Add(%d): %v", i, err)
		}
	}

	if err := t.Add(0x2000_0000, 12, rasr12, false); err != nil {
		tt.Fatalf("Add(dynamic slot 0): %v", err)
	}

	// Now every slot is occupied (7 static + slot 0 dynamic).
	// A new dynamic region must replace slot 0, the only dynamic slot, not silently fail or
	// corrupt a static slot.
	if err := t.Add(0x3000_0000, 12, rasr12|rasrXN, false); err != nil {
		tt.Fatalf("Add(replacement): %v", err)
	}

	if _, ok := t.find(0x2000_0000, 12); ok {
		tt.Errorf("evicted dynamic region still present")
	}

	slot, ok := t.find(0x3000_0000, 12)
	if !ok || slot != 0 {
		tt.Errorf("replacement region landed in slot %d, want slot 0", slot)
	}

	// Every static slot must be untouched.
	for i := MaxRegions - 1; i >= 1; i-- {
		addr := word.Word(0x1000_0000 + i*0x1000)
		if _, ok := t.find(addr, 12); !ok {
			tt.Errorf("static slot %d was evicted", i)
		}
	}
}

// TestAddCapacityExhausted fills every slot (7 static, slot 0 dynamic) and checks that a further
// static request is refused — the only evictable slot is the dynamic one at index 0, and slot 0 is
// never an admissible victim for a static request — while a dynamic request still succeeds by
// evicting it.
func TestAddCapacityExhausted(tt *testing.T) {
	tt.Parallel()

	t := newTable()

	for i := MaxRegions - 1; i >= 1; i-- {
		addr := word.Word(0x1000_0000 + i*0x1000)
		if err := t.Add(addr, 12, 0x1, true); err != nil {
			tt.Fatalf("Add(%d): %v", i, err)
		}
	}

	if err := t.Add(0x2000_0000, 12, 0x1, false); err != nil {
		tt.Fatalf("Add(dynamic slot 0): %v", err)
	}

	if err := t.Add(0x9000_0000, 12, 0x1, true); !errors.Is(err, ErrCapacity) {
		tt.Errorf("static Add on full table: err = %v, want ErrCapacity", err)
	}

	if err := t.Add(0x9000_0000, 12, 0x1, false); err != nil {
		tt.Errorf("dynamic Add on full table: %v, want success (evicts slot 0)", err)
	}
}

func TestFlagsString(tt *testing.T) {
	tt.Parallel()

	f := FlagRead | FlagExecute
	if got, want := f.String(), "R-X---"; got != want {
		tt.Errorf("Flags.String() = %q, want %q", got, want)
	}
}
