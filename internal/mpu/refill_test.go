package mpu

import (
	"errors"
	"testing"

	"github.com/wardkernel/ward/internal/word"
)

func TestComputeRASR_NoPagesMapped(tt *testing.T) {
	tt.Parallel()

	entries := make([]word.Word, 8)

	if got := ComputeRASR(entries, FlagRead, 12); got != 0 {
		tt.Errorf("ComputeRASR(all absent) = %s, want 0", got)
	}
}

func TestComputeRASR_SubregionMask(tt *testing.T) {
	tt.Parallel()

	entries := make([]word.Word, 8)
	entries[0] = word.MakeEntryPage(0x1000)
	entries[3] = word.MakeEntryPage(0x4000)

	rasr := ComputeRASR(entries, FlagRead|FlagWrite, 12)
	if rasr&rasrEnable == 0 {
		tt.Fatalf("region not enabled: %s", rasr)
	}

	srd := (rasr & rasrSRD) >> 8
	// Bits 0 and 3 enabled (clear in the disable mask); all others disabled (set).
	if srd&(1<<0) != 0 || srd&(1<<3) != 0 {
		tt.Errorf("subregions 0,3 should be enabled: srd=%#x", srd)
	}

	for i := 1; i < 8; i++ {
		if i == 3 {
			continue
		}

		if srd&(1<<uint(i)) == 0 {
			tt.Errorf("subregion %d should be disabled: srd=%#x", i, srd)
		}
	}
}

func TestComputeRASR_Permissions(tt *testing.T) {
	tt.Parallel()

	entries := make([]word.Word, 8)
	entries[0] = word.MakeEntryPage(0x1000)

	ro := ComputeRASR(entries, FlagRead, 12)
	if ro&rasrAP != apRO {
		tt.Errorf("read-only flags produced AP %#x, want %#x", ro&rasrAP, apRO)
	}

	if ro&rasrXN == 0 {
		tt.Errorf("non-executable flags did not set XN")
	}

	rwx := ComputeRASR(entries, FlagRead|FlagWrite|FlagExecute, 12)
	if rwx&rasrAP != apRW {
		tt.Errorf("read-write flags produced AP %#x, want %#x", rwx&rasrAP, apRW)
	}

	if rwx&rasrXN != 0 {
		tt.Errorf("executable flags set XN")
	}
}

type fakeNode struct {
	numOrder  uint8
	sizeOrder uint8
	start     word.Word
	flags     Flags
	entries   []word.Word
	shadow    *ShadowTable
}

func (n *fakeNode) RefillNumOrder() uint8      { return n.numOrder }
func (n *fakeNode) RefillSizeOrder() uint8     { return n.sizeOrder }
func (n *fakeNode) RefillStartAddr() word.Word { return n.start }
func (n *fakeNode) RefillPageFlags() Flags     { return n.flags }
func (n *fakeNode) RefillEntries() []word.Word { return n.entries }
func (n *fakeNode) RefillShadow() *ShadowTable { return n.shadow }

func TestUpdate_NotRepresentable(tt *testing.T) {
	tt.Parallel()

	n := &fakeNode{numOrder: 2, shadow: newTable()}

	if err := Update(n, OpAdd); !errors.Is(err, ErrNotRepresentable) {
		tt.Errorf("Update(num_order=2) = %v, want ErrNotRepresentable", err)
	}
}

func TestUpdate_NoOwner(tt *testing.T) {
	tt.Parallel()

	n := &fakeNode{numOrder: 3, shadow: nil}

	if err := Update(n, OpAdd); !errors.Is(err, ErrNoOwner) {
		tt.Errorf("Update(no shadow) = %v, want ErrNoOwner", err)
	}
}

func TestUpdate_AddAndClear(tt *testing.T) {
	tt.Parallel()

	entries := make([]word.Word, 8)
	entries[0] = word.MakeEntryPage(0x1000)

	n := &fakeNode{
		numOrder:  3,
		sizeOrder: 12,
		start:     0x1000_0000,
		flags:     FlagRead | FlagWrite,
		entries:   entries,
		shadow:    newTable(),
	}

	if err := Update(n, OpAdd); err != nil {
		tt.Fatalf("Update(OpAdd): %v", err)
	}

	if _, ok := n.shadow.find(0x1000_0000, 12); !ok {
		tt.Fatalf("region not installed after Update(OpAdd)")
	}

	if err := Update(n, OpClear); err != nil {
		tt.Fatalf("Update(OpClear): %v", err)
	}

	if _, ok := n.shadow.find(0x1000_0000, 12); ok {
		tt.Errorf("region still present after Update(OpClear)")
	}
}

func TestUpdate_EmptyNodeClearsRegion(tt *testing.T) {
	tt.Parallel()

	n := &fakeNode{
		numOrder:  3,
		sizeOrder: 12,
		start:     0x1000_0000,
		entries:   make([]word.Word, 8),
		shadow:    newTable(),
	}

	_ = n.shadow.Add(0x1000_0000, 12, rasr12, false)

	if err := Update(n, OpAdd); err != nil {
		tt.Fatalf("Update: %v", err)
	}

	if _, ok := n.shadow.find(0x1000_0000, 12); ok {
		tt.Errorf("region should have been cleared when no pages are mapped")
	}
}
