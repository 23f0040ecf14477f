package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/wardkernel/ward/internal/cli"
	"github.com/wardkernel/ward/internal/config"
	"github.com/wardkernel/ward/internal/fault"
	"github.com/wardkernel/ward/internal/hal"
	"github.com/wardkernel/ward/internal/kobj"
	"github.com/wardkernel/ward/internal/log"
	"github.com/wardkernel/ward/internal/mpu"
	"github.com/wardkernel/ward/internal/pgtbl"
	"github.com/wardkernel/ward/internal/word"
)

// Boot is a demonstration command: it builds a top-level page table, maps a handful of pages,
// drives a synthetic recoverable fault through the fault handler, and prints the resulting MPU
// shadow table.
func Boot() cli.Command {
	return new(boot)
}

type boot struct {
	cfg config.Config
}

func (boot) Description() string {
	return "boot a page table and drive a synthetic MPU fault"
}

func (boot) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, `
boot [ -word-bits N ] [ -mpu-slots N ] [ -top-size-order N ] [ -top-num-order N ]

Construct a top-level page table, map pages into it, and walk a synthetic fault through the
handler to demonstrate MPU shadow-table refill.`)

	return err
}

func (b *boot) FlagSet() *cli.FlagSet {
	return config.FlagSet("boot", &b.cfg)
}

func (b boot) Run(_ context.Context, _ []string, out io.Writer, logger *log.Logger) int {
	if logger == nil {
		logger = log.DefaultLogger()
	}

	if err := b.cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		return 1
	}

	alloc := kobj.NewBumpAllocator(b.cfg.KmemBase, b.cfg.KmemSize)
	ic := hal.NewSingleCoreInt()

	top, err := pgtbl.New(alloc, ic, 0x1000_0000, true, uint8(b.cfg.TopSizeOrder), uint8(b.cfg.TopNumOrder))
	if err != nil {
		logger.Error("failed to build top-level page table", "err", err)
		return 1
	}

	logger.Info("page table created",
		"start", top.StartAddr, "size_order", top.SizeOrder, "num_order", top.NumOrder)

	entries := int(word.Pow2(top.NumOrder))
	pageSize := word.Pow2(top.SizeOrder)
	flags := mpu.FlagRead | mpu.FlagWrite | mpu.FlagExecute

	for pos := 0; pos < entries/2; pos++ {
		paddr := word.Word(0x2000_0000) + word.Word(pos)*pageSize

		if err := top.PageMap(pos, paddr, flags); err != nil {
			logger.Error("page map failed", "pos", pos, "err", err)
			return 1
		}
	}

	logger.Info("pages mapped", "count", entries/2, "flags", flags.String())

	mmu := &hal.RecordingMPU{}
	top.Shadow.SetHardware(mmu)
	logger.Info("mpu hardware write", "writes", mmu.Writes)

	// Simulate an MPU slot being evicted (e.g. by another address space's fault) so the next touch
	// of page 0 takes a recoverable miss that the fault handler must refill.
	top.Shadow.Clear(word.StartAddr(top.StartAddr), top.SizeOrder)

	endpoint := &hal.RecordingEndpoint{}
	faultAddr := word.StartAddr(top.StartAddr) + pageSize/2

	status := hal.FaultStatus{
		AddrValid: true,
		FaultAddr: faultAddr,
		Thread:    1,
	}

	if err := fault.Handle(status, top, endpoint); err != nil {
		logger.Error("fault unhandled", "addr", faultAddr, "err", err)
		return 1
	}

	top.Shadow.SetHardware(mmu)

	if len(endpoint.Delivered) > 0 {
		logger.Info("fault delivered to thread", "info", endpoint.Delivered[0])
	} else {
		logger.Info("fault resolved by refill", "addr", faultAddr, "slot0", mmu.Regions[0])
	}

	fmt.Fprintf(out, "page table: start=%s size_order=%d num_order=%d pages_mapped=%d\n",
		top.StartAddr, top.SizeOrder, top.NumOrder, top.PageCount)
	for i, r := range mmu.Regions {
		fmt.Fprintf(out, "mpu shadow slot %d: rbar=%s rasr=%s\n", i, r.RBAR, r.RASR)
	}

	return 0
}
