// Package config holds the boot-time parameters of the address-translation core and the flag set
// that parses them, in the same bare flag.FlagSet style the rest of the command line uses — no
// configuration file format, no environment variable binding.
package config

import (
	"errors"
	"flag"
	"fmt"

	"github.com/wardkernel/ward/internal/mpu"
	"github.com/wardkernel/ward/internal/pgtbl"
	"github.com/wardkernel/ward/internal/word"
)

// Config holds the parameters the specification calls out as platform knobs: the machine word
// width, the number of hardware MPU regions, the shape of the top-level page table, and where the
// kernel's own bookkeeping memory lives.
type Config struct {
	// WordBits is the width of the machine word the core computes addresses in. Only word.Bits
	// (32) is supported by this build; the field exists so callers can assert their platform
	// matches rather than silently miscomputing masks.
	WordBits uint

	// MPUSlots is the number of hardware MPU regions. Only mpu.MaxRegions (8) is supported.
	MPUSlots uint

	// KmemBase and KmemSize bound the arena the kernel-object allocator carves page-table nodes
	// out of.
	KmemBase word.Word
	KmemSize word.Word

	// TopSizeOrder and TopNumOrder shape the root page-table node: 2^TopNumOrder entries, each
	// covering 2^TopSizeOrder bytes.
	TopSizeOrder uint
	TopNumOrder  uint
}

// Default returns the configuration wardsim boots with absent any flags.
func Default() Config {
	return Config{
		WordBits:     word.Bits,
		MPUSlots:     mpu.MaxRegions,
		KmemBase:     0x2000_0000,
		KmemSize:     0x0001_0000,
		TopSizeOrder: 12,
		TopNumOrder:  pgtbl.MPURepresentableNumOrder,
	}
}

// FlagSet returns a flag set that parses into cfg, seeded with Default's values.
func FlagSet(name string, cfg *Config) *flag.FlagSet {
	*cfg = Default()

	fs := flag.NewFlagSet(name, flag.ExitOnError)

	fs.UintVar(&cfg.WordBits, "word-bits", cfg.WordBits, "machine word width in bits")
	fs.UintVar(&cfg.MPUSlots, "mpu-slots", cfg.MPUSlots, "number of hardware MPU regions")
	fs.Func("kmem-base", "kernel memory arena base address (hex)", hexVar(&cfg.KmemBase))
	fs.Func("kmem-size", "kernel memory arena size in bytes (hex)", hexVar(&cfg.KmemSize))
	fs.UintVar(&cfg.TopSizeOrder, "top-size-order", cfg.TopSizeOrder, "log2 of the top-level node's page size")
	fs.UintVar(&cfg.TopNumOrder, "top-num-order", cfg.TopNumOrder, "log2 of the top-level node's entry count")

	return fs
}

func hexVar(dst *word.Word) func(string) error {
	return func(s string) error {
		var v uint32
		if _, err := fmt.Sscanf(s, "0x%x", &v); err != nil {
			if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
				return fmt.Errorf("config: invalid address %q", s)
			}
		}

		*dst = word.Word(v)

		return nil
	}
}

// ErrUnsupported is returned by Validate for a platform knob this build cannot represent.
var ErrUnsupported = errors.New("config: unsupported")

// Validate rejects configurations this build cannot represent: word.Word is fixed at 32 bits and
// the MPU shadow table is fixed at 8 slots, so both are checked rather than silently ignored.
func (c Config) Validate() error {
	if c.WordBits != word.Bits {
		return fmt.Errorf("%w: word-bits=%d, only %d is built", ErrUnsupported, c.WordBits, word.Bits)
	}

	if c.MPUSlots != mpu.MaxRegions {
		return fmt.Errorf("%w: mpu-slots=%d, only %d is built", ErrUnsupported, c.MPUSlots, mpu.MaxRegions)
	}

	if err := pgtbl.Check(uint8(c.TopSizeOrder), uint8(c.TopNumOrder)); err != nil {
		return fmt.Errorf("config: top-level shape: %w", err)
	}

	return nil
}
