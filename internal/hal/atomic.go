package hal

// atomic.go implements the single-core atomic primitives the specification requires: compare-and-
// swap, fetch-and-add, and fetch-and-and, each built by briefly masking interrupts around a plain
// read-modify-write. On a single-core Cortex-M target there is no need for a hardware LL/SC
// instruction or a multi-core memory fence; sync/atomic would model a memory system this kernel
// does not have (Non-goal: more than one CPU for the MPU path).

import "github.com/wardkernel/ward/internal/word"

// CompareAndSwap sets *ptr to newVal if *ptr equals old, returning true on success. On failure, old
// is left as-is; callers that need the observed value should re-read *ptr, mirroring the narrower
// contract needed by this kernel's callers (the original's asymmetric out-param is not carried
// over).
func CompareAndSwap(ic IntController, ptr *word.Word, old, newVal word.Word) bool {
	wasEnabled := ic.DisableInt()
	defer restoreInt(ic, wasEnabled)

	if *ptr != old {
		return false
	}

	*ptr = newVal

	return true
}

// FetchAdd adds addend to *ptr and returns the value before the addition.
func FetchAdd(ic IntController, ptr *word.Word, addend int32) word.Word {
	wasEnabled := ic.DisableInt()
	defer restoreInt(ic, wasEnabled)

	prev := *ptr
	*ptr = word.Word(int64(prev) + int64(addend))

	return prev
}

// FetchAnd logically ANDs *ptr with operand and returns the value before the operation.
func FetchAnd(ic IntController, ptr *word.Word, operand word.Word) word.Word {
	wasEnabled := ic.DisableInt()
	defer restoreInt(ic, wasEnabled)

	prev := *ptr
	*ptr &= operand

	return prev
}

// restoreInt re-enables interrupts only if they were enabled before the critical section, so
// nested masked regions compose correctly.
func restoreInt(ic IntController, wasEnabled bool) {
	if wasEnabled {
		ic.EnableInt()
	}
}
