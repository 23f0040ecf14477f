// Package fault implements the fault path: classifying a hardware fault and, for the recoverable
// case, walking the page table and refilling the MPU shadow table so the faulting instruction can
// retry. It is grounded on the Cortex-M fault handler's dispatch order: NMI/vector-table corruption
// first, then a forced-exception debug event, then anything fatal, and only then a page-table walk.
package fault

import (
	"errors"
	"fmt"

	"github.com/wardkernel/ward/internal/hal"
	"github.com/wardkernel/ward/internal/mpu"
	"github.com/wardkernel/ward/internal/pgtbl"
)

// Classification categorizes a fault by how it must be handled.
type Classification int

const (
	// ClassKernelPanic means the fault handler itself cannot be trusted: an NMI is pending, or the
	// vector table is corrupt. There is no recovery; the kernel halts.
	ClassKernelPanic Classification = iota

	// ClassDebugEvent means the fault was a forced exception escalated from a debug monitor event;
	// the debugger owns it and the kernel takes no action.
	ClassDebugEvent

	// ClassFatal means the faulting thread cannot continue: the fault address is not valid, or the
	// fault is otherwise not a simple permission/mapping miss.
	ClassFatal

	// ClassRecoverable means the fault may be a plain MPU miss on a mapped-but-uncached page; the
	// page table must be walked to find out.
	ClassRecoverable
)

// ErrIrrecoverable is returned by Handle for a ClassKernelPanic fault (an NMI is pending or the
// vector table is corrupt). Faults the thread cannot recover from are delivered to its endpoint
// instead.
var ErrIrrecoverable = errors.New("fault: irrecoverable")

// Classify categorizes a fault from its status flags alone, before any page-table walk.
func Classify(status hal.FaultStatus) Classification {
	if status.NMIPending || status.VectorTableFault {
		return ClassKernelPanic
	}

	if status.Forced && status.DebugEvent {
		return ClassDebugEvent
	}

	if status.Fatal || !status.AddrValid {
		return ClassFatal
	}

	return ClassRecoverable
}

// Handle drives the fault path for one fault. For a recoverable classification it walks top at the
// fault address and, if a present page is found with adequate permission, refills the MPU shadow
// table so the faulting access can be retried. Every other outcome — unmapped address, permission
// violation, or an inconsistency that should be impossible (a fault landing on a region already
// marked static) — is delivered to endpoint as the thread's fault, and Handle returns nil: the
// fault was handled, even though the thread was not resumed.
//
// A ClassKernelPanic or ClassDebugEvent classification returns ErrIrrecoverable (kernel panic) or
// nil (debug event, nothing to do) without touching top or endpoint.
func Handle(status hal.FaultStatus, top *pgtbl.Node, endpoint hal.FaultEndpoint) error {
	switch Classify(status) {
	case ClassKernelPanic:
		return fmt.Errorf("%w: NMI or vector table fault", ErrIrrecoverable)

	case ClassDebugEvent:
		return nil

	case ClassFatal:
		return deliver(endpoint, status, "fatal fault")
	}

	result, err := pgtbl.Walk(top, status.FaultAddr)
	if err != nil {
		return deliver(endpoint, status, fmt.Sprintf("walk failed: %s", err))
	}

	if !result.Found {
		return deliver(endpoint, status, "address not mapped")
	}

	if status.InstructionFetch && result.Flags&mpu.FlagExecute == 0 {
		return deliver(endpoint, status, "no execute permission")
	}

	if result.Flags&mpu.FlagStatic != 0 {
		// A static region is installed once and never evicted; a fault against one means the
		// shadow table and the hardware MPU have drifted apart.
		return deliver(endpoint, status, "fault on statically-mapped region")
	}

	if err := mpu.Update(result.Node, mpu.OpAdd); err != nil {
		return deliver(endpoint, status, fmt.Sprintf("refill failed: %s", err))
	}

	return nil
}

func deliver(endpoint hal.FaultEndpoint, status hal.FaultStatus, reason string) error {
	return endpoint.Deliver(status.Thread, hal.FaultInfo{Addr: status.FaultAddr, Reason: reason})
}
