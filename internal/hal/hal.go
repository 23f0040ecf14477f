// Package hal defines the narrow interfaces the page-table/MPU/fault core calls outward through:
// the physical memory allocator, fault delivery to user-level threads, and the raw
// MPU/interrupt-controller and CPU-id primitives. The real collaborators are not implemented here;
// hal names the boundary, and also provides the interrupt-masking atomic helpers (atomic.go) and
// in-memory stand-ins (fake.go), so internal/pgtbl, internal/mpu and internal/fault can be built and
// tested without a real MCU underneath them.
package hal

import "github.com/wardkernel/ward/internal/word"

// Allocator hands out identity-mapped kernel memory for page-table nodes and other kernel objects.
// It is the physical memory provider named in the specification's external interfaces; this core
// does not implement dynamic physical allocation itself.
type Allocator interface {
	// Alloc returns size bytes of zeroed, identity-mapped memory, or an error if none is available.
	Alloc(size word.Word) (word.Word, error)

	// Free releases memory previously returned by Alloc.
	Free(addr, size word.Word)
}

// ThreadID identifies a thread for fault delivery. The scheduler that assigns these is out of
// scope for this core.
type ThreadID uint32

// FaultInfo describes a fault delivered to a thread's configured fault endpoint.
type FaultInfo struct {
	Addr   word.Word
	Reason string
}

// FaultEndpoint enqueues a fault signal to a per-thread endpoint and triggers a reschedule. The
// scheduler and endpoint delivery mechanism are external collaborators; this core only calls
// Deliver when it cannot recover from a fault itself.
type FaultEndpoint interface {
	Deliver(thread ThreadID, info FaultInfo) error
}

// MPUWriter publishes a full set of region descriptors to the hardware MPU. It is invoked by the
// (external) scheduler on a context switch, never directly by page-table operations.
type MPUWriter interface {
	WriteRegions(regions [8]Region)
}

// Region is an MPU region descriptor in the exact Cortex-M RBAR/RASR hardware layout: RBAR carries
// the region address, a valid bit, and the slot index in its low 4 bits; RASR carries the enable
// bit, size field, 8-bit subregion-disable mask, TEX/C/B, AP and XN.
type Region struct {
	RBAR word.Word
	RASR word.Word
}

// CPUIDSource identifies which core is executing. The MPU path only supports a single core
// (Non-goal: multi-core MPU synchronization), but the interface is named so call sites don't bake
// in the assumption.
type CPUIDSource interface {
	CPUID() int
}

// IntController masks and unmasks interrupts around the brief critical sections the specification
// requires for atomic primitives and for page-table mutations that must not be observed half
// written by the fault path.
type IntController interface {
	// DisableInt masks interrupts and returns whether they were enabled beforehand.
	DisableInt() bool

	// EnableInt unmasks interrupts.
	EnableInt()
}

// FaultStatus carries the hardware fault-status information the fault path classifies. Field names
// follow the Cortex-M fault status registers (HFSR, CFSR, MMFAR) the specification references.
type FaultStatus struct {
	// NMIPending is set if the CPU is taking an NMI.
	NMIPending bool
	// VectorTableFault is set if the hard fault is a vector-table read failure.
	VectorTableFault bool
	// Forced is set if this hard fault was escalated from a lower-priority fault.
	Forced bool
	// DebugEvent is set if the escalated fault was a debug monitor event.
	DebugEvent bool
	// Fatal is set for stacking faults, unaligned access, division faults, and the like.
	Fatal bool
	// AddrValid is set if FaultAddr holds a meaningful value.
	AddrValid bool
	// InstructionFetch is set if the fault was an instruction-fetch access violation.
	InstructionFetch bool
	// FaultAddr is the faulting address (MMFAR), meaningful only if AddrValid.
	FaultAddr word.Word
	// Thread identifies the faulting thread, for delivery.
	Thread ThreadID
}
