package hal

// fake.go provides minimal, deterministic stand-ins for the external collaborators, used by tests
// and cmd/wardsim in place of real Cortex-M hardware. None of this is part of the kernel core; it
// exists so the core can be exercised without an MCU underneath it, the same role the teacher's
// testHarness plays for the instruction-cycle tests.

// SingleCoreInt is a single-core interrupt controller: masking is just a boolean flag, since there
// is only ever one flow of control to serialize against.
type SingleCoreInt struct {
	enabled bool
}

// NewSingleCoreInt returns an interrupt controller that starts with interrupts enabled.
func NewSingleCoreInt() *SingleCoreInt {
	return &SingleCoreInt{enabled: true}
}

func (ic *SingleCoreInt) DisableInt() bool {
	was := ic.enabled
	ic.enabled = false

	return was
}

func (ic *SingleCoreInt) EnableInt() {
	ic.enabled = true
}

// RecordingMPU is an MPUWriter that just remembers the last regions it was given, for assertions
// in tests and for cmd/wardsim's demo output.
type RecordingMPU struct {
	Regions [8]Region
	Writes  int
}

func (m *RecordingMPU) WriteRegions(regions [8]Region) {
	m.Regions = regions
	m.Writes++
}

// RecordingEndpoint is a FaultEndpoint that remembers delivered faults instead of rescheduling a
// thread, for assertions in tests and for cmd/wardsim's demo output.
type RecordingEndpoint struct {
	Delivered []FaultInfo
}

func (e *RecordingEndpoint) Deliver(_ ThreadID, info FaultInfo) error {
	e.Delivered = append(e.Delivered, info)
	return nil
}

// StaticCPUID always reports CPU 0, the only core the MPU path supports.
type StaticCPUID struct{}

func (StaticCPUID) CPUID() int { return 0 }
