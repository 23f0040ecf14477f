package fault

import (
	"errors"
	"testing"

	"github.com/wardkernel/ward/internal/hal"
	"github.com/wardkernel/ward/internal/kobj"
	"github.com/wardkernel/ward/internal/mpu"
	"github.com/wardkernel/ward/internal/pgtbl"
	"github.com/wardkernel/ward/internal/word"
)

func newTop(tt *testing.T) *pgtbl.Node {
	tt.Helper()

	alloc := kobj.NewBumpAllocator(0x2000_0000, 0x1_0000)
	ic := hal.NewSingleCoreInt()

	top, err := pgtbl.New(alloc, ic, 0x1000_0000, true, 12, 3)
	if err != nil {
		tt.Fatalf("pgtbl.New: %v", err)
	}

	return top
}

func TestClassify(tt *testing.T) {
	tt.Parallel()

	cases := []struct {
		name   string
		status hal.FaultStatus
		want   Classification
	}{
		{"nmi pending", hal.FaultStatus{NMIPending: true}, ClassKernelPanic},
		{"vector table fault", hal.FaultStatus{VectorTableFault: true}, ClassKernelPanic},
		{"debug event", hal.FaultStatus{Forced: true, DebugEvent: true}, ClassDebugEvent},
		{"fatal", hal.FaultStatus{Fatal: true, AddrValid: true}, ClassFatal},
		{"no valid address", hal.FaultStatus{AddrValid: false}, ClassFatal},
		{"recoverable", hal.FaultStatus{AddrValid: true}, ClassRecoverable},
	}

	for _, c := range cases {
		c := c

		tt.Run(c.name, func(tt *testing.T) {
			tt.Parallel()

			if got := Classify(c.status); got != c.want {
				tt.Errorf("Classify(%+v) = %v, want %v", c.status, got, c.want)
			}
		})
	}
}

func TestHandle_KernelPanic(tt *testing.T) {
	tt.Parallel()

	top := newTop(tt)
	endpoint := &hal.RecordingEndpoint{}

	err := Handle(hal.FaultStatus{NMIPending: true}, top, endpoint)
	if !errors.Is(err, ErrIrrecoverable) {
		tt.Errorf("Handle(NMI) = %v, want ErrIrrecoverable", err)
	}

	if len(endpoint.Delivered) != 0 {
		tt.Errorf("kernel panic should not deliver a fault to a thread endpoint")
	}
}

func TestHandle_DebugEvent(tt *testing.T) {
	tt.Parallel()

	top := newTop(tt)
	endpoint := &hal.RecordingEndpoint{}

	status := hal.FaultStatus{Forced: true, DebugEvent: true}

	if err := Handle(status, top, endpoint); err != nil {
		tt.Errorf("Handle(debug event) = %v, want nil", err)
	}

	if len(endpoint.Delivered) != 0 {
		tt.Errorf("debug event should not deliver a fault to a thread endpoint")
	}
}

func TestHandle_Fatal(tt *testing.T) {
	tt.Parallel()

	top := newTop(tt)
	endpoint := &hal.RecordingEndpoint{}

	status := hal.FaultStatus{Fatal: true, AddrValid: true, FaultAddr: 0x1000_0000, Thread: 7}

	if err := Handle(status, top, endpoint); err != nil {
		tt.Fatalf("Handle(fatal) = %v, want nil", err)
	}

	if len(endpoint.Delivered) != 1 || endpoint.Delivered[0].Addr != 0x1000_0000 {
		tt.Errorf("fatal fault not delivered: %+v", endpoint.Delivered)
	}
}

func TestHandle_UnmappedAddress(tt *testing.T) {
	tt.Parallel()

	top := newTop(tt)
	endpoint := &hal.RecordingEndpoint{}

	status := hal.FaultStatus{AddrValid: true, FaultAddr: word.StartAddr(top.StartAddr) + 0x10, Thread: 3}

	if err := Handle(status, top, endpoint); err != nil {
		tt.Fatalf("Handle(unmapped) = %v, want nil", err)
	}

	if len(endpoint.Delivered) != 1 {
		tt.Errorf("unmapped address should be delivered as a fault, got %+v", endpoint.Delivered)
	}
}

func TestHandle_ExecPermissionDenied(tt *testing.T) {
	tt.Parallel()

	top := newTop(tt)

	if err := top.PageMap(0, 0x2000_0000, mpu.FlagRead|mpu.FlagWrite); err != nil {
		tt.Fatalf("PageMap: %v", err)
	}

	endpoint := &hal.RecordingEndpoint{}
	status := hal.FaultStatus{
		AddrValid:        true,
		InstructionFetch: true,
		FaultAddr:        word.StartAddr(top.StartAddr) + 4,
		Thread:           9,
	}

	if err := Handle(status, top, endpoint); err != nil {
		tt.Fatalf("Handle(exec denied) = %v, want nil", err)
	}

	if len(endpoint.Delivered) != 1 {
		tt.Errorf("instruction fetch on non-executable page should be delivered, got %+v", endpoint.Delivered)
	}
}

func TestHandle_RecoverableRefill(tt *testing.T) {
	tt.Parallel()

	top := newTop(tt)

	if err := top.PageMap(0, 0x2000_0000, mpu.FlagRead|mpu.FlagExecute); err != nil {
		tt.Fatalf("PageMap: %v", err)
	}

	// Simulate the region having been evicted from the shadow table by another address space.
	top.Shadow.Clear(word.StartAddr(top.StartAddr), top.SizeOrder)

	endpoint := &hal.RecordingEndpoint{}
	status := hal.FaultStatus{AddrValid: true, FaultAddr: word.StartAddr(top.StartAddr) + 4, Thread: 1}

	if err := Handle(status, top, endpoint); err != nil {
		tt.Fatalf("Handle(recoverable) = %v, want nil", err)
	}

	if len(endpoint.Delivered) != 0 {
		tt.Errorf("recoverable fault should not be delivered: %+v", endpoint.Delivered)
	}

	found := false

	for i := range top.Shadow.Data {
		if top.Shadow.Data[i].RASR != 0 {
			found = true
		}
	}

	if !found {
		tt.Errorf("shadow table was not refilled after recoverable fault")
	}
}

func TestHandle_StaticRegionFaultIsDelivered(tt *testing.T) {
	tt.Parallel()

	top := newTop(tt)

	if err := top.PageMap(0, 0x2000_0000, mpu.FlagRead|mpu.FlagStatic); err != nil {
		tt.Fatalf("PageMap: %v", err)
	}

	endpoint := &hal.RecordingEndpoint{}
	status := hal.FaultStatus{AddrValid: true, FaultAddr: word.StartAddr(top.StartAddr) + 4, Thread: 1}

	if err := Handle(status, top, endpoint); err != nil {
		tt.Fatalf("Handle(static region fault) = %v, want nil", err)
	}

	if len(endpoint.Delivered) != 1 {
		tt.Errorf("fault on a static region should be delivered, got %+v", endpoint.Delivered)
	}
}
