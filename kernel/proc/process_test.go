package proc

import (
	"testing"
	"unsafe"

	"pios/kernel/driver/video/console"
	"pios/kernel/hal"
	"pios/kernel/trap"
)

// attachMockConsole gives early.Printf, which Reflect uses for its log line,
// an in-memory console to write into.
func attachMockConsole() {
	fb := make([]byte, 160*25)
	cons := &console.Ega{}
	cons.Init(80, 25, uintptr(unsafe.Pointer(&fb[0])))
	hal.ActiveTerminal.AttachTo(cons)
}

func TestReflectWalksToParent(t *testing.T) {
	attachMockConsole()
	grandparent := &Process{}
	parent := &Process{Parent: grandparent}
	child := &Process{Parent: parent}

	if !child.Reflect(&trap.Frame{Vector: trap.PageFault}, &trap.Regs{}) {
		t.Fatal("expected reflection to succeed when a parent chain exists")
	}
}

func TestReflectFailsWithNoParent(t *testing.T) {
	attachMockConsole()
	p := &Process{}
	if p.Reflect(&trap.Frame{Vector: trap.PageFault}, &trap.Regs{}) {
		t.Fatal("expected reflection to fail with no parent")
	}
}

func TestSetCurrentWiresDispatchSeams(t *testing.T) {
	defer func(orig func(uintptr)) { switchPDTFn = orig }(switchPDTFn)
	var switchedTo uintptr
	switchPDTFn = func(addr uintptr) { switchedTo = addr }

	defer SetCurrent(nil)

	p := &Process{}
	SetCurrent(p)

	got, ok := Current()
	if !ok || got != p {
		t.Fatal("expected Current to return the process set via SetCurrent")
	}
	if switchedTo != p.PDir.Frame().Address() {
		t.Fatal("expected SetCurrent to load the process's page directory into CR3")
	}
}
