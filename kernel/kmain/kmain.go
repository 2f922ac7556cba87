// Package kmain wires together every subsystem the kernel needs before it
// can schedule its first process: the early console, the boot-time physical
// frame allocator, the Go runtime's allocator hooks, the page-directory
// template, the trap table, and the root process.
package kmain

import (
	"pios/kernel"
	"pios/kernel/hal"
	"pios/kernel/hal/multiboot"
	"pios/kernel/mem"
	"pios/kernel/mem/pmm"
	"pios/kernel/mem/pmm/allocator"
	"pios/kernel/mem/vmm"
	"pios/kernel/proc"
	"pios/kernel/sync"
	"pios/kernel/trap"
)

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

	// errTrapSelfTestFailed is raised if trap.SelfTest reports any
	// failure; the individual failures are already logged by SelfTest.
	errTrapSelfTestFailed = &kernel.Error{Module: "kmain", Message: "trap self-test failed"}

	// consoleLock is the console spinlock handed to the trap dispatcher
	// (spec.md §4.2 step 6, §5), which force-releases it before a panic
	// if it is held. No code in this tree acquires it around
	// early.Printf calls.
	consoleLock sync.Spinlock
)

// Kmain is the only Go symbol that is visible (exported) from the rt0 initialization
// code. This function is invoked by the rt0 assembly code after setting up the GDT
// and setting up a a minimal g0 struct that allows Go code using the 4K stack
// allocated by the assembly code.
//
// The rt0 code passes the address of the multiboot info payload provided by the
// bootloader. kernelStart/kernelEnd are accepted for ABI compatibility with the
// rt0 trampoline but are otherwise unused: the boot frame allocator discovers
// usable memory from the bootloader's own memory map (spec.md §3, §8).
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)

	hal.InitTerminal()
	hal.ActiveTerminal.Clear()

	allocator.Init()
	trap.SetConsoleLock(&consoleLock)

	if err := pmm.Init(allocator.AllocFrame); err != nil {
		kernel.Panic(err)
	}
	vmm.SetFrameAllocator(allocator.AllocFrame)

	if err := vmm.InitBootDirectory(identityMapKernel); err != nil {
		kernel.Panic(err)
	}

	trap.Init()
	if report := trap.SelfTest(); !report.OK() {
		kernel.Panic(errTrapSelfTestFailed)
	}

	rootPDir, err := vmm.NewPDir()
	if err != nil {
		kernel.Panic(err)
	}
	rootRPDir, err := vmm.NewPDir()
	if err != nil {
		kernel.Panic(err)
	}
	proc.SetCurrent(&proc.Process{PDir: rootPDir, RPDir: rootRPDir})

	// Use kernel.Panic instead of panic to prevent the compiler from
	// treating kernel.Panic as dead-code and eliminating it.
	kernel.Panic(errKmainReturned)
}

// identityMapKernel builds the kernel's portion of every page directory
// (spec.md §3's address-space invariants): a 4 MiB-huge-page identity map
// covering every region the bootloader reported as available, up to the
// highest one's end address rounded up to a 4 MiB boundary.
func identityMapKernel(pd *vmm.PageDirectory) {
	var highestAddr uintptr
	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		if region.Type == multiboot.MemAvailable {
			if end := uintptr(region.PhysAddress + region.Length); end > highestAddr {
				highestAddr = end
			}
		}
		return true
	})

	const hugePageSize = uintptr(mem.PTSize)
	pdeCount := (highestAddr + hugePageSize - 1) / hugePageSize

	for i := uintptr(0); i < pdeCount && i < mem.EntriesPerTable; i++ {
		pd.SetHugePage(i, i*hugePageSize)
	}
}
