// Package goruntime contains code for bootstrapping Go runtime features such
// as the memory allocator.
package goruntime

import (
	"unsafe"

	"pios/kernel/mem"
	"pios/kernel/mem/pmm"
	"pios/kernel/mem/pmm/allocator"
)

// frameAllocFn is indirected so tests can substitute a bounded fake instead
// of the real boot allocator.
var frameAllocFn = allocator.AllocFrame

//go:linkname mSysStatInc runtime.mSysStatInc
func mSysStatInc(*uint64, uintptr)

// sysReserve reserves address space without allocating any memory.
//
// This kernel's low range is identity-mapped (spec.md §3's address-space
// invariants), so unlike a hosted OS there is no separate virtual-only
// reservation step: the frames backing a sysReserve'd region are allocated
// up front and handed back already usable. sysMap, called right after by
// the allocator, only has to acknowledge the accounting.
//
// This function replaces runtime.sysReserve and is required for initializing
// the Go allocator.
//
//go:redirect-from runtime.sysReserve
//go:nosplit
func sysReserve(_ unsafe.Pointer, size uintptr, reserved *bool) unsafe.Pointer {
	addr := allocRegion(size)
	if addr == nil {
		panic("goruntime: out of memory reserving heap region")
	}
	*reserved = true
	return addr
}

// sysMap acknowledges a region sysReserve already backed with real frames.
//
// This function replaces runtime.sysMap and is required for initializing
// the Go allocator.
//
//go:redirect-from runtime.sysMap
//go:nosplit
func sysMap(virtAddr unsafe.Pointer, size uintptr, reserved bool, sysStat *uint64) unsafe.Pointer {
	if !reserved {
		panic("sysMap should only be called with reserved=true")
	}

	mSysStatInc(sysStat, uintptr(size))
	return virtAddr
}

// sysAlloc reserves enough physical frames to satisfy the allocation request
// and returns their identity-mapped address.
//
// This function replaces runtime.sysAlloc and is required for initializing
// the Go allocator.
//
//go:redirect-from runtime.sysAlloc
//go:nosplit
func sysAlloc(size uintptr, sysStat *uint64) unsafe.Pointer {
	addr := allocRegion(size)
	if addr == nil {
		return unsafe.Pointer(uintptr(0))
	}

	mSysStatInc(sysStat, uintptr(size))
	return addr
}

// allocRegion allocates enough whole frames to cover size and returns the
// identity-mapped address of the first one. The boot allocator hands out
// frames in increasing physical order on a fresh scan (no intervening
// frees), so a run of consecutive frameAllocFn calls here yields a
// physically, and therefore identity-virtually, contiguous region.
func allocRegion(size uintptr) unsafe.Pointer {
	pageCount := (mem.Size(size) + mem.PageSize - 1) >> mem.PageShift

	var first pmm.Frame
	for i := mem.Size(0); i < pageCount; i++ {
		frame, err := frameAllocFn()
		if err != nil {
			return nil
		}
		if i == 0 {
			first = frame
		}
	}

	return unsafe.Pointer(first.Address())
}

func init() {
	// Dummy calls so the compiler does not optimize away the functions in
	// this file.
	var (
		reserved bool
		stat     uint64
		zeroPtr  = unsafe.Pointer(uintptr(0))
	)

	sysReserve(zeroPtr, 0, &reserved)
	sysMap(zeroPtr, 0, reserved, &stat)
	sysAlloc(0, &stat)
}
