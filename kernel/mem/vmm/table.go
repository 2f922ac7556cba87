package vmm

import (
	"unsafe"

	"pios/kernel/mem"
	"pios/kernel/mem/pmm"
)

// table is the in-memory view of a page directory or page table: 1024
// entries of one machine word each (spec.md §3's "array of 1024 PTEs").
type table [mem.EntriesPerTable]pageTableEntry

// tableAtFn maps a frame to the table it backs. In production the kernel's
// identity-mapped low range (spec.md §3's address-space invariants) means a
// frame's physical address is already a valid, directly-dereferenceable
// kernel pointer. Tests substitute a function that indexes into ordinary
// Go-heap-backed tables, the same seam the teacher uses for ptePtrFn and
// nextAddrFn.
var tableAtFn = func(f pmm.Frame) *table {
	return (*table)(unsafe.Pointer(f.Address()))
}

// clearTable resets every entry of the table backed by f to PTE_ZERO.
func clearTable(f pmm.Frame) {
	t := tableAtFn(f)
	z := pteZero()
	for i := range t {
		t[i] = z
	}
}

// wordSize is the width of the machine word the copy/merge engine operates
// on (spec.md §4.7's "word granularity"): 4 bytes on this 32-bit target.
const wordSize = int(unsafe.Sizeof(uintptr(0)))

// framePageWords is the number of words in a single physical frame.
const framePageWords = int(mem.PageSize) / wordSize

// wordsAtFn maps a frame to its contents, viewed as an array of machine
// words. Like tableAtFn, production casts the frame's physical (identity
// mapped) address directly; tests substitute Go-heap-backed storage.
var wordsAtFn = func(f pmm.Frame) *[framePageWords]uintptr {
	return (*[framePageWords]uintptr)(unsafe.Pointer(f.Address()))
}
