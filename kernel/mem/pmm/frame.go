// Package pmm manages physical memory frame allocation and reference
// counting. The core (kernel/mem/vmm) treats this package as an external
// collaborator: it calls Incref/Decref/Refcount and trusts the refcount
// bookkeeping described in spec.md §3 and §8 to be internally consistent
// and already synchronized (spec.md §5).
package pmm

import (
	"math"

	"pios/kernel"
	"pios/kernel/mem"
)

// Frame describes a physical memory page index.
type Frame uint64

// InvalidFrame is returned by page allocators when they fail to reserve the
// requested frame.
const InvalidFrame = Frame(math.MaxUint64)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns a pointer to the physical memory address pointed to by this Frame.
func (f Frame) Address() uintptr {
	return uintptr(f << mem.PageShift)
}

var refcount = make(map[Frame]uint32)

// Zero is the distinguished, always-zero-filled frame shared by every empty
// or not-yet-allocated mapping (spec.md §3's "ZERO" frame). It is reserved
// once by Init and is never returned by Alloc and never freed.
var Zero Frame

// freeFn is registered by the allocator package via SetFreeFunc. pmm only
// owns refcount bookkeeping; reclaiming a frame back to the free list is the
// allocator's job, so the two packages are wired through a function
// variable rather than an import (which would cycle, since the allocator
// needs pmm.Frame).
var freeFn func(Frame)

// SetFreeFunc registers the allocator's frame-reclaim function. Called once
// during allocator.Init.
func SetFreeFunc(fn func(Frame)) {
	freeFn = fn
}

// Init reserves the shared Zero frame. It must be called once, on the boot
// CPU, before any page directory is created.
func Init(allocFn func() (Frame, *kernel.Error)) *kernel.Error {
	f, err := allocFn()
	if err != nil {
		return err
	}
	Zero = f
	refcount[Zero] = 1
	return nil
}

// Refcount returns the number of distinct PDE/PTE slots across all live page
// directories that currently reference frame f.
func Refcount(f Frame) uint32 {
	return refcount[f]
}

// Incref increments the reference count of frame f. Per spec.md §5's
// ordering guarantees, callers must incref a frame before installing a PTE
// that can make the new mapping observable.
func Incref(f Frame) {
	refcount[f]++
}

// Decref decrements the reference count of frame f and frees it back to the
// allocator once it reaches zero. Decref on the Zero frame is a no-op: Zero
// is a sink with no owner and is never freed (spec.md §9).
func Decref(f Frame) {
	if f == Zero {
		return
	}
	if refcount[f] == 0 {
		return
	}
	refcount[f]--
	if refcount[f] == 0 {
		delete(refcount, f)
		freeFn(f)
	}
}
