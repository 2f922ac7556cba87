// Package allocator implements the physical frame allocator that the VM
// core treats as an external collaborator (spec.md §1, §6): AllocFrame and
// FreeFrame are the only two operations the rest of the kernel needs, and
// spec.md §5 assumes them to be internally synchronized.
package allocator

import (
	"pios/kernel"
	"pios/kernel/hal/multiboot"
	"pios/kernel/kfmt/early"
	"pios/kernel/mem"
	"pios/kernel/mem/pmm"
)

var (
	errBootAllocOutOfMemory = &kernel.Error{Module: "boot_mem_alloc", Message: "out of memory"}
)

// bootMemAllocator reserves frames from the bootloader-reported memory map
// in increasing address order and recycles freed frames from a LIFO free
// list, so repeated Alloc/Free of a single frame (spec.md §8 scenario 1)
// does not require re-scanning the memory map.
type bootMemAllocator struct {
	// allocCount tracks the total number of frames currently on loan.
	allocCount uint64

	// lastAllocFrame tracks the last frame index handed out by a scan of
	// the memory map (as opposed to a reused, freed frame).
	lastAllocFrame int64

	// freeList holds frames released via Free, most-recently-freed last.
	freeList []pmm.Frame
}

// EarlyAllocator is the single instance of the boot memory allocator used to
// bootstrap the kernel before a more advanced allocator (out of scope for
// this core) takes over.
var EarlyAllocator bootMemAllocator

// Init prepares the allocator, prints the system memory map, and wires
// FreeFrame into pmm so that pmm.Decref can reclaim frames whose refcount
// drops to zero.
func Init() {
	EarlyAllocator.lastAllocFrame = -1

	early.Printf("[boot_mem_alloc] system memory map:\n")
	var totalFree mem.Size
	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		early.Printf("\t[%10x - %10x], size: %10d, type: %s\n", region.PhysAddress, region.PhysAddress+region.Length, region.Length, region.Type.String())
		if region.Type == multiboot.MemAvailable {
			totalFree += mem.Size(region.Length)
		}
		return true
	})
	early.Printf("[boot_mem_alloc] free memory: %dKb\n", uint64(totalFree/mem.Kb))

	pmm.SetFreeFunc(freeFrame)
}

// AllocFrame reserves and returns the next available physical frame.
func AllocFrame() (pmm.Frame, *kernel.Error) {
	return EarlyAllocator.AllocFrame()
}

// FreeFrame returns a previously allocated frame to the free list.
func FreeFrame(f pmm.Frame) {
	freeFrame(f)
}

func freeFrame(f pmm.Frame) {
	EarlyAllocator.allocCount--
	EarlyAllocator.freeList = append(EarlyAllocator.freeList, f)
}

// AllocFrame reserves and returns the next available physical frame, either
// by popping the most recently freed frame or by scanning the bootloader
// memory map for the next unused frame past the high-water mark.
func (alloc *bootMemAllocator) AllocFrame() (pmm.Frame, *kernel.Error) {
	if n := len(alloc.freeList); n > 0 {
		f := alloc.freeList[n-1]
		alloc.freeList = alloc.freeList[:n-1]
		alloc.allocCount++
		return f, nil
	}

	var (
		foundPageIndex                           int64 = -1
		regionStartPageIndex, regionEndPageIndex int64
	)
	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		if region.Type != multiboot.MemAvailable {
			return true
		}

		// Align region start address to a page boundary and find the start
		// and end page indices for the region.
		regionStartPageIndex = int64(((mem.Size(region.PhysAddress) + (mem.PageSize - 1)) & ^(mem.PageSize - 1)) >> mem.PageShift)
		regionEndPageIndex = int64(((mem.Size(region.PhysAddress+region.Length) - (mem.PageSize - 1)) & ^(mem.PageSize - 1)) >> mem.PageShift)

		// Ignore already allocated regions.
		if alloc.lastAllocFrame >= regionEndPageIndex {
			return true
		}

		// The last allocated index either points to a previous region
		// (select the region start) or inside this region (select the
		// next available page in the current region).
		if alloc.lastAllocFrame < regionStartPageIndex {
			foundPageIndex = regionStartPageIndex
		} else {
			foundPageIndex = alloc.lastAllocFrame + 1
		}
		return false
	})

	if foundPageIndex == -1 {
		return pmm.InvalidFrame, errBootAllocOutOfMemory
	}

	alloc.allocCount++
	alloc.lastAllocFrame = foundPageIndex

	return pmm.Frame(foundPageIndex), nil
}
