package vmm

import (
	"pios/kernel"
	"pios/kernel/mem/pmm"
)

// ErrSysWriteDenied is returned by ResolveFault when the nominal SysWrite
// bit was never granted for the faulting page, meaning the fault is a real
// user-fault rather than a copy-on-write one (spec.md §4.6's C6a).
var ErrSysWriteDenied = &kernel.Error{Module: "vmm", Message: "write fault on a page without SysWrite permission"}

// ResolveFault handles a write page-fault at virtual address v inside pd.
// If the page carries the nominal SysWrite bit but its hardware write bit
// was cleared for copy-on-write sharing, it makes the page writable and
// returns nil: a frame still shared with another mapping is replaced by a
// private copy, while a sole owner keeps its frame and only regains the
// hardware write bit. A SysWrite page whose hardware write bit is already set
// is left unchanged and also returns nil. Any other case (no mapping,
// or SysWrite not granted) is a genuine user-fault and is reported back to
// the trap dispatcher (spec.md §4.2's page-fault step, §4.6).
func ResolveFault(pd PageDirectory, v uintptr) *kernel.Error {
	pte := walk(pd, v, false)
	if pte == nil || pte.isZero() {
		return ErrSysWriteDenied
	}
	if !pte.HasFlags(SysWrite) {
		return ErrSysWriteDenied
	}
	if pte.HasFlags(FlagRW) {
		// Hardware already permits the write; this wasn't a COW fault.
		return nil
	}

	oldFrame := pte.Frame()
	if pmm.Refcount(oldFrame) == 1 {
		// Sole owner: no other PTE can be observing this frame, so it is
		// safe to just flip the hardware bit back on in place. The nominal
		// SysWrite bookkeeping is no longer needed for this slot now that
		// the page is physically writable (spec.md §4.6).
		pte.ClearFlags(SysRW)
		pte.SetFlags(FlagRW)
		invalidateTLB(pd, v)
		return nil
	}

	newFrame, err := frameAllocFn()
	if err != nil {
		return err
	}
	copyFramePhys(newFrame, oldFrame)

	pmm.Decref(oldFrame)
	pmm.Incref(newFrame)
	pte.SetFrame(newFrame)
	pte.ClearFlags(SysRW)
	pte.SetFlags(FlagRW)

	invalidateTLB(pd, v)
	return nil
}

// copyFramePhys copies the full contents of frame src into frame dst, one
// machine word at a time, via the same wordsAtFn seam the merge engine uses.
func copyFramePhys(dst, src pmm.Frame) {
	dstWords := wordsAtFn(dst)
	srcWords := wordsAtFn(src)
	*dstWords = *srcWords
}
