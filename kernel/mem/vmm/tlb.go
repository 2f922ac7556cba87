package vmm

import "pios/kernel/cpu"

// activePDTFn and flushTLBEntryFn are indirections over the cpu package,
// following the same pattern the teacher uses to keep vmm unit-testable on
// a hosted Go toolchain that has no TLB to flush.
var (
	activePDTFn     = cpu.ActivePDT
	flushTLBEntryFn = cpu.FlushTLBEntry
	switchPDTFn     = cpu.SwitchPDT
)

// invalidateTLB evicts the translation for v if pd is the page directory
// currently loaded into CR3. A mutation to a page directory that isn't
// active right now can't be visible to the TLB yet, so there is nothing to
// flush (spec.md §4.8's TLB invalidation policy): the cost of a flush is
// paid only when it can actually matter.
func invalidateTLB(pd PageDirectory, v uintptr) {
	if activePDTFn() != pd.frame.Address() {
		return
	}
	flushTLBEntryFn(v)
}

// invalidateTLBRange evicts every translation a mutation to pd could have
// touched, by reloading CR3 with pd's own frame, when pd is the page
// directory currently loaded. x86 has no range-invalidate instruction, so a
// whole-range change (spec.md §4.8) is only safely flushed by a full,
// non-global reload rather than one flushTLBEntryFn call per page.
func invalidateTLBRange(pd PageDirectory) {
	if activePDTFn() != pd.frame.Address() {
		return
	}
	switchPDTFn(pd.frame.Address())
}
