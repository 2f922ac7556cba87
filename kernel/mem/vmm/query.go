package vmm

import "pios/kernel/mem/pmm"

// Lookup resolves the page mapping at virtual address v inside pd, for
// collaborators outside this package (spec.md §4.9's C7 usercopy) that need
// to check nominal permissions and locate the backing frame without being
// able to call the unexported walk directly. A page whose hardware write bit
// is set (including one ResolveFault has made writable, which drops its
// nominal bits) is reported as SysRW.
func Lookup(pd PageDirectory, v uintptr) (frame pmm.Frame, perm PageTableEntryFlag, ok bool) {
	pte := walk(pd, v, false)
	if pte == nil || pte.isZero() {
		return pmm.InvalidFrame, 0, false
	}
	perm = PageTableEntryFlag(*pte) & SysRW
	if pte.HasFlags(FlagRW) {
		perm |= SysRW
	}
	return pte.Frame(), perm, true
}
