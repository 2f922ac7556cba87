package vmm

import "pios/kernel/mem/pmm"

// walk locates the PTE that would translate v inside pd, demand-allocating
// the backing page table when create is true and the PDE is currently
// PTE_ZERO (spec.md §4.4's walk(pd, v, create) -> PTE*).
//
// The optional shared-read-only-table clone path some PIOS variants support
// is not implemented: this core never installs a PT frame with refcount > 1,
// so a present PDE always means a privately-owned table and walk can index
// straight into it.
func walk(pd PageDirectory, v uintptr, create bool) *pageTableEntry {
	if !inUserWindow(v) {
		return nil
	}

	dir := pd.dirTable()
	pde := &dir[pdx(v)]

	if pde.isZero() {
		if !create {
			return nil
		}

		f, err := frameAllocFn()
		if err != nil {
			return nil
		}
		clearTable(f)
		pmm.Incref(f)

		*pde = newEntry(f, FlagPresent|FlagRW|FlagUser|FlagAccessed)
	}

	pt := tableAtFn(pde.Frame())
	return &pt[ptx(v)]
}

// walkPTab returns the page table frame backing v's PDE, or the invalid
// frame if the PDE is PTE_ZERO.
func walkPTab(pd PageDirectory, v uintptr) (ptFrame pmm.Frame, ok bool) {
	dir := pd.dirTable()
	pde := dir[pdx(v)]
	if pde.isZero() {
		return pmm.InvalidFrame, false
	}
	return pde.Frame(), true
}
