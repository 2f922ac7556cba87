package vmm

import (
	"pios/kernel"
	"pios/kernel/mem"
	"pios/kernel/mem/pmm"
)

// Insert installs frame at virtual address v inside pd with the given
// nominal permission bits, demand-allocating the backing page table if
// necessary (spec.md §4.5). Replacing an existing, different mapping decrefs
// the old frame; re-inserting the same frame at the same slot is a no-op on
// the refcount, since the slot was already counted.
func Insert(pd PageDirectory, frame pmm.Frame, v uintptr, nomPerm PageTableEntryFlag) *kernel.Error {
	if !inUserWindow(v) {
		return ErrInvalidAddress
	}
	if v%uintptr(mem.PageSize) != 0 {
		return ErrUnaligned
	}

	pte := walk(pd, v, true)
	if pte == nil {
		return ErrNoFrame
	}

	if !pte.isZero() {
		if old := pte.Frame(); old != frame {
			pmm.Decref(old)
			pmm.Incref(frame)
		}
	} else {
		pmm.Incref(frame)
	}

	hwFlags := FlagPresent | FlagUser | FlagAccessed
	if nomPerm&SysWrite != 0 {
		hwFlags |= FlagRW
	}
	*pte = newEntry(frame, hwFlags|(nomPerm&SysRW))

	invalidateTLB(pd, v)
	return nil
}

// Remove unmaps the page-aligned range [v, v+size) from pd, decrefing every
// frame it held (spec.md §4.5). Ranges that exactly span one or more whole
// page tables collapse and free those tables outright rather than clearing
// them entry by entry, matching spec.md §8's large-region-remove scenario.
//
// A range spanning more than a single page is invalidated as a whole (spec.md
// §4.8: "a whole-range TLB invalidation of the affected directory") by
// reloading CR3 once after every entry has been cleared, rather than paying
// for a single-page invalidate per entry; a one-page range still only flushes
// that one translation.
func Remove(pd PageDirectory, v uintptr, size uintptr) *kernel.Error {
	if !inUserWindow(v) || !inUserWindow(v+size-1) {
		return ErrInvalidAddress
	}
	if v%uintptr(mem.PageSize) != 0 || size%uintptr(mem.PageSize) != 0 {
		return ErrUnaligned
	}

	end := v + size
	dir := pd.dirTable()
	bulk := size > uintptr(mem.PageSize)

	for cur := v; cur < end; {
		if cur%uintptr(mem.PTSize) == 0 && end-cur >= uintptr(mem.PTSize) {
			pde := &dir[pdx(cur)]
			if !pde.isZero() {
				FreePTab(pde.Frame())
				*pde = pteZero()
			}
			cur += uintptr(mem.PTSize)
			continue
		}

		pte := walk(pd, cur, false)
		if pte != nil && !pte.isZero() {
			pmm.Decref(pte.Frame())
			*pte = pteZero()
			if !bulk {
				invalidateTLB(pd, cur)
			}
		}
		cur += uintptr(mem.PageSize)
	}

	if bulk {
		invalidateTLBRange(pd)
	}

	return nil
}

// SetPerm updates the nominal permission bits of every present page in
// [v, v+size) (spec.md §4.5). The hardware write bit is derived from the new
// nominal permission and the frame's current refcount rather than copied
// verbatim: a shared frame (refcount > 1, i.e. still COW-linked) keeps
// hardware writes disabled regardless of the nominal grant, so the next
// write still takes the copy-on-write fault that gives it a private copy.
func SetPerm(pd PageDirectory, v uintptr, size uintptr, nomPerm PageTableEntryFlag) *kernel.Error {
	if !inUserWindow(v) || !inUserWindow(v+size-1) {
		return ErrInvalidAddress
	}
	if v%uintptr(mem.PageSize) != 0 || size%uintptr(mem.PageSize) != 0 {
		return ErrUnaligned
	}

	end := v + size
	for cur := v; cur < end; cur += uintptr(mem.PageSize) {
		pte := walk(pd, cur, false)
		if pte == nil || pte.isZero() {
			continue
		}

		pte.ClearFlags(SysRW)
		pte.SetFlags(nomPerm & SysRW)

		if nomPerm&SysWrite != 0 && pmm.Refcount(pte.Frame()) == 1 {
			pte.SetFlags(FlagRW)
		} else {
			pte.ClearFlags(FlagRW)
		}

		invalidateTLB(pd, cur)
	}

	return nil
}
