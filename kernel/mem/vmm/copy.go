package vmm

import (
	"pios/kernel"
	"pios/kernel/mem"
	"pios/kernel/mem/pmm"
)

// Copy lazily duplicates the page-aligned range [sv, sv+size) of spd into
// [dv, dv+size) of dpd (spec.md §4.7's C6b). Rather than allocating and
// copying frame contents up front, both directories are made to share the
// same physical frames with their hardware write bit cleared; the first
// write to either side takes a copy-on-write fault and is resolved by
// ResolveFault. A source page that is currently unmapped unmaps the
// corresponding destination page too, so reads on both sides keep observing
// zero.
//
// Copy is not transactional: if frame allocation fails partway through, the
// pages already copied remain copied (spec.md's Open Question on partial
// failure is resolved in favor of matching the underlying Insert/Remove
// primitives, which share the same behavior).
func Copy(spd PageDirectory, sv uintptr, dpd PageDirectory, dv uintptr, size uintptr) *kernel.Error {
	if !inUserWindow(sv) || !inUserWindow(sv+size-1) {
		return ErrInvalidAddress
	}
	if !inUserWindow(dv) || !inUserWindow(dv+size-1) {
		return ErrInvalidAddress
	}
	if sv%uintptr(mem.PageSize) != 0 || dv%uintptr(mem.PageSize) != 0 || size%uintptr(mem.PageSize) != 0 {
		return ErrUnaligned
	}

	for off := uintptr(0); off < size; off += uintptr(mem.PageSize) {
		spte := walk(spd, sv+off, false)
		if spte == nil || spte.isZero() {
			dpte := walk(dpd, dv+off, false)
			if dpte != nil && !dpte.isZero() {
				pmm.Decref(dpte.Frame())
				*dpte = pteZero()
				invalidateTLB(dpd, dv+off)
			}
			continue
		}

		frame := spte.Frame()
		if spte.HasFlags(FlagRW) {
			spte.SetFlags(SysWrite)
		}
		nomPerm := *spte & pageTableEntry(SysRW)

		spte.ClearFlags(FlagRW)
		invalidateTLB(spd, sv+off)

		dpte := walk(dpd, dv+off, true)
		if dpte == nil {
			return ErrNoFrame
		}
		if !dpte.isZero() {
			if old := dpte.Frame(); old != frame {
				pmm.Decref(old)
				pmm.Incref(frame)
			}
		} else {
			pmm.Incref(frame)
		}

		*dpte = newEntry(frame, FlagPresent|FlagUser|FlagAccessed) | pageTableEntry(nomPerm)
		invalidateTLB(dpd, dv+off)
	}

	return nil
}
