package vmm

import (
	"pios/kernel"
	"pios/kernel/kfmt/early"
	"pios/kernel/mem"
	"pios/kernel/mem/pmm"
)

// ErrMergeUnmapped is returned by Merge when one of the three page-aligned
// ranges contains a page that isn't mapped. Merge only operates on pages
// that have already gone through a COW Copy from the same reference
// snapshot (spec.md §4.7's C6b precondition).
var ErrMergeUnmapped = &kernel.Error{Module: "vmm", Message: "merge range contains an unmapped page"}

// Merge reconciles the page-aligned range [sv, sv+size) of spd and
// [dv, dv+size) of dpd against their common ancestor [rv, rv+size) in rpd,
// at word granularity (spec.md §4.7's C6b): a word left unchanged by one
// side takes the other side's value; a word changed by both sides the same
// way is left alone; a word changed differently by both sides (a genuine
// three-way conflict) drops the *entire* destination page rather than just
// the conflicting word, since there is no way to know which of the page's
// other already-merged words are still consistent with the change that lost.
//
// Merge writes its resolved words directly into dpd's frames without first
// forcing them private via a copy-on-write fault. If dpd is still sharing a
// frame with spd or rpd (the COW Copy that produced it was never actually
// written to), that write is visible through every other mapping of the
// same frame, including the source's. This mirrors the reference kernel's
// own merge behavior rather than smoothing it over: callers that need a
// strictly isolated destination must fault in a private copy (e.g. a dummy
// write) before merging into it.
//
// A page where every adopted word came from the source side (dest never
// diverged from the reference there) also has its source PTE's hardware
// write bit cleared (and its nominal SysWrite bit set) once the page is fully
// reconciled: adopting a page from
// the source is treated the same as the lazy-COW Copy path, so the source
// can't silently keep mutating a page that a merge has just folded into the
// destination without retaking a fault first (spec.md §9(b)).
func Merge(rpd PageDirectory, rv uintptr, spd PageDirectory, sv uintptr, dpd PageDirectory, dv uintptr, size uintptr) *kernel.Error {
	if !inUserWindow(rv) || !inUserWindow(rv+size-1) ||
		!inUserWindow(sv) || !inUserWindow(sv+size-1) ||
		!inUserWindow(dv) || !inUserWindow(dv+size-1) {
		return ErrInvalidAddress
	}
	if rv%uintptr(mem.PageSize) != 0 || sv%uintptr(mem.PageSize) != 0 || dv%uintptr(mem.PageSize) != 0 ||
		size%uintptr(mem.PageSize) != 0 {
		return ErrUnaligned
	}

	for off := uintptr(0); off < size; off += uintptr(mem.PageSize) {
		rpte := walk(rpd, rv+off, false)
		spte := walk(spd, sv+off, false)
		dpte := walk(dpd, dv+off, false)
		if rpte == nil || rpte.isZero() || spte == nil || spte.isZero() || dpte == nil || dpte.isZero() {
			return ErrMergeUnmapped
		}

		rWords := wordsAtFn(rpte.Frame())
		sWords := wordsAtFn(spte.Frame())
		dWords := wordsAtFn(dpte.Frame())

		adoptedFromSource := false
		conflict := false
		for i := 0; i < framePageWords; i++ {
			rw, sw, dw := rWords[i], sWords[i], dWords[i]
			switch {
			case sw == rw:
				// Source didn't touch this word; keep dest's value as-is
				// (whether or not dest changed it).
			case dw == rw:
				// Only source changed this word: take it.
				dWords[i] = sw
				adoptedFromSource = true
			case sw != dw:
				// Both changed it, disagreeing: a genuine conflict. The
				// whole page is dropped below; stop scanning it.
				early.Printf("vmm: merge conflict at page offset %d, word %d: ref=%8x src=%8x dst=%8x, dropping destination page\n", off, i, rw, sw, dw)
				conflict = true
			}
			if conflict {
				break
			}
		}

		if conflict {
			pmm.Decref(dpte.Frame())
			*dpte = pteZero()
			invalidateTLB(dpd, dv+off)
			continue
		}

		if adoptedFromSource && spte.HasFlags(FlagRW) {
			spte.ClearFlags(FlagRW)
			spte.SetFlags(SysWrite)
			invalidateTLB(spd, sv+off)
		}
	}

	return nil
}
