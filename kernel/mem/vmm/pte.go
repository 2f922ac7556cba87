package vmm

import (
	"pios/kernel/mem"
	"pios/kernel/mem/pmm"
)

// PageTableEntryFlag describes a flag that can be applied to a page
// directory or page table entry.
type PageTableEntryFlag uintptr

// Hardware-interpreted flags (spec.md §3's "Page-table entry (PTE)").
const (
	// FlagPresent (P) marks the entry as backed by a present frame.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW (W) is the hardware-enforced writable bit. It may be
	// temporarily clear on a logically-writable (SysWrite) entry to
	// force a copy-on-write fault.
	FlagRW

	// FlagUser (U) marks the page as user-accessible.
	FlagUser

	_ // PWT: write-through caching, unused by this core

	_ // PCD: cache-disable, unused by this core

	// FlagAccessed (A) is set by the CPU on first access.
	FlagAccessed

	_ // Dirty, unused by this core

	// FlagHugePage (PS) marks a PDE as a 4 MiB large-page mapping. Only
	// ever used for the kernel's identity-mapped range.
	FlagHugePage

	// FlagGlobal (G) prevents the TLB from flushing this translation on
	// a CR3 reload. Used only for the kernel's identity map.
	FlagGlobal

	// SysRead and SysWrite are the nominal permission bits spec.md §3
	// describes: what the owning process was granted, independent of
	// the hardware FlagRW which COW may clear. They live in the
	// otherwise-unused AVL bits (9-10) of the x86 PTE format.
	SysRead
	SysWrite
)

// SysRW is the combination of both nominal permission bits.
const SysRW = SysRead | SysWrite

// pageTableEntry is a raw PDE/PTE word: a frame address in the high bits
// plus the flag bits above in the low bits.
type pageTableEntry uintptr

// pteFrameMask extracts the physical frame number from an entry; the low
// PageShift bits are reserved for flags.
const pteFrameMask = ^uintptr(mem.PageSize - 1)

// HasFlags returns true if this entry has all the input flags set.
func (pte pageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return (uintptr(pte) & uintptr(flags)) == uintptr(flags)
}

// HasAnyFlag returns true if this entry has at least one of the input flags set.
func (pte pageTableEntry) HasAnyFlag(flags PageTableEntryFlag) bool {
	return (uintptr(pte) & uintptr(flags)) != 0
}

// SetFlags sets the input list of flags on the entry.
func (pte *pageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = pageTableEntry(uintptr(*pte) | uintptr(flags))
}

// ClearFlags clears the input list of flags on the entry.
func (pte *pageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	*pte = pageTableEntry(uintptr(*pte) &^ uintptr(flags))
}

// Frame returns the physical frame this entry points to.
func (pte pageTableEntry) Frame() pmm.Frame {
	return pmm.Frame((uintptr(pte) & pteFrameMask) >> mem.PageShift)
}

// SetFrame updates the entry to point at the given frame, leaving its flags
// untouched.
func (pte *pageTableEntry) SetFrame(f pmm.Frame) {
	*pte = pageTableEntry((uintptr(*pte) &^ pteFrameMask) | f.Address())
}

// newEntry builds an entry from scratch: frame address, hardware flags and
// nominal flags combined, with FlagPresent implied by the caller.
func newEntry(f pmm.Frame, flags PageTableEntryFlag) pageTableEntry {
	return pageTableEntry(f.Address()) | pageTableEntry(flags)
}

// pteZero returns the canonical PTE_ZERO sentinel: the address of the
// shared zero frame with FlagPresent clear. Comparing an entry against this
// value (rather than just checking FlagPresent) is what spec.md §3 means by
// "this slot is conceptually empty".
func pteZero() pageTableEntry {
	return pageTableEntry(pmm.Zero.Address())
}

// isZero reports whether pte is the PTE_ZERO sentinel.
func (pte pageTableEntry) isZero() bool {
	return pte == pteZero()
}
