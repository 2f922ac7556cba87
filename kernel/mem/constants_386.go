// +build 386

package mem

// PageShift is equal to log2(PageSize). This constant is used when we need
// to convert a physical address to a page number (shift right by PageShift)
// and vice-versa.
const PageShift = 12

// PageSize defines the system's page size in bytes (4 KiB on target, per
// spec.md's physical frame size P).
const PageSize = Size(1 << PageShift)

// PointerShift is equal to log2(unsafe.Sizeof(uintptr)) on the 32-bit target.
const PointerShift = 2

const (
	// PDXShift is the bit offset of the 10-bit page-directory index within
	// a virtual address.
	PDXShift = 22

	// PTXShift is the bit offset of the 10-bit page-table index within a
	// virtual address.
	PTXShift = 12

	// EntriesPerTable is the number of PDEs in a page directory and the
	// number of PTEs in a page table (both are 1024 on the two-level,
	// 4 KiB-page x86 layout spec.md §3 describes).
	EntriesPerTable = 1024

	// PTSize is the size of virtual address space mapped by a single page
	// table: PageSize * EntriesPerTable, i.e. 4 MiB.
	PTSize = PageSize * EntriesPerTable

	// VMUserLo is the inclusive low bound of the user address window.
	// Chosen 4 MiB-aligned, as spec.md §3's address-space invariants
	// require every user-range PDE boundary to fall on a PTSize edge.
	VMUserLo = uintptr(0x00400000)

	// VMUserHi is the exclusive high bound of the user address window,
	// also PTSize-aligned.
	VMUserHi = uintptr(0xb0000000)
)
