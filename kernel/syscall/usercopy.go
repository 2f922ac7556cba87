// Package syscall implements the C7 syscall shim: copying data between the
// kernel and a user address space without trusting the user pointer, and
// decoding the fixed PIOS-style command/flag wire format user code uses to
// request a kernel service.
package syscall

import (
	"unsafe"

	"pios/kernel"
	"pios/kernel/mem"
	"pios/kernel/mem/pmm"
	"pios/kernel/mem/vmm"
	"pios/kernel/trap"
)

// ErrFault is returned by UserCopy when the user range isn't mapped, is
// mapped without the nominal permission the requested direction needs
// (spec.md §3's SysRead/SysWrite bits, independent of the hardware bit COW
// manipulates), or a trap recoverable only by aborting the copy was taken
// while it was in flight.
var ErrFault = &kernel.Error{Module: "syscall", Message: "fault copying to/from user memory"}

// framePageBytesFn views a physical frame as a page-sized byte slice.
// Indirected so tests can substitute ordinary Go-heap-backed storage; in
// production it casts the frame's identity-mapped physical address.
var framePageBytesFn = func(f pmm.Frame) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(f.Address())), int(mem.PageSize))
}

// lookupFn and resolveFaultFn indirect the two vmm calls UserCopy makes per
// page, the same seam pattern vmm itself uses for cpu/pmm, so this package's
// tests don't need a real, hardware-addressed page directory.
var (
	lookupFn       = vmm.Lookup
	resolveFaultFn = vmm.ResolveFault
)

// UserCopy copies size bytes between a kernel buffer and user virtual
// address uv inside pd (spec.md §4.9's C7). toUser selects the direction:
// true copies kernelBuf into user memory (requires SysWrite on every page
// touched), false copies user memory into kernelBuf (requires SysRead).
//
// UserCopy follows spec §4.9's four-step shape: it validates that every
// page of the range carries the permission the requested direction needs,
// arms the current CPU's recovery hook (trap.ArmRecovery) before touching a
// single byte, copies, and disarms the hook (trap.DisarmRecovery) again
// before returning. A write that lands on a page still hardware-read-only
// due to copy-on-write sharing is resolved in place via vmm.ResolveFault,
// the same recovery a genuine CPU fault on that address would trigger, and
// never reaches the armed hook. Any trap the armed hook does end up
// consuming while the copy is in flight (spec.md §4.2 step 2, ahead of IRQ
// routing, syscalls, and user-fault reflection) is recorded on the
// recovery point's Vector field; UserCopy checks it after every page and
// aborts with ErrFault instead of reflecting the fault to user-mode or
// letting it reach a kernel panic.
//
// UserCopy is not transactional: a fault partway through a multi-page range
// leaves the pages already copied in their new state.
func UserCopy(pd vmm.PageDirectory, uv uintptr, kernelBuf []byte, toUser bool) *kernel.Error {
	size := uintptr(len(kernelBuf))
	if size == 0 {
		return nil
	}

	start := uv &^ (uintptr(mem.PageSize) - 1)
	end := uv + size
	if err := validateRange(pd, start, end, toUser); err != nil {
		return err
	}

	rp := &trap.RecoveryPoint{}
	trap.ArmRecovery(rp)
	defer trap.DisarmRecovery()

	for page := start; page < end; page += uintptr(mem.PageSize) {
		if err := copyPage(pd, page, uv, end, kernelBuf, toUser); err != nil {
			return err
		}
		if rp.Vector != 0 {
			return ErrFault
		}
	}
	return nil
}

// validateRange confirms every page in [start, end) is mapped with the
// nominal permission toUser's direction requires (spec.md §4.9 step 1),
// before the recovery hook is armed and any byte is touched.
func validateRange(pd vmm.PageDirectory, start, end uintptr, toUser bool) *kernel.Error {
	for page := start; page < end; page += uintptr(mem.PageSize) {
		_, perm, ok := lookupFn(pd, page)
		if !ok {
			return ErrFault
		}
		if toUser && perm&vmm.SysWrite == 0 {
			return ErrFault
		}
		if !toUser && perm&vmm.SysRead == 0 {
			return ErrFault
		}
	}
	return nil
}

// copyPage copies the portion of kernelBuf that overlaps the single page
// starting at pageAddr.
func copyPage(pd vmm.PageDirectory, pageAddr, uv, end uintptr, kernelBuf []byte, toUser bool) *kernel.Error {
	lo := pageAddr
	if lo < uv {
		lo = uv
	}
	hi := pageAddr + uintptr(mem.PageSize)
	if hi > end {
		hi = end
	}
	if lo >= hi {
		return nil
	}

	if toUser {
		if err := resolveFaultFn(pd, pageAddr); err != nil {
			return ErrFault
		}
	}

	frame, _, ok := lookupFn(pd, pageAddr)
	if !ok {
		return ErrFault
	}
	frameBytes := framePageBytesFn(frame)

	bufOff := lo - uv
	pageOff := lo - pageAddr
	n := hi - lo

	if toUser {
		copy(frameBytes[pageOff:pageOff+n], kernelBuf[bufOff:bufOff+n])
	} else {
		copy(kernelBuf[bufOff:bufOff+n], frameBytes[pageOff:pageOff+n])
	}
	return nil
}
