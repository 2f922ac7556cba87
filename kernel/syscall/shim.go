package syscall

import (
	"unsafe"

	"pios/kernel"
	"pios/kernel/kfmt/early"
	"pios/kernel/mem/vmm"
	"pios/kernel/proc"
	"pios/kernel/trap"
)

// cputsMaxLen bounds how many bytes of a single CmdCputs string Handle will
// copy out of user memory in one call, so a bogus size field can't be used
// to pin the kernel copying an unbounded range.
const cputsMaxLen = 256

// Handle carries out a decoded request between caller and target (spec.md
// §6/§4.9's C7). CmdCputs copies a string out of the caller's memory and
// prints it, entirely independent of target. Every other command acts on
// target's page directory and register snapshot, guarded by target's lock:
// the memory-range flags (Copy/Zero/Perm/Merge) take effect before the
// register/start flags do, and FlagRegs moves target's register snapshot
// to or from the caller's memory depending on whether the request is a
// CmdPut or a CmdGet.
func Handle(req Request, caller, target *proc.Process) *kernel.Error {
	if req.Cmd == CmdCputs {
		return handleCputs(req, caller)
	}

	target.Lock.Acquire()
	defer target.Lock.Release()

	if req.Size > 0 {
		switch {
		case req.Flags&FlagZero != 0:
			if err := vmm.Remove(target.PDir, req.Addr, req.Size); err != nil {
				return err
			}
		case req.Flags&FlagMerge != 0:
			if err := vmm.Merge(target.RPDir, req.Addr, caller.PDir, req.Addr, target.PDir, req.Addr, req.Size); err != nil {
				return err
			}
		case req.Flags&FlagCopy != 0:
			if err := vmm.Copy(caller.PDir, req.Addr, target.PDir, req.Addr, req.Size); err != nil {
				return err
			}
		}

		if req.Flags&FlagPerm != 0 {
			perm := vmm.PageTableEntryFlag(0)
			if req.Flags&FlagRead != 0 {
				perm |= vmm.SysRead
			}
			if req.Flags&FlagWrite != 0 {
				perm |= vmm.SysWrite
			}
			if err := vmm.SetPerm(target.PDir, req.Addr, req.Size, perm); err != nil {
				return err
			}
		}

		if req.Flags&FlagSnap != 0 {
			if err := vmm.Copy(target.PDir, req.Addr, target.RPDir, req.Addr, req.Size); err != nil {
				return err
			}
		}
	}

	if req.Flags&FlagRegs != 0 {
		if err := transferRegs(req, caller, target); err != nil {
			return err
		}
	}

	if req.Flags&FlagStart != 0 {
		proc.SetCurrent(target)
	}

	return nil
}

// handleCputs copies up to cputsMaxLen bytes of req's string out of caller's
// memory via UserCopy and writes them to the console (spec.md §6's CPUTS).
func handleCputs(req Request, caller *proc.Process) *kernel.Error {
	caller.Lock.Acquire()
	defer caller.Lock.Release()

	n := req.Size
	if n > cputsMaxLen {
		n = cputsMaxLen
	}

	var buf [cputsMaxLen]byte
	if err := UserCopy(caller.PDir, req.Addr, buf[:n], false); err != nil {
		return err
	}

	early.Printf("%s", buf[:n])
	return nil
}

// regsBytes views r's fields as a byte slice, the same frame-as-bytes trick
// UserCopy's framePageBytesFn uses, so the register snapshot can be handed
// straight to UserCopy without a field-by-field marshal step.
func regsBytes(r *trap.Regs) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(r)), int(unsafe.Sizeof(*r)))
}

// transferRegs moves target's saved register snapshot to or from the
// caller's memory at req.Addr via UserCopy (spec.md §4.9's register-block
// transfer): a CmdPut request copies the caller's bytes into target.Regs, a
// CmdGet request copies target.Regs out to the caller.
func transferRegs(req Request, caller, target *proc.Process) *kernel.Error {
	switch req.Cmd {
	case CmdPut:
		var r trap.Regs
		if err := UserCopy(caller.PDir, req.Addr, regsBytes(&r), false); err != nil {
			return err
		}
		target.Regs = r
	case CmdGet:
		r := target.Regs
		if err := UserCopy(caller.PDir, req.Addr, regsBytes(&r), true); err != nil {
			return err
		}
	}
	return nil
}
