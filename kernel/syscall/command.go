package syscall

import "pios/kernel"

// Command identifies the requested kernel service (spec.md §6's
// CPUTS/PUT/GET/RET).
type Command uint8

const (
	// CmdCputs writes a string from user memory to the console.
	CmdCputs Command = iota

	// CmdPut transfers the caller's register snapshot and/or memory
	// range into a child process, optionally starting it.
	CmdPut

	// CmdGet transfers a child's register snapshot back into the caller's
	// memory. Its memory-range flags act in the same direction as
	// CmdPut's: from the caller's range into the child's.
	CmdGet

	// CmdRet returns control (and, implicitly, exit status) to the
	// caller's parent.
	CmdRet
)

// Flag is a bitmask selecting which parts of a PUT/GET request apply and
// how its memory range is interpreted (spec.md §6).
type Flag uint32

const (
	// FlagRegs transfers the register snapshot.
	FlagRegs Flag = 1 << iota

	// FlagCopy copies the memory range (lazy COW, vmm.Copy).
	FlagCopy

	// FlagZero zero-fills the memory range instead of copying it.
	FlagZero

	// FlagPerm applies the request's nominal permission bits to the
	// range without changing its contents.
	FlagPerm

	// FlagMerge three-way merges the range against a reference
	// snapshot (vmm.Merge) instead of overwriting it.
	FlagMerge

	// FlagSnap also saves the post-operation state of the range as the
	// new reference snapshot for a future FlagMerge.
	FlagSnap

	// FlagStart additionally starts (or resumes) the target process.
	FlagStart
)

// Read and Write select the nominal permissions (vmm.SysRead and
// vmm.SysWrite) that FlagPerm applies to the range (spec.md §6).
const (
	FlagRead  Flag = 1 << 16
	FlagWrite Flag = 1 << 17
)

// ErrUnknownCommand is returned by Decode for a command byte outside the
// four defined commands.
var ErrUnknownCommand = &kernel.Error{Module: "syscall", Message: "unknown command"}

// Request is a decoded PUT/GET request: which node/process to target, and
// which combination of flags applies to this call.
type Request struct {
	Cmd    Command
	Flags  Flag
	Target int
	Addr   uintptr
	Size   uintptr
}

// Decode parses the fixed-width wire format a SyscallVector trap delivers
// in its registers (spec.md §6): EBX carries the command byte in its low 8
// bits and the flag word in the remaining 24 (shifted left 8), ECX the
// target process/node id, EDX the range's base address, ESI the range's
// size.
func Decode(ebx, ecx, edx, esi uint32) (Request, *kernel.Error) {
	cmd := Command(ebx & 0xff)
	if cmd > CmdRet {
		return Request{}, ErrUnknownCommand
	}

	return Request{
		Cmd:    cmd,
		Flags:  Flag(ebx >> 8),
		Target: int(ecx),
		Addr:   uintptr(edx),
		Size:   uintptr(esi),
	}, nil
}
