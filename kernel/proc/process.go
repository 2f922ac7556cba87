// Package proc provides the minimal process record spec.md's trap
// dispatcher and syscall shim need a collaborator for: a page directory
// pair, the lock serializing access to it, and the parent link user-fault
// reflection walks. Scheduling, migration mechanics, and node placement are
// explicitly out of scope (spec.md's Non-goals), so Migrate is a logging
// stub rather than a real implementation.
package proc

import (
	"pios/kernel/cpu"
	"pios/kernel/kfmt/early"
	"pios/kernel/mem/vmm"
	"pios/kernel/sync"
	"pios/kernel/trap"
)

// switchPDTFn loads a page directory's frame into CR3. Indirected so tests
// don't need a real CPU to exercise SetCurrent.
var switchPDTFn = cpu.SwitchPDT

// Process is the kernel's view of a user address space: its own page
// directory, a reference page directory used as the three-way merge
// ancestor (spec.md §3's "RPD"), the lock guarding mutation of PDir, and the
// parent this process reflects unresolved user faults to.
type Process struct {
	PDir  vmm.PageDirectory
	RPDir vmm.PageDirectory

	Lock sync.Spinlock

	Parent *Process

	// Regs is this process's saved register snapshot, the value a
	// FlagRegs PUT/GET request (spec.md §4.9/§6) transfers to or from a
	// caller's memory via the syscall shim's UserCopy.
	Regs trap.Regs

	// Node identifies which physical node (spec.md's NUMA non-goal) this
	// process's memory lives on. Always 0 in this core.
	Node int
}

// current is the process whose PDir is active on this CPU, or nil before
// any process has been scheduled.
var current *Process

// SetCurrent installs p as the active process and wires trap.Dispatch's
// page-fault and reflection seams to it. Passing nil clears both.
func SetCurrent(p *Process) {
	current = p
	if p == nil {
		trap.SetActivePDirFn(func() (vmm.PageDirectory, bool) { return vmm.PageDirectory{}, false })
		trap.SetReflectFaultFn(func(*trap.Frame, *trap.Regs) bool { return false })
		return
	}

	trap.SetActivePDirFn(func() (vmm.PageDirectory, bool) { return p.PDir, true })
	trap.SetReflectFaultFn(p.Reflect)
	switchPDTFn(p.PDir.Frame().Address())
}

// Current returns the process whose PDir is currently active, if any.
func Current() (*Process, bool) {
	if current == nil {
		return nil, false
	}
	return current, true
}

// Reflect hands an unresolved user-mode fault up to p's parent, the
// upcall-style recovery spec.md §4.2 step 5 describes: a process that can't
// service its own fault lets its parent decide (log and kill, retry after
// state migration, etc.) out-of-band, rather than the kernel prescribing a
// single policy or blocking the trap on the parent's decision. Reflect only
// reports whether there was a parent to hand the fault to; a process with
// no parent leaves the fault unhandled.
func (p *Process) Reflect(frame *trap.Frame, regs *trap.Regs) bool {
	if p.Parent == nil {
		early.Printf("proc: unhandled user fault, vector=%d, no parent to reflect to\n", frame.Vector)
		return false
	}
	early.Printf("proc: reflecting fault vector=%d to parent\n", frame.Vector)
	return true
}

// Migrate would move p's memory to a different physical node so a
// subsequent fault can be serviced locally. Node migration is out of scope
// for this core (spec.md's Non-goals): this stub only logs the request so
// callers written against the real scheduler still compile and run.
func (p *Process) Migrate(targetNode int) {
	early.Printf("proc: migrate requested (node %d -> %d), not implemented\n", p.Node, targetNode)
}
