package trap

import (
	"pios/kernel"
	"pios/kernel/mem/vmm"
)

var (
	// activePDirFn resolves the page directory the faulting code was
	// running under. Wired by the proc package once a current process
	// exists; until then every page fault is treated as unresolvable.
	activePDirFn = func() (vmm.PageDirectory, bool) { return vmm.PageDirectory{}, false }

	// reflectFaultFn hands a user-mode fault back to its owning process
	// (spec.md §4.2 step 5). Wired by the proc package.
	reflectFaultFn = func(frame *Frame, regs *Regs) bool { return false }

	// resolveFaultFn is the COW resolver. Indirected so SelfTest can
	// observe/stub it without a real page directory.
	resolveFaultFn = vmm.ResolveFault

	// consoleLock is the kernel's console spinlock; Dispatch prints
	// nothing itself and only force-releases it before panicking, so a
	// fault taken while it was held never deadlocks the panic banner.
	consoleLock lock = noopLock{}
)

// lock is the minimal surface Dispatch needs from sync.Spinlock, kept as an
// interface so trap doesn't have to import kernel/sync just to call two
// methods, and so tests can swap in a fake.
type lock interface {
	Acquire()
	Release()
	Held() bool
}

// noopLock is used until SetConsoleLock wires the kernel's real spinlock.
type noopLock struct{}

func (noopLock) Acquire()   {}
func (noopLock) Release()   {}
func (noopLock) Held() bool { return false }

// SetActivePDirFn wires the lookup used to resolve the faulting page
// directory for COW resolution.
func SetActivePDirFn(fn func() (vmm.PageDirectory, bool)) {
	activePDirFn = fn
}

// SetReflectFaultFn wires user-fault reflection (spec.md §4.2 step 5).
func SetReflectFaultFn(fn func(frame *Frame, regs *Regs) bool) {
	reflectFaultFn = fn
}

// SetConsoleLock wires the real console spinlock so the panic path can
// force-release it.
func SetConsoleLock(l lock) {
	consoleLock = l
}

var panicFn = kernel.Panic

// Dispatch routes a trapped Frame/Regs pair through the fixed resolution
// order spec.md §4.2 specifies: page-fault COW resolution, the armed
// recovery hook, hardware IRQ handlers, the syscall gate, user-fault
// reflection, and finally kernel panic. Earlier steps that can resolve the
// fault return without falling through to the later ones.
func Dispatch(frame *Frame, regs *Regs) {
	// 1. Page-fault resolution (spec.md §4.2 step 1, §4.6's C6a).
	if frame.Vector == PageFault {
		if pd, ok := activePDirFn(); ok {
			if err := resolveFaultFn(pd, frame.FaultAddr); err == nil {
				return
			}
		}
	}

	// 2. Kernel-internal recovery hook (spec.md §4.2 step 2, §7's C7).
	if tryRecover(frame) {
		return
	}

	// 3. Hardware IRQs (spec.md §4.2 step 3).
	if IsIRQ(frame.Vector) {
		if h := handlers[frame.Vector]; h != nil {
			h(frame, regs)
			return
		}
	}

	// 4. Syscall gate (spec.md §4.2 step 4, §7's C7).
	if frame.Vector == SyscallVector {
		if h := handlers[frame.Vector]; h != nil {
			h(frame, regs)
			return
		}
	}

	// 5. Reflect an unresolved user-mode fault back to its process
	// (spec.md §4.2 step 5).
	if frame.FromUserMode() && reflectFaultFn(frame, regs) {
		return
	}

	// 6. Nothing claimed the trap: kernel panic (spec.md §4.2 step 6).
	if consoleLock.Held() {
		consoleLock.Release()
	}
	panicFn(&kernel.Error{Module: "trap", Message: "unhandled trap"})
}
