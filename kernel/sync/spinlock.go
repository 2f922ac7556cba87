// Package sync provides synchronization primitives for code that runs
// before (or without) the Go scheduler: busy-wait spinlocks used to guard
// the console and, per spec.md §5, a process's page directory while a
// syscall mutates it.
package sync

import "sync/atomic"

var (
	// yieldFn is invoked between failed acquire attempts. It is a no-op
	// by default (there is no scheduler to yield to on bare metal) and is
	// swapped out by tests to avoid live-locking on a single-core test
	// runner.
	yieldFn func()
)

// Spinlock implements a lock where each task trying to acquire it busy-waits
// till the lock becomes available. Re-acquiring a lock already held by the
// current task deadlocks, matching spec.md §5's single-active-mutator model.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active task.
func (l *Spinlock) Acquire() {
	for !l.TryToAcquire() {
		if yieldFn != nil {
			yieldFn()
		}
	}
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock, allowing other tasks to acquire it.
// Calling Release while the lock is free has no effect, which is what lets
// the trap dispatcher call it unconditionally when recovering from a panic
// that may have been raised while the console lock was held (spec.md §4.2
// step 6, §5).
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// Held reports whether the lock is currently taken. The trap dispatcher's
// panic path uses it to decide whether to force a release.
func (l *Spinlock) Held() bool {
	return atomic.LoadUint32(&l.state) != 0
}
