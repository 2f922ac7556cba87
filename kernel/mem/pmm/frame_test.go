package pmm

import (
	"testing"

	"pios/kernel/mem"
)

func TestFrameMethods(t *testing.T) {
	for frameIndex := uint64(0); frameIndex < 128; frameIndex++ {
		frame := Frame(frameIndex)

		if !frame.Valid() {
			t.Errorf("expected frame %d to be valid", frameIndex)
		}

		if exp, got := uintptr(frameIndex<<mem.PageShift), frame.Address(); got != exp {
			t.Errorf("expected frame (%d, index: %d) call to Address() to return %x; got %x", frame, frameIndex, exp, got)
		}
	}

	invalidFrame := InvalidFrame
	if invalidFrame.Valid() {
		t.Error("expected InvalidFrame.Valid() to return false")
	}
}

func TestRefcount(t *testing.T) {
	defer func(orig func(Frame)) { freeFn = orig }(freeFn)

	var freed []Frame
	freeFn = func(f Frame) { freed = append(freed, f) }

	f := Frame(42)
	if got := Refcount(f); got != 0 {
		t.Fatalf("expected fresh frame to have refcount 0; got %d", got)
	}

	Incref(f)
	Incref(f)
	if got := Refcount(f); got != 2 {
		t.Fatalf("expected refcount 2; got %d", got)
	}

	Decref(f)
	if len(freed) != 0 {
		t.Fatalf("expected frame to still be live after one decref")
	}

	Decref(f)
	if got := Refcount(f); got != 0 {
		t.Fatalf("expected refcount 0 after final decref; got %d", got)
	}
	if len(freed) != 1 || freed[0] != f {
		t.Fatalf("expected frame to be freed exactly once; got %v", freed)
	}
}

func TestRefcountZeroFrameNeverFreed(t *testing.T) {
	defer func(orig func(Frame)) { freeFn = orig }(freeFn)
	defer func(orig Frame) { Zero = orig }(Zero)

	called := false
	freeFn = func(Frame) { called = true }

	Zero = Frame(7)
	refcount[Zero] = 1

	Decref(Zero)
	Decref(Zero)

	if called {
		t.Fatal("expected Decref(Zero) to never invoke the allocator's free function")
	}
}
