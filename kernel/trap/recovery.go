package trap

// RecoveryPoint names where execution should resume if the kernel takes a
// fault while a risky operation (spec.md §7's usercopy, C7) is in flight,
// instead of being escalated all the way to a kernel panic.
type RecoveryPoint struct {
	ResumeEIP uint32
	ResumeESP uint32

	// Vector records which trap number was actually consumed by this
	// recovery point (spec.md §4.3(b): "recording the trap number into
	// caller-supplied data"). It is zero until a fault is actually
	// recovered through this point; callers read it back after resuming.
	Vector uint8
}

// recoveryPoint is the current CPU's armed recovery point, or nil. This core
// targets a single CPU (spec.md's SMP non-goal), so one slot is enough.
var recoveryPoint *RecoveryPoint

// ArmRecovery marks rp as the resume target for the next fault the current
// CPU takes. Exactly one recovery point can be armed at a time; arming a new
// one discards any previous, unconsumed one.
func ArmRecovery(rp *RecoveryPoint) {
	recoveryPoint = rp
}

// DisarmRecovery clears the armed recovery point once the risky operation
// it was guarding has completed successfully.
func DisarmRecovery() {
	recoveryPoint = nil
}

// tryRecover rewrites frame to resume at the armed recovery point and
// consumes it, reporting whether a point was armed at all (spec.md §4.2
// step 2's recovery-hook routing).
func tryRecover(frame *Frame) bool {
	rp := recoveryPoint
	if rp == nil {
		return false
	}
	recoveryPoint = nil
	rp.Vector = frame.Vector
	frame.EIP = rp.ResumeEIP
	frame.UserESP = rp.ResumeESP
	return true
}
