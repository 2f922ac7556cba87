package trap

// Vector identifies one of the 256 entries of the trap/interrupt gate table
// (spec.md §3's "Trap table"): the first 32 are CPU-defined exceptions, the
// next 16 are the (PIC-remapped) hardware IRQ lines, and SyscallVector is
// the software-interrupt gate user code traps into deliberately.
type Vector = uint8

const (
	// DivideByZero occurs when dividing any number by 0 using the DIV or
	// IDIV instruction.
	DivideByZero Vector = 0

	// Breakpoint occurs when the CPU executes an INT3 instruction.
	Breakpoint Vector = 3

	// Overflow occurs when the CPU executes an INTO instruction with the
	// overflow flag set.
	Overflow Vector = 4

	// BoundRange occurs when a BOUND instruction's index operand falls
	// outside the bounds it was checked against.
	BoundRange Vector = 5

	// InvalidOpcode occurs when the CPU attempts to execute an invalid or
	// undefined instruction opcode.
	InvalidOpcode Vector = 6

	// DoubleFault occurs when an unhandled exception occurs or when an
	// exception occurs within a running exception handler.
	DoubleFault Vector = 8

	// GPFException occurs when a general protection fault occurs.
	GPFException Vector = 13

	// PageFault occurs when a page directory/table entry is not present
	// or a privilege/RW protection check fails (spec.md §4.2 step 1).
	PageFault Vector = 14

	// irqBase is the vector the boot code remaps IRQ0 to once the PIC's
	// default (conflicting with CPU exceptions 0-15) is reprogrammed.
	irqBase Vector = 32

	// irqCount is the number of usable hardware interrupt lines.
	irqCount = 16

	// SyscallVector is the software-interrupt gate user code traps into
	// to request a kernel service (spec.md §4.2 step 4, §7's C7).
	SyscallVector Vector = 0x80
)

// NumVectors is the size of the gate table.
const NumVectors = 256

// Handler processes a trap once it has been routed to it. Returning lets the
// interrupted context resume (possibly mutated, for the page-fault/syscall
// cases); a handler that cannot make progress calls kernel.Panic itself.
type Handler func(*Frame, *Regs)

// gateDPL records the privilege level (0 or 3) a gate was installed with: a
// DPL-3 gate (Breakpoint, Overflow and SyscallVector) lets ring-3 code
// trigger it directly via INT3/INTO/INT; every other gate stays DPL-0 and a ring-3 attempt to
// invoke it takes a GPFException instead (spec.md §3's gate DPL field).
type gateDPL uint8

const (
	dplKernel gateDPL = 0
	dplUser   gateDPL = 3
)

var (
	handlers [NumVectors]Handler
	dpls     [NumVectors]gateDPL
)

// HandleTrap installs h as the handler for a CPU exception or the syscall
// gate. dpl must be dplKernel for every vector except Breakpoint, Overflow
// and SyscallVector.
func HandleTrap(v Vector, dpl gateDPL, h Handler) {
	handlers[v] = h
	dpls[v] = dpl
}

// HandleIRQ installs h as the handler for hardware IRQ line irqLine (0-15).
func HandleIRQ(irqLine uint8, h Handler) {
	handlers[irqBase+Vector(irqLine)] = h
	dpls[irqBase+Vector(irqLine)] = dplKernel
}

// IsIRQ reports whether v falls in the hardware-interrupt range.
func IsIRQ(v Vector) bool {
	return v >= irqBase && v < irqBase+irqCount
}

// installIDT populates the CPU's interrupt descriptor table from the
// handlers/dpls arrays and loads it. Implemented in assembly per platform;
// declared here, like the teacher's own installIDT, so Go code never needs
// to reason about the raw gate descriptor encoding.
func installIDT()

// Init marks the Breakpoint, Overflow and SyscallVector gates user-callable
// and installs the gate table. It must run once, before interrupts are
// enabled.
func Init() {
	dpls[Breakpoint] = dplUser
	dpls[Overflow] = dplUser
	dpls[SyscallVector] = dplUser
	installIDT()
}
