package vm

import "time"

// CPU is a virtual processor's register file plus the bookkeeping needed
// to bind/unbind it from a running process (spec.md §3/§4.6).
type CPU struct {
	AX, BX, CX, DX uint8
	AC             uint8
	PC             int
	SP             uint8

	// IR is the last-fetched instruction's opcode; OpNone means idle.
	IR Operation
	Z  bool

	// Bound* identify the process currently occupying this CPU.
	// BoundPCBID is 0 when the CPU is idle.
	BoundPCBID        int
	BoundPCBAddress   int
	BoundPCBSize      int
	BoundStackAddress int
	BoundStackSize    int

	// startTime is set by StartProcess and consumed by FinalizeProcess to
	// compute wall-clock execution time, a feature original_source's
	// cpu.rs carries that the distilled spec leaves implicit.
	startTime time.Time
	running   bool
}

// IsEmpty reports whether no process is bound to this CPU.
func (c *CPU) IsEmpty() bool {
	return c.BoundPCBID == 0
}

// Clear resets the register file and unbinds any process, without
// touching wall-clock state (a terminated or preempted process's elapsed
// time is read via FinalizeProcess before Clear is called).
func (c *CPU) Clear() {
	c.AX, c.BX, c.CX, c.DX = 0, 0, 0, 0
	c.AC = 0
	c.PC = 0
	c.SP = 0
	c.IR = OpNone
	c.Z = false
	c.BoundPCBID = 0
	c.BoundPCBAddress = 0
	c.BoundPCBSize = 0
	c.BoundStackAddress = 0
	c.BoundStackSize = 0
}

// LoadFrom copies a PCB's saved register file into the CPU and binds it,
// used by the dispatcher on context switch.
func (c *CPU) LoadFrom(pcb *PCB) {
	c.AX, c.BX, c.CX, c.DX = pcb.AX, pcb.BX, pcb.CX, pcb.DX
	c.AC = pcb.AC
	c.PC = pcb.PC
	c.SP = pcb.SP
	c.IR = pcb.IR
	c.Z = pcb.Z != 0
	c.BoundPCBID = pcb.ID
	c.BoundPCBAddress = pcb.CodeSegment.Address
	c.BoundPCBSize = pcb.CodeSegment.Size
	c.BoundStackAddress = pcb.StackSegment.Address
	c.BoundStackSize = pcb.StackSegment.Size
}

// SaveInto copies the CPU's register file back into pcb, used by the
// dispatcher before a context switch, block, or termination.
func (c *CPU) SaveInto(pcb *PCB) {
	pcb.AX, pcb.BX, pcb.CX, pcb.DX = c.AX, c.BX, c.CX, c.DX
	pcb.AC = c.AC
	pcb.PC = c.PC
	pcb.SP = c.SP
	pcb.IR = c.IR
	if c.Z {
		pcb.Z = 1
	} else {
		pcb.Z = 0
	}
}

// StartProcess marks the wall-clock start of this CPU's current process,
// called once per dispatch (including after a preemption and re-dispatch).
func (c *CPU) StartProcess(now time.Time) {
	c.startTime = now
	c.running = true
}

// FinalizeProcess returns the wall-clock duration since the matching
// StartProcess call, or zero if none was recorded.
func (c *CPU) FinalizeProcess(now time.Time) time.Duration {
	if !c.running {
		return 0
	}
	c.running = false
	return now.Sub(c.startTime)
}
