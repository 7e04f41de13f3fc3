package vm

import "testing"

func TestPCBSerializeRoundTrip(t *testing.T) {
	pcb := NewPCB(7).SetCodeSegment(120, 49).SetStackSegment(169, 5)
	pcb.ProcessState = StateReady
	pcb.Priority = 3
	pcb.AX, pcb.BX, pcb.CX, pcb.DX = 1, 2, 3, 4
	pcb.AC, pcb.SP = 9, 2
	pcb.IR = OpMOV
	pcb.Z = 1

	data := SerializePCB(pcb)
	got := DeserializePCB(data)

	assert(t, *got == *pcb, "round trip mismatch: want %+v got %+v", *pcb, *got)
	assert(t, len(data) <= 40, "expected serialized PCB to fit in 40 bytes, got %d", len(data))
}

func TestPCBSerializeZeroPC(t *testing.T) {
	pcb := NewPCB(1).SetCodeSegment(0, 14).SetStackSegment(14, 5)
	// SetCodeSegment set PC to the code segment's address (0 here), which
	// exercises the [2, 0] zero sentinel in the compact encoding.
	assert(t, pcb.PC == 0, "expected PC == 0 for a code segment at address 0")

	data := SerializePCB(pcb)
	got := DeserializePCB(data)
	assert(t, got.PC == 0, "expected pc to round-trip as 0, got %d", got.PC)
}

func TestPCBBuilderSetsStateAndPC(t *testing.T) {
	pcb := NewPCB(3)
	assert(t, pcb.ProcessState == StateNew, "expected a freshly built PCB to be New")

	pcb.SetCodeSegment(50, 21)
	assert(t, pcb.PC == 50, "expected SetCodeSegment to set PC to the segment's address")

	pcb.SetStackSegment(71, 5)
	assert(t, pcb.StackSegment == Segment{Address: 71, Size: 5}, "unexpected stack segment: %+v", pcb.StackSegment)
}

func TestProcessStateString(t *testing.T) {
	assert(t, StateBlocked.String() == "Blocked", "expected Blocked to stringify as 'Blocked'")
	assert(t, ProcessState(99).String() == "?", "expected unknown state to stringify as '?'")
}
