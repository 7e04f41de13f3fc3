package vm

import "encoding/binary"

// ProcessState is the PCB state-machine tag (spec.md §3/§4.5).
type ProcessState uint8

const (
	StateNew ProcessState = iota + 1
	StateReady
	StateRunning
	StateBlocked
	StateTerminated
)

var stateNames = map[ProcessState]string{
	StateNew:        "New",
	StateReady:      "Ready",
	StateRunning:    "Running",
	StateBlocked:    "Blocked",
	StateTerminated: "Terminated",
}

func (s ProcessState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "?"
}

// Segment is an (address, size) span inside the user segment of Memory.
type Segment struct {
	Address int
	Size    int
}

// PCB is the Process Control Block: identity, segment descriptors, the
// saved register file, and process state (spec.md §3/§4.5).
type PCB struct {
	ID int

	CodeSegment  Segment
	StackSegment Segment
	PC           int

	ProcessState ProcessState
	Priority     uint8

	AX, BX, CX, DX uint8
	AC             uint8
	SP             uint8

	// IR is the instruction register; OpNone means "no instruction loaded".
	IR Operation

	// Z is the zero flag set by CMP, stored as 0 or 1.
	Z uint8
}

// NewPCB constructs a New PCB with the given id (spec.md: "new(id)
// constructs a New PCB").
func NewPCB(id int) *PCB {
	return &PCB{ID: id, ProcessState: StateNew}
}

// SetCodeSegment records the code segment and resets PC to its start,
// per spec.md §4.5's builder semantics. Returns the receiver for chaining.
func (p *PCB) SetCodeSegment(address, size int) *PCB {
	p.CodeSegment = Segment{Address: address, Size: size}
	p.PC = address
	return p
}

// SetStackSegment records the stack segment. Returns the receiver for chaining.
func (p *PCB) SetStackSegment(address, size int) *PCB {
	p.StackSegment = Segment{Address: address, Size: size}
	return p
}

// pcbTrailerLen is the size of the ten fixed single-byte fields that
// follow the variable-length header: state, priority, ax, bx, cx, dx,
// ac, sp, ir, z (spec.md §6 "PCB on-memory format").
const pcbTrailerLen = 10

// compactEncode writes v using the length-prefixed compact encoding of
// spec.md §3: leading zero bytes are stripped and the remaining bytes are
// prefixed with their count. Zero is special-cased to the two-byte
// sentinel [2, 0], since a literal zero-length prefix would be
// indistinguishable from an absent/terminating field.
func compactEncode(v uint32) []byte {
	if v == 0 {
		return []byte{2, 0}
	}

	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)

	i := 0
	for i < 3 && b[i] == 0 {
		i++
	}
	data := b[i:]

	out := make([]byte, 0, 1+len(data))
	out = append(out, byte(len(data)))
	out = append(out, data...)
	return out
}

// compactDecode reads one compact-encoded integer from data starting at
// pos, returning its value and the position just past it. A length byte
// of 2 is read specially: a leading-zero-stripped two-byte value can
// never start with a zero byte, so [2, 0, ...] unambiguously means "zero,
// one data byte consumed" while [2, nonzero, byte] is a genuine two-byte
// value.
func compactDecode(data []byte, pos int) (uint32, int) {
	length := data[pos]
	pos++

	if length == 2 {
		first := data[pos]
		if first == 0 {
			return 0, pos + 1
		}
		second := data[pos+1]
		return uint32(first)<<8 | uint32(second), pos + 2
	}

	var v uint32
	for i := 0; i < int(length); i++ {
		v = v<<8 | uint32(data[pos+i])
	}
	return v, pos + int(length)
}

// SerializePCB encodes pcb into its on-memory byte form: six
// compact-encoded integers (id, code address, code size, stack address,
// stack size, pc) followed by the ten-byte fixed trailer.
func SerializePCB(pcb *PCB) []byte {
	out := make([]byte, 0, 32)
	out = append(out, compactEncode(uint32(pcb.ID))...)
	out = append(out, compactEncode(uint32(pcb.CodeSegment.Address))...)
	out = append(out, compactEncode(uint32(pcb.CodeSegment.Size))...)
	out = append(out, compactEncode(uint32(pcb.StackSegment.Address))...)
	out = append(out, compactEncode(uint32(pcb.StackSegment.Size))...)
	out = append(out, compactEncode(uint32(pcb.PC))...)
	out = append(out,
		byte(pcb.ProcessState),
		pcb.Priority,
		pcb.AX, pcb.BX, pcb.CX, pcb.DX,
		pcb.AC,
		pcb.SP,
		byte(pcb.IR),
		pcb.Z,
	)
	return out
}

// DeserializePCB is the inverse of SerializePCB (P3: round-trips losslessly).
func DeserializePCB(data []byte) *PCB {
	pos := 0
	var id, caddr, csize, saddr, ssize, pc uint32

	id, pos = compactDecode(data, pos)
	caddr, pos = compactDecode(data, pos)
	csize, pos = compactDecode(data, pos)
	saddr, pos = compactDecode(data, pos)
	ssize, pos = compactDecode(data, pos)
	pc, pos = compactDecode(data, pos)

	trailer := data[pos : pos+pcbTrailerLen]

	return &PCB{
		ID:           int(id),
		CodeSegment:  Segment{Address: int(caddr), Size: int(csize)},
		StackSegment: Segment{Address: int(saddr), Size: int(ssize)},
		PC:           int(pc),
		ProcessState: ProcessState(trailer[0]),
		Priority:     trailer[1],
		AX:           trailer[2],
		BX:           trailer[3],
		CX:           trailer[4],
		DX:           trailer[5],
		AC:           trailer[6],
		SP:           trailer[7],
		IR:           Operation(trailer[8]),
		Z:            trailer[9],
	}
}
