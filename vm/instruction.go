package vm

/*
	Instruction set

	16 opcodes, stable numeric codes 1..16 (0 means "no instruction / end
	of program"):

		PARAM MOV SWAP CMP ADD SUB LOAD STORE INC DEC INT JMP JE JNE PUSH POP

	4 general purpose registers, codes 1..4:

		AX BX CX DX

	3 software interrupts, codes 1..3:

		H09 (read input, blocks)  H10 (write DX to display)  H20 (terminate)

	Every instruction is packed into exactly 6 bytes:

		[op, tag, b1, b2, b3, totalLen]

	op is the opcode byte, tag selects which of the 7 operand shapes
	(V0..V6) follows, b1..b3 are that shape's payload (zero-padded when
	unused), and totalLen is always 7 — the record plus its own 1-byte
	length prefix used when instructions are concatenated into a program
	stream (see EncodeProgram/DecodeProgram).
*/

// Operation is the tagged enum of opcodes. Zero is reserved for "no
// instruction" / end of program, matching spec.md §3.
type Operation uint8

const (
	OpNone Operation = 0

	OpPARAM Operation = 1
	OpMOV   Operation = 2
	OpSWAP  Operation = 3
	OpCMP   Operation = 4
	OpADD   Operation = 5
	OpSUB   Operation = 6
	OpLOAD  Operation = 7
	OpSTORE Operation = 8
	OpINC   Operation = 9
	OpDEC   Operation = 10
	OpINT   Operation = 11
	OpJMP   Operation = 12
	OpJE    Operation = 13
	OpJNE   Operation = 14
	OpPUSH  Operation = 15
	OpPOP   Operation = 16
)

var opNames = map[Operation]string{
	OpNone:  "",
	OpPARAM: "PARAM",
	OpMOV:   "MOV",
	OpSWAP:  "SWAP",
	OpCMP:   "CMP",
	OpADD:   "ADD",
	OpSUB:   "SUB",
	OpLOAD:  "LOAD",
	OpSTORE: "STORE",
	OpINC:   "INC",
	OpDEC:   "DEC",
	OpINT:   "INT",
	OpJMP:   "JMP",
	OpJE:    "JE",
	OpJNE:   "JNE",
	OpPUSH:  "PUSH",
	OpPOP:   "POP",
}

var nameToOp map[string]Operation

func init() {
	nameToOp = make(map[string]Operation, len(opNames))
	for op, name := range opNames {
		if op != OpNone {
			nameToOp[name] = op
		}
	}
}

// String renders the mnemonic, or "?" for an unrecognized opcode.
func (o Operation) String() string {
	if name, ok := opNames[o]; ok && o != OpNone {
		return name
	}
	if o == OpNone {
		return "<none>"
	}
	return "?"
}

// Register is the tagged enum of general purpose registers, codes 1..4.
type Register uint8

const (
	RegAX Register = 1
	RegBX Register = 2
	RegCX Register = 3
	RegDX Register = 4
)

var regNames = map[Register]string{
	RegAX: "AX",
	RegBX: "BX",
	RegCX: "CX",
	RegDX: "DX",
}

var nameToReg = map[string]Register{
	"AX": RegAX,
	"BX": RegBX,
	"CX": RegCX,
	"DX": RegDX,
}

func (r Register) String() string {
	if name, ok := regNames[r]; ok {
		return name
	}
	return "?"
}

// Interrupt is the tagged enum of software interrupts, codes 1..3.
type Interrupt uint8

const (
	IntReadInput Interrupt = 1 // 09H
	IntWriteDX   Interrupt = 2 // 10H
	IntTerminate Interrupt = 3 // 20H
)

var intNames = map[Interrupt]string{
	IntReadInput: "09H",
	IntWriteDX:   "10H",
	IntTerminate: "20H",
}

var nameToInt = map[string]Interrupt{
	"09H": IntReadInput,
	"10H": IntWriteDX,
	"20H": IntTerminate,
}

func (i Interrupt) String() string {
	if name, ok := intNames[i]; ok {
		return name
	}
	return "?"
}

// OperandTag selects which Operand variant is encoded (0..6, spec.md §3).
type OperandTag uint8

const (
	TagV0 OperandTag = 0 // no operands
	TagV1 OperandTag = 1 // signed immediate jump offset: sign, n
	TagV2 OperandTag = 2 // single register
	TagV3 OperandTag = 3 // interrupt selector
	TagV4 OperandTag = 4 // three 8-bit PARAM values
	TagV5 OperandTag = 5 // register + 8-bit immediate
	TagV6 OperandTag = 6 // two registers
)

// Operand is a tagged union over the 7 operand shapes. Only the fields
// relevant to Tag are meaningful; encode/decode always round-trips all
// three payload bytes so Operand is a plain value type with no pointers.
type Operand struct {
	Tag OperandTag

	// V1: Sign (0 = +, 1 = -), N (jump offset count)
	Sign uint8
	N    uint8

	// V2, V5, V6: Reg (and Reg2 for V6)
	Reg  Register
	Reg2 Register

	// V3
	Intr Interrupt

	// V4: three raw PARAM bytes
	P1, P2, P3 uint8

	// V5: 8-bit immediate
	Imm uint8
}

// Instruction pairs an Operation with its Operand.
type Instruction struct {
	Op       Operation
	Operands Operand
}

// instructionRecordLen is the fixed 6-byte record size, and lengthPrefix
// is the byte written ahead of every record in a program stream (§4.1:
// "always 7 for current instruction set" — the record plus its own prefix).
const (
	instructionRecordLen = 6
	lengthPrefix         = 7
)

// Encode packs an Instruction into its fixed 6-byte record:
// [op, tag, b1, b2, b3, totalLen].
func Encode(instr Instruction) [instructionRecordLen]byte {
	var buf [instructionRecordLen]byte
	buf[0] = byte(instr.Op)
	buf[5] = lengthPrefix

	op := instr.Operands
	buf[1] = byte(op.Tag)
	switch op.Tag {
	case TagV0:
		// no payload
	case TagV1:
		buf[2] = op.Sign
		buf[3] = op.N
	case TagV2:
		buf[2] = byte(op.Reg)
	case TagV3:
		buf[2] = byte(op.Intr)
	case TagV4:
		buf[2] = op.P1
		buf[3] = op.P2
		buf[4] = op.P3
	case TagV5:
		buf[2] = byte(op.Reg)
		buf[3] = op.Imm
	case TagV6:
		buf[2] = byte(op.Reg)
		buf[3] = byte(op.Reg2)
	}

	return buf
}

// Decode is the inverse of Encode: it reconstructs the Instruction from
// its 6-byte record. decode(encode(i)) == i for every well-formed i (P1).
func Decode(buf [instructionRecordLen]byte) Instruction {
	instr := Instruction{Op: Operation(buf[0])}
	tag := OperandTag(buf[1])
	instr.Operands.Tag = tag

	switch tag {
	case TagV0:
		// nothing to decode
	case TagV1:
		instr.Operands.Sign = buf[2]
		instr.Operands.N = buf[3]
	case TagV2:
		instr.Operands.Reg = Register(buf[2])
	case TagV3:
		instr.Operands.Intr = Interrupt(buf[2])
	case TagV4:
		instr.Operands.P1 = buf[2]
		instr.Operands.P2 = buf[3]
		instr.Operands.P3 = buf[4]
	case TagV5:
		instr.Operands.Reg = Register(buf[2])
		instr.Operands.Imm = buf[3]
	case TagV6:
		instr.Operands.Reg = Register(buf[2])
		instr.Operands.Reg2 = Register(buf[3])
	}

	return instr
}

// EncodeProgram packs a sequence of instructions into a byte stream: each
// instruction is a length byte (always lengthPrefix) followed by its
// 6-byte record.
func EncodeProgram(instrs []Instruction) []byte {
	out := make([]byte, 0, len(instrs)*(instructionRecordLen+1))
	for _, instr := range instrs {
		rec := Encode(instr)
		out = append(out, lengthPrefix)
		out = append(out, rec[:]...)
	}
	return out
}

// DecodeProgram is the inverse of EncodeProgram (P2): it reads records
// until it finds a zero length byte or runs out of input, tolerating
// trailing zero padding.
func DecodeProgram(data []byte) []Instruction {
	var instrs []Instruction
	i := 0
	for i < len(data) {
		length := data[i]
		if length == 0 {
			break
		}
		i++
		if i+instructionRecordLen > len(data) {
			break
		}
		var rec [instructionRecordLen]byte
		copy(rec[:], data[i:i+instructionRecordLen])
		instrs = append(instrs, Decode(rec))
		i += instructionRecordLen
	}
	return instrs
}

// EncodedSize returns the number of bytes EncodeProgram(instrs) would
// produce, without allocating — used by admission to size the code segment.
func EncodedSize(instrs []Instruction) int {
	return len(instrs) * (instructionRecordLen + 1)
}
