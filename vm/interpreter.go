package vm

/*
	PC convention.

	instruction.go lays a program out as repeated [lengthPrefix, 6-byte
	record] pairs, 7 bytes per instruction (EncodedSize). A PCB's PC
	always points at the lengthPrefix byte of the instruction about to
	execute, so the record itself lives at [PC+1, PC+7) and the next
	instruction's lengthPrefix sits at PC+7 — this is the stride spec.md's
	own "jump stride is 7" note and JMP's PC ± 7·n both already assume, so
	the interpreter advances PC by 7 rather than the 6 spec.md's prose
	mentions elsewhere for the non-jump case; see DESIGN.md.
*/

// stride is the byte distance between one instruction's lengthPrefix and the next.
const stride = instructionRecordLen + 1

// StepOutcome classifies what a Step call did, so the driver loop knows
// whether to keep ticking this CPU or hand it back to the dispatcher.
type StepOutcome uint8

const (
	StepContinue StepOutcome = iota
	StepTerminated
	StepBlocked
	StepFaulted
)

// Step fetches, decodes, and executes exactly one instruction for the
// process bound to cpu, mutating its register file and the memory it
// reads/writes (spec.md §4.6). It returns the decoded instruction so the
// caller can react to INT H10 (the display write lives in the emulator,
// not here, since the "display" is a string the core owns, not memory).
func Step(mem *Memory, cpu *CPU) (StepOutcome, Instruction, error) {
	if cpu.IsEmpty() {
		return StepContinue, Instruction{}, nil
	}

	if cpu.PC < cpu.BoundPCBAddress || cpu.PC >= cpu.BoundPCBAddress+cpu.BoundPCBSize {
		return StepFaulted, Instruction{}, ErrSegmentationFault
	}

	record := mem.Read(cpu.PC+1, instructionRecordLen)
	var buf [instructionRecordLen]byte
	copy(buf[:], record)
	instr := Decode(buf)

	cpu.IR = instr.Op

	if instr.Op == OpNone {
		return StepTerminated, instr, nil
	}

	var outcome StepOutcome
	var err error

	switch instr.Op {
	case OpPARAM:
		outcome, err = execParam(mem, cpu, instr)
	case OpMOV:
		outcome = execMov(cpu, instr)
	case OpSWAP:
		outcome = execSwap(cpu, instr)
	case OpCMP:
		outcome = execCmp(cpu, instr)
	case OpADD:
		outcome = execArith(cpu, instr, true)
	case OpSUB:
		outcome = execArith(cpu, instr, false)
	case OpLOAD:
		outcome = execLoad(cpu, instr)
	case OpSTORE:
		outcome = execStore(cpu, instr)
	case OpINC:
		outcome = execIncDec(cpu, instr, true)
	case OpDEC:
		outcome = execIncDec(cpu, instr, false)
	case OpJMP:
		outcome = execJump(cpu, instr, jumpAlways)
	case OpJE:
		outcome = execJump(cpu, instr, jumpIfZero)
	case OpJNE:
		outcome = execJump(cpu, instr, jumpIfNotZero)
	case OpPUSH:
		outcome, err = execPush(mem, cpu, instr)
	case OpPOP:
		outcome, err = execPop(mem, cpu, instr)
	case OpINT:
		outcome, err = execInt(cpu, instr)
	default:
		outcome, err = StepFaulted, ErrUnknownInstruction
	}

	return outcome, instr, err
}

func regValue(cpu *CPU, r Register) uint8 {
	switch r {
	case RegAX:
		return cpu.AX
	case RegBX:
		return cpu.BX
	case RegCX:
		return cpu.CX
	case RegDX:
		return cpu.DX
	default:
		return 0
	}
}

func setReg(cpu *CPU, r Register, v uint8) {
	switch r {
	case RegAX:
		cpu.AX = v
	case RegBX:
		cpu.BX = v
	case RegCX:
		cpu.CX = v
	case RegDX:
		cpu.DX = v
	}
}

func advance(cpu *CPU) StepOutcome {
	cpu.PC += stride
	return StepContinue
}

func execParam(mem *Memory, cpu *CPU, instr Instruction) (StepOutcome, error) {
	for _, v := range []uint8{instr.Operands.P1, instr.Operands.P2, instr.Operands.P3} {
		if v == 0 {
			continue
		}
		if int(cpu.SP) >= cpu.BoundStackSize {
			return StepFaulted, ErrSegmentationFault
		}
		mem.Write(cpu.BoundStackAddress+int(cpu.SP), []byte{v})
		cpu.SP++
	}
	return advance(cpu), nil
}

func execMov(cpu *CPU, instr Instruction) StepOutcome {
	if instr.Operands.Tag == TagV6 {
		setReg(cpu, instr.Operands.Reg, regValue(cpu, instr.Operands.Reg2))
	} else {
		setReg(cpu, instr.Operands.Reg, instr.Operands.Imm)
	}
	return advance(cpu)
}

func execSwap(cpu *CPU, instr Instruction) StepOutcome {
	a, b := instr.Operands.Reg, instr.Operands.Reg2
	av, bv := regValue(cpu, a), regValue(cpu, b)
	setReg(cpu, a, bv)
	setReg(cpu, b, av)
	return advance(cpu)
}

func execCmp(cpu *CPU, instr Instruction) StepOutcome {
	cpu.Z = regValue(cpu, instr.Operands.Reg) == regValue(cpu, instr.Operands.Reg2)
	return advance(cpu)
}

func execArith(cpu *CPU, instr Instruction, add bool) StepOutcome {
	v := regValue(cpu, instr.Operands.Reg)
	if add {
		cpu.AC = cpu.AC + v
	} else {
		cpu.AC = cpu.AC - v
	}
	return advance(cpu)
}

func execLoad(cpu *CPU, instr Instruction) StepOutcome {
	cpu.AC = regValue(cpu, instr.Operands.Reg)
	return advance(cpu)
}

func execStore(cpu *CPU, instr Instruction) StepOutcome {
	setReg(cpu, instr.Operands.Reg, cpu.AC)
	return advance(cpu)
}

func execIncDec(cpu *CPU, instr Instruction, inc bool) StepOutcome {
	delta := uint8(1)
	if instr.Operands.Tag == TagV2 {
		delta = regValue(cpu, instr.Operands.Reg)
	}
	if inc {
		cpu.AC = cpu.AC + delta
	} else {
		cpu.AC = cpu.AC - delta
	}
	return advance(cpu)
}

type jumpMode uint8

const (
	jumpAlways jumpMode = iota
	jumpIfZero
	jumpIfNotZero
)

func execJump(cpu *CPU, instr Instruction, mode jumpMode) StepOutcome {
	take := true
	if mode == jumpIfZero {
		take = cpu.Z
	} else if mode == jumpIfNotZero {
		take = !cpu.Z
	}

	if !take {
		return advance(cpu)
	}

	offset := int(instr.Operands.N) * stride
	if instr.Operands.Sign == 1 {
		cpu.PC -= offset
	} else {
		cpu.PC += offset
	}
	return StepContinue
}

func execPush(mem *Memory, cpu *CPU, instr Instruction) (StepOutcome, error) {
	if int(cpu.SP) >= cpu.BoundStackSize {
		return StepFaulted, ErrSegmentationFault
	}
	mem.Write(cpu.BoundStackAddress+int(cpu.SP), []byte{regValue(cpu, instr.Operands.Reg)})
	cpu.SP++
	return advance(cpu), nil
}

func execPop(mem *Memory, cpu *CPU, instr Instruction) (StepOutcome, error) {
	if cpu.SP == 0 {
		return StepFaulted, ErrSegmentationFault
	}
	cpu.SP--
	v := mem.Read(cpu.BoundStackAddress+int(cpu.SP), 1)[0]
	setReg(cpu, instr.Operands.Reg, v)
	return advance(cpu), nil
}

func execInt(cpu *CPU, instr Instruction) (StepOutcome, error) {
	switch instr.Operands.Intr {
	case IntTerminate:
		return StepTerminated, nil
	case IntReadInput:
		return StepBlocked, nil
	case IntWriteDX:
		advance(cpu)
		return StepContinue, nil
	default:
		return StepFaulted, ErrIllegalOperation
	}
}
