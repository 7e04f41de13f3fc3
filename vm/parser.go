package vm

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Parse turns assembly source (spec.md §4.2) into an ordered list of
// Instruction, or an error identifying the failing line and token.
//
// Lines are split on newlines; trailing whitespace is stripped; empty
// lines are ignored. Within a line, commas are treated as whitespace.
// The first token is the mnemonic (matched case-sensitively against the
// 16 opcodes); the rest are operands, validated per-opcode below.
func Parse(source []byte) ([]Instruction, error) {
	if !utf8.Valid(source) {
		return nil, &Utf8Error{}
	}

	var instrs []Instruction
	lines := strings.Split(string(source), "\n")

	for i, rawLine := range lines {
		line := strings.ReplaceAll(rawLine, ",", " ")
		line = strings.TrimRight(line, " \t\r")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		mnemonic := fields[0]
		operands := fields[1:]

		op, ok := nameToOp[mnemonic]
		if !ok {
			return nil, &InvalidOperationError{Line: i, Token: mnemonic}
		}

		instr, err := parseOperands(i, op, operands)
		if err != nil {
			return nil, err
		}

		instrs = append(instrs, instr)
	}

	return instrs, nil
}

func parseOperands(line int, op Operation, operands []string) (Instruction, error) {
	switch op {
	case OpPARAM:
		return parseParam(line, operands)
	case OpMOV:
		return parseMov(line, operands)
	case OpSWAP, OpCMP:
		return parseTwoRegisters(line, op, operands)
	case OpJMP, OpJE, OpJNE:
		return parseJump(line, op, operands)
	case OpADD, OpSUB, OpLOAD, OpSTORE, OpPUSH, OpPOP:
		return parseOneRegister(line, op, operands)
	case OpINT:
		return parseInterrupt(line, op, operands)
	case OpINC, OpDEC:
		return parseIncDec(line, op, operands)
	default:
		return Instruction{}, &InvalidOperationError{Line: line, Token: op.String()}
	}
}

// parseParam accepts 1..3 non-register integers; missing trailing values
// default to 0.
func parseParam(line int, operands []string) (Instruction, error) {
	if len(operands) < 1 || len(operands) > 3 {
		return Instruction{}, &InvalidNumberOperandsError{Line: line, Operation: OpPARAM, Operands: operands}
	}

	var vals [3]uint8
	for i, tok := range operands {
		if isRegisterToken(tok) {
			return Instruction{}, &InvalidOperandError{Line: line, Operation: OpPARAM, Operand: tok}
		}
		stripped := strings.TrimPrefix(strings.TrimPrefix(tok, "+"), "-")
		v, err := parseUint8(line, stripped)
		if err != nil {
			return Instruction{}, err
		}
		vals[i] = v
	}

	return Instruction{
		Op: OpPARAM,
		Operands: Operand{
			Tag: TagV4,
			P1:  vals[0], P2: vals[1], P3: vals[2],
		},
	}, nil
}

// parseMov requires exactly two operands: a destination register, then
// either another register (V6) or an 8-bit immediate (V5).
func parseMov(line int, operands []string) (Instruction, error) {
	if len(operands) != 2 {
		return Instruction{}, &InvalidNumberOperandsError{Line: line, Operation: OpMOV, Operands: operands}
	}

	dst, ok := nameToReg[operands[0]]
	if !ok {
		return Instruction{}, &InvalidOperandError{Line: line, Operation: OpMOV, Operand: operands[0]}
	}

	if src, ok := nameToReg[operands[1]]; ok {
		return Instruction{Op: OpMOV, Operands: Operand{Tag: TagV6, Reg: dst, Reg2: src}}, nil
	}

	imm, err := parseUint8(line, operands[1])
	if err != nil {
		return Instruction{}, err
	}

	return Instruction{Op: OpMOV, Operands: Operand{Tag: TagV5, Reg: dst, Imm: imm}}, nil
}

func parseTwoRegisters(line int, op Operation, operands []string) (Instruction, error) {
	if len(operands) != 2 {
		return Instruction{}, &InvalidNumberOperandsError{Line: line, Operation: op, Operands: operands}
	}

	r1, ok := nameToReg[operands[0]]
	if !ok {
		return Instruction{}, &InvalidOperandError{Line: line, Operation: op, Operand: operands[0]}
	}
	r2, ok := nameToReg[operands[1]]
	if !ok {
		return Instruction{}, &InvalidOperandError{Line: line, Operation: op, Operand: operands[1]}
	}

	return Instruction{Op: op, Operands: Operand{Tag: TagV6, Reg: r1, Reg2: r2}}, nil
}

// parseJump accepts exactly one non-register integer; a leading '-'
// selects sign=1, otherwise sign=0.
func parseJump(line int, op Operation, operands []string) (Instruction, error) {
	if len(operands) != 1 {
		return Instruction{}, &InvalidNumberOperandsError{Line: line, Operation: op, Operands: operands}
	}

	tok := operands[0]
	if isRegisterToken(tok) {
		return Instruction{}, &InvalidOperandError{Line: line, Operation: op, Operand: tok}
	}

	sign := uint8(0)
	if strings.HasPrefix(tok, "-") {
		sign = 1
		tok = tok[1:]
	} else if strings.HasPrefix(tok, "+") {
		tok = tok[1:]
	}

	n, err := parseUint8(line, tok)
	if err != nil {
		return Instruction{}, err
	}

	return Instruction{Op: op, Operands: Operand{Tag: TagV1, Sign: sign, N: n}}, nil
}

func parseOneRegister(line int, op Operation, operands []string) (Instruction, error) {
	if len(operands) != 1 {
		return Instruction{}, &InvalidNumberOperandsError{Line: line, Operation: op, Operands: operands}
	}

	reg, ok := nameToReg[operands[0]]
	if !ok {
		return Instruction{}, &InvalidOperandError{Line: line, Operation: op, Operand: operands[0]}
	}

	return Instruction{Op: op, Operands: Operand{Tag: TagV2, Reg: reg}}, nil
}

func parseInterrupt(line int, op Operation, operands []string) (Instruction, error) {
	if len(operands) != 1 {
		return Instruction{}, &InvalidNumberOperandsError{Line: line, Operation: op, Operands: operands}
	}

	intr, ok := nameToInt[operands[0]]
	if !ok {
		return Instruction{}, &InvalidOperandError{Line: line, Operation: op, Operand: operands[0]}
	}

	return Instruction{Op: OpINT, Operands: Operand{Tag: TagV3, Intr: intr}}, nil
}

func parseIncDec(line int, op Operation, operands []string) (Instruction, error) {
	switch len(operands) {
	case 0:
		return Instruction{Op: op, Operands: Operand{Tag: TagV0}}, nil
	case 1:
		reg, ok := nameToReg[operands[0]]
		if !ok {
			return Instruction{}, &InvalidOperandError{Line: line, Operation: op, Operand: operands[0]}
		}
		return Instruction{Op: op, Operands: Operand{Tag: TagV2, Reg: reg}}, nil
	default:
		return Instruction{}, &InvalidNumberOperandsError{Line: line, Operation: op, Operands: operands}
	}
}

func isRegisterToken(tok string) bool {
	_, ok := nameToReg[tok]
	return ok
}

func parseUint8(line int, tok string) (uint8, error) {
	n, err := strconv.ParseInt(tok, 10, 16)
	if err != nil || n < 0 || n > 255 {
		return 0, &ParseIntError{Line: line, Token: tok}
	}
	return uint8(n), nil
}
