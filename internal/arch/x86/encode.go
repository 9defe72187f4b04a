package x86

import (
	"fmt"

	"yasmgo/internal/arch"
	"yasmgo/internal/bytecode"
	"yasmgo/internal/value"
)

// regID returns the register's x86 ModRM/REX id. Every arch.Register this
// package hands out is one of our own *register values, so the assertion
// never fails for operands built through LookupRegister.
func regID(r arch.Register) (int, error) {
	reg, ok := r.(*register)
	if !ok {
		return 0, fmt.Errorf("x86: foreign register value %v", r)
	}
	return reg.id, nil
}

func writeRex(buf []byte, regField, rmField int, needW bool) []byte {
	var rex byte = 0x40
	if needW {
		rex |= 0x08
	}
	if regField >= 8 {
		rex |= 0x04
	}
	if rmField >= 8 {
		rex |= 0x01
	}
	return append(buf, rex)
}

func modRM(regField, rmField int, base byte) byte {
	return base | byte((regField&7)<<3) | byte(rmField&7)
}

// encodeFixed dispatches the mnemonics whose encoded length never depends
// on a branch target (grounded in the teacher's flat EncodeInstruction
// switch, generalized from ast.Instruction to arch.Operand).
func (a *Architecture) encodeFixed(mn string, ops []arch.Operand) (bytecode.Encoder, error) {
	switch mn {
	case "mov":
		return a.encodeMov(ops)
	case "xor":
		return a.encodeArithRR(ops, 0x31, 0x81, 0x83, 6)
	case "add":
		return a.encodeArithRR(ops, 0x01, 0x81, 0x83, 0)
	case "sub":
		return a.encodeArithRR(ops, 0x29, 0x81, 0x83, 5)
	case "cmp":
		return a.encodeArithRR(ops, 0x39, 0x81, 0x83, 7)
	case "test":
		return a.encodeArithRR(ops, 0x85, 0xF7, 0xF7, 0)
	case "inc":
		return a.encodeIncDec(ops, 0)
	case "dec":
		return a.encodeIncDec(ops, 1)
	case "push":
		return a.encodePush(ops)
	case "pop":
		return a.encodePop(ops)
	case "ret":
		return &fixedEncoder{prefix: []byte{0xC3}}, nil
	case "syscall":
		return &fixedEncoder{prefix: []byte{0x0F, 0x05}}, nil
	case "nop":
		return &fixedEncoder{prefix: []byte{0x90}}, nil
	case "int":
		return a.encodeInt(ops)
	case "lea":
		return nil, fmt.Errorf("x86: lea requires a memory operand, not yet supported")
	default:
		return nil, fmt.Errorf("x86: unsupported instruction %q", mn)
	}
}

func (a *Architecture) encodeMov(ops []arch.Operand) (bytecode.Encoder, error) {
	if len(ops) != 2 {
		return nil, fmt.Errorf("mov requires 2 operands")
	}
	dst, src := ops[0], ops[1]
	if dst.Reg == nil {
		return nil, fmt.Errorf("mov: unsupported destination operand")
	}
	dstID, err := regID(dst.Reg)
	if err != nil {
		return nil, err
	}

	if src.Reg != nil {
		srcID, err := regID(src.Reg)
		if err != nil {
			return nil, err
		}
		prefix := writeRex(nil, srcID, dstID, dst.Reg.Bits() == 64)
		prefix = append(prefix, 0x89, modRM(srcID, dstID, 0xC0))
		return &fixedEncoder{prefix: prefix}, nil
	}

	if src.Imm != nil {
		prefix := writeRex(nil, 0, dstID, dst.Reg.Bits() == 64)
		prefix = append(prefix, byte(0xB8|(dstID&7)))
		size := dst.Reg.Bits()
		v, err := value.FinalizeScan(*src.Imm, size)
		if err != nil {
			return nil, fmt.Errorf("mov immediate: %w", err)
		}
		return &fixedEncoder{prefix: prefix, imm: v, immSize: uint(size / 8)}, nil
	}

	return nil, fmt.Errorf("mov: unsupported source operand")
}

// encodeArithRR handles the register-register and register-immediate
// shapes of add/sub/cmp/xor/test (teacher's encodeArithRR/encodeXor,
// generalized to one table-driven routine: opRegReg for the reg,reg
// form, opImm32/opImm8 with extField selecting the /digit for the
// immediate forms).
func (a *Architecture) encodeArithRR(ops []arch.Operand, opRegReg, opImm32, opImm8 byte, extField int) (bytecode.Encoder, error) {
	if len(ops) != 2 {
		return nil, fmt.Errorf("arithmetic instruction requires 2 operands")
	}
	dst, src := ops[0], ops[1]
	if dst.Reg == nil {
		return nil, fmt.Errorf("arithmetic instruction: destination must be a register")
	}
	dstID, err := regID(dst.Reg)
	if err != nil {
		return nil, err
	}

	if src.Reg != nil {
		srcID, err := regID(src.Reg)
		if err != nil {
			return nil, err
		}
		prefix := writeRex(nil, dstID, srcID, dst.Reg.Bits() == 64)
		prefix = append(prefix, opRegReg, modRM(dstID, srcID, 0xC0))
		return &fixedEncoder{prefix: prefix}, nil
	}

	if src.Imm != nil {
		n, ok := src.Imm.AsIntNum()
		if ok {
			if v, fits := n.GetInt(); fits && v >= -128 && v <= 127 {
				prefix := writeRex(nil, extField, dstID, dst.Reg.Bits() == 64)
				prefix = append(prefix, opImm8, modRM(extField, dstID, 0xC0))
				v8, _ := value.FinalizeScan(*src.Imm, 8)
				return &fixedEncoder{prefix: prefix, imm: v8, immSize: 1}, nil
			}
		}
		prefix := writeRex(nil, extField, dstID, dst.Reg.Bits() == 64)
		prefix = append(prefix, opImm32, modRM(extField, dstID, 0xC0))
		v32, err := value.FinalizeScan(*src.Imm, 32)
		if err != nil {
			return nil, fmt.Errorf("arithmetic immediate: %w", err)
		}
		return &fixedEncoder{prefix: prefix, imm: v32, immSize: 4}, nil
	}

	return nil, fmt.Errorf("arithmetic instruction: unsupported source operand")
}

func (a *Architecture) encodeIncDec(ops []arch.Operand, extField int) (bytecode.Encoder, error) {
	if len(ops) != 1 || ops[0].Reg == nil {
		return nil, fmt.Errorf("inc/dec requires a single register operand")
	}
	id, err := regID(ops[0].Reg)
	if err != nil {
		return nil, err
	}
	prefix := writeRex(nil, extField, id, ops[0].Reg.Bits() == 64)
	prefix = append(prefix, 0xFF, modRM(extField, id, 0xC0))
	return &fixedEncoder{prefix: prefix}, nil
}

func (a *Architecture) encodePush(ops []arch.Operand) (bytecode.Encoder, error) {
	if len(ops) != 1 || ops[0].Reg == nil {
		return nil, fmt.Errorf("push requires a single register operand")
	}
	id, err := regID(ops[0].Reg)
	if err != nil {
		return nil, err
	}
	var prefix []byte
	if id >= 8 {
		prefix = append(prefix, 0x41)
	}
	prefix = append(prefix, byte(0x50|(id&7)))
	return &fixedEncoder{prefix: prefix}, nil
}

func (a *Architecture) encodePop(ops []arch.Operand) (bytecode.Encoder, error) {
	if len(ops) != 1 || ops[0].Reg == nil {
		return nil, fmt.Errorf("pop requires a single register operand")
	}
	id, err := regID(ops[0].Reg)
	if err != nil {
		return nil, err
	}
	var prefix []byte
	if id >= 8 {
		prefix = append(prefix, 0x41)
	}
	prefix = append(prefix, byte(0x58|(id&7)))
	return &fixedEncoder{prefix: prefix}, nil
}

func (a *Architecture) encodeInt(ops []arch.Operand) (bytecode.Encoder, error) {
	if len(ops) != 1 || ops[0].Imm == nil {
		return nil, fmt.Errorf("int requires an immediate operand")
	}
	v, err := value.FinalizeScan(*ops[0].Imm, 8)
	if err != nil {
		return nil, fmt.Errorf("int immediate: %w", err)
	}
	return &fixedEncoder{prefix: []byte{0xCD}, imm: v, immSize: 1}, nil
}

// jccOpcodes maps a Jcc mnemonic to its rel8/rel32 condition codes
// (teacher's encodeJcc opcode2 table).
var jccOpcodes = map[string]byte{
	"je": 0x84, "jz": 0x84,
	"jne": 0x85, "jnz": 0x85,
	"jg": 0x8F, "jl": 0x8C, "jge": 0x8D, "jle": 0x8E,
	"ja": 0x87, "jb": 0x82, "jae": 0x83, "jbe": 0x86,
}

func targetExpr(ops []arch.Operand, mnemonic string) (*arch.Operand, error) {
	if len(ops) != 1 || ops[0].Imm == nil {
		return nil, fmt.Errorf("%s requires a single branch-target operand", mnemonic)
	}
	return &ops[0], nil
}

func (a *Architecture) encodeJmp(ops []arch.Operand) (bytecode.Encoder, error) {
	op, err := targetExpr(ops, "jmp")
	if err != nil {
		return nil, err
	}
	return newRelJump(*op.Imm, []byte{0xEB}, []byte{0xE9}, 2, 5), nil
}

func (a *Architecture) encodeJcc(mn string, ops []arch.Operand) (bytecode.Encoder, error) {
	op, err := targetExpr(ops, mn)
	if err != nil {
		return nil, err
	}
	code, ok := jccOpcodes[mn]
	if !ok {
		return nil, fmt.Errorf("x86: unknown conditional jump %q", mn)
	}
	return newRelJump(*op.Imm, []byte{0x70 + (code - 0x80)}, []byte{0x0F, code}, 2, 6), nil
}

func (a *Architecture) encodeCall(ops []arch.Operand) (bytecode.Encoder, error) {
	op, err := targetExpr(ops, "call")
	if err != nil {
		return nil, err
	}
	return newRelJump(*op.Imm, nil, []byte{0xE8}, 0, 5), nil
}
