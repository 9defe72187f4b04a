// Package x86 implements arch.Architecture for the x86/x86-64 instruction
// set: register lookup, a flat per-mnemonic instruction encoder, and
// endian-aware constant serialization (spec.md §4.8). Grounded in the
// teacher's internal/arch/x86_64 encoder's register-id table and
// REX/ModRM helpers, generalized to operate on arch.Operand rather than a
// fixed AST and to produce bytecode.Encoder values the core's
// Insn/JumpRel bytecodes drive through CalcLen/Expand/Output.
package x86

import (
	"fmt"
	"strings"

	"yasmgo/internal/arch"
	"yasmgo/internal/bytecode"
	"yasmgo/internal/diag"
	"yasmgo/internal/intnum"
)

// Architecture implements arch.Architecture for x86/x86-64. mode bits
// (16/32/64) are stored and reported through ModeBits; register lookup
// and instruction encoding do not consult them, so every register alias
// and encoding is accepted in every mode.
type Architecture struct {
	mode uint
	regs registerSet
}

// New constructs an x86 Architecture starting in 64-bit mode.
func New() *Architecture {
	return &Architecture{mode: 64, regs: buildRegisters()}
}

func (a *Architecture) Name() string { return "x86" }

func (a *Architecture) ModeBits() uint { return a.mode }

func (a *Architecture) SetModeBits(bits uint) error {
	switch bits {
	case 16, 32, 64:
		a.mode = bits
		return nil
	default:
		return fmt.Errorf("x86: unsupported mode width %d", bits)
	}
}

func (a *Architecture) LookupRegister(name string) (arch.Register, bool) {
	r, ok := a.regs.lookup(name)
	if !ok {
		return nil, false
	}
	return r, true
}

// SerializeIntNum renders n as a fixed-width byte sequence (spec.md
// §4.8); x86 has no native big-endian mode, but the method still honors
// bigEndian for cross-format reuse (e.g. a big-endian object format
// embedding x86 constants in a byte-swapped table).
func (a *Architecture) SerializeIntNum(n intnum.IntNum, bits uint, bigEndian bool, sink *diag.Sink, pos diag.Pos) []byte {
	out, overflow := n.ToBytes(bits, bigEndian)
	if overflow && sink != nil {
		sink.Warnf(pos, diag.KindValue, "value does not fit in %d bits", bits)
	}
	return out
}

func (a *Architecture) GetFill(policy arch.NopPolicy) bytecode.FillFunc {
	return getFill(policy)
}

// ParseInsn lowers mnemonic+operands into a bytecode.Encoder (spec.md
// §4.8 "operand-to-bytecode lowering"). jumpRel is true for instructions
// whose length depends on a branch target and so must be wrapped in a
// KindJumpRel bytecode rather than KindInsn, so the optimiser knows to
// treat it as a relaxable span owner.
func (a *Architecture) ParseInsn(mnemonic string, operands []arch.Operand, pos diag.Pos, sink *diag.Sink) (bytecode.Encoder, bool, error) {
	mn := strings.ToLower(mnemonic)
	switch mn {
	case "jmp":
		enc, err := a.encodeJmp(operands)
		return enc, true, err
	case "je", "jz", "jne", "jnz", "jg", "jl", "jge", "jle", "ja", "jb", "jae", "jbe":
		enc, err := a.encodeJcc(mn, operands)
		return enc, true, err
	case "call":
		enc, err := a.encodeCall(operands)
		return enc, false, err
	}

	enc, err := a.encodeFixed(mn, operands)
	return enc, false, err
}
