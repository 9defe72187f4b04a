// Package arch defines the Architecture contract the core asks a backend
// to satisfy: register/segreg/modifier objects, an effective-address
// constructor, operand-to-bytecode lowering, and endian-aware
// serialisation (spec.md §4.8).
package arch

import (
	"yasmgo/internal/bytecode"
	"yasmgo/internal/diag"
	"yasmgo/internal/expr"
	"yasmgo/internal/intnum"
)

// Arch names a supported instruction set, the way the core's -a flag and
// the ARCH directive select one.
type Arch int

const (
	ArchUnknown Arch = iota
	ArchX86
	ArchX86_64
)

func (a Arch) String() string {
	switch a {
	case ArchX86:
		return "x86"
	case ArchX86_64:
		return "x86_64"
	default:
		return "unknown"
	}
}

// ParseArch maps common spellings to an Arch.
func ParseArch(s string) Arch {
	switch s {
	case "x86", "i386", "i686":
		return ArchX86
	case "x86_64", "amd64", "x64":
		return ArchX86_64
	default:
		return ArchUnknown
	}
}

// Register is the minimal view the core needs of an architecture
// register: a display name, satisfying expr.RegisterRef structurally so
// registers can appear as Expr leaves without arch importing expr's
// internals or expr importing arch.
type Register interface {
	RegisterName() string
	Bits() uint
}

// SegReg is a segment-override register (CS/DS/ES/... on x86; an empty
// set on architectures without segmentation).
type SegReg interface {
	Register
	IsSegment() bool
}

// Modifier is an opaque architecture-specific target modifier
// (e.g. x86's NEAR/FAR/SHORT operand-size overrides).
type Modifier interface {
	ModifierName() string
}

// Operand is one instruction operand as the parser builds it, before
// architecture-specific lowering: a register, an effective-address
// memory reference, or an immediate/relocatable expression.
type Operand struct {
	Reg  Register
	Mem  *EffectiveAddress
	Imm  *expr.Expr
	Mods []Modifier
}

// EffectiveAddress is an architecture-agnostic memory operand (spec.md
// §4.8 "Effective Address constructor"). The dialect parsers fill Base,
// Index and Scale directly while parsing and put the remaining terms in
// Disp; a register they do not decompose stays inside Disp.
type EffectiveAddress struct {
	Disp    expr.Expr
	Base    Register
	Index   Register
	Scale   uint
	Segment SegReg
}

// NopPolicy selects which vendor's multi-byte NOP sequences getFill()
// hands back for ALIGN padding (spec.md §4.5 "getFill() ... keyed on
// mode bits and NOP policy - Intel, AMD, or basic"; SPEC_FULL.md
// supplement: defaults to Intel).
type NopPolicy int

const (
	NopIntel NopPolicy = iota
	NopAMD
	NopBasic
)

// Architecture is the contract the core drives a backend through:
// register objects, instruction lowering, and serialisation. mode_bits
// (16/32/64 on x86) is architecture-owned state set by directives like
// BITS/.code16/32/64 (spec.md §4.8).
type Architecture interface {
	Name() string
	ModeBits() uint
	SetModeBits(bits uint) error

	// LookupRegister resolves a register/segreg name in the current
	// mode, or ok=false if unknown.
	LookupRegister(name string) (Register, bool)

	// ParseInsn lowers a mnemonic and operand list into a bytecode.Encoder
	// ready to be wrapped in a KindInsn or KindJumpRel bytecode. jumpRel
	// reports whether the instruction is a relative branch whose length
	// depends on the target (and so belongs in a KindJumpRel bytecode
	// rather than KindInsn).
	ParseInsn(mnemonic string, operands []Operand, pos diag.Pos, sink *diag.Sink) (enc bytecode.Encoder, jumpRel bool, err error)

	// SerializeIntNum renders n as a bits-wide little/big-endian byte
	// sequence, warning via sink on overflow (spec.md §4.8 "endian-aware
	// serialisation of IntNum and float constants").
	SerializeIntNum(n intnum.IntNum, bits uint, bigEndian bool, sink *diag.Sink, pos diag.Pos) []byte

	// GetFill returns a fill-pattern function for ALIGN bytecodes, given
	// the current mode and NOP policy.
	GetFill(policy NopPolicy) bytecode.FillFunc
}
