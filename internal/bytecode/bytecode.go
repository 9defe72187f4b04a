// Package bytecode implements Bytecode and Container: the ordered unit of
// emitted content inside a section, and the sequence that holds them
// (spec.md §3, §4.4). Bytecode is modelled as a tagged union (a Kind tag
// plus per-kind payload fields) rather than as an interface hierarchy, so
// that CalcLen/Expand/Output stay simple kind switches instead of dynamic
// dispatch trees; see DESIGN.md.
package bytecode

import (
	"fmt"
	"io"

	"yasmgo/internal/diag"
	"yasmgo/internal/expr"
	"yasmgo/internal/intnum"
	"yasmgo/internal/loc"
	"yasmgo/internal/value"
)

// Kind tags which payload of a Bytecode is active.
type Kind int

const (
	KindData Kind = iota
	KindReserve
	KindIncbin
	KindAlign
	KindOrg
	KindInsn
	KindJumpRel
	KindLEB128
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindReserve:
		return "reserve"
	case KindIncbin:
		return "incbin"
	case KindAlign:
		return "align"
	case KindOrg:
		return "org"
	case KindInsn:
		return "insn"
	case KindJumpRel:
		return "jumprel"
	case KindLEB128:
		return "leb128"
	default:
		return "?"
	}
}

// Span is a watched (expression, interval) pair a variable-length
// bytecode registers with the optimiser: "if Expr evaluates within
// [Low, High], this bytecode keeps its current encoding; else Expand is
// called" (spec.md §4.5).
type Span struct {
	BC   *Bytecode
	ID   int
	Expr expr.Expr
	Low  intnum.IntNum
	High intnum.IntNum
}

// Reloc is a relocation a bytecode's Output produced because a Value was
// not purely absolute; the owning Section collects these (spec.md §3
// "Owns its relocation list").
type Reloc struct {
	Offset uint64
	Val    *value.Value
}

// Encoder is the architecture-specific delegate that drives CalcLen,
// Expand, and Output for KindInsn and KindJumpRel bytecodes. Defined here
// (rather than imported from an arch package) so bytecode stays
// independent of any particular architecture; x86 and other backends
// construct one of these when they build an Insn or JumpRel bytecode.
type Encoder interface {
	CalcLen(bc *Bytecode, addSpan func(Span)) (uint64, error)
	Expand(bc *Bytecode, spanID int, newVal intnum.IntNum) (delta int64, final bool, err error)
	Output(bc *Bytecode, w io.Writer) ([]Reloc, error)
}

// FillFunc returns a fill-pattern byte sequence of exactly n bytes, used
// by Align to pad with architecture-appropriate NOPs (spec.md §4.5
// "getFill()").
type FillFunc func(n int) []byte

// Bytecode is one unit of a Container: a tagged union over Kind.
type Bytecode struct {
	id   uint64
	pos  diag.Pos
	kind Kind

	offset      uint64
	offsetKnown bool
	length      uint64
	resolved    bool

	multiplier  *expr.Expr
	multCount   uint64
	multCounted bool

	data     dataPayload
	reserve  reservePayload
	incbin   incbinPayload
	align    alignPayload
	org      orgPayload
	encoded encodedPayload // Insn and JumpRel
	leb128  leb128Payload
}

var nextID uint64

func allocID() uint64 {
	nextID++
	return nextID
}

// Pos returns the bytecode's originating source location.
func (bc *Bytecode) Pos() diag.Pos { return bc.pos }

// Kind reports which variant this bytecode is.
func (bc *Bytecode) Kind() Kind { return bc.kind }

// --- loc.BC ---

func (bc *Bytecode) BCID() uint64 { return bc.id }

func (bc *Bytecode) ResolvedOffset() (uint64, bool) {
	if !bc.offsetKnown {
		return 0, false
	}
	return bc.offset, true
}

func (bc *Bytecode) Len() (uint64, bool) {
	return bc.length, bc.resolved
}

// SetOffset is called by Container during layout/relaxation.
func (bc *Bytecode) SetOffset(off uint64) {
	bc.offset = off
	bc.offsetKnown = true
}

// Offset returns the bytecode's offset within its container, or 0 if not
// yet assigned.
func (bc *Bytecode) Offset() uint64 { return bc.offset }

// SetMultiplier attaches a TIMES-style repeat count expression; nil means
// an implicit count of 1.
func (bc *Bytecode) SetMultiplier(e expr.Expr) { bc.multiplier = &e }

// Multiplier returns the repeat-count expression, if any.
func (bc *Bytecode) Multiplier() (expr.Expr, bool) {
	if bc.multiplier == nil {
		return expr.Expr{}, false
	}
	return *bc.multiplier, true
}

// CalcLen computes this bytecode's current length, registering any spans
// a variable-length encoding needs watched (spec.md §4.4 "Built" phase:
// length may be unknown until symbols resolve; variable bytecodes pick
// their shortest plausible length here).
func (bc *Bytecode) CalcLen(addSpan func(Span)) error {
	mult, err := bc.resolveMultiplier(addSpan)
	if err != nil {
		return err
	}

	var unitLen uint64
	switch bc.kind {
	case KindData:
		unitLen, err = bc.data.calcLen()
	case KindReserve:
		unitLen, err = bc.reserve.calcLen()
	case KindIncbin:
		unitLen, err = bc.incbin.calcLen()
	case KindAlign:
		unitLen, err = bc.align.calcLen(bc, addSpan)
	case KindOrg:
		unitLen = 0
	case KindInsn, KindJumpRel:
		unitLen, err = bc.encoded.Encoder.CalcLen(bc, addSpan)
	case KindLEB128:
		unitLen, err = bc.leb128.calcLen(bc, addSpan)
	default:
		return fmt.Errorf("bytecode: unknown kind %v", bc.kind)
	}
	if err != nil {
		return err
	}
	bc.length = unitLen * mult
	return nil
}

func (bc *Bytecode) resolveMultiplier(addSpan func(Span)) (uint64, error) {
	if bc.multiplier == nil {
		return 1, nil
	}
	simplified, err := bc.multiplier.Simplify(false, nil)
	if err != nil {
		return 0, err
	}
	n, ok := simplified.AsIntNum()
	if !ok {
		// Not yet constant: assume 1 for the initial layout pass and
		// register a span so relaxation revisits it once it resolves
		// (mirrors TIMES-with-forward-reference handling).
		if addSpan != nil {
			addSpan(Span{BC: bc, ID: spanMultiplier, Expr: simplified, Low: intnum.FromInt64(1), High: intnum.Zero})
		}
		return 1, nil
	}
	u, _ := n.GetUInt()
	bc.multCount = u
	bc.multCounted = true
	return u, nil
}

const spanMultiplier = -1

// Expand is called by the optimiser when a watched span's expression
// moves outside its registered interval; the bytecode switches to a
// longer encoding and reports the length delta (spec.md §4.5 "Pass 2").
func (bc *Bytecode) Expand(spanID int, newVal intnum.IntNum) (delta int64, final bool, err error) {
	if spanID == spanMultiplier {
		u, _ := newVal.GetUInt()
		old := bc.multCount
		if !bc.multCounted {
			old = 1
		}
		bc.multCount = u
		bc.multCounted = true
		unitLen := uint64(0)
		if old != 0 {
			unitLen = bc.length / old
		}
		newLen := unitLen * u
		delta = int64(newLen) - int64(bc.length)
		bc.length = newLen
		return delta, true, nil
	}

	switch bc.kind {
	case KindInsn, KindJumpRel:
		delta, final, err = bc.encoded.Encoder.Expand(bc, spanID, newVal)
	case KindLEB128:
		delta, final, err = bc.leb128.expand(bc, newVal)
	default:
		return 0, true, fmt.Errorf("bytecode: kind %v has no expandable spans", bc.kind)
	}
	if err != nil {
		return 0, final, err
	}
	mult := uint64(1)
	if bc.multCounted {
		mult = bc.multCount
	}
	totalDelta := delta * int64(mult)
	bc.length = uint64(int64(bc.length) + totalDelta)
	return totalDelta, final, nil
}

// MarkResolved is called once the optimiser's fixpoint has settled: no
// further Expand calls will occur for this bytecode (spec.md §4.4
// "Resolved" phase).
func (bc *Bytecode) MarkResolved() { bc.resolved = true }

// Output emits this bytecode's bytes (repeated per its multiplier) into
// w, returning any relocations produced by non-absolute Values.
func (bc *Bytecode) Output(w io.Writer) ([]Reloc, error) {
	count := bc.multCount
	if !bc.multCounted {
		count = 1
	}
	var all []Reloc
	for i := uint64(0); i < count; i++ {
		relocs, err := bc.outputOnce(w)
		if err != nil {
			return nil, err
		}
		all = append(all, relocs...)
	}
	return all, nil
}

func (bc *Bytecode) outputOnce(w io.Writer) ([]Reloc, error) {
	switch bc.kind {
	case KindData:
		return bc.data.output(w)
	case KindReserve:
		return nil, bc.reserve.output(w)
	case KindIncbin:
		return nil, bc.incbin.output(w)
	case KindAlign:
		return nil, bc.align.output(w)
	case KindOrg:
		return nil, nil
	case KindInsn, KindJumpRel:
		return bc.encoded.Encoder.Output(bc, w)
	case KindLEB128:
		return nil, bc.leb128.output(w)
	default:
		return nil, fmt.Errorf("bytecode: unknown kind %v", bc.kind)
	}
}

var _ loc.BC = (*Bytecode)(nil)
