package x86

import (
	"io"

	"yasmgo/internal/bytecode"
	"yasmgo/internal/expr"
	"yasmgo/internal/intnum"
	"yasmgo/internal/loc"
	"yasmgo/internal/optimize"
	"yasmgo/internal/value"
)

// relJumpEncoder is the bytecode.Encoder for JMP/Jcc/CALL: a relative
// branch whose encoding width depends on the distance to its target
// (spec.md §4.5's span/optimiser scenario). Mirrors leb128Payload's
// raw-expr-plus-span shape: the watched expression is "target minus the
// address right after this instruction", which already equals the true
// displacement once curLen's guess is the real final length, so the span
// bounds are just the plain rel8/rel32 ranges.
//
// Relaxation only ever widens short->near, never the reverse, matching
// the optimiser's monotonic-growth guarantee; CALL has no short form at
// all (shortOp is nil) so it never registers a span.
type relJumpEncoder struct {
	target expr.Expr

	shortOp, nearOp   []byte
	shortLen, nearLen uint64
	short             bool

	resolved intnum.IntNum
	known    bool
}

func newRelJump(target expr.Expr, shortOp, nearOp []byte, shortLen, nearLen uint64) *relJumpEncoder {
	return &relJumpEncoder{
		target: target, shortOp: shortOp, nearOp: nearOp,
		shortLen: shortLen, nearLen: nearLen, short: shortOp != nil,
	}
}

const spanRelJump = 0

func (r *relJumpEncoder) curLen() uint64 {
	if r.short {
		return r.shortLen
	}
	return r.nearLen
}

func (r *relJumpEncoder) rawExpr(bc *bytecode.Bytecode) expr.Expr {
	return expr.Binary(expr.OpSub, r.target, expr.Loc(loc.Location{BC: bc, Offset: r.curLen()}))
}

func (r *relJumpEncoder) rangeFor() (lo, hi intnum.IntNum) {
	if r.short {
		return intnum.FromInt64(-128), intnum.FromInt64(127)
	}
	return intnum.FromInt64(-2147483648), intnum.FromInt64(2147483647)
}

// targetHasLabel reports whether the branch target is a symbol that
// currently carries a defined label. A symbol with no label at all (an
// EXTERN, or one promoted to EXTERN by Finalize's undefined-becomes-
// extern rule) can never satisfy the distance law, no matter how layout
// settles, so relaxation must not wait on it - Output falls back to a
// relocation for that case instead.
func (r *relJumpEncoder) targetHasLabel() bool {
	sym, ok := r.target.AsSymbol()
	if !ok {
		return true
	}
	ls, ok := sym.(expr.LocatedSymbol)
	if !ok {
		return true
	}
	_, ok = ls.Label()
	return ok
}

func (r *relJumpEncoder) CalcLen(bc *bytecode.Bytecode, addSpan func(bytecode.Span)) (uint64, error) {
	if r.shortOp == nil {
		r.short = false
	}
	if r.short && !r.targetHasLabel() {
		r.short = false
	}
	raw := r.rawExpr(bc)
	simplified, err := raw.Simplify(false, nil)
	if err != nil {
		return 0, err
	}
	if n, ok := simplified.AsIntNum(); ok {
		r.resolved = n
		r.known = true
		if r.short && !n.FitsSigned(8) {
			r.short = false
			raw = r.rawExpr(bc)
		}
	} else {
		r.known = false
	}
	if addSpan != nil && r.shortOp != nil {
		lo, hi := r.rangeFor()
		addSpan(bytecode.Span{BC: bc, ID: spanRelJump, Expr: raw, Low: lo, High: hi})
	}
	return r.curLen(), nil
}

func (r *relJumpEncoder) Expand(bc *bytecode.Bytecode, spanID int, newVal intnum.IntNum) (int64, bool, error) {
	if spanID != spanRelJump {
		return 0, true, nil
	}
	r.resolved = newVal
	r.known = true
	old := r.curLen()
	if r.short && !newVal.FitsSigned(8) {
		r.short = false
	}
	delta := int64(r.curLen()) - int64(old)
	return delta, true, nil
}

func (r *relJumpEncoder) Output(bc *bytecode.Bytecode, w io.Writer) ([]bytecode.Reloc, error) {
	raw := r.rawExpr(bc)
	simplified, err := raw.Simplify(true, optimize.Dist)
	if err != nil {
		return nil, err
	}

	var opcode []byte
	var dispBits uint
	if r.short {
		opcode = r.shortOp
		dispBits = 8
	} else {
		opcode = r.nearOp
		dispBits = 32
	}
	if _, err := w.Write(opcode); err != nil {
		return nil, err
	}

	n, ok := simplified.AsIntNum()
	if !ok {
		// The target never folded to a constant - almost always because
		// it names an EXTERN symbol, which Dist can't place. Synthesize a
		// PC-relative relocation instead of failing: S + A - P, with P the
		// displacement field itself, so A is the field's own width negated
		// (spec.md §4.7's relocation contract; mirrors fixedEncoder.Output
		// in insn.go for the non-branch case).
		sym, ok := r.target.AsSymbol()
		if !ok {
			return nil, &unresolvedBranchError{}
		}
		disp := make([]byte, dispBits/8)
		if _, err := w.Write(disp); err != nil {
			return nil, err
		}
		v := &value.Value{
			Relative: sym,
			Abs:      expr.Int(intnum.FromInt64(-int64(dispBits / 8))),
			Size:     dispBits,
			Flags:    value.IPRelative,
		}
		return []bytecode.Reloc{{Offset: uint64(len(opcode)), Val: v}}, nil
	}

	disp, _ := n.ToBytes(dispBits, false)
	_, err = w.Write(disp)
	return nil, err
}

type unresolvedBranchError struct{}

func (*unresolvedBranchError) Error() string {
	return "x86: branch target did not resolve to a constant displacement"
}
