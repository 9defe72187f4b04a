// Package value implements Value, the relocatable expression that is the
// unit of relocation (spec.md §3, §4.3): an absolute part plus at most
// one relative symbol and at most one subtractive symbol/location.
package value

import (
	"fmt"

	"yasmgo/internal/diag"
	"yasmgo/internal/expr"
	"yasmgo/internal/intnum"
	"yasmgo/internal/loc"
)

// Flags steer relocation-type selection at emit time (spec.md §4.3).
type Flags int

const (
	Signed Flags = 1 << iota
	SectionRelative
	SegOf
	IPRelative
	JumpTarget
	NoWarn
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Value is a relocatable expression: abs + relative [- subtract] [WRT wrt].
type Value struct {
	Abs      expr.Expr
	Relative expr.SymbolRef

	SubtractSymbol   expr.SymbolRef
	SubtractLocation loc.Location
	hasSubtractLoc   bool

	WRT expr.SymbolRef

	Size   uint
	RShift uint
	Flags  Flags

	InsnStart uint64
	NextInsn  uint64
}

// ErrTooComplex is returned by FinalizeScan when the source expression
// cannot be decomposed into the (absolute, relative, subtractive, WRT)
// shape a Value requires.
var ErrTooComplex = fmt.Errorf("value: expression too complex for relocation")

type signedLeaf struct {
	sym  expr.SymbolRef
	at   loc.Location
	isAt bool
	neg  bool
}

// FinalizeScan builds a Value from an already-Simplified Expr and target
// bit size, decomposing it into absolute/relative/subtractive/WRT parts
// (spec.md §4.3 "FinalizeScan"). Returns ErrTooComplex if the shape
// cannot be reduced to at most one relative and one subtractive
// symbol/location.
func FinalizeScan(e expr.Expr, size uint) (*Value, error) {
	v := &Value{Size: size}

	inner := e
	if seg, off, ok := e.ExtractSegOff(); ok {
		// seg:off - for a Value we keep off as the addressed quantity and
		// flag SegOf on the segment half handled by the caller (the
		// architecture/directive layer decides which half becomes the
		// Value); here we conservatively treat off as the value and
		// require seg to itself be a plain symbol, attached via WRT-like
		// bookkeeping the architecture layer resolves.
		inner = off
		if sym, ok := seg.AsSymbol(); ok {
			v.WRT = sym
			v.Flags |= SegOf
		}
	}

	if wrtSym, wrtInner, ok := extractWRT(inner); ok {
		v.WRT = wrtSym
		inner = wrtInner
	}

	terms, err := flattenSum(inner, false)
	if err != nil {
		return nil, err
	}

	abs := intnum.Zero
	var positive, negative []signedLeaf

	for _, term := range terms {
		if term.isSymbolic {
			if term.neg {
				negative = append(negative, signedLeaf{sym: term.sym, at: term.at, isAt: term.isAt, neg: true})
			} else {
				positive = append(positive, signedLeaf{sym: term.sym, at: term.at, isAt: term.isAt})
			}
			continue
		}
		if term.neg {
			abs = abs.Sub(term.n)
		} else {
			abs = abs.Add(term.n)
		}
	}

	if len(positive) > 1 || len(negative) > 1 {
		return nil, ErrTooComplex
	}

	v.Abs = expr.Int(abs)
	if len(positive) == 1 {
		v.Relative = positive[0].sym
	}
	if len(negative) == 1 {
		if negative[0].isAt {
			v.SubtractLocation = negative[0].at
			v.hasSubtractLoc = true
		} else {
			v.SubtractSymbol = negative[0].sym
		}
	}
	return v, nil
}

type sumTerm struct {
	isSymbolic bool
	sym        expr.SymbolRef
	at         loc.Location
	isAt       bool
	n          intnum.IntNum
	neg        bool
}

// flattenSum walks a tree of +/- at the top level, collecting each leaf
// term with its accumulated sign. Any non-+/- operator encountered with a
// symbolic operand beneath it is too complex; constant subtrees are
// folded via AsIntNum (they must already be simplified).
func flattenSum(e expr.Expr, neg bool) ([]sumTerm, error) {
	if sym, ok := e.AsSymbol(); ok {
		return []sumTerm{{isSymbolic: true, sym: sym, neg: neg}}, nil
	}
	if at, ok := e.AsLocation(); ok {
		return []sumTerm{{isSymbolic: true, at: at, isAt: true, neg: neg}}, nil
	}
	if n, ok := e.AsIntNum(); ok {
		return []sumTerm{{n: n, neg: neg}}, nil
	}

	left, right, op, ok := splitAddSub(e)
	if !ok {
		return nil, ErrTooComplex
	}
	lt, err := flattenSum(left, neg)
	if err != nil {
		return nil, err
	}
	rNeg := neg
	if op == expr.OpSub {
		rNeg = !neg
	}
	rt, err := flattenSum(right, rNeg)
	if err != nil {
		return nil, err
	}
	return append(lt, rt...), nil
}

// splitAddSub and extractWRT rely on Expr.TopLevelBinary to split off the
// expression's top-level operator, since Expr's tree is internal.
func splitAddSub(e expr.Expr) (left, right expr.Expr, op expr.Op, ok bool) {
	return e.TopLevelBinary(expr.OpAdd, expr.OpSub)
}

func extractWRT(e expr.Expr) (sym expr.SymbolRef, rest expr.Expr, ok bool) {
	l, r, op, has := e.TopLevelBinary(expr.OpWRT)
	if !has {
		return nil, e, false
	}
	s, isSym := r.AsSymbol()
	if !isSym {
		return nil, e, false
	}
	_ = op
	return s, l, true
}

// OutputBasic attempts to fold the Value to a plain IntNum and serialize
// it via serialize; returns handled=false if the Value has a relative
// part and therefore needs relocation (spec.md §4.3).
func (v *Value) OutputBasic(serialize func(n intnum.IntNum, bits uint, rshift uint, signed bool) ([]byte, bool), sink *diag.Sink, pos diag.Pos) (out []byte, handled bool) {
	if v.Relative != nil {
		return nil, false
	}
	n, ok := v.Abs.AsIntNum()
	if !ok {
		return nil, false
	}
	if v.RShift > 0 {
		n = n.Shr(v.RShift)
	}
	bytes, overflow := serializeOrDefault(serialize, n, v.Size, v.RShift, v.Flags.Has(Signed))
	if overflow && !v.Flags.Has(NoWarn) && sink != nil {
		sink.Warnf(pos, diag.KindValue, "value does not fit in %d bits", v.Size)
	}
	return bytes, true
}

func serializeOrDefault(serialize func(intnum.IntNum, uint, uint, bool) ([]byte, bool), n intnum.IntNum, size, rshift uint, signed bool) ([]byte, bool) {
	if serialize != nil {
		b, overflow := serialize(n, size, rshift, signed)
		return b, overflow
	}
	b, overflow := n.ToBytes(size, false)
	return b, overflow
}

// CalcPCRelSub folds a subtract-location of "the current address" (here)
// into a PC-relative delta: if the Value's subtractive part is here's
// bytecode, the subtract is removed, the IPRelative flag is set, and true
// is returned. dist computes the signed distance used for the fold.
func (v *Value) CalcPCRelSub(here loc.Location, dist expr.DistFunc) bool {
	if !v.hasSubtractLoc {
		return false
	}
	if dist == nil {
		return false
	}
	d, ok := dist(here, v.SubtractLocation)
	if !ok {
		return false
	}
	v.Abs = expr.Binary(expr.OpSub, v.Abs, expr.Int(d))
	v.hasSubtractLoc = false
	v.SubtractLocation = loc.Location{}
	v.Flags |= IPRelative
	return true
}

// HasSubtract reports whether the Value carries a subtractive part at
// all (symbol or location).
func (v *Value) HasSubtract() bool {
	return v.SubtractSymbol != nil || v.hasSubtractLoc
}

// SubtractIsLocation reports whether the subtractive part is a raw
// Location rather than a symbol reference.
func (v *Value) SubtractIsLocation() (loc.Location, bool) {
	return v.SubtractLocation, v.hasSubtractLoc
}
