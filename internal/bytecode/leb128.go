package bytecode

import (
	"io"

	"yasmgo/internal/expr"
	"yasmgo/internal/intnum"
)

const spanLEB128 = -2

// NewLEB128Bytecode creates a standalone LEB128-encoded data bytecode
// (spec.md §4.4 "LEB128"): signed or unsigned variable-length encoding of
// e, which may still reference label locations at construction time - it
// is re-simplified (with the distance law) by the optimiser each pass
// until it folds to an IntNum (spec.md §4.1, §4.5).
func NewLEB128Bytecode(e expr.Expr, signed bool) *Bytecode {
	return &Bytecode{id: allocID(), kind: KindLEB128, leb128: leb128Payload{raw: e, signed: signed}}
}

type leb128Payload struct {
	raw       expr.Expr
	signed    bool
	resolved  intnum.IntNum
	known     bool
	cachedLen uint64
}

func (p *leb128Payload) calcLen(bc *Bytecode, addSpan func(Span)) (uint64, error) {
	simplified, err := p.raw.Simplify(false, nil)
	if err != nil {
		return 0, err
	}
	n, ok := simplified.AsIntNum()
	if !ok {
		p.cachedLen = 1
		p.known = false
		if addSpan != nil {
			addSpan(Span{BC: bc, ID: spanLEB128, Expr: p.raw, Low: intnum.FromInt64(1), High: intnum.Zero})
		}
		return p.cachedLen, nil
	}
	p.resolved = n
	p.known = true
	p.cachedLen = leb128Len(n, p.signed)
	lo, hi := lebRange(p.cachedLen, p.signed)
	if addSpan != nil {
		addSpan(Span{BC: bc, ID: spanLEB128, Expr: p.raw, Low: lo, High: hi})
	}
	return p.cachedLen, nil
}

func (p *leb128Payload) expand(bc *Bytecode, newVal intnum.IntNum) (int64, bool, error) {
	p.resolved = newVal
	p.known = true
	newLen := leb128Len(newVal, p.signed)
	delta := int64(newLen) - int64(p.cachedLen)
	p.cachedLen = newLen
	return delta, true, nil
}

func (p *leb128Payload) output(w io.Writer) error {
	n := p.resolved
	if !p.known {
		n = intnum.Zero
	}
	out := encodeLEB128(n, p.signed, p.cachedLen)
	_, err := w.Write(out)
	return err
}

// lebRange returns the [low, high] bound of values that fit within
// `length` LEB128 groups, for span registration.
func lebRange(length uint64, signed bool) (lo, hi intnum.IntNum) {
	one := intnum.FromInt64(1)
	bits := uint(7 * length)
	if signed {
		half := one.Shl(bits - 1)
		return half.Neg(), half.Sub(one)
	}
	maxV := one.Shl(bits).Sub(one)
	return intnum.Zero, maxV
}

// leb128Len computes the number of 7-bit groups needed to encode n.
func leb128Len(n intnum.IntNum, signed bool) uint64 {
	if signed {
		v, ok := n.GetInt()
		if !ok {
			return 10 // oversized; caller's width grows on the next Expand
		}
		return uint64(signedLEB128Len(v))
	}
	v, ok := n.GetUInt()
	if !ok {
		return 10
	}
	return uint64(unsignedLEB128Len(v))
}

func unsignedLEB128Len(v uint64) int {
	n := 1
	for v >>= 7; v != 0; v >>= 7 {
		n++
	}
	return n
}

func signedLEB128Len(v int64) int {
	count := 0
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		}
		count++
	}
	return count
}

func encodeLEB128(n intnum.IntNum, signed bool, length uint64) []byte {
	if signed {
		v, _ := n.GetInt()
		return padLEB(encodeSignedLEB128(v), length, v < 0)
	}
	v, _ := n.GetUInt()
	return padLEB(encodeUnsignedLEB128(v), length, false)
}

func encodeUnsignedLEB128(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			break
		}
	}
	return out
}

func encodeSignedLEB128(v int64) []byte {
	var out []byte
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

func padLEB(out []byte, length uint64, negative bool) []byte {
	for uint64(len(out)) < length {
		out[len(out)-1] |= 0x80
		var b byte
		if negative {
			b = 0x7f
		}
		out = append(out, b)
	}
	return out
}
