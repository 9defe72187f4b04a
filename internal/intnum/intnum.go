// Package intnum implements IntNum, an arbitrary-precision signed integer
// with a machine-word fast path, used throughout the assembler core for
// constant folding, offsets, and byte-serialization of literals.
package intnum

import (
	"fmt"
	"math/big"
)

// IntNum is an arbitrary-precision signed integer. Values that fit in an
// int64 take the inline fast path (big is nil); larger values fall back to
// math/big. This mirrors the original yasm IntNum's small/large split
// without needing a union type.
type IntNum struct {
	small int64
	big   *big.Int // non-nil only when the value doesn't fit in small
}

// Zero is the IntNum value 0.
var Zero = IntNum{}

// FromInt64 builds an IntNum from a machine int64.
func FromInt64(v int64) IntNum { return IntNum{small: v} }

// FromUint64 builds an IntNum from a machine uint64, promoting to the big
// path if the value exceeds math.MaxInt64.
func FromUint64(v uint64) IntNum {
	if v <= 1<<63-1 {
		return IntNum{small: int64(v)}
	}
	return IntNum{big: new(big.Int).SetUint64(v)}
}

// FromBigInt builds an IntNum from a math/big.Int, normalizing back to the
// small path when possible.
func FromBigInt(v *big.Int) IntNum {
	if v.IsInt64() {
		return IntNum{small: v.Int64()}
	}
	return IntNum{big: new(big.Int).Set(v)}
}

func (n IntNum) asBig() *big.Int {
	if n.big != nil {
		return n.big
	}
	return big.NewInt(n.small)
}

func normalize(v *big.Int) IntNum {
	if v.IsInt64() {
		return IntNum{small: v.Int64()}
	}
	return IntNum{big: v}
}

// IsSmall reports whether the value fits the inline int64 fast path.
func (n IntNum) IsSmall() bool { return n.big == nil }

func (n IntNum) Add(o IntNum) IntNum {
	if n.IsSmall() && o.IsSmall() {
		r := n.small + o.small
		// overflow check: signs of operands equal, sign of result differs
		if (n.small >= 0) == (o.small >= 0) && (r >= 0) != (n.small >= 0) {
			return normalize(new(big.Int).Add(n.asBig(), o.asBig()))
		}
		return IntNum{small: r}
	}
	return normalize(new(big.Int).Add(n.asBig(), o.asBig()))
}

func (n IntNum) Sub(o IntNum) IntNum {
	return n.Add(o.Neg())
}

func (n IntNum) Mul(o IntNum) IntNum {
	if n.IsSmall() && o.IsSmall() {
		if n.small == 0 || o.small == 0 {
			return Zero
		}
		r := n.small * o.small
		if r/o.small != n.small {
			return normalize(new(big.Int).Mul(n.asBig(), o.asBig()))
		}
		return IntNum{small: r}
	}
	return normalize(new(big.Int).Mul(n.asBig(), o.asBig()))
}

// Div performs truncating (toward-zero) division, matching C/yasm semantics.
func (n IntNum) Div(o IntNum) (IntNum, error) {
	if o.Sign() == 0 {
		return Zero, ErrZeroDivision
	}
	if n.IsSmall() && o.IsSmall() {
		return IntNum{small: n.small / o.small}, nil
	}
	q := new(big.Int).Quo(n.asBig(), o.asBig())
	return normalize(q), nil
}

// Mod is the truncating-division remainder.
func (n IntNum) Mod(o IntNum) (IntNum, error) {
	if o.Sign() == 0 {
		return Zero, ErrZeroDivision
	}
	if n.IsSmall() && o.IsSmall() {
		return IntNum{small: n.small % o.small}, nil
	}
	r := new(big.Int).Rem(n.asBig(), o.asBig())
	return normalize(r), nil
}

func (n IntNum) Neg() IntNum {
	if n.IsSmall() && n.small != -1<<63 {
		return IntNum{small: -n.small}
	}
	return normalize(new(big.Int).Neg(n.asBig()))
}

func (n IntNum) Abs() IntNum {
	if n.Sign() < 0 {
		return n.Neg()
	}
	return n
}

func (n IntNum) And(o IntNum) IntNum { return normalize(new(big.Int).And(n.asBig(), o.asBig())) }
func (n IntNum) Or(o IntNum) IntNum  { return normalize(new(big.Int).Or(n.asBig(), o.asBig())) }
func (n IntNum) Xor(o IntNum) IntNum { return normalize(new(big.Int).Xor(n.asBig(), o.asBig())) }
func (n IntNum) Not() IntNum         { return normalize(new(big.Int).Not(n.asBig())) }

func (n IntNum) Shl(bits uint) IntNum { return normalize(new(big.Int).Lsh(n.asBig(), bits)) }
func (n IntNum) Shr(bits uint) IntNum { return normalize(new(big.Int).Rsh(n.asBig(), bits)) }

// Cmp returns -1, 0, or 1 as n is less than, equal to, or greater than o.
func (n IntNum) Cmp(o IntNum) int {
	if n.IsSmall() && o.IsSmall() {
		switch {
		case n.small < o.small:
			return -1
		case n.small > o.small:
			return 1
		default:
			return 0
		}
	}
	return n.asBig().Cmp(o.asBig())
}

func (n IntNum) Equal(o IntNum) bool { return n.Cmp(o) == 0 }

// Sign returns -1, 0, or 1 for the sign of n.
func (n IntNum) Sign() int {
	if n.IsSmall() {
		switch {
		case n.small < 0:
			return -1
		case n.small > 0:
			return 1
		default:
			return 0
		}
	}
	return n.big.Sign()
}

// GetInt returns n as a machine int64, with ok=false if the value does
// not fit; v is then saturated to the nearest int64 bound (saturation
// flag per spec.md §4.1).
func (n IntNum) GetInt() (v int64, ok bool) {
	if n.IsSmall() {
		return n.small, true
	}
	if n.big.IsInt64() {
		return n.big.Int64(), true
	}
	if n.big.Sign() < 0 {
		return -1 << 63, false
	}
	return 1<<63 - 1, false
}

// GetUInt returns n as a machine uint64, with ok=false if the value is
// negative (v is then 0) or does not fit (v is then the largest uint64).
func (n IntNum) GetUInt() (v uint64, ok bool) {
	b := n.asBig()
	if b.Sign() < 0 {
		return 0, false
	}
	if !b.IsUint64() {
		return ^uint64(0), false
	}
	return b.Uint64(), true
}

func (n IntNum) String() string {
	if n.IsSmall() {
		return fmt.Sprintf("%d", n.small)
	}
	return n.big.String()
}

// ErrZeroDivision is returned by Div/Mod on a zero divisor.
var ErrZeroDivision = fmt.Errorf("intnum: division by zero")

// FitsSigned reports whether n fits in a signed two's-complement field of
// the given bit width.
func (n IntNum) FitsSigned(bits uint) bool {
	if bits >= 64 {
		lo := new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), bits-1))
		hi := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), bits-1), big.NewInt(1))
		b := n.asBig()
		return b.Cmp(lo) >= 0 && b.Cmp(hi) <= 0
	}
	lo := -(int64(1) << (bits - 1))
	hi := int64(1)<<(bits-1) - 1
	v, ok := n.GetInt()
	return ok && v >= lo && v <= hi
}

// FitsUnsigned reports whether n fits in an unsigned field of the given
// bit width.
func (n IntNum) FitsUnsigned(bits uint) bool {
	if n.Sign() < 0 {
		return false
	}
	if bits >= 64 {
		hi := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), bits), big.NewInt(1))
		return n.asBig().Cmp(hi) <= 0
	}
	v, ok := n.GetUInt()
	return ok && v <= (uint64(1)<<bits)-1
}

// ToBytes serializes n to an N-bit little- or big-endian byte sequence,
// truncating to the low N bits and reporting overflow if the value did not
// fit in either the signed or unsigned N-bit range (spec.md §4.1).
func (n IntNum) ToBytes(bits uint, bigEndian bool) (out []byte, overflow bool) {
	nbytes := (bits + 7) / 8
	out = make([]byte, nbytes)

	mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), bits), big.NewInt(1))
	truncated := new(big.Int).And(n.asBig(), mask)

	buf := truncated.Bytes() // big-endian, no leading zero padding
	// place into out, right-aligned (big-endian within nbytes)
	copy(out[int(nbytes)-len(buf):], buf)

	if !bigEndian {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}

	overflow = !n.FitsSigned(bits) && !n.FitsUnsigned(bits)
	return out, overflow
}
