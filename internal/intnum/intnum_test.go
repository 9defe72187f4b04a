package intnum

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArithmeticSmallPath(t *testing.T) {
	a := FromInt64(40)
	b := FromInt64(2)
	assert.Equal(t, int64(42), mustInt(t, a.Add(b)))
	assert.Equal(t, int64(38), mustInt(t, a.Sub(b)))
	assert.Equal(t, int64(80), mustInt(t, a.Mul(b)))

	q, err := a.Div(b)
	require.NoError(t, err)
	assert.Equal(t, int64(20), mustInt(t, q))
}

func TestDivByZero(t *testing.T) {
	_, err := FromInt64(1).Div(Zero)
	assert.ErrorIs(t, err, ErrZeroDivision)
	_, err = FromInt64(1).Mod(Zero)
	assert.ErrorIs(t, err, ErrZeroDivision)
}

func TestOverflowPromotesToBig(t *testing.T) {
	max := FromInt64(1<<63 - 1)
	one := FromInt64(1)
	sum := max.Add(one)
	assert.False(t, sum.IsSmall())

	want := new(big.Int).Add(big.NewInt(1<<63-1), big.NewInt(1))
	assert.Equal(t, want.String(), sum.String())
}

func TestLEB128Width(t *testing.T) {
	// unsigned LEB128 width boundaries, spec.md §8 item 7
	assert.True(t, FromInt64(127).FitsUnsigned(7))
	assert.False(t, FromInt64(128).FitsUnsigned(7))
	assert.True(t, FromInt64(-64).FitsSigned(7))
	assert.False(t, FromInt64(-65).FitsSigned(7))
}

func TestToBytesLittleEndianTruncates(t *testing.T) {
	n := FromInt64(0x1_0000_00FF)
	bytes, overflow := n.ToBytes(32, false)
	require.Len(t, bytes, 4)
	assert.Equal(t, []byte{0xFF, 0, 0, 0}, bytes)
	assert.True(t, overflow)
}

func TestToBytesBigEndianExact(t *testing.T) {
	n := FromInt64(0x0102)
	bytes, overflow := n.ToBytes(16, true)
	assert.Equal(t, []byte{0x01, 0x02}, bytes)
	assert.False(t, overflow)
}

func TestBitwiseOps(t *testing.T) {
	a := FromInt64(0b1100)
	b := FromInt64(0b1010)
	assert.Equal(t, int64(0b1000), mustInt(t, a.And(b)))
	assert.Equal(t, int64(0b1110), mustInt(t, a.Or(b)))
	assert.Equal(t, int64(0b0110), mustInt(t, a.Xor(b)))
	assert.Equal(t, int64(0b1100<<2), mustInt(t, a.Shl(2)))
}

func mustInt(t *testing.T, n IntNum) int64 {
	t.Helper()
	v, ok := n.GetInt()
	require.True(t, ok)
	return v
}
