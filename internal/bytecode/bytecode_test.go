package bytecode

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yasmgo/internal/expr"
	"yasmgo/internal/intnum"
	"yasmgo/internal/value"
)

func TestDataBytecodeOutput(t *testing.T) {
	bc := NewDataBytecode([]DataItem{{Kind: DataBytes, Bytes: []byte{0xde, 0xad}}})
	c := NewContainer()
	c.Append(bc)
	spans, err := c.InitialLayout()
	require.NoError(t, err)
	assert.Empty(t, spans)
	assert.Equal(t, uint64(2), bc.length)

	var buf bytes.Buffer
	relocs, err := bc.Output(&buf)
	require.NoError(t, err)
	assert.Empty(t, relocs)
	assert.Equal(t, []byte{0xde, 0xad}, buf.Bytes())
}

func TestDataValueFieldEmitsReloc(t *testing.T) {
	v, err := value.FinalizeScan(expr.Sym(fakeSym{name: "foo"}), 32)
	require.NoError(t, err)
	bc := NewDataBytecode([]DataItem{{Kind: DataValueField, Val: v, SizeBits: 32}})
	c := NewContainer()
	c.Append(bc)
	_, err = c.InitialLayout()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), bc.length)

	var buf bytes.Buffer
	relocs, err := bc.Output(&buf)
	require.NoError(t, err)
	require.Len(t, relocs, 1)
	assert.Equal(t, uint64(4), uint64(buf.Len()))
}

func TestReserveBytecode(t *testing.T) {
	bc := NewReserveBytecode(expr.Int(intnum.FromInt64(16)))
	c := NewContainer()
	c.Append(bc)
	_, err := c.InitialLayout()
	require.NoError(t, err)
	assert.Equal(t, uint64(16), bc.length)

	var buf bytes.Buffer
	_, err = bc.Output(&buf)
	require.NoError(t, err)
	assert.Equal(t, 16, buf.Len())
}

func TestAlignBytecodeRecomputesOnOffsetShift(t *testing.T) {
	data := NewDataBytecode([]DataItem{{Kind: DataBytes, Bytes: []byte{1, 2, 3}}})
	al := NewAlignBytecode(4, nil) // align to 16
	c := NewContainer()
	c.Append(data)
	c.Append(al)
	_, err := c.InitialLayout()
	require.NoError(t, err)
	assert.Equal(t, uint64(13), al.length) // offset 3 -> pad to 16

	// Simulate an upstream expansion shifting data's length to 5 bytes.
	data.length = 5
	require.NoError(t, c.Relayout(func(Span) {}))
	assert.Equal(t, uint64(11), al.length) // offset 5 -> pad to 16
}

func TestLEB128BytecodeWidths(t *testing.T) {
	bc := NewLEB128Bytecode(expr.Int(intnum.FromInt64(127)), false)
	c := NewContainer()
	c.Append(bc)
	_, err := c.InitialLayout()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), bc.length)

	bc2 := NewLEB128Bytecode(expr.Int(intnum.FromInt64(128)), false)
	c2 := NewContainer()
	c2.Append(bc2)
	_, err = c2.InitialLayout()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), bc2.length)
}

func TestLEB128SignedRoundTrip(t *testing.T) {
	for _, n := range []int64{0, 1, -1, 63, -64, 64, -65, 1000000} {
		length := leb128Len(intnum.FromInt64(n), true)
		out := encodeLEB128(intnum.FromInt64(n), true, length)
		got := decodeSignedLEB128(out)
		assert.Equal(t, n, got, "round trip of %d", n)
	}
}

func decodeSignedLEB128(b []byte) int64 {
	var result int64
	var shift uint
	var idx int
	for {
		c := b[idx]
		idx++
		result |= int64(c&0x7f) << shift
		shift += 7
		if c&0x80 == 0 {
			if shift < 64 && c&0x40 != 0 {
				result |= -1 << shift
			}
			break
		}
	}
	return result
}

type fakeSym struct{ name string }

func (f fakeSym) SymbolName() string { return f.name }
