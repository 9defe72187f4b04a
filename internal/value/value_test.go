package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yasmgo/internal/diag"
	"yasmgo/internal/expr"
	"yasmgo/internal/intnum"
	"yasmgo/internal/loc"
)

type fakeBC struct{ id uint64 }

func (f fakeBC) BCID() uint64                   { return f.id }
func (f fakeBC) ResolvedOffset() (uint64, bool) { return 0, true }
func (f fakeBC) Len() (uint64, bool)            { return 0, true }

type testSym struct {
	name string
	loc  loc.Location
	has  bool
}

func (s testSym) SymbolName() string          { return s.name }
func (s testSym) Label() (loc.Location, bool) { return s.loc, s.has }

func TestFinalizeScanPlainConstant(t *testing.T) {
	e := expr.Int(intnum.FromInt64(42))
	v, err := FinalizeScan(e, 32)
	require.NoError(t, err)
	assert.Nil(t, v.Relative)
	n, ok := v.Abs.AsIntNum()
	require.True(t, ok)
	got, _ := n.GetInt()
	assert.Equal(t, int64(42), got)
}

func TestFinalizeScanRelativePlusConstant(t *testing.T) {
	sym := testSym{name: "foo"}
	e := expr.Binary(expr.OpAdd, expr.Sym(sym), expr.Int(intnum.FromInt64(4)))
	v, err := FinalizeScan(e, 32)
	require.NoError(t, err)
	require.NotNil(t, v.Relative)
	assert.Equal(t, "foo", v.Relative.SymbolName())
	n, ok := v.Abs.AsIntNum()
	require.True(t, ok)
	got, _ := n.GetInt()
	assert.Equal(t, int64(4), got)
}

func TestFinalizeScanRelativeMinusRelative(t *testing.T) {
	a := testSym{name: "a"}
	b := testSym{name: "b"}
	e := expr.Binary(expr.OpSub, expr.Sym(a), expr.Sym(b))
	v, err := FinalizeScan(e, 32)
	require.NoError(t, err)
	require.NotNil(t, v.Relative)
	require.NotNil(t, v.SubtractSymbol)
	assert.Equal(t, "a", v.Relative.SymbolName())
	assert.Equal(t, "b", v.SubtractSymbol.SymbolName())
}

func TestFinalizeScanTooComplex(t *testing.T) {
	a := testSym{name: "a"}
	b := testSym{name: "b"}
	c := testSym{name: "c"}
	e := expr.Binary(expr.OpAdd, expr.Sym(a), expr.Binary(expr.OpAdd, expr.Sym(b), expr.Sym(c)))
	_, err := FinalizeScan(e, 32)
	assert.ErrorIs(t, err, ErrTooComplex)
}

func TestFinalizeScanMultiplyIsTooComplex(t *testing.T) {
	a := testSym{name: "a"}
	e := expr.Binary(expr.OpMul, expr.Sym(a), expr.Int(intnum.FromInt64(4)))
	_, err := FinalizeScan(e, 32)
	assert.ErrorIs(t, err, ErrTooComplex)
}

func TestFinalizeScanWRT(t *testing.T) {
	a := testSym{name: "a"}
	gotSym := testSym{name: "got"}
	e := expr.Binary(expr.OpWRT, expr.Sym(a), expr.Sym(gotSym))
	v, err := FinalizeScan(e, 32)
	require.NoError(t, err)
	require.NotNil(t, v.WRT)
	assert.Equal(t, "got", v.WRT.SymbolName())
	require.NotNil(t, v.Relative)
	assert.Equal(t, "a", v.Relative.SymbolName())
}

func TestOutputBasicNoRelative(t *testing.T) {
	e := expr.Int(intnum.FromInt64(255))
	v, err := FinalizeScan(e, 8)
	require.NoError(t, err)
	out, handled := v.OutputBasic(nil, nil, diag.Pos{})
	require.True(t, handled)
	assert.Equal(t, []byte{0xff}, out)
}

func TestOutputBasicWithRelativeNotHandled(t *testing.T) {
	sym := testSym{name: "foo"}
	e := expr.Sym(sym)
	v, err := FinalizeScan(e, 32)
	require.NoError(t, err)
	_, handled := v.OutputBasic(nil, nil, diag.Pos{})
	assert.False(t, handled)
}

func TestCalcPCRelSub(t *testing.T) {
	bc := fakeBC{id: 7}
	here := loc.Location{BC: bc, Offset: 10}
	there := loc.Location{BC: bc, Offset: 4}

	e, err := FinalizeScan(expr.Loc(there), 32)
	require.NoError(t, err)
	e.SubtractLocation = there
	e.hasSubtractLoc = true
	e.Relative = nil

	dist := func(a, b loc.Location) (intnum.IntNum, bool) {
		if !loc.SameBytecode(a, b) {
			return intnum.Zero, false
		}
		return intnum.FromInt64(int64(a.Offset) - int64(b.Offset)), true
	}

	ok := e.CalcPCRelSub(here, dist)
	assert.True(t, ok)
	assert.True(t, e.Flags.Has(IPRelative))
	assert.False(t, e.HasSubtract())
}
