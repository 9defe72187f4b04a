package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yasmgo/internal/intnum"
	"yasmgo/internal/loc"
)

func TestSimplifyConstantFold(t *testing.T) {
	e := Binary(OpAdd, Int(intnum.FromInt64(2)), Int(intnum.FromInt64(3)))
	got, err := e.Simplify(false, nil)
	require.NoError(t, err)
	v, ok := got.AsIntNum()
	require.True(t, ok)
	assert.Equal(t, "5", v.String())
}

func TestSimplifyIdentityRemoval(t *testing.T) {
	sym := testSym{name: "x"}
	e := Binary(OpAdd, Sym(sym), Int(intnum.Zero))
	got, err := e.Simplify(false, nil)
	require.NoError(t, err)
	ref, ok := got.AsSymbol()
	require.True(t, ok)
	assert.Equal(t, "x", ref.SymbolName())
}

func TestSimplifyMulByZero(t *testing.T) {
	sym := testSym{name: "x"}
	e := Binary(OpMul, Sym(sym), Int(intnum.Zero))
	got, err := e.Simplify(false, nil)
	require.NoError(t, err)
	v, ok := got.AsIntNum()
	require.True(t, ok)
	assert.Equal(t, int64(0), mustInt(t, v))
}

type fakeBC struct{ id uint64 }

func (f fakeBC) BCID() uint64                       { return f.id }
func (f fakeBC) ResolvedOffset() (uint64, bool)     { return 0, true }
func (f fakeBC) Len() (uint64, bool)                { return 0, true }

type testSym struct {
	name string
	loc  loc.Location
	has  bool
}

func (s testSym) SymbolName() string { return s.name }
func (s testSym) Label() (loc.Location, bool) {
	return s.loc, s.has
}

func TestSimplifyCalcDist(t *testing.T) {
	bc := fakeBC{id: 1}
	a := testSym{name: "a", loc: loc.Location{BC: bc, Offset: 10}, has: true}
	b := testSym{name: "b", loc: loc.Location{BC: bc, Offset: 2}, has: true}

	dist := func(x, y loc.Location) (intnum.IntNum, bool) {
		if !loc.SameBytecode(x, y) {
			return intnum.Zero, false
		}
		return intnum.FromInt64(int64(x.Offset) - int64(y.Offset)), true
	}

	e := Binary(OpSub, Sym(a), Sym(b))
	got, err := e.Simplify(true, dist)
	require.NoError(t, err)
	v, ok := got.AsIntNum()
	require.True(t, ok)
	assert.Equal(t, int64(8), mustInt(t, v))
}

func TestExtractSegOff(t *testing.T) {
	e := Binary(OpSegOff, Sym(testSym{name: "cs"}), Int(intnum.FromInt64(0x10)))
	seg, off, ok := e.ExtractSegOff()
	require.True(t, ok)
	s, _ := seg.AsSymbol()
	assert.Equal(t, "cs", s.SymbolName())
	v, _ := off.AsIntNum()
	assert.Equal(t, int64(0x10), mustInt(t, v))
}

func mustInt(t *testing.T, n intnum.IntNum) int64 {
	t.Helper()
	v, ok := n.GetInt()
	require.True(t, ok)
	return v
}
