package symbol

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

func TestDefineLabelThenRedefineFails(t *testing.T) {
	s := New("start")
	require.NoError(t, s.DefineLabel(loc.Location{BC: fakeBC{id: 1}}, diag.Pos{Line: 1}))
	assert.True(t, s.Status().Has(Defined))
	assert.True(t, s.Status().Has(Valued))

	err := s.DefineEqu(expr.Int(intnum.FromInt64(1)), diag.Pos{Line: 2})
	assert.Error(t, err)
}

func TestExternCommonMutuallyExclusive(t *testing.T) {
	s := New("foo")
	require.NoError(t, s.Declare(Extern, diag.Pos{}))
	err := s.Declare(Common, diag.Pos{})
	assert.Error(t, err)
}

func TestDeclareBothExternAndCommonInOneCallFails(t *testing.T) {
	s := New("foo")
	err := s.Declare(Extern|Common, diag.Pos{})
	assert.Error(t, err)
}

func TestCommonSize(t *testing.T) {
	s := New("buf")
	_, ok := s.CommonSize()
	assert.False(t, ok, "unset CommonSize should report not-ok")

	require.NoError(t, s.Declare(Common, diag.Pos{}))
	s.SetCommonSize(64)
	size, ok := s.CommonSize()
	require.True(t, ok)
	assert.EqualValues(t, 64, size)
}

func TestAbsoluteSymbol(t *testing.T) {
	tbl := NewTable()
	abs := tbl.Absolute()
	assert.True(t, abs.IsAbsolute())
	v, ok := abs.Equ()
	require.True(t, ok)
	n, ok := v.AsIntNum()
	require.True(t, ok)
	got, _ := n.GetInt()
	assert.Equal(t, int64(0), got)
}

func TestFinalizeUndefinedBecomesExternOrErrors(t *testing.T) {
	tbl := NewTable()
	s := tbl.GetOrCreate("missing")
	s.Use(diag.Pos{Line: 5})

	sink := diag.NewSink(false)
	n := tbl.Finalize(sink, false)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, sink.ErrorCount())

	tbl2 := NewTable()
	s2 := tbl2.GetOrCreate("missing2")
	s2.Use(diag.Pos{Line: 5})
	sink2 := diag.NewSink(false)
	n2 := tbl2.Finalize(sink2, true)
	assert.Equal(t, 0, n2)
	assert.True(t, s2.Visibility().Has(Extern))
}
