package nasm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yasmgo/internal/arch/x86"
	"yasmgo/internal/bytecode"
	"yasmgo/internal/diag"
	"yasmgo/internal/directive"
	"yasmgo/internal/object"
	"yasmgo/internal/symbol"
)

func newTestObj(t *testing.T) (*object.Object, *x86.Architecture, *directive.Registry, *diag.Sink) {
	t.Helper()
	obj := object.New("x86", "t.asm", "t.o")
	sec := object.NewSection(".text")
	sec.SetIsDefault(true)
	sec.SetIsCode(true)
	require.NoError(t, obj.AppendSection(sec))
	return obj, x86.New(), directive.NewRegistry(), diag.NewSink(false)
}

func parseAll(t *testing.T, src string) (*object.Object, *diag.Sink) {
	t.Helper()
	obj, a, dirs, sink := newTestObj(t)
	p := New(strings.NewReader(src), "t.asm", obj, a, dirs, sink)
	require.NoError(t, p.Parse())
	return obj, sink
}

func TestLabelDefinesSymbol(t *testing.T) {
	obj, sink := parseAll(t, "start:\n\tnop\n")
	require.False(t, sink.HasErrors(), "%v", sink.All())

	sym, ok := obj.Symbols().Lookup("start")
	require.True(t, ok, "expected symbol start to exist")
	assert.True(t, sym.Status().Has(symbol.Defined))
	_, ok = sym.Label()
	assert.True(t, ok, "expected start to carry a label location")
}

func TestEquDefinesConstant(t *testing.T) {
	obj, sink := parseAll(t, "FOO equ 1+2*3\n")
	require.False(t, sink.HasErrors(), "%v", sink.All())

	sym, ok := obj.Symbols().Lookup("FOO")
	require.True(t, ok, "expected FOO to exist")
	e, ok := sym.Equ()
	require.True(t, ok, "expected FOO to be EQU-valued")
	n, ok := e.AsIntNum()
	require.True(t, ok, "expected FOO's value to be a constant")
	got, _ := n.GetInt()
	assert.Equal(t, int64(7), got, "1+2*3 with * binding tighter than +")
}

func TestDbStringAndExprItems(t *testing.T) {
	obj, sink := parseAll(t, "db 'hi', 65, 1+1\n")
	require.False(t, sink.HasErrors(), "%v", sink.All())

	var data *bytecode.Bytecode
	for _, bc := range obj.CurrentSection().Bytecodes().All() {
		if bc.Kind() == bytecode.KindData {
			data = bc
		}
	}
	assert.NotNil(t, data, "expected a KindData bytecode")
}

// TestEquChainResolvesAtUse exercises spec.md §8 scenario S3: "a equ b" /
// "b equ 7" / "dd a" must emit the constant 7, not a bogus relocation
// against an unresolved EQU symbol (a equ b can't fold at its own
// definition site, since b doesn't exist yet).
func TestEquChainResolvesAtUse(t *testing.T) {
	obj, sink := parseAll(t, "a equ b\nb equ 7\ndd a\n")
	require.False(t, sink.HasErrors(), "%v", sink.All())

	var data *bytecode.Bytecode
	for _, bc := range obj.CurrentSection().Bytecodes().All() {
		if bc.Kind() == bytecode.KindData {
			data = bc
		}
	}
	require.NotNil(t, data, "expected a KindData bytecode")

	c := bytecode.NewContainer()
	c.Append(data)
	_, err := c.InitialLayout()
	require.NoError(t, err)

	var buf strings.Builder
	relocs, err := data.Output(&buf)
	require.NoError(t, err)
	assert.Empty(t, relocs, "a resolved equ chain should need no relocation")
	assert.Equal(t, []byte{7, 0, 0, 0}, []byte(buf.String()))
}

func TestTimesAppliesMultiplier(t *testing.T) {
	obj, sink := parseAll(t, "times 4 db 0\n")
	require.False(t, sink.HasErrors(), "%v", sink.All())

	all := obj.CurrentSection().Bytecodes().All()
	last := all[len(all)-1]
	mult, ok := last.Multiplier()
	require.True(t, ok, "expected TIMES to set a multiplier")
	n, ok := mult.AsIntNum()
	require.True(t, ok, "expected multiplier to be constant")
	got, _ := n.GetInt()
	assert.Equal(t, int64(4), got)
}

func TestAlignAppendsAlignBytecode(t *testing.T) {
	obj, sink := parseAll(t, "align 16\n")
	require.False(t, sink.HasErrors(), "%v", sink.All())

	all := obj.CurrentSection().Bytecodes().All()
	last := all[len(all)-1]
	assert.Equal(t, bytecode.KindAlign, last.Kind())
}

func TestExternGlobalCommon(t *testing.T) {
	obj, sink := parseAll(t, "extern foo\nglobal bar\ncommon baz 8\n")
	require.False(t, sink.HasErrors(), "%v", sink.All())

	foo, _ := obj.Symbols().Lookup("foo")
	assert.True(t, foo.Visibility().Has(symbol.Extern))
	bar, _ := obj.Symbols().Lookup("bar")
	assert.True(t, bar.Visibility().Has(symbol.Global))
	baz, _ := obj.Symbols().Lookup("baz")
	assert.True(t, baz.Visibility().Has(symbol.Common))
}

func TestCommonRecordsSize(t *testing.T) {
	obj, sink := parseAll(t, "common baz 8\n")
	require.False(t, sink.HasErrors(), "%v", sink.All())

	baz, ok := obj.Symbols().Lookup("baz")
	require.True(t, ok)
	size, ok := baz.CommonSize()
	require.True(t, ok, "expected baz to carry a COMMON size")
	assert.EqualValues(t, 8, size)
}

func TestInstructionMovRegImm(t *testing.T) {
	obj, sink := parseAll(t, "mov eax, 1\n")
	require.False(t, sink.HasErrors(), "%v", sink.All())

	var insn *bytecode.Bytecode
	for _, bc := range obj.CurrentSection().Bytecodes().All() {
		if bc.Kind() == bytecode.KindInsn {
			insn = bc
		}
	}
	assert.NotNil(t, insn, "expected a KindInsn bytecode for 'mov eax, 1'")
}

func TestEffectiveAddressBaseIndexScale(t *testing.T) {
	obj, a, dirs, sink := newTestObj(t)
	p := New(strings.NewReader("[ebx+ecx*4+8]\n"), "t.asm", obj, a, dirs, sink)
	op, err := p.operand()
	require.NoError(t, err)
	require.False(t, sink.HasErrors(), "%v", sink.All())

	require.NotNil(t, op.Mem, "expected a memory operand")
	require.NotNil(t, op.Mem.Base)
	assert.Equal(t, "ebx", op.Mem.Base.RegisterName())
	require.NotNil(t, op.Mem.Index)
	assert.Equal(t, "ecx", op.Mem.Index.RegisterName())
	assert.EqualValues(t, 4, op.Mem.Scale)

	n, ok := op.Mem.Disp.AsIntNum()
	require.True(t, ok, "expected a constant displacement")
	got, _ := n.GetInt()
	assert.Equal(t, int64(8), got)
}

func TestJumpRelProducesJumpRelBytecode(t *testing.T) {
	obj, sink := parseAll(t, "start:\njmp start\n")
	require.False(t, sink.HasErrors(), "%v", sink.All())

	var jr *bytecode.Bytecode
	for _, bc := range obj.CurrentSection().Bytecodes().All() {
		if bc.Kind() == bytecode.KindJumpRel {
			jr = bc
		}
	}
	assert.NotNil(t, jr, "expected a KindJumpRel bytecode for 'jmp start'")
}

func TestBitsDirectiveSetsModeBits(t *testing.T) {
	obj, a, dirs, sink := newTestObj(t)
	p := New(strings.NewReader("bits 32\n"), "t.asm", obj, a, dirs, sink)
	require.NoError(t, p.Parse())
	assert.EqualValues(t, 32, a.ModeBits())
}
