package gas

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
	obj := object.New("x86", "t.s", "t.o")
	sec := object.NewSection(".text")
	sec.SetIsDefault(true)
	sec.SetIsCode(true)
	require.NoError(t, obj.AppendSection(sec))
	return obj, x86.New(), directive.NewRegistry(), diag.NewSink(false)
}

func parseAll(t *testing.T, src string) (*object.Object, *diag.Sink) {
	t.Helper()
	obj, a, dirs, sink := newTestObj(t)
	p := New(strings.NewReader(src), "t.s", obj, a, dirs, sink)
	require.NoError(t, p.Parse())
	return obj, sink
}

func TestLabelDefinesSymbol(t *testing.T) {
	obj, sink := parseAll(t, "start:\n\tnop\n")
	require.False(t, sink.HasErrors(), "%v", sink.All())

	sym, ok := obj.Symbols().Lookup("start")
	require.True(t, ok, "expected symbol start to exist")
	_, ok = sym.Label()
	assert.True(t, ok, "expected start to carry a label location")
}

func TestEquDirective(t *testing.T) {
	obj, sink := parseAll(t, ".equ FOO, 1+2*3\n")
	require.False(t, sink.HasErrors(), "%v", sink.All())

	sym, ok := obj.Symbols().Lookup("FOO")
	require.True(t, ok, "expected FOO to exist")
	e, ok := sym.Equ()
	require.True(t, ok, "expected FOO to be EQU-valued")
	n, ok := e.AsIntNum()
	require.True(t, ok, "expected FOO's value to be constant")
	got, _ := n.GetInt()
	assert.Equal(t, int64(7), got)
}

// TestEquChainResolvesAtUse exercises spec.md §8 scenario S3: ".equ a,
// b" / ".equ b, 7" / ".long a" must emit the constant 7, not a bogus
// relocation against an unresolved EQU symbol (a's own definition can't
// fold, since b doesn't exist yet at that point).
func TestEquChainResolvesAtUse(t *testing.T) {
	obj, sink := parseAll(t, ".equ a, b\n.equ b, 7\n.long a\n")
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

func TestGloblExternComm(t *testing.T) {
	obj, sink := parseAll(t, ".globl bar\n.extern foo\n.comm baz, 8\n")
	require.False(t, sink.HasErrors(), "%v", sink.All())

	bar, _ := obj.Symbols().Lookup("bar")
	assert.True(t, bar.Visibility().Has(symbol.Global))
	foo, _ := obj.Symbols().Lookup("foo")
	assert.True(t, foo.Visibility().Has(symbol.Extern))
	baz, _ := obj.Symbols().Lookup("baz")
	assert.True(t, baz.Visibility().Has(symbol.Common))
}

func TestCommRecordsSize(t *testing.T) {
	obj, sink := parseAll(t, ".comm baz, 8\n")
	require.False(t, sink.HasErrors(), "%v", sink.All())

	baz, ok := obj.Symbols().Lookup("baz")
	require.True(t, ok)
	size, ok := baz.CommonSize()
	require.True(t, ok, "expected baz to carry a COMMON size")
	assert.EqualValues(t, 8, size)
}

func TestLongDirectiveProducesData(t *testing.T) {
	obj, sink := parseAll(t, ".long 1, 2, 3\n")
	require.False(t, sink.HasErrors(), "%v", sink.All())

	var data *bytecode.Bytecode
	for _, bc := range obj.CurrentSection().Bytecodes().All() {
		if bc.Kind() == bytecode.KindData {
			data = bc
		}
	}
	assert.NotNil(t, data, "expected a KindData bytecode")
}

func TestAsciiDirective(t *testing.T) {
	obj, sink := parseAll(t, `.asciz "hi"`+"\n")
	require.False(t, sink.HasErrors(), "%v", sink.All())

	var data *bytecode.Bytecode
	for _, bc := range obj.CurrentSection().Bytecodes().All() {
		if bc.Kind() == bytecode.KindData {
			data = bc
		}
	}
	assert.NotNil(t, data, "expected a KindData bytecode for .asciz")
}

// TestOperandOrderReversed exercises the dialect's one structural
// difference from nasm: "movl $1, %eax" (AT&T src,dst) must land as the
// same dst=eax,src=1 operand pair "mov eax, 1" produces in nasm.
func TestOperandOrderReversed(t *testing.T) {
	obj, sink := parseAll(t, "movl $1, %eax\n")
	require.False(t, sink.HasErrors(), "%v", sink.All())

	var insn *bytecode.Bytecode
	for _, bc := range obj.CurrentSection().Bytecodes().All() {
		if bc.Kind() == bytecode.KindInsn {
			insn = bc
		}
	}
	assert.NotNil(t, insn, "expected a KindInsn bytecode for 'movl $1, %%eax'")
}

func TestMemoryOperandBaseIndexScale(t *testing.T) {
	obj, a, dirs, sink := newTestObj(t)
	p := New(strings.NewReader("-4(%ebp,%eax,4)\n"), "t.s", obj, a, dirs, sink)
	op, err := p.operand()
	require.NoError(t, err)
	require.False(t, sink.HasErrors(), "%v", sink.All())

	require.NotNil(t, op.Mem, "expected a memory operand")
	require.NotNil(t, op.Mem.Base)
	assert.Equal(t, "ebp", op.Mem.Base.RegisterName())
	require.NotNil(t, op.Mem.Index)
	assert.Equal(t, "eax", op.Mem.Index.RegisterName())
	assert.EqualValues(t, 4, op.Mem.Scale)

	n, ok := op.Mem.Disp.AsIntNum()
	require.True(t, ok, "expected a constant displacement")
	got, _ := n.GetInt()
	assert.Equal(t, int64(-4), got)
}

func TestShortSectionDirectives(t *testing.T) {
	obj, sink := parseAll(t, ".data\n.long 1\n.text\nnop\n")
	require.False(t, sink.HasErrors(), "%v", sink.All())

	_, ok := obj.FindSection(".data")
	assert.True(t, ok, "expected .data section to be created")
	assert.Equal(t, ".text", obj.CurrentSection().Name())
}

func TestJmpProducesJumpRelBytecode(t *testing.T) {
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

func TestSplitMnemonic(t *testing.T) {
	cases := []struct {
		in       string
		wantRoot string
		wantBits uint
	}{
		{"movl", "mov", 32},
		{"movb", "mov", 8},
		{"cmpq", "cmp", 64},
		{"call", "call", 0}, // must NOT strip: "cal" is not a known root
		{"pop", "pop", 0},
	}
	for _, c := range cases {
		root, bits := splitMnemonic(c.in)
		assert.Equal(t, c.wantRoot, root, "splitMnemonic(%q) root", c.in)
		assert.Equal(t, c.wantBits, bits, "splitMnemonic(%q) bits", c.in)
	}
}
