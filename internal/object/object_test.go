package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendSectionDuplicateFails(t *testing.T) {
	o := New("x86", "in.asm", "out.o")
	require.NoError(t, o.AppendSection(NewSection(".text")))
	err := o.AppendSection(NewSection(".text"))
	assert.Error(t, err)
}

func TestCurrentSectionDefaultsToFirst(t *testing.T) {
	o := New("x86", "in.asm", "out.o")
	text := NewSection(".text")
	require.NoError(t, o.AppendSection(text))
	require.NoError(t, o.AppendSection(NewSection(".data")))
	assert.Equal(t, text, o.CurrentSection())

	require.NoError(t, o.SetCurrentSection(".data"))
	assert.Equal(t, ".data", o.CurrentSection().Name())

	assert.Error(t, o.SetCurrentSection(".bss"))
}

func TestSectionStartLocationValid(t *testing.T) {
	s := NewSection(".text")
	loc := s.StartLocation()
	assert.True(t, loc.Valid())
	assert.Equal(t, uint64(0), loc.Offset)
}

func TestAssocDataRoundTrip(t *testing.T) {
	s := NewSection(".text")
	s.SetAssocData("elf.shtype", 1)
	v, ok := s.AssocData("elf.shtype")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = s.AssocData("elf.missing")
	assert.False(t, ok)
}

func TestObjectAssocSymbolData(t *testing.T) {
	o := New("x86", "in.asm", "out.o")
	sym := o.Symbols().GetOrCreate("foo")
	o.SetAssocSymbolData(sym, "coff.secnum", 2)
	v, ok := o.AssocSymbolData(sym, "coff.secnum")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}
