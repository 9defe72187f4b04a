package elf

import (
	"bytes"
	"debug/elf"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yasmgo/internal/bytecode"
	"yasmgo/internal/diag"
	"yasmgo/internal/expr"
	"yasmgo/internal/intnum"
	"yasmgo/internal/object"
)

// TestOutputRoundTripsThroughDebugElf builds a .text section with one
// data byte and parses the emitted bytes back with debug/elf.NewFile,
// the cheapest way to confirm the hand-rolled header/section-table
// layout is actually valid ELF and not just internally consistent.
func TestOutputRoundTripsThroughDebugElf(t *testing.T) {
	obj := object.New("x86", "t.asm", "t.o")
	sec := object.NewSection(".text")
	sec.SetIsDefault(true)
	sec.SetIsCode(true)
	require.NoError(t, obj.AppendSection(sec))
	sec.Append(bytecode.NewDataBytecode([]bytecode.DataItem{{Kind: bytecode.DataBytes, Bytes: []byte{0x90}}}))
	_, err := sec.Bytecodes().InitialLayout()
	require.NoError(t, err)

	var buf bytes.Buffer
	f := New64()
	require.NoError(t, f.Output(&buf, obj, nil, diag.NewSink(false)))

	ef, err := elf.NewFile(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer ef.Close()

	text := ef.Section(".text")
	require.NotNil(t, text, "expected a .text section header")
	assert.Equal(t, elf.SHT_PROGBITS, text.Type)
	assert.EqualValues(t, 1, text.Size)
}

// TestOutputSizesBSSSection exercises the BSS-sizing fix: a .bss section
// holding a 16-byte RESERVE must report sh_size 16 and SHT_NOBITS, with
// no bytes actually written to the file for it.
func TestOutputSizesBSSSection(t *testing.T) {
	obj := object.New("x86", "t.asm", "t.o")
	text := object.NewSection(".text")
	text.SetIsDefault(true)
	text.SetIsCode(true)
	require.NoError(t, obj.AppendSection(text))
	text.Append(bytecode.NewDataBytecode([]bytecode.DataItem{{Kind: bytecode.DataBytes, Bytes: []byte{0x90}}}))
	_, err := text.Bytecodes().InitialLayout()
	require.NoError(t, err)

	bss := object.NewSection(".bss")
	bss.SetBSS(true)
	require.NoError(t, obj.AppendSection(bss))
	bss.Append(bytecode.NewReserveBytecode(expr.Int(intnum.FromInt64(16))))
	_, err = bss.Bytecodes().InitialLayout()
	require.NoError(t, err)

	var buf bytes.Buffer
	f := New64()
	require.NoError(t, f.Output(&buf, obj, nil, diag.NewSink(false)))

	ef, err := elf.NewFile(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer ef.Close()

	sec := ef.Section(".bss")
	require.NotNil(t, sec, "expected a .bss section header")
	assert.Equal(t, elf.SHT_NOBITS, sec.Type)
	assert.EqualValues(t, 16, sec.Size, "reserved space must be reflected in sh_size")
}
