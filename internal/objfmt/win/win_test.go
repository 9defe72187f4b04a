package win

import (
	"bytes"
	"debug/pe"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yasmgo/internal/bytecode"
	"yasmgo/internal/diag"
	"yasmgo/internal/expr"
	"yasmgo/internal/intnum"
	"yasmgo/internal/object"
)

// TestOutputRoundTripsThroughDebugPE builds a .text section with one
// data byte and parses the emitted bytes back with debug/pe.NewFile, the
// cheapest way to confirm the hand-rolled header/section-table layout is
// actually valid COFF and not just internally consistent. pe.NewFile
// always reads a 96-byte header probe first, more than this object holds,
// so the bytes are handed over with zero padding after the string table.
func TestOutputRoundTripsThroughDebugPE(t *testing.T) {
	obj := object.New("x86", "t.asm", "t.o")
	sec := object.NewSection(".text")
	sec.SetIsDefault(true)
	sec.SetIsCode(true)
	require.NoError(t, obj.AppendSection(sec))
	sec.Append(bytecode.NewDataBytecode([]bytecode.DataItem{{Kind: bytecode.DataBytes, Bytes: []byte{0x90}}}))
	_, err := sec.Bytecodes().InitialLayout()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, New64().Output(&buf, obj, nil, diag.NewSink(false)))

	padded := append(buf.Bytes(), make([]byte, 96)...)
	pf, err := pe.NewFile(bytes.NewReader(padded))
	require.NoError(t, err)
	defer pf.Close()

	text := pf.Section(".text")
	require.NotNil(t, text, "expected a .text section header")
	assert.EqualValues(t, 1, text.Size) // Size is debug/pe's name for SizeOfRawData
}

// TestOutputSizesBSSSection exercises the BSS-sizing fix: a .bss section
// holding a 32-byte RESERVE must report VirtualSize 32 and a zero
// SizeOfRawData, with IMAGE_SCN_CNT_UNINITIALIZED_DATA characteristics.
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
	bss.Append(bytecode.NewReserveBytecode(expr.Int(intnum.FromInt64(32))))
	_, err = bss.Bytecodes().InitialLayout()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, New64().Output(&buf, obj, nil, diag.NewSink(false)))

	pf, err := pe.NewFile(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer pf.Close()

	sec := pf.Section(".bss")
	require.NotNil(t, sec, "expected a .bss section header")
	assert.EqualValues(t, 32, sec.VirtualSize, "reserved space must be reflected in VirtualSize")
	assert.EqualValues(t, 0, sec.Size, "BSS has no bytes on disk")
	assert.NotZero(t, sec.Characteristics&imageSCNCntUninitializedData)
}
