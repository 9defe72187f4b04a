package optimize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yasmgo/internal/bytecode"
	"yasmgo/internal/diag"
	"yasmgo/internal/expr"
	"yasmgo/internal/intnum"
	"yasmgo/internal/loc"
	"yasmgo/internal/object"
	"yasmgo/internal/symbol"
)

// TestForwardLEB128Grows builds: [leb128(end-here)] [reserve 200] [label end]
// so the LEB128's own watched distance starts at the optimistic 1-byte
// guess (CalcLen runs before "end" has an offset) but must grow to 2
// bytes once relaxation sees the true ~201-byte distance (spec.md §4.5
// scenario: forward reference whose length depends on a not-yet-placed
// label).
func TestForwardLEB128Grows(t *testing.T) {
	sec := object.NewSection(".text")

	tbl := symbol.NewTable()
	endSym := tbl.GetOrCreate("end")

	lebBC := bytecode.NewLEB128Bytecode(
		expr.Binary(expr.OpSub, expr.Sym(endSym), expr.Loc(sec.StartLocation())),
		false,
	)
	sec.Append(lebBC)

	reserve := bytecode.NewReserveBytecode(expr.Int(intnum.FromInt64(200)))
	sec.Append(reserve)

	require.NoError(t, endSym.DefineLabel(loc.Location{BC: reserve, Offset: 200}, diag.Pos{}))
	// the label sits at reserve's end, 200 bytes past its start, which
	// InitialLayout places at offset 1 (right after the 1-byte optimistic
	// LEB128 guess), so the first relaxation pass sees a distance of 201.

	sink := diag.NewSink(false)
	err := optimizeSection(sec, sink)
	require.NoError(t, err)

	length, ok := lebBC.Len()
	require.True(t, ok)
	assert.Equal(t, uint64(2), length) // 201 no longer fits in 1 LEB128 byte
}

// TestOrgSetsSectionVMA exercises the bin backend's base-address
// resolution (spec.md §4.4 "Org"): an ORG bytecode sitting right at the
// start of a section folds its target straight into the section's VMA.
func TestOrgSetsSectionVMA(t *testing.T) {
	sec := object.NewSection(".text")
	sec.Append(bytecode.NewOrgBytecode(0x7c00))
	sec.Append(bytecode.NewDataBytecode([]bytecode.DataItem{{Kind: bytecode.DataBytes, Bytes: []byte{0x90}}}))

	sink := diag.NewSink(false)
	require.NoError(t, optimizeSection(sec, sink))
	assert.False(t, sink.HasErrors())
	assert.EqualValues(t, 0x7c00, sec.VMA())
}

// TestOrgAfterContentFoldsOffset places ORG after some bytes have already
// been emitted: the base address must account for that offset rather
// than treating the target as the section's literal start address.
func TestOrgAfterContentFoldsOffset(t *testing.T) {
	sec := object.NewSection(".text")
	sec.Append(bytecode.NewDataBytecode([]bytecode.DataItem{{Kind: bytecode.DataBytes, Bytes: []byte{0x90, 0x90}}}))
	sec.Append(bytecode.NewOrgBytecode(0x102))

	sink := diag.NewSink(false)
	require.NoError(t, optimizeSection(sec, sink))
	assert.False(t, sink.HasErrors())
	assert.EqualValues(t, 0x100, sec.VMA())
}

// TestOrgBehindContentErrors rejects an ORG whose target would fall
// behind content already emitted ahead of it in the section.
func TestOrgBehindContentErrors(t *testing.T) {
	sec := object.NewSection(".text")
	sec.Append(bytecode.NewDataBytecode([]bytecode.DataItem{{Kind: bytecode.DataBytes, Bytes: []byte{0x90, 0x90, 0x90, 0x90}}}))
	sec.Append(bytecode.NewOrgBytecode(1))

	sink := diag.NewSink(false)
	err := optimizeSection(sec, sink)
	assert.Error(t, err)
}

// TestOrgConflictingBaseErrors rejects two ORG directives in the same
// section whose targets imply different base addresses.
func TestOrgConflictingBaseErrors(t *testing.T) {
	sec := object.NewSection(".text")
	sec.Append(bytecode.NewOrgBytecode(0x100))
	sec.Append(bytecode.NewDataBytecode([]bytecode.DataItem{{Kind: bytecode.DataBytes, Bytes: []byte{0x90}}}))
	sec.Append(bytecode.NewOrgBytecode(0x300))

	sink := diag.NewSink(false)
	err := optimizeSection(sec, sink)
	assert.Error(t, err)
}
