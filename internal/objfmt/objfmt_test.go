package objfmt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yasmgo/internal/expr"
	"yasmgo/internal/intnum"
	"yasmgo/internal/loc"
	"yasmgo/internal/symbol"
	"yasmgo/internal/value"
)

// TestClassifyValuePropagatesAddend exercises spec.md §4.7's "the
// relocation addend itself only carries the expression's own constant
// term" contract (elf.go's doc comment): a relative reference with a
// non-zero constant offset (e.g. "dd foo+4") must show up as
// Relocation.Addend, since every RELA-style backend writes it straight
// into its native relocation record.
func TestClassifyValuePropagatesAddend(t *testing.T) {
	foo := symbol.New("foo")
	v := &value.Value{
		Abs:      expr.Int(intnum.FromInt64(4)),
		Relative: foo,
		Size:     32,
	}

	r := ClassifyValue(v, loc.Location{}, nil)
	assert.Equal(t, "foo", r.Symbol)
	assert.Equal(t, int64(4), r.Addend)
	assert.Equal(t, RelocAbsolute, r.Type)
}

// TestClassifyValuePCRelativeAddend covers the negative-addend form
// relJumpEncoder's EXTERN fallback produces: the field-width-negated
// constant term that makes the S + A - P formula land on the true
// PC-relative displacement.
func TestClassifyValuePCRelativeAddend(t *testing.T) {
	foo := symbol.New("foo")
	v := &value.Value{
		Abs:      expr.Int(intnum.FromInt64(-4)),
		Relative: foo,
		Size:     32,
		Flags:    value.IPRelative,
	}

	r := ClassifyValue(v, loc.Location{}, nil)
	require.Equal(t, RelocPCRelative, r.Type)
	assert.Equal(t, int64(-4), r.Addend)
	assert.Equal(t, "foo", r.Symbol)
}
