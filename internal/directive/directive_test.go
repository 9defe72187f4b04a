package directive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yasmgo/internal/diag"
	"yasmgo/internal/object"
)

func TestDispatchRejectsMissingArg(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("global", ArgRequired, func(info *Info, sink *diag.Sink) error {
		return nil
	}))

	obj := object.New("x86", "in.asm", "out.o")
	err := r.Dispatch("global", &Info{Obj: obj}, diag.NewSink(false))
	assert.Error(t, err)
}

func TestDispatchRejectsNoSection(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("align", NeedsSection, func(info *Info, sink *diag.Sink) error {
		return nil
	}))
	obj := object.New("x86", "in.asm", "out.o")
	err := r.Dispatch("align", &Info{Obj: obj}, diag.NewSink(false))
	assert.Error(t, err)
}

func TestDispatchInvokesHandler(t *testing.T) {
	r := NewRegistry()
	called := false
	require.NoError(t, r.Register("noop", ANY, func(info *Info, sink *diag.Sink) error {
		called = true
		return nil
	}))
	obj := object.New("x86", "in.asm", "out.o")
	require.NoError(t, r.Dispatch("noop", &Info{Obj: obj}, diag.NewSink(false)))
	assert.True(t, called)
}

func TestRegisterDuplicateFails(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("x", ANY, func(*Info, *diag.Sink) error { return nil }))
	err := r.Register("x", ANY, func(*Info, *diag.Sink) error { return nil })
	assert.Error(t, err)
}
