package x86

import (
	"io"

	"yasmgo/internal/bytecode"
	"yasmgo/internal/diag"
	"yasmgo/internal/intnum"
	"yasmgo/internal/value"
)

// fixedEncoder is a bytecode.Encoder for instructions whose length never
// depends on a not-yet-resolved symbol: a fixed prefix (REX/opcode/ModRM)
// plus an optional trailing immediate field that may itself be a
// relocatable Value (mirrors bytecode.DataItem's DataValueField handling
// in data.go, since the teacher's encoder also emits raw opcode bytes
// followed by a separately-patched immediate).
type fixedEncoder struct {
	prefix  []byte
	imm     *value.Value
	immSize uint // bytes; 0 if no immediate field
}

func (f *fixedEncoder) CalcLen(bc *bytecode.Bytecode, addSpan func(bytecode.Span)) (uint64, error) {
	return uint64(len(f.prefix)) + uint64(f.immSize), nil
}

func (f *fixedEncoder) Expand(bc *bytecode.Bytecode, spanID int, newVal intnum.IntNum) (int64, bool, error) {
	return 0, true, nil
}

func (f *fixedEncoder) Output(bc *bytecode.Bytecode, w io.Writer) ([]bytecode.Reloc, error) {
	if _, err := w.Write(f.prefix); err != nil {
		return nil, err
	}
	if f.imm == nil {
		return nil, nil
	}
	out, handled := f.imm.OutputBasic(nil, nil, diag.Pos{})
	var relocs []bytecode.Reloc
	if !handled {
		out = make([]byte, f.immSize)
		relocs = append(relocs, bytecode.Reloc{Offset: uint64(len(f.prefix)), Val: f.imm})
	}
	if _, err := w.Write(out); err != nil {
		return nil, err
	}
	return relocs, nil
}
