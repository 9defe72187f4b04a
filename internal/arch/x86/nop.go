package x86

import (
	"yasmgo/internal/arch"
	"yasmgo/internal/bytecode"
)

// Multi-byte NOP sequences Intel and AMD recommend for padding, up to 9
// bytes for Intel and 4 bytes for AMD; beyond that the fill is built by
// concatenating the table's longest sequence (spec.md §4.5 "getFill() ... keyed on ... NOP
// policy").
var intelNops = [][]byte{
	{0x90},
	{0x66, 0x90},
	{0x0F, 0x1F, 0x00},
	{0x0F, 0x1F, 0x40, 0x00},
	{0x0F, 0x1F, 0x44, 0x00, 0x00},
	{0x66, 0x0F, 0x1F, 0x44, 0x00, 0x00},
	{0x0F, 0x1F, 0x80, 0x00, 0x00, 0x00, 0x00},
	{0x0F, 0x1F, 0x84, 0x00, 0x00, 0x00, 0x00, 0x00},
	{0x66, 0x0F, 0x1F, 0x84, 0x00, 0x00, 0x00, 0x00, 0x00},
}

var amdNops = [][]byte{
	{0x90},
	{0x66, 0x90},
	{0x66, 0x66, 0x90},
	{0x66, 0x66, 0x66, 0x90},
}

func fillFromTable(table [][]byte) bytecode.FillFunc {
	longest := table[len(table)-1]
	return func(n int) []byte {
		out := make([]byte, 0, n)
		for n > 0 {
			if n <= len(table) {
				out = append(out, table[n-1]...)
				break
			}
			out = append(out, longest...)
			n -= len(longest)
		}
		return out
	}
}

func fillBasic(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = 0x90
	}
	return out
}

func getFill(policy arch.NopPolicy) bytecode.FillFunc {
	switch policy {
	case arch.NopAMD:
		return fillFromTable(amdNops)
	case arch.NopBasic:
		return fillBasic
	default:
		return fillFromTable(intelNops)
	}
}
