package bytecode

import (
	"fmt"
	"io"

	"yasmgo/internal/diag"
	"yasmgo/internal/value"
)

// DataItemKind tags one element of a Data bytecode's payload. LEB128
// fields are not modelled inline here; a LEB128 item is emitted as its
// own standalone LEB128 bytecode (NewLEB128Bytecode) appended to the same
// Container, since it alone needs span/optimiser involvement and Data's
// other items never do (spec.md §4.4 "Data").
type DataItemKind int

const (
	DataBytes DataItemKind = iota
	DataValueField
)

// DataItem is one element of a Data bytecode: raw bytes, or a fixed-size
// relocatable Value field.
type DataItem struct {
	Kind DataItemKind

	Bytes []byte

	Val      *value.Value
	SizeBits uint

	cachedLen uint64
}

func NewDataBytecode(items []DataItem) *Bytecode {
	return &Bytecode{id: allocID(), kind: KindData, data: dataPayload{items: items}}
}

type dataPayload struct {
	items []DataItem
}

func (d *dataPayload) calcLen() (uint64, error) {
	var total uint64
	for i := range d.items {
		it := &d.items[i]
		switch it.Kind {
		case DataBytes:
			it.cachedLen = uint64(len(it.Bytes))
		case DataValueField:
			if it.SizeBits%8 != 0 {
				return 0, fmt.Errorf("bytecode: data field size %d is not byte-aligned", it.SizeBits)
			}
			it.cachedLen = uint64(it.SizeBits / 8)
		default:
			return 0, fmt.Errorf("bytecode: unknown data item kind %v", it.Kind)
		}
		total += it.cachedLen
	}
	return total, nil
}

func (d *dataPayload) output(w io.Writer) ([]Reloc, error) {
	var relocs []Reloc
	var pos uint64
	for i := range d.items {
		it := &d.items[i]
		switch it.Kind {
		case DataBytes:
			if _, err := w.Write(it.Bytes); err != nil {
				return nil, err
			}
		case DataValueField:
			out, handled := it.Val.OutputBasic(nil, nil, diag.Pos{})
			if !handled {
				out = make([]byte, it.cachedLen)
				relocs = append(relocs, Reloc{Offset: pos, Val: it.Val})
			}
			if _, err := w.Write(out); err != nil {
				return nil, err
			}
		}
		pos += it.cachedLen
	}
	return relocs, nil
}
