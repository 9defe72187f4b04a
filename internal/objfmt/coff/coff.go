// Package coff implements objfmt.ObjectFormat for standard (Unix/SysV)
// COFF relocatable object files (spec.md §4.7, objfmt_keyword "coff") —
// architecturally identical wire format to internal/objfmt/win's
// Win32 COFF (classic COFF is what Microsoft's PE/COFF descends from,
// and both share debug/pe's exported FileHeader/SectionHeader32/
// COFFSymbol/Reloc struct layouts), but differing in exactly the one
// place spec.md calls out: standard COFF folds the referent section's
// VMA, and a COMMON symbol's size, into the relocation addend; Win32/64
// keep the addend section-relative and leave that fold to the linker
// (spec.md §4.7, "Standard-COFF and ELF additionally fold the referent
// section's VMA into the addend... COMMON-symbol sizes are folded into
// the addend in standard COFF but not in Win32/64").
//
// Grounded on the teacher's internal/format/pe/builder.go the same way
// internal/objfmt/win is, retargeted to an unlinked .o the same way.
package coff

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"yasmgo/internal/arch"
	"yasmgo/internal/diag"
	"yasmgo/internal/directive"
	"yasmgo/internal/loc"
	"yasmgo/internal/object"
	"yasmgo/internal/objfmt"
	"yasmgo/internal/symbol"
)

const (
	imageSCNCntCode              = 0x00000020
	imageSCNCntInitializedData   = 0x00000040
	imageSCNCntUninitializedData = 0x00000080
	imageSCNMemExecute           = 0x20000000
	imageSCNMemRead              = 0x40000000
	imageSCNMemWrite             = 0x80000000

	imageRelI386Dir32 = 0x0006
	imageRelI386Rel32 = 0x0014

	imageSymClassExternal = 2
	imageSymClassStatic   = 3
	imageSymUndefined     = 0
)

type Format struct{}

func New() *Format { return &Format{} }

func (f *Format) Name() string { return "coff" }

func (f *Format) IsOkObject(a arch.Architecture) bool {
	return a.ModeBits() == 32 || a.ModeBits() == 16
}

func (f *Format) AddDefaultSection(obj *object.Object) {
	if len(obj.Sections()) > 0 {
		return
	}
	sec := object.NewSection(".text")
	sec.SetIsDefault(true)
	sec.SetIsCode(true)
	_ = obj.AppendSection(sec)
}

func (f *Format) AddDirectives(dirs *directive.Registry) {
	_ = dirs.Register("section", directive.IDRequired, func(info *directive.Info, sink *diag.Sink) error {
		name := info.Positional[0].Str
		if _, ok := info.Obj.FindSection(name); !ok {
			if err := info.Obj.AppendSection(object.NewSection(name)); err != nil {
				return err
			}
		}
		return info.Obj.SetCurrentSection(name)
	})
	_ = dirs.Register("global", directive.IDRequired, func(info *directive.Info, sink *diag.Sink) error {
		return info.Obj.Symbols().GetOrCreate(info.Positional[0].Str).Declare(symbol.Global, info.Pos)
	})
}

func (f *Format) InitSymbols(obj *object.Object) {}

type secBuild struct {
	sec     *object.Section
	index   uint16
	data    []byte
	dataLen uint32 // reserved size; for BSS this is > 0 even though data is nil
	relocs  []objfmt.Relocation
	rawOff  uint32
	relOff  uint32
	chars   uint32
}

// Output mirrors internal/objfmt/win's Output exactly in shape, but adds
// the referent section's VMA (and, where the symbol is COMMON, its size)
// into each relocation's addend before encoding it — the one place
// standard COFF and Win32/64 diverge (spec.md §4.7).
func (f *Format) Output(w io.Writer, obj *object.Object, dist objfmt.DistFunc, sink *diag.Sink) error {
	var secs []*secBuild
	sectionVMA := map[uint16]uint64{}
	for i, sec := range obj.Sections() {
		sb := &secBuild{sec: sec, index: uint16(i + 1)}
		sectionVMA[sb.index] = sec.VMA()
		if !sec.BSS() {
			var buf bytes.Buffer
			for _, bc := range sec.Bytecodes().All() {
				relocs, err := bc.Output(&buf)
				if err != nil {
					return fmt.Errorf("coff: section %q: %w", sec.Name(), err)
				}
				for _, r := range relocs {
					rel := objfmt.ClassifyValue(r.Val, loc.Location{BC: bc, Offset: r.Offset}, nil)
					rel.Offset = bc.Offset() + r.Offset
					sb.relocs = append(sb.relocs, rel)
				}
			}
			sb.data = buf.Bytes()
			sb.dataLen = uint32(len(sb.data))
			sb.chars = imageSCNCntInitializedData
		} else {
			for _, bc := range sec.Bytecodes().All() {
				relocs, err := bc.Output(io.Discard)
				if err != nil {
					return fmt.Errorf("coff: section %q: %w", sec.Name(), err)
				}
				for _, r := range relocs {
					rel := objfmt.ClassifyValue(r.Val, loc.Location{BC: bc, Offset: r.Offset}, nil)
					rel.Offset = bc.Offset() + r.Offset
					sb.relocs = append(sb.relocs, rel)
				}
			}
			sb.dataLen = uint32(sec.Bytecodes().TotalLength())
			sb.chars = imageSCNCntUninitializedData
		}
		if sec.IsCode() {
			sb.chars = imageSCNCntCode | imageSCNMemExecute
		}
		sb.chars |= imageSCNMemRead
		if sec.BSS() || !sec.IsCode() {
			sb.chars |= imageSCNMemWrite
		}
		secs = append(secs, sb)
	}

	symIndex := map[string]uint32{}
	type symRow struct {
		name       string
		value      uint32
		size       uint64
		isCommon   bool
		section    int16
		sectionIdx uint16
		class      uint8
	}
	var rows []symRow
	for _, s := range obj.Symbols().All() {
		if s.Name() == "" || s.IsSpecial() {
			continue
		}
		row := symRow{name: s.Name(), class: imageSymClassStatic}
		if s.Visibility().Has(symbol.Global) || s.Visibility().Has(symbol.Extern) {
			row.class = imageSymClassExternal
		}
		row.isCommon = s.Visibility().Has(symbol.Common)
		if l, ok := s.Label(); ok {
			off, _ := l.BC.ResolvedOffset()
			row.value = uint32(off + l.Offset)
			row.sectionIdx = sectionIndexOf(secs, l.BC)
			row.section = int16(row.sectionIdx)
		} else {
			row.section = imageSymUndefined
			if row.isCommon {
				if size, ok := s.CommonSize(); ok {
					row.size = size
					row.value = uint32(size)
				}
			}
		}
		symIndex[s.Name()] = uint32(len(rows))
		rows = append(rows, row)
	}

	var strtab bytes.Buffer
	strtab.Write([]byte{0, 0, 0, 0})

	fileHeaderSize := uint32(20)
	sectionHeaderSize := uint32(40)
	relocEntSize := uint32(10)

	offset := fileHeaderSize + sectionHeaderSize*uint32(len(secs))
	for _, sb := range secs {
		if len(sb.data) == 0 {
			continue
		}
		sb.rawOff = offset
		offset += uint32(len(sb.data))
	}
	for _, sb := range secs {
		if len(sb.relocs) == 0 {
			continue
		}
		sb.relOff = offset
		offset += uint32(len(sb.relocs)) * relocEntSize
	}
	symtabOff := offset

	var buf bytes.Buffer
	fh := pe.FileHeader{
		Machine:              pe.IMAGE_FILE_MACHINE_I386,
		NumberOfSections:     uint16(len(secs)),
		TimeDateStamp:        timestamp(),
		PointerToSymbolTable: symtabOff,
		NumberOfSymbols:      uint32(len(rows)),
	}
	if err := binary.Write(&buf, binary.LittleEndian, &fh); err != nil {
		return err
	}
	for _, sb := range secs {
		sh := pe.SectionHeader32{
			VirtualSize:          sb.dataLen,
			SizeOfRawData:        uint32(len(sb.data)),
			PointerToRawData:     sb.rawOff,
			PointerToRelocations: sb.relOff,
			NumberOfRelocations:  uint16(len(sb.relocs)),
			Characteristics:      sb.chars,
		}
		copy(sh.Name[:], sb.sec.Name())
		if err := binary.Write(&buf, binary.LittleEndian, &sh); err != nil {
			return err
		}
	}
	for _, sb := range secs {
		if len(sb.data) > 0 {
			buf.Write(sb.data)
		}
	}
	for _, sb := range secs {
		for _, r := range sb.relocs {
			idx, ok := symIndex[r.Symbol]
			if !ok {
				return fmt.Errorf("coff: section %q: relocation against unknown symbol %q", sb.sec.Name(), r.Symbol)
			}
			// Standard-COFF folds the referent section's VMA (and a
			// COMMON symbol's size) into the addend rather than leaving
			// it for the linker; Bytecode.Output already wrote the
			// expression's own constant term into the relocated bytes,
			// so the fold is an additive patch over those same bytes.
			if target := rows[idx]; target.sectionIdx != 0 {
				foldAddendInPlace(buf.Bytes(), sb.rawOff, r, int64(sectionVMA[target.sectionIdx]))
			} else if target.isCommon {
				foldAddendInPlace(buf.Bytes(), sb.rawOff, r, int64(target.size))
			}
			rel := pe.Reloc{
				VirtualAddress:   uint32(r.Offset),
				SymbolTableIndex: idx,
				Type:             relocType(r),
			}
			if err := binary.Write(&buf, binary.LittleEndian, &rel); err != nil {
				return err
			}
		}
	}
	for _, r := range rows {
		var nameField [8]byte
		if len(r.name) <= 8 {
			copy(nameField[:], r.name)
		} else {
			off := uint32(strtab.Len())
			strtab.WriteString(r.name)
			strtab.WriteByte(0)
			binary.LittleEndian.PutUint32(nameField[4:], off)
		}
		sym := pe.COFFSymbol{
			Name:          nameField,
			Value:         r.value,
			SectionNumber: r.section,
			StorageClass:  r.class,
		}
		if err := binary.Write(&buf, binary.LittleEndian, &sym); err != nil {
			return err
		}
	}
	binary.LittleEndian.PutUint32(strtab.Bytes()[0:4], uint32(strtab.Len()))
	buf.Write(strtab.Bytes())

	_, err := w.Write(buf.Bytes())
	return err
}

func timestamp() uint32 {
	if os.Getenv("YASM_TEST_SUITE") != "" {
		return 0
	}
	return uint32(time.Now().Unix())
}

func sectionIndexOf(secs []*secBuild, bc interface{ BCID() uint64 }) uint16 {
	for _, sb := range secs {
		for _, b := range sb.sec.Bytecodes().All() {
			if b.BCID() == bc.BCID() {
				return sb.index
			}
		}
	}
	return 0
}

// foldAddendInPlace adds delta to the little-endian integer already
// written at the relocation site, per standard COFF's addend-folding
// rule (spec.md §4.7).
func foldAddendInPlace(data []byte, sectionRawOff uint32, r objfmt.Relocation, delta int64) {
	at := int(sectionRawOff) + int(r.Offset)
	width := int(r.SizeBits) / 8
	if width <= 0 || width > 8 || at+width > len(data) {
		return
	}
	cur := int64(0)
	for i := width - 1; i >= 0; i-- {
		cur = cur<<8 | int64(data[at+i])
	}
	cur += delta
	for i := 0; i < width; i++ {
		data[at+i] = byte(cur)
		cur >>= 8
	}
}

func relocType(r objfmt.Relocation) uint16 {
	if r.Type == objfmt.RelocPCRelative {
		return imageRelI386Rel32
	}
	return imageRelI386Dir32
}
