// Package object implements Section and Object: the grouping of
// bytecodes into sections with VMA/LMA/alignment/flags, and the object
// that owns sections, symbols, and per-backend associated data (spec.md
// §3, §4 "Section" / "Object").
package object

import (
	"fmt"

	"yasmgo/internal/bytecode"
	"yasmgo/internal/loc"
	"yasmgo/internal/symbol"
)

// AssocKey identifies one backend's associated-data slot on a Section or
// Symbol (spec.md §3 "associated-data side table": (entity, backend-key)
// -> opaque blob; the entity owns the blob).
type AssocKey string

// Section is an ordered list of bytecodes plus the attributes a
// format/architecture backend needs to place and classify it.
type Section struct {
	name string

	bcs *bytecode.Container

	vma       uint64
	lma       uint64
	alignBits uint
	bss       bool
	isDefault bool
	isCode    bool

	relocs []bytecode.Reloc

	assoc map[AssocKey]interface{}
}

// NewSection creates an empty section (its Container already carries its
// sentinel bytecode).
func NewSection(name string) *Section {
	return &Section{
		name:  name,
		bcs:   bytecode.NewContainer(),
		assoc: make(map[AssocKey]interface{}),
	}
}

func (s *Section) Name() string                  { return s.name }
func (s *Section) Bytecodes() *bytecode.Container { return s.bcs }

func (s *Section) VMA() uint64      { return s.vma }
func (s *Section) SetVMA(v uint64)  { s.vma = v }
func (s *Section) LMA() uint64      { return s.lma }
func (s *Section) SetLMA(v uint64)  { s.lma = v }

func (s *Section) AlignBits() uint     { return s.alignBits }
func (s *Section) SetAlignBits(b uint) { s.alignBits = b }

func (s *Section) BSS() bool      { return s.bss }
func (s *Section) SetBSS(b bool)  { s.bss = b }

func (s *Section) IsDefault() bool     { return s.isDefault }
func (s *Section) SetIsDefault(b bool) { s.isDefault = b }

func (s *Section) IsCode() bool     { return s.isCode }
func (s *Section) SetIsCode(b bool) { s.isCode = b }

// StartLocation is the Location denoting the first byte of the section,
// valid even before anything has been appended (spec.md §4.4 sentinel).
func (s *Section) StartLocation() loc.Location {
	return loc.Location{BC: s.bcs.Sentinel(), Offset: 0}
}

// Append adds bc to the section's bytecode stream.
func (s *Section) Append(bc *bytecode.Bytecode) { s.bcs.Append(bc) }

// AddReloc records a relocation produced by a bytecode's Output, with its
// section-relative offset (bytecode offset + in-bytecode offset).
func (s *Section) AddReloc(r bytecode.Reloc) { s.relocs = append(s.relocs, r) }

// Relocs returns every relocation recorded so far, in emission order.
func (s *Section) Relocs() []bytecode.Reloc { return s.relocs }

// SetAssocData attaches backend-specific data to this section under key.
func (s *Section) SetAssocData(key AssocKey, v interface{}) { s.assoc[key] = v }

// AssocData retrieves backend-specific data previously attached under key.
func (s *Section) AssocData(key AssocKey) (interface{}, bool) {
	v, ok := s.assoc[key]
	return v, ok
}

// Object owns sections (insertion-ordered, name-indexed), the symbol
// table, a current-section cursor, and source/output filenames (spec.md
// §3 "Object").
type Object struct {
	sections     []*Section
	byName       map[string]*Section
	current      *Section
	symbols      *symbol.Table
	sourceFile   string
	outputFile   string
	archName     string
	assocSymbols map[*symbol.Symbol]map[AssocKey]interface{}
}

// New creates an empty Object for the given architecture name, source
// and output filenames.
func New(archName, sourceFile, outputFile string) *Object {
	return &Object{
		byName:       make(map[string]*Section),
		symbols:      symbol.NewTable(),
		sourceFile:   sourceFile,
		outputFile:   outputFile,
		archName:     archName,
		assocSymbols: make(map[*symbol.Symbol]map[AssocKey]interface{}),
	}
}

func (o *Object) ArchName() string   { return o.archName }
func (o *Object) SourceFile() string { return o.sourceFile }
func (o *Object) OutputFile() string { return o.outputFile }
func (o *Object) SetOutputFile(f string) { o.outputFile = f }

func (o *Object) Symbols() *symbol.Table { return o.symbols }

// AppendSection inserts a new section, failing if the name is already
// taken.
func (o *Object) AppendSection(s *Section) error {
	if _, ok := o.byName[s.name]; ok {
		return fmt.Errorf("object: section %q already exists", s.name)
	}
	o.sections = append(o.sections, s)
	o.byName[s.name] = s
	if o.current == nil {
		o.current = s
	}
	return nil
}

// FindSection looks up a section by name.
func (o *Object) FindSection(name string) (*Section, bool) {
	s, ok := o.byName[name]
	return s, ok
}

// Sections returns every section in insertion order.
func (o *Object) Sections() []*Section { return o.sections }

// CurrentSection returns the section new bytecodes are appended to.
func (o *Object) CurrentSection() *Section { return o.current }

// SetCurrentSection moves the cursor, failing if name is unknown.
func (o *Object) SetCurrentSection(name string) error {
	s, ok := o.byName[name]
	if !ok {
		return fmt.Errorf("object: unknown section %q", name)
	}
	o.current = s
	return nil
}

// SetAssocSymbolData attaches backend-specific data to a symbol under
// key, via the Object's side table (Symbol itself carries no backend
// fields, per spec.md §3's ownership model).
func (o *Object) SetAssocSymbolData(s *symbol.Symbol, key AssocKey, v interface{}) {
	m, ok := o.assocSymbols[s]
	if !ok {
		m = make(map[AssocKey]interface{})
		o.assocSymbols[s] = m
	}
	m[key] = v
}

// AssocSymbolData retrieves backend-specific data previously attached to
// a symbol under key.
func (o *Object) AssocSymbolData(s *symbol.Symbol, key AssocKey) (interface{}, bool) {
	m, ok := o.assocSymbols[s]
	if !ok {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}
