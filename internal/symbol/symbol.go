// Package symbol implements the symbol table: named entities with
// visibility, definition site, and status bits (spec.md §3, §4.2).
package symbol

import (
	"fmt"

	"yasmgo/internal/diag"
	"yasmgo/internal/expr"
	"yasmgo/internal/intnum"
	"yasmgo/internal/loc"
)

// Status is a bitset of a symbol's lifecycle state.
type Status int

const (
	Used    Status = 1 << iota // for use before definition
	Defined                    // once it's been defined in the file
	Valued                     // once its value has been determined
)

func (s Status) Has(bit Status) bool { return s&bit != 0 }

// Visibility is a bitset; Extern and Common are mutually exclusive.
type Visibility int

const (
	Local  Visibility = 0
	Global Visibility = 1 << iota
	Common
	Extern
	DLocal
)

func (v Visibility) Has(bit Visibility) bool { return v&bit != 0 }

// Type distinguishes what kind of definition, if any, backs a symbol.
type Type int

const (
	Unknown Type = iota // COMMON/EXTERN, no associated data
	Equ                 // defined by an expression
	Label               // defined by a location
	Special             // reserved for format/arch internals, no data
)

// Symbol is a named entity unique within an Object's symbol table.
type Symbol struct {
	name       string
	typ        Type
	status     Status
	visibility Visibility

	declSource diag.Pos
	useSource  diag.Pos
	defSource  diag.Pos
	haveDecl   bool
	haveUse    bool
	haveDef    bool

	equ   *expr.Expr
	label loc.Location

	commonSize     uint64
	haveCommonSize bool
}

// New creates an as-yet-undefined, unused symbol with the given name.
func New(name string) *Symbol {
	return &Symbol{name: name}
}

func (s *Symbol) SymbolName() string { return s.name }
func (s *Symbol) Name() string       { return s.name }
func (s *Symbol) Type() Type         { return s.typ }
func (s *Symbol) Status() Status     { return s.status }
func (s *Symbol) Visibility() Visibility { return s.visibility }

func (s *Symbol) DeclSource() (diag.Pos, bool) { return s.declSource, s.haveDecl }
func (s *Symbol) UseSource() (diag.Pos, bool)  { return s.useSource, s.haveUse }
func (s *Symbol) DefSource() (diag.Pos, bool)  { return s.defSource, s.haveDef }

// IsAbsolute reports whether this is the distinguished "absolute symbol":
// an empty-named EQU whose value is unconditionally zero, used as a
// sentinel in expression simplification (spec.md GLOSSARY).
func (s *Symbol) IsAbsolute() bool {
	return s.name == "" && s.typ == Equ && !s.haveDef
}

// IsSpecial reports whether this is a special symbol (spec.md §3).
func (s *Symbol) IsSpecial() bool { return s.typ == Special }

// Equ returns the symbol's EQU expression and whether it is present and
// valued (spec.md §4.2: "getEqu" returns nil unless VALUED).
func (s *Symbol) Equ() (*expr.Expr, bool) {
	if s.typ == Equ && s.status.Has(Valued) {
		return s.equ, true
	}
	return nil, false
}

// EquExpr returns the raw EQU expression regardless of valued status, or
// nil if this is not an EQU symbol. Used by the optimiser to re-attempt
// simplification each pass.
func (s *Symbol) EquExpr() *expr.Expr {
	if s.typ != Equ {
		return nil
	}
	return s.equ
}

// SetEquValued replaces the stored EQU expression with simplified and
// marks the symbol VALUED.
func (s *Symbol) SetEquValued(simplified expr.Expr) {
	s.equ = &simplified
	s.status |= Valued
}

// Label returns the symbol's defining Location, for LocatedSymbol. False
// if the symbol is not a label or is EXTERN/COMMON (spec.md §4.2
// getLabel).
func (s *Symbol) Label() (loc.Location, bool) {
	if s.typ != Label {
		return loc.Location{}, false
	}
	if s.visibility.Has(Extern) || s.visibility.Has(Common) {
		return loc.Location{}, false
	}
	return s.label, true
}

// Use marks the symbol as used, recording the first use's source
// location (spec.md §4.2 Use).
func (s *Symbol) Use(pos diag.Pos) {
	if !s.haveUse {
		s.useSource = pos
		s.haveUse = true
	}
	s.status |= Used
}

func (s *Symbol) define(typ Type, pos diag.Pos) error {
	if s.status.Has(Defined) {
		return fmt.Errorf("symbol %q redefined", s.name)
	}
	s.typ = typ
	s.status |= Defined
	s.defSource = pos
	s.haveDef = true
	return nil
}

// DefineEqu defines the symbol as an EQU value (spec.md §4.2). Fails
// Redefined if already defined. The symbol is marked VALUED at once when
// e is already an IntNum; otherwise it stays unvalued (Equ reports false)
// until SetEquValued is called, and EquExpr still returns e so uses of
// the symbol can inline it.
func (s *Symbol) DefineEqu(e expr.Expr, pos diag.Pos) error {
	if err := s.define(Equ, pos); err != nil {
		return err
	}
	s.equ = &e
	if _, ok := e.AsIntNum(); ok {
		s.status |= Valued
	}
	return nil
}

// DefineLabel defines the symbol as a label at the given Location.
func (s *Symbol) DefineLabel(l loc.Location, pos diag.Pos) error {
	if err := s.define(Label, pos); err != nil {
		return err
	}
	s.label = l
	s.status |= Valued
	return nil
}

// DefineSpecial defines a special symbol: reserved for arch/format
// internals, no associated expression or location.
func (s *Symbol) DefineSpecial(vis Visibility, pos diag.Pos) error {
	if err := s.define(Special, pos); err != nil {
		return err
	}
	s.visibility |= vis
	return nil
}

// Declare merges a visibility declaration. EXTERN and COMMON are
// mutually exclusive; re-declaring with a conflicting exclusive
// visibility is an error (spec.md §4.2 Declare).
func (s *Symbol) Declare(vis Visibility, pos diag.Pos) error {
	if !s.haveDecl {
		s.declSource = pos
		s.haveDecl = true
	}
	wantExtern := vis.Has(Extern)
	wantCommon := vis.Has(Common)
	if wantExtern && wantCommon {
		return fmt.Errorf("symbol %q cannot be both EXTERN and COMMON", s.name)
	}
	if wantExtern && s.visibility.Has(Common) {
		return fmt.Errorf("symbol %q cannot be both EXTERN and COMMON", s.name)
	}
	if wantCommon && s.visibility.Has(Extern) {
		return fmt.Errorf("symbol %q cannot be both EXTERN and COMMON", s.name)
	}
	s.visibility |= vis
	return nil
}

// SetCommonSize records a COMMON symbol's declared size (nasm's "common
// name size" / GAS's ".comm name, size"), for backends whose relocation
// addend folds COMMON size in (spec.md §4.7 "COMMON-symbol sizes are
// folded into the addend in standard COFF but not in Win32/64").
func (s *Symbol) SetCommonSize(size uint64) {
	s.commonSize = size
	s.haveCommonSize = true
}

// CommonSize returns the size set by SetCommonSize, or (0, false) if
// never set.
func (s *Symbol) CommonSize() (uint64, bool) {
	return s.commonSize, s.haveCommonSize
}

// Table is the symbol table of an Object: name-indexed with insertion
// order preserved for deterministic output (spec.md §4.2).
type Table struct {
	byName map[string]*Symbol
	order  []*Symbol
}

// NewTable creates an empty symbol table.
func NewTable() *Table {
	return &Table{byName: make(map[string]*Symbol)}
}

// Lookup finds a symbol by name without creating it.
func (t *Table) Lookup(name string) (*Symbol, bool) {
	s, ok := t.byName[name]
	return s, ok
}

// GetOrCreate returns the named symbol, creating an undefined, unused one
// if it doesn't exist yet (spec.md §4.2: lookup is case-sensitive; the
// dialect layer case-folds beforehand if its dialect requires it).
func (t *Table) GetOrCreate(name string) *Symbol {
	if s, ok := t.byName[name]; ok {
		return s
	}
	s := New(name)
	t.byName[name] = s
	t.order = append(t.order, s)
	return s
}

// Absolute returns the table's distinguished absolute symbol (empty
// name, EQU, value zero), creating it on first use.
func (t *Table) Absolute() *Symbol {
	s := t.GetOrCreate("")
	if s.typ != Equ {
		zero := expr.Int(intnum.Zero)
		s.typ = Equ
		s.equ = &zero
		s.status |= Valued
	}
	return s
}

// All returns every symbol in insertion order.
func (t *Table) All() []*Symbol { return t.order }

// Finalize runs the end-of-parse check (spec.md §4.2 Finalize): every
// USED-but-not-DEFINED-and-not-EXTERN/COMMON symbol either becomes
// EXTERN (if undefExtern) or is reported as an undefined-symbol error on
// sink. Returns the count of undefined-symbol errors reported.
func (t *Table) Finalize(sink *diag.Sink, undefExtern bool) int {
	errs := 0
	for _, s := range t.order {
		if !s.status.Has(Used) || s.status.Has(Defined) {
			continue
		}
		if s.visibility.Has(Extern) || s.visibility.Has(Common) {
			continue
		}
		if undefExtern {
			s.visibility |= Extern
			continue
		}
		pos, _ := s.UseSource()
		sink.Errorf(pos, diag.KindUndefined, "undefined symbol %q", s.name)
		errs++
	}
	return errs
}
