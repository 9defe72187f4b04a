// Package objfmt defines the object-format contract every output backend
// (flat binary, ELF, COFF, Win32/64 PE-COFF) implements: compatibility
// checking, default-section creation, format-specific directives,
// predefined symbols, and final byte emission (spec.md §4.7).
package objfmt

import (
	"io"

	"yasmgo/internal/arch"
	"yasmgo/internal/diag"
	"yasmgo/internal/directive"
	"yasmgo/internal/loc"
	"yasmgo/internal/object"
	"yasmgo/internal/value"
)

// RelocType classifies a Relocation's addressing mode (spec.md §4.7
// "Derived type: absolute vs PC-relative vs section-relative vs
// segment-of").
type RelocType int

const (
	RelocAbsolute RelocType = iota
	RelocPCRelative
	RelocSectionRelative
	RelocSegmentOf
)

// Relocation is the format-agnostic shape every backend's Output reduces
// a non-absolute Value to before encoding it in its own native
// relocation record.
type Relocation struct {
	Offset     uint64 // within the owning section
	Symbol     string
	Type       RelocType
	SizeBits   uint
	Addend     int64
	SectionRef string // for RelocSectionRelative / section-index relocations
}

// ObjectFormat is the contract a backend implements (spec.md §4.7).
type ObjectFormat interface {
	Name() string

	// IsOkObject reports whether a is a compatible architecture/mode for
	// this format (e.g. Win64 requires 64-bit x86).
	IsOkObject(a arch.Architecture) bool

	// AddDefaultSection creates and selects the format's initial section
	// (e.g. ELF's ".text") if the object has none yet.
	AddDefaultSection(obj *object.Object)

	// AddDirectives registers format-specific directives (.section,
	// .type, ...) into dirs.
	AddDirectives(dirs *directive.Registry)

	// InitSymbols creates any mandatory predefined symbols (e.g. COFF's
	// file symbol) in obj's symbol table.
	InitSymbols(obj *object.Object)

	// Output traverses every section and emits the format's file bytes
	// to w. dist resolves inter-location distances the way the
	// optimiser's Dist does, needed to fold WRT/subtract relocations
	// that survived optimisation into addends.
	Output(w io.Writer, obj *object.Object, dist DistFunc, sink *diag.Sink) error
}

// DistFunc mirrors expr.DistFunc without importing expr here, since
// objfmt only ever calls it with already-resolved Locations post-Optimize.
type DistFunc func(a, b loc.Location) (int64, bool)

// ClassifyValue derives a Relocation's Type/Addend from a Value that
// didn't fold to a plain constant, per spec.md §4.7's three-part
// derivation (location, referent symbol possibly swapped for WRT,
// derived type). The addend is the Value's constant part, the referent is
// the WRT symbol if present and otherwise the relative symbol, and the
// type comes from the Value's flags; here and dist are not consulted, and
// no per-format addend folding is done here.
func ClassifyValue(v *value.Value, here loc.Location, dist func(a, b loc.Location) (int64, bool)) Relocation {
	r := Relocation{SizeBits: v.Size}
	if n, ok := v.Abs.AsIntNum(); ok {
		r.Addend, _ = n.GetInt()
	}
	if v.WRT != nil {
		r.Symbol = v.WRT.SymbolName()
	} else if v.Relative != nil {
		r.Symbol = v.Relative.SymbolName()
	}

	if v.Flags.Has(value.SegOf) {
		r.Type = RelocSegmentOf
		return r
	}
	if v.Flags.Has(value.IPRelative) {
		r.Type = RelocPCRelative
		return r
	}
	if v.Flags.Has(value.SectionRelative) {
		r.Type = RelocSectionRelative
		return r
	}
	r.Type = RelocAbsolute
	return r
}
