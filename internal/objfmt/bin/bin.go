// Package bin implements objfmt.ObjectFormat for flat binary output: the
// simplest backend, concatenating every section's bytes in definition
// order with no headers, symbol table, or relocation records at all
// (spec.md §4.7; grounded on the teacher's internal/format.Format's
// FormatRaw case, which the teacher declared but never backed with a
// builder).
package bin

import (
	"fmt"
	"io"

	"yasmgo/internal/arch"
	"yasmgo/internal/diag"
	"yasmgo/internal/directive"
	"yasmgo/internal/object"
	"yasmgo/internal/objfmt"
)

type Format struct{}

func New() *Format { return &Format{} }

func (f *Format) Name() string { return "bin" }

func (f *Format) IsOkObject(a arch.Architecture) bool { return true }

func (f *Format) AddDefaultSection(obj *object.Object) {
	if len(obj.Sections()) > 0 {
		return
	}
	sec := object.NewSection(".text")
	sec.SetIsDefault(true)
	sec.SetIsCode(true)
	_ = obj.AppendSection(sec)
}

// AddDirectives registers no bin-specific directives: ORG is parsed
// directly by both dialects into a bytecode.KindOrg bytecode (not
// dispatched through the registry), and internal/optimize folds its
// target into the section's base address for every format, not just
// this one.
func (f *Format) AddDirectives(dirs *directive.Registry) {}

func (f *Format) InitSymbols(obj *object.Object) {}

// Output concatenates every section's final bytes in order. A flat
// binary has no relocation mechanism, so any Value that doesn't resolve
// to an absolute constant is a hard error (spec.md §4.7 backends
// synthesize relocations only when the format has somewhere to put one).
func (f *Format) Output(w io.Writer, obj *object.Object, dist objfmt.DistFunc, sink *diag.Sink) error {
	for _, sec := range obj.Sections() {
		if sec.BSS() {
			continue
		}
		for _, bc := range sec.Bytecodes().All() {
			relocs, err := bc.Output(w)
			if err != nil {
				return fmt.Errorf("bin: section %q: %w", sec.Name(), err)
			}
			if len(relocs) > 0 {
				return fmt.Errorf("bin: section %q: relocatable reference has no flat-binary representation", sec.Name())
			}
		}
	}
	return nil
}
