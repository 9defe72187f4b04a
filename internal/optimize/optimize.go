// Package optimize implements the span/optimiser fixpoint: the two-pass
// resolution of variable-length bytecodes (jumps, LEB128, ALIGN, ORG,
// TIMES) against symbol values (spec.md §4.5).
package optimize

import (
	"fmt"

	"yasmgo/internal/bytecode"
	"yasmgo/internal/diag"
	"yasmgo/internal/intnum"
	"yasmgo/internal/loc"
	"yasmgo/internal/object"
)

// ErrValueNotConstant is reported when a span's expression never becomes
// foldable to an IntNum by the end of relaxation (spec.md §4.5
// "Unresolvable spans ... fail with ValueNotConstant at the end of pass
// 2").
var ErrValueNotConstant = fmt.Errorf("optimize: value not constant")

// MaxPasses bounds the relaxation loop; spans only ever grow (spec.md
// §4.5's monotonicity guarantee), so a real input converges in far fewer
// passes than this.
const MaxPasses = 100000

// Dist implements expr.DistFunc over resolved bytecode offsets: a's
// absolute (bytecode-offset + in-bytecode-offset) position minus b's,
// valid once both bytecodes have been placed by a layout pass (spec.md
// §4.1 distance law).
func Dist(a, b loc.Location) (intnum.IntNum, bool) {
	ao, aok := a.BC.ResolvedOffset()
	bo, bok := b.BC.ResolvedOffset()
	if !aok || !bok {
		return intnum.Zero, false
	}
	diff := int64(ao+a.Offset) - int64(bo+b.Offset)
	return intnum.FromInt64(diff), true
}

// Run optimises every section of obj, resolving every bytecode to its
// final length and offset (spec.md §4.5 "Output of the optimiser").
func Run(obj *object.Object, sink *diag.Sink) error {
	for _, sec := range obj.Sections() {
		if err := optimizeSection(sec, sink); err != nil {
			return fmt.Errorf("optimize: section %q: %w", sec.Name(), err)
		}
	}
	return nil
}

func optimizeSection(sec *object.Section, sink *diag.Sink) error {
	cont := sec.Bytecodes()
	spans, err := cont.InitialLayout()
	if err != nil {
		return err
	}
	for pass := 0; pass < MaxPasses; pass++ {
		expanded := false
		var fresh []bytecode.Span

		for _, sp := range spans {
			simplified, err := sp.Expr.Simplify(true, Dist)
			if err != nil {
				return err
			}
			n, ok := simplified.AsIntNum()
			if !ok {
				continue // still not foldable; retry next pass
			}
			if n.Cmp(sp.Low) >= 0 && n.Cmp(sp.High) <= 0 {
				continue // satisfied at current encoding
			}
			delta, _, err := sp.BC.Expand(sp.ID, n)
			if err != nil {
				return err
			}
			if delta != 0 {
				expanded = true
				addSpan := func(s bytecode.Span) { fresh = append(fresh, s) }
				if err := cont.Relayout(addSpan); err != nil {
					return err
				}
			}
		}

		spans = append(spans, fresh...)
		if !expanded {
			if err := finalize(cont, spans, sink); err != nil {
				return err
			}
			return resolveOrg(sec, cont, sink)
		}
	}
	return fmt.Errorf("optimize: span relaxation did not converge after %d passes", MaxPasses)
}

// resolveOrg folds every ORG bytecode's absolute target into the
// section's base address, once every bytecode in the section has its
// final offset (spec.md §4.4 "Org"; see bytecode.NewOrgBytecode's doc
// comment). A section may carry more than one ORG only if they agree on
// the same base; an ORG whose target would fall behind content already
// emitted ahead of it is an error rather than a silent rewind.
func resolveOrg(sec *object.Section, cont *bytecode.Container, sink *diag.Sink) error {
	haveBase := false
	var base uint64
	for _, bc := range cont.All() {
		target, ok := bc.OrgTarget()
		if !ok {
			continue
		}
		off, _ := bc.ResolvedOffset()
		if target < off {
			return fmt.Errorf("optimize: section %q: org 0x%x falls behind %d bytes of content already emitted at that point", sec.Name(), target, off)
		}
		b := target - off
		if !haveBase {
			base = b
			haveBase = true
			sec.SetVMA(base)
			continue
		}
		if b != base {
			return fmt.Errorf("optimize: section %q: org 0x%x is inconsistent with the base address 0x%x established by an earlier org", sec.Name(), target, base)
		}
	}
	return nil
}

// finalize checks that every span settled on a foldable value, marks
// every bytecode Resolved, and reports ErrValueNotConstant for any span
// whose expression never became an IntNum.
func finalize(cont *bytecode.Container, spans []bytecode.Span, sink *diag.Sink) error {
	unresolved := 0
	for _, sp := range spans {
		simplified, err := sp.Expr.Simplify(true, Dist)
		if err != nil {
			return err
		}
		if _, ok := simplified.AsIntNum(); !ok {
			unresolved++
			if sink != nil {
				sink.Errorf(diag.Pos{}, diag.KindNotConstant, "value not constant: %s", sp.Expr.String())
			}
		}
	}
	for _, bc := range cont.All() {
		bc.MarkResolved()
	}
	if unresolved > 0 {
		return ErrValueNotConstant
	}
	return nil
}
