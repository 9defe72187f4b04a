package bytecode

import (
	"io"
)

// NewAlignBytecode creates a bytecode that pads to the next 2^boundaryBits
// byte boundary using fill, which is asked for exactly as many bytes as
// are needed at CalcLen/Output time (spec.md §4.4 "Align", §4.5 "getFill
// ... keyed on mode bits and NOP policy").
func NewAlignBytecode(boundaryBits uint, fill FillFunc) *Bytecode {
	return &Bytecode{id: allocID(), kind: KindAlign, align: alignPayload{boundaryBits: boundaryBits, fill: fill}}
}

type alignPayload struct {
	boundaryBits uint
	fill         FillFunc
	cachedLen    uint64
}

// calcLen recomputes from the bytecode's current offset every time it is
// called; ALIGN never registers a span of its own (spec.md §4.5: "when
// offset changes they recompute" - Container.Relayout re-invokes CalcLen
// on every ALIGN bytecode as offsets move, rather than ALIGN watching a
// span expression itself).
func (p *alignPayload) calcLen(bc *Bytecode, addSpan func(Span)) (uint64, error) {
	boundary := uint64(1) << p.boundaryBits
	off := bc.offset
	rem := off % boundary
	if rem == 0 {
		p.cachedLen = 0
	} else {
		p.cachedLen = boundary - rem
	}
	return p.cachedLen, nil
}

func (p *alignPayload) output(w io.Writer) error {
	if p.cachedLen == 0 {
		return nil
	}
	var fill []byte
	if p.fill != nil {
		fill = p.fill(int(p.cachedLen))
	}
	if uint64(len(fill)) != p.cachedLen {
		fill = make([]byte, p.cachedLen)
	}
	_, err := w.Write(fill)
	return err
}

// NewOrgBytecode creates a bytecode recording an absolute-offset target
// for its position within the section (spec.md §4.4 "Org"). It occupies
// zero bytes itself; the optimiser validates the target against
// accumulated content via OrgTarget, since only it knows the section's
// VMA.
func NewOrgBytecode(target uint64) *Bytecode {
	return &Bytecode{id: allocID(), kind: KindOrg, org: orgPayload{target: target}}
}

type orgPayload struct {
	target uint64
}

// OrgTarget returns the absolute-offset target for an Org bytecode.
func (bc *Bytecode) OrgTarget() (uint64, bool) {
	if bc.kind != KindOrg {
		return 0, false
	}
	return bc.org.target, true
}
