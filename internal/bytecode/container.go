package bytecode

// Container is an ordered sequence of bytecodes: the backbone of a
// Section, and also used for sub-sequences such as macro-expansion runs
// (spec.md §4.4). Its first element is always a zero-length sentinel, so
// that loc.Location{BC: sentinel, Offset: 0} is a valid "start of
// container" reference even before anything has been appended.
type Container struct {
	bcs []*Bytecode
}

// NewContainer creates a Container with its sentinel bytecode already in
// place.
func NewContainer() *Container {
	sentinel := NewDataBytecode(nil)
	sentinel.resolved = true
	return &Container{bcs: []*Bytecode{sentinel}}
}

// Sentinel returns the container's leading zero-length bytecode.
func (c *Container) Sentinel() *Bytecode { return c.bcs[0] }

// Append adds bc to the end of the container.
func (c *Container) Append(bc *Bytecode) { c.bcs = append(c.bcs, bc) }

// All returns every bytecode, including the sentinel, in order.
func (c *Container) All() []*Bytecode { return c.bcs }

// Len returns the number of bytecodes, including the sentinel.
func (c *Container) Len() int { return len(c.bcs) }

// Last returns the most recently appended bytecode, or the sentinel if
// nothing has been appended yet.
func (c *Container) Last() *Bytecode { return c.bcs[len(c.bcs)-1] }

// InitialLayout performs span/optimiser Pass 1 (spec.md §4.5): walk every
// bytecode assigning its provisional offset and length, collecting every
// span a variable-length bytecode registers.
func (c *Container) InitialLayout() ([]Span, error) {
	var spans []Span
	running := uint64(0)
	for _, bc := range c.bcs {
		bc.SetOffset(running)
		if err := bc.CalcLen(func(s Span) { spans = append(spans, s) }); err != nil {
			return nil, err
		}
		running += bc.length
	}
	return spans, nil
}

// Relayout reassigns offsets after a span Expand has shifted lengths
// downstream, recomputing ALIGN bytecodes' lengths in place as their
// offsets move (spec.md §4.5: "ALIGN ... when offset changes they
// recompute"). New spans registered by a recomputed ALIGN are reported
// via addSpan.
func (c *Container) Relayout(addSpan func(Span)) error {
	running := uint64(0)
	for _, bc := range c.bcs {
		bc.SetOffset(running)
		if bc.kind == KindAlign {
			if err := bc.CalcLen(addSpan); err != nil {
				return err
			}
		}
		running += bc.length
	}
	return nil
}

// TotalLength returns the container's total byte length, valid once
// every bytecode's length is known.
func (c *Container) TotalLength() uint64 {
	if len(c.bcs) == 0 {
		return 0
	}
	last := c.Last()
	return last.offset + last.length
}
