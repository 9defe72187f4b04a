package bytecode

// encodedPayload wraps the architecture-specific Encoder that drives a
// KindInsn or KindJumpRel bytecode (spec.md §4.4 "Insn" / "JumpRel").
type encodedPayload struct {
	Encoder Encoder
}

// NewInsnBytecode creates an architecture-encoded instruction bytecode.
// enc performs the actual opcode/operand encoding; bytecode itself only
// carries it and dispatches CalcLen/Expand/Output to it, keeping this
// package independent of any one architecture (spec.md §4.4 "Insn").
func NewInsnBytecode(enc Encoder) *Bytecode {
	return &Bytecode{id: allocID(), kind: KindInsn, encoded: encodedPayload{Encoder: enc}}
}

// NewJumpRelBytecode creates a short-or-near relative branch whose final
// encoding length is unknown until the target's offset resolves (spec.md
// §4.4 "JumpRel"). enc supplies the short/near span logic.
func NewJumpRelBytecode(enc Encoder) *Bytecode {
	return &Bytecode{id: allocID(), kind: KindJumpRel, encoded: encodedPayload{Encoder: enc}}
}
