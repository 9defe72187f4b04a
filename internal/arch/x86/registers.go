package x86

import "strings"

// register is x86's Register/SegReg implementation: a name and an id
// shared by every bit-width alias (spec.md §4.8; grounded in the
// teacher's x86_64 encoder's name->id register map).
type register struct {
	name    string
	id      int
	bits    uint
	segment bool
}

func (r *register) RegisterName() string { return r.name }
func (r *register) Bits() uint           { return r.bits }
func (r *register) IsSegment() bool      { return r.segment }
func (r *register) ID() int              { return r.id }

// registerSet is the name->register table for one operating mode.
type registerSet map[string]*register

// gpr64Names is the id -> canonical 64-bit name table shared across modes, the
// same ids the teacher's encoder.go uses for ModRM/REX fields.
var gpr64Names = []string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

var gpr32Names = []string{
	"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi",
	"r8d", "r9d", "r10d", "r11d", "r12d", "r13d", "r14d", "r15d",
}

var gpr16Names = []string{
	"ax", "cx", "dx", "bx", "sp", "bp", "si", "di",
	"r8w", "r9w", "r10w", "r11w", "r12w", "r13w", "r14w", "r15w",
}

// gpr8Names only covers ids 0-7 with the legacy AL/CL/... names (ids 8-15
// use the Rnb spelling regardless of REX, same as the teacher's table).
var gpr8Names = []string{
	"al", "cl", "dl", "bl", "spl", "bpl", "sil", "dil",
}

var gpr8HighNames = map[string]int{"ah": 0, "ch": 1, "dh": 2, "bh": 3}

var segNames = []string{"es", "cs", "ss", "ds", "fs", "gs"}

func buildRegisters() registerSet {
	set := registerSet{}
	add := func(name string, id int, bits uint) {
		set[name] = &register{name: name, id: id, bits: bits}
	}
	for id, n := range gpr64Names {
		add(n, id, 64)
	}
	for id, n := range gpr32Names {
		add(n, id, 32)
	}
	for id, n := range gpr16Names {
		add(n, id, 16)
	}
	for id, n := range gpr8Names {
		add(n, id, 8)
	}
	for name, id := range gpr8HighNames {
		set[name] = &register{name: name, id: id, bits: 8}
	}
	for id, n := range []string{"r8b", "r9b", "r10b", "r11b", "r12b", "r13b", "r14b", "r15b"} {
		add(n, id+8, 8)
	}
	for id, n := range segNames {
		set[n] = &register{name: n, id: id, bits: 16, segment: true}
	}
	return set
}

func (s registerSet) lookup(name string) (*register, bool) {
	r, ok := s[strings.ToLower(name)]
	return r, ok
}
