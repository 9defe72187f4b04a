package gas

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"yasmgo/internal/arch"
	"yasmgo/internal/bytecode"
	"yasmgo/internal/diag"
	"yasmgo/internal/directive"
	"yasmgo/internal/expr"
	"yasmgo/internal/intnum"
	"yasmgo/internal/loc"
	"yasmgo/internal/object"
	"yasmgo/internal/symbol"
	"yasmgo/internal/value"
)

// Name is the dialect name the driver's -p/--parser flag selects.
const Name = "gas"

type modifier string

func (m modifier) ModifierName() string { return string(m) }

// Parser drives a line-oriented recursive-descent parse of AT&T/GAS
// syntax into an already-constructed Object, the same shape as
// internal/parser/nasm.Parser but for the inverted dialect: '%'
// registers, '$' immediates, disp(base,index,scale) memory operands,
// and (src, dst) operand order.
type Parser struct {
	lx       *lexer
	peek     token
	have     bool
	filename string

	obj  *object.Object
	arch arch.Architecture
	dirs *directive.Registry
	sink *diag.Sink

	lineMark     loc.Location
	haveLineMark bool
}

func New(r io.Reader, filename string, obj *object.Object, a arch.Architecture, dirs *directive.Registry, sink *diag.Sink) *Parser {
	return &Parser{lx: newLexer(r), filename: filename, obj: obj, arch: a, dirs: dirs, sink: sink}
}

func (p *Parser) next() token {
	if p.have {
		p.have = false
		return p.peek
	}
	return p.lx.next()
}

func (p *Parser) backup(t token) {
	p.have = true
	p.peek = t
}

func (p *Parser) pos(line, col int) diag.Pos {
	return diag.Pos{File: p.filename, Line: line, Col: col}
}

func (p *Parser) Parse() error {
	for {
		p.haveLineMark = false
		t := p.next()
		if t.kind == tokEOF {
			return nil
		}
		if t.kind == tokNewline {
			continue
		}
		if err := p.statement(t); err != nil {
			return err
		}
	}
}

// here mirrors internal/parser/nasm.Parser.here: a zero-length marker
// bytecode so every "here" reference on one source line - a local
// numeric label, or a "." current-location reference - resolves to the
// same position regardless of how many bytecodes the line produces.
func (p *Parser) here() loc.Location {
	if p.haveLineMark {
		return p.lineMark
	}
	sec := p.obj.CurrentSection()
	marker := bytecode.NewDataBytecode(nil)
	sec.Append(marker)
	p.lineMark = loc.Location{BC: marker, Offset: 0}
	p.haveLineMark = true
	return p.lineMark
}

func (p *Parser) statement(t token) error {
	if t.kind != tokIdent {
		return p.pseudoOrInsn(t)
	}

	// identifier ':' is a label. GAS directives are spelled with a
	// leading '.', which the lexer folds into the identifier, so an
	// ident starting with '.' never reaches here as a label candidate
	// unless it really is followed by ':'.
	nt := p.next()
	if nt.kind == tokColon {
		if err := p.defineLabel(t); err != nil {
			return err
		}
		t2 := p.next()
		if t2.kind == tokNewline || t2.kind == tokEOF {
			return nil
		}
		return p.statement(t2)
	}
	p.backup(nt)
	return p.pseudoOrInsn(t)
}

func (p *Parser) defineLabel(t token) error {
	sym := p.obj.Symbols().GetOrCreate(t.lit)
	at := p.here()
	if err := sym.DefineLabel(at, p.pos(t.line, t.col)); err != nil {
		p.sink.Errorf(p.pos(t.line, t.col), diag.KindRedefined, "%v", err)
	}
	return nil
}

func (p *Parser) skipToNewline() error {
	for {
		t := p.next()
		if t.kind == tokNewline || t.kind == tokEOF {
			return nil
		}
	}
}

func (p *Parser) pseudoOrInsn(t token) error {
	if t.kind == tokNewline {
		return nil
	}
	if t.kind != tokIdent {
		p.sink.Errorf(p.pos(t.line, t.col), diag.KindSyntax, "unexpected token %q", t.lit)
		return p.skipToNewline()
	}
	word := strings.ToLower(t.lit)

	switch word {
	case ".text", ".data", ".bss", ".rodata":
		return p.shortSection(t, word)
	case ".section":
		return p.dispatchDirective(t, "section")
	case ".globl", ".global":
		return p.visibilityDirective(t, "global")
	case ".extern":
		return p.visibilityDirective(t, "extern")
	case ".comm":
		return p.visibilityDirective(t, "common")
	case ".equ", ".set":
		return p.equ(t)
	case ".byte", ".word", ".long", ".quad", ".short", ".int":
		return p.dataDirective(t, word)
	case ".ascii", ".asciz", ".string":
		return p.asciiDirective(t, word)
	case ".space", ".skip", ".zero":
		return p.reserveDirective(t)
	case ".align", ".p2align", ".balign":
		return p.alignDirective(t, word)
	case ".org":
		return p.orgDirective(t)
	case ".incbin":
		return p.incbinDirective(t)
	}

	if strings.HasPrefix(word, ".") {
		name := strings.TrimPrefix(word, ".")
		if _, _, ok := p.dirs.Lookup(name); ok {
			return p.dispatchDirective(t, name)
		}
	}

	return p.instruction(t)
}

func (p *Parser) shortSection(t token, word string) error {
	name := word
	if _, ok := p.obj.FindSection(name); !ok {
		sec := object.NewSection(name)
		if name == ".text" {
			sec.SetIsCode(true)
		}
		if name == ".bss" {
			sec.SetBSS(true)
		}
		if err := p.obj.AppendSection(sec); err != nil {
			return err
		}
	}
	if err := p.obj.SetCurrentSection(name); err != nil {
		p.sink.Errorf(p.pos(t.line, t.col), diag.KindSyntax, "%v", err)
	}
	return p.skipToNewline()
}

func (p *Parser) equ(name token) error {
	nt := p.next()
	if nt.kind != tokIdent {
		p.sink.Errorf(p.pos(nt.line, nt.col), diag.KindSyntax, "%s requires a symbol name", strings.ToUpper(name.lit))
		return p.skipToNewline()
	}
	ct := p.next()
	if ct.kind != tokComma {
		p.backup(ct)
	}
	e, err := p.parseExpr()
	if err != nil {
		return err
	}
	simplified, err := e.Simplify(false, nil)
	if err != nil {
		p.sink.Errorf(p.pos(nt.line, nt.col), diag.KindValue, "%v", err)
	}
	sym := p.obj.Symbols().GetOrCreate(nt.lit)
	if err := sym.DefineEqu(simplified, p.pos(nt.line, nt.col)); err != nil {
		p.sink.Errorf(p.pos(nt.line, nt.col), diag.KindRedefined, "%v", err)
	}
	return p.skipToNewline()
}

func sizeBitsFor(word string) uint {
	switch word {
	case ".byte":
		return 8
	case ".word", ".short":
		return 16
	case ".long", ".int":
		return 32
	case ".quad":
		return 64
	}
	return 8
}

func (p *Parser) dataDirective(t token, word string) error {
	bits := sizeBitsFor(word)
	var items []bytecode.DataItem
	for {
		e, err := p.parseExpr()
		if err != nil {
			return err
		}
		simplified, err := e.Simplify(false, nil)
		if err != nil {
			p.sink.Errorf(p.pos(t.line, t.col), diag.KindValue, "%v", err)
			simplified = expr.Int(intnum.Zero)
		}
		v, err := value.FinalizeScan(simplified, bits)
		if err != nil {
			p.sink.Errorf(p.pos(t.line, t.col), diag.KindTooComplex, "%v", err)
			v = &value.Value{Abs: expr.Int(intnum.Zero), Size: bits}
		}
		items = append(items, bytecode.DataItem{Kind: bytecode.DataValueField, Val: v, SizeBits: bits})
		ct := p.next()
		if ct.kind == tokComma {
			continue
		}
		p.backup(ct)
		break
	}
	p.obj.CurrentSection().Append(bytecode.NewDataBytecode(items))
	return p.skipToNewline()
}

// asciiDirective handles .ascii (raw bytes), .asciz/.string (NUL
// terminated) - GAS's string-literal data pseudo-ops, the rough
// equivalent of a nasm DB with a string argument.
func (p *Parser) asciiDirective(t token, word string) error {
	var items []bytecode.DataItem
	for {
		nt := p.next()
		if nt.kind != tokString {
			p.sink.Errorf(p.pos(nt.line, nt.col), diag.KindSyntax, "%s requires a string literal", strings.ToUpper(word))
			return p.skipToNewline()
		}
		b := []byte(nt.lit)
		if word != ".ascii" {
			b = append(b, 0)
		}
		items = append(items, bytecode.DataItem{Kind: bytecode.DataBytes, Bytes: b})
		ct := p.next()
		if ct.kind == tokComma {
			continue
		}
		p.backup(ct)
		break
	}
	p.obj.CurrentSection().Append(bytecode.NewDataBytecode(items))
	return p.skipToNewline()
}

func (p *Parser) reserveDirective(t token) error {
	count, err := p.parseExpr()
	if err != nil {
		return err
	}
	p.obj.CurrentSection().Append(bytecode.NewReserveBytecode(count))
	return p.skipToNewline()
}

// alignDirective: plain .align/.balign take a byte boundary; .p2align
// takes a power of two directly, same as the boundary nasm's ALIGN
// ultimately converts to bits.
func (p *Parser) alignDirective(t token, word string) error {
	e, err := p.parseExpr()
	if err != nil {
		return err
	}
	simplified, err := e.Simplify(false, nil)
	if err != nil {
		p.sink.Errorf(p.pos(t.line, t.col), diag.KindValue, "%v", err)
		return p.skipToNewline()
	}
	n, ok := simplified.AsIntNum()
	if !ok {
		p.sink.Errorf(p.pos(t.line, t.col), diag.KindNotConstant, "%s boundary must be a constant", strings.ToUpper(word))
		return p.skipToNewline()
	}
	val, _ := n.GetUInt()
	var bits uint
	if word == ".p2align" {
		bits = uint(val)
	} else {
		for (uint64(1) << bits) < val {
			bits++
		}
	}
	fill := p.arch.GetFill(arch.NopIntel)
	p.obj.CurrentSection().Append(bytecode.NewAlignBytecode(bits, fill))
	return p.skipToNewline()
}

func (p *Parser) orgDirective(t token) error {
	e, err := p.parseExpr()
	if err != nil {
		return err
	}
	simplified, err := e.Simplify(false, nil)
	if err != nil {
		p.sink.Errorf(p.pos(t.line, t.col), diag.KindValue, "%v", err)
		return p.skipToNewline()
	}
	n, ok := simplified.AsIntNum()
	if !ok {
		p.sink.Errorf(p.pos(t.line, t.col), diag.KindNotConstant, "ORG target must be a constant")
		return p.skipToNewline()
	}
	target, _ := n.GetUInt()
	p.obj.CurrentSection().Append(bytecode.NewOrgBytecode(target))
	return p.skipToNewline()
}

func (p *Parser) incbinDirective(t token) error {
	nt := p.next()
	if nt.kind != tokString {
		p.sink.Errorf(p.pos(nt.line, nt.col), diag.KindSyntax, "%s requires a filename string", strings.ToUpper(t.lit))
		return p.skipToNewline()
	}
	var start, length uint64
	ct := p.next()
	if ct.kind == tokComma {
		e, err := p.parseExpr()
		if err != nil {
			return err
		}
		if n, ok := mustConst(e); ok {
			start, _ = n.GetUInt()
		}
		ct = p.next()
		if ct.kind == tokComma {
			e, err := p.parseExpr()
			if err != nil {
				return err
			}
			if n, ok := mustConst(e); ok {
				length, _ = n.GetUInt()
			}
		} else {
			p.backup(ct)
		}
	} else {
		p.backup(ct)
	}
	p.obj.CurrentSection().Append(bytecode.NewIncbinBytecode(nt.lit, start, length))
	return p.skipToNewline()
}

func mustConst(e expr.Expr) (intnum.IntNum, bool) {
	simplified, err := e.Simplify(false, nil)
	if err != nil {
		return intnum.Zero, false
	}
	return simplified.AsIntNum()
}

// visibilityDirective handles .globl/.global (-> GLOBAL), .extern (->
// EXTERN - not all GAS dialects require it since an undefined symbol is
// implicitly extern, but yasm's gas frontend accepts it as a no-op-ish
// declaration the same as nasm's EXTERN), and .comm (-> COMMON, with
// its mandatory size argument: ".comm name, size[, align]").
func (p *Parser) visibilityDirective(t token, kind string) error {
	nt := p.next()
	if nt.kind != tokIdent {
		p.sink.Errorf(p.pos(nt.line, nt.col), diag.KindSyntax, "%s requires a symbol name", strings.ToUpper(t.lit))
		return p.skipToNewline()
	}
	sym := p.obj.Symbols().GetOrCreate(nt.lit)
	var err error
	switch kind {
	case "global":
		err = sym.Declare(symbol.Global, p.pos(t.line, t.col))
	case "extern":
		err = sym.Declare(symbol.Extern, p.pos(t.line, t.col))
	case "common":
		err = sym.Declare(symbol.Common, p.pos(t.line, t.col))
		ct := p.next()
		if ct.kind == tokComma {
			// ".comm name, size[, align]" - size feeds
			// Symbol.SetCommonSize for backends (standard COFF) that fold
			// COMMON size into the relocation addend; align is consumed
			// and discarded, same as nasm's ":align" suffix.
			e, perr := p.parseExpr()
			if perr != nil {
				return perr
			}
			if n, ok := mustConst(e); ok {
				size, _ := n.GetUInt()
				sym.SetCommonSize(size)
			}
			ct2 := p.next()
			if ct2.kind == tokComma {
				if _, perr := p.parseExpr(); perr != nil {
					return perr
				}
			} else {
				p.backup(ct2)
			}
		} else {
			p.backup(ct)
		}
	}
	if err != nil {
		p.sink.Errorf(p.pos(t.line, t.col), diag.KindRedefined, "%v", err)
	}
	return p.skipToNewline()
}

func (p *Parser) dispatchDirective(t token, name string) error {
	var positional []directive.NameValue
	for {
		nt := p.next()
		if nt.kind == tokNewline || nt.kind == tokEOF {
			p.backup(nt)
			break
		}
		if nt.kind == tokIdent {
			positional = append(positional, directive.NameValue{Kind: directive.KindIdentifier, Str: nt.lit})
			continue
		}
		if nt.kind == tokString {
			positional = append(positional, directive.NameValue{Kind: directive.KindString, Str: nt.lit})
			continue
		}
		p.backup(nt)
		e, err := p.parseExpr()
		if err != nil {
			return err
		}
		positional = append(positional, directive.NameValue{Kind: directive.KindExpr, Expr: &e})
	}
	info := &directive.Info{Obj: p.obj, Positional: positional, Pos: p.pos(t.line, t.col)}
	if err := p.dirs.Dispatch(name, info, p.sink); err != nil {
		p.sink.Errorf(p.pos(t.line, t.col), diag.KindSyntax, "%v", err)
	}
	return p.skipToNewline()
}

// sizedMnemonics maps the root of a known size-suffixed GAS mnemonic to
// the suffix letters it accepts; GAS appends b/w/l/q to disambiguate an
// operand's width when it can't be read off a register operand (e.g.
// "movl $1, sym" with no register in sight). Stripping a trailing
// b/w/l/q blindly would mangle mnemonics that simply end in one of
// those letters (call, pop, jmp's 'p' aside - "cal"+l is the live
// example), so only a fixed, known set of suffixable roots is
// recognized, the same closed-table approach binutils' own opcode
// tables use.
var sizedMnemonics = map[string]bool{
	"mov": true, "add": true, "sub": true, "cmp": true, "test": true,
	"and": true, "or": true, "xor": true, "not": true, "neg": true,
	"push": true, "pop": true, "inc": true, "dec": true, "lea": true,
	"imul": true, "idiv": true, "mul": true, "div": true,
	"shl": true, "shr": true, "sar": true, "sal": true, "rol": true, "ror": true,
	"adc": true, "sbb": true,
}

var suffixBits = map[byte]uint{'b': 8, 'w': 16, 'l': 32, 'q': 64}

// splitMnemonic strips a recognized size suffix off mnemonic, returning
// the bare mnemonic and the size it implied (0 if none).
func splitMnemonic(mnemonic string) (string, uint) {
	if len(mnemonic) < 2 {
		return mnemonic, 0
	}
	last := mnemonic[len(mnemonic)-1]
	bits, ok := suffixBits[last]
	if !ok {
		return mnemonic, 0
	}
	root := mnemonic[:len(mnemonic)-1]
	if !sizedMnemonics[strings.ToLower(root)] {
		return mnemonic, 0
	}
	return root, bits
}

func bitsModifier(bits uint) arch.Modifier {
	switch bits {
	case 8:
		return modifier("byte")
	case 16:
		return modifier("word")
	case 32:
		return modifier("dword")
	case 64:
		return modifier("qword")
	}
	return nil
}

// instruction parses a mnemonic and its comma-separated operand list in
// AT&T order (src, ..., dst) and reverses a two-operand list before
// calling arch.ParseInsn, whose contract is ops[0]=dst, ops[1]=src
// (confirmed against internal/arch/x86's encodeMov/encodeArithRR) -
// the one structural difference between the two dialects' instruction
// grammars.
func (p *Parser) instruction(t token) error {
	mnemonic, sizeBits := splitMnemonic(t.lit)
	sizeMod := bitsModifier(sizeBits)

	var ops []arch.Operand
	nt := p.next()
	if nt.kind != tokNewline && nt.kind != tokEOF {
		p.backup(nt)
		for {
			op, err := p.operand()
			if err != nil {
				return err
			}
			if sizeMod != nil && op.Reg == nil && len(op.Mods) == 0 {
				op.Mods = append(op.Mods, sizeMod)
			}
			ops = append(ops, op)
			ct := p.next()
			if ct.kind == tokComma {
				continue
			}
			p.backup(ct)
			break
		}
	}
	// AT&T writes a direct branch target as a bare expression ("jmp
	// start"), which operand() reads as an absolute memory reference; for
	// jmp/jcc/call such an operand is the target and is passed on as an
	// immediate.
	if lm := strings.ToLower(mnemonic); len(ops) == 1 && (lm == "call" || strings.HasPrefix(lm, "j")) {
		if m := ops[0].Mem; m != nil && m.Base == nil && m.Index == nil && m.Segment == nil {
			disp := m.Disp
			ops[0] = arch.Operand{Imm: &disp, Mods: ops[0].Mods}
		}
	}
	if len(ops) == 2 {
		ops[0], ops[1] = ops[1], ops[0]
	}

	enc, jumpRel, err := p.arch.ParseInsn(mnemonic, ops, p.pos(t.line, t.col), p.sink)
	if err != nil {
		p.sink.Errorf(p.pos(t.line, t.col), diag.KindType, "%v", err)
		return p.skipToNewline()
	}
	if jumpRel {
		p.obj.CurrentSection().Append(bytecode.NewJumpRelBytecode(enc))
	} else {
		p.obj.CurrentSection().Append(bytecode.NewInsnBytecode(enc))
	}
	return p.skipToNewline()
}

// operand parses one AT&T operand: a '$'-prefixed immediate, a
// '%'-prefixed register, or a disp(base,index,scale) memory reference
// (disp and the parenthesized part are both optional, but at least one
// must be present).
func (p *Parser) operand() (arch.Operand, error) {
	t := p.next()

	if t.kind == tokDollar {
		e, err := p.parseExpr()
		if err != nil {
			return arch.Operand{}, err
		}
		return arch.Operand{Imm: &e}, nil
	}

	if t.kind == tokPercent {
		reg, err := p.register()
		if err != nil {
			return arch.Operand{}, err
		}
		nt := p.next()
		if nt.kind == tokColon {
			// %seg:disp(...) segment-override memory operand.
			mem, err := p.memory()
			if err != nil {
				return arch.Operand{}, err
			}
			if sr, ok := reg.(arch.SegReg); ok {
				mem.Segment = sr
			}
			return arch.Operand{Mem: mem}, nil
		}
		p.backup(nt)
		return arch.Operand{Reg: reg}, nil
	}

	p.backup(t)
	mem, err := p.memory()
	if err != nil {
		return arch.Operand{}, err
	}
	return arch.Operand{Mem: mem}, nil
}

func (p *Parser) register() (arch.Register, error) {
	t := p.next()
	if t.kind != tokIdent {
		p.sink.Errorf(p.pos(t.line, t.col), diag.KindSyntax, "expected register name after '%%'")
		return nil, nil
	}
	reg, ok := p.arch.LookupRegister(t.lit)
	if !ok {
		p.sink.Errorf(p.pos(t.line, t.col), diag.KindSyntax, "unknown register %%%s", t.lit)
		return nil, nil
	}
	return reg, nil
}

// memory parses an optional leading displacement expression followed by
// an optional "(base,index,scale)" parenthesized group, the AT&T memory
// operand grammar (e.g. "-4(%ebp)", "(%eax,%ebx,4)", "table(,%eax,4)",
// "symbol(%rip)"). A bare displacement with no parentheses at all is a
// direct/absolute memory operand (no base/index).
func (p *Parser) memory() (*arch.EffectiveAddress, error) {
	ea := &arch.EffectiveAddress{Disp: expr.Int(intnum.Zero)}
	haveDisp := false

	t := p.next()
	if t.kind != tokLparen {
		p.backup(t)
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if s, serr := e.Simplify(false, nil); serr == nil {
			e = s
		}
		ea.Disp = e
		haveDisp = true
		t = p.next()
	}
	if !haveDisp {
		ea.Disp = expr.Int(intnum.Zero)
	}

	if t.kind != tokLparen {
		p.backup(t)
		return ea, nil
	}

	// base
	bt := p.next()
	if bt.kind == tokPercent {
		reg, err := p.register()
		if err != nil {
			return nil, err
		}
		ea.Base = reg
		bt = p.next()
	}
	if bt.kind == tokComma {
		// index
		it := p.next()
		if it.kind == tokPercent {
			reg, err := p.register()
			if err != nil {
				return nil, err
			}
			ea.Index = reg
		} else {
			p.backup(it)
		}
		ct := p.next()
		if ct.kind == tokComma {
			st := p.next()
			if st.kind == tokNumber {
				n, _ := strconv.ParseUint(st.lit, 10, 32)
				ea.Scale = uint(n)
			} else {
				p.backup(st)
			}
		} else {
			p.backup(ct)
		}
		bt = p.next()
	}
	if bt.kind != tokRparen {
		p.sink.Errorf(p.pos(bt.line, bt.col), diag.KindSyntax, "expected ')'")
	} else if ea.Index != nil && ea.Scale == 0 {
		ea.Scale = 1
	}
	return ea, nil
}

func (p *Parser) parseExpr() (expr.Expr, error) {
	return p.parseBinary(0)
}

// precLevels mirrors internal/parser/nasm's table: the bitwise and
// arithmetic tiers GAS's own constant-expression grammar needs, with no
// logical/relational operators since this module has no preprocessor
// for them to feed (see DESIGN.md).
var precLevels = [][]struct {
	kind tokenKind
	op   expr.Op
}{
	{{kind: tokPipe, op: expr.OpOr}},
	{{kind: tokCaret, op: expr.OpXor}},
	{{kind: tokAmp, op: expr.OpAnd}},
	{{kind: tokShl, op: expr.OpShl}, {kind: tokShr, op: expr.OpShr}},
	{{kind: tokPlus, op: expr.OpAdd}, {kind: tokMinus, op: expr.OpSub}},
	{{kind: tokStar, op: expr.OpMul}, {kind: tokSlash, op: expr.OpDiv}},
}

func (p *Parser) parseBinary(level int) (expr.Expr, error) {
	if level >= len(precLevels) {
		return p.parseUnary()
	}
	left, err := p.parseBinary(level + 1)
	if err != nil {
		return expr.Expr{}, err
	}
	for {
		t := p.next()
		var matched *expr.Op
		for _, cand := range precLevels[level] {
			if t.kind == cand.kind {
				op := cand.op
				matched = &op
				break
			}
		}
		if matched == nil {
			p.backup(t)
			return left, nil
		}
		right, err := p.parseBinary(level + 1)
		if err != nil {
			return expr.Expr{}, err
		}
		left = expr.Binary(*matched, left, right)
	}
}

func (p *Parser) parseUnary() (expr.Expr, error) {
	t := p.next()
	switch t.kind {
	case tokMinus:
		e, err := p.parseUnary()
		if err != nil {
			return expr.Expr{}, err
		}
		return expr.Unary(expr.OpNeg, e), nil
	case tokTilde:
		e, err := p.parseUnary()
		if err != nil {
			return expr.Expr{}, err
		}
		return expr.Unary(expr.OpNot, e), nil
	case tokPlus:
		return p.parseUnary()
	}
	p.backup(t)
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (expr.Expr, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		n, err := parseNumber(t.lit)
		if err != nil {
			p.sink.Errorf(p.pos(t.line, t.col), diag.KindValue, "%v", err)
			n = intnum.Zero
		}
		return expr.Int(n), nil
	case tokString:
		var n intnum.IntNum
		for i := 0; i < len(t.lit); i++ {
			n = n.Shl(8).Or(intnum.FromInt64(int64(t.lit[i])))
		}
		return expr.Int(n), nil
	case tokIdent:
		if t.lit == "." {
			return expr.Loc(p.here()), nil
		}
		sym := p.obj.Symbols().GetOrCreate(t.lit)
		sym.Use(p.pos(t.line, t.col))
		return expr.Sym(sym), nil
	}
	if t.kind == tokLparen {
		e, err := p.parseExpr()
		if err != nil {
			return expr.Expr{}, err
		}
		ct := p.next()
		if ct.kind != tokRparen {
			p.sink.Errorf(p.pos(ct.line, ct.col), diag.KindSyntax, "expected ')'")
		}
		return e, nil
	}
	p.sink.Errorf(p.pos(t.line, t.col), diag.KindSyntax, "unexpected token %q in expression", t.lit)
	return expr.Int(intnum.Zero), nil
}

// parseNumber decodes a GAS/C-style numeric literal: decimal, 0x
// hexadecimal, or a leading-zero octal run.
func parseNumber(lit string) (intnum.IntNum, error) {
	s := strings.ToLower(lit)
	base := 10
	switch {
	case strings.HasPrefix(s, "0x"):
		s, base = s[2:], 16
	case strings.HasPrefix(s, "0b"):
		s, base = s[2:], 2
	case len(s) > 1 && strings.HasPrefix(s, "0"):
		s, base = s[1:], 8
	}
	if s == "" {
		return intnum.Zero, fmt.Errorf("empty numeric literal %q", lit)
	}
	v, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		v2, err2 := strconv.ParseInt(s, base, 64)
		if err2 != nil {
			return intnum.Zero, fmt.Errorf("invalid numeric literal %q", lit)
		}
		return intnum.FromInt64(v2), nil
	}
	return intnum.FromUint64(v), nil
}
