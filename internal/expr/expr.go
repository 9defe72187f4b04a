// Package expr implements Expr, the symbolic expression tree used for
// every computed quantity in the assembler: immediates, displacements,
// EQU values, and (after Simplify) label distances within a section.
//
// Storage is a flattened postfix term vector (spec.md §3, §4.1 "Expr"):
// leaves are IntNum, a symbol reference, a Location, a register
// reference, or a float; interior nodes are operators from a fixed set.
// Simplify and the other rewrite passes build an ephemeral tree from the
// postfix form, walk it recursively (where the algorithms are easiest to
// state correctly), and flatten the result back to postfix for storage -
// the in-place-rewrite benefit the original's flattened representation
// exists for is preserved at the storage layer even though the rewrite
// passes themselves are tree-shaped; see DESIGN.md.
package expr

import (
	"fmt"

	"yasmgo/internal/intnum"
	"yasmgo/internal/loc"
)

// SymbolRef is the minimal view Expr needs of a symbol: just its name,
// for display, plus an optional richer LocatedSymbol capability used by
// the distance law. Defined here (not imported from internal/symbol) so
// that internal/symbol can depend on internal/expr (for EQU values)
// without creating an import cycle; *symbol.Symbol satisfies this
// structurally.
type SymbolRef interface {
	SymbolName() string
}

// LocatedSymbol is a SymbolRef that is currently a defined label, i.e.
// knows its own Location. Used by the distance law in Simplify (when
// calcDist is true).
type LocatedSymbol interface {
	SymbolRef
	Label() (loc.Location, bool)
}

// EquSymbol is a SymbolRef whose definition is itself an expression
// (spec.md §4.2 "equ"). Simplify inlines a leaf's equ expression
// wherever it appears, re-simplifying the substituted subtree so
// equ-to-equ chains ("a equ b; b equ 7") resolve transitively, the way
// LocatedSymbol's Label lets the distance law use label positions.
// *symbol.Symbol satisfies this structurally via EquExpr, which returns
// the raw (possibly still unresolved) expression regardless of valued
// status, so each Simplify pass can make further progress on a chain
// that wasn't yet fully constant the last time it ran.
type EquSymbol interface {
	SymbolRef
	EquExpr() *Expr
}

// RegisterRef is the minimal view Expr needs of an architecture register:
// a display name. Architecture backends' register types satisfy this
// structurally.
type RegisterRef interface {
	RegisterName() string
}

// Op is an expression operator.
type Op int

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpSignDiv
	OpMod
	OpSignMod
	OpNeg // unary
	OpAnd
	OpOr
	OpXor
	OpNot // unary
	OpShl
	OpShr
	OpLT
	OpGT
	OpLE
	OpGE
	OpEQ
	OpNE
	OpLAnd
	OpLOr
	OpLNot // unary
	OpSeg  // unary: SEG x
	OpWRT  // binary: x WRT y
	OpSegOff
)

func (o Op) arity() int {
	switch o {
	case OpNeg, OpNot, OpLNot, OpSeg:
		return 1
	default:
		return 2
	}
}

func (o Op) String() string {
	names := map[Op]string{
		OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpSignDiv: "//",
		OpMod: "%", OpSignMod: "%%", OpNeg: "neg", OpAnd: "&", OpOr: "|",
		OpXor: "^", OpNot: "~", OpShl: "<<", OpShr: ">>", OpLT: "<",
		OpGT: ">", OpLE: "<=", OpGE: ">=", OpEQ: "==", OpNE: "!=",
		OpLAnd: "&&", OpLOr: "||", OpLNot: "!", OpSeg: "SEG", OpWRT: "WRT",
		OpSegOff: ":",
	}
	if s, ok := names[o]; ok {
		return s
	}
	return "?"
}

type termKind int

const (
	leafInt termKind = iota
	leafSym
	leafLoc
	leafReg
	leafFloat
	nodeOp
)

// term is one flattened postfix entry.
type term struct {
	kind  termKind
	op    Op
	n     intnum.IntNum
	sym   SymbolRef
	at    loc.Location
	reg   RegisterRef
	float float64
}

// Expr is a symbolic expression, stored as a postfix (RPN) term vector.
type Expr struct {
	terms []term
}

func Int(n intnum.IntNum) Expr   { return Expr{terms: []term{{kind: leafInt, n: n}}} }
func Sym(s SymbolRef) Expr       { return Expr{terms: []term{{kind: leafSym, sym: s}}} }
func Loc(l loc.Location) Expr    { return Expr{terms: []term{{kind: leafLoc, at: l}}} }
func Reg(r RegisterRef) Expr     { return Expr{terms: []term{{kind: leafReg, reg: r}}} }
func Float(f float64) Expr       { return Expr{terms: []term{{kind: leafFloat, float: f}}} }

// Binary builds a new Expr applying a binary operator to two
// sub-expressions, concatenating their postfix vectors.
func Binary(op Op, a, b Expr) Expr {
	out := make([]term, 0, len(a.terms)+len(b.terms)+1)
	out = append(out, a.terms...)
	out = append(out, b.terms...)
	out = append(out, term{kind: nodeOp, op: op})
	return Expr{terms: out}
}

// Unary builds a new Expr applying a unary operator.
func Unary(op Op, a Expr) Expr {
	out := make([]term, 0, len(a.terms)+1)
	out = append(out, a.terms...)
	out = append(out, term{kind: nodeOp, op: op})
	return Expr{terms: out}
}

// IsEmpty reports whether the expression has no terms.
func (e Expr) IsEmpty() bool { return len(e.terms) == 0 }

// --- tree view, used internally by Simplify/Extract/Transform ---

type tnode struct {
	kind  termKind
	op    Op
	n     intnum.IntNum
	sym   SymbolRef
	at    loc.Location
	reg   RegisterRef
	float float64
	kids  []*tnode
}

func (e Expr) toTree() (*tnode, error) {
	var stack []*tnode
	for _, t := range e.terms {
		if t.kind != nodeOp {
			stack = append(stack, &tnode{kind: t.kind, n: t.n, sym: t.sym, at: t.at, reg: t.reg, float: t.float})
			continue
		}
		ar := t.op.arity()
		if len(stack) < ar {
			return nil, fmt.Errorf("expr: malformed postfix term vector")
		}
		kids := append([]*tnode(nil), stack[len(stack)-ar:]...)
		stack = stack[:len(stack)-ar]
		stack = append(stack, &tnode{kind: nodeOp, op: t.op, kids: kids})
	}
	if len(stack) != 1 {
		if len(stack) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("expr: malformed postfix term vector")
	}
	return stack[0], nil
}

func (n *tnode) flatten(out *[]term) {
	if n == nil {
		return
	}
	if n.kind == nodeOp {
		for _, k := range n.kids {
			k.flatten(out)
		}
		*out = append(*out, term{kind: nodeOp, op: n.op})
		return
	}
	*out = append(*out, term{kind: n.kind, n: n.n, sym: n.sym, at: n.at, reg: n.reg, float: n.float})
}

func fromTree(n *tnode) Expr {
	if n == nil {
		return Expr{}
	}
	var out []term
	n.flatten(&out)
	return Expr{terms: out}
}

func isIntLeaf(n *tnode) (intnum.IntNum, bool) {
	if n.kind == leafInt {
		return n.n, true
	}
	return intnum.Zero, false
}

// DistFunc computes a's absolute position minus b's, within the same
// container, per the distance law (spec.md §4.1): "sym_a - sym_b"
// resolves to dist(location_of_a, location_of_b). It returns ok=false if
// the Locations are not in the same container or an intervening
// bytecode's length is not yet known.
type DistFunc func(a, b loc.Location) (intnum.IntNum, bool)

func nodeLocation(n *tnode) (loc.Location, bool) {
	if n.kind == leafLoc {
		return n.at, true
	}
	if n.kind == leafSym {
		if ls, ok := n.sym.(LocatedSymbol); ok {
			return ls.Label()
		}
	}
	return loc.Location{}, false
}

// Simplify constant-folds and canonicalizes the expression. When
// calcDist is true, it additionally looks for "sym_a - sym_b" leaf pairs
// whose symbols are currently defined labels and rewrites them to the
// IntNum distance via dist, when dist succeeds (spec.md §4.1 "distance
// law"). dist may be nil when calcDist is false.
func (e Expr) Simplify(calcDist bool, dist DistFunc) (Expr, error) {
	root, err := e.toTree()
	if err != nil {
		return Expr{}, err
	}
	root, err = simplifyNode(root, calcDist, dist)
	if err != nil {
		return Expr{}, err
	}
	return fromTree(root), nil
}

// maxEquChain bounds equ-symbol inlining (e.g. "a equ b; b equ c; ..."),
// guarding against a mutual-reference cycle rather than any realistic
// chain depth.
const maxEquChain = 64

func simplifyNode(n *tnode, calcDist bool, dist DistFunc) (*tnode, error) {
	return simplifyNodeDepth(n, calcDist, dist, 0)
}

func simplifyNodeDepth(n *tnode, calcDist bool, dist DistFunc, depth int) (*tnode, error) {
	if n == nil {
		return n, nil
	}
	if n.kind == leafSym {
		if eq, ok := n.sym.(EquSymbol); ok {
			if sub := eq.EquExpr(); sub != nil {
				if depth >= maxEquChain {
					return nil, fmt.Errorf("expr: equ chain too deep resolving %q (possible cycle)", n.sym.SymbolName())
				}
				subRoot, err := sub.toTree()
				if err != nil {
					return nil, err
				}
				return simplifyNodeDepth(subRoot, calcDist, dist, depth+1)
			}
		}
		return n, nil
	}
	if n.kind != nodeOp {
		return n, nil
	}
	for i, k := range n.kids {
		sk, err := simplifyNodeDepth(k, calcDist, dist, depth)
		if err != nil {
			return nil, err
		}
		n.kids[i] = sk
	}

	// distance law: (label or Location) - (label or Location) -> IntNum,
	// before the generic identity rules below (both operands may
	// otherwise look like opaque leaves with no further rule to apply).
	if calcDist && n.op == OpSub && len(n.kids) == 2 && dist != nil {
		if la, laok := nodeLocation(n.kids[0]); laok {
			if lb, lbok := nodeLocation(n.kids[1]); lbok {
				if d, ok := dist(la, lb); ok {
					return &tnode{kind: leafInt, n: d}, nil
				}
			}
		}
	}

	// constant folding
	if allInt, vals := collectInts(n); allInt {
		v, err := applyOp(n.op, vals)
		if err != nil {
			return nil, err
		}
		return &tnode{kind: leafInt, n: v}, nil
	}

	return applyIdentities(n), nil
}

func collectInts(n *tnode) (bool, []intnum.IntNum) {
	vals := make([]intnum.IntNum, 0, len(n.kids))
	for _, k := range n.kids {
		v, ok := isIntLeaf(k)
		if !ok {
			return false, nil
		}
		vals = append(vals, v)
	}
	return true, vals
}

func applyOp(op Op, v []intnum.IntNum) (intnum.IntNum, error) {
	if op.arity() == 1 {
		a := v[0]
		switch op {
		case OpNeg:
			return a.Neg(), nil
		case OpNot:
			return a.Not(), nil
		case OpLNot:
			if a.Sign() == 0 {
				return intnum.FromInt64(1), nil
			}
			return intnum.Zero, nil
		case OpSeg:
			return a, nil
		}
		return intnum.Zero, fmt.Errorf("expr: unsupported unary op %v", op)
	}
	a, b := v[0], v[1]
	switch op {
	case OpAdd:
		return a.Add(b), nil
	case OpSub:
		return a.Sub(b), nil
	case OpMul:
		return a.Mul(b), nil
	case OpDiv, OpSignDiv:
		return a.Div(b)
	case OpMod, OpSignMod:
		return a.Mod(b)
	case OpAnd:
		return a.And(b), nil
	case OpOr:
		return a.Or(b), nil
	case OpXor:
		return a.Xor(b), nil
	case OpShl:
		n, _ := b.GetUInt()
		return a.Shl(uint(n)), nil
	case OpShr:
		n, _ := b.GetUInt()
		return a.Shr(uint(n)), nil
	case OpLT:
		return boolInt(a.Cmp(b) < 0), nil
	case OpGT:
		return boolInt(a.Cmp(b) > 0), nil
	case OpLE:
		return boolInt(a.Cmp(b) <= 0), nil
	case OpGE:
		return boolInt(a.Cmp(b) >= 0), nil
	case OpEQ:
		return boolInt(a.Cmp(b) == 0), nil
	case OpNE:
		return boolInt(a.Cmp(b) != 0), nil
	case OpLAnd:
		return boolInt(a.Sign() != 0 && b.Sign() != 0), nil
	case OpLOr:
		return boolInt(a.Sign() != 0 || b.Sign() != 0), nil
	}
	return intnum.Zero, fmt.Errorf("expr: unsupported binary op %v", op)
}

func boolInt(b bool) intnum.IntNum {
	if b {
		return intnum.FromInt64(1)
	}
	return intnum.Zero
}

// applyIdentities removes identity operations (x+0, x*1, 0*x, x-0, x|0,
// x&~0, etc.) per spec.md §3's Expr invariant: "after Simplify, no node
// is an identity."
func applyIdentities(n *tnode) *tnode {
	if n.op.arity() != 2 {
		return n
	}
	l, r := n.kids[0], n.kids[1]
	lv, lok := isIntLeaf(l)
	rv, rok := isIntLeaf(r)

	switch n.op {
	case OpAdd:
		if rok && rv.Sign() == 0 {
			return l
		}
		if lok && lv.Sign() == 0 {
			return r
		}
	case OpSub:
		if rok && rv.Sign() == 0 {
			return l
		}
	case OpMul:
		if rok && rv.Equal(intnum.FromInt64(1)) {
			return l
		}
		if lok && lv.Equal(intnum.FromInt64(1)) {
			return r
		}
		if (rok && rv.Sign() == 0) || (lok && lv.Sign() == 0) {
			return &tnode{kind: leafInt, n: intnum.Zero}
		}
	case OpOr, OpXor:
		if rok && rv.Sign() == 0 {
			return l
		}
		if lok && lv.Sign() == 0 {
			return r
		}
	case OpAnd:
		allOnes := intnum.FromInt64(-1)
		if rok && rv.Equal(allOnes) {
			return l
		}
		if lok && lv.Equal(allOnes) {
			return r
		}
	case OpShl, OpShr:
		if rok && rv.Sign() == 0 {
			return l
		}
	}
	return n
}

// ExtractSegOff splits a root-level "seg:off" node into its two halves.
// ok is false if the expression's root is not a OpSegOff node.
func (e Expr) ExtractSegOff() (seg, off Expr, ok bool) {
	root, err := e.toTree()
	if err != nil || root == nil || root.kind != nodeOp || root.op != OpSegOff {
		return Expr{}, Expr{}, false
	}
	return fromTree(root.kids[0]), fromTree(root.kids[1]), true
}

// ExtractDeepSegOff searches the whole tree for a OpSegOff node (not
// just the root) and, if found, returns its two halves and a copy of the
// expression with that subtree replaced by just its offset half.
func (e Expr) ExtractDeepSegOff() (seg, off Expr, rest Expr, ok bool) {
	root, err := e.toTree()
	if err != nil {
		return Expr{}, Expr{}, e, false
	}
	var found *tnode
	var walk func(n *tnode) *tnode
	walk = func(n *tnode) *tnode {
		if n == nil || n.kind != nodeOp {
			return n
		}
		if found == nil && n.op == OpSegOff {
			found = n
			return n.kids[1]
		}
		for i, k := range n.kids {
			n.kids[i] = walk(k)
		}
		return n
	}
	newRoot := walk(root)
	if found == nil {
		return Expr{}, Expr{}, e, false
	}
	return fromTree(found.kids[0]), fromTree(found.kids[1]), fromTree(newRoot), true
}

// TopLevelBinary reports whether the expression's root node is a binary
// operator matching one of ops, returning its two operands and which op
// matched. Used by the value package to decompose a simplified Expr into
// a sum of signed terms without needing the internal tree shape.
func (e Expr) TopLevelBinary(ops ...Op) (left, right Expr, op Op, ok bool) {
	root, err := e.toTree()
	if err != nil || root == nil || root.kind != nodeOp {
		return Expr{}, Expr{}, 0, false
	}
	for _, want := range ops {
		if root.op == want {
			return fromTree(root.kids[0]), fromTree(root.kids[1]), want, true
		}
	}
	return Expr{}, Expr{}, 0, false
}

// LeafTransform rewrites every leaf for which fn returns ok, replacing it
// with the returned Expr's root. Used by architecture backends to lower
// generic nodes (e.g. rewriting SEG x into an arch-specific form) without
// the caller needing to know the internal tree shape.
func (e Expr) LeafTransform(fn func(isOp bool, op Op, n intnum.IntNum, sym SymbolRef, at loc.Location, reg RegisterRef, float float64) (Expr, bool)) Expr {
	root, err := e.toTree()
	if err != nil {
		return e
	}
	var walk func(n *tnode) *tnode
	walk = func(n *tnode) *tnode {
		if n == nil {
			return nil
		}
		if n.kind == nodeOp {
			for i, k := range n.kids {
				n.kids[i] = walk(k)
			}
			if rep, ok := fn(true, n.op, intnum.Zero, nil, loc.Location{}, nil, 0); ok {
				rt, _ := rep.toTree()
				return rt
			}
			return n
		}
		if rep, ok := fn(false, 0, n.n, n.sym, n.at, n.reg, n.float); ok {
			rt, _ := rep.toTree()
			return rt
		}
		return n
	}
	return fromTree(walk(root))
}

// AsIntNum reports whether the (already-simplified) expression is a
// single IntNum leaf, returning its value.
func (e Expr) AsIntNum() (intnum.IntNum, bool) {
	if len(e.terms) != 1 || e.terms[0].kind != leafInt {
		return intnum.Zero, false
	}
	return e.terms[0].n, true
}

// AsSymbol reports whether the expression is a single symbol-reference
// leaf.
func (e Expr) AsSymbol() (SymbolRef, bool) {
	if len(e.terms) != 1 || e.terms[0].kind != leafSym {
		return nil, false
	}
	return e.terms[0].sym, true
}

// AsLocation reports whether the expression is a single Location leaf.
func (e Expr) AsLocation() (loc.Location, bool) {
	if len(e.terms) != 1 || e.terms[0].kind != leafLoc {
		return loc.Location{}, false
	}
	return e.terms[0].at, true
}

func (e Expr) String() string {
	root, err := e.toTree()
	if err != nil || root == nil {
		return "<invalid-expr>"
	}
	return nodeString(root)
}

func nodeString(n *tnode) string {
	switch n.kind {
	case leafInt:
		return n.n.String()
	case leafSym:
		return n.sym.SymbolName()
	case leafLoc:
		return "<loc>"
	case leafReg:
		return n.reg.RegisterName()
	case leafFloat:
		return fmt.Sprintf("%g", n.float)
	default:
		if n.op.arity() == 1 {
			return fmt.Sprintf("%s(%s)", n.op, nodeString(n.kids[0]))
		}
		return fmt.Sprintf("(%s %s %s)", nodeString(n.kids[0]), n.op, nodeString(n.kids[1]))
	}
}
