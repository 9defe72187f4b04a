// Package directive implements the directives registry: a case-sensitive
// name to handler map with pre-validated argument kind (spec.md §4.6).
package directive

import (
	"fmt"

	"yasmgo/internal/diag"
	"yasmgo/internal/object"
)

// Flags describes what shape of call a directive accepts.
type Flags int

const (
	// ANY accepts any combination of positional/extension NameValues.
	ANY Flags = 0
	// ArgRequired means at least one positional NameValue must be present.
	ArgRequired Flags = 1 << iota
	// IDRequired means the first positional NameValue must be a bare
	// identifier (not a string or expression).
	IDRequired
	// NeedsSection means the directive is rejected if no section is
	// currently selected (spec.md SPEC_FULL.md supplement: most data and
	// alignment directives require this; SECTION/file-scope ones don't).
	NeedsSection
)

// ValueKind tags what a NameValue actually holds.
type ValueKind int

const (
	KindString ValueKind = iota
	KindIdentifier
	KindExpr
)

// NameValue is one positional or object-format-extension argument to a
// directive. Handlers may mutate NameValues in place (move, not copy),
// per spec.md §4.6.
type NameValue struct {
	Name string // empty for purely positional values
	Kind ValueKind
	Str  string
	Expr interface{} // *expr.Expr, kept untyped so this registry-level package need not import expr
}

// Info bundles everything a handler needs: the Object being assembled,
// positional and object-format-extension argument lists, and the
// directive's source location (spec.md §4.6 "DirectiveInfo").
type Info struct {
	Obj        *object.Object
	Positional []NameValue
	ObjExt     []NameValue
	Pos        diag.Pos
}

// Handler processes one directive invocation.
type Handler func(info *Info, sink *diag.Sink) error

type entry struct {
	flags   Flags
	handler Handler
}

// Registry is the case-sensitive name->handler map.
type Registry struct {
	entries map[string]entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds name with its dispatch flags and handler. Registering
// the same name twice is a programming error (plugins must not collide).
func (r *Registry) Register(name string, flags Flags, h Handler) error {
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("directive: %q already registered", name)
	}
	r.entries[name] = entry{flags: flags, handler: h}
	return nil
}

// Lookup reports whether name is registered.
func (r *Registry) Lookup(name string) (Flags, Handler, bool) {
	e, ok := r.entries[name]
	return e.flags, e.handler, ok
}

// Dispatch validates info against the registered flags before invoking
// the handler (spec.md §4.6: "the dispatcher rejects mismatched calls
// before invoking the handler").
func (r *Registry) Dispatch(name string, info *Info, sink *diag.Sink) error {
	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("directive: unknown directive %q", name)
	}
	if e.flags&ArgRequired != 0 && len(info.Positional) == 0 {
		return fmt.Errorf("directive: %q requires at least one argument", name)
	}
	if e.flags&IDRequired != 0 {
		if len(info.Positional) == 0 || info.Positional[0].Kind != KindIdentifier {
			return fmt.Errorf("directive: %q requires an identifier argument", name)
		}
	}
	if e.flags&NeedsSection != 0 && info.Obj.CurrentSection() == nil {
		return fmt.Errorf("directive: %q requires an active section", name)
	}
	return e.handler(info, sink)
}

// Names returns every registered directive name, for diagnostics/help
// text.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	return out
}
