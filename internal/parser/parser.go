// Package parser selects a source dialect by name (spec.md §6
// "parser_keyword: nasm or gas") and hands the driver back a uniform
// handle to run it, without the driver needing to import
// internal/parser/nasm or internal/parser/gas directly.
package parser

import (
	"fmt"
	"io"

	"yasmgo/internal/arch"
	"yasmgo/internal/diag"
	"yasmgo/internal/directive"
	"yasmgo/internal/object"
	"yasmgo/internal/parser/gas"
	"yasmgo/internal/parser/nasm"
)

// Dialect is the contract every source-syntax frontend satisfies: read
// from the underlying reader to EOF, lowering directly into the Object
// it was constructed against.
type Dialect interface {
	Parse() error
}

// New constructs the named dialect's parser. name is one of Names()'s
// entries (case-sensitive, matching spec.md §6's parser_keyword values).
func New(name string, r io.Reader, filename string, obj *object.Object, a arch.Architecture, dirs *directive.Registry, sink *diag.Sink) (Dialect, error) {
	switch name {
	case nasm.Name:
		return nasm.New(r, filename, obj, a, dirs, sink), nil
	case gas.Name:
		return gas.New(r, filename, obj, a, dirs, sink), nil
	default:
		return nil, fmt.Errorf("parser: unknown dialect %q", name)
	}
}

// Names lists every registered dialect name, in a stable order (e.g. for
// a CLI's usage text or flag validation).
func Names() []string {
	return []string{nasm.Name, gas.Name}
}
