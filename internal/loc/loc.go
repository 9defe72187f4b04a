// Package loc defines Location, the (bytecode, offset-in-bytecode) pair
// used throughout the core to name a byte position within a section
// before final layout (spec.md §3 "Location"). It is a leaf package so
// that both internal/expr and internal/bytecode can depend on it without
// creating an import cycle between them.
package loc

// BC is the identity a bytecode exposes to a Location. bytecode.Bytecode
// implements this; Location never needs the full bytecode type.
type BC interface {
	// BCID is a value unique to this bytecode within its owning Object,
	// stable for the bytecode's lifetime. Two Locations naming the same
	// bytecode compare equal BCIDs.
	BCID() uint64

	// ResolvedOffset returns the bytecode's offset within its container
	// and whether that offset is final (the bytecode has been through
	// layout at least once). Used by the distance law (spec.md §4.1).
	ResolvedOffset() (offset uint64, ok bool)

	// Len returns the bytecode's current length and whether it is final
	// (vs. still provisional, pre-optimisation).
	Len() (length uint64, final bool)
}

// Location is a (bytecode, offset) pair: a byte position within a
// section that has not yet necessarily been assigned a final address.
type Location struct {
	BC     BC
	Offset uint64
}

// Valid reports whether the Location names a bytecode at all (the zero
// Location is invalid).
func (l Location) Valid() bool { return l.BC != nil }

// SameBytecode reports whether two Locations name the identical bytecode.
func SameBytecode(a, b Location) bool {
	return a.BC != nil && b.BC != nil && a.BC.BCID() == b.BC.BCID()
}
