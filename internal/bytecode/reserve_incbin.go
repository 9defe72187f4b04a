package bytecode

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"yasmgo/internal/expr"
)

// NewReserveBytecode creates an uninitialised-space bytecode of Size
// bytes (spec.md §4.4 "Reserve"); Size may be a non-constant Expr at
// construction time, as long as it folds to a constant by CalcLen.
func NewReserveBytecode(size expr.Expr) *Bytecode {
	return &Bytecode{id: allocID(), kind: KindReserve, reserve: reservePayload{size: size}}
}

type reservePayload struct {
	size      expr.Expr
	cachedLen uint64
}

func (p *reservePayload) calcLen() (uint64, error) {
	simplified, err := p.size.Simplify(false, nil)
	if err != nil {
		return 0, err
	}
	n, ok := simplified.AsIntNum()
	if !ok {
		return 0, fmt.Errorf("bytecode: RESERVE size is not constant")
	}
	u, ok := n.GetUInt()
	if !ok {
		return 0, fmt.Errorf("bytecode: RESERVE size out of range")
	}
	p.cachedLen = u
	return u, nil
}

func (p *reservePayload) output(w io.Writer) error {
	_, err := w.Write(make([]byte, p.cachedLen))
	return err
}

// NewIncbinBytecode creates a bytecode that emits raw bytes read from
// path, optionally sliced by [start, start+length) (spec.md §4.4
// "Incbin"). A length of 0 means "to end of file".
func NewIncbinBytecode(path string, start, length uint64) *Bytecode {
	return &Bytecode{id: allocID(), kind: KindIncbin, incbin: incbinPayload{path: path, start: start, length: length}}
}

type incbinPayload struct {
	path      string
	start     uint64
	length    uint64
	cachedLen uint64
	data      []byte
	loaded    bool
}

func (p *incbinPayload) calcLen() (uint64, error) {
	if !p.loaded {
		raw, err := os.ReadFile(p.path)
		if err != nil {
			return 0, fmt.Errorf("bytecode: incbin %q: %w", p.path, err)
		}
		if p.start > uint64(len(raw)) {
			return 0, fmt.Errorf("bytecode: incbin %q: start %d beyond file length %d", p.path, p.start, len(raw))
		}
		raw = raw[p.start:]
		if p.length != 0 {
			if p.length > uint64(len(raw)) {
				return 0, fmt.Errorf("bytecode: incbin %q: length %d beyond available %d", p.path, p.length, len(raw))
			}
			raw = raw[:p.length]
		}
		p.data = raw
		p.loaded = true
	}
	p.cachedLen = uint64(len(p.data))
	return p.cachedLen, nil
}

func (p *incbinPayload) output(w io.Writer) error {
	_, err := io.Copy(w, bytes.NewReader(p.data))
	return err
}
