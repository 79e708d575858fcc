// Package ir implements the data model a trace is made of: Boxes, the
// immutable Operations that consume and produce them, and the descriptors
// that carry the declarative metadata of fields, arrays, calls, labels and
// guards. It has no knowledge of how any of this gets lowered to source
// text; see package compiler for that.
package ir

import "fmt"

// Kind is the type tag of a Box: the three value kinds the backend tracks,
// plus HOLE for an unused argument slot.
type Kind uint8

const (
	HOLE Kind = iota
	INT
	REF
	FLOAT
)

func (k Kind) String() string {
	switch k {
	case HOLE:
		return "hole"
	case INT:
		return "int"
	case REF:
		return "ref"
	case FLOAT:
		return "float"
	default:
		return fmt.Sprintf("illegal kind (%d)", uint8(k))
	}
}

// Box is a symbolic operand. Identity matters: two boxes of equal Kind (and,
// for constants, equal value) are still distinct unless they are the same
// *Box. Boxes appear in operation args, results, and failargs lists.
type Box struct {
	Kind Kind
	name string // debug name set via SetDebugName (package traceasm), for disassembly
}

// NewBox allocates a new Box of the given kind. Every call returns a
// distinct identity even if an identically-kinded Box already exists.
func NewBox(k Kind) *Box { return &Box{Kind: k} }

func (b *Box) String() string {
	if b == nil {
		return "-"
	}
	if b.name != "" {
		return b.name
	}
	return fmt.Sprintf("%s@%p", b.Kind, b)
}

// SetDebugName attaches a human-readable name to the box, used only by the
// disassembler and error messages; it has no effect on identity.
func (b *Box) SetDebugName(name string) { b.name = name }
