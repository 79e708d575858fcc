// Package jsval implements the Value IR of spec.md §4.2: a tagged tree of
// target-source expressions (constants, variables, heap loads, arithmetic,
// casts, calls) plus the HeapType descriptors used to size and sign memory
// accesses. Nothing in this package touches statements or control flow;
// that belongs to package builder.
package jsval

import (
	"fmt"

	"github.com/mna/asmjit/ir"
)

// HeapType describes the size and signedness of a typed memory access, and
// how it is rendered in target source (spec.md §4.2).
type HeapType struct {
	name   string
	Size   int
	Signed bool
	Float  bool
}

var (
	Int8    = HeapType{name: "Int8", Size: 1, Signed: true}
	UInt8   = HeapType{name: "UInt8", Size: 1, Signed: false}
	Int16   = HeapType{name: "Int16", Size: 2, Signed: true}
	UInt16  = HeapType{name: "UInt16", Size: 2, Signed: false}
	Int32   = HeapType{name: "Int32", Size: 4, Signed: true}
	Int64   = HeapType{name: "Int64", Size: 8, Signed: true}
	Float32 = HeapType{name: "Float32", Size: 4, Float: true}
	Float64 = HeapType{name: "Float64", Size: 8, Float: true}
)

func (t HeapType) String() string { return t.name }

// FromSizeAndSign is the factory named in spec.md §4.2.
func FromSizeAndSign(size int, signed bool) HeapType {
	switch size {
	case 1:
		if signed {
			return Int8
		}
		return UInt8
	case 2:
		if signed {
			return Int16
		}
		return UInt16
	case 4:
		if signed {
			return Int32
		}
		// unsigned 32-bit values still live in an Int32 heap view; the backend
		// applies UnsignedCast at the point of use (spec.md §4.4).
		return Int32
	case 8:
		return Int64
	default:
		panic(fmt.Sprintf("jsval: unsupported heap access size %d", size))
	}
}

// FromKind maps an ir.Kind to its natural HeapType.
func FromKind(k ir.Kind) HeapType {
	switch k {
	case ir.INT, ir.REF:
		return Int32
	case ir.FLOAT:
		return Float64
	default:
		panic(fmt.Sprintf("jsval: no heap type for kind %s", k))
	}
}

// FromBox is a convenience wrapper named in spec.md §4.2.
func FromBox(b *ir.Box) HeapType {
	if b == nil {
		return Int32
	}
	return FromKind(b.Kind)
}
