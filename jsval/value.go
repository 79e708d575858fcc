package jsval

import (
	"fmt"
	"strconv"
)

// Value is any node in the target-source expression tree. Render produces
// the textual form that the Source Builder splices into statements; Value
// implementations must be side-effect free to render (side effects belong
// to statements, emitted by package builder).
type Value interface {
	Render() string
}

// --- constants ---

type constInt struct{ v int64 }

// ConstInt is a literal integer value.
func ConstInt(v int64) Value { return constInt{v} }

func (c constInt) Render() string { return strconv.FormatInt(c.v, 10) }

type constFloat struct{ v float64 }

// ConstFloat is a literal double value, always rendered with a decimal point
// so the target dialect's type inference sees a double.
func ConstFloat(v float64) Value { return constFloat{v} }

func (c constFloat) Render() string {
	s := strconv.FormatFloat(c.v, 'g', -1, 64)
	for _, r := range s {
		if r == '.' || r == 'e' || r == 'E' {
			return s
		}
	}
	return s + ".0"
}

type constPtr struct {
	addr int64
	root any // keeps a GC root alive for the lifetime of the emitted code
}

// ConstPtr is a constant address that additionally keeps a GC root alive,
// as required for any constant pointing at heap-managed memory (spec.md
// §4.2: "keeps a GC root alive").
func ConstPtr(addr int64, root any) Value { return constPtr{addr: addr, root: root} }

func (c constPtr) Render() string { return strconv.FormatInt(c.addr, 10) }

// Zero and Word are the two fixed scalar constants named in spec.md §4.2.
var Zero = ConstInt(0)

const WordSize = 4

var Word = ConstInt(WordSize)

// --- variables ---

type intVar struct{ name string }

// IntVar wraps an allocated integer variable name as a Value.
func IntVar(name string) Value { return intVar{name} }

func (v intVar) Render() string { return v.name }

type doubleVar struct{ name string }

// DoubleVar wraps an allocated double variable name as a Value.
func DoubleVar(name string) Value { return doubleVar{name} }

func (v doubleVar) Render() string { return v.name }

// Frame and Label are the two fixed positional variables every compiled
// function receives (spec.md §4.2, §6: (label, frame) ABI).
var (
	Frame = IntVar("frame")
	Label = IntVar("label")
)

// --- heap access ---

type heapData struct {
	typ  HeapType
	addr Value
}

// HeapData reads a typed value from the target's flat heap/memory view.
func HeapData(typ HeapType, addr Value) Value { return heapData{typ, addr} }

func (h heapData) Render() string {
	view := heapViewName(h.typ)
	return fmt.Sprintf("%s[(%s)>>%d]", view, h.addr.Render(), shiftFor(h.typ.Size))
}

func heapViewName(t HeapType) string {
	switch {
	case t.Float && t.Size == 4:
		return "HEAPF32"
	case t.Float:
		return "HEAPF64"
	case t.Size == 1 && t.Signed:
		return "HEAP8"
	case t.Size == 1:
		return "HEAPU8"
	case t.Size == 2 && t.Signed:
		return "HEAP16"
	case t.Size == 2:
		return "HEAPU16"
	case t.Signed:
		return "HEAP32"
	default:
		return "HEAPU32"
	}
}

func shiftFor(size int) int {
	switch size {
	case 1:
		return 0
	case 2:
		return 1
	case 4:
		return 2
	case 8:
		return 3
	default:
		panic(fmt.Sprintf("jsval: invalid heap access size %d", size))
	}
}

// --- well-known frame addresses (spec.md §4.2, §4.3) ---

// These offsets are provided externally by get_ofs_of_frame_field (spec.md
// §6); the backend treats them as opaque constants configured once at
// startup. A FrameLayout is built from frame.Slots (Slots.Layout).
type FrameLayout struct {
	DescrOfs      int64
	ForceDescrOfs int64
	GuardExcOfs   int64
	GCMapOfs      int64
	SizeOfs       int64
	NextCallOfs   int64
}

func FrameSlotAddr(frame Value, off int) Value {
	return Plus(frame, ConstInt(int64(off)))
}

func (l FrameLayout) DescrAddr(frame Value) Value {
	return Plus(frame, ConstInt(l.DescrOfs))
}

func (l FrameLayout) ForceDescrAddr(frame Value) Value {
	return Plus(frame, ConstInt(l.ForceDescrOfs))
}

func (l FrameLayout) GuardExcAddr(frame Value) Value {
	return Plus(frame, ConstInt(l.GuardExcOfs))
}

func (l FrameLayout) GCMapAddr(frame Value) Value {
	return Plus(frame, ConstInt(l.GCMapOfs))
}

func (l FrameLayout) SizeAddr(frame Value) Value {
	return Plus(frame, ConstInt(l.SizeOfs))
}

func (l FrameLayout) NextCallAddr(frame Value) Value {
	return Plus(frame, ConstInt(l.NextCallOfs))
}
