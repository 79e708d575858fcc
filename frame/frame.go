// Package frame implements the Frame & GC-Map Layer of spec.md §4.3: offset
// assignment for Boxes with natural-size alignment, bitmap GC-map
// construction, and addressing of the well-known frame slots shared by
// every compiled function.
package frame

import (
	"fmt"

	"github.com/mna/asmjit/ir"
	"github.com/mna/asmjit/jsval"
)

// WordSize is the machine word size in bytes, matching jsval.WordSize.
const WordSize = jsval.WordSize

// sizeOf returns the natural size in bytes of a frame slot holding a value
// of kind k. INT and REF are word-sized; FLOAT is double-wide.
func sizeOf(k ir.Kind) int {
	if k == ir.FLOAT {
		return 8
	}
	return WordSize
}

// alignUp rounds offset up to the next multiple of size.
func alignUp(offset, size int) int {
	if size <= 0 {
		panic(fmt.Sprintf("frame: invalid slot size %d", size))
	}
	if r := offset % size; r != 0 {
		offset += size - r
	}
	return offset
}

// Layout is the result of assigning frame offsets to a sequence of kinds,
// spec.md §4.3: "compute [offset] using natural alignment".
type Layout struct {
	Kinds   []ir.Kind
	Offsets []int
	// MaxOffset is one past the highest byte used by any assigned slot,
	// i.e. the frame depth this layout requires.
	MaxOffset int
}

// Assign computes natural-size-aligned, non-overlapping offsets for kinds,
// starting from startOffset (e.g. past any already-reserved header words).
func Assign(kinds []ir.Kind, startOffset int) Layout {
	l := Layout{Kinds: kinds, Offsets: make([]int, len(kinds))}
	off := startOffset
	for i, k := range kinds {
		size := sizeOf(k)
		off = alignUp(off, size)
		l.Offsets[i] = off
		off += size
	}
	l.MaxOffset = off
	return l
}

// GCMap is a word-aligned bitmap over frame words: bit i is set iff frame
// word i holds a live REF (spec.md §3, §4.3).
type GCMap []uint64

const bitsPerWord = WordSize * 8

// NewGCMap allocates a GCMap sized to cover maxOffset/WordSize words.
func NewGCMap(maxOffset int) GCMap {
	nwords := (maxOffset + WordSize - 1) / WordSize
	return make(GCMap, (nwords+bitsPerWord-1)/bitsPerWord)
}

// Set marks the frame word at byte offset off as holding a live reference.
func (g GCMap) Set(off int) {
	wordIdx := off / WordSize
	g[wordIdx/bitsPerWord] |= 1 << uint(wordIdx%bitsPerWord)
}

// IsSet reports whether the frame word at byte offset off is marked.
func (g GCMap) IsSet(off int) bool {
	wordIdx := off / WordSize
	if wordIdx/bitsPerWord >= len(g) {
		return false
	}
	return g[wordIdx/bitsPerWord]&(1<<uint(wordIdx%bitsPerWord)) != 0
}

// BuildGCMap constructs the GC map for a layout: bit set iff the
// corresponding kind is REF (spec.md §8, property 2).
func BuildGCMap(l Layout) GCMap {
	g := NewGCMap(l.MaxOffset)
	for i, k := range l.Kinds {
		if k == ir.REF {
			g.Set(l.Offsets[i])
		}
	}
	return g
}

// EnsureFrameDepth grows depth, an owning loop token's jfi_frame_depth
// cell, so it is never less than required (spec.md §4.3 invariant 2).
func EnsureFrameDepth(depth *int64, required int) {
	if int64(required) > *depth {
		*depth = int64(required)
	}
}

// Slots is the set of fixed offsets known by the caller, supplied
// externally per spec.md §6 (get_baseofs_of_frame_field /
// get_ofs_of_frame_field) and passed in by the embedder (the CLI uses its
// own defaultSlots table in package internal/maincmd).
type Slots struct {
	DescrOfs      int
	ForceDescrOfs int
	GuardExcOfs   int
	GCMapOfs      int
	SizeOfs       int
	NextCallOfs   int
	HeaderSize    int // first byte offset available for box slots
}

// Layout converts Slots into a jsval.FrameLayout for address rendering.
func (s Slots) Layout() jsval.FrameLayout {
	return jsval.FrameLayout{
		DescrOfs:      int64(s.DescrOfs),
		ForceDescrOfs: int64(s.ForceDescrOfs),
		GuardExcOfs:   int64(s.GuardExcOfs),
		GCMapOfs:      int64(s.GCMapOfs),
		SizeOfs:       int64(s.SizeOfs),
		NextCallOfs:   int64(s.NextCallOfs),
	}
}

// EncodeNextCall packs (funcid, label) per spec.md §4.3/§6: funcid<<8 | label,
// with funcid < 2^24 and label < 2^8.
func EncodeNextCall(funcid uint32, label uint8) int64 {
	if funcid >= 1<<24 {
		panic(fmt.Sprintf("frame: funcid %d exceeds 2^24", funcid))
	}
	return int64(funcid)<<8 | int64(label)
}

// DecodeNextCall is the inverse of EncodeNextCall.
func DecodeNextCall(word int64) (funcid uint32, label uint8) {
	return uint32(word >> 8), uint8(word)
}
