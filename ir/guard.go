package ir

// GuardToken is the sole mutable bridge-patching point for one guard
// (spec.md glossary: Gtoken). It conceptually lives in the owning loop
// token's data-block allocator; Go's GC lets GuardDescr hold a direct,
// non-owning pointer to it rather than the arena-plus-index scheme spec.md
// suggests for non-GC'd hosts (see DESIGN.md).
type GuardToken struct {
	Label uint8 // 0 means "not yet bridged"
}

// FailKind pairs a fail-argument's kind with its HOLE-ness; HOLE entries are
// unused dead values the optimizer left in the failargs list.
type FailKind = Kind

// GuardDescr is the descriptor attached to a guard Operation
// (spec.md §3, AbstractFailDescr).
type GuardDescr struct {
	Funcid uint32
	GToken *GuardToken

	FailKinds []FailKind // one per FailArgs entry, same length and order
	FailLocs  []int      // frame offsets assigned when the guard first failed
	ArgLocs   []int      // frame offsets used by the bridge entry block's inputs

	GCMap  []uint64 // gcmap matching FailLocs
	GCMap0 []uint64 // gcmap matching a zero-spill-offset layout

	HasExc bool // true for GUARD_EXCEPTION / GUARD_NO_EXCEPTION and for the guard paired with CALL_MAY_FORCE / CALL_ASSEMBLER / CALL_RELEASE_GIL

	// Name is an optional label used only for debug output/disassembly.
	Name string
}

func (*GuardDescr) descr() {}

// NewGuardDescr allocates a descriptor with a fresh, unbridged GuardToken.
func NewGuardDescr() *GuardDescr {
	return &GuardDescr{GToken: &GuardToken{}}
}

// Bridged reports whether a bridge has been compiled for this guard.
func (d *GuardDescr) Bridged() bool { return d.GToken.Label != 0 }
