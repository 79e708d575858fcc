// Package builder implements the Source Builder of spec.md §4.1: it
// accumulates a typed statement/expression tree incrementally and
// serializes it to target source text, owning the integer/double variable
// pools and the fragment-capture mechanism that makes guard bridging cheap.
package builder

import (
	"bytes"
	"fmt"

	"github.com/mna/asmjit/jsval"
)

// Fragment is an opaque, immutable snapshot of previously emitted source
// text plus the free-variable state at the moment it was captured
// (spec.md §4.1, §9 "Emission as fragments").
type Fragment struct {
	text     string
	intFree  []bool
	dblFree  []bool
	intNext  int
	dblNext  int
}

// Builder accumulates target source text for one Compiled Block.
type Builder struct {
	ints    pool
	doubles pool

	buf   bytes.Buffer
	depth int // current indentation depth
}

// New returns a Builder with its positional input variables already
// reserved: nInt integer slots and nDouble double slots, named i0.. and
// d0.. so that argument positions map deterministically to names
// (spec.md §4.1: "positional allocation").
func New(nInt, nDouble int) *Builder {
	b := &Builder{}
	b.ints.prefix = "i"
	b.doubles.prefix = "d"
	for i := 0; i < nInt; i++ {
		b.ints.reserve(i)
	}
	for i := 0; i < nDouble; i++ {
		b.doubles.reserve(i)
	}
	return b
}

// pool is a named-variable pool supporting fresh allocation, recycling of
// freed names, and fixed positional allocation (spec.md §4.1).
type pool struct {
	prefix string
	used   []bool // used[i] true means name i is currently live
}

func (p *pool) reserve(i int) string {
	for len(p.used) <= i {
		p.used = append(p.used, false)
	}
	p.used[i] = true
	return p.name(i)
}

func (p *pool) name(i int) string { return fmt.Sprintf("%s%d", p.prefix, i) }

// allocate returns a fresh or recycled variable name.
func (p *pool) allocate() string {
	for i, inUse := range p.used {
		if !inUse {
			p.used[i] = true
			return p.name(i)
		}
	}
	i := len(p.used)
	p.used = append(p.used, true)
	return p.name(i)
}

// free returns name to the pool. It is a no-op if the name is not a member
// of this pool (names use pool-specific prefixes so this cannot alias).
func (p *pool) free(name string) {
	var i int
	if _, err := fmt.Sscanf(name, p.prefix+"%d", &i); err != nil {
		return
	}
	if i < len(p.used) {
		p.used[i] = false
	}
}

// snapshot captures the current in-use bitmap for fragment capture.
func (p *pool) snapshot() []bool {
	cp := make([]bool, len(p.used))
	copy(cp, p.used)
	return cp
}

// restore replaces the in-use bitmap, used when emitting a captured
// fragment so later allocations see the state as of capture time.
func (p *pool) restore(s []bool) {
	p.used = make([]bool, len(s))
	copy(p.used, s)
}

// AllocInt allocates a fresh or recycled integer variable.
func (b *Builder) AllocInt() jsval.Value { return jsval.IntVar(b.ints.allocate()) }

// AllocDouble allocates a fresh or recycled double variable.
func (b *Builder) AllocDouble() jsval.Value { return jsval.DoubleVar(b.doubles.allocate()) }

// FreeInt returns v (previously returned by AllocInt) to its pool.
func (b *Builder) FreeInt(v jsval.Value) { b.ints.free(v.Render()) }

// FreeDouble returns v (previously returned by AllocDouble) to its pool.
func (b *Builder) FreeDouble(v jsval.Value) { b.doubles.free(v.Render()) }

func (b *Builder) indent() {
	for i := 0; i < b.depth; i++ {
		b.buf.WriteString("  ")
	}
}

// Stmt emits one raw statement line (no trailing semicolon needed).
func (b *Builder) Stmt(format string, args ...any) {
	b.indent()
	fmt.Fprintf(&b.buf, format, args...)
	b.buf.WriteString(";\n")
}

// Assign emits `name = value;`.
func (b *Builder) Assign(name string, value jsval.Value) {
	b.Stmt("%s = %s", name, value.Render())
}

// Comment emits a source comment, used when an op's result is unused and
// has no side effect (spec.md §4.4).
func (b *Builder) Comment(format string, args ...any) {
	b.indent()
	b.buf.WriteString("// ")
	fmt.Fprintf(&b.buf, format, args...)
	b.buf.WriteString("\n")
}

// Raw emits text verbatim with no trailing semicolon or indentation
// processing, used by guard-bridge dispatch code that builds its own
// multi-line block.
func (b *Builder) Raw(s string) { b.buf.WriteString(s) }

// scope is the RAII-style helper returned by If/Else/While/Switch/Case; End
// must be called exactly once to close the block (spec.md §4.1, §9
// "scoped resources").
type scope struct{ b *Builder }

func (s scope) End() {
	s.b.depth--
	s.b.indent()
	s.b.buf.WriteString("}\n")
}

// If opens `if (cond) {`.
func (b *Builder) If(cond jsval.Value) scope {
	b.indent()
	fmt.Fprintf(&b.buf, "if (%s) {\n", cond.Render())
	b.depth++
	return scope{b}
}

// Else closes the preceding if-block and opens `else {`; it takes the place
// of the If scope's End (do not call both), and the returned scope's End
// closes the else-block.
func (b *Builder) Else() scope {
	b.depth--
	b.indent()
	b.buf.WriteString("} else {\n")
	b.depth++
	return scope{b}
}

// While opens `while (cond) {`.
func (b *Builder) While(cond jsval.Value) scope {
	b.indent()
	fmt.Fprintf(&b.buf, "while (%s) {\n", cond.Render())
	b.depth++
	return scope{b}
}

// Switch opens `switch (on) {`.
func (b *Builder) Switch(on jsval.Value) scope {
	b.indent()
	fmt.Fprintf(&b.buf, "switch (%s) {\n", on.Render())
	b.depth++
	return scope{b}
}

// Case opens `case k:` at the current switch's depth, indenting one level
// further for the case body; End un-indents back to the switch level.
func (b *Builder) Case(k int) scope {
	b.depth--
	b.indent()
	fmt.Fprintf(&b.buf, "case %d: {\n", k)
	b.depth++
	return scope{b}
}

// Continue emits a bare `continue;`, used by JUMP-to-self-funcid emission.
func (b *Builder) Continue() { b.Stmt("continue") }

// Return emits `return %s;`.
func (b *Builder) Return(v jsval.Value) { b.Stmt("return %s", v.Render()) }

// CaptureFragment returns an opaque handle to the text buffered so far plus
// the current free-variable state, and resets the buffer so subsequent
// emission starts a new fragment (spec.md §4.1).
//
// Every variable allocated since the previous capture must have been freed
// already, except input/label variables which are fixed positional
// allocations and are never freed.
func (b *Builder) CaptureFragment() Fragment {
	f := Fragment{
		text:    b.buf.String(),
		intFree: b.ints.snapshot(),
		dblFree: b.doubles.snapshot(),
	}
	b.buf.Reset()
	return f
}

// Text returns a fragment's captured source text, for callers (package
// looptoken) that replay fragments outside of a Builder, interleaving them
// with freshly synthesized guard-bridge dispatch code.
func (f Fragment) Text() string { return f.text }

// EmitFragment re-emits a previously captured fragment's text and restores
// the variable-pool state to what it was at capture time.
func (b *Builder) EmitFragment(f Fragment) {
	b.buf.WriteString(f.text)
	b.ints.restore(f.intFree)
	b.doubles.restore(f.dblFree)
}

// Bytes returns the accumulated source text.
func (b *Builder) Bytes() []byte { return b.buf.Bytes() }

// String returns the accumulated source text.
func (b *Builder) String() string { return b.buf.String() }
