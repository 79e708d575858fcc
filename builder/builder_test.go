package builder_test

import (
	"testing"

	"github.com/mna/asmjit/builder"
	"github.com/mna/asmjit/jsval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReservesPositionalVars(t *testing.T) {
	b := builder.New(2, 1)
	// Positional slots i0, i1 are reserved, so the next allocation recycles
	// nothing and grows the pool.
	assert.Equal(t, "i2", b.AllocInt().Render())
	assert.Equal(t, "d1", b.AllocDouble().Render())
}

func TestAllocFreeRecycles(t *testing.T) {
	b := builder.New(0, 0)
	v0 := b.AllocInt()
	v1 := b.AllocInt()
	require.Equal(t, "i0", v0.Render())
	require.Equal(t, "i1", v1.Render())

	b.FreeInt(v0)
	v2 := b.AllocInt()
	assert.Equal(t, "i0", v2.Render(), "freed slot should be recycled before growing the pool")
}

func TestAssignAndStmtEmission(t *testing.T) {
	b := builder.New(0, 0)
	v := b.AllocInt()
	b.Assign(v.Render(), jsval.ConstInt(7))
	b.Stmt("%s = %s", "i1", "i0")

	want := "i0 = 7;\ni1 = i0;\n"
	assert.Equal(t, want, b.String())
}

func TestCommentDoesNotEmitSemicolon(t *testing.T) {
	b := builder.New(0, 0)
	b.Comment("dropped op %d", 3)
	assert.Equal(t, "// dropped op 3\n", b.String())
}

func TestIfElseIndentation(t *testing.T) {
	b := builder.New(0, 0)
	cond := jsval.IntVar("c")
	s := b.If(cond)
	b.Stmt("%s", "x = 1")
	_ = s // closed by the Else transition
	s2 := b.Else()
	b.Stmt("%s", "x = 2")
	s2.End()

	want := "if (c) {\n  x = 1;\n} else {\n  x = 2;\n}\n"
	assert.Equal(t, want, b.String())
}

func TestSwitchCaseIndentation(t *testing.T) {
	b := builder.New(0, 0)
	sw := b.Switch(jsval.IntVar("label"))
	c0 := b.Case(0)
	b.Continue()
	c0.End()
	sw.End()

	want := "switch (label) {\ncase 0: {\n  continue;\n}\n}\n"
	assert.Equal(t, want, b.String())
}

// TestCaptureReplayFragment verifies spec.md §9's fragment mechanism: a
// captured fragment replays its exact text and restores the variable-pool
// state as of capture time, independent of allocations made in between.
func TestCaptureReplayFragment(t *testing.T) {
	b := builder.New(0, 0)
	v0 := b.AllocInt()
	b.Assign(v0.Render(), jsval.ConstInt(1))
	frag := b.CaptureFragment()
	assert.Empty(t, b.String(), "capture must reset the buffer")

	// Allocate and free more ints after capture; this must not affect the
	// pool state baked into frag.
	v1 := b.AllocInt()
	b.FreeInt(v1)
	b.FreeInt(v0)

	b2 := builder.New(0, 0)
	b2.EmitFragment(frag)
	assert.Equal(t, "i0 = 1;\n", b2.String())

	// After EmitFragment, i0 is live again (as it was at capture time), so
	// the next allocation must not recycle it.
	assert.Equal(t, "i1", b2.AllocInt().Render())
}

func TestFragmentTextAccessor(t *testing.T) {
	b := builder.New(0, 0)
	b.Return(jsval.ConstInt(0))
	frag := b.CaptureFragment()
	assert.Equal(t, "return 0;\n", frag.Text())
}

func TestRawEmitsVerbatim(t *testing.T) {
	b := builder.New(0, 0)
	b.Raw("label: do {} while(0);\n")
	assert.Equal(t, "label: do {} while(0);\n", b.String())
}
