package ir_test

import (
	"testing"

	"github.com/mna/asmjit/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCallDescrDynCallSig verifies spec.md §8 property 3: the produced
// dyn-call tag equals sig_of(result_type) ++ sig_of(arg_classes[i]) under
// the fixed mapping {i,r -> i, f -> d, v -> v}.
func TestCallDescrDynCallSig(t *testing.T) {
	cases := []struct {
		name   string
		descr  ir.CallDescr
		wantSig string
	}{
		{"void no args", ir.CallDescr{ArgClasses: "", ResultType: ir.ResultVoid}, "v"},
		{"int result, int args", ir.CallDescr{ArgClasses: "ii", ResultType: ir.ResultInt}, "iii"},
		{"ref result, ref and int args", ir.CallDescr{ArgClasses: "ri", ResultType: ir.ResultRef}, "iii"},
		{"float result, float arg", ir.CallDescr{ArgClasses: "f", ResultType: ir.ResultFloat}, "dd"},
		{"mixed", ir.CallDescr{ArgClasses: "irf", ResultType: ir.ResultInt}, "iiid"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.wantSig, tc.descr.DynCallSig())
		})
	}
}

func TestTargetTokenPlaceOnce(t *testing.T) {
	tok := &ir.TargetToken{}
	tok.Place(3, 7)
	assert.Equal(t, uint32(3), tok.Funcid)
	assert.Equal(t, uint8(7), tok.Label)

	assert.Panics(t, func() { tok.Place(4, 8) })
}

func TestGuardDescrBridged(t *testing.T) {
	d := ir.NewGuardDescr()
	require.NotNil(t, d.GToken)
	assert.False(t, d.Bridged())

	d.GToken.Label = 2
	assert.True(t, d.Bridged())
}

func TestOpnumRoundTrip(t *testing.T) {
	for name, op := range map[string]ir.Opnum{
		"int_add":    ir.INT_ADD,
		"guard_true": ir.GUARD_TRUE,
		"finish":     ir.FINISH,
	} {
		assert.Equal(t, name, op.String())
		got, ok := ir.LookupOpnum(name)
		require.True(t, ok)
		assert.Equal(t, op, got)
	}

	_, ok := ir.LookupOpnum("not_a_real_op")
	assert.False(t, ok)
}

func TestNeedsGuardAndIsGuard(t *testing.T) {
	assert.True(t, ir.NeedsGuard(ir.INT_ADD_OVF))
	assert.True(t, ir.NeedsGuard(ir.CALL_MAY_FORCE))
	assert.False(t, ir.NeedsGuard(ir.INT_ADD))

	assert.True(t, ir.GUARD_TRUE.IsGuard())
	assert.False(t, ir.INT_ADD.IsGuard())

	assert.True(t, ir.GUARD_OVERFLOW.IsOverflowGuard())
	assert.True(t, ir.GUARD_NO_OVERFLOW.IsOverflowGuard())
	assert.False(t, ir.GUARD_TRUE.IsOverflowGuard())
}

func TestIsSimpleExprExclusions(t *testing.T) {
	// spec.md §4.4: op_is_simple_expr excludes INT_FORCE_GE_ZERO, FLOAT_ABS and
	// float-typed loads; none of those appear in the pureExprs table.
	assert.True(t, ir.IsSimpleExpr(ir.INT_ADD))
	assert.False(t, ir.IsSimpleExpr(ir.FLOAT_ABS))
	assert.False(t, ir.IsSimpleExpr(ir.INT_FORCE_GE_ZERO))
	assert.False(t, ir.IsSimpleExpr(ir.JUMP))
}

func TestHasSideEffect(t *testing.T) {
	assert.True(t, ir.HasSideEffect(ir.SETFIELD_GC))
	assert.True(t, ir.HasSideEffect(ir.JUMP))
	assert.True(t, ir.HasSideEffect(ir.GUARD_TRUE))
	assert.False(t, ir.HasSideEffect(ir.INT_ADD))
}

func TestArgKind(t *testing.T) {
	b := ir.NewBox(ir.REF)
	assert.Equal(t, ir.REF, ir.BoxArg(b).Kind())
	assert.Equal(t, ir.INT, ir.ConstArg(ir.ConstInt(1)).Kind())
	assert.Equal(t, ir.HOLE, ir.Arg{}.Kind())
}
