package traceasm_test

import (
	"testing"

	"github.com/mna/asmjit/ir"
	"github.com/mna/asmjit/traceasm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTrace = `trace:
	boxes:
		i0 int
		i1 int
	code:
		label 0
		i1 = int_add i0, 1
		guard_true i1 [fail: i0]
		jump 0, i1
`

func TestAsmParsesBoxesAndCode(t *testing.T) {
	tr, err := traceasm.Asm([]byte(sampleTrace))
	require.NoError(t, err)

	require.Len(t, tr.Boxes, 2)
	assert.Equal(t, ir.INT, tr.Boxes[0].Kind)
	assert.Equal(t, ir.INT, tr.Boxes[1].Kind)

	require.Len(t, tr.Ops, 4)
	assert.Equal(t, ir.LABEL, tr.Ops[0].Opnum)

	add := tr.Ops[1]
	assert.Equal(t, ir.INT_ADD, add.Opnum)
	require.NotNil(t, add.Result)
	assert.Equal(t, ir.INT, add.Result.Kind)
	require.Len(t, add.Args, 2)
	assert.Same(t, tr.Boxes[0], add.Args[0].Box)
	assert.True(t, add.Args[1].IsConst)
	assert.EqualValues(t, 1, add.Args[1].Const.Int)

	guard := tr.Ops[2]
	assert.Equal(t, ir.GUARD_TRUE, guard.Opnum)
	require.Len(t, guard.FailArgs, 1)
	assert.Same(t, tr.Boxes[0], guard.FailArgs[0].Box)

	jump := tr.Ops[3]
	assert.Equal(t, ir.JUMP, jump.Opnum)
	require.Len(t, jump.Args, 2)
	assert.True(t, jump.Args[0].IsConst)
	assert.Same(t, add.Result, jump.Args[1].Box)
}

func TestAsmRejectsMissingTraceHeader(t *testing.T) {
	_, err := traceasm.Asm([]byte("boxes:\n\ti0 int\n"))
	assert.Error(t, err)
}

func TestAsmRejectsUnknownOpcode(t *testing.T) {
	src := "trace:\n\tcode:\n\t\tnot_a_real_op i0\n"
	_, err := traceasm.Asm([]byte(src))
	assert.Error(t, err)
}

func TestAsmRejectsInvalidBoxKind(t *testing.T) {
	src := "trace:\n\tboxes:\n\t\ti0 notakind\n\tcode:\n"
	_, err := traceasm.Asm([]byte(src))
	assert.Error(t, err)
}

func TestAsmIgnoresCommentsAndBlankLines(t *testing.T) {
	src := "trace:\n\t# a comment\n\tboxes:\n\n\t\ti0 int\n\tcode:\n\t\tlabel 0 # inline comment\n"
	tr, err := traceasm.Asm([]byte(src))
	require.NoError(t, err)
	require.Len(t, tr.Boxes, 1)
	require.Len(t, tr.Ops, 1)
}

// TestDasmAsmRoundTrip verifies that printing a trace and re-parsing it
// reconstructs the same operation sequence.
func TestDasmAsmRoundTrip(t *testing.T) {
	i0 := ir.NewBox(ir.INT)
	i1 := ir.NewBox(ir.INT)
	add := ir.NewOp(ir.INT_ADD, i1, ir.BoxArg(i0), ir.ConstArg(ir.ConstInt(1)))
	guard := ir.NewGuard(ir.GUARD_TRUE, nil, []ir.Arg{ir.BoxArg(i0)}, ir.BoxArg(i1))

	tr := &traceasm.Trace{Boxes: []*ir.Box{i0, i1}, Ops: []ir.Operation{add, guard}}
	text := traceasm.Dasm(tr)

	reparsed, err := traceasm.Asm(text)
	require.NoError(t, err)
	require.Len(t, reparsed.Ops, 2)
	assert.Equal(t, ir.INT_ADD, reparsed.Ops[0].Opnum)
	assert.Equal(t, ir.GUARD_TRUE, reparsed.Ops[1].Opnum)
	require.Len(t, reparsed.Ops[1].FailArgs, 1)
}
