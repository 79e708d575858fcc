package compiler_test

import (
	"testing"

	"github.com/mna/asmjit/compiler"
	"github.com/mna/asmjit/frame"
	"github.com/mna/asmjit/ir"
	"github.com/mna/asmjit/runtime"
	"github.com/stretchr/testify/assert"
)

func soleFragmentText(t *testing.T, cb *compiler.CompiledBlock) string {
	t.Helper()
	var out string
	for _, item := range cb.Items {
		if f, ok := item.(interface{ Text() string }); ok {
			out += f.Text()
		}
	}
	return out
}

// TestMallocNurseryVarsizeChecksCeilingAndStampsTID verifies spec.md §4.4:
// variable-size array allocation rounds up to a WORD multiple, checks the
// inline fast path against max_size_of_young_obj, and stamps the array's TID
// only on the fast path, falling back to the GC slowpath otherwise.
func TestMallocNurseryVarsizeChecksCeilingAndStampsTID(t *testing.T) {
	length := ir.NewBox(ir.INT)
	result := ir.NewBox(ir.REF)
	descr := ir.ArrayDescr{BaseSize: 4, ItemSize: 4, TID: 99}
	op := ir.Operation{Opnum: ir.CALL_MALLOC_NURSERY_VARSIZE, Result: result, Descr: descr, Args: []ir.Arg{ir.BoxArg(length)}}

	layout := frame.Assign([]ir.Kind{ir.INT}, 0)
	slots := frame.Slots{HeaderSize: layout.MaxOffset}
	blk := compiler.NewBlock(1, []ir.Operation{op}, []*ir.Box{length}, layout.Offsets, layout.Kinds, slots, runtime.Default, compiler.NewDescrPool(), 1)
	cb := blk.GenerateCode()
	text := soleFragmentText(t, cb)

	assert.Contains(t, text, "maxYoungObjSize")
	assert.Contains(t, text, "nurseryTop")
	assert.Contains(t, text, "99", "TID must be stamped on the fast path")
	assert.Contains(t, text, runtime.Default.GCMallocArray, "slowpath fallback must call the array malloc helper")
}

// TestMallocNurseryVarsizeFrameSkipsCeilingCheck verifies that the frame
// variant never compares against max_size_of_young_obj or stamps a TID,
// since a frame is never too large for the nursery (spec.md §4.4).
func TestMallocNurseryVarsizeFrameSkipsCeilingCheck(t *testing.T) {
	size := ir.NewBox(ir.INT)
	result := ir.NewBox(ir.REF)
	op := ir.Operation{Opnum: ir.CALL_MALLOC_NURSERY_VARSIZE_FRAME, Result: result, Args: []ir.Arg{ir.BoxArg(size)}}

	layout := frame.Assign([]ir.Kind{ir.INT}, 0)
	slots := frame.Slots{HeaderSize: layout.MaxOffset}
	blk := compiler.NewBlock(1, []ir.Operation{op}, []*ir.Box{size}, layout.Offsets, layout.Kinds, slots, runtime.Default, compiler.NewDescrPool(), 1)
	cb := blk.GenerateCode()
	text := soleFragmentText(t, cb)

	assert.NotContains(t, text, "maxYoungObjSize")
	assert.Contains(t, text, runtime.Default.GCMallocNursery)
}

// TestWriteBarrierScalarAndArray verifies spec.md §8 scenario S3: the flag
// byte is checked before falling back to the slowpath, and the array variant
// calls the array write-barrier helper (which takes only the object).
func TestWriteBarrierScalarAndArray(t *testing.T) {
	obj := ir.NewBox(ir.REF)
	scalarOp := ir.Operation{Opnum: ir.COND_CALL_GC_WB, Args: []ir.Arg{ir.BoxArg(obj)}}
	layout := frame.Assign([]ir.Kind{ir.REF}, 0)
	slots := frame.Slots{HeaderSize: layout.MaxOffset}
	blk := compiler.NewBlock(1, []ir.Operation{scalarOp}, []*ir.Box{obj}, layout.Offsets, layout.Kinds, slots, runtime.Default, compiler.NewDescrPool(), 1)
	text := soleFragmentText(t, blk.GenerateCode())

	assert.Contains(t, text, "if (")
	assert.Contains(t, text, runtime.Default.WriteBarrier+"(")
	assert.NotContains(t, text, runtime.Default.WriteBarrierArray+"(")

	obj2, idx := ir.NewBox(ir.REF), ir.NewBox(ir.INT)
	arrayOp := ir.Operation{Opnum: ir.COND_CALL_GC_WB_ARRAY, Args: []ir.Arg{ir.BoxArg(obj2), ir.BoxArg(idx)}}
	layout2 := frame.Assign([]ir.Kind{ir.REF, ir.INT}, 0)
	slots2 := frame.Slots{HeaderSize: layout2.MaxOffset}
	blk2 := compiler.NewBlock(1, []ir.Operation{arrayOp}, []*ir.Box{obj2, idx}, layout2.Offsets, layout2.Kinds, slots2, runtime.Default, compiler.NewDescrPool(), 1)
	text2 := soleFragmentText(t, blk2.GenerateCode())

	assert.Contains(t, text2, runtime.Default.WriteBarrierArray+"(")
}

// TestWriteBarrierArrayCardMarking verifies spec.md §4.4's "for arrays,
// additionally handle card-marking via jit_wb_cards_set_byteofs/singlebyte":
// the array variant must branch on whether the cards-tracking flag is
// already set, only calling the array write-barrier slowpath when it isn't,
// and must decode the index into a card byte/bit using the configured
// CardPageShift before OR-ing the bit into the card byte.
func TestWriteBarrierArrayCardMarking(t *testing.T) {
	obj, idx := ir.NewBox(ir.REF), ir.NewBox(ir.INT)
	op := ir.Operation{Opnum: ir.COND_CALL_GC_WB_ARRAY, Args: []ir.Arg{ir.BoxArg(obj), ir.BoxArg(idx)}}
	layout := frame.Assign([]ir.Kind{ir.REF, ir.INT}, 0)
	slots := frame.Slots{HeaderSize: layout.MaxOffset}
	blk := compiler.NewBlock(1, []ir.Operation{op}, []*ir.Box{obj, idx}, layout.Offsets, layout.Kinds, slots, runtime.Default, compiler.NewDescrPool(), 1)
	text := soleFragmentText(t, blk.GenerateCode())

	assert.Contains(t, text, runtime.Default.WriteBarrierArray+"(")
	assert.Contains(t, text, ">>", "card index must be derived via a right shift by CardPageShift")
	assert.Contains(t, text, "<<", "card bit mask must be computed via a left shift")
	assert.Contains(t, text, "~(", "card byte offset must be negated per the original's UNeg(RShift(...))")
	assert.Contains(t, text, "|", "the card byte must be OR'd with the new bit, not overwritten")

	// a GC with no card-marking support degrades COND_CALL_GC_WB_ARRAY to the
	// same scalar check as COND_CALL_GC_WB (spec.md §4.4).
	noCards := runtime.Default
	noCards.WB.CardSingleByte = 0
	obj2, idx2 := ir.NewBox(ir.REF), ir.NewBox(ir.INT)
	op2 := ir.Operation{Opnum: ir.COND_CALL_GC_WB_ARRAY, Args: []ir.Arg{ir.BoxArg(obj2), ir.BoxArg(idx2)}}
	blk2 := compiler.NewBlock(1, []ir.Operation{op2}, []*ir.Box{obj2, idx2}, layout.Offsets, layout.Kinds, slots, noCards, compiler.NewDescrPool(), 1)
	text2 := soleFragmentText(t, blk2.GenerateCode())

	assert.Contains(t, text2, runtime.Default.WriteBarrier+"(")
	assert.NotContains(t, text2, runtime.Default.WriteBarrierArray+"(")
}

// TestIntForceGeZeroBranchesOnSign verifies spec.md §4.4's op_is_simple_expr
// exclusion list: INT_FORCE_GE_ZERO clamps a negative value to zero via a
// branch, rather than folding as a pure expression.
func TestIntForceGeZeroBranchesOnSign(t *testing.T) {
	arg := ir.NewBox(ir.INT)
	res := ir.NewBox(ir.INT)
	op := ir.Operation{Opnum: ir.INT_FORCE_GE_ZERO, Result: res, Args: []ir.Arg{ir.BoxArg(arg)}}

	layout := frame.Assign([]ir.Kind{ir.INT}, 0)
	slots := frame.Slots{HeaderSize: layout.MaxOffset}
	blk := compiler.NewBlock(1, []ir.Operation{op}, []*ir.Box{arg}, layout.Offsets, layout.Kinds, slots, runtime.Default, compiler.NewDescrPool(), 1)
	text := soleFragmentText(t, blk.GenerateCode())

	assert.Contains(t, text, "if (")
	assert.Contains(t, text, "<0)")
	assert.Contains(t, text, "} else {")
}

// TestFinishWritesReturnValuesAndReturnsFrame verifies spec.md §4.4: FINISH
// stores its return values into the frame's output slots, installs the
// descr, clears next_call, and returns the frame.
func TestFinishWritesReturnValuesAndReturnsFrame(t *testing.T) {
	v := ir.NewBox(ir.INT)
	finishDescr := &ir.StaticDescr{Name: "done_with_this_frame_descr"}
	op := ir.Operation{Opnum: ir.FINISH, Descr: finishDescr, Args: []ir.Arg{ir.BoxArg(v)}}

	layout := frame.Assign([]ir.Kind{ir.INT}, 0)
	slots := frame.Slots{HeaderSize: layout.MaxOffset}
	blk := compiler.NewBlock(1, []ir.Operation{op}, []*ir.Box{v}, layout.Offsets, layout.Kinds, slots, runtime.Default, compiler.NewDescrPool(), 1)
	text := soleFragmentText(t, blk.GenerateCode())

	assert.Contains(t, text, "return frame;")
	assert.Contains(t, text, "HEAP32[")
}
