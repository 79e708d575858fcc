package compiler

import (
	"fmt"

	"github.com/mna/asmjit/frame"
	"github.com/mna/asmjit/ir"
	"github.com/mna/asmjit/jsval"
)

// emitStandaloneGuard handles the guards that test a value directly rather
// than pairing with a preceding op_needs_guard op (spec.md §4.4): GUARD_TRUE,
// GUARD_FALSE, GUARD_VALUE, GUARD_CLASS, GUARD_NONNULL, GUARD_ISNULL,
// GUARD_NONNULL_CLASS, GUARD_NO_EXCEPTION, GUARD_EXCEPTION, GUARD_NOT_FORCED,
// GUARD_NOT_INVALIDATED.
func (blk *Block) emitStandaloneGuard(op ir.Operation, pos int) {
	var test jsval.Value
	switch op.Opnum {
	case ir.GUARD_TRUE:
		test = jsval.Equal(blk.valueOf(op.Arg(0)), jsval.Zero)
	case ir.GUARD_FALSE:
		test = jsval.NotEqual(blk.valueOf(op.Arg(0)), jsval.Zero)
	case ir.GUARD_VALUE:
		test = jsval.NotEqual(blk.valueOf(op.Arg(0)), blk.valueOf(op.Arg(1)))
	case ir.GUARD_CLASS:
		test = jsval.NotEqual(jsval.ClassPtrTypeID(jsval.HeapData(jsval.Int32, blk.valueOf(op.Arg(0)))), blk.valueOf(op.Arg(1)))
	case ir.GUARD_NONNULL:
		test = jsval.Equal(blk.valueOf(op.Arg(0)), jsval.Zero)
	case ir.GUARD_ISNULL:
		test = jsval.NotEqual(blk.valueOf(op.Arg(0)), jsval.Zero)
	case ir.GUARD_NONNULL_CLASS:
		test = jsval.Or(
			jsval.Equal(blk.valueOf(op.Arg(0)), jsval.Zero),
			jsval.NotEqual(jsval.ClassPtrTypeID(jsval.HeapData(jsval.Int32, blk.valueOf(op.Arg(0)))), blk.valueOf(op.Arg(1))),
		)
	case ir.GUARD_NO_EXCEPTION:
		test = jsval.NotEqual(blk.Slots.Layout().GuardExcAddr(jsval.Frame), jsval.Zero)
	case ir.GUARD_EXCEPTION:
		test = jsval.Equal(blk.Slots.Layout().GuardExcAddr(jsval.Frame), jsval.Zero)
	case ir.GUARD_NOT_FORCED:
		test = jsval.NotEqual(blk.Slots.Layout().DescrAddr(jsval.Frame), jsval.Zero)
	case ir.GUARD_NOT_INVALIDATED:
		test = jsval.NotEqual(jsval.HeapData(jsval.Int32, blk.valueOf(op.Arg(0))), blk.valueOf(op.Arg(1)))
	default:
		panic(fmt.Sprintf("compiler: unimplemented guard op: %s", op.Opnum))
	}
	blk.genopGuardFailure(test, op, op.Opnum == ir.GUARD_NO_EXCEPTION || op.Opnum == ir.GUARD_EXCEPTION)
}

// emitWithGuard handles the op_needs_guard family: the op is emitted, then
// the paired guard's test is synthesized from the op's own fallible
// condition rather than from a separately-computed box (spec.md §4.4).
func (blk *Block) emitWithGuard(op, guard ir.Operation, pos int) {
	switch op.Opnum {
	case ir.INT_ADD_OVF:
		blk.emitOverflowOp(op, guard, jsval.Plus, func(a, b, res jsval.Value) jsval.Value {
			// overflow iff (a>=0 && res<b) || (a<0 && res>=b), per spec.md §4.4.
			return jsval.Or(
				jsval.And(jsval.GreaterThanEq(a, jsval.Zero), jsval.LessThan(res, b)),
				jsval.And(jsval.LessThan(a, jsval.Zero), jsval.GreaterThanEq(res, b)),
			)
		})
	case ir.INT_SUB_OVF:
		blk.emitOverflowOp(op, guard, jsval.Minus, func(a, b, res jsval.Value) jsval.Value {
			// overflow iff (b>=0 && res>a) || (b<0 && res<a): symmetric on b,
			// per spec.md §4.4.
			return jsval.Or(
				jsval.And(jsval.GreaterThanEq(b, jsval.Zero), jsval.GreaterThan(res, a)),
				jsval.And(jsval.LessThan(b, jsval.Zero), jsval.LessThan(res, a)),
			)
		})
	case ir.INT_MUL_OVF:
		blk.emitMulOvf(op, guard)
	case ir.CALL_MAY_FORCE:
		blk.emitCallMayForce(op, guard)
	case ir.CALL_ASSEMBLER:
		blk.emitCallAssembler(op, guard)
	case ir.CALL_RELEASE_GIL:
		blk.emitCallReleaseGIL(op, guard)
	default:
		panic(fmt.Sprintf("compiler: unimplemented withguard op: %s", op.Opnum))
	}
}

func (blk *Block) emitOverflowOp(op, guard ir.Operation, combine func(a, b jsval.Value) jsval.Value, overflowTest func(a, b, res jsval.Value) jsval.Value) {
	a, b := blk.valueOf(op.Arg(0)), blk.valueOf(op.Arg(1))
	res := blk.resultVar(op)
	blk.b.Assign(res.Render(), jsval.SignedCast(combine(a, b)))
	overflowed := overflowTest(a, b, res)

	// GUARD_NO_OVERFLOW fails when overflow happened; GUARD_OVERFLOW fails
	// when it didn't.
	test := overflowed
	if guard.Opnum != ir.GUARD_NO_OVERFLOW {
		test = jsval.UNot(overflowed)
	}
	blk.genopGuardFailure(test, guard, false)
}

// emitMulOvf detects multiplication overflow by comparing the double-
// precision product against the 32-bit integer product (spec.md §4.4:
// "compare the doubled-precision double product against the integer
// product").
func (blk *Block) emitMulOvf(op, guard ir.Operation) {
	a, b := blk.valueOf(op.Arg(0)), blk.valueOf(op.Arg(1))
	res := blk.resultVar(op)
	blk.b.Assign(res.Render(), jsval.SignedCast(jsval.IMul(a, b)))

	dbl := blk.b.AllocDouble()
	blk.b.Assign(dbl.Render(), jsval.Mul(jsval.DoubleCast(a), jsval.DoubleCast(b)))
	overflowed := jsval.NotEqual(dbl, jsval.DoubleCast(res))
	blk.b.FreeDouble(dbl)

	test := overflowed
	if guard.Opnum != ir.GUARD_NO_OVERFLOW {
		test = jsval.UNot(overflowed)
	}
	blk.genopGuardFailure(test, guard, false)
}

// emitCallMayForce emits the call and then guards on whether it forced the
// frame (spec.md §5 ctx_guard_not_forced): spills failargs, stores a force
// descr, and tests FrameDescrAddr on exit.
func (blk *Block) emitCallMayForce(op, guard ir.Operation) {
	v := blk.emitCall(op)
	blk.assignResult(op, v)

	layout := blk.Slots.Layout()
	blk.b.Assign(layout.ForceDescrAddr(jsval.Frame).Render(), jsval.ConstInt(blk.internDescr(guard.Descr)))
	test := jsval.NotEqual(layout.DescrAddr(jsval.Frame), jsval.Zero)
	blk.genopGuardFailure(test, guard, true)
}

// emitCallAssembler lowers CALL_ASSEMBLER (spec.md §4.4): it invokes the
// trampoline with the callee funcid and compares the resulting frame's descr
// against the done-with-this-frame sentinel, calling the assembler helper
// otherwise. It stores no initial_gcmap and does not set next_call before
// the trampoline call.
func (blk *Block) emitCallAssembler(op, guard ir.Operation) {
	calleeFuncid := blk.valueOf(op.Arg(0))
	layout := blk.Slots.Layout()

	callFrame := blk.b.AllocInt()
	blk.b.Assign(callFrame.Render(), blk.Runtime.Trampoline(calleeFuncid, jsval.Frame))

	sentinel := jsval.ConstInt(blk.internDescr(doneWithThisFrameDescr))
	scope := blk.b.If(jsval.Equal(layout.DescrAddr(callFrame), sentinel))
	if op.Result != nil {
		res := blk.resultVar(op)
		blk.b.Assign(res.Render(), jsval.HeapData(jsval.FromBox(op.Result), jsval.FrameSlotAddr(callFrame, blk.Slots.HeaderSize)))
	}
	elseScope := blk.b.Else()
	blk.b.Stmt("%s", blk.Runtime.AssemblerHelperCall(callFrame, layout.DescrAddr(callFrame)).Render())
	elseScope.End()
	_ = scope

	test := jsval.NotEqual(layout.DescrAddr(jsval.Frame), jsval.Zero)
	blk.genopGuardFailure(test, guard, true)
}

// doneWithThisFrameDescr is the fixed sentinel compared against a callee
// frame's descr after CALL_ASSEMBLER returns (spec.md §4.4).
var doneWithThisFrameDescr ir.Descr = &ir.StaticDescr{Name: "done_with_this_frame_descr"}

// emitCallReleaseGIL wraps the call in release/reacquire GIL and follows it
// with the ctx_guard_not_forced check (spec.md §4.4, §5). Live REF values are
// not spilled to the frame around the call and no gcmap is stored for it.
func (blk *Block) emitCallReleaseGIL(op, guard ir.Operation) {
	blk.b.Stmt("%s", blk.Runtime.Release().Render())
	v := blk.emitCall(op)
	res := blk.assignResult(op, v)
	blk.b.Stmt("%s", blk.Runtime.Reacquire().Render())

	layout := blk.Slots.Layout()
	blk.b.Assign(layout.ForceDescrAddr(jsval.Frame).Render(), jsval.ConstInt(blk.internDescr(guard.Descr)))
	test := jsval.NotEqual(layout.DescrAddr(jsval.Frame), jsval.Zero)
	blk.genopGuardFailure(test, guard, true)
	_ = res
}

// genopGuardFailure is the Block Compiler's _genop_guard_failure (spec.md
// §4.4): computes failkinds/faillocs, allocates the dual gcmaps, attaches
// them to the guard's descr, and captures the fragment at the exact point
// where guard-bridge dispatch code must later be spliced in.
func (blk *Block) genopGuardFailure(test jsval.Value, guard ir.Operation, hasExc bool) {
	descr, ok := guard.Descr.(*ir.GuardDescr)
	if !ok {
		descr = ir.NewGuardDescr()
	}
	descr.HasExc = hasExc

	kinds := make([]ir.FailKind, len(guard.FailArgs))
	locs := make([]int, len(guard.FailArgs))
	off := blk.spillDepth
	for i, a := range guard.FailArgs {
		kinds[i] = a.Kind()
		size := 4
		if a.Kind() == ir.FLOAT {
			size = 8
		}
		if off%size != 0 {
			off += size - off%size
		}
		locs[i] = off
		off += size
	}
	argLocs := zeroOffsets(kinds)
	descr.FailKinds = kinds
	descr.FailLocs = locs
	descr.ArgLocs = argLocs
	descr.GCMap = buildFailGCMap(kinds, locs, off)
	descr.GCMap0 = buildFailGCMap(kinds, argLocs, zeroMax(kinds))
	descr.Name = guard.Opnum.String()

	// The if-block deliberately stays open across the fragment boundary:
	// fail args are moved into fixed positional names here, but which of the
	// two spill layouts (unbridged exit vs. bridged re-entry) closes the
	// block is decided fresh on every reassembly, once gtoken.Label is
	// known (spec.md §4.4 "Guard-bridge dispatch", §9 "fragments").
	blk.b.Raw(fmt.Sprintf("if (%s) {\n", test.Render()))
	for i, a := range guard.FailArgs {
		if a.Box == nil {
			continue
		}
		blk.b.Stmt("var fail%d = %s", i, blk.valueOf(a).Render())
	}

	blk.items = append(blk.items, blk.b.CaptureFragment())
	blk.items = append(blk.items, descr)
}

func buildFailGCMap(kinds []ir.FailKind, locs []int, maxOff int) []uint64 {
	g := frame.NewGCMap(maxOff)
	for i, k := range kinds {
		if k == ir.REF {
			g.Set(locs[i])
		}
	}
	return g
}

// zeroOffsets computes faillocs as if the block's spill depth were zero,
// for gcmap0 (spec.md §4.4, §9 "dual gcmap").
func zeroOffsets(kinds []ir.FailKind) []int {
	locs := make([]int, len(kinds))
	off := 0
	for i, k := range kinds {
		size := 4
		if k == ir.FLOAT {
			size = 8
		}
		if off%size != 0 {
			off += size - off%size
		}
		locs[i] = off
		off += size
	}
	return locs
}

func zeroMax(kinds []ir.FailKind) int {
	locs := zeroOffsets(kinds)
	if len(locs) == 0 {
		return 0
	}
	last := kinds[len(kinds)-1]
	size := 4
	if last == ir.FLOAT {
		size = 8
	}
	return locs[len(locs)-1] + size
}
