package compiler

import (
	"fmt"

	"github.com/mna/asmjit/ir"
	"github.com/mna/asmjit/jsval"
)

// emitExpr lowers a pure, single-result op to a Value and assigns it to the
// result variable (spec.md §4.4: "dispatch to an expr emitter that returns
// a Value; assign it to the result's variable").
func (blk *Block) emitExpr(op ir.Operation, pos int) jsval.Value {
	var v jsval.Value
	switch op.Opnum {
	case ir.INT_ADD:
		v = jsval.SignedCast(jsval.Plus(blk.valueOf(op.Arg(0)), blk.valueOf(op.Arg(1))))
	case ir.INT_SUB:
		v = jsval.SignedCast(jsval.Minus(blk.valueOf(op.Arg(0)), blk.valueOf(op.Arg(1))))
	case ir.INT_MUL:
		v = jsval.SignedCast(jsval.IMul(blk.valueOf(op.Arg(0)), blk.valueOf(op.Arg(1))))
	case ir.INT_AND:
		v = jsval.And(blk.valueOf(op.Arg(0)), blk.valueOf(op.Arg(1)))
	case ir.INT_OR:
		v = jsval.Or(blk.valueOf(op.Arg(0)), blk.valueOf(op.Arg(1)))
	case ir.INT_XOR:
		v = jsval.Xor(blk.valueOf(op.Arg(0)), blk.valueOf(op.Arg(1)))
	case ir.INT_LSHIFT:
		v = jsval.LShift(blk.valueOf(op.Arg(0)), blk.valueOf(op.Arg(1)))
	case ir.INT_RSHIFT:
		v = jsval.RShift(blk.valueOf(op.Arg(0)), blk.valueOf(op.Arg(1)))
	case ir.INT_URSHIFT:
		v = jsval.URShift(blk.valueOf(op.Arg(0)), blk.valueOf(op.Arg(1)))
	case ir.INT_FLOORDIV:
		// the target dialect's / on |0-cast operands truncates toward zero;
		// floor division for negative results needs the adjustment done by
		// floorDiv (via intFloorDiv) to match Python-style floor semantics (spec.md §4.4: "match the
		// dialect's sign conventions for negatives").
		v = floorDiv(blk.valueOf(op.Arg(0)), blk.valueOf(op.Arg(1)))
	case ir.INT_MOD:
		v = floorMod(blk.valueOf(op.Arg(0)), blk.valueOf(op.Arg(1)))
	case ir.INT_NEG:
		v = jsval.SignedCast(jsval.UMinus(blk.valueOf(op.Arg(0))))
	case ir.INT_INVERT:
		v = jsval.UNeg(blk.valueOf(op.Arg(0)))
	case ir.INT_IS_ZERO:
		v = jsval.Equal(blk.valueOf(op.Arg(0)), jsval.Zero)
	case ir.INT_IS_TRUE:
		v = jsval.NotEqual(blk.valueOf(op.Arg(0)), jsval.Zero)
	case ir.INT_LT:
		v = jsval.LessThan(blk.valueOf(op.Arg(0)), blk.valueOf(op.Arg(1)))
	case ir.INT_LE:
		v = jsval.LessThanEq(blk.valueOf(op.Arg(0)), blk.valueOf(op.Arg(1)))
	case ir.INT_GT:
		v = jsval.GreaterThan(blk.valueOf(op.Arg(0)), blk.valueOf(op.Arg(1)))
	case ir.INT_GE:
		v = jsval.GreaterThanEq(blk.valueOf(op.Arg(0)), blk.valueOf(op.Arg(1)))
	case ir.INT_EQ:
		v = jsval.Equal(blk.valueOf(op.Arg(0)), blk.valueOf(op.Arg(1)))
	case ir.INT_NE:
		v = jsval.NotEqual(blk.valueOf(op.Arg(0)), blk.valueOf(op.Arg(1)))

	case ir.FLOAT_ADD:
		v = jsval.Plus(blk.valueOf(op.Arg(0)), blk.valueOf(op.Arg(1)))
	case ir.FLOAT_SUB:
		v = jsval.Minus(blk.valueOf(op.Arg(0)), blk.valueOf(op.Arg(1)))
	case ir.FLOAT_MUL:
		v = jsval.Mul(blk.valueOf(op.Arg(0)), blk.valueOf(op.Arg(1)))
	case ir.FLOAT_DIV:
		v = jsval.Div(blk.valueOf(op.Arg(0)), blk.valueOf(op.Arg(1)))
	case ir.FLOAT_NEG:
		v = jsval.UMinus(blk.valueOf(op.Arg(0)))
	case ir.FLOAT_LT:
		v = jsval.LessThan(blk.valueOf(op.Arg(0)), blk.valueOf(op.Arg(1)))
	case ir.FLOAT_LE:
		v = jsval.LessThanEq(blk.valueOf(op.Arg(0)), blk.valueOf(op.Arg(1)))
	case ir.FLOAT_GT:
		v = jsval.GreaterThan(blk.valueOf(op.Arg(0)), blk.valueOf(op.Arg(1)))
	case ir.FLOAT_GE:
		v = jsval.GreaterThanEq(blk.valueOf(op.Arg(0)), blk.valueOf(op.Arg(1)))
	case ir.FLOAT_EQ:
		v = jsval.Equal(blk.valueOf(op.Arg(0)), blk.valueOf(op.Arg(1)))
	case ir.FLOAT_NE:
		v = jsval.NotEqual(blk.valueOf(op.Arg(0)), blk.valueOf(op.Arg(1)))

	case ir.INT_SIGNEXT:
		v = jsval.SignedCast(blk.valueOf(op.Arg(0)))
	case ir.CAST_INT_TO_FLOAT:
		v = jsval.DoubleCast(blk.valueOf(op.Arg(0)))
	case ir.CAST_FLOAT_TO_INT:
		v = jsval.IntCast(blk.valueOf(op.Arg(0)))
	case ir.CAST_PTR_TO_INT:
		v = blk.valueOf(op.Arg(0))

	case ir.ARRAYLEN_GC, ir.STRLEN, ir.UNICODELEN:
		descr := op.Descr.(ir.ArrayDescr)
		v = jsval.HeapData(jsval.FromSizeAndSign(4, true), jsval.Plus(blk.valueOf(op.Arg(0)), jsval.ConstInt(int64(descr.LenOffset))))
	case ir.STRGETITEM, ir.UNICODEGETITEM:
		descr := op.Descr.(ir.ArrayDescr)
		v = jsval.HeapData(jsval.FromSizeAndSign(descr.ItemSize, descr.Signed), itemAddr(blk.valueOf(op.Arg(0)), blk.valueOf(op.Arg(1)), descr))

	case ir.GETFIELD_GC:
		descr := op.Descr.(ir.FieldDescr)
		v = jsval.HeapData(jsval.FromSizeAndSign(descr.Size, descr.Signed), jsval.Plus(blk.valueOf(op.Arg(0)), jsval.ConstInt(int64(descr.Offset))))
	case ir.GETARRAYITEM_GC:
		descr := op.Descr.(ir.ArrayDescr)
		v = jsval.HeapData(jsval.FromSizeAndSign(descr.ItemSize, descr.Signed), itemAddr(blk.valueOf(op.Arg(0)), blk.valueOf(op.Arg(1)), descr))
	case ir.GETINTERIORFIELD_GC:
		descr := op.Descr.(ir.ArrayDescr)
		v = jsval.HeapData(jsval.FromSizeAndSign(descr.ItemSize, descr.Signed), jsval.Plus(itemAddr(blk.valueOf(op.Arg(0)), blk.valueOf(op.Arg(1)), descr), jsval.ConstInt(0)))

	default:
		panic(fmt.Sprintf("compiler: unimplemented expr op: %s", op.Opnum))
	}
	return v
}

// itemAddr computes base + basesize + index*itemsize, the common address
// expression for array/string/interior accesses (spec.md §4.4).
func itemAddr(base, index jsval.Value, descr ir.ArrayDescr) jsval.Value {
	offset := jsval.IMul(index, jsval.ConstInt(int64(descr.ItemSize)))
	return jsval.Plus(jsval.Plus(base, jsval.ConstInt(int64(descr.BaseSize))), offset)
}

// floorDiv renders Python-style floor division: js '/' truncates toward
// zero, so when the inputs have differing signs and there is a remainder,
// the quotient must be adjusted down by one.
func floorDiv(a, b jsval.Value) jsval.Value {
	return jsval.CallFunc("intFloorDiv", []jsval.Value{a, b})
}

// floorMod renders Python-style modulo: result takes the sign of the
// divisor.
func floorMod(a, b jsval.Value) jsval.Value {
	return jsval.CallFunc("intFloorMod", []jsval.Value{a, b})
}
