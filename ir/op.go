package ir

import "fmt"

// Opnum enumerates the operations a trace can contain. Order matches the
// groupings in spec.md §3-4: control flow and labels first, then arithmetic,
// then the memory/call/GC family, then the guard family.
type Opnum uint8

const (
	NOP Opnum = iota

	LABEL
	JUMP
	FINISH

	// integer arithmetic, two's-complement 32-bit
	INT_ADD
	INT_SUB
	INT_MUL
	INT_AND
	INT_OR
	INT_XOR
	INT_LSHIFT
	INT_RSHIFT
	INT_URSHIFT
	INT_FLOORDIV
	INT_MOD
	INT_NEG
	INT_INVERT
	INT_IS_ZERO
	INT_IS_TRUE
	INT_FORCE_GE_ZERO

	// comparisons
	INT_LT
	INT_LE
	INT_GT
	INT_GE
	INT_EQ
	INT_NE

	// float arithmetic
	FLOAT_ADD
	FLOAT_SUB
	FLOAT_MUL
	FLOAT_DIV
	FLOAT_NEG
	FLOAT_ABS
	FLOAT_LT
	FLOAT_LE
	FLOAT_GT
	FLOAT_GE
	FLOAT_EQ
	FLOAT_NE

	// casts
	INT_SIGNEXT
	CAST_INT_TO_FLOAT
	CAST_FLOAT_TO_INT
	CAST_PTR_TO_INT

	// overflow-checked arithmetic; each of these must be immediately
	// followed by a GUARD_OVERFLOW or GUARD_NO_OVERFLOW (op_needs_guard).
	INT_ADD_OVF
	INT_SUB_OVF
	INT_MUL_OVF

	// memory access
	GETFIELD_GC
	SETFIELD_GC
	GETARRAYITEM_GC
	SETARRAYITEM_GC
	GETINTERIORFIELD_GC
	SETINTERIORFIELD_GC
	ARRAYLEN_GC
	STRLEN
	STRGETITEM
	UNICODELEN
	UNICODEGETITEM
	COPYSTRCONTENT

	// calls; CALL_MAY_FORCE/CALL_ASSEMBLER/CALL_RELEASE_GIL, together with
	// the *_OVF family, are the op_needs_guard family (paired with the guard
	// immediately following them in the trace).
	CALL
	CALL_MAY_FORCE
	CALL_ASSEMBLER
	CALL_RELEASE_GIL
	COND_CALL
	CALL_MALLOC_GC
	CALL_MALLOC_NURSERY
	CALL_MALLOC_NURSERY_VARSIZE
	CALL_MALLOC_NURSERY_VARSIZE_FRAME

	// GC write barriers
	COND_CALL_GC_WB
	COND_CALL_GC_WB_ARRAY

	// misc
	FORCE_TOKEN

	// guards (GUARD_OVERFLOW/GUARD_NO_OVERFLOW follow the *_OVF op they pair
	// with, and GUARD_NOT_FORCED may follow a CALL_MAY_FORCE/CALL_ASSEMBLER/
	// CALL_RELEASE_GIL; the other guards, and an unpaired GUARD_NOT_FORCED,
	// check a value directly and stand alone)
	GUARD_TRUE
	GUARD_FALSE
	GUARD_VALUE
	GUARD_CLASS
	GUARD_NONNULL
	GUARD_ISNULL
	GUARD_NONNULL_CLASS
	GUARD_NO_EXCEPTION
	GUARD_EXCEPTION
	GUARD_NOT_FORCED
	GUARD_NOT_INVALIDATED
	GUARD_OVERFLOW
	GUARD_NO_OVERFLOW

	opnumMax
)

var opnumNames = [...]string{
	NOP:                               "nop",
	LABEL:                             "label",
	JUMP:                              "jump",
	FINISH:                            "finish",
	INT_ADD:                           "int_add",
	INT_SUB:                           "int_sub",
	INT_MUL:                           "int_mul",
	INT_AND:                           "int_and",
	INT_OR:                            "int_or",
	INT_XOR:                           "int_xor",
	INT_LSHIFT:                        "int_lshift",
	INT_RSHIFT:                        "int_rshift",
	INT_URSHIFT:                       "int_urshift",
	INT_FLOORDIV:                      "int_floordiv",
	INT_MOD:                           "int_mod",
	INT_NEG:                           "int_neg",
	INT_INVERT:                        "int_invert",
	INT_IS_ZERO:                       "int_is_zero",
	INT_IS_TRUE:                       "int_is_true",
	INT_FORCE_GE_ZERO:                 "int_force_ge_zero",
	INT_LT:                            "int_lt",
	INT_LE:                            "int_le",
	INT_GT:                            "int_gt",
	INT_GE:                            "int_ge",
	INT_EQ:                            "int_eq",
	INT_NE:                            "int_ne",
	FLOAT_ADD:                         "float_add",
	FLOAT_SUB:                         "float_sub",
	FLOAT_MUL:                         "float_mul",
	FLOAT_DIV:                         "float_div",
	FLOAT_NEG:                         "float_neg",
	FLOAT_ABS:                         "float_abs",
	FLOAT_LT:                          "float_lt",
	FLOAT_LE:                          "float_le",
	FLOAT_GT:                          "float_gt",
	FLOAT_GE:                          "float_ge",
	FLOAT_EQ:                          "float_eq",
	FLOAT_NE:                          "float_ne",
	INT_SIGNEXT:                       "int_signext",
	CAST_INT_TO_FLOAT:                 "cast_int_to_float",
	CAST_FLOAT_TO_INT:                 "cast_float_to_int",
	CAST_PTR_TO_INT:                   "cast_ptr_to_int",
	INT_ADD_OVF:                       "int_add_ovf",
	INT_SUB_OVF:                       "int_sub_ovf",
	INT_MUL_OVF:                       "int_mul_ovf",
	GETFIELD_GC:                       "getfield_gc",
	SETFIELD_GC:                       "setfield_gc",
	GETARRAYITEM_GC:                   "getarrayitem_gc",
	SETARRAYITEM_GC:                   "setarrayitem_gc",
	GETINTERIORFIELD_GC:               "getinteriorfield_gc",
	SETINTERIORFIELD_GC:               "setinteriorfield_gc",
	ARRAYLEN_GC:                       "arraylen_gc",
	STRLEN:                            "strlen",
	STRGETITEM:                        "strgetitem",
	UNICODELEN:                        "unicodelen",
	UNICODEGETITEM:                    "unicodegetitem",
	COPYSTRCONTENT:                    "copystrcontent",
	CALL:                              "call",
	CALL_MAY_FORCE:                    "call_may_force",
	CALL_ASSEMBLER:                    "call_assembler",
	CALL_RELEASE_GIL:                  "call_release_gil",
	COND_CALL:                         "cond_call",
	CALL_MALLOC_GC:                    "call_malloc_gc",
	CALL_MALLOC_NURSERY:               "call_malloc_nursery",
	CALL_MALLOC_NURSERY_VARSIZE:       "call_malloc_nursery_varsize",
	CALL_MALLOC_NURSERY_VARSIZE_FRAME: "call_malloc_nursery_varsize_frame",
	COND_CALL_GC_WB:                   "cond_call_gc_wb",
	COND_CALL_GC_WB_ARRAY:             "cond_call_gc_wb_array",
	FORCE_TOKEN:                       "force_token",
	GUARD_TRUE:                        "guard_true",
	GUARD_FALSE:                       "guard_false",
	GUARD_VALUE:                       "guard_value",
	GUARD_CLASS:                       "guard_class",
	GUARD_NONNULL:                     "guard_nonnull",
	GUARD_ISNULL:                      "guard_isnull",
	GUARD_NONNULL_CLASS:               "guard_nonnull_class",
	GUARD_NO_EXCEPTION:                "guard_no_exception",
	GUARD_EXCEPTION:                   "guard_exception",
	GUARD_NOT_FORCED:                  "guard_not_forced",
	GUARD_NOT_INVALIDATED:             "guard_not_invalidated",
	GUARD_OVERFLOW:                    "guard_overflow",
	GUARD_NO_OVERFLOW:                 "guard_no_overflow",
}

func (op Opnum) String() string {
	if op < opnumMax {
		if name := opnumNames[op]; name != "" {
			return name
		}
	}
	return fmt.Sprintf("illegal opnum (%d)", uint8(op))
}

var reverseLookupOpnum = func() map[string]Opnum {
	m := make(map[string]Opnum, len(opnumNames))
	for op, s := range opnumNames {
		if s != "" {
			m[s] = Opnum(op)
		}
	}
	return m
}()

// LookupOpnum resolves a textual opcode name (as used by package traceasm)
// to its Opnum.
func LookupOpnum(name string) (Opnum, bool) {
	op, ok := reverseLookupOpnum[name]
	return op, ok
}

// needsGuard records which opcodes must be immediately followed, in the
// trace, by the guard that resolves their fallible outcome (spec.md §4.4,
// op_needs_guard).
var needsGuard = map[Opnum]bool{
	INT_ADD_OVF:      true,
	INT_SUB_OVF:      true,
	INT_MUL_OVF:      true,
	CALL_MAY_FORCE:   true,
	CALL_ASSEMBLER:   true,
	CALL_RELEASE_GIL: true,
}

// NeedsGuard reports whether op must consume the next operation in the
// trace as its paired guard.
func NeedsGuard(op Opnum) bool { return needsGuard[op] }

// IsGuard reports whether op belongs to the guard family.
func (op Opnum) IsGuard() bool {
	return op >= GUARD_TRUE && op < opnumMax
}

// IsOverflowGuard reports whether op is one of the two guards that pair
// with an *_OVF arithmetic op.
func (op Opnum) IsOverflowGuard() bool {
	return op == GUARD_OVERFLOW || op == GUARD_NO_OVERFLOW
}

// pureExprs are operations with no side effect whose result, if used, can be
// folded into a single Value expression rather than a statement (spec.md
// §4.4, op_is_simple_expr) -- excluding INT_FORCE_GE_ZERO, FLOAT_ABS and any
// float-typed load, which the spec calls out as never simple.
var pureExprs = map[Opnum]bool{
	INT_ADD: true, INT_SUB: true, INT_MUL: true,
	INT_AND: true, INT_OR: true, INT_XOR: true,
	INT_LSHIFT: true, INT_RSHIFT: true, INT_URSHIFT: true,
	INT_FLOORDIV: true, INT_MOD: true,
	INT_NEG: true, INT_INVERT: true, INT_IS_ZERO: true, INT_IS_TRUE: true,
	INT_LT: true, INT_LE: true, INT_GT: true, INT_GE: true, INT_EQ: true, INT_NE: true,
	FLOAT_ADD: true, FLOAT_SUB: true, FLOAT_MUL: true, FLOAT_DIV: true, FLOAT_NEG: true,
	FLOAT_LT: true, FLOAT_LE: true, FLOAT_GT: true, FLOAT_GE: true, FLOAT_EQ: true, FLOAT_NE: true,
	INT_SIGNEXT: true, CAST_INT_TO_FLOAT: true, CAST_FLOAT_TO_INT: true, CAST_PTR_TO_INT: true,
	ARRAYLEN_GC: true, STRLEN: true, STRGETITEM: true, UNICODELEN: true, UNICODEGETITEM: true,
	GETFIELD_GC: true, GETARRAYITEM_GC: true, GETINTERIORFIELD_GC: true,
}

// IsSimpleExpr reports whether op can be folded as a pure expression value.
func IsSimpleExpr(op Opnum) bool { return pureExprs[op] }

// HasSideEffect reports whether op's result, even if unused, must still be
// emitted (e.g. stores, calls). Used together with a nil longevity entry to
// decide whether a dead op can be skipped entirely.
func HasSideEffect(op Opnum) bool {
	switch op {
	case SETFIELD_GC, SETARRAYITEM_GC, SETINTERIORFIELD_GC, COPYSTRCONTENT,
		CALL, CALL_MAY_FORCE, CALL_ASSEMBLER, CALL_RELEASE_GIL, COND_CALL,
		CALL_MALLOC_GC, CALL_MALLOC_NURSERY, CALL_MALLOC_NURSERY_VARSIZE,
		CALL_MALLOC_NURSERY_VARSIZE_FRAME, COND_CALL_GC_WB, COND_CALL_GC_WB_ARRAY,
		JUMP, FINISH, LABEL:
		return true
	default:
		return op.IsGuard()
	}
}
