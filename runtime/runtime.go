// Package runtime models the well-known process-wide addresses and
// resource protocols of spec.md §4.6 and §5: the execute trampoline, GIL
// acquire/release wrappers, nursery bump-allocation pointers, GC malloc
// slowpaths, and the write-barrier helpers. These are resolved once (the
// source's "setup_once") and held as opaque function names that the
// Block Compiler splices into emitted calls via jsval.CallFunc.
package runtime

import "github.com/mna/asmjit/jsval"

// Addrs holds the process-wide well-known function names resolved at
// startup (spec.md §4.6: "Holds process-global addresses resolved at
// setup_once"). In the emitted asm.js-style dialect these are import-table
// entries rather than raw pointers, but they play the same role.
type Addrs struct {
	ExecuteTrampoline string
	ReleaseGIL        string
	ReacquireGIL      string
	GCMallocNursery   string
	GCMallocArray     string
	GCMallocStr       string
	GCMallocUnicode   string
	ReallocFrameFunc  string
	AssemblerHelper   string
	WriteBarrier      string
	WriteBarrierArray string
	WB                WriteBarrierLayout
}

// Default names the well-known import-table entries used throughout this
// module's emitted source, matching the host ABI of spec.md §6.
var Default = Addrs{
	ExecuteTrampoline: "executeTrampoline",
	ReleaseGIL:        "releaseGil",
	ReacquireGIL:      "reacquireGil",
	GCMallocNursery:   "gcMallocNursery",
	GCMallocArray:     "gcMallocArray",
	GCMallocStr:       "gcMallocStr",
	GCMallocUnicode:   "gcMallocUnicode",
	ReallocFrameFunc:  "reallocFrame",
	AssemblerHelper:   "assemblerHelperAdr",
	WriteBarrier:      "jitWbFunc",
	WriteBarrierArray: "jitWbArrayFunc",
	WB: WriteBarrierLayout{
		FlagByteOfs:    0,
		FlagSingleByte: 0x01,
		CardByteOfs:    0,
		CardSingleByte: 0x80,
		CardPageShift:  7,
	},
}

// Nursery holds the two well-known pointers used for inline bump allocation
// (spec.md §4.4: CALL_MALLOC_NURSERY family).
type Nursery struct {
	FreeAddr jsval.Value // address of the "nursery_free" word
	TopAddr  jsval.Value // address of the "nursery_top" word
	MaxYoung int64       // max_size_of_young_obj, the inline-allocation ceiling
}

// WriteBarrierLayout carries the flag-byte offsets used by
// COND_CALL_GC_WB[_ARRAY] (spec.md §4.4, §8 scenario S3). jit_wb_cards_set_byteofs
// and jit_wb_if_flag_byteofs are required to coincide (the original asserts
// this), so one flag byte load serves both tests; CardSingleByte == 0 means
// the GC has no card-marking support and COND_CALL_GC_WB_ARRAY degrades to
// the same flag-only check as the scalar barrier.
type WriteBarrierLayout struct {
	FlagByteOfs    int64 // jit_wb_if_flag_byteofs
	FlagSingleByte int64 // jit_wb_if_flag_singlebyte
	CardByteOfs    int64 // jit_wb_cards_set_byteofs
	CardSingleByte int64 // jit_wb_cards_set_singlebyte
	CardPageShift  int64 // jit_wb_card_page_shift: index bits consumed per card
}

// Trampoline emits a call to the execute trampoline, used by
// CALL_ASSEMBLER (spec.md §4.4).
func (a Addrs) Trampoline(funcid, frame jsval.Value) jsval.Value {
	return jsval.CallFunc(a.ExecuteTrampoline, []jsval.Value{funcid, frame})
}

// Release emits a call to release the GIL (spec.md §4.4, §5:
// CALL_RELEASE_GIL, "the two explicit release_gil/reacquire_gil wrappers").
func (a Addrs) Release() jsval.Value { return jsval.CallFunc(a.ReleaseGIL, nil) }

// Reacquire emits a call to reacquire the GIL.
func (a Addrs) Reacquire() jsval.Value { return jsval.CallFunc(a.ReacquireGIL, nil) }

// MallocNursery emits the GC slowpath call for a fixed-size allocation.
func (a Addrs) MallocNursery(size jsval.Value) jsval.Value {
	return jsval.CallFunc(a.GCMallocNursery, []jsval.Value{size})
}

// MallocArray emits the GC slowpath call for a variable-size array
// allocation (CALL_MALLOC_NURSERY_VARSIZE).
func (a Addrs) MallocArray(tid, length, itemsize jsval.Value) jsval.Value {
	return jsval.CallFunc(a.GCMallocArray, []jsval.Value{tid, length, itemsize})
}

// MallocStr emits the GC slowpath call for a string allocation.
func (a Addrs) MallocStr(length jsval.Value) jsval.Value {
	return jsval.CallFunc(a.GCMallocStr, []jsval.Value{length})
}

// MallocUnicode emits the GC slowpath call for a unicode string allocation.
func (a Addrs) MallocUnicode(length jsval.Value) jsval.Value {
	return jsval.CallFunc(a.GCMallocUnicode, []jsval.Value{length})
}

// ReallocFrame emits the frame-growth call used at function entry when
// jfi_frame_depth exceeds the current frame size (spec.md §4.5, §7 "Frame
// too small").
func (a Addrs) ReallocFrame(frame, newDepth jsval.Value) jsval.Value {
	return jsval.CallFunc(a.ReallocFrameFunc, []jsval.Value{frame, newDepth})
}

// AssemblerHelperCall emits the fallback call made by CALL_ASSEMBLER when
// the callee frame did not finish normally (spec.md §4.4).
func (a Addrs) AssemblerHelperCall(frame, descr jsval.Value) jsval.Value {
	return jsval.CallFunc(a.AssemblerHelper, []jsval.Value{frame, descr})
}

// WriteBarrierCall emits the scalar write-barrier slowpath call.
func (a Addrs) WriteBarrierCall(obj jsval.Value) jsval.Value {
	return jsval.CallFunc(a.WriteBarrier, []jsval.Value{obj})
}

// WriteBarrierArrayCall emits the array-flavored write-barrier slowpath
// call. Like WriteBarrierCall it only ever takes the object: the index is
// never passed to the GC's write-barrier function, only used inline by the
// caller to compute which card bit to set (spec.md §4.4 COND_CALL_GC_WB_ARRAY).
func (a Addrs) WriteBarrierArrayCall(obj jsval.Value) jsval.Value {
	return jsval.CallFunc(a.WriteBarrierArray, []jsval.Value{obj})
}
