// Package compiler implements the Block Compiler of spec.md §4.4: it lowers
// one straight-line sequence of operations between labels into a fragment,
// dispatching per-opcode to pure-expression, statement, or guard-paired
// emitters, folding constants and simple expressions, and tracking box
// liveness. Live values are not spilled to the frame around calls that may
// trigger GC or release the GIL; only guard failures write values to the
// frame.
package compiler

import (
	"fmt"

	"github.com/mna/asmjit/builder"
	"github.com/mna/asmjit/frame"
	"github.com/mna/asmjit/ir"
	"github.com/mna/asmjit/jsval"
	"github.com/mna/asmjit/runtime"
)

// CompiledBlock is everything a Block retains once generate_code completes
// and its transient emission state is dropped (spec.md §3, "Compiled
// Block"): label, input layout, initial gcmap, and the fragment/faildescr
// alternation replayed at every reassembly.
type CompiledBlock struct {
	Label        uint8
	InputLocs    []int
	InputKinds   []ir.Kind
	InitialGCMap frame.GCMap

	// Items alternates builder.Fragment and *ir.GuardDescr entries, always
	// starting and ending with a fragment (spec.md §4.5).
	Items []any
}

// Block is the transient per-label compilation unit (spec.md §3: "owns,
// transiently during emission").
type Block struct {
	Label      uint8
	Ops        []ir.Operation
	Inputs     []*ir.Box
	InputLocs  []int
	InputKinds []ir.Kind

	Slots      frame.Slots
	Runtime    runtime.Addrs
	Descrs     *DescrPool
	SelfFuncid uint32

	b          *builder.Builder
	vars       map[*ir.Box]jsval.Value
	lastUse    map[*ir.Box]int
	spillOfs   map[*ir.Box]int // frame offset if this box has been spilled
	spillDepth int             // current max spill offset used
	items      []any
}

// NewBlock creates a Block ready for GenerateCode. inputs gives the boxes
// received at this label's entry, already assigned InputLocs/InputKinds by
// the caller (typically the owning Loop Token, via frame.Assign).
func NewBlock(label uint8, ops []ir.Operation, inputs []*ir.Box, inputLocs []int, inputKinds []ir.Kind, slots frame.Slots, rt runtime.Addrs, descrs *DescrPool, selfFuncid uint32) *Block {
	nInt, nDouble := 0, 0
	for _, k := range inputKinds {
		if k == ir.FLOAT {
			nDouble++
		} else {
			nInt++
		}
	}

	blk := &Block{
		Label:      label,
		Ops:        ops,
		Inputs:     inputs,
		InputLocs:  inputLocs,
		InputKinds: inputKinds,
		Slots:      slots,
		Runtime:    rt,
		Descrs:     descrs,
		SelfFuncid: selfFuncid,
		b:          builder.New(nInt, nDouble),
		vars:       make(map[*ir.Box]jsval.Value, len(ops)),
		lastUse:    computeLastUse(ops, inputs),
		spillOfs:   make(map[*ir.Box]int),
	}

	intIdx, dblIdx := 0, 0
	for i, box := range inputs {
		if inputKinds[i] == ir.FLOAT {
			blk.vars[box] = jsval.DoubleVar(fmt.Sprintf("d%d", dblIdx))
			dblIdx++
		} else {
			blk.vars[box] = jsval.IntVar(fmt.Sprintf("i%d", intIdx))
			intIdx++
		}
	}
	return blk
}

// computeLastUse returns, for every box referenced anywhere in ops (as an
// arg, result, or failarg), the index of its last use. Input boxes that are
// never referenced still get an entry at -1 so they are never spuriously
// treated as dead-on-entry.
func computeLastUse(ops []ir.Operation, inputs []*ir.Box) map[*ir.Box]int {
	last := make(map[*ir.Box]int, len(ops)+len(inputs))
	for _, box := range inputs {
		last[box] = -1
	}
	for pos, op := range ops {
		for _, a := range op.Args {
			if !a.IsConst && a.Box != nil {
				last[a.Box] = pos
			}
		}
		for _, a := range op.FailArgs {
			if !a.IsConst && a.Box != nil {
				if cur, ok := last[a.Box]; !ok || pos > cur {
					last[a.Box] = pos
				}
			}
		}
	}
	return last
}

// GenerateCode is the Block Compiler's entry point (spec.md §4.4).
func (blk *Block) GenerateCode() *CompiledBlock {
	pos := 0
	for pos < len(blk.Ops) {
		op := blk.Ops[pos]

		switch {
		case op.Opnum == ir.LABEL:
			// labels are structural markers consumed by the owning loop token
			// when splitting the trace into blocks; nothing to emit here.
			pos++

		case ir.NeedsGuard(op.Opnum):
			if pos+1 >= len(blk.Ops) || !blk.Ops[pos+1].Opnum.IsGuard() {
				panic(fmt.Sprintf("compiler: %s at position %d not immediately followed by a guard", op.Opnum, pos))
			}
			guard := blk.Ops[pos+1]
			blk.emitWithGuard(op, guard, pos)
			blk.release(pos)
			blk.release(pos + 1)
			pos += 2

		case isDead(op, blk.lastUse):
			if !ir.HasSideEffect(op.Opnum) {
				blk.b.Comment("dead: %s", op.Opnum)
				blk.release(pos)
				pos++
				continue
			}
			blk.emitStmt(op, pos)
			blk.release(pos)
			pos++

		case ir.IsSimpleExpr(op.Opnum) && !isFloatLoad(op):
			v := blk.emitExpr(op, pos)
			if op.Result != nil {
				blk.vars[op.Result] = v
			}
			blk.release(pos)
			pos++

		case op.Opnum.IsGuard():
			blk.emitStandaloneGuard(op, pos)
			blk.release(pos)
			pos++

		default:
			blk.emitStmt(op, pos)
			blk.release(pos)
			pos++
		}
	}

	// final fragment always closes the item list.
	blk.items = append(blk.items, blk.b.CaptureFragment())

	layout := frame.Assign(blk.InputKinds, blk.Slots.HeaderSize)
	cb := &CompiledBlock{
		Label:        blk.Label,
		InputLocs:    layout.Offsets,
		InputKinds:   blk.InputKinds,
		InitialGCMap: frame.BuildGCMap(layout),
		Items:        blk.items,
	}
	return cb
}

// isFloatLoad reports whether op is one of the field/array/interior loads
// and its result is FLOAT-typed, the one exclusion spec.md §4.4 calls out
// from op_is_simple_expr beyond the opcode table itself.
func isFloatLoad(op ir.Operation) bool {
	switch op.Opnum {
	case ir.GETFIELD_GC, ir.GETARRAYITEM_GC, ir.GETINTERIORFIELD_GC:
		return op.Result != nil && op.Result.Kind == ir.FLOAT
	default:
		return false
	}
}

// isDead reports whether op's result (if any) is never used.
func isDead(op ir.Operation, lastUse map[*ir.Box]int) bool {
	if op.Result == nil {
		return false
	}
	_, used := lastUse[op.Result]
	return !used
}

// release frees the variable backing any box whose last use was pos,
// unless it is one of this block's input boxes (those are owned by the
// input layout for the block's whole lifetime).
func (blk *Block) release(pos int) {
	for box, last := range blk.lastUse {
		if last != pos {
			continue
		}
		if blk.isInput(box) {
			continue
		}
		v, ok := blk.vars[box]
		if !ok {
			continue
		}
		if box.Kind == ir.FLOAT {
			blk.b.FreeDouble(v)
		} else {
			blk.b.FreeInt(v)
		}
		delete(blk.vars, box)
	}
}

func (blk *Block) isInput(box *ir.Box) bool {
	for _, in := range blk.Inputs {
		if in == box {
			return true
		}
	}
	return false
}

// valueOf resolves an Arg to a jsval.Value, looking up box variables or
// converting constants directly.
func (blk *Block) valueOf(a ir.Arg) jsval.Value {
	if a.IsConst {
		switch a.Const.Kind {
		case ir.FLOAT:
			return jsval.ConstFloat(a.Const.Flt)
		default:
			return jsval.ConstInt(a.Const.Int)
		}
	}
	v, ok := blk.vars[a.Box]
	if !ok {
		panic(fmt.Sprintf("compiler: box %s used before definition", a.Box))
	}
	return v
}

// resultVar allocates (or returns the existing) variable for op's result.
func (blk *Block) resultVar(op ir.Operation) jsval.Value {
	if op.Result == nil {
		return nil
	}
	if v, ok := blk.vars[op.Result]; ok {
		return v
	}
	var v jsval.Value
	if op.Result.Kind == ir.FLOAT {
		v = blk.b.AllocDouble()
	} else {
		v = blk.b.AllocInt()
	}
	blk.vars[op.Result] = v
	return v
}
