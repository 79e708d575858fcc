package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/mna/asmjit/assembler"
	"github.com/mna/asmjit/compiler"
	"github.com/mna/asmjit/frame"
	"github.com/mna/asmjit/host"
	"github.com/mna/asmjit/ir"
	"github.com/mna/asmjit/runtime"
	"github.com/mna/asmjit/traceasm"
)

// defaultSlots is the frame header layout every emitted function shares,
// matching the fixed word offsets of spec.md §4.3/§6.
var defaultSlots = frame.Slots{
	DescrOfs:      0,
	ForceDescrOfs: 4,
	GuardExcOfs:   8,
	GCMapOfs:      12,
	SizeOfs:       16,
	NextCallOfs:   20,
	HeaderSize:    24,
}

// Compile reads one or more trace files, compiles each into a Loop Token
// via the Block Compiler and Assembler Facade, and prints the generated
// source (spec.md §4.4-§4.6).
func (c *Cmd) Compile(ctx context.Context, stdio mainer.Stdio, args []string) error {
	return CompileFiles(ctx, stdio, c.Debug, args...)
}

func CompileFiles(ctx context.Context, stdio mainer.Stdio, debug bool, files ...string) error {
	fac := assembler.New(host.NewRegistry(), defaultSlots, runtime.Default)
	fac.SetDebug(debug)

	var firstErr error
	for i, f := range files {
		// the Facade's registry hands out funcids sequentially starting at 1,
		// so the n-th trace assembled against a fresh registry always lands on
		// funcid n; this lets JUMP ops target their own loop without waiting
		// for AssembleLoop to hand the funcid back first.
		if err := compileFile(stdio, fac, f, uint32(i+1)); err != nil {
			firstErr = printError(stdio, err)
		}
	}
	return firstErr
}

func compileFile(stdio mainer.Stdio, fac *assembler.Facade, path string, selfFuncid uint32) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	tr, err := traceasm.Asm(src)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	blocks := splitBlocks(tr.Ops)
	descrs := compiler.NewDescrPool()
	compiled := make([]*compiler.CompiledBlock, 0, len(blocks))

	for i, ops := range blocks {
		inputs, kinds := blockInputs(ops)
		layout := frame.Assign(kinds, defaultSlots.HeaderSize)
		blk := compiler.NewBlock(uint8(i), ops, inputs, layout.Offsets, kinds, defaultSlots, runtime.Default, descrs, selfFuncid)
		compiled = append(compiled, blk.GenerateCode())
	}

	tok, gen, err := fac.AssembleLoop(compiled)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	fmt.Fprintf(stdio.Stdout, "// %s -> funcid %d\n%s\n", path, tok.Funcid, gen)
	return nil
}

// splitBlocks partitions a flat trace into per-label groups: a new block
// starts at every LABEL op (which is always block 0 if absent at position
// 0, since a trace's first instructions implicitly belong to the entry
// block).
func splitBlocks(ops []ir.Operation) [][]ir.Operation {
	var blocks [][]ir.Operation
	var cur []ir.Operation
	for _, op := range ops {
		if op.Opnum == ir.LABEL && len(cur) > 0 {
			blocks = append(blocks, cur)
			cur = nil
		}
		cur = append(cur, op)
	}
	if len(cur) > 0 {
		blocks = append(blocks, cur)
	}
	return blocks
}

// blockInputs returns, in first-use order, the boxes a block reads before
// ever assigning them itself -- the live-in set the owning Loop Token would
// normally have computed from the whole trace's data-flow.
func blockInputs(ops []ir.Operation) ([]*ir.Box, []ir.Kind) {
	defined := make(map[*ir.Box]bool)
	seen := make(map[*ir.Box]bool)
	var inputs []*ir.Box
	var kinds []ir.Kind

	use := func(b *ir.Box) {
		if b == nil || defined[b] || seen[b] {
			return
		}
		seen[b] = true
		inputs = append(inputs, b)
		kinds = append(kinds, b.Kind)
	}

	for _, op := range ops {
		for _, a := range op.Args {
			if !a.IsConst {
				use(a.Box)
			}
		}
		for _, a := range op.FailArgs {
			if !a.IsConst {
				use(a.Box)
			}
		}
		if op.Result != nil {
			defined[op.Result] = true
		}
	}
	return inputs, kinds
}
