package looptoken_test

import (
	"testing"

	"github.com/mna/asmjit/compiler"
	"github.com/mna/asmjit/frame"
	"github.com/mna/asmjit/host"
	"github.com/mna/asmjit/ir"
	"github.com/mna/asmjit/looptoken"
	"github.com/mna/asmjit/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newToken(t *testing.T) *looptoken.LoopToken {
	t.Helper()
	return looptoken.New(host.NewRegistry(), frame.Slots{}, runtime.Default)
}

// TestAssembleSelfJumpLoop verifies spec.md §8 scenario S1: a same-funcid
// JUMP compiles to a parallel assignment plus continue, closing the loop
// in-place without leaving the compiled function.
func TestAssembleSelfJumpLoop(t *testing.T) {
	tok := newToken(t)
	funcid := uint32(tok.Funcid)

	a := ir.NewBox(ir.INT)
	next := ir.NewBox(ir.INT)
	tgt := &ir.TargetToken{}
	tgt.Place(funcid, 0)

	addOp := ir.NewOp(ir.INT_ADD, next, ir.BoxArg(a), ir.ConstArg(ir.ConstInt(1)))
	jumpOp := ir.Operation{Opnum: ir.JUMP, Descr: tgt, Args: []ir.Arg{ir.BoxArg(next)}}

	layout := frame.Assign([]ir.Kind{ir.INT}, 0)
	blk := compiler.NewBlock(0, []ir.Operation{addOp, jumpOp}, []*ir.Box{a}, layout.Offsets, layout.Kinds, frame.Slots{}, runtime.Default, tok.Descrs, funcid)
	cb := blk.GenerateCode()

	src, err := tok.Assemble([]*compiler.CompiledBlock{cb})
	require.NoError(t, err)

	assert.Contains(t, src, "label = 0;")
	assert.Contains(t, src, "continue;")
	assert.NotContains(t, src, "return frame;", "a pure self-loop never falls out to the host")
}

// TestReassembleIsDeterministicForUnbridgedGuard verifies spec.md §8
// property 5 (guard idempotence): two independently assembled tokens given
// the same ops produce byte-identical dispatch code for an unbridged guard.
func TestReassembleIsDeterministicForUnbridgedGuard(t *testing.T) {
	build := func() string {
		tok := newToken(t)
		a, b := ir.NewBox(ir.INT), ir.NewBox(ir.INT)
		res := ir.NewBox(ir.INT)
		op := ir.NewOp(ir.INT_ADD_OVF, res, ir.BoxArg(a), ir.BoxArg(b))
		guard := ir.NewGuard(ir.GUARD_NO_OVERFLOW, ir.NewGuardDescr(), nil)
		layout := frame.Assign([]ir.Kind{ir.INT, ir.INT}, 0)
		blk := compiler.NewBlock(1, []ir.Operation{op, guard}, []*ir.Box{a, b}, layout.Offsets, layout.Kinds, frame.Slots{}, runtime.Default, tok.Descrs, uint32(tok.Funcid))
		cb := blk.GenerateCode()
		src, err := tok.Assemble([]*compiler.CompiledBlock{cb})
		require.NoError(t, err)
		return src
	}

	src1, src2 := build(), build()
	assert.Equal(t, src1, src2)
	assert.Contains(t, src1, "return frame;")
}

// TestAddCodeToLoopBridgesGuard verifies spec.md §8 scenario S4: bridging a
// failed guard patches its gtoken and splices a local jump to the bridge's
// first label into every future reassembly.
func TestAddCodeToLoopBridgesGuard(t *testing.T) {
	tok := newToken(t)
	funcid := uint32(tok.Funcid)

	a, b := ir.NewBox(ir.INT), ir.NewBox(ir.INT)
	res := ir.NewBox(ir.INT)
	guardDescr := ir.NewGuardDescr()
	op := ir.NewOp(ir.INT_ADD_OVF, res, ir.BoxArg(a), ir.BoxArg(b))
	guard := ir.NewGuard(ir.GUARD_NO_OVERFLOW, guardDescr, nil)
	layout := frame.Assign([]ir.Kind{ir.INT, ir.INT}, 0)
	blk := compiler.NewBlock(1, []ir.Operation{op, guard}, []*ir.Box{a, b}, layout.Offsets, layout.Kinds, frame.Slots{}, runtime.Default, tok.Descrs, funcid)
	cb := blk.GenerateCode()
	_, err := tok.Assemble([]*compiler.CompiledBlock{cb})
	require.NoError(t, err)
	require.False(t, guardDescr.Bridged())

	bridgeOp := ir.Operation{Opnum: ir.FINISH, Descr: &ir.StaticDescr{Name: "done"}}
	bridgeBlk := compiler.NewBlock(2, []ir.Operation{bridgeOp}, nil, nil, nil, frame.Slots{}, runtime.Default, tok.Descrs, funcid)
	bridgeCb := bridgeBlk.GenerateCode()

	src, err := tok.AddCodeToLoop(guardDescr, []*compiler.CompiledBlock{bridgeCb})
	require.NoError(t, err)

	assert.True(t, guardDescr.Bridged())
	assert.EqualValues(t, 2, guardDescr.GToken.Label)
	assert.Contains(t, src, "case 2: {")
	assert.Contains(t, src, "label = 2;")
	assert.Contains(t, src, "continue;", "a bridged guard jumps locally instead of exiting to the host")
}

// TestRedirectLoopAliasesRegistrySource verifies spec.md §8 scenario S5.
func TestRedirectLoopAliasesRegistrySource(t *testing.T) {
	reg := host.NewRegistry()
	oldTok := looptoken.New(reg, frame.Slots{}, runtime.Default)
	newTok := looptoken.New(reg, frame.Slots{}, runtime.Default)

	finish := func(tok *looptoken.LoopToken, label uint8) *compiler.CompiledBlock {
		op := ir.Operation{Opnum: ir.FINISH, Descr: &ir.StaticDescr{Name: "done"}}
		blk := compiler.NewBlock(label, []ir.Operation{op}, nil, nil, nil, frame.Slots{}, runtime.Default, tok.Descrs, uint32(tok.Funcid))
		return blk.GenerateCode()
	}

	_, err := oldTok.Assemble([]*compiler.CompiledBlock{finish(oldTok, 1)})
	require.NoError(t, err)
	newSrc, err := newTok.Assemble([]*compiler.CompiledBlock{finish(newTok, 1)})
	require.NoError(t, err)

	require.NoError(t, oldTok.RedirectLoop(newTok))

	got, err := reg.Source(oldTok.Funcid)
	require.NoError(t, err)
	assert.Equal(t, newSrc, got)

	// Once redirected, the old token can never reassemble again.
	_, err = oldTok.Assemble([]*compiler.CompiledBlock{finish(oldTok, 1)})
	assert.Error(t, err)
}

// TestInvalidateLoopIncrementsCounter verifies spec.md §8 scenario S6.
func TestInvalidateLoopIncrementsCounter(t *testing.T) {
	tok := newToken(t)
	require.Zero(t, tok.InvalidationCounter)
	tok.InvalidateLoop()
	tok.InvalidateLoop()
	assert.EqualValues(t, 2, tok.InvalidationCounter)
}

// TestAddCodeToLoopRequiresAtLeastOneBlock guards the documented
// precondition on AddCodeToLoop.
func TestAddCodeToLoopRequiresAtLeastOneBlock(t *testing.T) {
	tok := newToken(t)
	_, err := tok.AddCodeToLoop(ir.NewGuardDescr(), nil)
	assert.Error(t, err)
}
