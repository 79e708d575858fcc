// Package looptoken implements the Compiled Loop Token of spec.md §3 and
// §4.5: it owns a reserved function handle, the ordered list of compiled
// blocks, the invalidation counter, the frame-info header, and the
// reassembly protocol that serializes everything into one source function
// and hands it to the host registry.
package looptoken

import (
	"fmt"
	"strings"

	"github.com/mna/asmjit/builder"
	"github.com/mna/asmjit/compiler"
	"github.com/mna/asmjit/frame"
	"github.com/mna/asmjit/host"
	"github.com/mna/asmjit/ir"
	"github.com/mna/asmjit/jsval"
	"github.com/mna/asmjit/runtime"
)

// LoopToken is the Compiled Loop Token (spec.md §3).
type LoopToken struct {
	Funcid host.Funcid

	Blocks []*compiler.CompiledBlock

	// InvalidationCounter is the heap cell GUARD_NOT_INVALIDATED compares
	// against a captured snapshot (spec.md §4.5).
	InvalidationCounter int64

	// FrameDepth is jfi_frame_depth: never less than the highest offset any
	// block of this loop has ever assigned (spec.md §3 invariant 2).
	FrameDepth int64

	// GCRefs is the keep-alive set of inlined GC references (spec.md §3).
	GCRefs []any

	RedirectedTo      host.Funcid
	RedirectedFuncids []host.Funcid

	Descrs  *compiler.DescrPool
	Slots   frame.Slots
	Runtime runtime.Addrs

	registry *host.Registry
}

// New reserves a funcid from registry and returns an empty Loop Token.
func New(registry *host.Registry, slots frame.Slots, rt runtime.Addrs) *LoopToken {
	return &LoopToken{
		Funcid:   registry.Reserve(),
		Descrs:   compiler.NewDescrPool(),
		Slots:    slots,
		Runtime:  rt,
		registry: registry,
	}
}

// addBlock appends a compiled block and grows FrameDepth to cover every
// offset any of its guard descrs ever spills to.
func (t *LoopToken) addBlock(cb *compiler.CompiledBlock) {
	t.Blocks = append(t.Blocks, cb)
	for _, item := range cb.Items {
		descr, ok := item.(*ir.GuardDescr)
		if !ok {
			continue
		}
		for i, loc := range descr.FailLocs {
			size := 4
			if descr.FailKinds[i] == ir.FLOAT {
				size = 8
			}
			frame.EnsureFrameDepth(&t.FrameDepth, loc+size)
		}
	}
}

// Assemble adds already-compiled blocks (one per LABEL, produced by the
// caller) and reassembles the whole function (spec.md §2: "control flow").
func (t *LoopToken) Assemble(blocks []*compiler.CompiledBlock) (string, error) {
	if t.RedirectedTo != 0 {
		return "", fmt.Errorf("looptoken: funcid %d has been redirected, cannot reassemble", t.Funcid)
	}
	for _, cb := range blocks {
		t.addBlock(cb)
	}
	return t.reassemble()
}

// AddCodeToLoop implements add_code_to_loop (spec.md §4.5): appends bridge
// blocks to this same loop token, patches the incoming guard's gtoken to
// point at the first new block's label, and reassembles.
func (t *LoopToken) AddCodeToLoop(faildescr *ir.GuardDescr, newBlocks []*compiler.CompiledBlock) (string, error) {
	if len(newBlocks) == 0 {
		return "", fmt.Errorf("looptoken: AddCodeToLoop requires at least one block")
	}
	firstLabel := newBlocks[0].Label
	faildescr.GToken.Label = firstLabel
	for _, cb := range newBlocks {
		t.addBlock(cb)
	}
	return t.reassemble()
}

// RedirectLoop implements redirect_loop (spec.md §4.5): marks self as
// redirected to newTok and makes the host alias self's funcid to newTok's
// compiled code. Once redirected, self is never reassembled again.
func (t *LoopToken) RedirectLoop(newTok *LoopToken) error {
	if err := t.registry.Copy(newTok.Funcid, t.Funcid); err != nil {
		return fmt.Errorf("looptoken: redirect: %w", err)
	}
	t.RedirectedTo = newTok.Funcid
	newTok.RedirectedFuncids = append(newTok.RedirectedFuncids, t.Funcid)
	return nil
}

// InvalidateLoop increments the invalidation counter (spec.md §4.5); the
// next GUARD_NOT_INVALIDATED comparing a stale snapshot will fail.
func (t *LoopToken) InvalidateLoop() { t.InvalidationCounter++ }

// reassemble emits the switch-in-a-loop function shape of spec.md §4.5 and
// installs it via compile/recompile, copying the funcid onto every
// redirected_funcid afterward.
func (t *LoopToken) reassemble() (string, error) {
	var src strings.Builder
	layout := t.Slots.Layout()

	fmt.Fprintf(&src, "function jitted_%d(label, frame) {\n", t.Funcid)
	sizeWord := jsval.HeapData(jsval.Int32, layout.SizeAddr(jsval.Frame)).Render()
	excWord := jsval.HeapData(jsval.Int32, layout.GuardExcAddr(jsval.Frame)).Render()
	fmt.Fprintf(&src, "  if (%s > %s) {\n", jsval.ConstInt(t.FrameDepth).Render(), sizeWord)
	src.WriteString("    var savedExc = " + excWord + ";\n")
	src.WriteString("    " + excWord + " = 0;\n")
	fmt.Fprintf(&src, "    frame = %s;\n", t.Runtime.ReallocFrame(jsval.Frame, jsval.ConstInt(t.FrameDepth)).Render())
	src.WriteString("    " + excWord + " = savedExc;\n")
	src.WriteString("  }\n")

	src.WriteString("  switch (label) {\n")
	for _, b := range t.Blocks {
		fmt.Fprintf(&src, "    case %d: break;\n", b.Label)
	}
	src.WriteString("  }\n")

	src.WriteString("  while (1) {\n")
	src.WriteString("    switch (label) {\n")
	for _, b := range t.Blocks {
		fmt.Fprintf(&src, "      case %d: {\n", b.Label)
		src.WriteString(t.replayBlock(b))
		src.WriteString("      }\n")
	}
	src.WriteString("    }\n")
	src.WriteString("  }\n")
	src.WriteString("}\n")

	text := src.String()
	var err error
	if _, serr := t.registry.Source(t.Funcid); serr == nil {
		err = t.registry.Recompile(t.Funcid, text)
	} else {
		err = t.registry.Compile(t.Funcid, text)
	}
	if err != nil {
		return "", err
	}

	for _, id := range t.RedirectedFuncids {
		if err := t.registry.Copy(t.Funcid, id); err != nil {
			return "", fmt.Errorf("looptoken: copying onto redirected funcid %d: %w", id, err)
		}
	}
	return text, nil
}

// replayBlock replays one block's alternating fragment/faildescr items,
// synthesizing fresh guard-bridge dispatch code for every faildescr (spec.md
// §4.5: "each faildescr position re-emits fresh bridge-dispatch code that
// observes its current gtoken.label").
func (t *LoopToken) replayBlock(b *compiler.CompiledBlock) string {
	var out strings.Builder
	for _, item := range b.Items {
		switch v := item.(type) {
		case builder.Fragment:
			out.WriteString(v.Text())
		case *ir.GuardDescr:
			out.WriteString(t.guardBridgeDispatch(v))
		default:
			panic(fmt.Sprintf("looptoken: unexpected block item type %T", v))
		}
	}
	return out.String()
}

// guardBridgeDispatch emits the body that closes the open if-block left by
// the Block Compiler's genopGuardFailure (spec.md §4.4 "Guard-bridge
// dispatch"): unbridged spills at faillocs and exits to the host fail
// path; bridged spills at arglocs and jumps locally to the bridge's first
// label (every bridge this module adds lives in the same funcid, since
// AddCodeToLoop always appends to self).
func (t *LoopToken) guardBridgeDispatch(descr *ir.GuardDescr) string {
	layout := t.Slots.Layout()
	var out strings.Builder

	if descr.GToken.Label == 0 {
		for i, loc := range descr.FailLocs {
			if i >= len(descr.FailKinds) {
				break
			}
			addr := jsval.FrameSlotAddr(jsval.Frame, loc)
			fmt.Fprintf(&out, "    %s = fail%d;\n", jsval.HeapData(jsval.FromKind(descr.FailKinds[i]), addr).Render(), i)
		}
		fmt.Fprintf(&out, "    %s = %d;\n", layout.DescrAddr(jsval.Frame).Render(), t.Descrs.Intern(descr))
		fmt.Fprintf(&out, "    return frame;\n")
	} else {
		for i, loc := range descr.ArgLocs {
			if i >= len(descr.FailKinds) {
				break
			}
			addr := jsval.FrameSlotAddr(jsval.Frame, loc)
			fmt.Fprintf(&out, "    %s = fail%d;\n", jsval.HeapData(jsval.FromKind(descr.FailKinds[i]), addr).Render(), i)
		}
		fmt.Fprintf(&out, "    label = %d;\n", descr.GToken.Label)
		out.WriteString("    continue;\n")
	}
	out.WriteString("  }\n")
	return out.String()
}
