// Package assembler implements the Assembler Facade of spec.md §4.6: the
// entry points a tracing frontend calls to turn a trace into a callable
// function, wiring in the well-known runtime addresses every compiled
// function needs. Every method here is a thin delegation to package
// looptoken, per spec.md: "All are thin delegations to the Loop Token."
package assembler

import (
	"fmt"
	"sync"

	"github.com/mna/asmjit/compiler"
	"github.com/mna/asmjit/frame"
	"github.com/mna/asmjit/host"
	"github.com/mna/asmjit/ir"
	"github.com/mna/asmjit/looptoken"
	"github.com/mna/asmjit/runtime"
)

// Facade holds the process-global state resolved once at setup (spec.md
// §4.6: "Holds process-global addresses resolved at setup_once") and the
// registry of live Loop Tokens keyed by funcid, modeled on the single-
// threaded-emitter-plus-mutex-protected-shared-state pattern used
// throughout this codebase.
type Facade struct {
	Registry *host.Registry
	Slots    frame.Slots
	Runtime  runtime.Addrs
	debug    bool

	mu     sync.Mutex
	tokens map[host.Funcid]*looptoken.LoopToken
}

// New returns a Facade bound to registry, with the frame-slot layout and
// well-known runtime addresses it should wire into every emitted function.
func New(registry *host.Registry, slots frame.Slots, rt runtime.Addrs) *Facade {
	return &Facade{
		Registry: registry,
		Slots:    slots,
		Runtime:  rt,
		tokens:   make(map[host.Funcid]*looptoken.LoopToken),
	}
}

// SetDebug records the debug flag (spec.md §4.6: set_debug). The flag is
// stored only; no assemble call reads it, and the output is the same either
// way.
func (f *Facade) SetDebug(on bool) { f.debug = on }

// AssembleLoop compiles blocks into a fresh Loop Token and installs it
// (spec.md §4.6: assemble_loop; §2: "control flow").
func (f *Facade) AssembleLoop(blocks []*compiler.CompiledBlock) (*looptoken.LoopToken, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tok := looptoken.New(f.Registry, f.Slots, f.Runtime)
	src, err := tok.Assemble(blocks)
	if err != nil {
		return nil, "", fmt.Errorf("assembler: assemble loop: %w", err)
	}
	f.tokens[tok.Funcid] = tok
	return tok, src, nil
}

// AssembleBridge compiles bridge ops for a failed guard and patches it to
// jump into the new code (spec.md §4.6: assemble_bridge; §4.5:
// add_code_to_loop).
func (f *Facade) AssembleBridge(owner *looptoken.LoopToken, faildescr *ir.GuardDescr, blocks []*compiler.CompiledBlock) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	src, err := owner.AddCodeToLoop(faildescr, blocks)
	if err != nil {
		return "", fmt.Errorf("assembler: assemble bridge: %w", err)
	}
	return src, nil
}

// RedirectCallAssembler makes every future invocation of oldTok's funcid
// execute newTok's code (spec.md §4.6: redirect_call_assembler; §4.5:
// redirect_loop).
func (f *Facade) RedirectCallAssembler(oldTok, newTok *looptoken.LoopToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := oldTok.RedirectLoop(newTok); err != nil {
		return fmt.Errorf("assembler: redirect: %w", err)
	}
	return nil
}

// FreeLoopAndBridges releases a Loop Token's funcid and removes it from
// the facade's bookkeeping (spec.md §4.6: free_loop_and_bridges).
func (f *Facade) FreeLoopAndBridges(tok *looptoken.LoopToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.tokens, tok.Funcid)
	if err := f.Registry.Free(tok.Funcid); err != nil {
		return fmt.Errorf("assembler: free: %w", err)
	}
	return nil
}

// InvalidateLoop increments tok's invalidation counter (spec.md §4.6:
// invalidate_loop).
func (f *Facade) InvalidateLoop(tok *looptoken.LoopToken) { tok.InvalidateLoop() }

// Lookup returns the live Loop Token for a funcid, if any.
func (f *Facade) Lookup(id host.Funcid) (*looptoken.LoopToken, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tok, ok := f.tokens[id]
	return tok, ok
}
