package host

import "context"

// Frame is the opaque frame pointer threaded through invocation. The core
// never dereferences it directly; package runtime and package frame know
// its layout.
type Frame int64

// Invoker is the re-entrant call used by guard bridge-dispatch (spec.md §6:
// "invoke(funcid, label, frame) -> frame'"). A real host embeds a JS engine
// and runs the compiled function directly; in this module an Invoker is
// supplied by the embedder (typically package runtime's trampoline) and
// the registry only tracks which source text is associated with which
// handle.
type Invoker interface {
	Invoke(ctx context.Context, id Funcid, label uint8, frame Frame) (Frame, error)
}

// InvokerFunc adapts a plain function to the Invoker interface.
type InvokerFunc func(ctx context.Context, id Funcid, label uint8, frame Frame) (Frame, error)

func (f InvokerFunc) Invoke(ctx context.Context, id Funcid, label uint8, frame Frame) (Frame, error) {
	return f(ctx, id, label, frame)
}
