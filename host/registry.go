// Package host models the External Shims of spec.md §4's "External Shims"
// component and §6 "Host shims": the process-wide, opaque function-id table
// that owns compiled source text, and the invoke entry point used by
// guard-bridge dispatch. It is the core's only window onto the host
// embedding; everything else (the tracer, optimizer, runner) stays external.
package host

import (
	"fmt"
	"sync"

	"github.com/dolthub/swiss"
)

// Funcid is the opaque handle type spec.md §9 calls for: "model as an
// opaque handle type parameterizing the backend".
type Funcid uint32

// entry is the installed state for one reserved handle.
type entry struct {
	source   string
	copiedTo Funcid // nonzero if this id now just aliases another id's code
	freed    bool
}

// Registry is a mutex-protected function-id table (spec.md §9: "wrap it in
// a mutex-protected registry with reserve/compile/recompile/copy/free as
// its API"), modeled on the Map/Thread synchronization style used
// elsewhere in this codebase.
type Registry struct {
	mu      sync.Mutex
	entries *swiss.Map[Funcid, *entry]
	next    Funcid
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: swiss.NewMap[Funcid, *entry](64)}
}

// Reserve allocates an unused handle (spec.md §6: reserve() -> funcid).
func (r *Registry) Reserve() Funcid {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	id := r.next
	r.entries.Put(id, &entry{})
	return id
}

// Compile installs a fresh function at funcid (spec.md §6: compile(funcid,
// source)). It is an error to compile into a handle that was never
// reserved or that has been freed.
func (r *Registry) Compile(id Funcid, source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries.Get(id)
	if !ok || e.freed {
		return fmt.Errorf("host: compile: unknown funcid %d", id)
	}
	e.source = source
	e.copiedTo = 0
	return nil
}

// Recompile atomically replaces the function at funcid (spec.md §6:
// recompile(funcid, source)).
func (r *Registry) Recompile(id Funcid, source string) error {
	return r.Compile(id, source)
}

// Copy makes invoking dst execute the same code as src (spec.md §6:
// copy(srcFuncid, dstFuncid)), used by the Loop Token's redirect_loop.
func (r *Registry) Copy(src, dst Funcid) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries.Get(src); !ok {
		return fmt.Errorf("host: copy: unknown source funcid %d", src)
	}
	e, ok := r.entries.Get(dst)
	if !ok || e.freed {
		return fmt.Errorf("host: copy: unknown destination funcid %d", dst)
	}
	e.copiedTo = src
	return nil
}

// Free releases funcid (spec.md §6: free(funcid)).
func (r *Registry) Free(id Funcid) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries.Get(id)
	if !ok {
		return fmt.Errorf("host: free: unknown funcid %d", id)
	}
	e.freed = true
	e.source = ""
	return nil
}

// Source returns the currently installed source text for funcid, following
// any Copy redirection. A funcid that was reserved but never compiled is an
// error. Tests and package looptoken (to choose Compile or Recompile) use it.
func (r *Registry) Source(id Funcid) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[Funcid]bool)
	for {
		if seen[id] {
			return "", fmt.Errorf("host: source: copy cycle at funcid %d", id)
		}
		seen[id] = true

		e, ok := r.entries.Get(id)
		if !ok || e.freed {
			return "", fmt.Errorf("host: source: unknown funcid %d", id)
		}
		if e.copiedTo == 0 {
			if e.source == "" {
				return "", fmt.Errorf("host: source: no source installed for funcid %d", id)
			}
			return e.source, nil
		}
		id = e.copiedTo
	}
}
