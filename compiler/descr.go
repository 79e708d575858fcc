package compiler

import "github.com/mna/asmjit/ir"

// DescrPool interns descriptors (fail descrs, target tokens) to small
// integer ids so they can be stored in a frame slot as a plain word. It is
// owned by the Loop Token and shared across all of its blocks, since a
// guard's descr must resolve to the same id across reassemblies.
type DescrPool struct {
	ids   map[ir.Descr]int64
	descs []ir.Descr
}

// NewDescrPool returns an empty pool.
func NewDescrPool() *DescrPool {
	return &DescrPool{ids: make(map[ir.Descr]int64)}
}

// Intern returns the stable id for d, assigning a fresh one on first use.
func (p *DescrPool) Intern(d ir.Descr) int64 {
	if id, ok := p.ids[d]; ok {
		return id
	}
	id := int64(len(p.descs))
	p.descs = append(p.descs, d)
	p.ids[d] = id
	return id
}

// Lookup returns the descriptor previously interned at id.
func (p *DescrPool) Lookup(id int64) (ir.Descr, bool) {
	if id < 0 || int(id) >= len(p.descs) {
		return nil, false
	}
	return p.descs[id], true
}
