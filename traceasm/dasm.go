package traceasm

import (
	"fmt"
	"strings"

	"github.com/mna/asmjit/ir"
)

// Dasm renders a Trace back to its textual form, assigning debug names to
// any box that doesn't already have one (b0, b1, ... in declaration order).
func Dasm(t *Trace) []byte {
	d := &dasm{boxName: make(map[*ir.Box]string, len(t.Boxes))}
	for i, b := range t.Boxes {
		d.boxName[b] = fmt.Sprintf("b%d", i)
		if b != nil {
			// prefer an existing debug name, falling back to the positional one
			if s := b.String(); s != "" && !strings.Contains(s, "@") {
				d.boxName[b] = s
			}
		}
	}

	var out strings.Builder
	out.WriteString("trace:\n")
	out.WriteString("\tboxes:\n")
	for _, b := range t.Boxes {
		fmt.Fprintf(&out, "\t\t%s %s\n", d.boxName[b], b.Kind)
	}
	out.WriteString("\tcode:\n")
	for _, op := range t.Ops {
		out.WriteString("\t\t")
		out.WriteString(d.insn(op))
		out.WriteString("\n")
	}
	return []byte(out.String())
}

type dasm struct {
	boxName map[*ir.Box]string
}

func (d *dasm) insn(op ir.Operation) string {
	var b strings.Builder
	if op.Result != nil {
		fmt.Fprintf(&b, "%s = ", d.boxName[op.Result])
	}
	b.WriteString(op.Opnum.String())
	if len(op.Args) > 0 {
		b.WriteString(" ")
		b.WriteString(d.argList(op.Args))
	}
	if len(op.FailArgs) > 0 {
		fmt.Fprintf(&b, " [fail: %s]", d.argList(op.FailArgs))
	}
	return b.String()
}

func (d *dasm) argList(args []ir.Arg) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = d.arg(a)
	}
	return strings.Join(parts, ", ")
}

func (d *dasm) arg(a ir.Arg) string {
	if a.IsConst {
		switch a.Const.Kind {
		case ir.FLOAT:
			return fmt.Sprintf("%v", a.Const.Flt)
		default:
			return fmt.Sprintf("%d", a.Const.Int)
		}
	}
	if a.Box == nil {
		return "_"
	}
	if name, ok := d.boxName[a.Box]; ok {
		return name
	}
	return a.Box.String()
}
