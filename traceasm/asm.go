// Package traceasm implements a human-readable/writable textual form of a
// trace (a slice of ir.Operation plus its Box declarations), modelled on the
// Asm/Dasm pair of the nenuphar bytecode compiler: it lets tests and the CLI build traces without a real tracing frontend.
//
// The format looks like this:
//
//	trace:
//		boxes:
//			i0 int
//			i1 int
//		code:
//			label 0
//			i1 = int_add i0, 1
//			guard_true i1 [fail: i0]
//			jump 0, i1
package traceasm

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mna/asmjit/ir"
)

var sections = map[string]bool{
	"trace:": true,
	"boxes:": true,
	"code:":  true,
}

// Trace is the parsed result: the declared boxes in declaration order and
// the operation sequence that references them.
type Trace struct {
	Boxes []*ir.Box
	Ops   []ir.Operation
}

// Asm parses a trace from its textual form.
func Asm(b []byte) (*Trace, error) {
	a := &asm{s: bufio.NewScanner(bytes.NewReader(b)), boxes: make(map[string]*ir.Box)}

	fields := a.next()
	if len(fields) == 0 || !strings.EqualFold(fields[0], "trace:") {
		return nil, errors.New("traceasm: expected trace section")
	}

	fields = a.next()
	fields = a.parseBoxes(fields)
	fields = a.parseCode(fields)

	if a.err == nil && len(fields) > 0 {
		a.err = fmt.Errorf("traceasm: unexpected trailing section: %s", fields[0])
	}
	if a.err != nil {
		return nil, a.err
	}
	return &Trace{Boxes: a.order, Ops: a.ops}, nil
}

type asm struct {
	s       *bufio.Scanner
	rawLine string
	err     error

	boxes map[string]*ir.Box
	order []*ir.Box
	ops   []ir.Operation
}

func (a *asm) next() []string {
	a.rawLine = ""
	if a.err != nil {
		return nil
	}
	for a.s.Scan() {
		line := a.s.Text()
		fields := strings.Fields(line)
		if len(fields) != 0 && !strings.HasPrefix(fields[0], "#") {
			a.rawLine = line
			return fields
		}
	}
	a.err = a.s.Err()
	return nil
}

func (a *asm) parseBoxes(fields []string) []string {
	if a.err != nil || len(fields) == 0 || !strings.EqualFold(fields[0], "boxes:") {
		return fields
	}
	for fields = a.next(); len(fields) > 0 && !sections[fields[0]]; fields = a.next() {
		if len(fields) != 2 {
			a.err = fmt.Errorf("traceasm: invalid box declaration: %s", a.rawLine)
			return fields
		}
		k, ok := parseKind(fields[1])
		if !ok {
			a.err = fmt.Errorf("traceasm: invalid box kind: %s", fields[1])
			return fields
		}
		b := ir.NewBox(k)
		b.SetDebugName(fields[0])
		a.boxes[fields[0]] = b
		a.order = append(a.order, b)
	}
	return fields
}

func parseKind(s string) (ir.Kind, bool) {
	switch s {
	case "int":
		return ir.INT, true
	case "ref":
		return ir.REF, true
	case "float":
		return ir.FLOAT, true
	case "hole":
		return ir.HOLE, true
	default:
		return 0, false
	}
}

func (a *asm) parseCode(fields []string) []string {
	if a.err != nil || len(fields) == 0 || !strings.EqualFold(fields[0], "code:") {
		return fields
	}
	for fields = a.next(); len(fields) > 0 && !sections[fields[0]]; fields = a.next() {
		op, err := a.parseInsn(a.rawLine)
		if err != nil {
			a.err = err
			return fields
		}
		a.ops = append(a.ops, op)
	}
	return fields
}

// parseInsn parses one instruction line. The grammar is deliberately
// small: `[result =] opname [arg, arg, ...] [[fail: arg, arg, ...]]`.
func (a *asm) parseInsn(line string) (ir.Operation, error) {
	line = stripComment(line)
	failArgs, line := splitFailArgs(line)

	var result string
	if idx := strings.Index(line, "="); idx >= 0 {
		result = strings.TrimSpace(line[:idx])
		line = line[idx+1:]
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ir.Operation{}, errors.New("traceasm: empty instruction")
	}
	name := fields[0]
	op, ok := ir.LookupOpnum(name)
	if !ok {
		return ir.Operation{}, fmt.Errorf("traceasm: unknown opcode: %s", name)
	}

	rest := strings.Join(fields[1:], " ")
	args, err := a.parseArgs(rest)
	if err != nil {
		return ir.Operation{}, err
	}

	var fails []ir.Arg
	if failArgs != "" {
		fails, err = a.parseArgs(failArgs)
		if err != nil {
			return ir.Operation{}, err
		}
	}

	var resBox *ir.Box
	if result != "" {
		resBox = a.boxFor(result, guessKind(op))
	}

	o := ir.Operation{Opnum: op, Args: args, Result: resBox}
	if op.IsGuard() || ir.NeedsGuard(op) {
		o.FailArgs = fails
	}
	return o, nil
}

func guessKind(op ir.Opnum) ir.Kind {
	switch {
	case strings.HasPrefix(op.String(), "float"):
		return ir.FLOAT
	case strings.HasPrefix(op.String(), "cast_int_to_float"):
		return ir.FLOAT
	case op.IsGuard():
		return ir.HOLE
	default:
		return ir.INT
	}
}

func (a *asm) boxFor(name string, k ir.Kind) *ir.Box {
	if b, ok := a.boxes[name]; ok {
		return b
	}
	b := ir.NewBox(k)
	b.SetDebugName(name)
	a.boxes[name] = b
	a.order = append(a.order, b)
	return b
}

func (a *asm) parseArgs(s string) ([]ir.Arg, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	args := make([]ir.Arg, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || p == "_" {
			args = append(args, ir.Arg{})
			continue
		}
		if f, err := strconv.ParseFloat(p, 64); err == nil && strings.ContainsAny(p, ".eE") {
			args = append(args, ir.ConstArg(ir.ConstFloat(f)))
			continue
		}
		if i, err := strconv.ParseInt(p, 10, 64); err == nil {
			args = append(args, ir.ConstArg(ir.ConstInt(i)))
			continue
		}
		args = append(args, ir.BoxArg(a.boxFor(p, ir.INT)))
	}
	return args, nil
}

func stripComment(line string) string {
	if idx := strings.Index(line, "#"); idx >= 0 {
		return line[:idx]
	}
	return line
}

// splitFailArgs extracts a trailing `[fail: a, b]` clause, if present.
func splitFailArgs(line string) (fails string, rest string) {
	start := strings.Index(line, "[fail:")
	if start < 0 {
		return "", line
	}
	end := strings.Index(line[start:], "]")
	if end < 0 {
		return "", line
	}
	end += start
	fails = line[start+len("[fail:") : end]
	rest = line[:start] + line[end+1:]
	return fails, rest
}
