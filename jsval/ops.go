package jsval

import "fmt"

type binop struct {
	op       string
	lhs, rhs Value
}

func (b binop) Render() string {
	return fmt.Sprintf("(%s%s%s)", b.lhs.Render(), b.op, b.rhs.Render())
}

func mkBinop(op string) func(lhs, rhs Value) Value {
	return func(lhs, rhs Value) Value { return binop{op, lhs, rhs} }
}

// Arithmetic combinators, named per spec.md §4.2.
var (
	Plus    = mkBinop("+")
	Minus   = mkBinop("-")
	IMul    = mkBinop("*") // caller must wrap the assigned-to variable with |0 to get 32-bit imul semantics
	Mul     = mkBinop("*") // double multiply, no wrapping
	Div     = mkBinop("/")
	Mod     = mkBinop("%")
	And     = mkBinop("&")
	Or      = mkBinop("|")
	Xor     = mkBinop("^")
	LShift  = mkBinop("<<")
	RShift  = mkBinop(">>")
	URShift = mkBinop(">>>")

	LessThan      = mkBinop("<")
	LessThanEq    = mkBinop("<=")
	GreaterThan   = mkBinop(">")
	GreaterThanEq = mkBinop(">=")
	Equal         = mkBinop("==")
	NotEqual      = mkBinop("!=")
)

type unop struct {
	prefix bool
	op     string
	x      Value
}

func (u unop) Render() string {
	if u.prefix {
		return fmt.Sprintf("(%s%s)", u.op, u.x.Render())
	}
	return fmt.Sprintf("(%s%s)", u.x.Render(), u.op)
}

// Unary operators, named per spec.md §4.2.
func UNot(x Value) Value   { return unop{true, "!", x} }
func UMinus(x Value) Value { return unop{true, "-", x} }
func UNeg(x Value) Value   { return unop{true, "~", x} }

type cast struct {
	kind string
	x    Value
}

func (c cast) Render() string {
	switch c.kind {
	case "signed":
		return fmt.Sprintf("(%s|0)", c.x.Render())
	case "unsigned":
		return fmt.Sprintf("(%s>>>0)", c.x.Render())
	case "double":
		return fmt.Sprintf("(+(%s))", c.x.Render())
	case "int":
		return fmt.Sprintf("(~~(%s))", c.x.Render())
	case "uchar":
		return fmt.Sprintf("((%s)&0xff)", c.x.Render())
	case "classid":
		return fmt.Sprintf("((%s)>>>16)", c.x.Render())
	default:
		panic("jsval: invalid cast kind " + c.kind)
	}
}

// SignedCast coerces a value to a signed 32-bit integer via the |0 idiom.
func SignedCast(x Value) Value { return cast{"signed", x} }

// UnsignedCast coerces a value to an unsigned 32-bit integer via >>>0.
func UnsignedCast(x Value) Value { return cast{"unsigned", x} }

// DoubleCast coerces a value to a double via unary +.
func DoubleCast(x Value) Value { return cast{"double", x} }

// IntCast truncates a double to a 32-bit integer via ~~.
func IntCast(x Value) Value { return cast{"int", x} }

// UnsignedCharCast masks a value to its low byte.
func UnsignedCharCast(x Value) Value { return cast{"uchar", x} }

// ClassPtrTypeID extracts the type-id field packed into the high bits of a
// class pointer's header word.
func ClassPtrTypeID(x Value) Value { return cast{"classid", x} }

// --- calls ---

type callFunc struct {
	name string
	args []Value
}

// CallFunc emits a named-function call, used for host helpers addressed by
// symbolic name (e.g. "jitInvoke").
func CallFunc(name string, args []Value) Value { return callFunc{name, args} }

func (c callFunc) Render() string {
	parts := make([]string, len(c.args))
	for i, a := range c.args {
		parts[i] = a.Render()
	}
	return fmt.Sprintf("%s(%s)", c.name, joinComma(parts))
}

type dynCallFunc struct {
	sig  string
	addr Value
	args []Value
}

// DynCallFunc emits a call through the target's dynamic-call dispatch table
// (spec.md §4.4, §6): sig is the dyn-call signature string computed from a
// CallDescr via ir.CallDescr.DynCallSig.
func DynCallFunc(sig string, addr Value, args []Value) Value {
	return dynCallFunc{sig, addr, args}
}

func (c dynCallFunc) Render() string {
	parts := make([]string, len(c.args)+1)
	parts[0] = c.addr.Render()
	for i, a := range c.args {
		parts[i+1] = a.Render()
	}
	return fmt.Sprintf("dynCall_%s(%s)", c.sig, joinComma(parts))
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}
