package ir

import "strconv"

// Const is an immediate operand embedded directly in an Operation's args,
// as opposed to a Box produced by some earlier operation.
type Const struct {
	Kind Kind
	Int  int64   // valid when Kind == INT or REF (REF: a GC root kept alive by the const)
	Flt  float64 // valid when Kind == FLOAT
}

func ConstInt(v int64) Const    { return Const{Kind: INT, Int: v} }
func ConstFloat(v float64) Const { return Const{Kind: FLOAT, Flt: v} }
func ConstRef(v int64) Const    { return Const{Kind: REF, Int: v} }

func (c Const) String() string {
	switch c.Kind {
	case INT:
		return strconv.FormatInt(c.Int, 10)
	case REF:
		return "ref:" + strconv.FormatInt(c.Int, 10)
	case FLOAT:
		return strconv.FormatFloat(c.Flt, 'g', -1, 64)
	default:
		return "<bad-const>"
	}
}

// Arg is either a *Box or a Const. A nil Arg (both fields zero) denotes a
// HOLE, used in failargs lists for dead/unused fail values.
type Arg struct {
	Box   *Box
	Const Const
	IsConst bool
}

func BoxArg(b *Box) Arg    { return Arg{Box: b} }
func ConstArg(c Const) Arg { return Arg{Const: c, IsConst: true} }

// Kind reports the operand's kind, regardless of whether it is boxed or
// immediate.
func (a Arg) Kind() Kind {
	if a.IsConst {
		return a.Const.Kind
	}
	if a.Box == nil {
		return HOLE
	}
	return a.Box.Kind
}

func (a Arg) String() string {
	if a.IsConst {
		return a.Const.String()
	}
	return a.Box.String()
}
