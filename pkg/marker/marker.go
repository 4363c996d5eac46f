package marker

import (
	"strings"
)

// Op is a marker comparison operator.
type Op string

// Supported comparison operators.
const (
	OpEqual        Op = "=="
	OpNotEqual     Op = "!="
	OpLess         Op = "<"
	OpLessEqual    Op = "<="
	OpGreater      Op = ">"
	OpGreaterEqual Op = ">="
	OpCompatible   Op = "~="
	OpArbitrary    Op = "==="
	OpIn           Op = "in"
	OpNotIn        Op = "not in"
)

// Expr is a node of a parsed marker expression: *Compare, *And or *Or.
type Expr interface {
	String() string
	eval(env Environment) bool
}

// Value is one side of a comparison: Literal or Variable.
type Value interface {
	String() string
	resolve(env Environment) string
}

// Literal is a quoted string in a marker.
type Literal struct {
	Value string
}

// Variable names an environment marker such as python_version.
type Variable struct {
	Name string
}

// Compare applies Op to its two sides.
type Compare struct {
	Op    Op
	Left  Value
	Right Value
}

// And is true when both sides are true.
type And struct {
	Left, Right Expr
}

// Or is true when either side is true.
type Or struct {
	Left, Right Expr
}

func (l Literal) String() string {
	if strings.Contains(l.Value, `"`) {
		return "'" + l.Value + "'"
	}
	return `"` + l.Value + `"`
}

func (l Literal) resolve(Environment) string { return l.Value }

func (v Variable) String() string { return v.Name }

func (v Variable) resolve(env Environment) string {
	if env == nil {
		return ""
	}
	return env.Get(v.Name)
}

func (c *Compare) String() string {
	return c.Left.String() + " " + string(c.Op) + " " + c.Right.String()
}

func (a *And) String() string {
	return group(a.Left) + " and " + group(a.Right)
}

func (o *Or) String() string {
	return o.Left.String() + " or " + o.Right.String()
}

// group parenthesizes an Or nested under an And.
func group(e Expr) string {
	if _, ok := e.(*Or); ok {
		return "(" + e.String() + ")"
	}
	return e.String()
}

// Environment resolves marker variable names to values.
// Unknown names must resolve to the empty string.
type Environment interface {
	Get(name string) string
}

// Env is a map-backed Environment.
type Env map[string]string

// Get returns the value for name, or "" when unset.
func (e Env) Get(name string) string { return e[name] }

// Extra returns the extra name tested by a top-level `extra == "name"`
// clause, looking through an and-chain. The name is canonicalized.
func Extra(e Expr) (string, bool) {
	switch n := e.(type) {
	case *And:
		if name, ok := Extra(n.Left); ok {
			return name, true
		}
		return Extra(n.Right)
	case *Compare:
		if n.Op != OpEqual {
			return "", false
		}
		if v, ok := n.Left.(Variable); ok && v.Name == "extra" {
			if l, ok := n.Right.(Literal); ok {
				return normalizeName(l.Value), true
			}
		}
		if v, ok := n.Right.(Variable); ok && v.Name == "extra" {
			if l, ok := n.Left.(Literal); ok {
				return normalizeName(l.Value), true
			}
		}
	}
	return "", false
}
