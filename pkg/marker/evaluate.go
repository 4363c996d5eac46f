package marker

import (
	"regexp"
	"slices"
	"strings"

	"deps.dev/util/semver"
)

// Evaluate reports whether e holds in env. A nil expression is always true.
func Evaluate(e Expr, env Environment) bool {
	if e == nil {
		return true
	}
	return e.eval(env)
}

// EvaluateAny reports whether e holds in at least one of envs with the extra
// variable bound to extras. A nil expression is always true.
func EvaluateAny[E Environment](e Expr, envs []E, extras string) bool {
	if e == nil {
		return true
	}
	for _, env := range envs {
		if e.eval(boundExtra{env, extras}) {
			return true
		}
	}
	return false
}

type boundExtra struct {
	Environment
	extras string
}

func (b boundExtra) Get(name string) string {
	if name == "extra" {
		return b.extras
	}
	return b.Environment.Get(name)
}

func (a *And) eval(env Environment) bool { return a.Left.eval(env) && a.Right.eval(env) }

func (o *Or) eval(env Environment) bool { return o.Left.eval(env) || o.Right.eval(env) }

func (c *Compare) eval(env Environment) bool {
	if isExtra(c.Left) != isExtra(c.Right) {
		return c.evalExtra(env)
	}
	return compare(c.Op, c.Left.resolve(env), c.Right.resolve(env))
}

// evalExtra compares against the requested extras. The bound value is a
// comma-joined list; == holds when any member matches.
func (c *Compare) evalExtra(env Environment) bool {
	bound, other := c.Left.resolve(env), c.Right.resolve(env)
	if isExtra(c.Right) {
		bound, other = other, bound
	}
	want := normalizeName(other)
	var members []string
	for _, m := range strings.Split(bound, ",") {
		if m = strings.TrimSpace(m); m != "" {
			members = append(members, normalizeName(m))
		}
	}

	switch c.Op {
	case OpEqual:
		return slices.Contains(members, want)
	case OpNotEqual:
		return !slices.Contains(members, want)
	}
	if isExtra(c.Right) {
		return compare(c.Op, want, strings.Join(members, ","))
	}
	return compare(c.Op, strings.Join(members, ","), want)
}

func isExtra(v Value) bool {
	vv, ok := v.(Variable)
	return ok && vv.Name == "extra"
}

func compare(op Op, left, right string) bool {
	switch op {
	case OpIn:
		return strings.Contains(right, left)
	case OpNotIn:
		return !strings.Contains(right, left)
	case OpArbitrary:
		return left == right
	}

	if matched, ok := compareVersions(op, left, right); ok {
		return matched
	}

	switch op {
	case OpEqual:
		return left == right
	case OpNotEqual:
		return left != right
	case OpLess:
		return left < right
	case OpLessEqual:
		return left <= right
	case OpGreater:
		return left > right
	case OpGreaterEqual:
		return left >= right
	}
	return false
}

// compareVersions treats "left op right" as the specifier "op right"
// applied to version left. ok is false when either side is not PEP 440.
func compareVersions(op Op, left, right string) (matched, ok bool) {
	if left == "" || right == "" {
		return false, false
	}
	v, err := semver.PyPI.Parse(left)
	if err != nil {
		return false, false
	}
	c, err := semver.PyPI.ParseConstraint(string(op) + right)
	if err != nil {
		return false, false
	}
	return c.MatchVersionPrerelease(v), true
}

var nameSeparators = regexp.MustCompile(`[-_.]+`)

func normalizeName(s string) string {
	return nameSeparators.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-")
}
