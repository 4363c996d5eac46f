// Package requirement parses PEP 508 dependency specifications.
//
// A [Requirement] is the unit the mirror resolves. Its identity is the string
// returned by [Requirement.String], which is canonical: two requirements that
// differ only in name spelling, extras order, specifier order or marker
// quoting serialize identically, while two requirements for the same package
// with different constraints stay distinct.
package requirement

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/marker"
)

// Requirement is a parsed dependency specification.
type Requirement struct {
	Name       string      // Canonical project name
	Extras     []string    // Canonical extra names, sorted
	Specifiers Specifiers  // Version constraints
	URL        string      // Direct reference for "name @ url" forms
	Marker     marker.Expr // Environment marker, nil when absent
}

var (
	nameRE       = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*[A-Za-z0-9]|[A-Za-z0-9])`)
	extraRE      = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*[A-Za-z0-9]|[A-Za-z0-9])$`)
	separatorRE  = regexp.MustCompile(`[-_.]+`)
	urlMarkerRE  = regexp.MustCompile(`\s+;`)
	whitespaceRE = regexp.MustCompile(`\s`)
)

// Canonicalize returns the PEP 503 normalized form of a project name:
// lower-cased, with runs of "-", "_" and "." folded into a single "-".
func Canonicalize(name string) string {
	return separatorRE.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// Parse parses a requirement such as `requests[socks]>=2.8.1; python_version >= "3.7"`.
func Parse(s string) (Requirement, error) {
	src := s
	s = strings.TrimSpace(s)
	fail := func(format string, args ...any) (Requirement, error) {
		return Requirement{}, errors.New(errors.ErrCodeParse, "invalid requirement %q: %s", src, fmt.Sprintf(format, args...))
	}

	m := nameRE.FindString(s)
	if m == "" {
		return fail("missing project name")
	}
	req := Requirement{Name: Canonicalize(m)}
	rest := strings.TrimLeft(s[len(m):], " \t")

	if strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return fail("unbalanced brackets in extras")
		}
		inner := rest[1:end]
		if strings.ContainsAny(inner, "[(") {
			return fail("malformed extras %q", inner)
		}
		seen := map[string]bool{}
		for _, e := range strings.Split(inner, ",") {
			e = strings.TrimSpace(e)
			if e == "" {
				if strings.TrimSpace(inner) == "" {
					break
				}
				return fail("empty extra name")
			}
			if !extraRE.MatchString(e) {
				return fail("malformed extra %q", e)
			}
			if c := Canonicalize(e); !seen[c] {
				seen[c] = true
				req.Extras = append(req.Extras, c)
			}
		}
		sort.Strings(req.Extras)
		rest = strings.TrimLeft(rest[end+1:], " \t")
	}

	var markerSrc string
	hasMarker := false
	switch {
	case strings.HasPrefix(rest, "@"):
		rest = strings.TrimSpace(rest[1:])
		if loc := urlMarkerRE.FindStringIndex(rest); loc != nil {
			markerSrc, hasMarker = rest[loc[1]:], true
			rest = rest[:loc[0]]
		}
		if rest == "" || whitespaceRE.MatchString(rest) {
			return fail("invalid URL %q", rest)
		}
		req.URL = rest
	default:
		spec := rest
		if i := strings.IndexByte(rest, ';'); i >= 0 {
			spec, markerSrc, hasMarker = rest[:i], rest[i+1:], true
		}
		spec = strings.TrimSpace(spec)
		if strings.HasPrefix(spec, "(") {
			if !strings.HasSuffix(spec, ")") {
				return fail("unbalanced parentheses in specifier")
			}
			spec = strings.TrimSpace(spec[1 : len(spec)-1])
		} else if strings.ContainsAny(spec, "()[]") {
			return fail("unbalanced brackets")
		}
		specs, err := ParseSpecifiers(spec)
		if err != nil {
			return Requirement{}, errors.Wrap(errors.ErrCodeParse, err, "invalid requirement %q", src)
		}
		req.Specifiers = specs
	}

	if hasMarker {
		markerSrc = strings.TrimSpace(markerSrc)
		if markerSrc == "" {
			return fail("empty marker")
		}
		expr, err := marker.Parse(markerSrc)
		if err != nil {
			return Requirement{}, errors.Wrap(errors.ErrCodeParse, err, "invalid requirement %q", src)
		}
		req.Marker = expr
	}
	return req, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Requirement {
	r, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return r
}

// String returns the canonical serialization used as the requirement's
// identity.
func (r Requirement) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	if len(r.Extras) > 0 {
		b.WriteString("[")
		b.WriteString(strings.Join(r.Extras, ","))
		b.WriteString("]")
	}
	if r.URL != "" {
		b.WriteString(" @ ")
		b.WriteString(r.URL)
		if r.Marker != nil {
			b.WriteString(" ")
		}
	} else {
		b.WriteString(r.Specifiers.String())
	}
	if r.Marker != nil {
		b.WriteString("; ")
		b.WriteString(r.Marker.String())
	}
	return b.String()
}
