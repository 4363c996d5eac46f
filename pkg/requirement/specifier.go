package requirement

import (
	"regexp"
	"sort"
	"strings"

	"deps.dev/util/semver"

	"github.com/matzehuels/wheelhouse/pkg/errors"
)

// Specifier is a single version clause such as ">=1.0".
type Specifier struct {
	Op      string
	Version string
}

func (s Specifier) String() string { return s.Op + s.Version }

// Specifiers is an AND-combination of version clauses.
// The zero value matches every final release.
type Specifiers struct {
	clauses    []Specifier
	constraint *semver.Constraint
	arbitrary  []string
	prerelease bool
}

var clauseRE = regexp.MustCompile(`^(~=|===|==|!=|<=|>=|<|>)\s*(\S+)$`)

// ParseSpecifiers parses a comma-separated specifier list like ">=1.0,<2".
// An empty string yields the match-all set.
func ParseSpecifiers(s string) (Specifiers, error) {
	var set Specifiers
	s = strings.TrimSpace(s)
	if s == "" {
		return set, nil
	}

	var constraint []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		m := clauseRE.FindStringSubmatch(part)
		if m == nil {
			return Specifiers{}, errors.New(errors.ErrCodeParse, "invalid version specifier %q", part)
		}
		op, ver := m[1], m[2]
		set.clauses = append(set.clauses, Specifier{Op: op, Version: ver})

		if op == "===" {
			set.arbitrary = append(set.arbitrary, ver)
			continue
		}
		base := ver
		if strings.HasSuffix(ver, ".*") {
			if op != "==" && op != "!=" {
				return Specifiers{}, errors.New(errors.ErrCodeParse, "wildcard not allowed with %s in %q", op, part)
			}
			base = strings.TrimSuffix(ver, ".*")
		}
		if _, err := semver.PyPI.Parse(base); err != nil {
			return Specifiers{}, errors.Wrap(errors.ErrCodeParse, err, "invalid version in specifier %q", part)
		}
		if IsPrerelease(base) {
			set.prerelease = true
		}
		constraint = append(constraint, op+ver)
	}

	if len(constraint) > 0 {
		c, err := semver.PyPI.ParseConstraint(strings.Join(constraint, ","))
		if err != nil {
			return Specifiers{}, errors.Wrap(errors.ErrCodeParse, err, "invalid version specifier %q", s)
		}
		set.constraint = c
	}
	return set, nil
}

// MustParseSpecifiers is like ParseSpecifiers but panics on error.
func MustParseSpecifiers(s string) Specifiers {
	set, err := ParseSpecifiers(s)
	if err != nil {
		panic(err)
	}
	return set
}

// Clauses returns the clauses in declaration order.
func (s Specifiers) Clauses() []Specifier { return s.clauses }

// Empty reports whether the set has no clauses.
func (s Specifiers) Empty() bool { return len(s.clauses) == 0 }

// String returns the clauses sorted and comma-joined, so equivalent sets
// written in different orders serialize identically.
func (s Specifiers) String() string {
	parts := make([]string, len(s.clauses))
	for i, c := range s.clauses {
		parts[i] = c.String()
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// Contains reports whether version v satisfies every clause. Pre-releases
// are only admitted when a clause names a pre-release.
func (s Specifiers) Contains(v *semver.Version) bool {
	if v == nil {
		return false
	}
	raw := v.String()
	if IsPrerelease(raw) && !s.prerelease {
		return false
	}
	for _, a := range s.arbitrary {
		if !strings.EqualFold(a, raw) {
			return false
		}
	}
	if s.constraint == nil {
		return true
	}
	return s.constraint.MatchVersionPrerelease(v)
}

// ContainsString parses raw and reports whether it satisfies the set.
// Unparseable versions never match.
func (s Specifiers) ContainsString(raw string) bool {
	v, err := semver.PyPI.Parse(raw)
	if err != nil {
		return false
	}
	return s.Contains(v)
}

var prereleaseRE = regexp.MustCompile(`(?i)^v?(\d+!)?\d+(\.\d+)*([-_.]?(a|b|c|rc|alpha|beta|pre|preview)[-_.]?\d*|.*[-_.]?dev[-_.]?\d*)`)

// IsPrerelease reports whether a PEP 440 version string is a pre-release or
// development release. The local segment is ignored.
func IsPrerelease(v string) bool {
	if i := strings.IndexByte(v, '+'); i >= 0 {
		v = v[:i]
	}
	return prereleaseRE.MatchString(strings.TrimSpace(v))
}

// ParseVersion parses a PEP 440 version.
func ParseVersion(s string) (*semver.Version, error) {
	v, err := semver.PyPI.Parse(s)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeParse, err, "invalid version %q", s)
	}
	return v, nil
}
