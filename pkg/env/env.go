// Package env models the target runtime environments a mirror must serve.
//
// An [Environment] is an immutable mapping of PEP 508 marker variables to
// values. A [Set] is the ordered collection of named environments loaded from
// configuration. Every "does this apply to some target" question in the
// mirror goes through [Set.MatchesAny], so marker, requires-python and wheel
// tag checks share one existential rule.
package env

import (
	"maps"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/marker"
)

// Marker variables with a dedicated meaning in selection.
const (
	PythonVersion   = "python_version"
	SysPlatform     = "sys_platform"
	PlatformMachine = "platform_machine"
	PlatformTag     = "platform_tag"
	Extra           = "extra"
)

// defaults are filled in for keys that configuration files rarely provide.
var defaults = []string{"platform_release", "platform_version", "implementation_version", Extra}

// Environment is an immutable set of marker variables.
type Environment struct {
	name     string
	values   map[string]string
	platform *regexp.Regexp
}

// New builds an environment from values. python_version, sys_platform and
// platform_machine are required.
func New(name string, values map[string]string) (Environment, error) {
	for _, key := range []string{PythonVersion, SysPlatform, PlatformMachine} {
		if strings.TrimSpace(values[key]) == "" {
			return Environment{}, errors.New(errors.ErrCodeInvalidConfig, "environment %q: missing %s", name, key)
		}
	}
	v := maps.Clone(values)
	for _, key := range defaults {
		if _, ok := v[key]; !ok {
			v[key] = ""
		}
	}
	pattern := "(?i)^.*" + regexp.QuoteMeta(v[SysPlatform]) + ".*" + regexp.QuoteMeta(v[PlatformMachine]) + "$"
	return Environment{
		name:     name,
		values:   v,
		platform: regexp.MustCompile(pattern),
	}, nil
}

// MustNew is like New but panics on error.
func MustNew(name string, values map[string]string) Environment {
	e, err := New(name, values)
	if err != nil {
		panic(err)
	}
	return e
}

// Name returns the configured environment name.
func (e Environment) Name() string { return e.name }

// Get returns the value of a marker variable, or "" when unset.
func (e Environment) Get(key string) string { return e.values[key] }

// PythonVersion returns the "major.minor" interpreter version.
func (e Environment) PythonVersion() string { return e.values[PythonVersion] }

// With returns a copy of e with key set to value.
func (e Environment) With(key, value string) Environment {
	v := maps.Clone(e.values)
	v[key] = value
	e.values = v
	return e
}

// Values returns a copy of the variables.
func (e Environment) Values() map[string]string { return maps.Clone(e.values) }

// MatchesPlatform reports whether a wheel platform tag targets e. The tag
// matches when it is "any", when it fullmatches the pattern
// .*<sys_platform>.*<platform_machine> (case-insensitive), or when it equals
// the normalized platform_tag of e.
func (e Environment) MatchesPlatform(tag string) bool {
	if tag == "any" {
		return true
	}
	if e.platform != nil && e.platform.MatchString(tag) {
		return true
	}
	if pt := e.values[PlatformTag]; pt != "" {
		return NormalizePlatformTag(pt) == strings.ToLower(tag)
	}
	return false
}

var platformSeparators = strings.NewReplacer("-", "_", ".", "_")

// NormalizePlatformTag converts sysconfig.get_platform() output such as
// "macosx-11.0-arm64" into wheel tag form "macosx_11_0_arm64".
func NormalizePlatformTag(s string) string {
	return platformSeparators.Replace(strings.ToLower(strings.TrimSpace(s)))
}

// Set is an ordered collection of named environments.
type Set struct {
	envs []Environment
}

// NewSet returns a set of environments in the given order. Names must be unique.
func NewSet(envs ...Environment) (*Set, error) {
	seen := make(map[string]bool, len(envs))
	for _, e := range envs {
		if seen[e.name] {
			return nil, errors.New(errors.ErrCodeInvalidConfig, "duplicate environment %q", e.name)
		}
		seen[e.name] = true
	}
	return &Set{envs: slices.Clone(envs)}, nil
}

// MustNewSet is like NewSet but panics on error.
func MustNewSet(envs ...Environment) *Set {
	s, err := NewSet(envs...)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of environments.
func (s *Set) Len() int { return len(s.envs) }

// All returns the environments in order.
func (s *Set) All() []Environment { return slices.Clone(s.envs) }

// Names returns the environment names in order.
func (s *Set) Names() []string {
	names := make([]string, len(s.envs))
	for i, e := range s.envs {
		names[i] = e.name
	}
	return names
}

// PythonVersions returns the distinct python_version values, sorted.
func (s *Set) PythonVersions() []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range s.envs {
		if v := e.PythonVersion(); !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// MatchesAny reports whether pred holds for at least one environment.
func (s *Set) MatchesAny(pred func(Environment) bool) bool {
	return slices.ContainsFunc(s.envs, pred)
}

// Matching returns the environments for which pred holds, in order.
func (s *Set) Matching(pred func(Environment) bool) []Environment {
	var out []Environment
	for _, e := range s.envs {
		if pred(e) {
			out = append(out, e)
		}
	}
	return out
}

// MatchesMarker reports whether m holds for some environment with extra
// bound to the comma-joined extras. A nil marker always matches.
func (s *Set) MatchesMarker(m marker.Expr, extras []string) bool {
	if m == nil {
		return true
	}
	return marker.EvaluateAny(m, s.envs, JoinExtras(extras))
}

// JoinExtras returns the sorted, comma-joined extras used as the value of the
// extra marker variable.
func JoinExtras(extras []string) string {
	sorted := slices.Clone(extras)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
