// Package metadata extracts declared dependencies from distribution archives.
//
// [Extract] opens a wheel, zip sdist or tar.gz sdist and parses whichever
// metadata sources it carries: core metadata (METADATA, PKG-INFO), the
// pyproject.toml project and build-system tables, and setuptools
// requires.txt files. Each source adds to one [Record]; a malformed source
// is reported and skipped without discarding the others.
package metadata

import (
	stderrors "errors"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/matzehuels/wheelhouse/pkg/env"
	"github.com/matzehuels/wheelhouse/pkg/marker"
	"github.com/matzehuels/wheelhouse/pkg/requirement"
)

// Record accumulates metadata from every source found in one archive.
type Record struct {
	Name           string // canonical
	Version        string
	RequiresPython string
	ExtrasProvided []string

	Core     *requirement.Set
	Build    *requirement.Set
	Optional map[string]*requirement.Set // group label -> deps

	coreMetadata []byte
	problems     []error
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{
		Core:     requirement.NewSet(),
		Build:    requirement.NewSet(),
		Optional: make(map[string]*requirement.Set),
	}
}

// Seen reports whether a core metadata file was parsed.
func (r *Record) Seen() bool { return r.coreMetadata != nil }

// CoreMetadata returns the raw bytes of the core metadata file, or nil.
func (r *Record) CoreMetadata() []byte { return r.coreMetadata }

// WriteMetadata writes the raw core metadata to path.
func (r *Record) WriteMetadata(path string) error {
	return os.WriteFile(path, r.coreMetadata, 0o644)
}

// Err joins the errors of every member that failed to parse. Nil when all
// sources parsed cleanly.
func (r *Record) Err() error { return stderrors.Join(r.problems...) }

func (r *Record) addProblem(err error) {
	if err != nil {
		r.problems = append(r.problems, err)
	}
}

func (r *Record) addExtraProvided(extra string) {
	extra = requirement.Canonicalize(extra)
	if extra != "" && !slices.Contains(r.ExtrasProvided, extra) {
		r.ExtrasProvided = append(r.ExtrasProvided, extra)
		slices.Sort(r.ExtrasProvided)
	}
}

func (r *Record) group(label string) *requirement.Set {
	s, ok := r.Optional[label]
	if !ok {
		s = requirement.NewSet()
		r.Optional[label] = s
	}
	return s
}

// addLines parses each line into dst, collecting failures and keeping the
// lines that parse.
func (r *Record) addLines(dst *requirement.Set, lines []string, source string) {
	for _, line := range lines {
		req, err := requirement.Parse(line)
		if err != nil {
			r.addProblem(problem(source, err))
			continue
		}
		dst.Add(req)
	}
}

// Dependencies returns the requirements relevant to the requested extras
// and environments: core and build deps, the groups of requested extras,
// and marker groups true in some environment. Any dependency that carries
// its own marker is kept only if that marker holds in some environment with
// extra bound to the requested extras.
func (r *Record) Dependencies(extras []string, envs *env.Set) *requirement.Set {
	requested := make(map[string]bool, len(extras))
	for _, e := range extras {
		requested[requirement.Canonicalize(e)] = true
	}

	all := requirement.NewSet()
	all.Merge(r.Core)
	all.Merge(r.Build)
	for _, label := range slices.Sorted(maps.Keys(r.Optional)) {
		if groupApplies(label, requested, extras, envs) {
			all.Merge(r.Optional[label])
		}
	}

	deps := requirement.NewSet()
	for _, dep := range all.Items() {
		if envs.MatchesMarker(dep.Marker, extras) {
			deps.Add(dep)
		}
	}
	return deps
}

// groupApplies interprets a group label: "extra", ":marker" or
// "extra:marker". Labels whose marker does not parse never apply.
func groupApplies(label string, requested map[string]bool, extras []string, envs *env.Set) bool {
	name, cond, hasMarker := strings.Cut(label, ":")
	if name != "" && !requested[requirement.Canonicalize(name)] {
		return false
	}
	if !hasMarker {
		return name != ""
	}
	m, err := marker.Parse(cond)
	if err != nil {
		return false
	}
	return envs.MatchesMarker(m, extras)
}
