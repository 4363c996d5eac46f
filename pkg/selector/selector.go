// Package selector narrows a project's file listing to the files a
// requirement needs across a set of target environments.
//
// Selection is a pure function of the listing, the requirement, the
// environments and [Options]. Running it again over its own output returns
// the output unchanged.
package selector

import (
	"cmp"
	"regexp"
	"slices"
	"strings"

	"github.com/matzehuels/wheelhouse/pkg/dist"
	"github.com/matzehuels/wheelhouse/pkg/env"
	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/requirement"
)

// DefaultExtensions matches the archive types the mirror understands.
var DefaultExtensions = regexp.MustCompile(`\.(whl|zip|tar\.gz)$`)

// NoMatch reasons.
const (
	ReasonNoVersion     = "no version matches"
	ReasonNoEnvironment = "no file matches environments"
)

// Options tune selection.
type Options struct {
	// AllVersions keeps every version satisfying the specifier instead of
	// only the newest.
	AllVersions bool

	// BestWheelPerEnvironment keeps, for each version and environment, only
	// the highest scoring wheel. Source distributions are always kept.
	BestWheelPerEnvironment bool

	// Extensions filters filenames. Nil selects DefaultExtensions.
	Extensions *regexp.Regexp
}

// ExtensionsFor builds a filename filter from package types such as
// "whl", "zip", "tar.gz".
func ExtensionsFor(types []string) (*regexp.Regexp, error) {
	if len(types) == 0 {
		return DefaultExtensions, nil
	}
	quoted := make([]string, 0, len(types))
	for _, t := range types {
		t = strings.TrimPrefix(strings.TrimSpace(t), ".")
		switch t {
		case "whl", "zip", "tar.gz":
			quoted = append(quoted, regexp.QuoteMeta(t))
		default:
			return nil, errors.New(errors.ErrCodeInvalidConfig, "unsupported package type %q (want whl, zip or tar.gz)", t)
		}
	}
	return regexp.MustCompile(`\.(` + strings.Join(quoted, "|") + `)$`), nil
}

// Select returns the files of listing that must be mirrored for req, newest
// version first and in filename order within a version. The returned files
// are enriched. When nothing survives the
// version or environment filters, a NO_MATCH error names the reason.
func Select(req requirement.Requirement, listing []dist.File, envs *env.Set, opts Options) ([]dist.File, error) {
	exts := opts.Extensions
	if exts == nil {
		exts = DefaultExtensions
	}

	var files []dist.File
	for _, f := range listing {
		if !exts.MatchString(f.Filename) || bool(f.Yanked) {
			continue
		}
		if err := f.Enrich(); err != nil {
			continue
		}
		files = append(files, f)
	}

	slices.SortStableFunc(files, func(a, b dist.File) int {
		if c := b.Version.Compare(a.Version); c != 0 {
			return c
		}
		return cmp.Compare(a.Filename, b.Filename)
	})

	files = slices.DeleteFunc(files, func(f dist.File) bool {
		return !req.Specifiers.Contains(f.Version)
	})
	if len(files) == 0 {
		return nil, errors.New(errors.ErrCodeNoMatch, "%s: %s", req, ReasonNoVersion)
	}

	files = slices.DeleteFunc(files, func(f dist.File) bool {
		return !envs.MatchesAny(func(e env.Environment) bool { return Matches(&f, e) })
	})
	if len(files) == 0 {
		return nil, errors.New(errors.ErrCodeNoMatch, "%s: %s", req, ReasonNoEnvironment)
	}

	if !opts.AllVersions {
		newest := files[0].Version
		files = slices.DeleteFunc(files, func(f dist.File) bool {
			return f.Version.Compare(newest) != 0
		})
	}

	if opts.BestWheelPerEnvironment {
		files = bestPerEnvironment(files, envs)
	}
	return files, nil
}

// Matches reports whether f is installable in e: its requires-python, if
// any, admits the environment's python version, and, for wheels, at least
// one tag is compatible with the environment. Select keeps a file when any
// target environment matches, so requires-python need not admit them all.
func Matches(f *dist.File, e env.Environment) bool {
	if f.RequiresPython != "" {
		spec, err := requirement.ParseSpecifiers(f.RequiresPython)
		if err != nil || !spec.ContainsString(e.PythonVersion()) {
			return false
		}
	}
	if !f.IsWheel {
		return true
	}
	return slices.ContainsFunc(f.Tags, func(t dist.Tag) bool { return TagMatches(t, e) })
}

// TagMatches reports whether a wheel tag is compatible with e. The
// interpreter must be py or cp with no version, major version 3, or the
// environment's exact python version. abi3 tags also accept any newer
// python. The platform must be any or match the environment.
func TagMatches(t dist.Tag, e env.Environment) bool {
	name, version, _ := dist.ParseInterpreter(t.Interpreter)
	if name != "py" && name != "cp" {
		return false
	}
	if !interpreterMatches(version, t.ABI, e.PythonVersion()) {
		return false
	}
	return e.MatchesPlatform(t.Platform)
}

func interpreterMatches(version, abi, python string) bool {
	if version == "" || version == "3" || version == python {
		return true
	}
	if abi != "abi3" {
		return false
	}
	tag, err := requirement.ParseVersion(version)
	if err != nil {
		return false
	}
	env, err := requirement.ParseVersion(python)
	if err != nil {
		return false
	}
	return tag.Compare(env) <= 0
}

// bestPerEnvironment keeps, per version, sdists plus the best scoring wheel
// for each environment. Ties go to the lower filename.
func bestPerEnvironment(files []dist.File, envs *env.Set) []dist.File {
	keep := make(map[string]bool)
	byVersion := make(map[string][]int)
	var versions []string
	for i, f := range files {
		if !f.IsWheel {
			keep[f.Filename] = true
			continue
		}
		v := f.Version.String()
		if _, ok := byVersion[v]; !ok {
			versions = append(versions, v)
		}
		byVersion[v] = append(byVersion[v], i)
	}

	for _, v := range versions {
		for _, e := range envs.All() {
			best := -1
			for _, i := range byVersion[v] {
				if !Matches(&files[i], e) {
					continue
				}
				if best < 0 || better(&files[i], &files[best]) {
					best = i
				}
			}
			if best >= 0 {
				keep[files[best].Filename] = true
			}
		}
	}

	return slices.DeleteFunc(files, func(f dist.File) bool { return !keep[f.Filename] })
}

func better(a, b *dist.File) bool {
	ra, rb := dist.Score(a), dist.Score(b)
	if ra != rb {
		return rb.Less(ra)
	}
	return a.Filename < b.Filename
}
