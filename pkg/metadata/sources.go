package metadata

import (
	"bufio"
	"bytes"
	stderrors "errors"
	"io"
	"net/textproto"
	"strings"

	"deps.dev/util/semver"
	"github.com/BurntSushi/toml"

	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/marker"
	"github.com/matzehuels/wheelhouse/pkg/requirement"
)

var (
	metadata11 = mustVersion("1.1")
	metadata12 = mustVersion("1.2")
	metadata21 = mustVersion("2.1")
)

func mustVersion(s string) *semver.Version {
	v, err := semver.PyPI.Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func problem(source string, err error) error {
	return errors.Wrap(errors.ErrCodeParse, err, "%s", source)
}

// ParseCoreMetadata reads an RFC 822 style METADATA or PKG-INFO file. The
// fields honored depend on Metadata-Version: 2.1 adds Provides-Extra, 1.2
// adds Requires-Python and Requires-Dist, 1.1 has only Requires.
func (r *Record) ParseCoreMetadata(source string, data []byte) {
	if r.coreMetadata == nil {
		r.coreMetadata = bytes.Clone(data)
	}

	tp := textproto.NewReader(bufio.NewReader(bytes.NewReader(data)))
	hdr, err := tp.ReadMIMEHeader()
	if stderrors.Is(err, io.EOF) {
		err = nil
	}
	if err != nil && hdr == nil {
		r.addProblem(problem(source, err))
		return
	}
	if err != nil {
		// Headers up to the malformed line are still usable.
		r.addProblem(problem(source, err))
	}

	rawMV := strings.TrimSpace(hdr.Get("Metadata-Version"))
	if rawMV == "" {
		return
	}
	mv, perr := semver.PyPI.Parse(rawMV)
	if perr != nil {
		r.addProblem(problem(source, errors.Wrap(errors.ErrCodeParse, perr, "invalid Metadata-Version %q", rawMV)))
		return
	}

	if name := hdr.Get("Name"); name != "" {
		r.Name = requirement.Canonicalize(name)
	}
	if version := strings.TrimSpace(hdr.Get("Version")); version != "" {
		r.Version = version
	}

	if mv.Compare(metadata21) >= 0 {
		for _, extra := range hdr.Values("Provides-Extra") {
			r.addExtraProvided(extra)
		}
	}
	switch {
	case mv.Compare(metadata12) >= 0:
		if rp := strings.TrimSpace(hdr.Get("Requires-Python")); rp != "" {
			r.RequiresPython = rp
		}
		for _, line := range hdr.Values("Requires-Dist") {
			req, err := requirement.Parse(line)
			if err != nil {
				r.addProblem(problem(source, err))
				continue
			}
			if extra, ok := marker.Extra(req.Marker); ok {
				r.group(extra).Add(req)
			} else {
				r.Core.Add(req)
			}
		}
	case mv.Compare(metadata11) == 0:
		r.addLines(r.Core, hdr.Values("Requires"), source)
	}
}

type pyproject struct {
	Project *struct {
		Name                 string              `toml:"name"`
		Version              string              `toml:"version"`
		RequiresPython       string              `toml:"requires-python"`
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	} `toml:"project"`
	BuildSystem *struct {
		Requires []string `toml:"requires"`
	} `toml:"build-system"`
}

// ParsePyproject reads the PEP 621 project table and the build-system
// requires list of a pyproject.toml.
func (r *Record) ParsePyproject(source string, data []byte) {
	var doc pyproject
	if _, err := toml.Decode(string(data), &doc); err != nil {
		r.addProblem(problem(source, err))
		return
	}

	if p := doc.Project; p != nil {
		if p.Name != "" {
			r.Name = requirement.Canonicalize(p.Name)
		}
		if p.Version != "" {
			r.Version = p.Version
		}
		if p.RequiresPython != "" {
			r.RequiresPython = p.RequiresPython
		}
		r.addLines(r.Core, p.Dependencies, source)
		for extra, lines := range p.OptionalDependencies {
			r.addLines(r.group(requirement.Canonicalize(extra)), lines, source)
		}
	}
	if b := doc.BuildSystem; b != nil {
		r.addLines(r.Build, b.Requires, source)
	}
}

// ParseRequiresTxt reads a setuptools requires.txt. Lines before the first
// section are core deps, or build deps when build is set. A section heading
// "[label]" opens an optional group; the label is an extra, ":marker" or
// "extra:marker". A malformed heading fails the whole member.
func (r *Record) ParseRequiresTxt(source string, data []byte, build bool) {
	type block struct {
		label string
		lines []string
	}
	var (
		blocks  []block
		current block
		started bool
	)

	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "["):
			if !strings.HasSuffix(line, "]") {
				r.addProblem(problem(source, errors.New(errors.ErrCodeParse, "invalid section heading %q", line)))
				return
			}
			if started || len(current.lines) > 0 {
				blocks = append(blocks, current)
			}
			current = block{label: normalizeLabel(line[1 : len(line)-1])}
			started = true
		case line != "" && !strings.HasPrefix(line, "#"):
			current.lines = append(current.lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		r.addProblem(problem(source, err))
		return
	}
	blocks = append(blocks, current)

	for _, b := range blocks {
		switch {
		case b.label != "":
			r.addLines(r.group(b.label), b.lines, source)
		case build:
			r.addLines(r.Build, b.lines, source)
		default:
			r.addLines(r.Core, b.lines, source)
		}
	}
}

// normalizeLabel canonicalizes the extra part of a section label and leaves
// the marker part verbatim.
func normalizeLabel(label string) string {
	name, cond, ok := strings.Cut(strings.TrimSpace(label), ":")
	name = requirement.Canonicalize(name)
	if !ok {
		return name
	}
	return name + ":" + strings.TrimSpace(cond)
}
