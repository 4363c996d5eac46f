// Package dist describes distribution files listed by a package index.
//
// A [File] is one entry of a project's file listing. [File.Enrich] parses its
// filename into a version and, for wheels, PEP 425 compatibility tags. [Score]
// ranks wheels by how specific their interpreter and platform tags are.
package dist

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"

	"deps.dev/util/semver"

	"github.com/matzehuels/wheelhouse/pkg/errors"
)

// File is a distribution file as listed by the index, plus the fields
// derived from its filename.
type File struct {
	Filename       string            `json:"filename"`
	URL            string            `json:"url"`
	Hashes         map[string]string `json:"hashes"`
	RequiresPython string            `json:"requires-python,omitempty"`
	Yanked         Yanked            `json:"yanked,omitempty"`

	// Set by Enrich.
	Version *semver.Version `json:"-"`
	IsWheel bool            `json:"-"`
	Tags    []Tag           `json:"-"`
}

// Yanked decodes the PEP 592 yanked field, which is either a boolean or a
// reason string. Any non-empty reason counts as yanked.
type Yanked bool

// UnmarshalJSON accepts true, false or a string.
func (y *Yanked) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*y = Yanked(b)
		return nil
	}
	var reason string
	if err := json.Unmarshal(data, &reason); err != nil {
		return errors.Wrap(errors.ErrCodeProtocol, err, "invalid yanked value %s", string(data))
	}
	*y = reason != ""
	return nil
}

// Enrich parses the filename and fills Version, IsWheel and Tags. Files
// whose version is not valid PEP 440 return a Parse error.
func (f *File) Enrich() error {
	var raw string
	if strings.HasSuffix(f.Filename, ".whl") {
		w, err := ParseWheelFilename(f.Filename)
		if err != nil {
			return err
		}
		raw, f.IsWheel, f.Tags = w.Version, true, w.Tags
	} else {
		s, err := ParseSdistFilename(f.Filename)
		if err != nil {
			return err
		}
		raw, f.IsWheel, f.Tags = s.Version, false, nil
	}
	v, err := semver.PyPI.Parse(raw)
	if err != nil {
		return errors.Wrap(errors.ErrCodeParse, err, "invalid version in %q", f.Filename)
	}
	f.Version = v
	return nil
}

// Digest returns the preferred advertised digest: sha256 when present,
// otherwise the first algorithm in lexical order accepted by supported.
func (f *File) Digest(supported func(alg string) bool) (alg, hex string, ok bool) {
	if h, found := f.Hashes["sha256"]; found {
		return "sha256", strings.ToLower(h), true
	}
	for _, a := range slices.Sorted(maps.Keys(f.Hashes)) {
		if supported == nil || supported(a) {
			return a, strings.ToLower(f.Hashes[a]), true
		}
	}
	return "", "", false
}
