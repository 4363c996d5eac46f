package dist

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/requirement"
)

// Tag is a PEP 425 compatibility tag.
type Tag struct {
	Interpreter string
	ABI         string
	Platform    string
}

func (t Tag) String() string { return t.Interpreter + "-" + t.ABI + "-" + t.Platform }

// WheelName holds everything encoded in a wheel filename.
type WheelName struct {
	Name    string // Canonical project name
	Version string
	Build   string
	Tags    []Tag
}

// ParseWheelFilename parses a PEP 427 filename such as
// "numpy-1.26.4-cp310-cp310-manylinux_2_17_x86_64.manylinux2014_x86_64.whl".
// Compressed tag sets are expanded.
func ParseWheelFilename(filename string) (WheelName, error) {
	if !strings.HasSuffix(filename, ".whl") {
		return WheelName{}, errors.New(errors.ErrCodeParse, "not a wheel filename: %q", filename)
	}
	parts := strings.Split(strings.TrimSuffix(filename, ".whl"), "-")
	if len(parts) != 5 && len(parts) != 6 {
		return WheelName{}, errors.New(errors.ErrCodeParse, "wheel name %q has %d elements, not 5 or 6", filename, len(parts))
	}

	w := WheelName{
		Name:    requirement.Canonicalize(parts[0]),
		Version: parts[1],
	}
	if len(parts) == 6 {
		build := parts[2]
		if build == "" || !unicode.IsDigit(rune(build[0])) {
			return WheelName{}, errors.New(errors.ErrCodeParse, "invalid wheel name %q: build tag %q does not start with digit", filename, build)
		}
		w.Build = build
	}
	if _, err := requirement.ParseVersion(w.Version); err != nil {
		return WheelName{}, err
	}

	w.Tags = expandTags(Tag{
		Interpreter: parts[len(parts)-3],
		ABI:         parts[len(parts)-2],
		Platform:    parts[len(parts)-1],
	})
	return w, nil
}

// expandTags expands compressed tag sets ("py2.py3-none-any") into every
// combination.
func expandTags(tag Tag) []Tag {
	var tags []Tag
	for _, py := range strings.Split(tag.Interpreter, ".") {
		for _, abi := range strings.Split(tag.ABI, ".") {
			for _, plat := range strings.Split(tag.Platform, ".") {
				tags = append(tags, Tag{Interpreter: py, ABI: abi, Platform: plat})
			}
		}
	}
	return tags
}

// SdistName holds the project name and version of a source distribution.
type SdistName struct {
	Name    string
	Version string
}

var sdistExtensions = []string{".tar.gz", ".zip"}

// ParseSdistFilename parses "name-version.tar.gz" or "name-version.zip".
// The last dash separates name and version. Legacy names with several
// dashes in the version ("selenium-2.0-dev-9429.tar.gz") are tried folded
// first.
func ParseSdistFilename(filename string) (SdistName, error) {
	stem := ""
	for _, ext := range sdistExtensions {
		if strings.HasSuffix(filename, ext) {
			stem = strings.TrimSuffix(filename, ext)
			break
		}
	}
	if stem == "" {
		return SdistName{}, errors.New(errors.ErrCodeParse, "not a source distribution filename: %q", filename)
	}

	if folded := foldDashes(stem); folded != stem {
		if s, err := splitSdist(folded); err == nil {
			return s, nil
		}
	}
	return splitSdist(stem)
}

func splitSdist(stem string) (SdistName, error) {
	i := strings.LastIndexByte(stem, '-')
	if i <= 0 {
		return SdistName{}, errors.New(errors.ErrCodeParse, "invalid sdist filename %q: no version", stem)
	}
	name, version := stem[:i], stem[i+1:]
	if _, err := requirement.ParseVersion(version); err != nil {
		return SdistName{}, err
	}
	return SdistName{Name: requirement.Canonicalize(name), Version: version}, nil
}

var legacyVersionRE = regexp.MustCompile(`-[0-9].*-`)

// foldDashes rewrites "name-2.0-dev-9429" as "name-2.0.dev9429".
func foldDashes(stem string) string {
	loc := legacyVersionRE.FindStringIndex(stem)
	if loc == nil {
		return stem
	}
	tail := stem[loc[0]+1:]
	tail = strings.ReplaceAll(tail, "-dev-", ".dev")
	tail = strings.ReplaceAll(tail, "-", ".")
	return stem[:loc[0]+1] + tail
}

// interpreterRE splits an interpreter tag into implementation and version.
var interpreterRE = regexp.MustCompile(`^([^\d]+)(?:(\d)(?:[._])?(\d+)?)$`)

// ParseInterpreter splits an interpreter tag: "cp38" is ("cp", "3.8"), "cp3"
// is ("cp", "3"). Unparseable tokens return the whole token as the name and
// ok=false.
func ParseInterpreter(tok string) (name, version string, ok bool) {
	m := interpreterRE.FindStringSubmatch(tok)
	if m == nil {
		return tok, "", false
	}
	version = m[2]
	if m[3] != "" {
		version = fmt.Sprintf("%s.%s", m[2], m[3])
	}
	return m[1], version, true
}

// splitVersion returns major and minor of a "M" or "M.m" version.
func splitVersion(v string) (major, minor int, ok bool) {
	majorStr, minorStr, _ := strings.Cut(v, ".")
	major, err := strconv.Atoi(majorStr)
	if err != nil {
		return 0, 0, false
	}
	if minorStr != "" {
		if minor, err = strconv.Atoi(minorStr); err != nil {
			return 0, 0, false
		}
	}
	return major, minor, true
}
