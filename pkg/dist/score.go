package dist

import (
	"regexp"
	"strconv"
	"strings"
)

// SdistScore ranks source distributions above every wheel.
const SdistScore int64 = 10000000000

// Rank is a (python, platform) score pair, compared lexicographically.
type Rank struct {
	Python   int64
	Platform int64
}

// Less reports whether r ranks below o.
func (r Rank) Less(o Rank) bool {
	if r.Python != o.Python {
		return r.Python < o.Python
	}
	return r.Platform < o.Platform
}

var (
	modernLinuxRE  = regexp.MustCompile(`^(?:many|musl)linux_(\d+)_(\d+)_`)
	genericPlatRE  = regexp.MustCompile(`[a-z]+_(\d+)_(\d+)`)
	legacyLinuxTag = []struct {
		prefix string
		score  int64
	}{
		{"manylinux2014_", 90},
		{"manylinux2010_", 80},
		{"manylinux1_", 70},
	}
)

// Score ranks an enriched file. Source distributions get the
// (SdistScore, SdistScore) sentinel and wheels without tags get (0, 0).
// Otherwise the best pair over tags whose interpreter is py or cp with a
// parseable version wins; the platform score travels with the tag that
// produced the winning python score.
func Score(f *File) Rank {
	if !f.IsWheel {
		return Rank{Python: SdistScore, Platform: SdistScore}
	}
	var best Rank
	for _, tag := range f.Tags {
		r, ok := scoreTag(tag)
		if ok && best.Less(r) {
			best = r
		}
	}
	return best
}

func scoreTag(tag Tag) (Rank, bool) {
	name, version, ok := ParseInterpreter(tag.Interpreter)
	if !ok || (name != "py" && name != "cp") {
		return Rank{}, false
	}
	major, minor, ok := splitVersion(version)
	if !ok {
		return Rank{}, false
	}
	return Rank{
		Python:   int64(major*100 + minor),
		Platform: PlatformScore(tag.Platform),
	}, true
}

// PlatformScore scores a wheel platform tag: "any" is 0, manylinux_M_m and
// musllinux_M_m give M*100+m, legacy manylinux aliases give fixed scores,
// other <letters>_<a>_<b> platforms give a*100+b, and the rest 0.
func PlatformScore(platform string) int64 {
	if platform == "any" {
		return 0
	}
	if m := modernLinuxRE.FindStringSubmatch(platform); m != nil {
		return versionScore(m[1], m[2])
	}
	for _, legacy := range legacyLinuxTag {
		if strings.HasPrefix(platform, legacy.prefix) {
			return legacy.score
		}
	}
	if m := genericPlatRE.FindStringSubmatch(platform); m != nil {
		return versionScore(m[1], m[2])
	}
	return 0
}

func versionScore(major, minor string) int64 {
	a, _ := strconv.ParseInt(major, 10, 64)
	b, _ := strconv.ParseInt(minor, 10, 64)
	return a*100 + b
}
