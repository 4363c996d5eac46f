package metadata

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"io"
	"os"
	"path"
	"strings"

	"github.com/matzehuels/wheelhouse/pkg/errors"
)

// maxMemberSize caps how much of one metadata member is read.
const maxMemberSize = 16 << 20

// Kind classifies an archive member.
type Kind int

const (
	KindIgnored Kind = iota
	KindCoreMetadata
	KindPyproject
	KindRequires
	KindSetupRequires
)

// Classify maps a member path to the metadata source it holds. pyproject.toml
// counts only directly under the top directory of a tar sdist.
func Classify(member string, tarball bool) Kind {
	member = strings.TrimPrefix(member, "./")
	dir, base := path.Split(strings.TrimSuffix(member, "/"))
	dir = strings.TrimSuffix(dir, "/")
	depth := strings.Count(member, "/")

	switch {
	case strings.HasSuffix(dir, ".egg-info"):
		switch base {
		case "requires.txt":
			return KindRequires
		case "setup_requires.txt":
			return KindSetupRequires
		}
		return KindIgnored
	case base == "METADATA" && depth == 1 && strings.HasSuffix(dir, ".dist-info"):
		return KindCoreMetadata
	case base == "PKG-INFO" && depth <= 1:
		return KindCoreMetadata
	case base == "pyproject.toml" && depth == 1 && tarball:
		return KindPyproject
	}
	return KindIgnored
}

// Extract opens the archive at path and parses every metadata member. The
// reader is chosen by extension: zip for .whl and .zip, gzip'd tar for
// .tar.gz. An archive that cannot be opened is an error; members that fail
// to parse are collected in [Record.Err].
func Extract(path string) (*Record, error) {
	switch {
	case strings.HasSuffix(path, ".whl"), strings.HasSuffix(path, ".zip"):
		return extractZip(path)
	case strings.HasSuffix(path, ".tar.gz"):
		return extractTar(path)
	}
	return nil, errors.New(errors.ErrCodeUnsupported, "unexpected distribution file %s", path)
}

func extractZip(name string) (*Record, error) {
	zr, err := zip.OpenReader(name)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPackage, err, "open %s", name)
	}
	defer zr.Close()

	rec := NewRecord()
	for _, f := range zr.File {
		kind := Classify(f.Name, false)
		if kind == KindIgnored {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			rec.addProblem(problem(f.Name, err))
			continue
		}
		data, err := io.ReadAll(io.LimitReader(rc, maxMemberSize))
		rc.Close()
		if err != nil {
			rec.addProblem(problem(f.Name, err))
			continue
		}
		rec.parse(kind, f.Name, data)
	}
	return rec, nil
}

func extractTar(name string) (*Record, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPackage, err, "open %s", name)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPackage, err, "open %s", name)
	}
	defer gz.Close()

	rec := NewRecord()
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A truncated archive still yields the members read so far.
			rec.addProblem(errors.Wrap(errors.ErrCodeInvalidPackage, err, "read %s", name))
			break
		}
		if !hdr.FileInfo().Mode().IsRegular() {
			continue
		}
		kind := Classify(hdr.Name, true)
		if kind == KindIgnored {
			continue
		}
		data, err := io.ReadAll(io.LimitReader(tr, maxMemberSize))
		if err != nil {
			rec.addProblem(problem(hdr.Name, err))
			continue
		}
		rec.parse(kind, hdr.Name, data)
	}
	return rec, nil
}

func (r *Record) parse(kind Kind, member string, data []byte) {
	switch kind {
	case KindCoreMetadata:
		r.ParseCoreMetadata(member, data)
	case KindPyproject:
		r.ParsePyproject(member, data)
	case KindRequires:
		r.ParseRequiresTxt(member, data, false)
	case KindSetupRequires:
		r.ParseRequiresTxt(member, data, true)
	}
}
