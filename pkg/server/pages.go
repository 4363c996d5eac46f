package server

import (
	"crypto/sha256"
	"encoding/hex"
	"html/template"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/matzehuels/wheelhouse/pkg/download"
	"github.com/matzehuels/wheelhouse/pkg/mirror"
)

// APIVersion is the simple API version served.
const APIVersion = "1.0"

var distributionRE = regexp.MustCompile(`\.(whl|zip|tar\.gz)$`)

type meta struct {
	APIVersion string `json:"api-version"`
}

type projectRef struct {
	Name string `json:"name"`
}

// projectList is the PEP 691 index page.
type projectList struct {
	Meta     meta         `json:"meta"`
	Projects []projectRef `json:"projects"`
}

// projectPage is the PEP 691 project page.
type projectPage struct {
	Meta  meta       `json:"meta"`
	Name  string     `json:"name"`
	Files []fileLink `json:"files"`
}

type fileLink struct {
	Filename     string            `json:"filename"`
	URL          string            `json:"url"`
	Hashes       map[string]string `json:"hashes"`
	CoreMetadata map[string]string `json:"core-metadata,omitempty"`
}

// Fragment returns the "#alg=hex" URL fragment, preferring sha256.
func (f fileLink) Fragment() string {
	if d, ok := f.Hashes["sha256"]; ok {
		return "#sha256=" + d
	}
	for alg, d := range f.Hashes {
		return "#" + alg + "=" + d
	}
	return ""
}

// MetadataAttr returns the data-core-metadata attribute value.
func (f fileLink) MetadataAttr() string {
	if d, ok := f.CoreMetadata["sha256"]; ok {
		return "sha256=" + d
	}
	return ""
}

func listProjects(dir string) (projectList, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return projectList{}, err
	}
	page := projectList{Meta: meta{APIVersion: APIVersion}, Projects: []projectRef{}}
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			page.Projects = append(page.Projects, projectRef{Name: e.Name()})
		}
	}
	slices.SortFunc(page.Projects, func(a, b projectRef) int { return strings.Compare(a.Name, b.Name) })
	return page, nil
}

func readProject(dir, project string) (projectPage, error) {
	entries, err := os.ReadDir(filepath.Join(dir, project))
	if err != nil {
		return projectPage{}, err
	}
	page := projectPage{Meta: meta{APIVersion: APIVersion}, Name: project, Files: []fileLink{}}
	for _, e := range entries {
		if e.IsDir() || !distributionRE.MatchString(e.Name()) {
			continue
		}
		path := filepath.Join(dir, project, e.Name())
		link := fileLink{
			Filename: e.Name(),
			URL:      "/" + project + "/" + e.Name(),
			Hashes:   map[string]string{},
		}
		if alg, digest, err := download.ReadSidecar(path); err == nil {
			link.Hashes[alg] = digest
		}
		if data, err := os.ReadFile(path + mirror.MetadataSuffix); err == nil {
			sum := sha256.Sum256(data)
			link.CoreMetadata = map[string]string{"sha256": hex.EncodeToString(sum[:])}
		}
		page.Files = append(page.Files, link)
	}
	slices.SortFunc(page.Files, func(a, b fileLink) int { return strings.Compare(a.Filename, b.Filename) })
	return page, nil
}

var (
	indexTmpl = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
  <head><meta name="pypi:repository-version" content="{{.Meta.APIVersion}}"><title>Simple index</title></head>
  <body>
{{- range .Projects}}
    <a href="/{{.Name}}/">{{.Name}}</a>
{{- end}}
  </body>
</html>
`))

	projectTmpl = template.Must(template.New("project").Parse(`<!DOCTYPE html>
<html>
  <head><meta name="pypi:repository-version" content="{{.Meta.APIVersion}}"><title>Links for {{.Name}}</title></head>
  <body>
    <h1>Links for {{.Name}}</h1>
{{- range .Files}}
    <a href="{{.URL}}{{.Fragment}}"{{with .MetadataAttr}} data-core-metadata="{{.}}" data-dist-info-metadata="{{.}}"{{end}}>{{.Filename}}</a>
{{- end}}
  </body>
</html>
`))
)
