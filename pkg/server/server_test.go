package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/wheelhouse/pkg/download"
	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/mirror"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	whl := filepath.Join(dir, "requests", "requests-2.31.0-py3-none-any.whl")
	writeFile(t, whl, "wheel")
	writeFile(t, whl+download.HashSuffix, "sha256=abc123")
	writeFile(t, whl+mirror.MetadataSuffix, "Metadata-Version: 2.1\n")
	writeFile(t, filepath.Join(dir, "requests", "requests-2.31.0.tar.gz"), "sdist")
	writeFile(t, filepath.Join(dir, "six", "six-1.16.0-py2.py3-none-any.whl"), "six")
	writeFile(t, filepath.Join(dir, ".cache", "x"), "")
	writeFile(t, filepath.Join(dir, "README"), "")
	return dir
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	s, err := New(testTree(t), log.New(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, ts *httptest.Server, path, accept string) (*http.Response, string) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func TestProjectListJSON(t *testing.T) {
	ts := newTestServer(t)
	resp, body := get(t, ts, "/", TypeJSONv1)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != TypeJSONv1 {
		t.Fatalf("status=%d type=%s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	var page projectList
	if err := json.Unmarshal([]byte(body), &page); err != nil {
		t.Fatal(err)
	}
	if page.Meta.APIVersion != "1.0" || len(page.Projects) != 2 || page.Projects[0].Name != "requests" || page.Projects[1].Name != "six" {
		t.Errorf("page = %+v", page)
	}
}

func TestProjectListHTML(t *testing.T) {
	ts := newTestServer(t)
	resp, body := get(t, ts, "/", "")
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), TypeHTMLv1) {
		t.Errorf("type = %s", resp.Header.Get("Content-Type"))
	}
	for _, want := range []string{`<a href="/requests/">requests</a>`, `<a href="/six/">six</a>`} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %s:\n%s", want, body)
		}
	}
	if strings.Contains(body, ".cache") {
		t.Error("hidden directories listed")
	}
}

func TestProjectPageJSON(t *testing.T) {
	ts := newTestServer(t)
	_, body := get(t, ts, "/requests/", TypeJSONLatest)
	var page projectPage
	if err := json.Unmarshal([]byte(body), &page); err != nil {
		t.Fatal(err)
	}
	if page.Name != "requests" || len(page.Files) != 2 {
		t.Fatalf("page = %+v", page)
	}
	whl := page.Files[0]
	if whl.Filename != "requests-2.31.0-py3-none-any.whl" || whl.URL != "/requests/requests-2.31.0-py3-none-any.whl" {
		t.Errorf("file = %+v", whl)
	}
	if whl.Hashes["sha256"] != "abc123" || whl.CoreMetadata["sha256"] == "" {
		t.Errorf("hashes=%v core-metadata=%v", whl.Hashes, whl.CoreMetadata)
	}
	if sdist := page.Files[1]; len(sdist.Hashes) != 0 || sdist.CoreMetadata != nil {
		t.Errorf("sdist = %+v", sdist)
	}
}

func TestProjectPageHTML(t *testing.T) {
	ts := newTestServer(t)
	_, body := get(t, ts, "/requests/", "text/html")
	if !strings.Contains(body, `href="/requests/requests-2.31.0-py3-none-any.whl#sha256=abc123" data-core-metadata="sha256=`) {
		t.Errorf("missing anchor with fragment:\n%s", body)
	}
	if strings.Contains(body, ".hash") || strings.Contains(body, ".metadata<") {
		t.Errorf("sidecars listed:\n%s", body)
	}
}

func TestCanonicalRedirects(t *testing.T) {
	ts := newTestServer(t)
	for path, want := range map[string]string{
		"/Requests/":   "/requests/",
		"/requests":    "/requests/",
		"/Six/six.whl": "/six/six.whl",
	} {
		resp, _ := get(t, ts, path, "")
		if resp.StatusCode != http.StatusMovedPermanently || resp.Header.Get("Location") != want {
			t.Errorf("GET %s = %d %s, want 301 %s", path, resp.StatusCode, resp.Header.Get("Location"), want)
		}
	}
}

func TestNotAcceptable(t *testing.T) {
	ts := newTestServer(t)
	resp, _ := get(t, ts, "/requests/", "application/json")
	if resp.StatusCode != http.StatusNotAcceptable {
		t.Errorf("status = %d, want 406", resp.StatusCode)
	}
}

func TestServeFile(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		path   string
		status int
		ctype  string
		body   string
	}{
		{"/requests/requests-2.31.0-py3-none-any.whl", 200, "application/octet-stream", "wheel"},
		{"/requests/requests-2.31.0.tar.gz", 200, "application/x-tar", "sdist"},
		{"/requests/requests-2.31.0-py3-none-any.whl.metadata", 200, "text/plain", "Metadata-Version: 2.1\n"},
		{"/requests/requests-2.31.0-py3-none-any.whl.hash", 200, "text/plain", "sha256=abc123"},
		{"/requests/nope.whl", 404, "", ""},
		{"/nothere/", 404, "", ""},
	}
	for _, tt := range tests {
		resp, body := get(t, ts, tt.path, "application/octet-stream")
		if resp.StatusCode != tt.status {
			t.Errorf("GET %s status = %d, want %d", tt.path, resp.StatusCode, tt.status)
			continue
		}
		if tt.status != 200 {
			continue
		}
		if got := resp.Header.Get("Content-Type"); got != tt.ctype || body != tt.body {
			t.Errorf("GET %s = (%s, %q), want (%s, %q)", tt.path, got, body, tt.ctype, tt.body)
		}
	}
}

func TestNewRejectsMissingDir(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "missing"), nil); !errors.Is(err, errors.ErrCodeInvalidPath) {
		t.Errorf("err = %v, want INVALID_PATH", err)
	}
}

func TestServeShutsDown(t *testing.T) {
	s, err := New(testTree(t), log.New(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
