package download

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/matzehuels/wheelhouse/pkg/dist"
	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/integrations"
)

const payload = "wheel bytes"

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

type fileServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newFileServer(t *testing.T, body string, delay time.Duration) *fileServer {
	t.Helper()
	fs := &fileServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.hits.Add(1)
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(fs.Close)
	return fs
}

func newDownloader(fs *fileServer, timeout time.Duration) *Downloader {
	c := integrations.NewClient(nil, "", 0, nil)
	c.SetHTTPClient(fs.Client())
	c.SetRetry(2, time.Millisecond)
	return New(c, timeout)
}

func TestEnsureRoundTrip(t *testing.T) {
	fs := newFileServer(t, payload, 0)
	d := newDownloader(fs, 0)
	target := filepath.Join(t.TempDir(), "pkg", "pkg-1.0-py3-none-any.whl")
	f := dist.File{Filename: "pkg-1.0-py3-none-any.whl", URL: fs.URL + "/f", Hashes: map[string]string{"sha256": strings.ToUpper(sha256Hex(payload))}}

	res, err := d.Ensure(context.Background(), f, target)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if !res.Fetched || !res.Verified || res.Algorithm != "sha256" || res.Digest != sha256Hex(payload) || res.Size != int64(len(payload)) {
		t.Errorf("first result = %+v", res)
	}
	data, _ := os.ReadFile(target)
	if string(data) != payload {
		t.Errorf("target = %q", data)
	}
	alg, digest, err := ReadSidecar(target)
	if err != nil || alg != "sha256" || digest != sha256Hex(payload) {
		t.Errorf("sidecar = %s=%s, %v", alg, digest, err)
	}

	for range 2 {
		res, err = d.Ensure(context.Background(), f, target)
		if err != nil {
			t.Fatal(err)
		}
		if res.Fetched {
			t.Error("second Ensure fetched again")
		}
	}
	if fs.hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1", fs.hits.Load())
	}
}

func TestEnsureRefetchesCorruptFile(t *testing.T) {
	fs := newFileServer(t, payload, 0)
	d := newDownloader(fs, 0)
	target := filepath.Join(t.TempDir(), "pkg-1.0.tar.gz")
	os.WriteFile(target, []byte("stale"), 0o644)
	f := dist.File{Filename: "pkg-1.0.tar.gz", URL: fs.URL + "/f", Hashes: map[string]string{"sha256": sha256Hex(payload)}}

	res, err := d.Ensure(context.Background(), f, target)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Fetched {
		t.Error("corrupt file should be refetched")
	}
	if data, _ := os.ReadFile(target); string(data) != payload {
		t.Errorf("target = %q", data)
	}
}

func TestEnsureDigestMismatch(t *testing.T) {
	fs := newFileServer(t, payload, 0)
	d := newDownloader(fs, 0)
	dir := t.TempDir()
	target := filepath.Join(dir, "pkg-1.0.tar.gz")
	f := dist.File{Filename: "pkg-1.0.tar.gz", URL: fs.URL + "/f", Hashes: map[string]string{"sha256": sha256Hex("other")}}

	_, err := d.Ensure(context.Background(), f, target)
	if !errors.Is(err, errors.ErrCodeIntegrity) {
		t.Fatalf("err = %v, want INTEGRITY_ERROR", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("mismatch left files behind: %v", entries)
	}
	if fs.hits.Load() != 1 {
		t.Errorf("integrity failure retried: hits = %d", fs.hits.Load())
	}
}

func TestEnsureNoDigest(t *testing.T) {
	fs := newFileServer(t, payload, 0)
	d := newDownloader(fs, 0)
	target := filepath.Join(t.TempDir(), "pkg-1.0.zip")
	f := dist.File{Filename: "pkg-1.0.zip", URL: fs.URL + "/f"}

	res, err := d.Ensure(context.Background(), f, target)
	if err != nil {
		t.Fatal(err)
	}
	if res.Verified || res.Algorithm != "sha256" || res.Digest != sha256Hex(payload) {
		t.Errorf("result = %+v", res)
	}

	os.WriteFile(target, []byte("locally modified"), 0o644)
	res, err = d.Ensure(context.Background(), f, target)
	if err != nil {
		t.Fatal(err)
	}
	if res.Fetched {
		t.Error("existing undigested file should be reused")
	}
	if res.Digest != sha256Hex("locally modified") {
		t.Errorf("sidecar digest not refreshed: %s", res.Digest)
	}
}

func TestEnsureFallbackAlgorithms(t *testing.T) {
	fs := newFileServer(t, payload, 0)
	d := newDownloader(fs, 0)
	dir := t.TempDir()

	md5sum := md5.Sum([]byte(payload))
	f := dist.File{Filename: "a-1.0.zip", URL: fs.URL + "/f", Hashes: map[string]string{
		"md5":       hex.EncodeToString(md5sum[:]),
		"whirlpool": "ffff",
	}}
	res, err := d.Ensure(context.Background(), f, filepath.Join(dir, f.Filename))
	if err != nil || res.Algorithm != "md5" {
		t.Errorf("md5 result = %+v, %v", res, err)
	}

	b2 := blake2b.Sum256([]byte(payload))
	f = dist.File{Filename: "b-1.0.zip", URL: fs.URL + "/f", Hashes: map[string]string{"blake2b_256": hex.EncodeToString(b2[:])}}
	res, err = d.Ensure(context.Background(), f, filepath.Join(dir, f.Filename))
	if err != nil || res.Algorithm != "blake2b_256" || !res.Verified {
		t.Errorf("blake2b result = %+v, %v", res, err)
	}
}

func TestEnsureTransportErrors(t *testing.T) {
	fs := newFileServer(t, payload, 200*time.Millisecond)
	dir := t.TempDir()

	d := newDownloader(fs, 20*time.Millisecond)
	f := dist.File{Filename: "slow-1.0.zip", URL: fs.URL + "/f"}
	_, err := d.Ensure(context.Background(), f, filepath.Join(dir, f.Filename))
	if !errors.Is(err, errors.ErrCodeTransport) {
		t.Errorf("timeout err = %v, want TRANSPORT_ERROR", err)
	}

	fast := newFileServer(t, payload, 0)
	d = newDownloader(fast, 0)
	f = dist.File{Filename: "gone-1.0.zip", URL: fast.URL + "/missing"}
	_, err = d.Ensure(context.Background(), f, filepath.Join(dir, f.Filename))
	if !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("404 err = %v, want NOT_FOUND", err)
	}

	_, err = d.Ensure(context.Background(), dist.File{Filename: "nourl-1.0.zip"}, filepath.Join(dir, "nourl-1.0.zip"))
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("missing URL err = %v", err)
	}
}

// newSlowServer sends the first half of body, stalls for pause, then sends
// the rest.
func newSlowServer(t *testing.T, body string, pause time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		half := len(body) / 2
		w.Write([]byte(body[:half]))
		w.(http.Flusher).Flush()
		select {
		case <-time.After(pause):
		case <-r.Context().Done():
			return
		}
		w.Write([]byte(body[half:]))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClientHasNoOverallTimeout(t *testing.T) {
	if got := New(nil, 0).client.HTTPClient().Timeout; got != 0 {
		t.Errorf("default downloader client Timeout = %v, want none", got)
	}
	if got := NewClient().HTTPClient().Timeout; got != 0 {
		t.Errorf("NewClient Timeout = %v, want none", got)
	}
}

func TestEnsureSlowBodyWithinTimeout(t *testing.T) {
	srv := newSlowServer(t, payload, 1500*time.Millisecond)
	dir := t.TempDir()
	f := dist.File{Filename: "big-1.0-py3-none-any.whl", URL: srv.URL + "/f", Hashes: map[string]string{"sha256": sha256Hex(payload)}}

	c := NewClient()
	c.SetRetry(1, time.Millisecond)

	res, err := New(c, 10*time.Second).Ensure(context.Background(), f, filepath.Join(dir, f.Filename))
	if err != nil {
		t.Fatalf("stalled body within the fetch timeout failed: %v", err)
	}
	if !res.Fetched || !res.Verified || res.Size != int64(len(payload)) {
		t.Errorf("result = %+v", res)
	}

	f.Filename = "big-1.0.tar.gz"
	_, err = New(c, 300*time.Millisecond).Ensure(context.Background(), f, filepath.Join(dir, f.Filename))
	if !errors.Is(err, errors.ErrCodeTransport) {
		t.Errorf("stalled body past the fetch timeout: err = %v, want TRANSPORT_ERROR", err)
	}
	if _, err := os.Stat(filepath.Join(dir, f.Filename)); err == nil {
		t.Error("partial file left in the tree")
	}
}

func TestReadSidecarMalformed(t *testing.T) {
	target := filepath.Join(t.TempDir(), "x.zip")
	os.WriteFile(target+HashSuffix, []byte("nohash"), 0o644)
	if _, _, err := ReadSidecar(target); !errors.Is(err, errors.ErrCodeParse) {
		t.Errorf("err = %v", err)
	}
}

func TestSupported(t *testing.T) {
	for _, alg := range []string{"sha256", "sha224", "sha384", "sha512", "sha1", "md5", "blake2b_256"} {
		if !Supported(alg) {
			t.Errorf("%s should be supported", alg)
		}
	}
	if Supported("whirlpool") {
		t.Error("whirlpool should not be supported")
	}
}
