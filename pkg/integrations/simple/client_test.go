package simple

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matzehuels/wheelhouse/pkg/cache"
	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/integrations"
)

const listing = `{
  "meta": {"api-version": "1.1"},
  "name": "pkg",
  "files": [
    {"filename": "pkg-1.0.tar.gz", "url": "../../files/pkg-1.0.tar.gz", "hashes": {"sha256": "ab"}},
    {"filename": "pkg-1.0-py3-none-any.whl", "url": "https://files.example/pkg-1.0-py3-none-any.whl",
     "hashes": {}, "requires-python": ">=3.8", "yanked": "broken"}
  ]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL+"/simple", cache.NewMemoryCache(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	c.SetHTTPClient(srv.Client())
	c.SetRetry(3, time.Millisecond)
	return c, srv
}

func TestFetch(t *testing.T) {
	var accept, path string
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		accept, path = r.Header.Get("Accept"), r.URL.Path
		w.Header().Set("Content-Type", ContentTypeJSON)
		w.Write([]byte(listing))
	})

	cat, err := c.Fetch(context.Background(), "Pkg_")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if accept != ContentTypeJSON {
		t.Errorf("Accept = %q", accept)
	}
	if path != "/simple/pkg/" {
		t.Errorf("path = %q, want /simple/pkg/", path)
	}
	if cat.Name != "pkg" || len(cat.Files) != 2 {
		t.Fatalf("catalog = %+v", cat)
	}
	if want := srv.URL + "/files/pkg-1.0.tar.gz"; cat.Files[0].URL != want {
		t.Errorf("relative URL resolved to %q, want %q", cat.Files[0].URL, want)
	}
	if cat.Files[1].RequiresPython != ">=3.8" || !bool(cat.Files[1].Yanked) {
		t.Errorf("file 1 = %+v", cat.Files[1])
	}
}

func TestFetchCaches(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(listing))
	})
	ctx := context.Background()
	for range 3 {
		if _, err := c.Fetch(ctx, "pkg"); err != nil {
			t.Fatal(err)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("index hit %d times, want 1", hits.Load())
	}
}

func TestFetchNotFound(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	_, err := c.Fetch(context.Background(), "missing")
	if !stderrors.Is(err, integrations.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if errors.IsFatal(err) {
		t.Error("not found should not be fatal")
	}
}

func TestFetchProtocolErrors(t *testing.T) {
	bodies := map[string]string{
		"version 2":    `{"meta": {"api-version": "2.0"}, "files": []}`,
		"no version":   `{"files": []}`,
		"files object": `{"meta": {"api-version": "1.0"}, "files": {}}`,
		"no files":     `{"meta": {"api-version": "1.0"}}`,
		"null files":   `{"meta": {"api-version": "1.0"}, "files": null}`,
		"html":         `<html><body></body></html>`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			var hits atomic.Int32
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.Write([]byte(body))
			})
			_, err := c.Fetch(context.Background(), "pkg")
			if !errors.Is(err, errors.ErrCodeProtocol) {
				t.Fatalf("err = %v, want PROTOCOL_ERROR", err)
			}
			if !errors.IsFatal(err) {
				t.Error("protocol error should be fatal")
			}
			if hits.Load() != 1 {
				t.Errorf("protocol error retried %d times", hits.Load())
			}
		})
	}
}

func TestFetchServerErrorRetried(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := c.Fetch(context.Background(), "pkg")
	if !errors.Is(err, errors.ErrCodeTransport) {
		t.Errorf("err = %v, want TRANSPORT_ERROR", err)
	}
	if hits.Load() != 3 {
		t.Errorf("hits = %d, want 3", hits.Load())
	}
}

func TestNewClientInvalidURL(t *testing.T) {
	if _, err := NewClient("not a url", nil, 0); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("err = %v, want INVALID_CONFIG", err)
	}
	c, err := NewClient("", nil, 0)
	if err != nil || c.BaseURL() != DefaultIndexURL {
		t.Errorf("default base = %v, %v", c, err)
	}
}

func TestDecodeWithoutBase(t *testing.T) {
	cat, err := Decode([]byte(`{"meta": {"api-version": "1.0"}, "files": [{"filename": "a-1.0.zip", "url": "a-1.0.zip"}]}`), nil)
	if err != nil {
		t.Fatal(err)
	}
	if cat.Files[0].URL != "a-1.0.zip" {
		t.Errorf("URL = %q", cat.Files[0].URL)
	}

	base, _ := url.Parse("https://idx.example/simple/a/")
	cat, _ = Decode([]byte(`{"meta": {"api-version": "1.0"}, "files": [{"filename": "a-1.0.zip", "url": "a-1.0.zip"}]}`), base)
	if cat.Files[0].URL != "https://idx.example/simple/a/a-1.0.zip" {
		t.Errorf("URL = %q", cat.Files[0].URL)
	}
}
