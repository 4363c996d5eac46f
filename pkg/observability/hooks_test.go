package observability

import (
	"context"
	"testing"
	"time"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	m := NoopMirrorHooks{}
	m.OnProjectStart(ctx, "requests")
	m.OnProjectComplete(ctx, "requests", 4, time.Second, nil)
	m.OnDownload(ctx, "requests-2.31.0-py3-none-any.whl", 1024, true, time.Second, nil)

	c := NoopCacheHooks{}
	c.OnCacheHit(ctx, "simple")
	c.OnCacheMiss(ctx, "simple")
	c.OnCacheSet(ctx, "simple", 1024)

	h := NoopHTTPHooks{}
	h.OnRequest(ctx, "GET", "pypi.org", "/simple/requests/")
	h.OnResponse(ctx, "GET", "pypi.org", "/simple/requests/", 200, time.Second)
	h.OnError(ctx, "GET", "pypi.org", "/simple/requests/", nil)
}

func TestGlobalHooksRegistry(t *testing.T) {
	Reset()
	defer Reset()

	if _, ok := Mirror().(NoopMirrorHooks); !ok {
		t.Error("Mirror() should return NoopMirrorHooks by default")
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Cache() should return NoopCacheHooks by default")
	}
	if _, ok := HTTP().(NoopHTTPHooks); !ok {
		t.Error("HTTP() should return NoopHTTPHooks by default")
	}

	customMirror := &testMirrorHooks{}
	SetMirrorHooks(customMirror)
	if Mirror() != customMirror {
		t.Error("SetMirrorHooks should set custom hooks")
	}

	customCache := &testCacheHooks{}
	SetCacheHooks(customCache)
	if Cache() != customCache {
		t.Error("SetCacheHooks should set custom hooks")
	}

	customHTTP := &testHTTPHooks{}
	SetHTTPHooks(customHTTP)
	if HTTP() != customHTTP {
		t.Error("SetHTTPHooks should set custom hooks")
	}

	Mirror().OnProjectStart(context.Background(), "numpy")
	if customMirror.started != 1 {
		t.Errorf("started = %d, want 1", customMirror.started)
	}

	Reset()
	if _, ok := Mirror().(NoopMirrorHooks); !ok {
		t.Error("Reset should restore NoopMirrorHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()
	defer Reset()

	SetMirrorHooks(nil)
	SetCacheHooks(nil)
	SetHTTPHooks(nil)

	if _, ok := Mirror().(NoopMirrorHooks); !ok {
		t.Error("SetMirrorHooks(nil) should be ignored")
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("SetCacheHooks(nil) should be ignored")
	}
	if _, ok := HTTP().(NoopHTTPHooks); !ok {
		t.Error("SetHTTPHooks(nil) should be ignored")
	}
}

type testMirrorHooks struct {
	NoopMirrorHooks
	started int
}

func (h *testMirrorHooks) OnProjectStart(context.Context, string) { h.started++ }

type testCacheHooks struct{ NoopCacheHooks }

type testHTTPHooks struct{ NoopHTTPHooks }
