package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/observability"
)

func TestLogHooks(t *testing.T) {
	t.Cleanup(observability.Reset)

	var buf bytes.Buffer
	h := newLogHooks(newLogger(&buf, log.DebugLevel))
	h.install()

	ctx := context.Background()
	observability.Mirror().OnDownload(ctx, "six-1.16.0-py2.py3-none-any.whl", 11053, true, time.Millisecond, nil)
	observability.Mirror().OnProjectComplete(ctx, "six", 1, time.Millisecond, nil)
	observability.HTTP().OnResponse(ctx, "GET", "pypi.org", "/simple/six/", 200, time.Millisecond)
	observability.Mirror().OnProjectComplete(ctx, "broken", 0, time.Millisecond, errors.New(errors.ErrCodeNoMatch, "nothing"))

	out := buf.String()
	for _, want := range []string{"download", "six-1.16.0-py2.py3-none-any.whl", "project done", "http response", "project failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestLogHooksQuietAtInfo(t *testing.T) {
	var buf bytes.Buffer
	h := newLogHooks(newLogger(&buf, log.InfoLevel))
	h.OnRequest(context.Background(), "GET", "pypi.org", "/simple/six/")
	h.OnProjectComplete(context.Background(), "six", 1, time.Millisecond, nil)
	if buf.Len() != 0 {
		t.Errorf("hooks logged at info level: %s", buf.String())
	}
}
