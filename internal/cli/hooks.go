package cli

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/wheelhouse/pkg/mirror"
	"github.com/matzehuels/wheelhouse/pkg/observability"
)

// logHooks reports mirror and HTTP events at debug level.
type logHooks struct {
	observability.NoopCacheHooks
	logger *log.Logger
}

func newLogHooks(l *log.Logger) *logHooks {
	return &logHooks{logger: l}
}

// install registers the hooks globally for the rest of the process.
func (h *logHooks) install() {
	observability.SetMirrorHooks(h)
	observability.SetHTTPHooks(h)
	observability.SetCacheHooks(h)
}

func (h *logHooks) OnProjectStart(ctx context.Context, project string) {}

func (h *logHooks) OnProjectComplete(ctx context.Context, project string, files int, d time.Duration, err error) {
	if err != nil {
		h.logger.Debug("project failed", "project", project, "err", err, "duration", d)
		return
	}
	h.logger.Debug("project done", "project", project, "files", files, "duration", d.Round(time.Millisecond))
}

func (h *logHooks) OnDownload(ctx context.Context, filename string, bytes int64, fetched bool, d time.Duration, err error) {
	project, _ := mirror.ProjectFromContext(ctx)
	if err != nil {
		h.logger.Debug("download failed", "project", project, "file", filename, "err", err)
		return
	}
	h.logger.Debug("download", "project", project, "file", filename, "bytes", bytes, "fetched", fetched, "duration", d.Round(time.Millisecond))
}

func (h *logHooks) OnRequest(ctx context.Context, method, host, path string) {
	h.logger.Debug("http request", "method", method, "host", host, "path", path)
}

func (h *logHooks) OnResponse(ctx context.Context, method, host, path string, status int, d time.Duration) {
	h.logger.Debug("http response", "method", method, "host", host, "path", path, "status", status, "duration", d.Round(time.Millisecond))
}

func (h *logHooks) OnError(ctx context.Context, method, host, path string, err error) {
	h.logger.Debug("http error", "method", method, "host", host, "path", path, "err", err)
}
