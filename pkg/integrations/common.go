package integrations

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/matzehuels/wheelhouse/pkg/buildinfo"
	"github.com/matzehuels/wheelhouse/pkg/httputil"
)

var (
	// ErrNotFound is returned when a project or file doesn't exist on the index.
	ErrNotFound = stderrors.New("resource not found")

	// ErrNetwork is returned for HTTP failures (timeouts, connection errors, 5xx responses).
	ErrNetwork = stderrors.New("network error")
)

// NewHTTPClient creates an HTTP client with the given request timeout and
// the wheelhouse User-Agent. A zero timeout leaves requests bounded by their
// context only.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return httputil.NewClient(timeout, buildinfo.UserAgent())
}
