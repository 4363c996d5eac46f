// Package download fetches distribution files into the mirror tree.
//
// [Downloader.Ensure] is idempotent: a file already on disk whose digest
// matches the index is never fetched again. New bytes are streamed into a
// temporary file beside the target and only renamed into place once their
// digest verifies, so the tree never holds a partial or corrupt file under
// its final name. Each file gets a "<file>.hash" sidecar holding "alg=hex".
package download

import (
	"context"
	"encoding/hex"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/matzehuels/wheelhouse/pkg/dist"
	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/integrations"
	"github.com/matzehuels/wheelhouse/pkg/observability"
)

// HashSuffix names the digest sidecar.
const HashSuffix = ".hash"

// Result describes the state of a target after Ensure.
type Result struct {
	Algorithm string
	Digest    string
	Fetched   bool // false when an existing file was reused
	Size      int64
	Verified  bool // false when the index advertised no usable digest
}

// Downloader fetches files through a shared integrations client.
type Downloader struct {
	client  *integrations.Client
	timeout time.Duration
}

// NewClient returns an uncached integrations client whose HTTP client has
// no overall timeout, so a transfer is bounded only by the fetch context.
func NewClient() *integrations.Client {
	c := integrations.NewClient(nil, "", 0, nil)
	c.SetHTTPClient(integrations.NewHTTPClient(0))
	return c
}

// New returns a downloader. timeout bounds each fetch, body included; zero
// means no bound beyond the caller's context. A nil client selects
// [NewClient]. A client built with a request timeout caps every transfer
// at that timeout as well.
func New(client *integrations.Client, timeout time.Duration) *Downloader {
	if client == nil {
		client = NewClient()
	}
	return &Downloader{client: client, timeout: timeout}
}

// Ensure makes target hold the verified bytes of f.
//
// The digest algorithm is sha256 when advertised, else the first supported
// advertised algorithm in lexical order. A file with no usable digest is
// hashed with sha256 and kept unverified; if such a file already exists it
// is reused as is. A digest mismatch after download removes the temporary
// file and returns an INTEGRITY_ERROR. Fetch failures are TRANSPORT_ERRORs.
func (d *Downloader) Ensure(ctx context.Context, f dist.File, target string) (Result, error) {
	start := time.Now()
	res, err := d.ensure(ctx, f, target)
	observability.Mirror().OnDownload(ctx, f.Filename, res.Size, res.Fetched, time.Since(start), err)
	return res, err
}

func (d *Downloader) ensure(ctx context.Context, f dist.File, target string) (Result, error) {
	alg, want, verified := f.Digest(Supported)
	if !verified {
		alg, want = PreferredAlgorithm, ""
	}
	res := Result{Algorithm: alg, Verified: verified}

	if info, err := os.Stat(target); err == nil && info.Mode().IsRegular() {
		got, err := HashFile(target, alg)
		if err != nil {
			return res, errors.Wrap(errors.ErrCodeInternal, err, "hash %s", target)
		}
		if !verified || got == want {
			res.Digest, res.Size = got, info.Size()
			return res, WriteSidecar(target, alg, got)
		}
	}

	if f.URL == "" {
		return res, errors.New(errors.ErrCodeInvalidInput, "%s has no download URL", f.Filename)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return res, errors.Wrap(errors.ErrCodeInternal, err, "create %s", filepath.Dir(target))
	}

	var got string
	err := d.client.Retry(ctx, func() error {
		var err error
		got, res.Size, err = d.fetch(ctx, f.URL, target, alg, want)
		return err
	})
	if err != nil {
		return res, err
	}
	res.Digest, res.Fetched = got, true
	return res, WriteSidecar(target, alg, got)
}

// fetch streams url into a temporary file while hashing and renames it to
// target when the digest matches want (or want is empty).
func (d *Downloader) fetch(ctx context.Context, url, target, alg, want string) (string, int64, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	resp, err := d.client.Open(ctx, url, nil)
	if err != nil {
		return "", 0, transportError(ctx, err, url)
	}
	defer resp.Body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".part-*")
	if err != nil {
		return "", 0, errors.Wrap(errors.ErrCodeInternal, err, "create temporary file")
	}
	defer os.Remove(tmp.Name())

	h, err := NewHash(alg)
	if err != nil {
		tmp.Close()
		return "", 0, err
	}
	n, err := io.Copy(io.MultiWriter(tmp, h), resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", 0, transportError(ctx, err, url)
	}

	got := hex.EncodeToString(h.Sum(nil))
	if want != "" && got != want {
		return "", 0, errors.New(errors.ErrCodeIntegrity, "digest mismatch for %s: %s=%s, index says %s", filepath.Base(target), alg, got, want)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", 0, errors.Wrap(errors.ErrCodeInternal, err, "rename into %s", target)
	}
	return got, n, nil
}

// transportError codes a failed fetch. A request that ran out of its own
// timeout is a TRANSPORT_ERROR for this file only; cancellation of the
// caller's context passes through untouched.
func transportError(ctx context.Context, err error, url string) error {
	if errors.GetCode(err) != "" {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Wrap(errors.ErrCodeTransport, err, "fetch %s timed out", url)
	}
	if stderrors.Is(err, context.Canceled) {
		return err
	}
	return errors.Wrap(errors.ErrCodeTransport, err, "fetch %s", url)
}

// WriteSidecar writes "<target>.hash" containing "alg=hex".
func WriteSidecar(target, alg, digest string) error {
	if err := os.WriteFile(target+HashSuffix, []byte(alg+"="+digest), 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "write digest sidecar")
	}
	return nil
}

// ReadSidecar parses the digest sidecar of target.
func ReadSidecar(target string) (alg, digest string, err error) {
	data, err := os.ReadFile(target + HashSuffix)
	if err != nil {
		return "", "", err
	}
	alg, digest, ok := strings.Cut(strings.TrimSpace(string(data)), "=")
	if !ok || alg == "" || digest == "" {
		return "", "", errors.New(errors.ErrCodeParse, "malformed digest sidecar for %s", filepath.Base(target))
	}
	return alg, digest, nil
}
