// Package integrations provides the HTTP client shared by everything that
// talks to a package index.
//
// # Overview
//
// [Client] wraps an [net/http.Client] with:
//   - default headers applied to every request
//   - status mapping: 404 becomes a NOT_FOUND error wrapping [ErrNotFound],
//     5xx and network failures become retryable TRANSPORT errors wrapping
//     [ErrNetwork], other non-200 statuses are final TRANSPORT errors
//   - retry with exponential backoff via [httputil.Retry]
//   - response caching through a [cache.Cache]
//   - request, response and cache events reported to [observability] hooks
//
// The catalog client lives in [simple]; the downloader in pkg/download
// streams file bodies through [Client.Open].
//
//	c := integrations.NewClient(cache.NewMemoryCache(), "simple:", time.Hour, nil)
//	var v payload
//	err := c.Cached(ctx, "requests", false, &v, func() error {
//	    return c.Get(ctx, url, &v)
//	})
//
// [simple]: github.com/matzehuels/wheelhouse/pkg/integrations/simple
// [cache.Cache]: github.com/matzehuels/wheelhouse/pkg/cache.Cache
// [observability]: github.com/matzehuels/wheelhouse/pkg/observability
// [httputil.Retry]: github.com/matzehuels/wheelhouse/pkg/httputil.Retry
package integrations
