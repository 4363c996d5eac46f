// Package httputil provides the HTTP plumbing shared by the index client and
// the downloader.
//
// # Retry
//
// [Retry] runs an operation with exponential backoff, retrying only errors
// wrapped in [RetryableError]:
//
//	err := httputil.RetryWithBackoff(ctx, func() error {
//	    resp, err := client.Do(req)
//	    if err != nil {
//	        return httputil.MarkTransient(err)
//	    }
//	    ...
//	})
//
// Callers decide which failures are transient. The index client treats
// network errors and 5xx responses as retryable and everything else,
// including 404 and malformed payloads, as final.
//
// # Client
//
// [NewClient] builds an [net/http.Client] with a request timeout and a
// User-Agent header identifying the mirror.
package httputil
