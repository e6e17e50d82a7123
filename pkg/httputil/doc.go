// Package httputil provides retry helpers for registry clients.
//
// [Retry] re-runs an operation with exponential backoff when it fails with
// a [RetryableError]. Registry clients wrap transient failures (network
// errors, 5xx and 429 responses) in RetryableError and leave everything
// else unwrapped, so a 404 for an unknown package fails fast:
//
//	err := httputil.RetryWithBackoff(ctx, func() error {
//	    return client.Get(ctx, url, &doc)
//	})
//
// Defaults: 3 attempts, 1 second initial delay, doubling each retry.
package httputil
