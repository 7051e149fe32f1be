package pxweb

import (
	"errors"
	"fmt"
	"net"
	"net/url"
)

// APIError is a non-2xx response from the query API. The API sheds load
// with 429 and transient 5xx statuses and documents no finer distinction,
// so every APIError counts as retryable.
type APIError struct {
	StatusCode int
	Path       string
	Body       string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("pxweb: status %d for %s: %s", e.StatusCode, e.Path, e.Body)
	}
	return fmt.Sprintf("pxweb: status %d for %s", e.StatusCode, e.Path)
}

// IsTransient reports whether err is a failure the retry executor should
// attempt again: any API status error, or a transport-level error. Decode
// and metadata-consistency errors are not transient.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
