// Package errdefs defines the error kinds shared across the metrics engine.
//
// Errors are wrapped with fmt.Errorf("...: %w", ErrX) at the point they are
// raised and classified with errors.Is at the boundaries.
package errdefs

import "errors"

var (
	// ErrConfiguration marks a caller or model misconfiguration. Never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrNotFound marks a lookup target (filter, sprint, board) that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUpstreamUnavailable marks an I/O failure of the ticketing source or backing store.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUpstreamUnavailable reports whether err is an upstream I/O error.
func IsUpstreamUnavailable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable)
}
