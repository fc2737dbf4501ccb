package piweb

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyResult indicates the server answered the request but the
	// expected payload key was missing or empty. The request itself
	// succeeded, so this is distinct from NotFoundError.
	ErrEmptyResult = errors.New("empty result: check the tag name or web id")

	// ErrBothTargets indicates a write was given both a web id and a tag.
	ErrBothTargets = errors.New("cannot pass both a web id and a tag")

	// ErrNoLocation indicates a write succeeded but the response carried
	// no Location header to hand back to the caller.
	ErrNoLocation = errors.New("write accepted but response has no Location header")
)

// ConnectionError indicates a discovery endpoint returned a non-success status.
type ConnectionError struct {
	Endpoint   string
	StatusCode int
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to historian failed: %s returned status %d", e.Endpoint, e.StatusCode)
}

// NotFoundError indicates a point-search, fetch, or write endpoint returned
// a non-success status. The raw response body is kept for diagnostics.
type NotFoundError struct {
	Endpoint   string
	StatusCode int
	Body       []byte
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Endpoint, e.StatusCode, string(e.Body))
}

// AmbiguousTagError indicates a single-result operation matched more than
// one point. Matches lists every matched tag name.
type AmbiguousTagError struct {
	Pattern string
	Matches []string
}

func (e *AmbiguousTagError) Error() string {
	return fmt.Sprintf("tag %q matched %d points (%s): use the multi-tag variant",
		e.Pattern, len(e.Matches), strings.Join(e.Matches, ", "))
}

// WriteFailedError indicates the write endpoint returned neither OK nor
// No Content. The raw response is kept for diagnostics.
type WriteFailedError struct {
	StatusCode int
	Body       []byte
}

func (e *WriteFailedError) Error() string {
	return fmt.Sprintf("write failed with status %d: %s", e.StatusCode, string(e.Body))
}
