package cpi

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when the upstream response is usable but holds no
// record for the requested year and month.
var ErrNotFound = errors.New("cpi: no data found for the given month/year")

// Upstream failure stages.
const (
	OpRequest = "request"
	OpStatus  = "status"
	OpDecode  = "decode"
	OpValue   = "value"
)

// UpstreamError reports that the upstream API could not be reached or
// returned something that cannot be interpreted. It is never cached.
type UpstreamError struct {
	// Op is the stage that failed: one of the Op* constants.
	Op string
	// StatusCode is set when Op is OpStatus.
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("cpi upstream %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("cpi upstream %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsUpstreamError reports whether err wraps an *UpstreamError.
func IsUpstreamError(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
