package operations

import "errors"

var (
	// ErrNotFound is returned for unknown or evicted operation ids.
	ErrNotFound = errors.New("operation not found")
	// ErrInvalidInput marks request-shape problems caught before any remote call.
	ErrInvalidInput = errors.New("invalid input")
	// ErrIllegalTransition is returned when a status edge is not allowed,
	// including any transition out of a terminal state.
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrRemoteUnavailable means the initial remote submission could not be
	// delivered at all.
	ErrRemoteUnavailable = errors.New("remote analysis service unavailable")
	// ErrMalformedResult means the remote reported success but the payload
	// lacked the minimum structure of an analysis result.
	ErrMalformedResult = errors.New("malformed analysis result")
)
