package bridge

import "errors"

// Sentinel errors for the bridge package.
// Use errors.Is() to check for specific error types.
var (
	// ErrInvalidEncoding indicates a chunk that is not valid UTF-8.
	ErrInvalidEncoding = errors.New("chunk is not valid UTF-8")

	// ErrMissingTransport indicates a bridge created without a transport.
	ErrMissingTransport = errors.New("transport is required")

	// ErrMissingHandler indicates a bridge created without a chunk handler.
	ErrMissingHandler = errors.New("chunk handler is required")

	// ErrAlreadyStarted indicates Start was called on a running bridge.
	ErrAlreadyStarted = errors.New("bridge already started")
)
