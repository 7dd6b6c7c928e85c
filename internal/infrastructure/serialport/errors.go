package serialport

import "errors"

// Sentinel errors for serial port operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrOpenFailed indicates the device could not be opened or configured.
	// At startup this maps to exit code 2.
	ErrOpenFailed = errors.New("serialport: open failed")

	// ErrReadFailed indicates a transport-level read failure.
	// Non-fatal mid-run: the read loop backs off briefly and retries.
	ErrReadFailed = errors.New("serialport: read failed")

	// ErrWriteFailed indicates a write failure.
	// Non-fatal mid-run: the poll scheduler logs it and moves to the next code.
	ErrWriteFailed = errors.New("serialport: write failed")
)
