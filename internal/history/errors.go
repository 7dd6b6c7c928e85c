package history

import "errors"

// Sentinel errors for history operations.
var (
	// ErrRecordFailed indicates an insert failed.
	// Non-fatal: the bridge logs it and continues publishing.
	ErrRecordFailed = errors.New("history: record failed")
)
