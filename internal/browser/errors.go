package browser

import "errors"

// Sentinel errors forming the tool surface's error taxonomy. Handlers at the
// MCP boundary match on these to produce the client-facing text.
var (
	// ErrInvalidInput marks malformed tool arguments (bad URL, bad filter).
	ErrInvalidInput = errors.New("invalid input")

	// ErrSessionNotReady is returned when an operation requires a navigated
	// page and none exists.
	ErrSessionNotReady = errors.New("no page loaded")

	// ErrNavigationTimeout marks a navigation that exceeded the configured
	// deadline.
	ErrNavigationTimeout = errors.New("navigation timed out")

	// ErrNavigationFailed marks any other upstream navigation failure.
	ErrNavigationFailed = errors.New("navigation failed")
)
