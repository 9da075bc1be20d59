package schemas

import "context"

// BrowserSession is the contract one driven browser tab exposes to the tool
// surface.
type BrowserSession interface {
	ID() string

	// Navigate opens the URL, waits the post-load duration for late traffic,
	// and reports the final URL, title, and capture count.
	Navigate(ctx context.Context, url string, wait float64) (*NavigateResult, error)

	// PageHTML re-renders the current URL with script execution disabled and
	// returns the resulting markup.
	PageHTML(ctx context.Context) (*PageHTMLResult, error)

	// NetworkRequests lists the buffered capture, filtered by resource type.
	NetworkRequests(filter FilterType) *NetworkRequestsResult

	// Snapshot bundles the current capture for archival.
	Snapshot() *CaptureSnapshot

	Close(ctx context.Context) error
}

// BrowserEngine manages the browser process lifecycle and hands out sessions.
type BrowserEngine interface {
	// Session returns the live session, starting the browser on first use.
	Session(ctx context.Context) (BrowserSession, error)

	// ActiveSession returns the live session without starting anything.
	ActiveSession() (BrowserSession, bool)

	Shutdown(ctx context.Context) error
}

// CaptureArchive persists completed capture snapshots.
type CaptureArchive interface {
	ArchiveCapture(ctx context.Context, snap *CaptureSnapshot) error
}
