// Package schemas defines the wire-level types shared between the browser
// layer, the MCP tool surface, and the capture archive.
package schemas

import "time"

// ResourceType mirrors the CDP resource categories we care about when
// filtering captured traffic.
type ResourceType string

const (
	ResourceXHR      ResourceType = "xhr"
	ResourceFetch    ResourceType = "fetch"
	ResourceDocument ResourceType = "document"
	ResourceOther    ResourceType = "other"
)

// FilterType selects which captured requests a listing returns.
type FilterType string

const (
	FilterAll   FilterType = "all"
	FilterXHR   FilterType = "xhr"
	FilterFetch FilterType = "fetch"
)

// BinaryBodyPlaceholder is recorded in place of response bodies whose content
// type is not text-like.
const BinaryBodyPlaceholder = "[Binary or large content]"

// CapturedResponse is the response half of one observed network exchange.
type CapturedResponse struct {
	Status      int               `json:"status"`
	Headers     map[string]string `json:"headers"`
	ContentType string            `json:"content_type"`
	Content     string            `json:"content,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// NetworkRequest is the buffered record for one observed browser network
// exchange. The response sub-record is attached once headers (and, for
// text-like content, the body) have been received.
type NetworkRequest struct {
	URL          string            `json:"url"`
	Method       string            `json:"method"`
	Headers      map[string]string `json:"headers"`
	ResourceType ResourceType      `json:"resource_type"`
	Timestamp    time.Time         `json:"timestamp"`
	Body         string            `json:"body,omitempty"`
	Response     *CapturedResponse `json:"response,omitempty"`
}

// Matches reports whether the record passes the given filter.
func (r NetworkRequest) Matches(f FilterType) bool {
	switch f {
	case FilterXHR:
		return r.ResourceType == ResourceXHR
	case FilterFetch:
		return r.ResourceType == ResourceFetch
	default:
		return true
	}
}

// -- Tool result payloads --
// These are marshaled verbatim into the single text content block each tool
// returns, so the key set must stay stable.

// NavigateResult is the payload of a successful navigate_to_url call.
type NavigateResult struct {
	Success                 bool   `json:"success"`
	URL                     string `json:"url"`
	Title                   string `json:"title"`
	NetworkRequestsCaptured int    `json:"network_requests_captured"`
	Message                 string `json:"message"`
}

// PageHTMLResult is the payload of a successful get_page_html call.
type PageHTMLResult struct {
	Success     bool   `json:"success"`
	URL         string `json:"url"`
	HTMLLength  int    `json:"html_length"`
	HTMLContent string `json:"html_content"`
	Note        string `json:"note,omitempty"`
}

// NetworkRequestsResult is the payload of a successful get_network_requests
// call.
type NetworkRequestsResult struct {
	Success          bool             `json:"success"`
	TotalRequests    int              `json:"total_requests"`
	FilteredRequests int              `json:"filtered_requests"`
	FilterApplied    FilterType       `json:"filter_applied"`
	Requests         []NetworkRequest `json:"requests"`
}

// CaptureSnapshot bundles everything harvested for one navigated page, as
// handed to the capture archive.
type CaptureSnapshot struct {
	SessionID  string           `json:"session_id"`
	PageURL    string           `json:"page_url"`
	PageTitle  string           `json:"page_title"`
	CapturedAt time.Time        `json:"captured_at"`
	Requests   []NetworkRequest `json:"requests"`
}

// Persona describes the browser identity presented to target sites.
type Persona struct {
	UserAgent string   `json:"user_agent"`
	Platform  string   `json:"platform"`
	Languages []string `json:"languages"`
	Timezone  string   `json:"timezone"`
	Locale    string   `json:"locale"`
	Width     int      `json:"width"`
	Height    int      `json:"height"`
}

// DefaultPersona is used when the configuration does not pin one.
var DefaultPersona = Persona{
	UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	Platform:  "Win32",
	Languages: []string{"en-US", "en"},
	Timezone:  "America/New_York",
	Locale:    "en-US",
	Width:     1920,
	Height:    1080,
}
