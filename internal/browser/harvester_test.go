package browser

import (
	"context"
	"fmt"
	"testing"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter-mcp/api/schemas"
)

func newTestHarvester(t *testing.T, maxRequests int) *Harvester {
	t.Helper()
	return NewHarvester(context.Background(), zap.NewNop(), true, 1<<20, maxRequests)
}

func requestEvent(id, url, method string, resourceType network.ResourceType) *network.EventRequestWillBeSent {
	return &network.EventRequestWillBeSent{
		RequestID: network.RequestID(id),
		Type:      resourceType,
		Request: &network.Request{
			URL:     url,
			Method:  method,
			Headers: network.Headers{"User-Agent": "test-agent"},
		},
	}
}

func responseEvent(id string, status int64, mimeType string) *network.EventResponseReceived {
	return &network.EventResponseReceived{
		RequestID: network.RequestID(id),
		Response: &network.Response{
			Status:   status,
			MimeType: mimeType,
			Headers:  network.Headers{"Content-Type": mimeType},
		},
	}
}

func TestHarvester_RequestResponseCorrelation(t *testing.T) {
	t.Parallel()
	h := newTestHarvester(t, 100)

	h.HandleRequestWillBeSent(requestEvent("req-1", "https://example.com/api/data", "GET", network.ResourceTypeXHR))
	h.HandleResponseReceived(responseEvent("req-1", 200, "application/json"))
	h.HandleLoadingFinished(&network.EventLoadingFinished{RequestID: "req-1"})

	records := h.Snapshot()
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "https://example.com/api/data", rec.URL)
	assert.Equal(t, "GET", rec.Method)
	assert.Equal(t, schemas.ResourceXHR, rec.ResourceType)
	assert.Equal(t, "test-agent", rec.Headers["User-Agent"])
	assert.False(t, rec.Timestamp.IsZero())

	require.NotNil(t, rec.Response)
	assert.Equal(t, 200, rec.Response.Status)
	assert.Equal(t, "application/json", rec.Response.ContentType)
}

func TestHarvester_CaptureOrderPreserved(t *testing.T) {
	t.Parallel()
	h := newTestHarvester(t, 100)

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("req-%d", i)
		h.HandleRequestWillBeSent(requestEvent(id, fmt.Sprintf("https://example.com/%d", i), "GET", network.ResourceTypeFetch))
	}
	// Responses arrive out of order; capture order must not change.
	h.HandleResponseReceived(responseEvent("req-3", 200, "text/html"))
	h.HandleResponseReceived(responseEvent("req-0", 404, "text/html"))

	records := h.Snapshot()
	require.Len(t, records, 5)
	for i, rec := range records {
		assert.Equal(t, fmt.Sprintf("https://example.com/%d", i), rec.URL)
	}
}

func TestHarvester_RedirectReusesRequestID(t *testing.T) {
	t.Parallel()
	h := newTestHarvester(t, 100)

	h.HandleRequestWillBeSent(requestEvent("req-1", "https://example.com/old", "GET", network.ResourceTypeDocument))

	second := requestEvent("req-1", "https://example.com/new", "GET", network.ResourceTypeDocument)
	second.RedirectResponse = &network.Response{
		Status:   302,
		MimeType: "text/html",
		Headers:  network.Headers{"Location": "https://example.com/new"},
	}
	h.HandleRequestWillBeSent(second)
	h.HandleResponseReceived(responseEvent("req-1", 200, "text/html"))

	records := h.Snapshot()
	require.Len(t, records, 2)

	// First leg carries the redirect response.
	require.NotNil(t, records[0].Response)
	assert.Equal(t, "https://example.com/old", records[0].URL)
	assert.Equal(t, 302, records[0].Response.Status)

	// Second leg carries the final response.
	require.NotNil(t, records[1].Response)
	assert.Equal(t, "https://example.com/new", records[1].URL)
	assert.Equal(t, 200, records[1].Response.Status)
}

func TestHarvester_BufferCap(t *testing.T) {
	t.Parallel()
	h := newTestHarvester(t, 3)

	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("req-%d", i)
		h.HandleRequestWillBeSent(requestEvent(id, "https://example.com/", "GET", network.ResourceTypeOther))
	}

	assert.Equal(t, 3, h.Count())

	// A reset makes room again.
	h.Reset()
	assert.Equal(t, 0, h.Count())
	h.HandleRequestWillBeSent(requestEvent("req-new", "https://example.com/", "GET", network.ResourceTypeOther))
	assert.Equal(t, 1, h.Count())
}

func TestHarvester_PostDataCaptured(t *testing.T) {
	t.Parallel()
	h := newTestHarvester(t, 100)

	ev := requestEvent("req-1", "https://example.com/submit", "POST", network.ResourceTypeXHR)
	ev.Request.HasPostData = true
	ev.Request.PostDataEntries = []*network.PostDataEntry{
		{Bytes: "name=alice&"},
		{Bytes: "role=admin"},
	}
	h.HandleRequestWillBeSent(ev)

	records := h.Snapshot()
	require.Len(t, records, 1)
	assert.Equal(t, "name=alice&role=admin", records[0].Body)
}

func TestHarvester_GetRequestBodyIgnoredForGet(t *testing.T) {
	t.Parallel()
	h := newTestHarvester(t, 100)

	ev := requestEvent("req-1", "https://example.com/", "GET", network.ResourceTypeDocument)
	ev.Request.HasPostData = true
	ev.Request.PostDataEntries = []*network.PostDataEntry{{Bytes: "should-not-appear"}}
	h.HandleRequestWillBeSent(ev)

	records := h.Snapshot()
	require.Len(t, records, 1)
	assert.Empty(t, records[0].Body)
}

func TestHarvester_BinaryResponsePlaceholder(t *testing.T) {
	t.Parallel()
	h := newTestHarvester(t, 100)

	h.HandleRequestWillBeSent(requestEvent("req-1", "https://example.com/logo.png", "GET", network.ResourceTypeOther))
	h.HandleResponseReceived(responseEvent("req-1", 200, "image/png"))

	records := h.Snapshot()
	require.Len(t, records, 1)
	require.NotNil(t, records[0].Response)
	assert.Equal(t, schemas.BinaryBodyPlaceholder, records[0].Response.Content)
}

func TestHarvester_FailedLoadKeepsRequest(t *testing.T) {
	t.Parallel()
	h := newTestHarvester(t, 100)

	h.HandleRequestWillBeSent(requestEvent("req-1", "https://unreachable.invalid/", "GET", network.ResourceTypeXHR))
	h.HandleLoadingFailed(&network.EventLoadingFailed{
		RequestID: "req-1",
		ErrorText: "net::ERR_NAME_NOT_RESOLVED",
	})

	records := h.Snapshot()
	require.Len(t, records, 1)
	assert.Nil(t, records[0].Response)
}

func TestHarvester_Filtered(t *testing.T) {
	t.Parallel()
	h := newTestHarvester(t, 100)

	h.HandleRequestWillBeSent(requestEvent("req-1", "https://example.com/", "GET", network.ResourceTypeDocument))
	h.HandleRequestWillBeSent(requestEvent("req-2", "https://example.com/api", "GET", network.ResourceTypeXHR))
	h.HandleRequestWillBeSent(requestEvent("req-3", "https://example.com/graphql", "POST", network.ResourceTypeFetch))
	h.HandleRequestWillBeSent(requestEvent("req-4", "https://example.com/style.css", "GET", network.ResourceTypeStylesheet))

	tests := []struct {
		filter   schemas.FilterType
		wantURLs []string
	}{
		{schemas.FilterAll, []string{"https://example.com/", "https://example.com/api", "https://example.com/graphql", "https://example.com/style.css"}},
		{schemas.FilterXHR, []string{"https://example.com/api"}},
		{schemas.FilterFetch, []string{"https://example.com/graphql"}},
	}

	for _, tc := range tests {
		t.Run(string(tc.filter), func(t *testing.T) {
			records, total := h.Filtered(tc.filter)
			assert.Equal(t, 4, total)
			urls := make([]string, 0, len(records))
			for _, r := range records {
				urls = append(urls, r.URL)
			}
			assert.Equal(t, tc.wantURLs, urls)
		})
	}
}

func TestHarvester_SnapshotIsACopy(t *testing.T) {
	t.Parallel()
	h := newTestHarvester(t, 100)

	h.HandleRequestWillBeSent(requestEvent("req-1", "https://example.com/", "GET", network.ResourceTypeXHR))
	h.HandleResponseReceived(responseEvent("req-1", 200, "application/json"))

	first := h.Snapshot()
	first[0].Headers["User-Agent"] = "mutated"
	first[0].Response.Status = 999

	second := h.Snapshot()
	assert.Equal(t, "test-agent", second[0].Headers["User-Agent"])
	assert.Equal(t, 200, second[0].Response.Status)
}

func TestConvertHeaders(t *testing.T) {
	t.Parallel()

	headers := convertHeaders(network.Headers{
		"Content-Type": "application/json",
		"Set-Cookie":   "a=1\nb=2",
		"X-Count":      float64(42),
	})

	assert.Equal(t, "application/json", headers["Content-Type"])
	assert.Equal(t, "a=1", headers["Set-Cookie"])
	assert.Equal(t, "42", headers["X-Count"])
}

func TestIsTextMime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mime string
		want bool
	}{
		{"text/html", true},
		{"text/plain; charset=utf-8", true},
		{"application/json", true},
		{"application/javascript", true},
		{"application/xhtml+xml", true},
		{"application/x-www-form-urlencoded", true},
		{"image/png", false},
		{"application/octet-stream", false},
		{"font/woff2", false},
		{"", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, isTextMime(tc.mime), "mime %q", tc.mime)
	}
}
