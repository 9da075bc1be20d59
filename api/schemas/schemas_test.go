package schemas_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/specter-mcp/api/schemas"
)

func getTestTime(t *testing.T) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, "2026-08-26T10:00:00.123456789Z")
	require.NoError(t, err, "Test setup failed: unable to parse fixed timestamp")
	return ts
}

func TestNetworkRequest_Matches(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name     string
		resource schemas.ResourceType
		filter   schemas.FilterType
		expected bool
	}{
		{"all matches xhr", schemas.ResourceXHR, schemas.FilterAll, true},
		{"all matches document", schemas.ResourceDocument, schemas.FilterAll, true},
		{"xhr filter matches xhr", schemas.ResourceXHR, schemas.FilterXHR, true},
		{"xhr filter rejects fetch", schemas.ResourceFetch, schemas.FilterXHR, false},
		{"fetch filter matches fetch", schemas.ResourceFetch, schemas.FilterFetch, true},
		{"fetch filter rejects document", schemas.ResourceDocument, schemas.FilterFetch, false},
		{"unknown filter behaves like all", schemas.ResourceOther, schemas.FilterType("weird"), true},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := schemas.NetworkRequest{ResourceType: tt.resource}
			assert.Equal(t, tt.expected, req.Matches(tt.filter))
		})
	}
}

// The tool payload key sets are a compatibility contract with existing MCP
// clients, so pin them explicitly.
func TestToolPayloadKeys(t *testing.T) {
	t.Parallel()

	nav := schemas.NavigateResult{
		Success:                 true,
		URL:                     "https://example.com/",
		Title:                   "Example Domain",
		NetworkRequestsCaptured: 4,
		Message:                 "ok",
	}
	raw, err := json.Marshal(nav)
	require.NoError(t, err)

	var keys map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &keys))
	for _, k := range []string{"success", "url", "title", "network_requests_captured", "message"} {
		assert.Contains(t, keys, k)
	}

	list := schemas.NetworkRequestsResult{
		Success:       true,
		FilterApplied: schemas.FilterAll,
		Requests:      []schemas.NetworkRequest{},
	}
	raw, err = json.Marshal(list)
	require.NoError(t, err)
	keys = nil
	require.NoError(t, json.Unmarshal(raw, &keys))
	for _, k := range []string{"success", "total_requests", "filtered_requests", "filter_applied", "requests"} {
		assert.Contains(t, keys, k)
	}
	// An empty capture must serialize as [], not null.
	assert.Contains(t, string(raw), `"requests":[]`)
}

func TestNetworkRequestSerialization(t *testing.T) {
	t.Parallel()
	req := schemas.NetworkRequest{
		URL:          "https://api.example.com/v1/items",
		Method:       "POST",
		Headers:      map[string]string{"Content-Type": "application/json"},
		ResourceType: schemas.ResourceFetch,
		Timestamp:    getTestTime(t),
		Body:         `{"q":1}`,
		Response: &schemas.CapturedResponse{
			Status:      200,
			ContentType: "application/json",
			Content:     `{"ok":true}`,
			Headers:     map[string]string{"Content-Type": "application/json"},
		},
	}

	raw, err := json.Marshal(req)
	require.NoError(t, err)

	var back schemas.NetworkRequest
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, req, back)

	// Absent optional fields must be omitted entirely.
	bare := schemas.NetworkRequest{URL: "https://example.com/a.png", Method: "GET", ResourceType: schemas.ResourceOther}
	raw, err = json.Marshal(bare)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"body"`)
	assert.NotContains(t, string(raw), `"response"`)
}
