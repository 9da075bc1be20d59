package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter-mcp/api/schemas"
	"github.com/xkilldash9x/specter-mcp/internal/browser"
)

// NavigateInput is the argument payload of the navigate_to_url tool.
type NavigateInput struct {
	URL      string   `json:"url" jsonschema:"The URL to navigate to"`
	WaitTime *float64 `json:"wait_time,omitempty" jsonschema:"Time to wait after page load (seconds)"`
}

// PageHTMLInput is the (empty) argument payload of the get_page_html tool.
type PageHTMLInput struct{}

// NetworkRequestsInput is the argument payload of the get_network_requests tool.
type NetworkRequestsInput struct {
	FilterType string `json:"filter_type,omitempty" jsonschema:"Filter by request type (xhr, fetch, all)"`
}

// CloseInput is the (empty) argument payload of the close_browser tool.
type CloseInput struct{}

// CloseOutput confirms teardown of the browser session.
type CloseOutput struct {
	Message string `json:"message"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "navigate_to_url",
		Description: "Navigate to a URL, wait for the page to settle, and capture all network traffic it produces",
	}, s.handleNavigate)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_page_html",
		Description: "Get the current page's HTML content, extracted with JavaScript disabled",
	}, s.handlePageHTML)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_network_requests",
		Description: "Get all captured network requests (XHR, API calls, etc.)",
	}, s.handleNetworkRequests)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "close_browser",
		Description: "Close the browser and cleanup resources",
	}, s.handleClose)
}

func (s *Server) handleNavigate(ctx context.Context, req *mcp.CallToolRequest, in NavigateInput) (*mcp.CallToolResult, schemas.NavigateResult, error) {
	if strings.TrimSpace(in.URL) == "" {
		return errorResult("Error: URL is required"), schemas.NavigateResult{}, nil
	}

	wait := s.cfg.Network.DefaultWaitTime.Seconds()
	if in.WaitTime != nil {
		wait = *in.WaitTime
	}

	session, err := s.engine.Session(ctx)
	if err != nil {
		s.logger.Error("Failed to acquire browser session.", zap.Error(err))
		return errorResult(fmt.Sprintf("Error navigating to URL: %v", err)), schemas.NavigateResult{}, nil
	}

	result, err := session.Navigate(ctx, in.URL, wait)
	if err != nil {
		s.logger.Error("Navigation failed.", zap.String("url", in.URL), zap.Error(err))
		if errors.Is(err, browser.ErrInvalidInput) {
			return errorResult("Error: Invalid URL format"), schemas.NavigateResult{}, nil
		}
		return errorResult(fmt.Sprintf("Error navigating to URL: %v", err)), schemas.NavigateResult{}, nil
	}

	return textResult(result), *result, nil
}

func (s *Server) handlePageHTML(ctx context.Context, req *mcp.CallToolRequest, _ PageHTMLInput) (*mcp.CallToolResult, schemas.PageHTMLResult, error) {
	session, ok := s.engine.ActiveSession()
	if !ok {
		return errorResult("Error: No page loaded. Use navigate_to_url first."), schemas.PageHTMLResult{}, nil
	}

	result, err := session.PageHTML(ctx)
	if err != nil {
		if errors.Is(err, browser.ErrSessionNotReady) {
			return errorResult("Error: No page loaded. Use navigate_to_url first."), schemas.PageHTMLResult{}, nil
		}
		s.logger.Error("Failed to extract page HTML.", zap.Error(err))
		return errorResult(fmt.Sprintf("Error getting page HTML: %v", err)), schemas.PageHTMLResult{}, nil
	}

	return textResult(result), *result, nil
}

func (s *Server) handleNetworkRequests(ctx context.Context, req *mcp.CallToolRequest, in NetworkRequestsInput) (*mcp.CallToolResult, schemas.NetworkRequestsResult, error) {
	// Unknown filters fall back to "all", and both branches below must agree
	// on what ends up in filter_applied.
	filter := schemas.FilterType(strings.ToLower(strings.TrimSpace(in.FilterType)))
	switch filter {
	case schemas.FilterXHR, schemas.FilterFetch:
	default:
		filter = schemas.FilterAll
	}

	session, ok := s.engine.ActiveSession()
	if !ok {
		// Nothing captured yet; an empty listing is still a valid answer.
		result := &schemas.NetworkRequestsResult{
			Success:       true,
			FilterApplied: filter,
			Requests:      []schemas.NetworkRequest{},
		}
		return textResult(result), *result, nil
	}

	result := session.NetworkRequests(filter)
	return textResult(result), *result, nil
}

func (s *Server) handleClose(ctx context.Context, req *mcp.CallToolRequest, _ CloseInput) (*mcp.CallToolResult, CloseOutput, error) {
	const closedMsg = "Browser closed successfully"

	session, ok := s.engine.ActiveSession()
	if !ok {
		// Closing when nothing is open is not an error.
		return plainResult(closedMsg), CloseOutput{Message: closedMsg}, nil
	}

	s.archiveCapture(ctx, session)

	if err := session.Close(ctx); err != nil {
		s.logger.Error("Failed to close browser session.", zap.Error(err))
		return errorResult(fmt.Sprintf("Error closing browser: %v", err)), CloseOutput{}, nil
	}

	return plainResult(closedMsg), CloseOutput{Message: closedMsg}, nil
}

// archiveCapture persists the session's capture buffer if an archive is
// configured. Archive failures are logged, never surfaced to the client.
func (s *Server) archiveCapture(ctx context.Context, session schemas.BrowserSession) {
	if s.archive == nil {
		return
	}
	snapshot := session.Snapshot()
	if snapshot.PageURL == "" && len(snapshot.Requests) == 0 {
		return
	}
	if err := s.archive.ArchiveCapture(ctx, snapshot); err != nil {
		s.logger.Warn("Failed to archive capture snapshot.",
			zap.String("session_id", snapshot.SessionID), zap.Error(err))
	}
}

// textResult renders a payload as a single indented JSON text block.
func textResult(payload any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("Error: %v", err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}

func plainResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}
