package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter-mcp/api/schemas"
)

// valueOnlyContext is a context that is not cancellable and carries only values.
type valueOnlyContext struct{ context.Context }

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// requestState keeps tabs on the lifecycle of a single network request.
type requestState struct {
	Record        schemas.NetworkRequest
	ResponseReady chan struct{} // Signals when response headers are received
	IsComplete    bool
}

// Harvester listens to CDP network events on one tab and buffers them into an
// ordered list of request records. Correlation of responses to requests is by
// CDP RequestID, which the browser engine maintains for us.
type Harvester struct {
	logger        *zap.Logger
	captureBodies bool
	maxBodySize   int
	maxRequests   int

	// The context for the browser tab this harvester is attached to.
	sessionCtx context.Context
	// A separate context for the listener goroutine so it can be stopped cleanly.
	listenerCtx    context.Context
	cancelListener context.CancelFunc

	// -- Data storage and synchronization --
	// order holds every record in capture order. requests maps a RequestID to
	// its in-flight state only; a redirect reuses the id, so the map always
	// points at the latest leg while order keeps all of them.
	requests map[network.RequestID]*requestState
	order    []*requestState
	dropped  int
	lock     sync.RWMutex

	// Tracks active body fetching goroutines so Stop can drain them.
	bodyFetchWG sync.WaitGroup

	isStarted bool
}

// NewHarvester creates a new network capture harvester for a specific tab.
func NewHarvester(sessionCtx context.Context, logger *zap.Logger, captureBodies bool, maxBodySize, maxRequests int) *Harvester {
	return &Harvester{
		sessionCtx:    sessionCtx,
		logger:        logger.Named("harvester"),
		captureBodies: captureBodies,
		maxBodySize:   maxBodySize,
		maxRequests:   maxRequests,
		requests:      make(map[network.RequestID]*requestState),
		order:         make([]*requestState, 0),
	}
}

// Start kicks off the event listening process.
func (h *Harvester) Start() error {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.isStarted {
		return nil
	}

	// This context is derived from the tab, so if the tab dies, the listener dies.
	h.listenerCtx, h.cancelListener = context.WithCancel(h.sessionCtx)

	go h.listen()

	// Tell Chrome what we're interested in.
	err := chromedp.Run(h.sessionCtx, network.Enable())
	if err != nil {
		// If the session context is done, this error is expected.
		if h.sessionCtx.Err() != nil {
			return nil
		}
		h.cancelListener()
		return err
	}

	h.isStarted = true
	h.logger.Debug("Harvester started and listening for network events.")
	return nil
}

// listen is the main event loop that receives and dispatches CDP events.
func (h *Harvester) listen() {
	chromedp.ListenTarget(h.listenerCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			h.HandleRequestWillBeSent(e)
		case *network.EventResponseReceived:
			h.HandleResponseReceived(e)
		case *network.EventLoadingFinished:
			h.HandleLoadingFinished(e)
		case *network.EventLoadingFailed:
			h.HandleLoadingFailed(e)
		}
	})
}

// Stop halts the collection of events and waits for in-flight body fetches.
func (h *Harvester) Stop(ctx context.Context) {
	h.lock.Lock()
	if !h.isStarted {
		h.lock.Unlock()
		return
	}
	if h.cancelListener != nil {
		h.cancelListener()
		h.cancelListener = nil
	}
	h.isStarted = false
	h.lock.Unlock()

	done := make(chan struct{})
	go func() {
		h.bodyFetchWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		h.logger.Warn("Timed out waiting for pending response body fetches.", zap.Error(ctx.Err()))
	}
}

// Reset discards the buffered capture. Called on every navigation.
func (h *Harvester) Reset() {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.requests = make(map[network.RequestID]*requestState)
	h.order = h.order[:0]
	h.dropped = 0
}

// Count returns the number of buffered request records.
func (h *Harvester) Count() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.order)
}

// Snapshot returns the buffered records in capture order.
func (h *Harvester) Snapshot() []schemas.NetworkRequest {
	h.lock.RLock()
	defer h.lock.RUnlock()

	records := make([]schemas.NetworkRequest, 0, len(h.order))
	for _, state := range h.order {
		records = append(records, cloneRecord(state.Record))
	}
	return records
}

// Filtered returns the buffered records passing the given filter, in capture
// order, alongside the total buffered count.
func (h *Harvester) Filtered(filter schemas.FilterType) (records []schemas.NetworkRequest, total int) {
	all := h.Snapshot()
	records = make([]schemas.NetworkRequest, 0, len(all))
	for _, r := range all {
		if r.Matches(filter) {
			records = append(records, r)
		}
	}
	return records, len(all)
}

// -- Event Handlers --
// Exported so the event flow can be exercised directly with synthetic events.

func (h *Harvester) HandleRequestWillBeSent(e *network.EventRequestWillBeSent) {
	if e.Request == nil {
		return
	}

	h.lock.Lock()
	defer h.lock.Unlock()

	// A redirect reuses the RequestID; the redirected leg's response rides on
	// the event itself. Finalize the previous leg before recording the next.
	if e.RedirectResponse != nil {
		if prev, ok := h.requests[e.RequestID]; ok && !prev.IsComplete {
			prev.Record.Response = convertResponse(e.RedirectResponse)
			prev.IsComplete = true
			select {
			case <-prev.ResponseReady:
			default:
				close(prev.ResponseReady)
			}
		}
	}

	if h.maxRequests > 0 && len(h.order) >= h.maxRequests {
		h.dropped++
		if h.dropped == 1 {
			h.logger.Warn("Capture buffer full; further requests will not be recorded.",
				zap.Int("max_captured_requests", h.maxRequests))
		}
		return
	}

	record := schemas.NetworkRequest{
		URL:          e.Request.URL,
		Method:       e.Request.Method,
		Headers:      convertHeaders(e.Request.Headers),
		ResourceType: convertResourceType(e.Type),
		Timestamp:    time.Now().UTC(),
	}
	if e.WallTime != nil {
		record.Timestamp = e.WallTime.Time().UTC()
	}

	// Capture request bodies for mutating methods, matching the original
	// capture tool's behavior.
	switch strings.ToUpper(e.Request.Method) {
	case "POST", "PUT", "PATCH":
		record.Body = postData(e.Request)
	}

	state := &requestState{
		Record:        record,
		ResponseReady: make(chan struct{}),
	}
	h.requests[e.RequestID] = state
	h.order = append(h.order, state)
}

func (h *Harvester) HandleResponseReceived(e *network.EventResponseReceived) {
	if e.Response == nil {
		return
	}

	h.lock.Lock()
	defer h.lock.Unlock()

	state, ok := h.requests[e.RequestID]
	if !ok || state.Record.Response != nil {
		return
	}
	state.Record.Response = convertResponse(e.Response)
	// Signal that the headers are here, unblocking any pending body fetch.
	close(state.ResponseReady)
}

func (h *Harvester) HandleLoadingFinished(e *network.EventLoadingFinished) {
	h.lock.Lock()

	state, ok := h.requests[e.RequestID]
	if !ok {
		h.lock.Unlock()
		return
	}
	state.IsComplete = true

	wantBody := h.captureBodies && h.isStarted &&
		state.Record.Response != nil && isTextMime(state.Record.Response.ContentType)
	if wantBody {
		h.bodyFetchWG.Add(1)
		// Unlock before the goroutine to avoid holding the lock across CDP calls.
		h.lock.Unlock()
		go h.fetchBody(e.RequestID)
		return
	}
	h.lock.Unlock()
}

func (h *Harvester) HandleLoadingFailed(e *network.EventLoadingFailed) {
	h.lock.Lock()
	defer h.lock.Unlock()

	state, ok := h.requests[e.RequestID]
	if !ok {
		return
	}
	state.IsComplete = true
	// The request record stays in the buffer without a response sub-record;
	// unblock any waiting fetcher.
	select {
	case <-state.ResponseReady:
	default:
		close(state.ResponseReady)
	}
	h.logger.Debug("Network request failed to load.",
		zap.String("url", state.Record.URL), zap.String("error", e.ErrorText))
}

// -- Body Fetching Logic --

// fetchBody grabs the response body for a given request. Runs in its own goroutine.
func (h *Harvester) fetchBody(requestID network.RequestID) {
	defer h.bodyFetchWG.Done()

	// Use a detached context for fetching the body: it inherits the CDP
	// target info but not the cancellation signal from the tab, so a
	// navigation right behind the load event cannot orphan the fetch.
	ctx, cancel := context.WithTimeout(valueOnlyContext{h.sessionCtx}, 15*time.Second)
	defer cancel()

	h.lock.RLock()
	state, ok := h.requests[requestID]
	h.lock.RUnlock()
	if !ok {
		return
	}

	// Wait until the response headers have arrived.
	select {
	case <-state.ResponseReady:
	case <-ctx.Done():
		h.logger.Debug("Timed out waiting for response headers before fetching body.",
			zap.String("request_id", string(requestID)))
		return
	}

	body, err := network.GetResponseBody(requestID).Do(ctx)
	if err != nil {
		if h.sessionCtx.Err() != nil {
			// Expected during shutdown or navigation teardown.
			return
		}
		if ctx.Err() != nil {
			h.logger.Debug("Response body fetch timed out.",
				zap.String("request_id", string(requestID)), zap.Error(err))
			return
		}
		h.logger.Warn("Failed to fetch response body.",
			zap.String("request_id", string(requestID)), zap.Error(err))
		return
	}

	if h.maxBodySize > 0 && len(body) > h.maxBodySize {
		body = body[:h.maxBodySize]
	}

	h.lock.Lock()
	defer h.lock.Unlock()
	if state, ok := h.requests[requestID]; ok && state.Record.Response != nil {
		state.Record.Response.Content = string(body)
	}
}

// -- Conversion Helpers --

func convertResponse(resp *network.Response) *schemas.CapturedResponse {
	contentType := resp.MimeType
	captured := &schemas.CapturedResponse{
		Status:      int(resp.Status),
		Headers:     convertHeaders(resp.Headers),
		ContentType: contentType,
	}
	if ct, ok := captured.Headers["Content-Type"]; ok && contentType == "" {
		captured.ContentType = ct
	}
	if !isTextMime(captured.ContentType) {
		captured.Content = schemas.BinaryBodyPlaceholder
	}
	return captured
}

func convertResourceType(t network.ResourceType) schemas.ResourceType {
	switch t {
	case network.ResourceTypeXHR:
		return schemas.ResourceXHR
	case network.ResourceTypeFetch:
		return schemas.ResourceFetch
	case network.ResourceTypeDocument:
		return schemas.ResourceDocument
	default:
		return schemas.ResourceOther
	}
}

// convertHeaders flattens CDP headers into a plain string map. CDP can join
// multi-value headers with newlines; the first value wins.
func convertHeaders(headers network.Headers) map[string]string {
	out := make(map[string]string, len(headers))
	for name, value := range headers {
		switch v := value.(type) {
		case string:
			out[name] = strings.Split(v, "\n")[0]
		default:
			out[name] = fmt.Sprintf("%v", v)
		}
	}
	return out
}

// postData concatenates the request's post data entries.
func postData(req *network.Request) string {
	if !req.HasPostData || len(req.PostDataEntries) == 0 {
		return ""
	}
	var b strings.Builder
	for _, entry := range req.PostDataEntries {
		if entry.Bytes != "" {
			b.WriteString(entry.Bytes)
		}
	}
	return b.String()
}

func cloneRecord(r schemas.NetworkRequest) schemas.NetworkRequest {
	out := r
	out.Headers = cloneMap(r.Headers)
	if r.Response != nil {
		resp := *r.Response
		resp.Headers = cloneMap(r.Response.Headers)
		out.Response = &resp
	}
	return out
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func isTextMime(mimeType string) bool {
	mime := strings.ToLower(mimeType)
	return strings.HasPrefix(mime, "text/") ||
		strings.Contains(mime, "json") ||
		strings.Contains(mime, "javascript") ||
		strings.Contains(mime, "xml") ||
		strings.Contains(mime, "x-www-form-urlencoded")
}
