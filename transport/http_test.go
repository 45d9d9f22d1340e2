package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbrgm/mcp-core/mcp"
	"github.com/cbrgm/mcp-core/sampling"
	"github.com/cbrgm/mcp-core/server"
	"github.com/cbrgm/mcp-core/session"
)

func newTestHTTPTransport() (*HTTPTransport, *server.Server) {
	mgr := session.NewManager(time.Minute, 16, time.Second, nil)
	tr := NewHTTP(0, mgr, nil, time.Second, time.Second, time.Second, time.Second, time.Second)
	srv := server.New("Test", "1.0", nil)
	return tr, srv
}

func postFrame(t *testing.T, tr *HTTPTransport, srv *server.Server, sessionID string, frame map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(frame)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set("Accept", "application/json")
	if sessionID != "" {
		req.Header.Set(headerMCPSessionID, sessionID)
	}
	w := httptest.NewRecorder()
	tr.handlePost(req.Context(), srv, w, req)
	return w
}

func TestHandlePostInitializeMintsSession(t *testing.T) {
	tr, srv := newTestHTTPTransport()

	w := postFrame(t, tr, srv, "", map[string]any{
		"jsonrpc": "2.0", "id": "1", "method": "initialize",
		"params": mcp.InitializeParams{ProtocolVersion: mcp.ProtocolVersion, ClientInfo: mcp.ClientInfo{Name: "c", Version: "1"}},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	sessionID := w.Header().Get(headerMCPSessionID)
	assert.NotEmpty(t, sessionID)
	assert.Equal(t, mcp.ProtocolVersion, w.Header().Get(headerMCPProtocolVersion))

	_, ok := tr.manager.Get(sessionID)
	assert.True(t, ok)
}

func TestHandlePostWithoutSessionIDOnNonInitializeFails(t *testing.T) {
	tr, srv := newTestHTTPTransport()

	w := postFrame(t, tr, srv, "", map[string]any{"jsonrpc": "2.0", "id": "1", "method": "tools/list"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp mcp.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, mcp.ErrorCodeInvalidRequest, resp.Error.Code)
}

func TestHandlePostUnknownSessionIDFails(t *testing.T) {
	tr, srv := newTestHTTPTransport()

	w := postFrame(t, tr, srv, "does-not-exist", map[string]any{"jsonrpc": "2.0", "id": "1", "method": "tools/list"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlePostExistingSessionHandlesRequest(t *testing.T) {
	tr, srv := newTestHTTPTransport()
	sess := tr.manager.Create("sess-1", mcp.RequestContext{})
	sess.MarkInitialized()

	w := postFrame(t, tr, srv, "sess-1", map[string]any{"jsonrpc": "2.0", "id": "1", "method": "ping"})

	assert.Equal(t, http.StatusOK, w.Code)
	var resp mcp.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Nil(t, resp.Error)
}

func TestHandlePostNotificationReturnsAccepted(t *testing.T) {
	tr, srv := newTestHTTPTransport()
	sess := tr.manager.Create("sess-1", mcp.RequestContext{})
	sess.MarkInitialized()

	w := postFrame(t, tr, srv, "sess-1", map[string]any{"jsonrpc": "2.0", "method": "notifications/initialized"})

	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestHandlePostRejectsWrongJSONRPCVersion(t *testing.T) {
	tr, srv := newTestHTTPTransport()

	w := postFrame(t, tr, srv, "", map[string]any{"jsonrpc": "1.0", "id": "1", "method": "initialize"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp mcp.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, mcp.ErrorCodeInvalidRequest, resp.Error.Code)
}

func TestHandlePostMalformedBodyYieldsParseError(t *testing.T) {
	tr, srv := newTestHTTPTransport()

	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()
	tr.handlePost(req.Context(), srv, w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp mcp.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, mcp.ErrorCodeParseError, resp.Error.Code)
}

func TestHandlePostRejectsUnacceptableAcceptHeader(t *testing.T) {
	tr, srv := newTestHTTPTransport()

	body, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": "1", "method": "initialize"})
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set("Accept", "text/plain")
	w := httptest.NewRecorder()
	tr.handlePost(req.Context(), srv, w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlePostSamplingResponseResolvesCorrelator(t *testing.T) {
	tr, srv := newTestHTTPTransport()
	tr.manager.Create("sess-1", mcp.RequestContext{})

	capturedID := make(chan string, 1)
	correlator := sampling.NewCorrelator(func(sessionID string, r mcp.Request) error {
		capturedID <- r.ID.(string)
		return nil
	}, time.Second)
	tr.manager.Correlator = correlator

	maxTokens := 10
	resultCh := make(chan mcp.SamplingResult, 1)
	go func() {
		res, err := correlator.CreateMessage(context.Background(), "sess-1", mcp.SamplingParams{
			Messages:  []mcp.SamplingMessage{{Role: "user", Content: mcp.SamplingContent{Type: "text", Text: "hi"}}},
			MaxTokens: &maxTokens,
		})
		if err == nil {
			resultCh <- res
		}
	}()

	var id string
	select {
	case id = <-capturedID:
	case <-time.After(time.Second):
		t.Fatal("sampling request was never pushed")
	}

	w := postFrame(t, tr, srv, "sess-1", map[string]any{
		"jsonrpc": "2.0", "id": id,
		"result": mcp.SamplingResult{Role: "assistant", Content: mcp.SamplingContent{Type: "text", Text: "hello"}},
	})
	assert.Equal(t, http.StatusAccepted, w.Code)

	select {
	case res := <-resultCh:
		assert.Equal(t, "hello", res.Content.Text)
	case <-time.After(time.Second):
		t.Fatal("sampling response was never delivered")
	}
}

func TestHandlePostSamplingErrorResponseRejectsCorrelator(t *testing.T) {
	tr, srv := newTestHTTPTransport()
	tr.manager.Create("sess-1", mcp.RequestContext{})

	capturedID := make(chan string, 1)
	correlator := sampling.NewCorrelator(func(sessionID string, r mcp.Request) error {
		capturedID <- r.ID.(string)
		return nil
	}, time.Second)
	tr.manager.Correlator = correlator

	maxTokens := 10
	errCh := make(chan error, 1)
	go func() {
		_, err := correlator.CreateMessage(context.Background(), "sess-1", mcp.SamplingParams{
			Messages:  []mcp.SamplingMessage{{Role: "user", Content: mcp.SamplingContent{Type: "text", Text: "hi"}}},
			MaxTokens: &maxTokens,
		})
		errCh <- err
	}()

	id := <-capturedID
	w := postFrame(t, tr, srv, "sess-1", map[string]any{
		"jsonrpc": "2.0", "id": id,
		"error": mcp.NewError(mcp.KindInternal, "client declined"),
	})
	assert.Equal(t, http.StatusAccepted, w.Code)

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("rejection was never delivered")
	}
}

func TestHandleDeleteRequiresSessionHeader(t *testing.T) {
	tr, _ := newTestHTTPTransport()
	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	w := httptest.NewRecorder()
	tr.handleDelete(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleDeleteRemovesSession(t *testing.T) {
	tr, _ := newTestHTTPTransport()
	tr.manager.Create("sess-1", mcp.RequestContext{})

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	req.Header.Set(headerMCPSessionID, "sess-1")
	w := httptest.NewRecorder()
	tr.handleDelete(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	_, ok := tr.manager.Get("sess-1")
	assert.False(t, ok)
}

func TestHandleGetRequiresSessionHeader(t *testing.T) {
	tr, _ := newTestHTTPTransport()
	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	w := httptest.NewRecorder()
	tr.handleGet(req.Context(), w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGetUnknownSessionFails(t *testing.T) {
	tr, _ := newTestHTTPTransport()
	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set(headerMCPSessionID, "missing")
	w := httptest.NewRecorder()
	tr.handleGet(req.Context(), w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleGetSendsDisconnectEventWhenDisplacedByNewerStream(t *testing.T) {
	tr, _ := newTestHTTPTransport()
	tr.manager.Create("sess-1", mcp.RequestContext{})

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set(headerMCPSessionID, "sess-1")
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		tr.handleGet(context.Background(), w, req)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return w.Code == http.StatusOK
	}, time.Second, time.Millisecond, "first stream never started")
	time.Sleep(20 * time.Millisecond)

	_, _, ok := tr.manager.AttachStream("sess-1", &recordingStreamSender{})
	require.True(t, ok)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handleGet never returned after being displaced")
	}
	assert.Contains(t, w.Body.String(), "event: disconnect")
}

type recordingStreamSender struct{}

func (r *recordingStreamSender) SendResponse(mcp.Response) error         { return nil }
func (r *recordingStreamSender) SendNotification(mcp.Notification) error { return nil }
func (r *recordingStreamSender) SendRequest(mcp.Request) error           { return nil }

func TestCORSMiddlewareSetsHeadersAndShortCircuitsOptions(t *testing.T) {
	tr, _ := newTestHTTPTransport()
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodOptions, "/mcp", nil)
	w := httptest.NewRecorder()
	tr.corsMiddleware(next).ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, called, "OPTIONS preflight must not reach the wrapped handler")
}

func TestSecurityMiddlewareSetsHardeningHeadersAndCallsNext(t *testing.T) {
	tr, _ := newTestHTTPTransport()
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	tr.securityMiddleware(next).ServeHTTP(w, req)

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.True(t, called)
}

func TestHandleStatusPageReportsActiveSessionCount(t *testing.T) {
	tr, _ := newTestHTTPTransport()
	tr.manager.Create("sess-1", mcp.RequestContext{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	tr.handleStatusPage(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), mcp.ProtocolVersion)
}

func TestHTTPTransportStopWithoutStartIsANoop(t *testing.T) {
	tr, _ := newTestHTTPTransport()
	assert.NoError(t, tr.Stop())
}
