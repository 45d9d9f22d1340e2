package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cbrgm/mcp-core/mcp"
	"github.com/cbrgm/mcp-core/server"
	"github.com/cbrgm/mcp-core/session"
)

const (
	contentTypeJSON = "application/json; charset=utf-8"
	contentTypeSSE  = "text/event-stream; charset=utf-8"
	contentTypeHTML = "text/html; charset=utf-8"

	headerMCPSessionID       = "Mcp-Session-Id"
	headerMCPProtocolVersion = "MCP-Protocol-Version"
	headerLastEventID        = "Last-Event-ID"
)

// HTTPTransport is the streaming HTTP transport spec.md §5.2 describes:
// POST delivers one JSON-RPC message and gets a JSON or SSE-streamed
// reply, GET opens a long-lived SSE stream (replaying buffered events
// past Last-Event-ID), and DELETE ends a session.
//
// Grounded on cbrgm-go-mcp-server/transport/http.go's mux setup, CORS and
// security header middleware, and status page — kept close to verbatim,
// since those are transport-agnostic hardening rather than MCP-specific
// logic. Session bookkeeping is delegated to session.Manager rather than
// the teacher's own `sessions map[string]*SSESession`.
type HTTPTransport struct {
	port    int
	server  *http.Server
	manager *session.Manager
	logger  *slog.Logger

	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
	requestTimeout  time.Duration
}

// NewHTTP builds an HTTPTransport bound to the given session Manager (shared
// with the correlator so sampling requests can find an active stream).
func NewHTTP(port int, manager *session.Manager, logger *slog.Logger, readTimeout, writeTimeout, idleTimeout, shutdownTimeout, requestTimeout time.Duration) *HTTPTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPTransport{
		port:            port,
		manager:         manager,
		logger:          logger,
		readTimeout:     readTimeout,
		writeTimeout:    writeTimeout,
		idleTimeout:     idleTimeout,
		shutdownTimeout: shutdownTimeout,
		requestTimeout:  requestTimeout,
	}
}

func (t *HTTPTransport) Start(ctx context.Context, srv *server.Server) error {
	mux := http.NewServeMux()
	handler := t.corsMiddleware(t.securityMiddleware(mux))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			t.handlePost(ctx, srv, w, r)
		case http.MethodGet:
			t.handleGet(ctx, w, r)
		case http.MethodDelete:
			t.handleDelete(w, r)
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		t.handleStatusPage(w, r)
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	t.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", t.port),
		Handler:      handler,
		ReadTimeout:  t.readTimeout,
		WriteTimeout: t.writeTimeout,
		IdleTimeout:  t.idleTimeout,
	}

	srv.Registry().SetOnChange(func(kind string) {
		t.manager.Broadcast(mcp.Notification{
			JSONRPC: mcp.JSONRPCVersion,
			Method:  fmt.Sprintf("notifications/%s/list_changed", kind),
		})
	})

	evictorCtx, cancelEvictor := context.WithCancel(ctx)
	defer cancelEvictor()
	go t.manager.Run(evictorCtx, t.idleTimeout/2)

	t.logger.Info("starting HTTP transport", "port", t.port, "endpoint", fmt.Sprintf("http://localhost:%d/mcp", t.port))

	go func() {
		if err := t.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.logger.Error("HTTP server error", "error", err)
		}
	}()

	<-ctx.Done()
	t.logger.Info("HTTP transport shutting down")
	return t.Stop()
}

func (t *HTTPTransport) Stop() error {
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), t.shutdownTimeout)
		defer cancel()
		return t.server.Shutdown(ctx)
	}
	return nil
}

func (t *HTTPTransport) handlePost(ctx context.Context, srv *server.Server, w http.ResponseWriter, r *http.Request) {
	var frame mcp.Frame
	if err := json.NewDecoder(r.Body).Decode(&frame); err != nil {
		t.writeError(w, nil, mcp.Errorf(mcp.KindParse, "parse error: %v", err))
		return
	}

	if frame.JSONRPC != mcp.JSONRPCVersion {
		t.writeError(w, frame.ID, mcp.NewError(mcp.KindInvalidRequest, "invalid JSON-RPC version"))
		return
	}

	acceptHeader := r.Header.Get("Accept")
	wantsSSE := strings.Contains(acceptHeader, "text/event-stream")
	wantsJSON := strings.Contains(acceptHeader, "application/json") || acceptHeader == ""

	if !wantsJSON && !wantsSSE {
		t.writeError(w, frame.ID, mcp.NewError(mcp.KindInvalidRequest, "Accept header must include application/json and/or text/event-stream"))
		return
	}

	sessionID := r.Header.Get(headerMCPSessionID)
	sess, isNew := t.resolveSession(sessionID, frame.Method)
	if sess == nil {
		t.writeError(w, frame.ID, mcp.NewError(mcp.KindInvalidRequest, "Mcp-Session-Id header is required except on initialize"))
		return
	}
	t.manager.Touch(sess.ID)

	rc := t.buildRequestContext(r, frame.Method)
	sess.SetRequestContext(rc)

	if isNew {
		w.Header().Set(headerMCPSessionID, sess.ID)
	}
	w.Header().Set(headerMCPProtocolVersion, mcp.ProtocolVersion)

	// A client reply to a server-initiated sampling/createMessage request
	// arrives as a response frame (an id with no method). The correlator
	// that is waiting on it lives on the Manager, not the Server, so it is
	// resolved here directly rather than through srv.HandleMessage.
	if frame.IsResponse() {
		if !t.handleSamplingResponse(sess.ID, frame) {
			t.writeError(w, frame.ID, mcp.NewError(mcp.KindInvalidRequest, "response does not correlate to any outstanding server-initiated request"))
			return
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if frame.IsNotification() {
		reqCtx, cancel := context.WithTimeout(ctx, t.requestTimeout)
		defer cancel()
		httpSender := &httpResponseSender{writer: w}
		sess.SetSender(httpSender)
		srv.HandleMessage(reqCtx, sess, frame)
		if !httpSender.sent {
			w.WriteHeader(http.StatusAccepted)
		}
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, t.requestTimeout)
	defer cancel()

	if wantsSSE {
		t.handleSSERequest(reqCtx, srv, sess, w, r, frame)
		return
	}

	httpSender := &httpResponseSender{writer: w}
	sess.SetSender(httpSender)
	srv.HandleMessage(reqCtx, sess, frame)
	if !httpSender.sent {
		t.writeError(w, frame.ID, mcp.NewError(mcp.KindInternal, "no response generated"))
	}
}

// handleSamplingResponse resolves a pending sampling/createMessage request
// with the client's reply. Requests are minted with a string uuid, so a
// non-string id, a result that doesn't decode, or an id nothing is
// waiting on all report false: per spec.md §4.2 item 3, the caller must
// then surface InvalidRequest rather than silently accept the frame.
func (t *HTTPTransport) handleSamplingResponse(sessionID string, frame mcp.Frame) bool {
	id, ok := frame.ID.(string)
	if !ok {
		t.logger.Warn("dropping response frame with non-string id", "session_id", sessionID)
		return false
	}

	if frame.Error != nil {
		return t.manager.Correlator.Reject(id, frame.Error)
	}

	var result mcp.SamplingResult
	if err := json.Unmarshal(frame.Result, &result); err != nil {
		t.logger.Warn("failed to decode sampling response", "session_id", sessionID, "id", id, "error", err)
		return false
	}
	return t.manager.Correlator.Resolve(id, result)
}

func (t *HTTPTransport) handleSSERequest(ctx context.Context, srv *server.Server, sess *mcp.Session, w http.ResponseWriter, r *http.Request, frame mcp.Frame) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentTypeSSE)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writer := &sseWriter{w: w, flusher: flusher}
	// This is a single request's SSE-streamed reply, not the session's
	// long-lived stream, so the disconnect channel AttachStream hands back
	// has no outstanding GET to signal here; handleGet is what selects on it.
	ring, _, _ := t.manager.AttachStream(sess.ID, writer)
	writer.ring = ring
	sess.SetSender(writer)

	srv.HandleMessage(ctx, sess, frame)
}

func (t *HTTPTransport) handleGet(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(headerMCPSessionID)
	if sessionID == "" {
		http.Error(w, "Mcp-Session-Id header is required", http.StatusBadRequest)
		return
	}
	sess, ok := t.manager.Get(sessionID)
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentTypeSSE)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writer := &sseWriter{w: w, flusher: flusher}
	ring, disconnect, _ := t.manager.AttachStream(sessionID, writer)
	writer.ring = ring
	sess.SetSender(writer)

	if lastEventID, err := strconv.ParseUint(r.Header.Get(headerLastEventID), 10, 64); err == nil {
		events, gap := ring.Since(lastEventID)
		if gap {
			t.logger.Warn("SSE replay gap: requested id older than retained buffer", "session_id", sessionID, "last_event_id", lastEventID)
		}
		for _, ev := range events {
			writer.writeRaw(ev.ID, ev.Data)
		}
	}

	// spec.md §4.5 and §8 scenario 6: a stream that is displaced by a
	// newer GET or torn down by idle eviction/DELETE must observe a
	// disconnect event rather than hang open forever. Only a naturally
	// closing connection (the client went away, ctx.Done fires first)
	// calls DetachStream; a displaced/evicted entry has already moved on
	// and must not have its replacement torn down from under it.
	select {
	case <-ctx.Done():
		t.manager.DetachStream(sessionID)
	case <-disconnect:
		writer.writeEvent("disconnect", []byte(`{"reason":"superseded"}`))
	}
}

func (t *HTTPTransport) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(headerMCPSessionID)
	if sessionID == "" {
		http.Error(w, "Mcp-Session-Id header is required", http.StatusBadRequest)
		return
	}
	t.manager.Delete(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// resolveSession looks up an existing session by id, or mints a new one
// when method is "initialize" and no id was supplied.
func (t *HTTPTransport) resolveSession(sessionID, method string) (sess *mcp.Session, isNew bool) {
	if sessionID != "" {
		sess, ok := t.manager.Get(sessionID)
		if !ok {
			return nil, false
		}
		return sess, false
	}
	if method != "initialize" {
		return nil, false
	}
	id := uuid.NewString()
	return t.manager.Create(id, mcp.RequestContext{}), true
}

func (t *HTTPTransport) buildRequestContext(r *http.Request, method string) mcp.RequestContext {
	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}
	params := make(map[string]string, len(r.URL.Query()))
	for k := range r.URL.Query() {
		params[k] = r.URL.Query().Get(k)
	}
	meta := map[string]string{"remote_addr": r.RemoteAddr}
	return mcp.NewRequestContext("http", r.URL.Path, method, headers, params, meta)
}

func (t *HTTPTransport) writeError(w http.ResponseWriter, id any, mcpErr *mcp.Error) {
	resp := mcp.Response{JSONRPC: mcp.JSONRPCVersion, ID: id, Error: mcpErr}
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(resp)
}

// httpResponseSender writes a single JSON response body for a plain
// (non-streaming) POST. SendNotification/SendRequest have nothing to push
// to on a one-shot response writer, so they report an error rather than
// silently dropping the message.
type httpResponseSender struct {
	writer http.ResponseWriter
	sent   bool
	mu     sync.Mutex
}

func (h *httpResponseSender) SendResponse(response mcp.Response) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sent {
		return fmt.Errorf("response already sent")
	}
	h.writer.Header().Set("Content-Type", contentTypeJSON)
	h.writer.WriteHeader(http.StatusOK)
	err := json.NewEncoder(h.writer).Encode(response)
	h.sent = true
	return err
}

func (h *httpResponseSender) SendNotification(n mcp.Notification) error {
	return fmt.Errorf("cannot push a notification over a one-shot JSON response")
}

func (h *httpResponseSender) SendRequest(req mcp.Request) error {
	return fmt.Errorf("cannot push a server-initiated request over a one-shot JSON response")
}

// sseWriter implements mcp.ResponseSender over a server-sent-events
// stream, buffering every event it writes onto the session's replay Ring.
type sseWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	ring    *session.Ring
	closed  bool
}

func (s *sseWriter) SendResponse(response mcp.Response) error { return s.send(response) }
func (s *sseWriter) SendNotification(n mcp.Notification) error { return s.send(n) }
func (s *sseWriter) SendRequest(req mcp.Request) error          { return s.send(req) }

func (s *sseWriter) send(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ev := s.ring.Append(payload)
	return s.writeRaw(ev.ID, payload)
}

func (s *sseWriter) writeRaw(id uint64, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream closed")
	}
	fmt.Fprintf(s.w, "id: %d\n", id)
	for _, line := range strings.Split(string(payload), "\n") {
		fmt.Fprintf(s.w, "data: %s\n", line)
	}
	fmt.Fprint(s.w, "\n")
	s.flusher.Flush()
	return nil
}

// writeEvent writes a named SSE event (e.g. "disconnect"), bypassing the
// replay ring: these are transport-lifecycle signals, not JSON-RPC
// messages a reconnecting client should replay.
func (s *sseWriter) writeEvent(event string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream closed")
	}
	fmt.Fprintf(s.w, "event: %s\n", event)
	for _, line := range strings.Split(string(payload), "\n") {
		fmt.Fprintf(s.w, "data: %s\n", line)
	}
	fmt.Fprint(s.w, "\n")
	s.flusher.Flush()
	return nil
}

func (t *HTTPTransport) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Last-Event-ID, Mcp-Session-Id, MCP-Protocol-Version, Authorization, X-API-Key")
		w.Header().Set("Access-Control-Allow-Credentials", "false")
		w.Header().Set("Access-Control-Max-Age", "86400")
		w.Header().Set("Access-Control-Expose-Headers", "Mcp-Session-Id, MCP-Protocol-Version")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (t *HTTPTransport) securityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		next.ServeHTTP(w, r)
	})
}

func (t *HTTPTransport) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", contentTypeHTML)
	w.WriteHeader(http.StatusOK)

	activeSessions := t.manager.Count()

	html := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>MCP Server</title>
    <style>
        * { box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            margin: 0;
            padding: 0;
            background: #f8f9fa;
            color: #2c3e50;
            line-height: 1.6;
        }
        .container { max-width: 600px; margin: 0 auto; padding: 3rem 2rem; }
        .header { text-align: center; margin-bottom: 3rem; }
        .header h1 { margin: 0 0 0.5rem 0; font-size: 2rem; font-weight: 300; color: #2c3e50; }
        .header p { margin: 0; color: #6c757d; font-size: 1rem; }
        .status {
            background: #d1ecf1; color: #0c5460; padding: 1rem 1.5rem;
            border-radius: 6px; margin-bottom: 2rem; text-align: center; font-weight: 500;
        }
        .info { background: white; border-radius: 6px; padding: 1.5rem; margin-bottom: 2rem; box-shadow: 0 1px 3px rgba(0,0,0,0.1); }
        .info-row { display: flex; justify-content: space-between; padding: 0.5rem 0; border-bottom: 1px solid #e9ecef; }
        .info-row:last-child { border-bottom: none; }
        .label { color: #6c757d; }
        .value { font-family: 'Monaco', 'Consolas', monospace; color: #2c3e50; font-size: 0.9rem; }
        .endpoints { background: white; border-radius: 6px; padding: 1.5rem; box-shadow: 0 1px 3px rgba(0,0,0,0.1); }
        .endpoints h3 { margin: 0 0 1rem 0; font-size: 1.1rem; color: #2c3e50; }
        .endpoint {
            display: flex; justify-content: space-between; align-items: center; padding: 0.75rem 0;
            border-bottom: 1px solid #e9ecef; font-family: 'Monaco', 'Consolas', monospace; font-size: 0.9rem;
        }
        .endpoint:last-child { border-bottom: none; }
        .method { background: #007bff; color: white; padding: 0.2rem 0.5rem; border-radius: 3px; font-size: 0.75rem; font-weight: bold; margin-right: 0.5rem; }
        .footer { text-align: center; margin-top: 2rem; padding-top: 2rem; border-top: 1px solid #e9ecef; color: #6c757d; font-size: 0.9rem; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>MCP Server</h1>
            <p>Model Context Protocol</p>
        </div>
        <div class="status">Running on port %d</div>
        <div class="info">
            <div class="info-row"><span class="label">Protocol</span><span class="value">%s</span></div>
            <div class="info-row"><span class="label">Transport</span><span class="value">HTTP + SSE</span></div>
            <div class="info-row"><span class="label">Active Sessions</span><span class="value">%d</span></div>
        </div>
        <div class="endpoints">
            <h3>Endpoints</h3>
            <div class="endpoint"><div><span class="method">POST</span>/mcp</div><span>JSON-RPC 2.0</span></div>
            <div class="endpoint"><div><span class="method">GET</span>/mcp</div><span>Server-Sent Events</span></div>
            <div class="endpoint"><div><span class="method">DELETE</span>/mcp</div><span>Session termination</span></div>
            <div class="endpoint"><div><span class="method">GET</span>/health</div><span>Health Check</span></div>
        </div>
        <div class="footer">mcp-core</div>
    </div>
</body>
</html>`

	fmt.Fprintf(w, html, t.port, mcp.ProtocolVersion, activeSessions)
}
