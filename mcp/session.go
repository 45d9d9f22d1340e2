package mcp

import (
	"context"
	"fmt"
	"sync"
)

// ErrSamplingUnsupported is returned by Session.Sample when the owning
// transport has no SamplingSink attached. The stdio transport is
// single-threaded cooperative (spec.md §5) and never attaches one: a
// server-initiated request multiplexed over the same stream a handler is
// blocked inside of would deadlock the sole reader goroutine.
var ErrSamplingUnsupported = NewError(KindServer, "sampling is not supported on this transport")

// Session holds per-client state: initialization status, the negotiated
// protocol version, the RequestContext the client's messages arrive with,
// and the handle needed to reply via the owning transport.
//
// Session is safe for concurrent use: the initialization flag and
// negotiated state are guarded by a mutex since HTTP sessions may be
// touched by multiple request goroutines.
type Session struct {
	ID string

	mu              sync.RWMutex
	initialized     bool
	protocolVersion string
	clientInfo      ClientInfo
	clientCaps      map[string]any

	reqCtx      RequestContext
	sender      ResponseSender
	samplingSink SamplingSink

	security any // set by the security middleware; typed by package security.
}

// NewSession creates a Session bound to the given RequestContext and
// ResponseSender. The sampling sink may be nil (stdio transports never
// supply one).
func NewSession(id string, reqCtx RequestContext, sender ResponseSender, sink SamplingSink) *Session {
	return &Session{
		ID:           id,
		reqCtx:       reqCtx,
		sender:       sender,
		samplingSink: sink,
	}
}

// IsInitialized reports whether the "initialized" notification has arrived.
func (s *Session) IsInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// MarkHandshakeComplete records the client's negotiated protocol version and
// info from a successful initialize call, without yet flipping Initialized
// (that happens on receipt of the "initialized" notification, per spec.md's
// Session invariant).
func (s *Session) MarkHandshakeComplete(protocolVersion string, clientInfo ClientInfo, caps map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.protocolVersion = protocolVersion
	s.clientInfo = clientInfo
	s.clientCaps = caps
}

// MarkInitialized sets the initialized flag. Called on receipt of the
// "initialized" notification.
func (s *Session) MarkInitialized() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = true
}

// ProtocolVersion returns the negotiated protocol version, if any.
func (s *Session) ProtocolVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.protocolVersion
}

// ClientInfo returns the client info captured during initialize.
func (s *Session) ClientInfo() ClientInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientInfo
}

// RequestContext returns the transport metadata most recently attached to
// this session.
func (s *Session) RequestContext() RequestContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reqCtx
}

// WithRequestContext returns a shallow copy of the session bound to a new
// RequestContext. HTTP sessions get a fresh RequestContext per inbound POST
// (new headers/params) while keeping the same session identity and state.
func (s *Session) WithRequestContext(rc RequestContext) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := &Session{
		ID:              s.ID,
		initialized:     s.initialized,
		protocolVersion: s.protocolVersion,
		clientInfo:      s.clientInfo,
		clientCaps:      s.clientCaps,
		reqCtx:          rc,
		sender:          s.sender,
		samplingSink:    s.samplingSink,
		security:        s.security,
	}
	return cp
}

// SetRequestContext replaces the session's RequestContext in place. HTTP
// sessions call this on every inbound POST, since headers/query params can
// legitimately differ call to call while the session identity persists.
func (s *Session) SetRequestContext(rc RequestContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqCtx = rc
}

// Sender returns the ResponseSender this session replies through.
func (s *Session) Sender() ResponseSender { return s.sender }

// SetSender replaces the ResponseSender, e.g. when an HTTP POST's response
// must be redirected onto an already-open SSE stream.
func (s *Session) SetSender(sender ResponseSender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sender = sender
}

// SetSamplingSink attaches (or clears) the sampling correlator for this
// session. Called by the HTTP session manager once a streaming GET
// connects.
func (s *Session) SetSamplingSink(sink SamplingSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samplingSink = sink
}

// HasSamplingSink reports whether a sampling sink is currently attached.
// The dispatcher uses this to decide whether an id-only response frame
// could plausibly correlate to an outbound sampling request, or is simply
// unroutable (always the case on stdio, which never attaches a sink).
func (s *Session) HasSamplingSink() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.samplingSink != nil
}

// SecurityContext returns the opaque security context attached by the
// security middleware, if any.
func (s *Session) SecurityContext() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.security
}

// SetSecurityContext attaches the security context computed by the
// authentication stage.
func (s *Session) SetSecurityContext(sec any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.security = sec
}

// Sample validates params structurally (spec.md §4.7 item 1) and, if a
// sampling sink is attached, forwards the server-initiated request to the
// client and blocks until the correlator resolves it, times out, or is
// cancelled.
func (s *Session) Sample(ctx context.Context, params SamplingParams) (SamplingResult, error) {
	s.mu.RLock()
	sink := s.samplingSink
	s.mu.RUnlock()

	if sink == nil {
		return SamplingResult{}, ErrSamplingUnsupported
	}
	if err := ValidateSamplingParams(params); err != nil {
		return SamplingResult{}, err
	}
	return sink.CreateMessage(ctx, params)
}

// ValidateSamplingParams applies the structural checks spec.md §4.7 item 1
// requires before a sampling request is allowed to go out.
func ValidateSamplingParams(params SamplingParams) error {
	if len(params.Messages) == 0 {
		return Errorf(KindInvalidParams, "sampling params must include at least one message")
	}
	for i, m := range params.Messages {
		if m.Role != "user" && m.Role != "assistant" {
			return Errorf(KindInvalidParams, "sampling message %d: role must be \"user\" or \"assistant\", got %q", i, m.Role)
		}
		switch m.Content.Type {
		case "text":
			if m.Content.Text == "" {
				return Errorf(KindInvalidParams, "sampling message %d: text content must be non-empty", i)
			}
		case "image":
			if m.Content.Data == "" || m.Content.MimeType == "" {
				return Errorf(KindInvalidParams, "sampling message %d: image content requires data and mimeType", i)
			}
		default:
			return Errorf(KindInvalidParams, "sampling message %d: unsupported content type %q", i, m.Content.Type)
		}
	}
	switch params.IncludeContext {
	case "", IncludeContextNone, IncludeContextThisServer, IncludeContextAllServers:
	default:
		return Errorf(KindInvalidParams, "include_context must be one of none, thisServer, allServers; got %q", params.IncludeContext)
	}
	if params.MaxTokens != nil && *params.MaxTokens <= 0 {
		return Errorf(KindInvalidParams, "max_tokens must be positive")
	}
	return nil
}

// String implements fmt.Stringer for debugging/log contexts.
func (s *Session) String() string {
	return fmt.Sprintf("Session{id=%s, initialized=%v}", s.ID, s.IsInitialized())
}

// sessionFromContext retrieves the *Session a handler is executing under.
func sessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(SessionKey).(*Session)
	return s, ok
}

// SessionFromContext retrieves the *Session a handler is executing under.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	return sessionFromContext(ctx)
}

// WithSession returns a context carrying the given session.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, SessionKey, s)
}
