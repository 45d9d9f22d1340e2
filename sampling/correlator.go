// Package sampling implements the server-initiated request machinery
// spec.md §4.7 describes: building, sending, and correlating outbound
// "sampling/createMessage" JSON-RPC requests to the client, with timeout
// and cancellation.
//
// The pending-outbound table follows the mutex-guarded-map-with-TTL idiom
// of JamesPrial-mcp-oauth-2.1's internal/oauth/internal/jwks/cache.go,
// adapted from caching keys to completing one-shot channels; ids are
// generated with github.com/google/uuid, the way fyrsmithlabs-contextd and
// wcollins-gridctl both mint correlation/session identifiers.
package sampling

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cbrgm/mcp-core/mcp"
)

// ErrCancelled is returned to a waiter whose entry was cancelled by session
// teardown (DELETE, idle eviction, or stream-writer replacement) rather
// than resolved by a client response or a timeout.
var ErrCancelled = mcp.NewError(mcp.KindServer, "sampling request cancelled")

type pendingEntry struct {
	sessionID string
	done      chan struct{}
	result    mcp.SamplingResult
	err       error
	once      sync.Once
}

func (p *pendingEntry) resolve(result mcp.SamplingResult, err error) bool {
	resolved := false
	p.once.Do(func() {
		p.result, p.err = result, err
		close(p.done)
		resolved = true
	})
	return resolved
}

// Pusher delivers an outbound JSON-RPC request to a session's client-facing
// channel (the HTTP streaming transport's SSE writer, concretely).
type Pusher func(sessionID string, req mcp.Request) error

// Correlator owns the pending-outbound table: one entry per in-flight
// server-initiated request, keyed by a generated id.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]*pendingEntry

	push    Pusher
	timeout time.Duration
}

// NewCorrelator builds a Correlator that delivers outbound requests via
// push and fails any request not answered within defaultTimeout.
func NewCorrelator(push Pusher, defaultTimeout time.Duration) *Correlator {
	return &Correlator{
		pending: make(map[string]*pendingEntry),
		push:    push,
		timeout: defaultTimeout,
	}
}

// CreateMessage runs one sampling request on behalf of sessionID (SessionSink
// adapts it to mcp.SamplingSink for a single session): it allocates an id, registers a pending entry, pushes the envelope, and
// blocks until the entry resolves, the caller's context is cancelled, or
// the deadline elapses.
func (c *Correlator) CreateMessage(ctx context.Context, sessionID string, params mcp.SamplingParams) (mcp.SamplingResult, error) {
	id := uuid.NewString()
	entry := &pendingEntry{sessionID: sessionID, done: make(chan struct{})}

	c.mu.Lock()
	c.pending[id] = entry
	c.mu.Unlock()

	defer c.remove(id)

	req := mcp.Request{
		JSONRPC: mcp.JSONRPCVersion,
		ID:      id,
		Method:  "sampling/createMessage",
		Params:  toWireParams(params),
	}
	if err := c.push(sessionID, req); err != nil {
		return mcp.SamplingResult{}, mcp.Errorf(mcp.KindInternal, "failed to deliver sampling request: %v", err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case <-entry.done:
		return entry.result, entry.err
	case <-timer.C:
		entry.resolve(mcp.SamplingResult{}, mcp.NewError(mcp.KindSamplingTimeout, "sampling request timed out"))
		return mcp.SamplingResult{}, mcp.NewError(mcp.KindSamplingTimeout, "sampling request timed out")
	case <-ctx.Done():
		entry.resolve(mcp.SamplingResult{}, ctx.Err())
		return mcp.SamplingResult{}, ctx.Err()
	}
}

// Resolve fulfills the pending entry for id with a client response. It
// reports whether an entry was found and resolved; a response arriving for
// an unknown or already-resolved id is a no-op, matching spec.md's
// at-most-one-fulfillment invariant.
func (c *Correlator) Resolve(id string, result mcp.SamplingResult) bool {
	c.mu.Lock()
	entry, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		return false
	}
	return entry.resolve(result, nil)
}

// Reject fulfills the pending entry for id with an error reported by the
// client instead of a result, e.g. when the client refuses a sampling
// request. Mirrors Resolve's at-most-one-fulfillment semantics.
func (c *Correlator) Reject(id string, mcpErr *mcp.Error) bool {
	c.mu.Lock()
	entry, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		return false
	}
	return entry.resolve(mcp.SamplingResult{}, mcpErr)
}

// CancelSession fails every pending entry belonging to sessionID with
// ErrCancelled. Called on session DELETE, idle eviction, and streaming
// writer replacement.
func (c *Correlator) CancelSession(sessionID string) {
	c.mu.Lock()
	var toCancel []*pendingEntry
	for _, entry := range c.pending {
		if entry.sessionID == sessionID {
			toCancel = append(toCancel, entry)
		}
	}
	c.mu.Unlock()

	for _, entry := range toCancel {
		entry.resolve(mcp.SamplingResult{}, ErrCancelled)
	}
}

// Pending reports how many requests are currently awaiting a response,
// for tests asserting the pending table drains after resolve/timeout/cancel.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Correlator) remove(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func toWireParams(params mcp.SamplingParams) map[string]any {
	messages := make([]map[string]any, len(params.Messages))
	for i, m := range params.Messages {
		content := map[string]any{"type": m.Content.Type}
		switch m.Content.Type {
		case "text":
			content["text"] = m.Content.Text
		case "image":
			content["data"] = m.Content.Data
			content["mimeType"] = m.Content.MimeType
		}
		messages[i] = map[string]any{"role": m.Role, "content": content}
	}

	wire := map[string]any{"messages": messages}
	if params.ModelPreferences != nil {
		wire["modelPreferences"] = params.ModelPreferences
	}
	if params.SystemPrompt != "" {
		wire["systemPrompt"] = params.SystemPrompt
	}
	if params.IncludeContext != "" {
		wire["includeContext"] = params.IncludeContext
	}
	if params.Temperature != nil {
		wire["temperature"] = *params.Temperature
	}
	if params.MaxTokens != nil {
		wire["maxTokens"] = *params.MaxTokens
	}
	if params.StopSequences != nil {
		wire["stopSequences"] = params.StopSequences
	}
	if params.Metadata != nil {
		wire["metadata"] = params.Metadata
	}
	return wire
}

// SessionSink adapts a Correlator to mcp.SamplingSink for one specific
// session id, so mcp.Session.Sample can call it without knowing about
// sessions in general.
type SessionSink struct {
	Correlator *Correlator
	SessionID  string
}

func (s *SessionSink) CreateMessage(ctx context.Context, params mcp.SamplingParams) (mcp.SamplingResult, error) {
	return s.Correlator.CreateMessage(ctx, s.SessionID, params)
}
