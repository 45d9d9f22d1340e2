package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/cbrgm/mcp-core/mcp"
	"github.com/cbrgm/mcp-core/sampling"
)

// entry is the bookkeeping the Manager keeps per HTTP session, mirroring
// the fields cbrgm-go-mcp-server/transport/http.go's SSESession held
// (an event counter and a live writer) plus the replay buffer and
// correlator wiring spec.md §4.7/§5.2 add on top.
type entry struct {
	session      *mcp.Session
	ring         *Ring
	streamSender mcp.ResponseSender
	lastSeen     time.Time

	// disconnect is closed when an outstanding streaming GET must observe
	// a disconnect event: the stream was displaced by a newer GET, the
	// session was idle-evicted, or it was explicitly deleted (spec.md
	// §4.5, §8 scenario 6). disconnectOnce guards against a double close
	// when eviction and displacement race. Both are replaced wholesale
	// whenever a fresh stream attaches, so a displaced handler's select
	// only ever observes its own generation's channel.
	disconnect     chan struct{}
	disconnectOnce *sync.Once
}

func (e *entry) signalDisconnect() {
	e.disconnectOnce.Do(func() { close(e.disconnect) })
}

// Manager owns the set of live HTTP sessions: creation, lookup, idle
// eviction, and the single outbound correlator shared by every session's
// sampling requests.
//
// Grounded on cbrgm-go-mcp-server/transport/http.go's
// `sessions map[string]*SSESession` guarded by a mutex; generalized here
// into its own type so transport/http.go can delegate session lifecycle
// instead of owning it directly.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry

	idleTimeout  time.Duration
	ringCapacity int

	Correlator *sampling.Correlator

	logger *slog.Logger
}

// NewManager builds a Manager. idleTimeout is how long a session may go
// without a touch before Evict removes it; ringCapacity bounds the SSE
// replay buffer per session; samplingTimeout bounds how long a
// sampling/createMessage request waits for a client reply.
func NewManager(idleTimeout time.Duration, ringCapacity int, samplingTimeout time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		entries:      make(map[string]*entry),
		idleTimeout:  idleTimeout,
		ringCapacity: ringCapacity,
		logger:       logger,
	}
	m.Correlator = sampling.NewCorrelator(m.push, samplingTimeout)
	return m
}

// Create registers a brand-new session bound to id and reqCtx.
func (m *Manager) Create(id string, reqCtx mcp.RequestContext) *mcp.Session {
	sess := mcp.NewSession(id, reqCtx, nil, nil)

	m.mu.Lock()
	m.entries[id] = &entry{
		session:        sess,
		ring:           NewRing(m.ringCapacity),
		lastSeen:       time.Now(),
		disconnect:     make(chan struct{}),
		disconnectOnce: &sync.Once{},
	}
	m.mu.Unlock()

	return sess
}

// Get looks up a session by id and reports whether it is still live.
func (m *Manager) Get(id string) (*mcp.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Touch refreshes the session's idle deadline. Call on every inbound
// POST/GET for the session.
func (m *Manager) Touch(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[id]; ok {
		e.lastSeen = time.Now()
	}
}

// AttachStream binds sender as the session's persistent SSE writer and
// wires its sampling sink to the shared correlator. Returns the session's
// replay ring and a disconnect channel the caller must select on
// alongside its own request context: if a later GET displaces this one,
// or the session is evicted/deleted, the channel is closed so the
// outstanding connection can emit a disconnect event and return instead
// of hanging open forever (spec.md §4.5, §8 scenario 6).
func (m *Manager) AttachStream(id string, sender mcp.ResponseSender) (*Ring, <-chan struct{}, bool) {
	m.mu.Lock()
	e, ok := m.entries[id]
	if ok {
		if e.streamSender != nil {
			e.signalDisconnect()
		}
		e.streamSender = sender
		e.disconnect = make(chan struct{})
		e.disconnectOnce = &sync.Once{}
	}
	m.mu.Unlock()
	if !ok {
		return nil, nil, false
	}

	e.session.SetSamplingSink(&sampling.SessionSink{Correlator: m.Correlator, SessionID: id})
	return e.ring, e.disconnect, true
}

// DetachStream clears the session's streaming writer (the GET connection
// closed on its own, not via displacement or eviction) and cancels any
// sampling requests still awaiting that stream. Callers that were
// displaced or evicted must not call this: AttachStream or Delete has
// already moved the entry on, and this would wrongly tear down the new
// state.
func (m *Manager) DetachStream(id string) {
	m.mu.Lock()
	e, ok := m.entries[id]
	if ok {
		e.streamSender = nil
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	e.session.SetSamplingSink(nil)
	m.Correlator.CancelSession(id)
}

// Delete removes a session entirely (DELETE /mcp, or idle eviction),
// signaling disconnect to any stream still attached.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	e, ok := m.entries[id]
	delete(m.entries, id)
	m.mu.Unlock()
	if ok {
		e.signalDisconnect()
	}
	m.Correlator.CancelSession(id)
}

// push delivers a server-initiated request to the session's attached
// stream, buffering it on the replay ring first so a reconnecting client
// with a stale Last-Event-ID can still observe it. It is the
// sampling.Pusher Manager hands to its Correlator.
func (m *Manager) push(sessionID string, req mcp.Request) error {
	m.mu.RLock()
	e, ok := m.entries[sessionID]
	m.mu.RUnlock()
	if !ok {
		return mcp.Errorf(mcp.KindNotFound, "session %q not found", sessionID)
	}
	if e.streamSender == nil {
		return mcp.NewError(mcp.KindServer, "session has no active stream to push through")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return mcp.Errorf(mcp.KindInternal, "failed to marshal outbound request: %v", err)
	}
	e.ring.Append(payload)

	return e.streamSender.SendRequest(req)
}

// Evict removes every session that has been idle longer than idleTimeout,
// cancelling their pending sampling requests and signaling disconnect to
// any stream still attached along the way.
func (m *Manager) Evict() {
	cutoff := time.Now().Add(-m.idleTimeout)

	m.mu.Lock()
	var expired []*entry
	var expiredIDs []string
	for id, e := range m.entries {
		if e.lastSeen.Before(cutoff) {
			expired = append(expired, e)
			expiredIDs = append(expiredIDs, id)
		}
	}
	for _, id := range expiredIDs {
		delete(m.entries, id)
	}
	m.mu.Unlock()

	for i, id := range expiredIDs {
		expired[i].signalDisconnect()
		m.Correlator.CancelSession(id)
		m.logger.Info("session evicted for inactivity", "session_id", id)
	}
}

// Broadcast delivers notification to every connected session's stream,
// best-effort: a session with no attached stream or a failed send is
// logged and skipped rather than aborting the fan-out. Wired as
// Registry.SetOnChange's callback for the HTTP transport so a tool/
// resource/prompt/root registered after startup reaches every live
// client (spec.md §4.2.5).
func (m *Manager) Broadcast(n mcp.Notification) {
	m.mu.RLock()
	senders := make([]mcp.ResponseSender, 0, len(m.entries))
	for _, e := range m.entries {
		if e.streamSender != nil {
			senders = append(senders, e.streamSender)
		}
	}
	m.mu.RUnlock()

	for _, sender := range senders {
		if err := sender.SendNotification(n); err != nil {
			m.logger.Warn("failed to broadcast list_changed notification", "method", n.Method, "error", err)
		}
	}
}

// Run starts the idle-eviction loop, ticking at interval until ctx is
// cancelled. The HTTP transport's Start launches it with
// `go manager.Run(ctx, interval)`.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Evict()
		}
	}
}

// Count reports the number of live sessions, for status/health reporting.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
