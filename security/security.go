// Package security implements the pluggable authentication strategies and
// policy-based authorization manager spec.md §4.3 describes, composed
// behind a single Middleware.Check entrypoint the dispatcher calls before
// every tools/call, resources/read, prompts/get, and */list invocation.
//
// Authentication is grounded on JamesPrial-mcp-oauth-2.1's
// internal/transport/internal/middleware/auth.go (header extraction order,
// 401/403 split between authentication and authorization failure);
// authorization's default-allow and panic-as-deny semantics follow
// spec.md §4.3 directly.
package security

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/cbrgm/mcp-core/mcp"
)

// AnonymousIdentity is the sentinel identity attached to a Context when
// authentication is disabled.
const AnonymousIdentity = "anonymous"

// Action classifies what a caller is attempting to do with a target entity.
type Action string

const (
	ActionList Action = "list"
	ActionCall Action = "call"
	ActionRead Action = "read"
)

// EntityClass names the kind of registered entity a policy governs.
type EntityClass string

const (
	EntityTool     EntityClass = "tool"
	EntityResource EntityClass = "resource"
	EntityPrompt   EntityClass = "prompt"
	EntityRoot     EntityClass = "root"
)

// Context is the security session attached to an mcp.Session after
// successful authentication: an opaque identity descriptor, the strategy
// that produced it, a timestamp, and the set of granted permissions.
type Context struct {
	Identity    map[string]any
	Strategy    string
	Timestamp   time.Time
	Permissions map[string]bool
}

// HasPermission reports whether the security context carries the named
// permission.
func (c *Context) HasPermission(name string) bool {
	if c == nil {
		return false
	}
	return c.Permissions[name]
}

// IsAnonymous reports whether this context is the unauthenticated sentinel.
func (c *Context) IsAnonymous() bool {
	return c == nil || c.Strategy == "" || c.Identity[subjectKey] == AnonymousIdentity
}

const subjectKey = "sub"

func anonymousContext() *Context {
	return &Context{
		Identity:  map[string]any{subjectKey: AnonymousIdentity},
		Strategy:  "",
		Timestamp: time.Now(),
	}
}

// Strategy authenticates a request, producing an identity descriptor on
// success.
type Strategy interface {
	// Name identifies the strategy for error reporting and Context.Strategy.
	Name() string

	// Authenticate inspects rc and returns an identity descriptor, or ok=false
	// if this strategy could not authenticate the request.
	Authenticate(rc mcp.RequestContext) (identity map[string]any, ok bool)
}

// extractCandidateKey implements the header/query extraction order
// spec.md §4.3 mandates for the shared-key strategy: X-API-Key header,
// then Authorization: Bearer/API-Key, then query api_key/apikey.
func extractCandidateKey(rc mcp.RequestContext) (string, bool) {
	if v, ok := rc.Header("X-API-Key"); ok && v != "" {
		return v, true
	}
	if v, ok := rc.Header("Authorization"); ok && v != "" {
		for _, prefix := range []string{"Bearer ", "API-Key "} {
			if strings.HasPrefix(v, prefix) {
				if token := strings.TrimSpace(strings.TrimPrefix(v, prefix)); token != "" {
					return token, true
				}
			}
		}
	}
	for _, name := range []string{"api_key", "apikey"} {
		if v, ok := rc.Param(name); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// SharedKeyStrategy accepts a fixed set of opaque keys, compared in
// constant time to avoid a timing side channel.
type SharedKeyStrategy struct {
	Keys map[string]bool
}

// NewSharedKeyStrategy builds a SharedKeyStrategy accepting exactly the
// given keys.
func NewSharedKeyStrategy(keys ...string) *SharedKeyStrategy {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return &SharedKeyStrategy{Keys: set}
}

func (s *SharedKeyStrategy) Name() string { return "shared-key" }

func (s *SharedKeyStrategy) Authenticate(rc mcp.RequestContext) (map[string]any, bool) {
	candidate, ok := extractCandidateKey(rc)
	if !ok {
		return nil, false
	}
	for key := range s.Keys {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1 {
			return map[string]any{subjectKey: "api-key", "key": candidate}, true
		}
	}
	return nil, false
}

// FuncStrategy wraps a user-supplied predicate as a Strategy.
type FuncStrategy struct {
	StrategyName string
	Fn           func(rc mcp.RequestContext) (map[string]any, bool)
}

func (f *FuncStrategy) Name() string {
	if f.StrategyName != "" {
		return f.StrategyName
	}
	return "custom"
}

func (f *FuncStrategy) Authenticate(rc mcp.RequestContext) (map[string]any, bool) {
	return f.Fn(rc)
}
