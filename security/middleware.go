package security

import (
	"time"

	"github.com/cbrgm/mcp-core/mcp"
)

// Middleware composes authentication and authorization into the single
// `check(requestContext, action, target) -> securityContext | error`
// operation spec.md §4.3 defines. The dispatcher calls Check for
// tools/call, resources/read, and prompts/get with the requested name or
// URI as target, before that target is looked up in the registry (so an
// unknown name is still subject to the check), and once per */list call
// with action=list and an empty target.
type Middleware struct {
	AuthEnabled     bool
	DefaultStrategy string
	strategies      map[string]Strategy

	Authz *AuthorizationManager
}

// NewMiddleware builds a Middleware with authentication disabled and
// authorization disabled; call RegisterStrategy and set AuthEnabled /
// Authz.Enabled = true to turn them on.
func NewMiddleware() *Middleware {
	return &Middleware{
		strategies: make(map[string]Strategy),
		Authz:      NewAuthorizationManager(false),
	}
}

// RegisterStrategy adds an authentication strategy, keyed by its Name().
// The first strategy registered becomes the default unless DefaultStrategy
// is set explicitly.
func (m *Middleware) RegisterStrategy(s Strategy) {
	m.strategies[s.Name()] = s
	if m.DefaultStrategy == "" {
		m.DefaultStrategy = s.Name()
	}
}

// authenticate runs the configured strategy (or, absent authentication
// being enabled, synthesizes an anonymous context) against rc.
func (m *Middleware) authenticate(rc mcp.RequestContext) (*Context, *mcp.Error) {
	if !m.AuthEnabled {
		return anonymousContext(), nil
	}

	strategy, ok := m.strategies[m.DefaultStrategy]
	if !ok {
		return nil, mcp.Errorf(mcp.KindAuthenticationRequired, "no authentication strategy configured").
			WithData(map[string]any{"kind": "no_strategy"})
	}

	identity, ok := strategy.Authenticate(rc)
	if !ok {
		return nil, mcp.Errorf(mcp.KindAuthenticationRequired, "authentication required").
			WithData(map[string]any{"kind": "authentication_failed", "strategy": strategy.Name()})
	}

	return &Context{
		Identity:  identity,
		Strategy:  strategy.Name(),
		Timestamp: time.Now(),
	}, nil
}

// Check runs authentication followed by authorization for a single action
// against a target entity of the given class.
func (m *Middleware) Check(rc mcp.RequestContext, class EntityClass, action Action, target string) (*Context, *mcp.Error) {
	secCtx, err := m.authenticate(rc)
	if err != nil {
		return nil, err
	}

	if !m.Authz.Check(secCtx, class, action, target) {
		return nil, mcp.Errorf(mcp.KindAuthorizationFailed, "authorization failed").
			WithData(map[string]any{"kind": "authorization_denied"})
	}

	return secCtx, nil
}
