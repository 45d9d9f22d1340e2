// Package server implements the MCP dispatch engine: the method registry,
// the request/notification router, and the built-in protocol handlers
// (initialize, ping, tools/resources/prompts/roots list and invoke).
//
// Grounded on cbrgm-go-mcp-server/server/server.go, generalized from a
// fixed `ToolHandler`/`ResourceHandler`/`PromptHandler` interface trio to
// the closure-based `register_tool`/`register_resource`/`register_prompt`
// contract spec.md §3 and §4.1 describe.
package server

import (
	"fmt"
	"sync"

	"github.com/cbrgm/mcp-core/mcp"
)

// changeKind names which collection changed, matching the MCP
// notification method suffix (notifications/{kind}/list_changed).
type changeKind string

const (
	changeTools     changeKind = "tools"
	changeResources changeKind = "resources"
	changePrompts   changeKind = "prompts"
	changeRoots     changeKind = "roots"
)

// Registry holds every tool, resource, prompt, and root registered with
// the server. Registration is idempotent-on-failure: a duplicate name is
// rejected and the existing entry is left untouched, rather than silently
// replaced.
type Registry struct {
	mu sync.RWMutex

	tools     map[string]mcp.Tool
	resources map[string]mcp.Resource
	prompts   map[string]mcp.Prompt
	roots     map[string]mcp.Root

	// promptsChanged tracks whether the prompt collection has been
	// mutated since the last ListPrompts call, per spec.md §4.2.1 and
	// §4.2.5: unlike tools/resources (whose listChanged advertisement is
	// a static function of whether any are registered), prompts.listChanged
	// is real mutable state: register/remove sets it, list clears it.
	promptsChanged bool

	onChange func(kind changeKind)
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:     make(map[string]mcp.Tool),
		resources: make(map[string]mcp.Resource),
		prompts:   make(map[string]mcp.Prompt),
		roots:     make(map[string]mcp.Root),
	}
}

// SetOnChange installs the callback invoked after a successful
// registration or removal, so the transport can fan out a
// `notifications/{kind}/list_changed` message to its connected sessions.
func (r *Registry) SetOnChange(fn func(kind string)) {
	if fn == nil {
		r.onChange = nil
		return
	}
	r.onChange = func(kind changeKind) { fn(string(kind)) }
}

func (r *Registry) notify(kind changeKind) {
	if r.onChange != nil {
		r.onChange(kind)
	}
}

// RegisterTool adds t to the registry under t.Name. It fails if the name
// is empty, no handler is attached, or the name is already taken.
func (r *Registry) RegisterTool(t mcp.Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name must not be empty")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %q: handler must not be nil", t.Name)
	}

	r.mu.Lock()
	if _, exists := r.tools[t.Name]; exists {
		r.mu.Unlock()
		return fmt.Errorf("tool %q is already registered", t.Name)
	}
	r.tools[t.Name] = t
	r.mu.Unlock()

	r.notify(changeTools)
	return nil
}

// RemoveTool deletes a tool by name and reports whether it existed.
func (r *Registry) RemoveTool(name string) bool {
	r.mu.Lock()
	_, ok := r.tools[name]
	delete(r.tools, name)
	r.mu.Unlock()
	if ok {
		r.notify(changeTools)
	}
	return ok
}

// GetTool looks up a tool by name.
func (r *Registry) GetTool(name string) (mcp.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// ListTools returns every registered tool.
func (r *Registry) ListTools() []mcp.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mcp.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// ToolCount reports how many tools are registered, for capability
// advertisement (spec.md §4.2.1: tools.listChanged is false once any tool
// is registered, true for an empty registry).
func (r *Registry) ToolCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// RegisterResource adds a resource under its URI.
func (r *Registry) RegisterResource(res mcp.Resource) error {
	if res.URI == "" {
		return fmt.Errorf("resource URI must not be empty")
	}
	if res.Handler == nil {
		return fmt.Errorf("resource %q: handler must not be nil", res.URI)
	}

	r.mu.Lock()
	if _, exists := r.resources[res.URI]; exists {
		r.mu.Unlock()
		return fmt.Errorf("resource %q is already registered", res.URI)
	}
	r.resources[res.URI] = res
	r.mu.Unlock()

	r.notify(changeResources)
	return nil
}

// RemoveResource deletes a resource by URI and reports whether it existed.
func (r *Registry) RemoveResource(uri string) bool {
	r.mu.Lock()
	_, ok := r.resources[uri]
	delete(r.resources, uri)
	r.mu.Unlock()
	if ok {
		r.notify(changeResources)
	}
	return ok
}

// GetResource looks up a resource by URI.
func (r *Registry) GetResource(uri string) (mcp.Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resources[uri]
	return res, ok
}

// ListResources returns every registered resource.
func (r *Registry) ListResources() []mcp.Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mcp.Resource, 0, len(r.resources))
	for _, res := range r.resources {
		out = append(out, res)
	}
	return out
}

// ResourceCount reports how many resources are registered, for capability
// advertisement (spec.md §4.2.1).
func (r *Registry) ResourceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.resources)
}

// RegisterPrompt adds a prompt under its name.
func (r *Registry) RegisterPrompt(p mcp.Prompt) error {
	if p.Name == "" {
		return fmt.Errorf("prompt name must not be empty")
	}
	if p.Handler == nil {
		return fmt.Errorf("prompt %q: handler must not be nil", p.Name)
	}

	r.mu.Lock()
	if _, exists := r.prompts[p.Name]; exists {
		r.mu.Unlock()
		return fmt.Errorf("prompt %q is already registered", p.Name)
	}
	r.prompts[p.Name] = p
	r.promptsChanged = true
	r.mu.Unlock()

	r.notify(changePrompts)
	return nil
}

// RemovePrompt deletes a prompt by name and reports whether it existed.
func (r *Registry) RemovePrompt(name string) bool {
	r.mu.Lock()
	_, ok := r.prompts[name]
	delete(r.prompts, name)
	if ok {
		r.promptsChanged = true
	}
	r.mu.Unlock()
	if ok {
		r.notify(changePrompts)
	}
	return ok
}

// GetPrompt looks up a prompt by name.
func (r *Registry) GetPrompt(name string) (mcp.Prompt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.prompts[name]
	return p, ok
}

// ListPrompts returns every registered prompt. Per spec.md §4.2.5, calling
// this clears the pending prompts.listChanged flag: the client is assumed
// to have just refreshed its view.
func (r *Registry) ListPrompts() []mcp.Prompt {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.promptsChanged = false
	out := make([]mcp.Prompt, 0, len(r.prompts))
	for _, p := range r.prompts {
		out = append(out, p)
	}
	return out
}

// PromptsListChanged reports whether the prompt collection has been
// mutated since the last ListPrompts call.
func (r *Registry) PromptsListChanged() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.promptsChanged
}

// RegisterRoot adds a root under its URI.
func (r *Registry) RegisterRoot(root mcp.Root) error {
	if root.URI == "" {
		return fmt.Errorf("root URI must not be empty")
	}

	r.mu.Lock()
	if _, exists := r.roots[root.URI]; exists {
		r.mu.Unlock()
		return fmt.Errorf("root %q is already registered", root.URI)
	}
	r.roots[root.URI] = root
	r.mu.Unlock()

	r.notify(changeRoots)
	return nil
}

// RemoveRoot deletes a root by URI and reports whether it existed.
func (r *Registry) RemoveRoot(uri string) bool {
	r.mu.Lock()
	_, ok := r.roots[uri]
	delete(r.roots, uri)
	r.mu.Unlock()
	if ok {
		r.notify(changeRoots)
	}
	return ok
}

// ListRoots returns every registered root.
func (r *Registry) ListRoots() []mcp.Root {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mcp.Root, 0, len(r.roots))
	for _, root := range r.roots {
		out = append(out, root)
	}
	return out
}
