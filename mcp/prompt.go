package mcp

import (
	"context"
	"encoding/json"
	"fmt"
)

// PromptHandlerFunc is the closure a registered Prompt invokes when
// expanded. It returns a raw value (typically a map or *PromptResponse);
// ValidatePromptResponse checks its shape structurally rather than relying
// solely on the Go type system, since handlers are free to hand back a
// plain map[string]any.
type PromptHandlerFunc func(ctx context.Context, session *Session, arguments map[string]any) (any, error)

// Prompt represents a template for generating structured LLM interactions.
//
// Prompts help standardize common use cases by providing templates that can
// be customized with arguments. They generate messages ready for use with
// language models. A mutable list-changed flag is tracked by the registry,
// not on this value, since Prompt itself is immutable once registered.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`

	// Handler is never serialized; it is the closure the dispatcher invokes.
	Handler PromptHandlerFunc `json:"-"`
}

// PromptArgument defines a parameter that can be passed to a prompt.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required,omitempty"`
}

// PromptParams contains the parameters for generating a prompt.
type PromptParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// PromptResponse contains the generated prompt messages. Handlers may
// return this type directly, or an equivalently-shaped map[string]any;
// both pass the dispatcher's structural validation.
type PromptResponse struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// PromptMessage represents a single message in a generated prompt.
type PromptMessage struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

// MessageContent contains the actual content of a prompt message.
type MessageContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ValidatePromptArguments checks args against a prompt's declared
// arguments per spec.md §4.2.4: a missing required argument or an
// argument the prompt never declared fails with InvalidParams, reporting
// every offending name in Data["details"] (mirrors ValidateToolArguments).
func ValidatePromptArguments(declared []PromptArgument, args map[string]any) *Error {
	var details []string

	known := make(map[string]bool, len(declared))
	for _, a := range declared {
		known[a.Name] = true
		if a.Required {
			if _, ok := args[a.Name]; !ok {
				details = append(details, fmt.Sprintf("missing required argument %q", a.Name))
			}
		}
	}
	for name := range args {
		if !known[name] {
			details = append(details, fmt.Sprintf("unknown argument %q", name))
		}
	}

	if len(details) == 0 {
		return nil
	}
	return Errorf(KindInvalidParams, "invalid prompt arguments").WithData(map[string]any{"details": details})
}

// ValidatePromptResponse checks a prompt handler's return value against
// spec.md §4.2.4's structural requirements: at least one message, each
// with a non-empty role and content.type. Handlers may return a
// *PromptResponse or an equivalently-shaped map[string]any, so this
// round-trips the value through JSON rather than relying on a type
// assertion.
func ValidatePromptResponse(result any) (PromptResponse, error) {
	var resp PromptResponse

	raw, err := json.Marshal(result)
	if err != nil {
		return resp, fmt.Errorf("prompt response does not marshal: %w", err)
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return resp, fmt.Errorf("prompt response has unexpected shape: %w", err)
	}
	if len(resp.Messages) == 0 {
		return resp, fmt.Errorf("prompt response must include at least one message")
	}
	for i, m := range resp.Messages {
		if m.Role == "" {
			return resp, fmt.Errorf("prompt response message %d: role must not be empty", i)
		}
		if m.Content.Type == "" {
			return resp, fmt.Errorf("prompt response message %d: content.type must not be empty", i)
		}
	}
	return resp, nil
}
