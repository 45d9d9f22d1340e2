package mcp

import "context"

// SamplingContent is one content block of a sampling message (spec.md §4.7:
// only "text" and "image" types are valid on the way to the client).
type SamplingContent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// SamplingMessage is one message in a sampling request.
type SamplingMessage struct {
	Role    string          `json:"role"`
	Content SamplingContent `json:"content"`
}

// IncludeContext enumerates the values the "includeContext" sampling field accepts.
const (
	IncludeContextNone       = "none"
	IncludeContextThisServer = "thisServer"
	IncludeContextAllServers = "allServers"
)

// SamplingParams is the caller-facing (snake_case, handler-friendly) shape
// passed to Session.Sample. The wire shape sent to the client is camelCase
// and is produced internally from this value.
type SamplingParams struct {
	Messages         []SamplingMessage `json:"messages"`
	ModelPreferences map[string]any    `json:"model_preferences,omitempty"`
	SystemPrompt     string            `json:"system_prompt,omitempty"`
	IncludeContext   string            `json:"include_context,omitempty"`
	Temperature      *float64          `json:"temperature,omitempty"`
	MaxTokens        *int              `json:"max_tokens,omitempty"`
	StopSequences    []string          `json:"stop_sequences,omitempty"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
}

// SamplingResult is the client's reply to a sampling/createMessage request.
type SamplingResult struct {
	Role       string          `json:"role"`
	Content    SamplingContent `json:"content"`
	Model      string          `json:"model,omitempty"`
	StopReason string          `json:"stopReason,omitempty"`
}

// SamplingSink is implemented by the component (owned by the HTTP session
// manager, or absent on stdio) that can push a server-initiated
// "sampling/createMessage" request to the client and correlate the
// asynchronous response. Defined here, rather than in package sampling, so
// that Session can hold a reference without creating an import cycle.
type SamplingSink interface {
	CreateMessage(ctx context.Context, params SamplingParams) (SamplingResult, error)
}
