// Package handlers provides the example tool, resource, and prompt set
// registered by cmd/mcp-server at startup: enough surface to exercise
// every built-in dispatcher operation, including a sampling round-trip.
//
// Grounded on cbrgm-go-mcp-server/cmd/go-mcp-server/handlers/tea.go's
// role (a demo handler set wired into main), generalized from the three
// fixed ToolHandler/ResourceHandler/PromptHandler interfaces to closures
// registered directly against a *server.Registry.
package handlers

import (
	"context"
	"fmt"

	"github.com/cbrgm/mcp-core/mcp"
	"github.com/cbrgm/mcp-core/server"
)

const noteResourceURI = "note://welcome"

// Register wires the example tools, resources, and prompts into reg.
func Register(reg *server.Registry) error {
	if err := reg.RegisterTool(echoTool()); err != nil {
		return err
	}
	if err := reg.RegisterTool(addTool()); err != nil {
		return err
	}
	if err := reg.RegisterTool(summarizeTool()); err != nil {
		return err
	}
	if err := reg.RegisterResource(noteResource()); err != nil {
		return err
	}
	if err := reg.RegisterPrompt(greetingPrompt()); err != nil {
		return err
	}
	return nil
}

func echoTool() mcp.Tool {
	return mcp.Tool{
		Name:        "echo",
		Description: "Echo back the given message",
		InputSchema: mcp.InputSchema{
			Type: "object",
			Properties: map[string]any{
				"message": map[string]any{"type": "string"},
			},
			Required: []string{"message"},
		},
		Handler: func(ctx context.Context, sess *mcp.Session, args map[string]any) (any, error) {
			message, _ := args["message"].(string)
			return message, nil
		},
	}
}

func addTool() mcp.Tool {
	return mcp.Tool{
		Name:        "add",
		Description: "Add two integers",
		InputSchema: mcp.InputSchema{
			Type: "object",
			Properties: map[string]any{
				"a": map[string]any{"type": "integer"},
				"b": map[string]any{"type": "integer"},
			},
			Required: []string{"a", "b"},
		},
		Handler: func(ctx context.Context, sess *mcp.Session, args map[string]any) (any, error) {
			a, err := asInt(args["a"])
			if err != nil {
				return nil, fmt.Errorf("a: %w", err)
			}
			b, err := asInt(args["b"])
			if err != nil {
				return nil, fmt.Errorf("b: %w", err)
			}
			return a + b, nil
		},
	}
}

// summarizeTool demonstrates the sampling round-trip spec.md §8 scenario 4
// describes: the handler asks the client's LLM to do work on its behalf
// and blocks on the correlator until a reply arrives, times out, or the
// session is torn down.
func summarizeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "summarize",
		Description: "Ask the connected client's model to summarize the given text",
		InputSchema: mcp.InputSchema{
			Type: "object",
			Properties: map[string]any{
				"text": map[string]any{"type": "string"},
			},
			Required: []string{"text"},
		},
		Handler: func(ctx context.Context, sess *mcp.Session, args map[string]any) (any, error) {
			text, _ := args["text"].(string)
			if text == "" {
				return nil, fmt.Errorf("text must not be empty")
			}

			result, err := sess.Sample(ctx, mcp.SamplingParams{
				Messages: []mcp.SamplingMessage{
					{
						Role: "user",
						Content: mcp.SamplingContent{
							Type: "text",
							Text: "Summarize the following text in one sentence:\n\n" + text,
						},
					},
				},
				IncludeContext: mcp.IncludeContextThisServer,
			})
			if err != nil {
				return nil, err
			}
			return result, nil
		},
	}
}

func noteResource() mcp.Resource {
	return mcp.Resource{
		URI:         noteResourceURI,
		Name:        "Welcome Note",
		Description: "A short welcome note served as plain text",
		MimeType:    "text/plain",
		Handler: func(ctx context.Context, sess *mcp.Session, uri string) (any, error) {
			if uri != noteResourceURI {
				return nil, fmt.Errorf("unknown resource URI: %s", uri)
			}
			return "Welcome to the MCP server. Try the echo, add, and summarize tools.", nil
		},
	}
}

func greetingPrompt() mcp.Prompt {
	return mcp.Prompt{
		Name:        "greeting",
		Description: "Produce a friendly greeting for the given name",
		Arguments: []mcp.PromptArgument{
			{Name: "name", Description: "Who to greet", Required: true},
		},
		Handler: func(ctx context.Context, sess *mcp.Session, args map[string]any) (any, error) {
			name, _ := args["name"].(string)
			if name == "" {
				return nil, fmt.Errorf("name is required")
			}
			return mcp.PromptResponse{
				Messages: []mcp.PromptMessage{
					{
						Role:    "user",
						Content: mcp.MessageContent{Type: "text", Text: fmt.Sprintf("Say hello to %s.", name)},
					},
				},
			}, nil
		},
	}
}

func asInt(v any) (int, error) {
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, fmt.Errorf("must be an integer")
	}
}
