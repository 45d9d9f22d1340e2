package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbrgm/mcp-core/mcp"
)

func noopToolHandler(ctx context.Context, sess *mcp.Session, args map[string]any) (any, error) {
	return nil, nil
}

func TestRegisterToolRejectsEmptyNameOrNilHandler(t *testing.T) {
	r := NewRegistry()

	err := r.RegisterTool(mcp.Tool{Handler: noopToolHandler})
	assert.Error(t, err)

	err = r.RegisterTool(mcp.Tool{Name: "echo"})
	assert.Error(t, err)
}

func TestRegisterToolRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterTool(mcp.Tool{Name: "echo", Handler: noopToolHandler}))

	err := r.RegisterTool(mcp.Tool{Name: "echo", Handler: noopToolHandler})
	require.Error(t, err)

	// The original registration must survive the rejected duplicate.
	_, ok := r.GetTool("echo")
	assert.True(t, ok)
}

func TestRegisterToolNotifiesOnChange(t *testing.T) {
	r := NewRegistry()
	var changed []string
	r.SetOnChange(func(kind string) { changed = append(changed, kind) })

	require.NoError(t, r.RegisterTool(mcp.Tool{Name: "echo", Handler: noopToolHandler}))
	assert.Equal(t, []string{"tools"}, changed)
}

func TestRemoveToolReportsExistence(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.RemoveTool("missing"))

	require.NoError(t, r.RegisterTool(mcp.Tool{Name: "echo", Handler: noopToolHandler}))
	assert.True(t, r.RemoveTool("echo"))
	_, ok := r.GetTool("echo")
	assert.False(t, ok)
}

func TestListToolsReturnsEveryRegisteredTool(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterTool(mcp.Tool{Name: "a", Handler: noopToolHandler}))
	require.NoError(t, r.RegisterTool(mcp.Tool{Name: "b", Handler: noopToolHandler}))

	assert.Len(t, r.ListTools(), 2)
}

func TestRegisterResourceRejectsEmptyURIOrNilHandler(t *testing.T) {
	r := NewRegistry()
	resourceHandler := func(ctx context.Context, sess *mcp.Session, uri string) (any, error) { return nil, nil }

	assert.Error(t, r.RegisterResource(mcp.Resource{Handler: resourceHandler}))
	assert.Error(t, r.RegisterResource(mcp.Resource{URI: "note://x"}))
	assert.NoError(t, r.RegisterResource(mcp.Resource{URI: "note://x", Handler: resourceHandler}))
}

func TestRegisterPromptRejectsEmptyNameOrNilHandler(t *testing.T) {
	r := NewRegistry()
	promptHandler := func(ctx context.Context, sess *mcp.Session, args map[string]any) (any, error) { return nil, nil }

	assert.Error(t, r.RegisterPrompt(mcp.Prompt{Handler: promptHandler}))
	assert.Error(t, r.RegisterPrompt(mcp.Prompt{Name: "greeting"}))
	assert.NoError(t, r.RegisterPrompt(mcp.Prompt{Name: "greeting", Handler: promptHandler}))
}

func TestRegisterRootRejectsEmptyURIButAllowsNilHandler(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.RegisterRoot(mcp.Root{}))
	assert.NoError(t, r.RegisterRoot(mcp.Root{URI: "file:///workspace"}))
}

func TestRegisterRootRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterRoot(mcp.Root{URI: "file:///workspace"}))
	assert.Error(t, r.RegisterRoot(mcp.Root{URI: "file:///workspace"}))
}

func TestListRootsReturnsEveryRegisteredRoot(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterRoot(mcp.Root{URI: "file:///a"}))
	require.NoError(t, r.RegisterRoot(mcp.Root{URI: "file:///b"}))
	assert.Len(t, r.ListRoots(), 2)
}

func TestToolCountAndResourceCountReflectRegistrations(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, 0, r.ToolCount())
	assert.Equal(t, 0, r.ResourceCount())

	require.NoError(t, r.RegisterTool(mcp.Tool{Name: "echo", Handler: noopToolHandler}))
	assert.Equal(t, 1, r.ToolCount())

	resourceHandler := func(ctx context.Context, sess *mcp.Session, uri string) (any, error) { return nil, nil }
	require.NoError(t, r.RegisterResource(mcp.Resource{URI: "note://x", Handler: resourceHandler}))
	assert.Equal(t, 1, r.ResourceCount())
}

func TestPromptsListChangedIsSetOnRegisterAndClearedByList(t *testing.T) {
	r := NewRegistry()
	promptHandler := func(ctx context.Context, sess *mcp.Session, args map[string]any) (any, error) { return nil, nil }
	assert.False(t, r.PromptsListChanged())

	require.NoError(t, r.RegisterPrompt(mcp.Prompt{Name: "greeting", Handler: promptHandler}))
	assert.True(t, r.PromptsListChanged())

	r.ListPrompts()
	assert.False(t, r.PromptsListChanged(), "ListPrompts clears the pending flag")

	require.True(t, r.RemovePrompt("greeting"))
	assert.True(t, r.PromptsListChanged())
}

func TestSetOnChangeNilClearsCallback(t *testing.T) {
	r := NewRegistry()
	called := false
	r.SetOnChange(func(kind string) { called = true })
	r.SetOnChange(nil)

	require.NoError(t, r.RegisterTool(mcp.Tool{Name: "echo", Handler: noopToolHandler}))
	assert.False(t, called)
}
