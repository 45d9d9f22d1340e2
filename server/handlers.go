package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cbrgm/mcp-core/mcp"
	"github.com/cbrgm/mcp-core/security"
)

// Built-in method handlers. Grounded line-by-line on
// cbrgm-go-mcp-server/server/server.go's handleInitialize/handleToolsList/
// handleToolsCall/handleResourcesList/handleResourcesRead/
// handlePromptsList/handlePromptsGet/handlePing, adapted from the
// teacher's three fixed handler interfaces to this package's Registry, and
// extended with roots/list, prompts/subscribe, and the security.Middleware
// check spec.md §4.3 requires before every call/read/list.

func decodeParams[T any](raw json.RawMessage) (T, *mcp.Error) {
	var v T
	if len(raw) == 0 {
		return v, mcp.NewError(mcp.KindInvalidParams, "params must not be empty")
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, mcp.Errorf(mcp.KindInvalidParams, "invalid params: %v", err)
	}
	return v, nil
}

func handleInitialize(ctx context.Context, s *Server, sess *mcp.Session, raw json.RawMessage) (any, *mcp.Error) {
	params, mcpErr := decodeParams[mcp.InitializeParams](raw)
	if mcpErr != nil {
		return nil, mcpErr
	}

	supported := false
	for _, v := range mcp.SupportedProtocolVersions {
		if v == params.ProtocolVersion {
			supported = true
			break
		}
	}
	if !supported {
		s.logger.Warn("client requested unsupported protocol version", "requested", params.ProtocolVersion)
		details := []string{
			fmt.Sprintf("requested protocol version %q is not supported", params.ProtocolVersion),
			fmt.Sprintf("server supports: %s", strings.Join(mcp.SupportedProtocolVersions, ", ")),
		}
		return nil, mcp.Errorf(mcp.KindInvalidParams, "unsupported protocol version %q", params.ProtocolVersion).
			WithData(map[string]any{"details": details})
	}

	sess.MarkHandshakeComplete(params.ProtocolVersion, params.ClientInfo, params.Capabilities)
	s.logger.Info("session initialize handshake complete", "session_id", sess.ID, "protocol_version", params.ProtocolVersion)

	return mcp.InitializeResult{
		ProtocolVersion: params.ProtocolVersion,
		Capabilities:    s.capabilities(),
		ServerInfo:      s.serverInfo,
	}, nil
}

func handleInitializedNotification(ctx context.Context, s *Server, sess *mcp.Session, raw json.RawMessage) {
	sess.MarkInitialized()
	s.logger.Debug("session marked initialized", "session_id", sess.ID)
}

func handlePing(ctx context.Context, s *Server, sess *mcp.Session, raw json.RawMessage) (any, *mcp.Error) {
	return map[string]any{}, nil
}

func handleCancelNotification(ctx context.Context, s *Server, sess *mcp.Session, raw json.RawMessage) {
	var params struct {
		ID any `json:"id,omitempty"`
		RequestID any `json:"requestId,omitempty"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		s.logger.Debug("malformed cancel notification", "error", err)
		return
	}
	id := params.ID
	if id == nil {
		id = params.RequestID
	}
	if id == nil {
		return
	}
	if s.inflight.Cancel(id) {
		s.logger.Debug("cancelled in-flight request", "id", id)
	}
}

func handleToolsList(ctx context.Context, s *Server, sess *mcp.Session, raw json.RawMessage) (any, *mcp.Error) {
	if _, mcpErr := s.authorize(sess, security.EntityTool, security.ActionList, ""); mcpErr != nil {
		return nil, mcpErr
	}
	tools := s.registry.ListTools()
	s.logger.Debug("listed tools", "count", len(tools))
	return map[string][]mcp.Tool{"tools": tools}, nil
}

func handleToolsCall(ctx context.Context, s *Server, sess *mcp.Session, raw json.RawMessage) (any, *mcp.Error) {
	params, mcpErr := decodeParams[mcp.ToolCallParams](raw)
	if mcpErr != nil {
		return nil, mcpErr
	}
	if params.Name == "" {
		return nil, mcp.NewError(mcp.KindInvalidParams, "name parameter is required")
	}

	if _, mcpErr := s.authorize(sess, security.EntityTool, security.ActionCall, params.Name); mcpErr != nil {
		return nil, mcpErr
	}

	tool, ok := s.registry.GetTool(params.Name)
	if !ok {
		return nil, mcp.Errorf(mcp.KindNotFound, "tool %q not found", params.Name)
	}

	if validationErr := mcp.ValidateToolArguments(tool.InputSchema, params.Arguments); validationErr != nil {
		return nil, validationErr
	}

	s.logger.Debug("calling tool", "tool", params.Name)
	result, err := tool.Handler(ctx, sess, params.Arguments)
	if err != nil {
		s.logger.Warn("tool handler returned an error", "tool", params.Name, "error", err)
		return mcp.ToolResponse{
			Content: mcp.ToContentItems(err.Error(), "text/plain", ""),
			IsError: true,
		}, nil
	}

	return mcp.ToolResponse{Content: mcp.ToContentItems(result, "text/plain", "")}, nil
}

func handleResourcesList(ctx context.Context, s *Server, sess *mcp.Session, raw json.RawMessage) (any, *mcp.Error) {
	if _, mcpErr := s.authorize(sess, security.EntityResource, security.ActionList, ""); mcpErr != nil {
		return nil, mcpErr
	}
	resources := s.registry.ListResources()
	return map[string][]mcp.Resource{"resources": resources}, nil
}

func handleResourcesRead(ctx context.Context, s *Server, sess *mcp.Session, raw json.RawMessage) (any, *mcp.Error) {
	params, mcpErr := decodeParams[mcp.ResourceParams](raw)
	if mcpErr != nil {
		return nil, mcpErr
	}
	if params.URI == "" {
		return nil, mcp.NewError(mcp.KindInvalidParams, "uri parameter is required")
	}

	if _, mcpErr := s.authorize(sess, security.EntityResource, security.ActionRead, params.URI); mcpErr != nil {
		return nil, mcpErr
	}

	resource, ok := s.registry.GetResource(params.URI)
	if !ok {
		return nil, mcp.Errorf(mcp.KindNotFound, "resource %q not found", params.URI)
	}

	result, err := resource.Handler(ctx, sess, params.URI)
	if err != nil {
		return nil, mcp.Errorf(mcp.KindInvalidParams, "resource read failed: %v", err)
	}

	return mcp.ResourceResponse{Contents: mcp.ToContentItems(result, resource.MimeType, resource.URI)}, nil
}

func handlePromptsList(ctx context.Context, s *Server, sess *mcp.Session, raw json.RawMessage) (any, *mcp.Error) {
	if _, mcpErr := s.authorize(sess, security.EntityPrompt, security.ActionList, ""); mcpErr != nil {
		return nil, mcpErr
	}
	prompts := s.registry.ListPrompts()
	return map[string][]mcp.Prompt{"prompts": prompts}, nil
}

func handlePromptsGet(ctx context.Context, s *Server, sess *mcp.Session, raw json.RawMessage) (any, *mcp.Error) {
	params, mcpErr := decodeParams[mcp.PromptParams](raw)
	if mcpErr != nil {
		return nil, mcpErr
	}
	if params.Name == "" {
		return nil, mcp.NewError(mcp.KindInvalidParams, "name parameter is required")
	}

	if _, mcpErr := s.authorize(sess, security.EntityPrompt, security.ActionCall, params.Name); mcpErr != nil {
		return nil, mcpErr
	}

	prompt, ok := s.registry.GetPrompt(params.Name)
	if !ok {
		return nil, mcp.Errorf(mcp.KindNotFound, "prompt %q not found", params.Name)
	}

	if validationErr := mcp.ValidatePromptArguments(prompt.Arguments, params.Arguments); validationErr != nil {
		return nil, validationErr
	}

	result, err := prompt.Handler(ctx, sess, params.Arguments)
	if err != nil {
		return nil, mcp.Errorf(mcp.KindInvalidParams, "prompt expansion failed: %v", err)
	}

	validated, err := mcp.ValidatePromptResponse(result)
	if err != nil {
		return nil, mcp.Errorf(mcp.KindInternal, "prompt %q returned a malformed response: %v", params.Name, err)
	}
	return validated, nil
}

// handlePromptsSubscribe is accepted and acknowledged, but this server
// advertises listChanged rather than per-prompt subscriptions: there is
// nothing incremental to wire a subscription to, so it degrades to a
// no-op success matching spec.md §4.2.4's subscribe acknowledgement.
func handlePromptsSubscribe(ctx context.Context, s *Server, sess *mcp.Session, raw json.RawMessage) (any, *mcp.Error) {
	params, mcpErr := decodeParams[mcp.PromptParams](raw)
	if mcpErr != nil {
		return nil, mcpErr
	}
	if _, ok := s.registry.GetPrompt(params.Name); !ok {
		return nil, mcp.Errorf(mcp.KindNotFound, "prompt %q not found", params.Name)
	}
	return map[string]any{}, nil
}

func handleRootsList(ctx context.Context, s *Server, sess *mcp.Session, raw json.RawMessage) (any, *mcp.Error) {
	if _, mcpErr := s.authorize(sess, security.EntityRoot, security.ActionList, ""); mcpErr != nil {
		return nil, mcpErr
	}
	roots := s.registry.ListRoots()
	return map[string][]mcp.Root{"roots": roots}, nil
}

// authorize runs the security Middleware for a request against a single
// target entity, translating a security.Context-level denial into the
// mcp.Error shape the dispatcher sends back on the wire.
func (s *Server) authorize(sess *mcp.Session, class security.EntityClass, action security.Action, target string) (*security.Context, *mcp.Error) {
	secCtx, mcpErr := s.security.Check(sess.RequestContext(), class, action, target)
	if mcpErr != nil {
		return nil, mcpErr
	}
	sess.SetSecurityContext(secCtx)
	return secCtx, nil
}
