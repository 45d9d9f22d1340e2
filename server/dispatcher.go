package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cbrgm/mcp-core/mcp"
)

// requestHandlerFunc answers one JSON-RPC request, returning either a
// result to serialize or an *mcp.Error to report.
type requestHandlerFunc func(ctx context.Context, s *Server, sess *mcp.Session, params json.RawMessage) (any, *mcp.Error)

// notificationHandlerFunc reacts to a JSON-RPC notification. Notifications
// never produce a response, so failures are only logged.
type notificationHandlerFunc func(ctx context.Context, s *Server, sess *mcp.Session, params json.RawMessage)

var requestHandlers = map[string]requestHandlerFunc{
	"initialize":        handleInitialize,
	"ping":               handlePing,
	"tools/list":         handleToolsList,
	"tools/call":         handleToolsCall,
	"resources/list":     handleResourcesList,
	"resources/read":     handleResourcesRead,
	"prompts/list":       handlePromptsList,
	"prompts/get":        handlePromptsGet,
	"prompts/subscribe":  handlePromptsSubscribe,
	"roots/list":         handleRootsList,
}

var notificationHandlers = map[string]notificationHandlerFunc{
	"initialized":              handleInitializedNotification,
	"notifications/initialized": handleInitializedNotification,
	"$/cancelRequest":          handleCancelNotification,
	"notifications/cancelled":  handleCancelNotification,
}

// HandleMessage is the single entrypoint cbrgm-go-mcp-server's
// `HandleRequest` generalizes into: it classifies an inbound Frame as a
// request, a notification, or a client response to a server-initiated
// sampling request, and routes accordingly. sess.Sender() is used to
// deliver any reply; transports attach it before calling in.
func (s *Server) HandleMessage(ctx context.Context, sess *mcp.Session, frame mcp.Frame) {
	switch {
	case frame.IsResponse():
		s.handleClientResponse(sess, frame)
	case frame.IsNotification():
		s.dispatchNotification(ctx, sess, frame)
	case frame.IsRequest():
		s.dispatchRequest(ctx, sess, frame)
	default:
		s.logger.Warn("received frame that is neither request, notification, nor response", "session_id", sess.ID)
	}
}

// handleClientResponse answers a client response frame with InvalidRequest.
// HTTP intercepts and resolves these before they ever reach HandleMessage
// (transport/http.go's handlePost resolves them against session.Manager's
// Correlator), so by the time one
// arrives here it can only be a response with no matching outstanding
// sampling request. Stdio never attaches a sampling sink at all, so every
// response frame reaching a stdio session is unroutable by construction.
// Per spec.md §4.2 item 3, an id-only frame that correlates to nothing
// known is InvalidRequest, not a silently dropped message.
func (s *Server) handleClientResponse(sess *mcp.Session, frame mcp.Frame) {
	s.logger.Debug("received unroutable client response", "id", frame.ID, "session_id", sess.ID, "has_sampling_sink", sess.HasSamplingSink())
	s.sendError(sess, frame.ID, mcp.NewError(mcp.KindInvalidRequest, "response does not correlate to any outstanding server-initiated request"))
}

func (s *Server) dispatchRequest(ctx context.Context, sess *mcp.Session, frame mcp.Frame) {
	id := frame.ID
	if s.config.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.requestTimeout)
		defer cancel()
	}
	reqCtx := s.inflight.Register(ctx, id)
	defer s.inflight.Done(id)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while handling request", "method", frame.Method, "id", id, "panic", r)
			s.sendError(sess, id, mcp.Errorf(mcp.KindInternal, "internal error handling %s", frame.Method))
		}
	}()

	if !sess.IsInitialized() && frame.Method != "initialize" && frame.Method != "ping" {
		s.sendError(sess, id, mcp.NewError(mcp.KindNotInitialized, "session has not completed initialization"))
		return
	}

	handler, ok := requestHandlers[frame.Method]
	if !ok {
		s.logger.Warn("unknown method requested", "method", frame.Method, "id", id)
		s.sendError(sess, id, mcp.Errorf(mcp.KindMethodNotFound, "method %q not found", frame.Method))
		return
	}

	s.logger.Debug("handling request", "method", frame.Method, "id", id)
	result, mcpErr := handler(reqCtx, s, sess, frame.Params)
	if mcpErr != nil {
		s.sendError(sess, id, mcpErr)
		return
	}
	s.sendResult(sess, id, result)
}

func (s *Server) dispatchNotification(ctx context.Context, sess *mcp.Session, frame mcp.Frame) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while handling notification", "method", frame.Method, "panic", r)
		}
	}()

	handler, ok := notificationHandlers[frame.Method]
	if !ok {
		s.logger.Debug("ignoring unknown notification", "method", frame.Method)
		return
	}
	handler(ctx, s, sess, frame.Params)
}

func (s *Server) sendResult(sess *mcp.Session, id any, result any) {
	sender := sess.Sender()
	if sender == nil {
		s.logger.Error("no response sender attached to session", "session_id", sess.ID, "id", id)
		return
	}
	err := sender.SendResponse(mcp.Response{JSONRPC: mcp.JSONRPCVersion, ID: id, Result: result})
	if err != nil {
		s.logger.Error("failed to send response", "session_id", sess.ID, "id", id, "error", err)
	}
}

func (s *Server) sendError(sess *mcp.Session, id any, mcpErr *mcp.Error) {
	sender := sess.Sender()
	if sender == nil {
		s.logger.Error("no response sender attached to session", "session_id", sess.ID, "id", id)
		return
	}
	err := sender.SendResponse(mcp.Response{JSONRPC: mcp.JSONRPCVersion, ID: id, Error: mcpErr})
	if err != nil {
		s.logger.Error("failed to send error response", "session_id", sess.ID, "id", id, "error", err)
	}
}

// NotifyListChanged broadcasts a `notifications/{kind}/list_changed`
// message to sess. stdio's Start wires this as Registry.SetOnChange's
// callback for its sole session; HTTP's Start does not use it and binds
// SetOnChange to session.Manager.Broadcast instead, so every session with
// an attached stream hears about the change (spec.md §4.2.5).
func (s *Server) NotifyListChanged(sess *mcp.Session, kind string) {
	sender := sess.Sender()
	if sender == nil {
		return
	}
	method := fmt.Sprintf("notifications/%s/list_changed", kind)
	if err := sender.SendNotification(mcp.Notification{JSONRPC: mcp.JSONRPCVersion, Method: method}); err != nil {
		s.logger.Warn("failed to deliver list_changed notification", "kind", kind, "session_id", sess.ID, "error", err)
	}
}
