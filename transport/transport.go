// Package transport implements the two MCP transport mechanisms spec.md §5
// describes: a stdio (brace-framed JSON) transport for process-based
// communication, and an HTTP+SSE streaming transport for network-based
// communication.
//
// Grounded on cbrgm-go-mcp-server/transport/transport.go's Transport
// interface, kept unchanged in shape since it already matches spec.md's
// "a transport starts, blocks, and stops" contract.
package transport

import (
	"context"

	"github.com/cbrgm/mcp-core/server"
)

// Transport defines the interface for MCP transport mechanisms.
//
// Implementations handle the low-level communication details while
// delegating MCP protocol logic to the server. Each transport is
// responsible for message framing, encoding/decoding, and error handling.
type Transport interface {
	// Start begins listening for requests on this transport. It blocks
	// until the context is cancelled or an unrecoverable error occurs.
	Start(ctx context.Context, srv *server.Server) error

	// Stop gracefully shuts down the transport.
	Stop() error
}
