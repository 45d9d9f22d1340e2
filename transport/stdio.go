package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cbrgm/mcp-core/mcp"
	"github.com/cbrgm/mcp-core/server"
)

// DefaultStdioTimeout bounds how long a single request may run before its
// context is cancelled, mirroring cbrgm-go-mcp-server's stdio transport.
const DefaultStdioTimeout = 30 * time.Second

// Stdio is the single-session, single-threaded-cooperative transport
// spec.md §5.1 describes: one client talks to one server over stdin/
// stdout, messages framed on JSON structure rather than newlines (see
// framer.go), and no sampling sink is ever attached (see
// mcp.ErrSamplingUnsupported).
//
// Grounded on cbrgm-go-mcp-server/transport/stdio.go's goroutine+channel
// read loop and lenient id-salvaging parse-error handling; generalized
// from a line scanner to the brace-depth Framer and from a bare
// `ResponseSender` writer to one *mcp.Session shared across the run.
type Stdio struct {
	logger        *slog.Logger
	maxFrameBytes int

	mu sync.Mutex // serializes writes to stdout
}

// NewStdio builds a Stdio transport. A nil logger falls back to
// slog.Default(). maxFrameBytes <= 0 falls back to DefaultMaxFrameBytes;
// spec.md §6's buffer.max_frame_bytes option is threaded in by
// cmd/mcp-server.
func NewStdio(logger *slog.Logger, maxFrameBytes int) *Stdio {
	if logger == nil {
		logger = slog.Default()
	}
	if maxFrameBytes <= 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}
	return &Stdio{logger: logger, maxFrameBytes: maxFrameBytes}
}

func (t *Stdio) Start(ctx context.Context, srv *server.Server) error {
	t.logger.Info("starting stdio transport")

	framer := NewFramerSize(os.Stdin, t.maxFrameBytes)
	sender := &stdioSender{out: os.Stdout, mu: &t.mu}
	reqCtx := mcp.NewRequestContext("stdio", "", "", nil, nil, nil)
	sess := mcp.NewSession("stdio", reqCtx, sender, nil)

	srv.Registry().SetOnChange(func(kind string) {
		srv.NotifyListChanged(sess, kind)
	})

	type frameOrErr struct {
		data []byte
		err  error
	}
	frames := make(chan frameOrErr)

	go func() {
		defer close(frames)
		for {
			data, err := framer.Next()
			select {
			case <-ctx.Done():
				return
			case frames <- frameOrErr{data: data, err: err}:
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("stdio transport shutting down")
			return nil
		case fe, ok := <-frames:
			if !ok {
				return nil
			}
			if fe.err != nil {
				if fe.err == io.EOF {
					t.logger.Info("stdin closed, exiting")
					return nil
				}
				if errors.Is(fe.err, ErrFrameTooLarge) {
					t.logger.Warn("dropping oversized frame", "max_frame_bytes", t.maxFrameBytes)
					t.sendParseError(nil, fe.err)
					continue
				}
				t.logger.Error("error reading stdin", "error", fe.err)
				return fe.err
			}
			if len(fe.data) == 0 {
				continue
			}
			t.handleFrame(ctx, srv, sess, fe.data)
		}
	}
}

func (t *Stdio) Stop() error {
	return nil
}

func (t *Stdio) handleFrame(ctx context.Context, srv *server.Server, sess *mcp.Session, data []byte) {
	var frame mcp.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.sendParseError(data, err)
		return
	}

	if frame.JSONRPC != mcp.JSONRPCVersion {
		t.logger.Warn("invalid jsonrpc version", "version", frame.JSONRPC)
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, DefaultStdioTimeout)
	defer cancel()

	srv.HandleMessage(reqCtx, sess, frame)
}

func (t *Stdio) sendParseError(data []byte, err error) {
	var errorID any = nil
	var partial map[string]any
	if unmarshalErr := json.Unmarshal(data, &partial); unmarshalErr == nil {
		if id, exists := partial["id"]; exists && id != nil {
			errorID = id
		}
	}

	resp := mcp.Response{
		JSONRPC: mcp.JSONRPCVersion,
		ID:      errorID,
		Error:   mcp.Errorf(mcp.KindParse, "parse error: %v", err),
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = json.NewEncoder(os.Stdout).Encode(resp)
}

// stdioSender implements mcp.ResponseSender by writing one JSON value per
// line to stdout, serialized by the shared mutex so concurrent handler
// goroutines never interleave partial writes.
type stdioSender struct {
	out io.Writer
	mu  *sync.Mutex
}

func (s *stdioSender) write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	b = append(b, '\n')
	_, err = s.out.Write(b)
	return err
}

func (s *stdioSender) SendResponse(response mcp.Response) error {
	return s.write(response)
}

func (s *stdioSender) SendNotification(n mcp.Notification) error {
	return s.write(n)
}

func (s *stdioSender) SendRequest(req mcp.Request) error {
	return s.write(req)
}
