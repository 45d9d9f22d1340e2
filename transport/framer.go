package transport

import (
	"bufio"
	"errors"
	"io"
)

// DefaultMaxFrameBytes bounds a single top-level JSON value when the
// caller doesn't configure one explicitly. An unterminated or hostile
// frame must not be allowed to grow the in-memory buffer without limit.
const DefaultMaxFrameBytes = 10 * 1024 * 1024 // 10 MiB

// ErrFrameTooLarge is returned by Framer.Next when a single frame grows
// past the configured maximum buffer size (spec.md §4.4, §6
// buffer.max_frame_bytes). The caller should report a Parse error back
// to the client and keep reading; the oversized value itself is
// discarded rather than returned.
var ErrFrameTooLarge = errors.New("transport: frame exceeds maximum buffer size")

// Framer extracts successive top-level JSON values from a byte stream by
// tracking brace depth and string-literal state, rather than assuming one
// message per line. cbrgm-go-mcp-server's stdio transport reads with
// bufio.Scanner line-by-line, which breaks on a pretty-printed or
// multi-line JSON-RPC payload; spec.md §5.1 requires the stdio transport
// to frame on JSON structure instead, so this is new, hand-rolled code —
// no library in the reference corpus does whitespace-tolerant JSON
// message framing over an arbitrary io.Reader (encoding/json.Decoder
// comes closest but consumes trailing input eagerly and doesn't expose
// raw message boundaries the way replay/logging needs here).
type Framer struct {
	r             *bufio.Reader
	maxFrameBytes int
}

// NewFramer wraps r for frame-at-a-time reading, bounding a single frame
// at DefaultMaxFrameBytes.
func NewFramer(r io.Reader) *Framer {
	return NewFramerSize(r, DefaultMaxFrameBytes)
}

// NewFramerSize wraps r for frame-at-a-time reading, rejecting any single
// frame that grows past maxFrameBytes with ErrFrameTooLarge instead of
// buffering it without bound. maxFrameBytes <= 0 disables the limit.
func NewFramerSize(r io.Reader, maxFrameBytes int) *Framer {
	return &Framer{r: bufio.NewReaderSize(r, 64*1024), maxFrameBytes: maxFrameBytes}
}

func (f *Framer) overLimit(n int) bool {
	return f.maxFrameBytes > 0 && n > f.maxFrameBytes
}

// Next reads and returns the next complete top-level JSON value (object or
// array) as raw bytes, skipping any whitespace between values. It returns
// io.EOF once the underlying reader is exhausted with no partial value
// pending.
func (f *Framer) Next() ([]byte, error) {
	// Skip leading whitespace before the value starts.
	for {
		b, err := f.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if isJSONWhitespace(b) {
			continue
		}
		return f.readValue(b)
	}
}

func (f *Framer) readValue(first byte) ([]byte, error) {
	buf := []byte{first}
	truncated := false

	depth := 0
	inString := false
	escaped := false

	switch first {
	case '{', '[':
		depth = 1
	default:
		// A bare scalar (string/number/true/false/null) at the top level
		// isn't valid JSON-RPC, but don't hang waiting for braces that
		// will never come: read through to the next whitespace or EOF.
		for {
			b, err := f.r.ReadByte()
			if err != nil {
				if err == io.EOF && len(buf) > 0 && !truncated {
					return buf, nil
				}
				if truncated {
					return nil, ErrFrameTooLarge
				}
				return buf, err
			}
			if isJSONWhitespace(b) {
				if truncated {
					return nil, ErrFrameTooLarge
				}
				return buf, nil
			}
			if !truncated {
				buf = append(buf, b)
				if f.overLimit(len(buf)) {
					truncated = true
				}
			}
		}
	}

	for depth > 0 {
		b, err := f.r.ReadByte()
		if err != nil {
			if truncated {
				return nil, ErrFrameTooLarge
			}
			return buf, err
		}
		if !truncated {
			buf = append(buf, b)
			if f.overLimit(len(buf)) {
				truncated = true
			}
		}

		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
		}
	}

	if truncated {
		return nil, ErrFrameTooLarge
	}
	return buf, nil
}

func isJSONWhitespace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r':
		return true
	default:
		return false
	}
}
