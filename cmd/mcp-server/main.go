package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"

	"github.com/cbrgm/mcp-core/cmd/mcp-server/handlers"
	"github.com/cbrgm/mcp-core/security"
	"github.com/cbrgm/mcp-core/server"
	"github.com/cbrgm/mcp-core/session"
	"github.com/cbrgm/mcp-core/transport"
)

const (
	transportStdio = "stdio"
	transportHTTP  = "http"

	authNone      = "none"
	authSharedKey = "shared-key"
	authJWT       = "jwt"

	minPort = 1
	maxPort = 65535
)

// Config is the full external configuration surface spec.md §6 and
// SPEC_FULL.md §6 describe, superseding the teacher's narrower Config
// (which has no sampling, security, or session-manager fields) while
// keeping its go-arg tag conventions and Description/Version methods.
type Config struct {
	TransportType string `arg:"--transport,env:MCP_TRANSPORT" default:"stdio" help:"Transport type (stdio|http)"`
	HTTPPort      int    `arg:"--port,env:MCP_PORT" default:"8080" help:"HTTP port"`
	ServerName    string `arg:"--name,env:MCP_SERVER_NAME" default:"MCP Server" help:"Server name"`
	ServerVersion string `arg:"--server-version,env:MCP_SERVER_VERSION" default:"1.0.0" help:"Server version"`

	RequestTimeout  time.Duration `arg:"--request-timeout,env:MCP_REQUEST_TIMEOUT" default:"30s" help:"Request timeout"`
	ShutdownTimeout time.Duration `arg:"--shutdown-timeout,env:MCP_SHUTDOWN_TIMEOUT" default:"5s" help:"Shutdown timeout"`
	ReadTimeout     time.Duration `arg:"--read-timeout,env:MCP_READ_TIMEOUT" default:"30s" help:"HTTP read timeout"`
	WriteTimeout    time.Duration `arg:"--write-timeout,env:MCP_WRITE_TIMEOUT" default:"30s" help:"HTTP write timeout"`
	IdleTimeout     time.Duration `arg:"--idle-timeout,env:MCP_IDLE_TIMEOUT" default:"120s" help:"HTTP idle timeout"`

	LogLevel string `arg:"--log-level,env:MCP_LOG_LEVEL" default:"info" help:"Log level (debug|info|warn|error)"`
	LogJSON  bool   `arg:"--log-json,env:MCP_LOG_JSON" help:"Output logs in JSON format"`

	SessionIdleTimeout time.Duration `arg:"--session-idle-timeout,env:MCP_SESSION_IDLE_TIMEOUT" default:"10m" help:"HTTP session idle eviction timeout"`
	SessionRingSize    int           `arg:"--session-ring-size,env:MCP_SESSION_RING_SIZE" default:"256" help:"Per-session SSE replay buffer size"`
	SamplingTimeout    time.Duration `arg:"--sampling-timeout,env:MCP_SAMPLING_TIMEOUT" default:"60s" help:"How long a sampling/createMessage request waits for a client reply"`
	SamplingMaxTokens  int           `arg:"--sampling-max-tokens,env:MCP_SAMPLING_MAX_TOKENS" default:"4096" help:"Max tokens advertised in capabilities.sampling (not enforced on outgoing createMessage requests)"`

	MaxFrameBytes int `arg:"--max-frame-bytes,env:MCP_MAX_FRAME_BYTES" default:"10485760" help:"Maximum size in bytes of a single stdio JSON-RPC frame; 0 uses the default (10 MiB)"`

	AuthStrategy  string        `arg:"--auth,env:MCP_AUTH" default:"none" help:"Authentication strategy (none|shared-key|jwt)"`
	SharedKeys    []string      `arg:"--shared-key,env:MCP_SHARED_KEYS" help:"Accepted shared keys (repeatable, or comma-separated via env)"`
	JWTSecret     string        `arg:"--jwt-secret,env:MCP_JWT_SECRET" help:"HMAC secret for the jwt auth strategy"`
	JWTClockSkew  time.Duration `arg:"--jwt-clock-skew,env:MCP_JWT_CLOCK_SKEW" default:"30s" help:"Leeway applied to JWT expiry checks"`
	AuthzDisabled bool          `arg:"--authz-disabled,env:MCP_AUTHZ_DISABLED" help:"Disable the authorization check (authentication still applies if configured)"`
}

func (Config) Description() string {
	return `MCP Server - a Model Context Protocol server

Serves tools, resources, and prompts over the Model Context Protocol,
supporting both stdio and HTTP+SSE transports, optional request
authentication, and server-initiated sampling requests back to the
connected client.

Configuration can be provided via command line arguments or environment
variables. Environment variables use the prefix "MCP_".

Examples:
  # Run with stdio transport (default)
  mcp-server

  # Run with HTTP transport on port 3000, shared-key auth
  mcp-server --transport http --port 3000 --auth shared-key --shared-key s3cr3t`
}

func (Config) Version() string {
	return "mcp-server 1.0.0"
}

func (c *Config) Validate() error {
	switch c.TransportType {
	case transportStdio, transportHTTP:
	default:
		return fmt.Errorf("invalid transport type: %s (must be %q or %q)", c.TransportType, transportStdio, transportHTTP)
	}
	if c.HTTPPort < minPort || c.HTTPPort > maxPort {
		return fmt.Errorf("invalid port: %d (must be %d-%d)", c.HTTPPort, minPort, maxPort)
	}
	for _, d := range []struct {
		name string
		val  time.Duration
	}{
		{"request timeout", c.RequestTimeout},
		{"shutdown timeout", c.ShutdownTimeout},
		{"read timeout", c.ReadTimeout},
		{"write timeout", c.WriteTimeout},
		{"idle timeout", c.IdleTimeout},
		{"session idle timeout", c.SessionIdleTimeout},
		{"sampling timeout", c.SamplingTimeout},
	} {
		if d.val <= 0 {
			return fmt.Errorf("invalid %s: %v (must be positive)", d.name, d.val)
		}
	}
	if c.SessionRingSize <= 0 {
		return fmt.Errorf("invalid session ring size: %d (must be positive)", c.SessionRingSize)
	}
	if c.SamplingMaxTokens < 0 {
		return fmt.Errorf("invalid sampling max tokens: %d (must be non-negative)", c.SamplingMaxTokens)
	}
	if c.MaxFrameBytes < 0 {
		return fmt.Errorf("invalid max frame bytes: %d (must be non-negative; 0 uses the default)", c.MaxFrameBytes)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be 'debug', 'info', 'warn', or 'error')", c.LogLevel)
	}
	switch c.AuthStrategy {
	case authNone, authSharedKey, authJWT:
	default:
		return fmt.Errorf("invalid auth strategy: %s (must be %q, %q, or %q)", c.AuthStrategy, authNone, authSharedKey, authJWT)
	}
	if c.AuthStrategy == authSharedKey && len(c.SharedKeys) == 0 {
		return fmt.Errorf("--auth shared-key requires at least one --shared-key")
	}
	if c.AuthStrategy == authJWT && c.JWTSecret == "" {
		return fmt.Errorf("--auth jwt requires --jwt-secret")
	}
	return nil
}

func parseArgs() (*Config, error) {
	var cfg Config
	parser, err := arg.NewParser(arg.Config{Program: "mcp-server"}, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create argument parser: %w", err)
	}
	if err := parser.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func main() {
	cfg, err := parseArgs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *Config) error {
	sec, err := buildSecurity(cfg)
	if err != nil {
		return fmt.Errorf("failed to configure security: %w", err)
	}

	srv := server.New(cfg.ServerName, cfg.ServerVersion, sec,
		server.WithRequestTimeout(cfg.RequestTimeout),
		server.WithLogLevel(cfg.LogLevel),
		server.WithLogJSON(cfg.LogJSON),
		server.WithSamplingLimits(cfg.SamplingMaxTokens, cfg.SamplingTimeout),
	)

	if err := handlers.Register(srv.Registry()); err != nil {
		return fmt.Errorf("failed to register example handlers: %w", err)
	}

	t, err := createTransport(cfg)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	return t.Start(ctx, srv)
}

func buildSecurity(cfg *Config) (*security.Middleware, error) {
	mw := security.NewMiddleware()
	mw.Authz.Enabled = !cfg.AuthzDisabled

	switch cfg.AuthStrategy {
	case authNone:
		return mw, nil
	case authSharedKey:
		mw.RegisterStrategy(security.NewSharedKeyStrategy(cfg.SharedKeys...))
	case authJWT:
		mw.RegisterStrategy(security.NewJWTStrategy([]byte(cfg.JWTSecret), cfg.JWTClockSkew))
	default:
		return nil, fmt.Errorf("unreachable: unknown auth strategy %q", cfg.AuthStrategy)
	}
	mw.AuthEnabled = true
	return mw, nil
}

func createTransport(cfg *Config) (transport.Transport, error) {
	switch strings.ToLower(cfg.TransportType) {
	case transportStdio:
		return transport.NewStdio(defaultLogger(cfg), cfg.MaxFrameBytes), nil
	case transportHTTP:
		manager := session.NewManager(cfg.SessionIdleTimeout, cfg.SessionRingSize, cfg.SamplingTimeout, defaultLogger(cfg))
		return transport.NewHTTP(cfg.HTTPPort, manager, defaultLogger(cfg),
			cfg.ReadTimeout, cfg.WriteTimeout, cfg.IdleTimeout, cfg.ShutdownTimeout, cfg.RequestTimeout), nil
	default:
		return nil, fmt.Errorf("invalid transport type: %s (must be %q or %q)", cfg.TransportType, transportStdio, transportHTTP)
	}
}

func defaultLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.LogJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
