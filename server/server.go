package server

import (
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/cbrgm/mcp-core/mcp"
	"github.com/cbrgm/mcp-core/security"
)

// Server is the MCP dispatch engine: a Registry of tools/resources/
// prompts/roots, a security Middleware, and the built-in method handlers
// that HandleMessage routes requests and notifications to.
//
// Grounded on cbrgm-go-mcp-server/server/server.go's Server struct and
// functional-options constructor, generalized from three fixed handler
// interfaces (ToolHandler/ResourceHandler/PromptHandler) to the
// closure-based Registry spec.md §3/§4.1 describes.
type Server struct {
	registry *Registry
	security *security.Middleware
	inflight *InFlight

	serverInfo mcp.ServerInfo
	logger     *slog.Logger
	config     *serverConfig
}

type serverConfig struct {
	requestTimeout time.Duration
	logLevel       string
	logJSON        bool
	customLogger   *slog.Logger

	samplingStreaming        bool
	samplingToolCalls        bool
	samplingImages           bool
	samplingModelPreferences bool
	samplingMaxTokens        int
	samplingDefaultTimeout   time.Duration
}

// Option configures a Server at construction time.
type Option func(*serverConfig)

// WithLogger installs a caller-supplied logger in place of the default
// stderr slog.Logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *serverConfig) { cfg.customLogger = logger }
}

// WithRequestTimeout bounds how long a single request handler may run
// before its context is cancelled.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(cfg *serverConfig) { cfg.requestTimeout = timeout }
}

// WithLogLevel sets the default logger's level ("debug", "info", "warn", "error").
func WithLogLevel(level string) Option {
	return func(cfg *serverConfig) { cfg.logLevel = level }
}

// WithLogJSON switches the default logger to JSON output.
func WithLogJSON(enabled bool) Option {
	return func(cfg *serverConfig) { cfg.logJSON = enabled }
}

// WithSamplingFeatures advertises which optional sampling behaviors this
// server's CreateMessage round-trip actually supports, populating the
// initialize result's capabilities.sampling block (spec.md §4.2.1).
func WithSamplingFeatures(streaming, toolCalls, images, modelPreferences bool) Option {
	return func(cfg *serverConfig) {
		cfg.samplingStreaming = streaming
		cfg.samplingToolCalls = toolCalls
		cfg.samplingImages = images
		cfg.samplingModelPreferences = modelPreferences
	}
}

// WithSamplingLimits sets the maxTokens ceiling and default timeout
// advertised in capabilities.sampling. A zero value omits that key rather
// than advertising a meaningless 0.
func WithSamplingLimits(maxTokens int, defaultTimeout time.Duration) Option {
	return func(cfg *serverConfig) {
		cfg.samplingMaxTokens = maxTokens
		cfg.samplingDefaultTimeout = defaultTimeout
	}
}

// New creates an MCP Server. name/version populate the serverInfo
// returned from initialize; sec may be nil, in which case a disabled
// Middleware (anonymous, default-allow) is used.
func New(name, version string, sec *security.Middleware, opts ...Option) *Server {
	config := &serverConfig{
		requestTimeout: 30 * time.Second,
		logLevel:       "info",
		logJSON:        false,
	}
	for _, opt := range opts {
		opt(config)
	}

	var logger *slog.Logger
	if config.customLogger != nil {
		logger = config.customLogger
	} else {
		logger = createDefaultLogger(config.logLevel, config.logJSON)
	}

	if sec == nil {
		sec = security.NewMiddleware()
	}

	return &Server{
		registry: NewRegistry(),
		security: sec,
		inflight: NewInFlight(),
		serverInfo: mcp.ServerInfo{
			Name:    name,
			Version: version,
		},
		logger: logger,
		config: config,
	}
}

// Registry exposes the server's tool/resource/prompt/root table for
// registration by cmd/mcp-server.
func (s *Server) Registry() *Registry { return s.registry }

// Security exposes the server's authentication/authorization middleware.
func (s *Server) Security() *security.Middleware { return s.security }

// capabilities computes the initialize result's capabilities block from
// the registry's actual contents/flags and the configured sampling
// limits, per spec.md §4.2.1: tools/resources advertise listChanged=false
// once anything is registered (an empty registry still might grow, so it
// advertises true), prompts tracks a real mutable flag cleared by
// prompts/list, and roots always supports push since root changes are
// client-driven rather than something this server can predict.
func (s *Server) capabilities() map[string]any {
	caps := map[string]any{
		"tools":     map[string]bool{"listChanged": s.registry.ToolCount() == 0},
		"resources": map[string]any{"subscribe": false, "listChanged": s.registry.ResourceCount() == 0},
		"prompts":   map[string]bool{"listChanged": s.registry.PromptsListChanged()},
		"roots":     map[string]bool{"listChanged": true},
	}

	samplingCaps := map[string]any{
		"streaming":        s.config.samplingStreaming,
		"toolCalls":        s.config.samplingToolCalls,
		"images":           s.config.samplingImages,
		"modelPreferences": s.config.samplingModelPreferences,
	}
	if s.config.samplingMaxTokens > 0 {
		samplingCaps["maxTokens"] = s.config.samplingMaxTokens
	}
	if s.config.samplingDefaultTimeout > 0 {
		samplingCaps["defaultTimeoutSeconds"] = int(s.config.samplingDefaultTimeout.Seconds())
	}
	caps["sampling"] = samplingCaps

	return caps
}

func createDefaultLogger(logLevel string, logJSON bool) *slog.Logger {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	logOutput := os.Stderr
	log.SetOutput(os.Stderr)

	var handler slog.Handler
	if logJSON {
		handler = slog.NewJSONHandler(logOutput, opts)
	} else {
		handler = slog.NewTextHandler(logOutput, opts)
	}
	return slog.New(handler)
}
