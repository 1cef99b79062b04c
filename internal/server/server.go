package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/ironsheep/surf-mcp/internal/imaging"
	"github.com/ironsheep/surf-mcp/internal/kernel"
	"github.com/ironsheep/surf-mcp/internal/surf"
)

// Server handles MCP protocol communication
type Server struct {
	cache *imaging.ImageCache
	cfg   surf.Config
	log   zerolog.Logger

	// backend is shared by every detector the server creates.
	backend kernel.Backend
	pool    *kernel.Pool
}

// Option customises a Server.
type Option func(*Server)

// WithConfig sets the detector defaults used when a tool call does not
// override them.
func WithConfig(cfg surf.Config) Option {
	return func(s *Server) { s.cfg = cfg }
}

// WithLogger sets the server logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// MCPRequest represents an incoming JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// MCPNotification represents an outgoing notification (no ID)
type MCPNotification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// New creates a new MCP server instance
func New(opts ...Option) *Server {
	s := &Server{
		cache: imaging.NewImageCache(),
		cfg:   surf.DefaultConfig(),
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cfg.Parallel {
		s.pool = kernel.NewPool(s.cfg.Workers)
		s.backend = s.pool
		s.log.Debug().Int("workers", s.pool.NumWorkers()).Msg("worker pool started")
	} else {
		s.backend = kernel.Sequential{}
	}
	return s
}

// Close releases the server's worker pool and drops every cached image.
// It must not be called while a request is being handled.
func (s *Server) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
	s.cache.Clear()
}

// Run starts the MCP server, reading from stdin and writing to stdout. It
// returns ctx.Err() once ctx is done, even while stdin stays open.
func (s *Server) Run(ctx context.Context) error {
	return s.serve(ctx, os.Stdin, os.Stdout)
}

// serve handles one request per input line until in is exhausted or ctx is
// done. Lines are read on a separate goroutine so that a blocked read does
// not delay cancellation; that goroutine exits with the next line or EOF.
func (s *Server) serve(ctx context.Context, in io.Reader, out io.Writer) error {
	lines := make(chan []byte)
	var scanErr error

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(in)
		// Increase buffer size for large requests
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 1024*1024)

		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr = scanner.Err()
	}()

	encoder := json.NewEncoder(out)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var line []byte
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok = <-lines:
		}
		if !ok {
			if err := ctx.Err(); err != nil {
				return err
			}
			if scanErr != nil {
				return fmt.Errorf("scanner error: %w", scanErr)
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.log.Warn().Err(err).Msg("failed to parse request")
			continue
		}

		resp := s.handleRequest(ctx, &req)
		if resp != nil {
			if err := encoder.Encode(resp); err != nil {
				s.log.Error().Err(err).Msg("failed to encode response")
			}
		}
	}
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(ctx context.Context, req *MCPRequest) *MCPResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		// Client acknowledgment, no response needed
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "ping":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	default:
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32601,
				Message: fmt.Sprintf("Method not found: %s", req.Method),
			},
		}
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    "surf-mcp",
				"version": "0.1.0",
			},
		},
	}
}
