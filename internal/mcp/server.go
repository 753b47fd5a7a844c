package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/dshills/greptile-mcp/internal/config"
	"github.com/dshills/greptile-mcp/internal/greptile"
)

// ServerName is the MCP server name
const ServerName = "greptile-mcp"

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	client   *greptile.Client
	sessions *SessionStore
	genius   bool

	// indexing collapses concurrent index_repository calls for the same
	// repository into one upstream submission
	indexing singleflight.Group
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, version string) (*Server, error) {
	clientCfg := cfg.ClientConfig()
	clientCfg.UserAgent = ServerName + "/" + version
	clientCfg.OnDrop = func(line string) {
		log.Debug().Str("line", truncate(line, 200)).Msg("dropped malformed stream line")
	}

	client, err := greptile.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create api client: %w", err)
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(true),
	)

	s := &Server{
		mcp:      mcpServer,
		client:   client,
		sessions: NewSessionStore(cfg.Sessions.MaxEntries),
		genius:   cfg.API.Genius,
	}

	// Register tools
	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	return server.ServeStdio(s.mcp)
}

// ServeHTTP starts the MCP server on the streamable HTTP transport and
// blocks until shutdown.
func (s *Server) ServeHTTP(addr string) error {
	return server.NewStreamableHTTPServer(s.mcp).Start(addr)
}

// Healthy probes the upstream API. Probe failures read as false.
func (s *Server) Healthy(ctx context.Context) bool {
	return s.client.HealthCheck(ctx)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	// Register index_repository tool
	s.mcp.AddTool(indexRepositoryTool(), s.handleIndexRepository)

	// Register query_repository tool
	s.mcp.AddTool(queryRepositoryTool(), s.handleQueryRepository)

	// Register search_repository tool
	s.mcp.AddTool(searchRepositoryTool(), s.handleSearchRepository)

	// Register get_repository_info tool
	s.mcp.AddTool(getRepositoryInfoTool(), s.handleGetRepositoryInfo)

	return nil
}
