package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/robotics-tutor/internal/database"
	"github.com/bull/robotics-tutor/internal/storage"
)

// Embedder turns the tool query into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher runs the similarity search.
type Searcher interface {
	Search(ctx context.Context, q storage.SearchQuery) []storage.SearchHit
}

// Catalog reads the course outline.
type Catalog interface {
	GetChapter(ctx context.Context, id string) (*database.Chapter, error)
	ListModules(ctx context.Context) ([]*database.Module, error)
	ListChapters(ctx context.Context, moduleSlug string) ([]*database.Chapter, error)
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
}

// Config holds server dependencies.
type Config struct {
	Name     string
	Version  string
	Embedder Embedder
	Searcher Searcher
	Catalog  Catalog
	Logger   *slog.Logger
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	name := cfg.Name
	if name == "" {
		name = "robotics-tutor"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	server := mcp.NewServer(&mcp.Implementation{Name: name, Version: cfg.Version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_course",
		Description: "Search the robotics course semantically. Returns matching passages with their chapter titles.",
	}, makeSearchHandler(cfg.Embedder, cfg.Searcher, cfg.Catalog, logger))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_modules",
		Description: "List the published course modules and their chapters.",
	}, makeListHandler(cfg.Catalog))

	return &Server{server: server}
}

// Run serves over stdio until the client disconnects or ctx ends.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
