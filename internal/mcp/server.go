package mcp

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/composecomplete/internal/config"
	"github.com/dshills/composecomplete/internal/ingest"
	"github.com/dshills/composecomplete/internal/router"
	"github.com/dshills/composecomplete/internal/storage"
	"github.com/dshills/composecomplete/internal/worker"
)

const (
	// ServerName is the MCP server name
	ServerName = "composecomplete"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"

	// maxSuggestions caps the rows fetched per completion
	maxSuggestions = 100
)

// statusIngester caches the users and hashtags of received statuses
type statusIngester interface {
	IngestStatuses(ctx context.Context, statuses []ingest.Status, cfg *ingest.Config) (*ingest.Statistics, error)
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	config   *config.Config
	storage  *storage.SQLiteStorage
	router   *router.Router
	ingester statusIngester
	worker   *worker.Worker
	prefs    config.BoolSource
	sessions *sessionTable
	logger   *log.Logger
}

// NewServer creates a new MCP server instance. A nil cfg uses config.Default().
func NewServer(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	dbPath, err := cfg.ResolveDBPath()
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	logger := log.New(os.Stderr, "composecomplete: ", log.LstdFlags)

	sessions, err := newSessionTable(cfg.MaxSessions)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create session table: %w", err)
	}

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		config:   cfg,
		storage:  store,
		router:   router.New(store).WithLimit(maxSuggestions),
		ingester: ingest.New(store),
		worker:   worker.New(),
		prefs:    cfg.Preferences(store),
		sessions: sessions,
		logger:   logger,
	}

	// Register tools
	if err := s.registerTools(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.Close() }()
	return server.ServeStdio(s.mcp)
}

// Close ends every session, stops the query worker and closes the store
func (s *Server) Close() error {
	s.sessions.closeAll()
	s.worker.Close()
	return s.storage.Close()
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcp.AddTool(completeTool(), s.handleComplete)
	s.mcp.AddTool(endSessionTool(), s.handleEndSession)
	s.mcp.AddTool(cacheStatusesTool(), s.handleCacheStatuses)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	return nil
}
