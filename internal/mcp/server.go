package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mike-a-ellis/pdf-rag/internal/indexer"
	"github.com/mike-a-ellis/pdf-rag/internal/records"
	"github.com/mike-a-ellis/pdf-rag/internal/retrieval"
)

// Ingester is the subset of indexer.Pipeline used by the tools.
type Ingester interface {
	Ingest(ctx context.Context, u indexer.Upload) (*records.Document, error)
	DeleteDocument(ctx context.Context, id string) error
}

// Asker answers questions over ready documents.
type Asker interface {
	Ask(ctx context.Context, req retrieval.Request) (*retrieval.Answer, error)
}

// VectorStatus reports on the vector backend.
type VectorStatus interface {
	Health(ctx context.Context) error
	Count(ctx context.Context, collectionID string) (int, error)
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
	logger *slog.Logger
}

// Config holds server dependencies.
type Config struct {
	Pipeline       Ingester
	Asker          Asker
	Documents      records.DocumentStore
	Vectors        VectorStatus
	MaxUploadBytes int64
	Version        string
	Logger         *slog.Logger
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	version := cfg.Version
	if version == "" {
		version = "v0.1.0"
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "pdf-rag-server",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ingest_pdf",
		Description: "Upload a PDF, extract its text and index it for question answering. Returns the document record with its final status.",
	}, makeIngestHandler(cfg.Pipeline, cfg.MaxUploadBytes))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_documents",
		Description: "Answer a question using only the content of the given ready documents. Pass session_id to continue a conversation.",
	}, makeAskHandler(cfg.Asker))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List all uploaded documents with their processing status, newest first.",
	}, makeListHandler(cfg.Documents))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_document",
		Description: "Delete a document and all of its indexed chunks.",
	}, makeDeleteHandler(cfg.Pipeline))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_index_status",
		Description: "Get document counts per status, chunk counts and vector backend connectivity, optionally for a single document.",
	}, makeStatusHandler(cfg.Documents, cfg.Vectors))

	return &Server{server: server, logger: logger}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Serving MCP over stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
