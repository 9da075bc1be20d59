// Package mcpserver exposes the browser engine as a set of MCP tools over
// stdio. Tool results are rendered as a single JSON text block; internal
// errors are flattened to "Error: ..." text with the IsError flag set, so a
// misbehaving page never breaks the protocol stream.
package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter-mcp/api/schemas"
	"github.com/xkilldash9x/specter-mcp/internal/config"
)

// Server wires the browser engine and optional capture archive into an MCP
// server instance.
type Server struct {
	logger  *zap.Logger
	cfg     *config.Config
	engine  schemas.BrowserEngine
	archive schemas.CaptureArchive

	mcp *mcp.Server
}

// New builds the MCP server and registers the tool surface. The archive may
// be nil, in which case captures are not persisted.
func New(logger *zap.Logger, cfg *config.Config, engine schemas.BrowserEngine, archive schemas.CaptureArchive) *Server {
	s := &Server{
		logger:  logger.Named("mcp_server"),
		cfg:     cfg,
		engine:  engine,
		archive: archive,
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Server.Name,
		Version: cfg.Server.Version,
	}, nil)
	s.registerTools()

	return s
}

// Run serves MCP over stdio until the context is cancelled or the client
// disconnects. Stdout belongs to the protocol; all logging goes to stderr.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("MCP server starting on stdio",
		zap.String("name", s.cfg.Server.Name),
		zap.String("version", s.cfg.Server.Version),
	)
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}
