// File: cmd/serve.go
package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter-mcp/api/schemas"
	"github.com/xkilldash9x/specter-mcp/internal/browser"
	"github.com/xkilldash9x/specter-mcp/internal/config"
	"github.com/xkilldash9x/specter-mcp/internal/mcpserver"
	"github.com/xkilldash9x/specter-mcp/internal/observability"
	"github.com/xkilldash9x/specter-mcp/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP tools over stdio (the default when no subcommand is given)",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.Get()
	logger := observability.GetLogger()
	defer observability.Sync()

	archive, cleanup, err := buildArchive(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	engine := browser.NewEngine(ctx, logger, cfg)
	defer func() {
		// Shutdown gets a fresh context; the serve context is already
		// cancelled by the time we land here.
		if err := engine.Shutdown(context.Background()); err != nil {
			logger.Warn("Browser engine shutdown reported an error.", zap.Error(err))
		}
	}()

	server := mcpserver.New(logger, cfg, engine, archive)
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp server terminated: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

// buildArchive connects the optional PostgreSQL capture archive. Returns a
// nil archive when disabled.
func buildArchive(ctx context.Context, cfg *config.Config, logger *zap.Logger) (schemas.CaptureArchive, func(), error) {
	if !cfg.Archive.Enabled {
		return nil, nil, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Archive.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create archive pool: %w", err)
	}

	s, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to connect to archive: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	logger.Info("Capture archive enabled")
	return s, pool.Close, nil
}
