// File: cmd/captures.go
package cmd

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/specter-mcp/internal/config"
	"github.com/xkilldash9x/specter-mcp/internal/observability"
	"github.com/xkilldash9x/specter-mcp/internal/store"
)

var capturesLimit int

var capturesCmd = &cobra.Command{
	Use:   "captures",
	Short: "List recent snapshots from the capture archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.Get()
		logger := observability.GetLogger()
		defer observability.Sync()

		if !cfg.Archive.Enabled {
			return fmt.Errorf("the capture archive is disabled; set archive.enabled and archive.url")
		}

		pool, err := pgxpool.New(ctx, cfg.Archive.URL)
		if err != nil {
			return fmt.Errorf("failed to create archive pool: %w", err)
		}
		defer pool.Close()

		s, err := store.New(ctx, pool, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to archive: %w", err)
		}

		summaries, err := s.RecentCaptures(ctx, capturesLimit)
		if err != nil {
			return err
		}
		if len(summaries) == 0 {
			cmd.Println("No captures archived yet.")
			return nil
		}

		for _, c := range summaries {
			cmd.Printf("%s  %-40s  %4d requests  %s\n", c.CapturedAt, c.PageURL, c.RequestCount, c.PageTitle)
		}
		return nil
	},
}

func init() {
	capturesCmd.Flags().IntVarP(&capturesLimit, "limit", "n", 20, "maximum number of captures to list")
}
