// File: cmd/root.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter-mcp/internal/config"
	"github.com/xkilldash9x/specter-mcp/internal/observability"
)

var cfgFile string

// rootCmd represents the base command. Running the binary without a
// subcommand starts the MCP server, which is how MCP clients launch it.
var rootCmd = &cobra.Command{
	Use:     "specter-mcp",
	Short:   "Specter is an MCP server for stealthy browsing and network capture.",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initializeConfig(); err != nil {
			return fmt.Errorf("failed to initialize configuration: %w", err)
		}

		var cfg config.Config
		if err := viper.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("failed to unmarshal config: %w", err)
		}

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		config.Set(&cfg)
		observability.InitializeLogger(cfg.Logger)

		return nil
	},
	RunE: runServe,
}

// Execute runs the root command. It accepts a context passed from main.go
// for graceful shutdown.
func Execute(ctx context.Context) error {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			// Context cancellation is the normal shutdown path, not a failure.
			if ctx.Err() == nil {
				logger.Error("Command execution failed", zap.Error(err))
			}
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(capturesCmd)
	rootCmd.AddCommand(versionCmd)
}

// initializeConfig reads in config file and ENV variables if set.
func initializeConfig() error {
	// Set default values so the server can run with no config at all.
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("SPECTER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Archive connection string, bound explicitly so the short form works.
	_ = viper.BindEnv("archive.url", "SPECTER_ARCHIVE_URL")

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; anything else (parse errors, bad
		// permissions) is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}
