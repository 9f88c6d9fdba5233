// Package main provides tutorctl, the operator CLI for course indexing,
// schema migrations and a stdio MCP server.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bull/robotics-tutor/internal/config"
	"github.com/bull/robotics-tutor/internal/logging"
)

var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:          "tutorctl",
	Short:        "Robotics tutor operations tool",
	Long:         "CLI tool for indexing course content, migrating the database and serving MCP over stdio",
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "optional config file (yaml, toml or json)")
	rootCmd.AddCommand(syncCmd, migrateCmd, mcpCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}

// loadConfig reads configuration and installs the process logger. Logs go
// to stderr so they never mix with command output or the MCP stdio stream.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logging.New(cfg.Log, os.Stderr))
	return cfg, nil
}
