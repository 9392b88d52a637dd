// Command kedungd runs the kedung cache server: it loads config.toml,
// resolves the socket and log directories, and serves framed JSON commands
// over a Unix domain socket until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xpecel/kedung/internal/config"
	"github.com/xpecel/kedung/internal/klog"
	"github.com/xpecel/kedung/internal/server"
	"github.com/xpecel/kedung/internal/sockpath"
	"github.com/xpecel/kedung/internal/store"
)

var version = "0.1.0" // set during build with -ldflags

var rootCmd = &cobra.Command{
	Use:     "kedungd",
	Short:   "kedung - in-memory key/value cache server over a Unix socket",
	Version: version,
	RunE:    runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the kedung server (default when run with no subcommand)",
	RunE:  runServe,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		fmt.Println(cfg.String())
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("kedungd v%s\n", version)
	},
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := klog.Configure(cfg.LogLevel)

	socketDir := sockpath.Resolve(cfg.SocketDir)
	socketFile := sockpath.SocketFile(socketDir)

	logger.Info().
		Str("socket", socketFile).
		Str("log_level", cfg.LogLevel).
		Int("cache_duration_minutes", cfg.CacheDuration).
		Int("prefix_width", cfg.PreallocateSpace).
		Msg("starting kedung")

	s := server.New(
		store.New(cfg.CacheTTL()),
		socketFile,
		cfg.PreallocateSpace,
		5*time.Second,
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	if err := s.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}

	logger.Info().Msg("kedung stopped")
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
