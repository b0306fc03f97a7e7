package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/itease/webtpl/pkg/config"
	"github.com/itease/webtpl/pkg/server"
	"github.com/itease/webtpl/pkg/webtemplate"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

var serveCmd = cobra.Command{
	Use:   "serve",
	Short: "Serve the configured routes over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		listen, _ := cmd.Flags().GetString("listen")

		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if listen != "" {
			cfg.Listen = listen
		}
		if cfg.CacheDir == "" {
			cfg.CacheDir = webtemplate.DefaultCacheDir()
		}
		if err := ensureWritable(cfg.CacheDir); err != nil {
			return err
		}

		srv, err := server.New(cfg, slog.Default())
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return srv.ListenAndServe(ctx)
	},
}

// ensureWritable creates dir if needed and checks the server may write cache
// files into it.
func ensureWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	if err := unix.Access(dir, unix.W_OK|unix.X_OK); err != nil {
		return fmt.Errorf("cache directory %s is not writable: %w", dir, err)
	}
	return nil
}
