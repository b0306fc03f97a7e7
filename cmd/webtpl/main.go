package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = cobra.Command{
	Use:           "webtpl",
	Short:         "Render and serve block templates",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			os.Setenv("WEBTPL_VERBOSE", "1")
		}
		slog.SetDefault(newLogger())
	},
}

// newLogger logs to stderr; WEBTPL_VERBOSE enables debug output.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("WEBTPL_VERBOSE") != "" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// parseAssignments turns repeated NAME=VALUE flags into a map.
func parseAssignments(vals []string) (map[string]string, error) {
	out := make(map[string]string, len(vals))
	for _, kv := range vals {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid assignment %q, expected NAME=VALUE", kv)
		}
		out[name] = value
	}
	return out, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	renderCmd.Flags().String("data", "", "YAML data document applied before rendering")
	renderCmd.Flags().String("script", "", "Starlark controller script run before rendering")
	renderCmd.Flags().StringArray("set", nil, "Scope variable as NAME=VALUE, may be repeated")
	renderCmd.Flags().StringP("output", "o", "", "Write to this file instead of stdout")
	rootCmd.AddCommand(&renderCmd)

	dumpCmd.Flags().Bool("plain", false, "Disable styling")
	rootCmd.AddCommand(&dumpCmd)

	batchCmd.Flags().String("out", "out", "Directory the rendered pages are written to")
	batchCmd.Flags().Int("jobs", 4, "Number of templates rendered concurrently")
	rootCmd.AddCommand(&batchCmd)

	serveCmd.Flags().String("config", "webtpl.yaml", "Path to the server configuration file")
	serveCmd.Flags().String("listen", "", "Override the configured listen address")
	rootCmd.AddCommand(&serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
