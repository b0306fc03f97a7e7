package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/itease/webtpl/pkg/webtemplate"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var batchCmd = cobra.Command{
	Use:   "batch [template...]",
	Short: "Render many templates into an output directory",
	Long: "Render each template into the output directory under its base name. " +
		"A data document next to a template (page.html, page.yaml) is applied first.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outDir, _ := cmd.Flags().GetString("out")
		jobs, _ := cmd.Flags().GetInt("jobs")

		urls, err := renderBatch(cmd.Context(), args, outDir, jobs)
		if err != nil {
			return err
		}
		for i, path := range args {
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", path, urls[i])
		}
		return nil
	},
}

// renderBatch renders every template into outDir and returns the cache URL of
// each, in argument order.
func renderBatch(ctx context.Context, paths []string, outDir string, jobs int) ([]string, error) {
	seen := make(map[string]string, len(paths))
	for _, p := range paths {
		base := filepath.Base(p)
		if prev, ok := seen[base]; ok {
			return nil, fmt.Errorf("%s and %s would both be written to %s", prev, p, base)
		}
		seen[base] = p
		if err := checkNotSource(p, filepath.Join(outDir, base)); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	urls := make([]string, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			url, err := renderOne(p, outDir)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			urls[i] = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return urls, nil
}

// checkNotSource refuses an output path that would overwrite the template
// being rendered.
func checkNotSource(src, dst string) error {
	absSrc, err := filepath.Abs(src)
	if err != nil {
		return err
	}
	absDst, err := filepath.Abs(dst)
	if err != nil {
		return err
	}
	if absSrc == absDst {
		return fmt.Errorf("%s: output would overwrite the template, choose another --out directory", src)
	}
	return nil
}

func renderOne(path, outDir string) (string, error) {
	logger := slog.Default().With("template", path)
	f, err := webtemplate.Open(path, webtemplate.WithCacheDir(outDir), webtemplate.WithLogger(logger))
	if err != nil {
		return "", err
	}
	dataPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".yaml"
	if _, err := os.Stat(dataPath); err == nil && dataPath != path {
		d, err := webtemplate.LoadData(dataPath)
		if err != nil {
			return "", err
		}
		if err := f.Apply(d); err != nil {
			return "", err
		}
		logger.Debug("applied data", "data", dataPath)
	}
	return f.CacheFile(filepath.Base(path))
}
