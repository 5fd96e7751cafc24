package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/adhocore/gronx"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/markdocs/docrunner/internal/config"
	"github.com/markdocs/docrunner/internal/driver"
	"github.com/markdocs/docrunner/internal/history"
)

var (
	watchMode    bool
	sqlitePath   string
	debounceSpan = 500 * time.Millisecond
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <config-path|config-dir|json-blob>",
		Short: "Run the configured documentation test suite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.ResolveSource(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if cfg.Schedule != "" {
				return runOnSchedule(ctx, cfg)
			}
			if watchMode {
				return runWatching(ctx, cfg)
			}
			return runOnce(ctx, cfg)
		},
	}
	cmd.Flags().BoolVar(&watchMode, "watch", false, "re-run the suite whenever a watched file changes")
	cmd.Flags().StringVar(&sqlitePath, "history-db", "", "path to the local SQLite run-history file (default: ~/.docrunner/history.db)")
	return cmd
}

func runOnce(ctx context.Context, cfg *config.Config) error {
	d := driver.New(cfg)
	result := d.Run(ctx)
	recordHistory(ctx, cfg, result)

	if !result.Passed() {
		return result.Err
	}
	slog.Info("run succeeded", "run_id", result.RunID, "files", result.FileCount, "duration", result.EndedAt.Sub(result.StartedAt))
	return nil
}

func runOnSchedule(ctx context.Context, cfg *config.Config) error {
	for {
		if err := runOnce(ctx, cfg); err != nil {
			slog.Error("scheduled run failed", "error", err)
		}

		next, err := gronx.NextTick(cfg.Schedule, false)
		if err != nil {
			return fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(next)):
		}
	}
}

func runWatching(ctx context.Context, cfg *config.Config) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	for _, path := range cfg.Paths {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		dir := path
		if !info.IsDir() {
			dir = filepath.Dir(path)
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %q: %w", dir, err)
		}
	}

	if err := runOnce(ctx, cfg); err != nil {
		slog.Error("initial run failed", "error", err)
	}

	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher closed unexpectedly")
			}
			if isMarkdownFile(event.Name) {
				debounce.Reset(debounceSpan)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			slog.Warn("watcher error", "error", err)

		case <-debounce.C:
			slog.Info("change detected, re-running suite")
			if err := runOnce(ctx, cfg); err != nil {
				slog.Error("watched run failed", "error", err)
			}
		}
	}
}

func isMarkdownFile(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".md" || ext == ".mdx"
}

func recordHistory(ctx context.Context, cfg *config.Config, result driver.Result) {
	store, err := history.Open(ctx, cfg.PostgresDSN, sqlitePath)
	if err != nil {
		slog.Warn("could not open run-history store", "error", err)
		return
	}
	defer store.Close()

	rec := history.Record{
		RunID:      result.RunID,
		StartedAt:  result.StartedAt,
		EndedAt:    result.EndedAt,
		ConfigHash: cfg.Hash(),
		Passed:     result.Passed(),
		FileCount:  result.FileCount,
	}
	if result.Err != nil {
		rec.FirstError = result.Err.Error()
	}
	if err := store.Append(ctx, rec); err != nil {
		slog.Warn("could not record run history", "error", err)
	}
}
