// Package driver implements the Run Driver (C11): it owns the per-run
// EnvMap and Process Registry, enumerates configured paths, parses and
// executes each file's blocks through the Execution Engine, and guarantees
// cleanup commands and registry teardown run on every exit path.
// Grounded on original_source/main.py's do_logic (the try/except/finally
// shape, pre/cleanup command placement) and
// original_source/src/config.py's get_all_possible_paths (sorted,
// per-configured-path file discovery).
package driver

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/markdocs/docrunner/internal/config"
	docerrors "github.com/markdocs/docrunner/internal/errors"
	"github.com/markdocs/docrunner/internal/engine"
	"github.com/markdocs/docrunner/internal/markdown"
	"github.com/markdocs/docrunner/internal/procregistry"
	"github.com/markdocs/docrunner/internal/procrunner"
)

// Result summarizes one completed run, used both for CLI reporting and for
// the run-history store's append-only record.
type Result struct {
	RunID     string
	StartedAt time.Time
	EndedAt   time.Time
	Err       error
	FileCount int
}

// Passed reports whether the run completed without error.
func (r Result) Passed() bool { return r.Err == nil }

// Driver runs one configured suite of Markdown files end to end.
type Driver struct {
	Config *config.Config
	Tracer trace.Tracer
}

// New builds a Driver for cfg, defaulting to a no-op tracer.
func New(cfg *config.Config) *Driver {
	return &Driver{Config: cfg}
}

// Run executes spec.md §4.11 step by step: pre_cmds, env merge, path
// enumeration, per-file parse-and-run, then cleanup and registry drain in
// a deferred block that always executes. The returned Result's Err holds
// the first error encountered, or nil on full success.
func (d *Driver) Run(ctx context.Context) Result {
	runID := uuid.Must(uuid.NewV7()).String()
	result := Result{RunID: runID, StartedAt: time.Now()}

	tracer := d.tracer()
	ctx, span := tracer.Start(ctx, "docrunner.run", trace.WithAttributes(
		attribute.String("docrunner.run_id", runID),
	))
	defer span.End()

	registry := procregistry.New()
	runner := procrunner.New()
	env := engine.NewEnvMap()

	defer func() {
		registry.Cleanup()
		d.runDiscardingOutput(ctx, env, d.Config.CleanupCmds, "cleanup")
		result.EndedAt = time.Now()
	}()

	if err := ctx.Err(); err != nil {
		result.Err = &docerrors.Interrupted{}
		return result
	}

	d.runDiscardingOutput(ctx, env, d.Config.PreCmds, "pre")

	env.Merge(d.Config.EnvVars)

	files, err := d.enumerateFiles()
	if err != nil {
		result.Err = &docerrors.ConfigurationError{Path: strings.Join(d.Config.Paths, ","), Err: err}
		return result
	}

	eng := &engine.Engine{
		Runner:     runner,
		Registry:   registry,
		Env:        env,
		WorkingDir: d.Config.WorkingDir,
		IgnoreCmds: d.Config.IgnoreCommandSet(),
		Tracer:     tracer,
		Debugging:  d.Config.Debugging,
	}

	followed := d.Config.FollowedLanguageSet()

	for _, file := range files {
		select {
		case <-ctx.Done():
			result.Err = &docerrors.Interrupted{File: file}
			return result
		default:
		}

		result.FileCount++

		content, err := os.ReadFile(file)
		if err != nil {
			result.Err = &docerrors.ConfigurationError{Path: file, Err: err}
			return result
		}

		blocks, err := markdown.Parse(string(content), followed)
		if err != nil {
			result.Err = &docerrors.ConfigurationError{Path: file, Err: err}
			return result
		}

		if err := eng.Run(ctx, file, blocks); err != nil {
			slog.Error("run failed", "run_id", runID, "file", file, "error", err)
			result.Err = err
			return result
		}
	}

	return result
}

// runDiscardingOutput runs each command in cmds sequentially, in the
// configured working dir, logging failures but never aborting the run —
// matching config.run_pre_cmds/run_cleanup_cmds's hide_output=True mode.
func (d *Driver) runDiscardingOutput(ctx context.Context, env *engine.EnvMap, cmds []string, phase string) {
	for _, cmd := range cmds {
		c := exec.CommandContext(ctx, "sh", "-c", cmd)
		c.Dir = d.Config.WorkingDir
		c.Env = env.Slice()
		if err := c.Run(); err != nil {
			slog.Warn("command failed", "phase", phase, "command", cmd, "error", err)
		}
	}
}

// enumerateFiles walks every configured path in order, yielding files
// sorted lexicographically within each path, matching spec.md §4.11 step 3.
func (d *Driver) enumerateFiles() ([]string, error) {
	extensions := make(map[string]bool, len(d.Config.SupportedFileExtensions))
	for _, ext := range d.Config.SupportedFileExtensions {
		extensions[ext] = true
	}

	var out []string
	for _, path := range d.Config.Paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("configured path %q: %w", path, err)
		}

		if !info.IsDir() {
			out = append(out, path)
			continue
		}

		var matched []string
		err = filepath.WalkDir(path, func(p string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if entry.IsDir() {
				return nil
			}
			if extensions[filepath.Ext(p)] {
				matched = append(matched, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %q: %w", path, err)
		}
		sort.Strings(matched)
		out = append(out, matched...)
	}
	return out, nil
}

func (d *Driver) tracer() trace.Tracer {
	if d.Tracer != nil {
		return d.Tracer
	}
	return trace.NewNoopTracerProvider().Tracer("docrunner")
}
