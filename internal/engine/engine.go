// Package engine implements the per-block execution lifecycle (C10):
// the docci-ignore gate, endpoint wait, file mutation, then the remaining
// skip gates (file-exists, OS, installed binary) and the command loop with
// per-command retries and env threading, finishing with the block-level
// output_contains / expect_failure assertions. Grounded on
// original_source/src/managers/cmd.py's CommandExecutor.run_commands (the
// retry loop shape, the three _should_skip_* gates) and
// original_source/src/managers/core.py's CodeBlockCore.run_commands (the
// endpoint → file-op → command-exec short-circuit order).
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	docerrors "github.com/markdocs/docrunner/internal/errors"
	"github.com/markdocs/docrunner/internal/delay"
	"github.com/markdocs/docrunner/internal/endpoint"
	"github.com/markdocs/docrunner/internal/fileop"
	"github.com/markdocs/docrunner/internal/markdown"
	"github.com/markdocs/docrunner/internal/procregistry"
	"github.com/markdocs/docrunner/internal/procrunner"
	"github.com/markdocs/docrunner/internal/shellsub"
)

// backgroundExcludePrefixes lists first-words that never run in the
// background even when docci-background is set — persisting their
// env/cwd/IO side effects into the parent process matters more than
// detaching them. Mirrors cmd.py's background_exclude_commands default.
var backgroundExcludePrefixes = map[string]bool{
	"cp": true, "export": true, "cd": true, "mkdir": true, "echo": true, "cat": true,
}

// EnvMap is the Driver-owned environment threaded through a run, replacing
// the original tool's mutation of the process-global os.environ (spec.md
// §9's explicit redesign).
type EnvMap struct {
	vars map[string]string
}

// NewEnvMap seeds an EnvMap from the current process environment.
func NewEnvMap() *EnvMap {
	m := &EnvMap{vars: map[string]string{}}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m.vars[k] = v
		}
	}
	return m
}

// Merge folds additions into the map, overwriting existing keys.
func (e *EnvMap) Merge(additions map[string]string) {
	for k, v := range additions {
		e.vars[k] = v
	}
}

// Slice renders the map as a "KEY=VALUE" slice suitable for exec.Cmd.Env.
func (e *EnvMap) Slice() []string {
	out := make([]string, 0, len(e.vars))
	for k, v := range e.vars {
		out = append(out, k+"="+v)
	}
	return out
}

// Engine executes blocks against a shared Runner, Registry, and EnvMap;
// the Driver builds one per run and reuses it for every file.
type Engine struct {
	Runner        *procrunner.Runner
	Registry      *procregistry.Registry
	Env           *EnvMap
	WorkingDir    string
	IgnoreCmds    map[string]bool
	Tracer        trace.Tracer
	Debugging     bool
}

// Run executes one parsed Markdown file's blocks in order, returning the
// first error encountered (wrapped with file path and block index per
// spec.md's error-prefix contract), or nil if every block succeeded.
func (e *Engine) Run(ctx context.Context, filePath string, blocks []markdown.CodeBlock) error {
	for _, block := range blocks {
		if err := e.runBlock(ctx, filePath, block); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) runBlock(ctx context.Context, filePath string, block markdown.CodeBlock) error {
	ctx, span := e.tracer().Start(ctx, "docrunner.block",
		trace.WithAttributes(
			attribute.String("docrunner.file", filePath),
			attribute.Int("docrunner.block_index", block.Index),
			attribute.String("docrunner.language", block.Language),
		),
	)
	defer span.End()

	if block.Ignored {
		slog.Debug("block ignored", "file", filePath, "block", block.Index)
		return nil
	}

	if block.Endpoint != nil {
		slog.Info("waiting for endpoint", "file", filePath, "block", block.Index, "url", block.Endpoint.URL)
		_, ok := endpoint.Wait(ctx, *block.Endpoint, time.Second, func(a endpoint.Attempt) {
			slog.Debug("endpoint poll attempt", "message", a.Message)
		})
		if !ok {
			return &docerrors.EndpointTimeout{File: filePath, Block: block.Index, URL: block.Endpoint.URL}
		}
	}

	if block.FileOp != nil {
		op := *block.FileOp
		op.WorkingDir = e.WorkingDir
		ran, err := fileop.Apply(op)
		if err != nil {
			return &docerrors.FileOperationError{File: filePath, Block: block.Index, Path: op.FileName, Err: err}
		}
		if ran {
			return nil
		}
	}

	if block.CommandExec != nil {
		return e.runCommands(ctx, filePath, block.Index, block.CommandExec, block.Delay)
	}

	return nil
}

func (e *Engine) runCommands(ctx context.Context, filePath string, blockIndex int, ce *markdown.CommandExec, dm delay.Manager) error {
	if e.shouldSkipBlock(ce) {
		slog.Debug("block skipped", "file", filePath, "block", blockIndex)
		return nil
	}

	var hadError bool
	var lastErr error
	var allOutputs []string

	runnable := make([]string, 0, len(ce.Commands))
	for _, command := range ce.Commands {
		if !e.shouldSkipCommand(command) {
			runnable = append(runnable, command)
		}
	}

	for i, command := range runnable {
		isLastCommand := i == len(runnable)-1

		additions, err := shellsub.ParseEnv(ctx, e.Runner, command)
		if err != nil {
			return &docerrors.CommandFailure{File: filePath, Block: blockIndex, Command: command, Err: err}
		}
		e.Env.Merge(additions)

		if procrunner.IsSourceCommand(command) {
			diff, err := e.Runner.RunSource(ctx, command, e.WorkingDir, e.Env.Slice())
			if err != nil {
				hadError = true
				lastErr = &docerrors.CommandFailure{File: filePath, Block: blockIndex, Command: command, Err: err}
				continue
			}
			e.Env.Merge(diff)
			continue
		}

		runInBackground := ce.Background && !hasExcludedPrefix(command)

		if err := dm.Handle(ctx, delay.Cmd); err != nil {
			return &docerrors.Interrupted{File: filePath, Block: blockIndex}
		}

		if runInBackground {
			if err := e.runBackgroundCommand(ctx, command); err != nil {
				return &docerrors.CommandFailure{File: filePath, Block: blockIndex, Command: command, Err: err}
			}
			continue
		}

		checkOutputContains := isLastCommand && ce.HasOutputCheck
		output, runErr := e.runForegroundWithRetry(ctx, command, ce, allOutputs, checkOutputContains, dm.PerCmd)
		if output != "" {
			allOutputs = append(allOutputs, output)
		}
		if runErr != nil {
			hadError = true
			if ce.ExpectFailure {
				continue
			}
			var ve *docerrors.ValidationError
			if isValidationError(runErr, &ve) {
				ve.File, ve.Block = filePath, blockIndex
				return ve
			}
			if miss, ok := runErr.(*outputContainsMiss); ok {
				lastErr = &docerrors.AssertionFailure{File: filePath, Block: blockIndex, Reason: miss.Error()}
				break
			}
			lastErr = &docerrors.CommandFailure{File: filePath, Block: blockIndex, Command: command, Err: runErr}
			break
		}
	}

	if err := dm.Handle(ctx, delay.PostBlock); err != nil {
		return &docerrors.Interrupted{File: filePath, Block: blockIndex}
	}

	if ce.ExpectFailure {
		if hadError {
			return nil
		}
		return &docerrors.AssertionFailure{File: filePath, Block: blockIndex, Reason: "expected failure but command succeeded"}
	}

	if lastErr != nil {
		return lastErr
	}

	if ce.HasOutputCheck && len(allOutputs) > 0 {
		combined := strings.Join(allOutputs, "\n")
		if !strings.Contains(combined, ce.OutputContains) {
			return &docerrors.AssertionFailure{
				File: filePath, Block: blockIndex,
				Reason: fmt.Sprintf("output does not contain %q", ce.OutputContains),
			}
		}
	}

	return nil
}

// runForegroundWithRetry runs command up to ce.RetryCount+1 times. A retry
// fires when the exit status is non-zero, or — when checkOutputContains is
// set (this is the block's last command and output_contains is
// configured) — when the expected substring is still absent from
// priorOutputs plus this attempt's output. Between retries it sleeps
// cmd_delay (default 2s if unset), per cmd.py's _handle_retry_cmd_delay.
func (e *Engine) runForegroundWithRetry(ctx context.Context, command string, ce *markdown.CommandExec, priorOutputs []string, checkOutputContains bool, cmdDelay time.Duration) (string, error) {
	effective := command
	if ce.ReplaceText != "" {
		text, envVar, ok := strings.Cut(ce.ReplaceText, ";")
		if !ok {
			return "", fmt.Errorf("invalid format for docci-replace-text, expected 'text;ENV_VAR': %s", ce.ReplaceText)
		}
		value, ok := e.Env.vars[envVar]
		if !ok {
			return "", fmt.Errorf("environment variable %q not set, required by docci-replace-text", envVar)
		}
		effective = strings.ReplaceAll(command, text, value)
	}

	maxAttempts := ce.RetryCount + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	retryDelay := 2 * time.Second
	if cmdDelay > 0 {
		retryDelay = cmdDelay
	}

	var lastOutput string
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := e.Runner.Run(ctx, effective, e.WorkingDir, e.Env.Slice())
		lastOutput = res.Output
		lastErr = err

		var ve *docerrors.ValidationError
		if isValidationError(err, &ve) {
			return lastOutput, ve
		}

		needsRetry := err != nil
		if !needsRetry && checkOutputContains {
			combined := strings.Join(append(append([]string{}, priorOutputs...), lastOutput), "\n")
			if !strings.Contains(combined, ce.OutputContains) {
				needsRetry = true
			}
		}

		if !needsRetry {
			return lastOutput, nil
		}
		if lastErr == nil {
			lastErr = &outputContainsMiss{substring: ce.OutputContains}
		}

		if attempt < maxAttempts {
			slog.Info("retrying failed command", "command", effective, "attempt", attempt, "max_attempts", maxAttempts)
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return lastOutput, ctx.Err()
			}
		}
	}

	return lastOutput, lastErr
}

// outputContainsMiss marks a retry exhaustion caused by the last command's
// accumulated output never containing the configured docci-output-contains
// substring, distinct from an ordinary non-zero exit status.
type outputContainsMiss struct{ substring string }

func (e *outputContainsMiss) Error() string {
	return fmt.Sprintf("output does not contain %q", e.substring)
}

func (e *Engine) runBackgroundCommand(ctx context.Context, command string) error {
	handle, err := e.Runner.RunBackground(ctx, command, e.WorkingDir, e.Env.Slice(), nil)
	if err != nil {
		return err
	}
	handle.OnEOF(func(pid int) { e.Registry.Remove(pid) })
	e.Registry.Add(handle, command)
	return nil
}

func (e *Engine) shouldSkipBlock(ce *markdown.CommandExec) bool {
	if ce.IfFileNotExists != "" {
		path := ce.IfFileNotExists
		if e.WorkingDir != "" {
			path = e.WorkingDir + string(os.PathSeparator) + path
		}
		if _, err := os.Stat(path); err == nil {
			return true
		}
	}

	if ce.MachineOS != "" && ce.MachineOS != runtime.GOOS {
		return true
	}

	if ce.Binary != "" {
		if _, err := exec.LookPath(ce.Binary); err == nil {
			return true
		}
	}

	return false
}

func (e *Engine) shouldSkipCommand(command string) bool {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return true
	}
	return e.IgnoreCmds[command]
}

func hasExcludedPrefix(command string) bool {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return false
	}
	return backgroundExcludePrefixes[fields[0]]
}

func (e *Engine) tracer() trace.Tracer {
	if e.Tracer != nil {
		return e.Tracer
	}
	return trace.NewNoopTracerProvider().Tracer("docrunner")
}

func isValidationError(err error, target **docerrors.ValidationError) bool {
	ve, ok := err.(*docerrors.ValidationError)
	if !ok {
		return false
	}
	*target = ve
	return true
}
