package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/markdocs/docrunner/internal/delay"
	"github.com/markdocs/docrunner/internal/markdown"
	"github.com/markdocs/docrunner/internal/procregistry"
	"github.com/markdocs/docrunner/internal/procrunner"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return &Engine{
		Runner:     procrunner.New(),
		Registry:   procregistry.New(),
		Env:        NewEnvMap(),
		WorkingDir: t.TempDir(),
	}
}

func TestRunSimpleSuccessfulBlock(t *testing.T) {
	e := newTestEngine(t)
	blocks, err := markdown.Parse("```bash\necho hello\n```\n", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Run(context.Background(), "doc.md", blocks); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestRunIgnoredBlockIsSkipped(t *testing.T) {
	e := newTestEngine(t)
	blocks, err := markdown.Parse("```bash docci-ignore\nexit 1\n```\n", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Run(context.Background(), "doc.md", blocks); err != nil {
		t.Fatalf("Run() error = %v, want nil since block is ignored", err)
	}
}

func TestRunCommandFailurePropagates(t *testing.T) {
	e := newTestEngine(t)
	blocks, err := markdown.Parse("```bash\nexit 7\n```\n", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Run(context.Background(), "doc.md", blocks); err == nil {
		t.Fatalf("expected an error for a failing command")
	}
}

func TestRunExpectFailureSucceedsOnCommandFailure(t *testing.T) {
	e := newTestEngine(t)
	blocks, err := markdown.Parse("```bash docci-assert-failure\nexit 1\n```\n", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Run(context.Background(), "doc.md", blocks); err != nil {
		t.Fatalf("Run() error = %v, want nil (failure was expected)", err)
	}
}

func TestRunExpectFailureErrorsWhenCommandSucceeds(t *testing.T) {
	e := newTestEngine(t)
	blocks, err := markdown.Parse("```bash docci-assert-failure\necho ok\n```\n", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Run(context.Background(), "doc.md", blocks); err == nil {
		t.Fatalf("expected an assertion error when the command unexpectedly succeeded")
	}
}

func TestRunOutputContainsSatisfied(t *testing.T) {
	e := newTestEngine(t)
	blocks, err := markdown.Parse("```bash docci-output-contains=\"READY\"\necho READY\n```\n", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Run(context.Background(), "doc.md", blocks); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestRunOutputContainsMissingFails(t *testing.T) {
	e := newTestEngine(t)
	e2 := *e
	e2.Runner = &procrunner.Runner{} // no per-command timeout; default retry sleep is 2s, keep RetryCount 0
	blocks, err := markdown.Parse("```bash docci-output-contains=\"NEVER\"\necho something-else\n```\n", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := e2.Run(context.Background(), "doc.md", blocks); err == nil {
		t.Fatalf("expected an assertion error when output_contains substring is missing")
	}
}

func TestRunFileOpCreatesFileAndShortCircuits(t *testing.T) {
	e := newTestEngine(t)
	blocks, err := markdown.Parse("```text docci-file=\"out.txt\"\nhello file\n```\n", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Run(context.Background(), "doc.md", blocks); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got, err := os.ReadFile(filepath.Join(e.WorkingDir, "out.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello file\n" {
		t.Fatalf("file content = %q", got)
	}
}

func TestRunSkipsBlockWhenIfFileNotExistsFileExists(t *testing.T) {
	e := newTestEngine(t)
	guard := filepath.Join(e.WorkingDir, "guard.txt")
	os.WriteFile(guard, []byte("present"), 0o644)

	blocks, err := markdown.Parse("```bash docci-if-file-not-exists=\""+guard+"\"\nexit 1\n```\n", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Run(context.Background(), "doc.md", blocks); err != nil {
		t.Fatalf("Run() error = %v, want nil because guard file already exists", err)
	}
}

func TestRunSkipsBlockWhenOSMismatches(t *testing.T) {
	e := newTestEngine(t)
	blocks, err := markdown.Parse("```bash docci-os=\"not-a-real-os\"\nexit 1\n```\n", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Run(context.Background(), "doc.md", blocks); err != nil {
		t.Fatalf("Run() error = %v, want nil because machine_os does not match", err)
	}
}

func TestEnvMapMergePersistsAcrossBlocks(t *testing.T) {
	e := newTestEngine(t)
	blocks, err := markdown.Parse("```bash\nexport DOCRUNNER_FOO=bar\n```\n\n```bash docci-output-contains=\"bar\"\necho $DOCRUNNER_FOO\n```\n", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Run(context.Background(), "doc.md", blocks); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if e.Env.vars["DOCRUNNER_FOO"] != "bar" {
		t.Fatalf("expected env to carry DOCRUNNER_FOO=bar, got %+v", e.Env.vars)
	}
}

func TestDelayManagerZeroIsNoop(t *testing.T) {
	dm := delay.Manager{}
	if err := dm.Handle(context.Background(), delay.Cmd); err != nil {
		t.Fatal(err)
	}
}
