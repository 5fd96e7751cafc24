package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/markdocs/docrunner/internal/config"
)

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDriverRunSucceedsOnPassingDoc(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "README.md", "```bash\necho hello\n```\n")

	cfg := config.Default()
	cfg.Paths = []string{dir}
	cfg.WorkingDir = dir

	d := New(cfg)
	result := d.Run(context.Background())
	if !result.Passed() {
		t.Fatalf("Run() error = %v", result.Err)
	}
	if result.FileCount != 1 {
		t.Fatalf("FileCount = %d, want 1", result.FileCount)
	}
}

func TestDriverRunReturnsFirstBlockError(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "README.md", "```bash\nexit 3\n```\n")

	cfg := config.Default()
	cfg.Paths = []string{dir}
	cfg.WorkingDir = dir

	d := New(cfg)
	result := d.Run(context.Background())
	if result.Passed() {
		t.Fatalf("expected a failing run")
	}
}

func TestDriverRunWalksDirectoryInSortedOrder(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "b.md", "```bash\necho b\n```\n")
	writeDoc(t, dir, "a.md", "```bash\necho a\n```\n")
	writeDoc(t, dir, "sub/c.md", "```bash\necho c\n```\n")

	cfg := config.Default()
	cfg.Paths = []string{dir}
	cfg.WorkingDir = dir

	d := New(cfg)
	files, err := d.enumerateFiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 3 {
		t.Fatalf("files = %v", files)
	}
	if filepath.Base(files[0]) != "a.md" {
		t.Fatalf("expected a.md first, got %v", files)
	}
}

func TestDriverRunExecutesPreAndCleanupCmds(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "README.md", "```bash\necho body\n```\n")
	marker := filepath.Join(dir, "marker.txt")

	cfg := config.Default()
	cfg.Paths = []string{dir}
	cfg.WorkingDir = dir
	cfg.PreCmds = []string{"echo pre > " + marker}
	cfg.CleanupCmds = []string{"echo cleanup >> " + marker}

	d := New(cfg)
	result := d.Run(context.Background())
	if !result.Passed() {
		t.Fatalf("Run() error = %v", result.Err)
	}

	got, err := os.ReadFile(marker)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "pre\ncleanup\n" {
		t.Fatalf("marker content = %q", got)
	}
}

func TestDriverRunInterruptedContextAbortsImmediately(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "README.md", "```bash\necho hello\n```\n")

	cfg := config.Default()
	cfg.Paths = []string{dir}
	cfg.WorkingDir = dir

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := New(cfg)
	result := d.Run(ctx)
	if result.Passed() {
		t.Fatalf("expected an interrupted run")
	}
}

func TestDriverRunSinglePathFile(t *testing.T) {
	dir := t.TempDir()
	file := writeDoc(t, dir, "doc.md", "```bash\necho single\n```\n")

	cfg := config.Default()
	cfg.Paths = []string{file}
	cfg.WorkingDir = dir

	d := New(cfg)
	result := d.Run(context.Background())
	if !result.Passed() {
		t.Fatalf("Run() error = %v", result.Err)
	}
	if result.FileCount != 1 {
		t.Fatalf("FileCount = %d", result.FileCount)
	}
}
