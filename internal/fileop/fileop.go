// Package fileop implements the docci-file family of tags: creating or
// resetting a file, then optionally inserting content at a line or
// replacing a line range. Grounded on
// original_source/src/managers/file_operations.py's handle_file_content,
// including its exact order of operations (reset-or-create, then insert,
// then replace) and its 1-based, negative-offset-from-EOF line addressing.
package fileop

import (
	"os"
	"path/filepath"
	"strings"
)

// Op describes one docci-file mutation.
type Op struct {
	FileName         string // docci-file value, relative to WorkingDir unless absolute
	Content          string
	InsertAtLine     *int   // docci-line-insert; positive = 1-based before line N, negative = from EOF
	ReplaceStart     *int   // docci-line-replace start (1-based, inclusive)
	ReplaceEnd       *int   // docci-line-replace end (1-based, inclusive); nil means single line
	Reset            bool   // docci-reset-file
	IfFileNotExists  string // docci-if-file-not-exists: when non-empty, skip if the target file already exists
	WorkingDir       string
}

// Apply performs the mutation described by op, returning whether it ran
// (false if op.FileName is empty or the if_file_not_exists guard skipped
// it) and any I/O error encountered.
func Apply(op Op) (bool, error) {
	if op.FileName == "" {
		return false, nil
	}

	path := op.FileName
	if op.WorkingDir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(op.WorkingDir, path)
	}

	if op.IfFileNotExists != "" {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	content := op.Content
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}

	if _, err := os.Stat(path); os.IsNotExist(err) || op.Reset {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return false, err
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	lines := splitKeepingNewlines(string(raw))

	if op.InsertAtLine != nil {
		n := *op.InsertAtLine
		var insertAt int
		if n > 0 {
			insertAt = n - 1
		} else {
			insertAt = len(lines) + n + 1
		}
		if insertAt < 0 {
			insertAt = 0
		}
		if insertAt > len(lines) {
			insertAt = len(lines)
		}
		lines = insertAt0(lines, insertAt, content)
	}

	if op.ReplaceStart != nil {
		start := *op.ReplaceStart
		if start > 0 {
			start--
		} else {
			start = 0
		}

		if op.ReplaceEnd != nil && *op.ReplaceEnd > 0 {
			end := *op.ReplaceEnd
			if end >= len(lines) {
				end = len(lines)
			}
			lines = replaceRange(lines, start, end, content)
		} else if start >= len(lines) {
			lines = append(lines, content)
		} else {
			lines[start] = content
		}
	}

	return true, os.WriteFile(path, []byte(strings.Join(lines, "")), 0o644)
}

// splitKeepingNewlines splits s into lines, each retaining its trailing
// "\n" (matching Python's readlines()), except a possible final line with
// no trailing newline.
func splitKeepingNewlines(s string) []string {
	if s == "" {
		return nil
	}
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func insertAt0(lines []string, at int, value string) []string {
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:at]...)
	out = append(out, value)
	out = append(out, lines[at:]...)
	return out
}

func replaceRange(lines []string, start, end int, value string) []string {
	out := make([]string, 0, len(lines))
	out = append(out, lines[:start]...)
	out = append(out, value)
	out = append(out, lines[end:]...)
	return out
}
