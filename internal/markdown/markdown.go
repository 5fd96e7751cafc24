// Package markdown implements the fenced-code-block extractor (C8) and the
// typed block model it produces (C9). Grounded on
// original_source/src/parsing.py (parse_markdown_code_blocks,
// process_language_parts, replace_at_line_converter) and
// original_source/src/managers/core.py (CodeBlockCore's field layout). No
// Markdown-rendering library in the pack models raw, un-rendered fenced
// blocks with info-line tag tokens, so this is a hand-rolled scanner
// matching the original's regex-driven approach rather than a
// stdlib-avoidance gap.
package markdown

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/markdocs/docrunner/internal/delay"
	"github.com/markdocs/docrunner/internal/endpoint"
	"github.com/markdocs/docrunner/internal/fileop"
	"github.com/markdocs/docrunner/internal/tags"
)

// ScriptingLanguages names the fence languages treated as executable
// shell scripts rather than inert, quoted reference content.
var ScriptingLanguages = map[string]bool{
	"shell": true, "bash": true, "sh": true, "zsh": true, "ksh": true,
}

// CommandExec is the executable-command side of a block: the docci tags
// that govern skip gates, retries, and output assertions.
type CommandExec struct {
	Commands        []string
	Background      bool
	OutputContains  string
	HasOutputCheck  bool
	ExpectFailure   bool
	MachineOS       string
	Binary          string
	IfFileNotExists string
	RetryCount      int
	ReplaceText     string
}

// CodeBlock is one fenced block with its tags resolved into typed fields.
type CodeBlock struct {
	Index       int
	Language    string
	Tags        []string
	Ignored     bool
	Delay       delay.Manager
	FileOp      *fileop.Op
	CommandExec *CommandExec
	Endpoint    *endpoint.Endpoint
}

var fencePattern = regexp.MustCompile(`(?s)` + "```" + `(.*?)\n(.*?)` + "```")

// stripFourBacktickWrappers removes a line-level ```` wrapper used purely
// to show a fenced block inside Markdown documentation, the same
// line-scan the original tool does: a line containing four backticks is
// dropped when its immediate predecessor or successor contains a
// triple-backtick fence (the wrapper is decorative around an inner
// block); a four-backtick line with no such neighbour is kept.
func stripFourBacktickWrappers(content string) string {
	if !strings.Contains(content, "````") {
		return content
	}
	lines := strings.Split(content, "\n")
	var out []string
	for i, line := range lines {
		if strings.Contains(line, "````") {
			var next, prev string
			if i+1 < len(lines) {
				next = lines[i+1]
			}
			if i > 0 {
				prev = lines[i-1]
			}
			if strings.Contains(next, "```") || strings.Contains(prev, "```") {
				continue
			}
		}
		out = append(out, line)
	}
	modified := strings.Join(out, "\n")
	if modified == "" {
		return content
	}
	return modified
}

// Parse extracts every fenced code block from content and resolves its
// tags into a CodeBlock. followedLanguages gates which fence languages
// are considered runnable at all (a nil set means "not gated", i.e.
// ignored is driven purely by docci-ignore; a non-nil empty set ignores
// every block).
func Parse(content string, followedLanguages map[string]bool) ([]CodeBlock, error) {
	content = stripFourBacktickWrappers(content)

	matches := fencePattern.FindAllStringSubmatch(content, -1)

	blocks := make([]CodeBlock, 0, len(matches))
	for idx, m := range matches {
		infoLine := strings.TrimSpace(m[1])
		rawContent := m[2]

		parts := strings.Fields(infoLine)
		language := ""
		if len(parts) > 0 {
			language = parts[0]
		}

		blockTags, err := processLanguageParts(parts)
		if err != nil {
			return nil, err
		}

		ignored := tags.Has(blockTags, tags.Ignore)
		if followedLanguages != nil {
			ignored = ignored || !followedLanguages[language]
		}

		fileContent := rawContent
		if ScriptingLanguages[language] {
			fileContent = strings.TrimSpace(fileContent)
		}

		fileOp := buildFileOp(blockTags, fileContent)

		delayMgr := delay.Manager{
			Post:   secondsTag(blockTags, tags.PostDelay),
			PerCmd: secondsTag(blockTags, tags.CmdDelay),
		}

		commandContent := stripComments(fileContent)
		commands := strings.Split(commandContent, "\n")

		var cmdExec *CommandExec
		if ScriptingLanguages[language] {
			cmdExec = &CommandExec{
				Commands:   commands,
				Background: tags.Has(blockTags, tags.Background),
			}
			if v, ok := tags.Extract(blockTags, tags.OutputContains); ok {
				cmdExec.OutputContains = v
				cmdExec.HasOutputCheck = true
			}
			cmdExec.ExpectFailure = tags.Has(blockTags, tags.AssertFailure)
			if v, ok := tags.Extract(blockTags, tags.MachineOS); ok {
				cmdExec.MachineOS = tags.AliasOperatingSystem(v)
			}
			if v, ok := tags.Extract(blockTags, tags.IgnoreIfInstalled); ok {
				cmdExec.Binary = v
			}
			if v, ok := tags.Extract(blockTags, tags.IfFileDoesNotExist); ok {
				cmdExec.IfFileNotExists = v
			}
			if v, ok := tags.Extract(blockTags, tags.Retry); ok {
				if n, err := strconv.Atoi(v); err == nil {
					cmdExec.RetryCount = n
				}
			}
			if v, ok := tags.Extract(blockTags, tags.ReplaceText); ok {
				cmdExec.ReplaceText = v
			}
		}

		var ep *endpoint.Endpoint
		if v, ok := tags.Extract(blockTags, tags.HTTPPolling); ok {
			parsed := endpoint.Parse(v)
			ep = &parsed
		}

		blocks = append(blocks, CodeBlock{
			Index:       idx,
			Language:    language,
			Tags:        blockTags,
			Ignored:     ignored,
			Delay:       delayMgr,
			FileOp:      fileOp,
			CommandExec: cmdExec,
			Endpoint:    ep,
		})
	}

	return blocks, nil
}

func buildFileOp(blockTags []string, fileContent string) *fileop.Op {
	fileName, ok := tags.Extract(blockTags, tags.FileName)
	if !ok {
		return nil
	}

	op := &fileop.Op{
		FileName: fileName,
		Content:  fileContent,
		Reset:    tags.Has(blockTags, tags.ResetFile),
	}
	if v, ok := tags.Extract(blockTags, tags.IfFileDoesNotExist); ok {
		op.IfFileNotExists = v
	}
	if v, ok := tags.Extract(blockTags, tags.InsertAtLine); ok {
		if n, err := strconv.Atoi(v); err == nil {
			op.InsertAtLine = &n
		}
	}
	if v, ok := tags.Extract(blockTags, tags.ReplaceAtLine); ok {
		start, end, err := replaceAtLineConverter(v)
		if err == nil {
			op.ReplaceStart = &start
			op.ReplaceEnd = end
		}
	}
	return op
}

func secondsTag(blockTags []string, t tags.Tag) time.Duration {
	v, ok := tags.Extract(blockTags, t)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return time.Duration(n) * time.Second
}

// processLanguageParts mirrors the original's reassembly of a quoted tag
// value split across whitespace-separated tokens (e.g.
// docci-output-contains="hello world" becomes two raw tokens,
// `docci-output-contains="hello` and `world"`, that must be rejoined).
func processLanguageParts(languageParts []string) ([]string, error) {
	if len(languageParts) <= 1 {
		return nil, nil
	}
	rawTags := languageParts[1:]

	if ok, bad := tags.Validate(rawTags); !ok {
		return nil, fmt.Errorf("invalid tag found in your documentation: %s. Check the release notes for renamed tags", bad)
	}

	var processed []string
	for i := 0; i < len(rawTags); i++ {
		current := rawTags[i]

		hasDoubleOpen := strings.Contains(current, `="`)
		hasSingleOpen := strings.Contains(current, "='")
		endsDouble := strings.HasSuffix(current, `"`) && hasDoubleOpen
		endsSingle := strings.HasSuffix(current, "'") && hasSingleOpen

		if (hasDoubleOpen || hasSingleOpen) && !(endsDouble || endsSingle) {
			quote := byte('"')
			if !hasDoubleOpen {
				quote = '\''
			}
			complete := current
			j := i + 1
			for j < len(rawTags) && !strings.ContainsRune(rawTags[j], rune(quote)) {
				complete += " " + rawTags[j]
				j++
			}
			if j < len(rawTags) {
				complete += " " + rawTags[j]
				i = j
			}
			processed = append(processed, complete)
		} else {
			processed = append(processed, current)
		}
	}

	return processed, nil
}

var (
	leadingCommentLineRe = regexp.MustCompile(`(?m)^#.*\n`)
	trailingCommentRe    = regexp.MustCompile(`(?m)#.*$`)
	multiNewlineRe       = regexp.MustCompile(`\n+`)
)

// stripComments removes shell-style comment lines and trailing comments,
// then collapses runs of blank lines, matching the original's sequential
// regex passes.
func stripComments(content string) string {
	content = leadingCommentLineRe.ReplaceAllString(content, "")
	content = strings.TrimSpace(trailingCommentRe.ReplaceAllString(content, ""))
	content = multiNewlineRe.ReplaceAllString(content, "\n")
	return content
}

// replaceAtLineConverter parses a docci-line-replace value: either a bare
// line number ("3") or an inclusive range ("2-4").
func replaceAtLineConverter(value string) (start int, end *int, err error) {
	if strings.Contains(value, "-") {
		before, after, _ := strings.Cut(value, "-")
		s, err := strconv.Atoi(before)
		if err != nil {
			return 0, nil, err
		}
		e, err := strconv.Atoi(after)
		if err != nil {
			return 0, nil, err
		}
		return s, &e, nil
	}
	s, err := strconv.Atoi(value)
	if err != nil {
		return 0, nil, err
	}
	return s, nil, nil
}
