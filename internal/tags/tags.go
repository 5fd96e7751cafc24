// Package tags implements the closed tag registry: canonical docci-* tags,
// their aliases, and the quote-aware value extraction used to pull a
// parameter out of an info-line token such as docci-output-contains="OK".
package tags

import "strings"

// Tag is a canonical docci-* tag. The set is closed: callers compare
// against the exported constants rather than matching on raw strings.
type Tag string

const Prefix = "docci-"

const (
	Ignore               Tag = "docci-ignore"
	Background           Tag = "docci-background"
	PostDelay            Tag = "docci-delay-after"
	CmdDelay             Tag = "docci-delay-per-cmd"
	HTTPPolling          Tag = "docci-wait-for-endpoint"
	IgnoreIfInstalled    Tag = "docci-if-not-installed"
	OutputContains       Tag = "docci-output-contains"
	AssertFailure        Tag = "docci-assert-failure"
	MachineOS            Tag = "docci-os"
	IfFileDoesNotExist   Tag = "docci-if-file-not-exists"
	FileName             Tag = "docci-file"
	InsertAtLine         Tag = "docci-line-insert"
	ReplaceAtLine        Tag = "docci-line-replace"
	ResetFile            Tag = "docci-reset-file"
	Retry                Tag = "docci-retry"
	ReplaceText          Tag = "docci-replace-text"
)

// all lists every canonical tag, used for validation and the --tags listing.
var all = []Tag{
	Ignore, Background, PostDelay, CmdDelay, HTTPPolling, IgnoreIfInstalled,
	OutputContains, AssertFailure, MachineOS, IfFileDoesNotExist, FileName,
	InsertAtLine, ReplaceAtLine, ResetFile, Retry, ReplaceText,
}

// aliases maps a non-canonical spelling to its canonical tag.
var aliases = map[string]Tag{
	"docci-contains-output": OutputContains,
	"docci-expected-output": OutputContains,
	"docci-contains":        OutputContains,
	"docci-after-delay":     PostDelay,
	"docci-cmd-delay":       CmdDelay,
	"docci-expect-failure":  AssertFailure,
	"docci-should-fail":     AssertFailure,
	"docci-machine":         MachineOS,
	"docci-bg":              Background,
	"docci-file-name":       FileName,
	"docci-insert-at-line":  InsertAtLine,
	"docci-replace-at-line": ReplaceAtLine,
	"docci-insert-line":     InsertAtLine,
	"docci-replace-line":    ReplaceAtLine,
}

// AliasesOf returns the alias spellings of canonical tag t (not including
// t itself), in no particular order; the tags command sorts them.
func AliasesOf(t Tag) []string {
	var out []string
	for alias, canonical := range aliases {
		if canonical == t {
			out = append(out, alias)
		}
	}
	return out
}

// All returns every canonical tag in declaration order.
func All() []Tag {
	out := make([]Tag, len(all))
	copy(out, all)
	return out
}

// canonicalize resolves a raw tag name (without any "=value" suffix) to its
// canonical spelling, or "" if it names neither a canonical tag nor an alias.
func canonicalize(name string) Tag {
	for _, t := range all {
		if string(t) == name {
			return t
		}
	}
	if canonical, ok := aliases[name]; ok {
		return canonical
	}
	return ""
}

// IsValid reports whether a raw info-line token (e.g. "docci-os=linux" or
// bare "docci-ignore") names a known tag or alias.
func IsValid(token string) bool {
	name := token
	if i := strings.IndexByte(token, '='); i != -1 {
		name = token[:i]
	}
	return canonicalize(name) != ""
}

// Has reports whether tokens contains the canonical tag t or any of its
// aliases, with or without a "=value" suffix.
func Has(tokens []string, t Tag) bool {
	for _, token := range tokens {
		name := token
		if i := strings.IndexByte(token, '='); i != -1 {
			name = token[:i]
		}
		if canonicalize(name) == t {
			return true
		}
	}
	return false
}

// Validate checks every docci-prefixed token in tokens against the
// registry. It returns the first unrecognized token, or "" if all are
// known.
func Validate(tokens []string) (ok bool, bad string) {
	for _, token := range tokens {
		name := token
		if i := strings.IndexByte(token, '='); i != -1 {
			name = token[:i]
		}
		if !strings.HasPrefix(name, Prefix) {
			continue
		}
		if !IsValid(token) {
			return false, token
		}
	}
	return true, ""
}

// Extract pulls the value assigned to tag t (or one of its aliases) out of
// tokens, honoring the single- or double-quoted value grammar: a quoted
// value may contain an escaped quote (\" or \') or an escaped backslash
// (\\); an unescaped matching quote ends the value early, matching the
// original tool's character-by-character scan. Returns ("", false) if the
// tag is absent.
func Extract(tokens []string, t Tag) (string, bool) {
	candidates := append([]string{string(t)}, AliasesOf(t)...)

	for _, token := range tokens {
		for _, candidate := range candidates {
			prefix := candidate + "="
			if !strings.HasPrefix(token, prefix) {
				continue
			}
			raw := token[len(prefix):]
			return unquote(raw), true
		}
	}
	return "", false
}

func unquote(raw string) string {
	if raw == "" {
		return raw
	}
	quote := raw[0]
	if quote != '"' && quote != '\'' {
		return raw
	}
	body := raw[1:]
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c == '\\' && i+1 < len(body) {
			next := body[i+1]
			if next == quote {
				b.WriteByte(quote)
				i++
				continue
			}
			if next == '\\' {
				b.WriteByte('\\')
				i++
				continue
			}
		}
		if c == quote {
			break
		}
		b.WriteByte(c)
	}
	return b.String()
}

// AliasOperatingSystem normalizes a raw docci-os value the way the
// original tool groups distro/platform aliases onto GOOS-style names.
func AliasOperatingSystem(os string) string {
	lower := strings.ToLower(os)
	switch lower {
	case "ubuntu", "debian", "wsl":
		return "linux"
	case "macos", "mac":
		return "darwin"
	default:
		return lower
	}
}
