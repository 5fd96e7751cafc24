// Package shellsub implements the in-parent-process command substitution
// and environment-line recognition used when a value is destined for
// parse_env. Ordinary commands are left to the shell; this package only
// substitutes when the result must be captured into the Go-owned EnvMap
// before the next command runs.
package shellsub

import (
	"context"
	"regexp"
	"strings"
)

// Runner executes a shell command and returns its combined output, trimmed
// of the trailing newline the underlying shell adds. The Process Runner
// satisfies this for command substitution.
type Runner interface {
	RunCaptured(ctx context.Context, command string) (string, error)
}

var (
	backtickRe = regexp.MustCompile("`([^`]*)`")
	dollarRe   = regexp.MustCompile(`\$\(([^()]*)\)`)

	exportRe     = regexp.MustCompile(`^export\s+([A-Za-z_][A-Za-z0-9_]*)=(.*)$`)
	inlineHeadRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*=\S+(?: [A-Za-z_][A-Za-z0-9_]*=\S+)*) (.+)$`)
	standaloneRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)=(.*)$`)
)

// Substitute replaces every `cmd` and $(cmd) occurrence in value with the
// captured output of running cmd through r, repeating until no markers
// remain. Malformed/unterminated markers are left untouched.
func Substitute(ctx context.Context, r Runner, value string) (string, error) {
	result := value

	for strings.Contains(result, "`") {
		loc := backtickRe.FindStringSubmatchIndex(result)
		if loc == nil {
			break
		}
		cmd := result[loc[2]:loc[3]]
		out, err := r.RunCaptured(ctx, cmd)
		if err != nil {
			return "", err
		}
		result = result[:loc[0]] + out + result[loc[1]:]
	}

	for strings.Contains(result, "$(") {
		loc := dollarRe.FindStringSubmatchIndex(result)
		if loc == nil {
			break
		}
		cmd := result[loc[2]:loc[3]]
		out, err := r.RunCaptured(ctx, cmd)
		if err != nil {
			return "", err
		}
		result = result[:loc[0]] + out + result[loc[1]:]
	}

	return result, nil
}

// ParseEnv recognizes the three environment-variable line shapes the
// engine must fold into its EnvMap before running the rest of the
// command: "export KEY=VALUE", inline "KEY=VALUE[ KEY=VALUE...] cmd args",
// and standalone "KEY=VALUE". Values destined for the map are run through
// Substitute; a line that matches none of the shapes returns an empty map
// and is left for the shell to interpret normally.
func ParseEnv(ctx context.Context, r Runner, command string) (map[string]string, error) {
	trimmed := strings.TrimSpace(command)
	if !strings.Contains(trimmed, "=") {
		return map[string]string{}, nil
	}

	if m := exportRe.FindStringSubmatch(trimmed); m != nil {
		value, err := Substitute(ctx, r, m[2])
		if err != nil {
			return nil, err
		}
		return map[string]string{m[1]: value}, nil
	}

	if m := inlineHeadRe.FindStringSubmatch(trimmed); m != nil {
		out := map[string]string{}
		for _, pair := range strings.Fields(m[1]) {
			key, value, ok := strings.Cut(pair, "=")
			if !ok {
				continue
			}
			sub, err := Substitute(ctx, r, value)
			if err != nil {
				return nil, err
			}
			out[key] = sub
		}
		return out, nil
	}

	if m := standaloneRe.FindStringSubmatch(trimmed); m != nil {
		value, err := Substitute(ctx, r, m[2])
		if err != nil {
			return nil, err
		}
		return map[string]string{m[1]: value}, nil
	}

	return map[string]string{}, nil
}
