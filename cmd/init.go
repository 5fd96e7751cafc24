package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/markdocs/docrunner/internal/config"
)

func initCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively scaffold a config.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			var pathsInput, envInput, preCmdsInput, cleanupCmdsInput, workingDir string

			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("Paths to scan (comma-separated)").
						Description("Files or directories containing the Markdown to test").
						Value(&pathsInput).
						Placeholder("docs/, README.md"),
					huh.NewInput().
						Title("Working directory").
						Description("Left blank to run commands in the current directory").
						Value(&workingDir),
					huh.NewInput().
						Title("Environment variables (KEY=VALUE, comma-separated)").
						Value(&envInput),
					huh.NewInput().
						Title("Pre-run commands (comma-separated)").
						Value(&preCmdsInput),
					huh.NewInput().
						Title("Cleanup commands (comma-separated)").
						Value(&cleanupCmdsInput),
				),
			)

			if err := form.Run(); err != nil {
				return fmt.Errorf("init form: %w", err)
			}

			cfg := config.Default()
			if pathsInput != "" {
				cfg.Paths = splitAndTrim(pathsInput)
			}
			cfg.WorkingDir = workingDir
			cfg.EnvVars = splitKV(envInput)
			if preCmdsInput != "" {
				cfg.PreCmds = splitAndTrim(preCmdsInput)
			}
			if cleanupCmdsInput != "" {
				cfg.CleanupCmds = splitAndTrim(cleanupCmdsInput)
			}

			if err := config.Save(outPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			cmd.Printf("wrote %s\n", outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "config.json", "path to write the generated config")
	return cmd
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func splitKV(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	out := map[string]string{}
	for _, pair := range splitAndTrim(raw) {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return out
}
