package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/markdocs/docrunner/internal/history"
)

func historyCmd() *cobra.Command {
	var limit int
	var dsn string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded past runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				dsn = os.Getenv("DOCRUNNER_POSTGRES_DSN")
			}
			store, err := history.Open(cmd.Context(), dsn, sqlitePath)
			if err != nil {
				return fmt.Errorf("open run-history store: %w", err)
			}
			defer store.Close()

			records, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("query run-history: %w", err)
			}

			if len(records) == 0 {
				cmd.Println("no recorded runs")
				return nil
			}

			for _, r := range records {
				status := "PASS"
				if !r.Passed {
					status = "FAIL"
				}
				line := fmt.Sprintf("%s  %-4s  files=%-3d  %s", r.StartedAt.Format("2006-01-02 15:04:05"), status, r.FileCount, r.RunID)
				if r.FirstError != "" {
					line += "  error=" + r.FirstError
				}
				cmd.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to show")
	cmd.Flags().StringVar(&dsn, "postgres-dsn", "", "Postgres DSN for the managed run-history store (default: DOCRUNNER_POSTGRES_DSN env)")
	return cmd
}
