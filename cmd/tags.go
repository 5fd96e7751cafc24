package cmd

import (
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/markdocs/docrunner/internal/tags"
)

func tagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "Print the docci-* tag and alias table",
		Run: func(cmd *cobra.Command, args []string) {
			for _, t := range tags.All() {
				aliases := tags.AliasesOf(t)
				sort.Strings(aliases)
				if len(aliases) == 0 {
					cmd.Println(string(t))
					continue
				}
				cmd.Printf("%s (Aliases: %s)\n", t, strings.Join(aliases, ", "))
			}
		},
	}
}
