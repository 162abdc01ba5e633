package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/skilldock/skilldock/pkg/presenter"
	"github.com/skilldock/skilldock/pkg/skills"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed skills",
	Long: `List every skill visible from the current directory.

Skills are resolved across the project and global search roots. When the
same name exists in more than one root, the entry shown is the one that
wins resolution.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		discovery, err := skills.NewDiscovery()
		if err != nil {
			return err
		}
		all, err := discovery.FindAll()
		if err != nil {
			return err
		}
		if len(all) == 0 {
			presenter.Info("No skills installed")
			return nil
		}

		names := make([]string, 0, len(all))
		for name := range all {
			names = append(names, name)
		}
		sort.Strings(names)

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tORIGIN\tDESCRIPTION\tPATH")
		for _, name := range names {
			skill := all[name]
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", skill.Name, skill.Origin, truncate(skill.Description, 60), skill.Directory)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
