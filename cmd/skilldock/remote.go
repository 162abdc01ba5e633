package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/skilldock/skilldock/pkg/presenter"
	"github.com/skilldock/skilldock/pkg/remotes"
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Manage skill repository remotes",
	Long: `Manage the named remotes that 'skilldock upload' publishes to.

Remotes are stored in ~/.skilldock/remotes.yaml.`,
}

var remoteAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Register a skill repository remote",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openRemoteStore()
		if err != nil {
			return err
		}
		if err := store.Add(args[0], args[1]); err != nil {
			return err
		}
		presenter.Success(fmt.Sprintf("Added remote '%s' -> %s", args[0], args[1]))
		return nil
	},
}

var remoteRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a skill repository remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openRemoteStore()
		if err != nil {
			return err
		}
		if err := store.Remove(args[0]); err != nil {
			return err
		}
		presenter.Success(fmt.Sprintf("Removed remote '%s'", args[0]))
		return nil
	},
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured remotes",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openRemoteStore()
		if err != nil {
			return err
		}
		all, err := store.List()
		if err != nil {
			return err
		}
		if len(all) == 0 {
			presenter.Info("No remotes configured; add one with 'skilldock remote add <name> <url>'")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tURL\tADDED")
		for _, remote := range all {
			fmt.Fprintf(w, "%s\t%s\t%s\n", remote.Name, remote.URL, remote.AddedAt.Format("2006-01-02"))
		}
		return w.Flush()
	},
}

func openRemoteStore() (*remotes.Store, error) {
	path, err := remotes.DefaultPath()
	if err != nil {
		return nil, err
	}
	return remotes.NewStore(path), nil
}

func init() {
	remoteCmd.AddCommand(remoteAddCmd)
	remoteCmd.AddCommand(remoteRemoveCmd)
	remoteCmd.AddCommand(remoteListCmd)
	rootCmd.AddCommand(remoteCmd)
}
