package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/skilldock/skilldock/pkg/gitx"
	"github.com/skilldock/skilldock/pkg/presenter"
	"github.com/skilldock/skilldock/pkg/publish"
	"github.com/skilldock/skilldock/pkg/remotes"
	"github.com/skilldock/skilldock/pkg/skills"
	"github.com/skilldock/skilldock/pkg/workcopy"
)

type UploadConfig struct {
	Repo    string
	Message string
	Yes     bool
}

func NewUploadConfig() *UploadConfig {
	return &UploadConfig{}
}

var uploadCmd = &cobra.Command{
	Use:   "upload [skill-name]",
	Short: "Upload installed skills to a skill repository",
	Long: `Upload one installed skill, or all of them, to a configured remote.

The remote's repository is mirrored locally, the skill content is copied
into its skills/ directory, committed, and pushed.

Examples:
  skilldock upload --repo team                 # upload every installed skill
  skilldock upload pdf --repo team             # upload one skill
  skilldock upload pdf --repo team --yes       # skip overwrite prompts
  skilldock upload pdf --repo team -m "Update pdf skill"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config := getUploadConfigFromFlags(cmd)
		if config.Repo == "" {
			return errors.New("no remote specified; use --repo <name> (see 'skilldock remote list')")
		}

		discovery, err := skills.NewDiscovery()
		if err != nil {
			return err
		}

		var toPublish []*skills.Skill
		if len(args) == 1 {
			skill, err := discovery.Find(args[0])
			if err != nil {
				return err
			}
			toPublish = []*skills.Skill{skill}
		} else {
			all, err := discovery.FindAll()
			if err != nil {
				return err
			}
			names := make([]string, 0, len(all))
			for name := range all {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				toPublish = append(toPublish, all[name])
			}
			if len(toPublish) == 0 {
				return errors.New("no skills installed; install one with 'skilldock install'")
			}
		}

		storePath, err := remotes.DefaultPath()
		if err != nil {
			return err
		}
		mirrorBase, err := workcopy.DefaultBaseDir()
		if err != nil {
			return err
		}

		git := gitx.NewClient()
		pipeline := publish.New(git, workcopy.NewManager(git, mirrorBase), remotes.NewStore(storePath), presenter.New())

		result, err := pipeline.Publish(cmd.Context(), toPublish, config.Repo, publish.Options{
			CommitMessage:     config.Message,
			SkipConfirmations: config.Yes,
		})
		if err != nil {
			return err
		}

		for _, name := range result.Skipped {
			presenter.Info(fmt.Sprintf("Skipped %s", name))
		}
		if result.NoChanges {
			presenter.Info("No changes to publish")
			return nil
		}
		presenter.Success(fmt.Sprintf("Published %s to '%s' (branch %s)", strings.Join(result.Published, ", "), config.Repo, result.Branch))
		return nil
	},
}

func init() {
	defaults := NewUploadConfig()
	uploadCmd.Flags().StringP("repo", "r", defaults.Repo, "Name of the configured remote to upload to")
	uploadCmd.Flags().StringP("message", "m", defaults.Message, "Commit message (default: generated from skill names)")
	uploadCmd.Flags().BoolP("yes", "y", defaults.Yes, "Overwrite existing skills without prompting")
	rootCmd.AddCommand(uploadCmd)
}

func getUploadConfigFromFlags(cmd *cobra.Command) *UploadConfig {
	config := NewUploadConfig()
	if repo, err := cmd.Flags().GetString("repo"); err == nil {
		config.Repo = repo
	}
	if message, err := cmd.Flags().GetString("message"); err == nil {
		config.Message = message
	}
	if yes, err := cmd.Flags().GetBool("yes"); err == nil {
		config.Yes = yes
	}
	return config
}
