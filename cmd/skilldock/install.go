package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skilldock/skilldock/pkg/gitx"
	"github.com/skilldock/skilldock/pkg/install"
	"github.com/skilldock/skilldock/pkg/presenter"
)

type InstallConfig struct {
	Global bool
	Dir    string
	Yes    bool
}

func NewInstallConfig() *InstallConfig {
	return &InstallConfig{}
}

var installCmd = &cobra.Command{
	Use:   "install <source>",
	Short: "Install skills from a path or repository",
	Long: `Install skills from a source into the local skill root.

The source can be:
  - A local directory containing skill directories
  - A git URL (https://..., git@..., ssh://...)
  - An owner/repo shorthand, optionally with a subpath and @ref

Examples:
  skilldock install ./my-skills
  skilldock install https://github.com/acme/skills.git
  skilldock install acme/skills
  skilldock install acme/skills/tools/pdf@v1.0.0
  skilldock install acme/skills -g --yes`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config := getInstallConfigFromFlags(cmd)

		destRoot, err := install.DefaultDestRoot(config.Global)
		if err != nil {
			return err
		}

		opts := []install.Option{
			install.WithDestRoot(destRoot),
			install.WithAutoConfirm(config.Yes),
		}
		if config.Dir != "" {
			opts = append(opts, install.WithSubpath(config.Dir))
		}

		installer := install.New(gitx.NewClient(), presenter.New(), opts...)
		result, err := installer.Install(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if len(result.Installed) > 0 {
			presenter.Success(fmt.Sprintf("Installed %s to %s", strings.Join(result.Installed, ", "), result.DestRoot))
		}
		for _, name := range result.Skipped {
			presenter.Info(fmt.Sprintf("Skipped %s", name))
		}
		return nil
	},
}

func init() {
	defaults := NewInstallConfig()
	installCmd.Flags().BoolP("global", "g", defaults.Global, "Install to the global ~/.skilldock/skills directory instead of ./.skilldock/skills")
	installCmd.Flags().StringP("dir", "d", defaults.Dir, "Path to a specific skill directory within the source")
	installCmd.Flags().BoolP("yes", "y", defaults.Yes, "Overwrite existing skills without prompting")
	rootCmd.AddCommand(installCmd)
}

func getInstallConfigFromFlags(cmd *cobra.Command) *InstallConfig {
	config := NewInstallConfig()
	if global, err := cmd.Flags().GetBool("global"); err == nil {
		config.Global = global
	}
	if dir, err := cmd.Flags().GetString("dir"); err == nil {
		config.Dir = dir
	}
	if yes, err := cmd.Flags().GetBool("yes"); err == nil {
		config.Yes = yes
	}
	return config
}
