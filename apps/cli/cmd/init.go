package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/abdul-hamid-achik/conserve/packages/core/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an example conserve.yaml",
	Long: `Write an example conserve.yaml with the default settings and two
profiles to the current directory.

Examples:
  conserve init
  conserve init --force`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipConfig: "true"},
	RunE:        initCommand,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite an existing file")
}

// exampleProfiles are written by init.
const exampleProfiles = `
quick:
  domain:
    dx: 0.05
    time: 1
  bench:
    repeat: 1
    warmup: 0
fine:
  domain:
    dx: 0.001
  run:
    mode: parallel
  bench:
    workers: [1, 2, 4, 8, 16]
    thresholds: "speedup>=1.5"
`

func initCommand(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	configFile := filepath.Join(cwd, config.ConfigFilenames[0])
	if !forceInit {
		if _, err := os.Stat(configFile); err == nil {
			return fmt.Errorf("%w: file already exists: %s (use --force to overwrite)", errUsage, configFile)
		}
	}

	c := config.DefaultConfig()
	c.Snapshots.Dir = "testdata"

	var profiles map[string]yaml.Node
	if err := yaml.Unmarshal([]byte(exampleProfiles), &profiles); err != nil {
		return err
	}
	c.Profiles = profiles

	if err := c.SaveConfig(configFile); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", configFile)

	fmt.Fprintf(cmd.OutOrStdout(), "\nconserve project initialized!\n")
	fmt.Fprintf(cmd.OutOrStdout(), "Run 'conserve run' for one integration or 'conserve bench --profile quick' for a short bench.\n")

	return nil
}
