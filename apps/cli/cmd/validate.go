package cmd

import (
	"errors"
	"fmt"

	"github.com/abdul-hamid-achik/conserve/packages/core/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [config]",
	Short: "Validate a config file",
	Long: `Validate a config file against the schema and check that every name and
parameter in it, and in each of its profiles, is usable.

Without an argument the file named by --config or the first of
conserve.yaml, .conserve.yaml, .conserve.yml and conserve.json is used.

Examples:
  conserve validate
  conserve validate conserve.yaml`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{skipConfig: "true"},
	RunE:        validateCommand,
}

func validateCommand(cmd *cobra.Command, args []string) error {
	path := getEnvString("CONSERVE_CONFIG", "")
	if configFlag != "" {
		path = configFlag
	}
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		path = config.FindConfigFile(".")
	}
	if path == "" {
		return fmt.Errorf("%w: no config file found (looked for %v)", errUsage, config.ConfigFilenames)
	}

	c, err := config.LoadConfig(path)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error in %s: %v\n", path, err)
		return withExitCode(ExitConfigError, errors.New("validation failed"))
	}

	hasErrors := false
	report := func(name string, c *config.Config) {
		if err := c.Validate(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error in %s%s:\n", path, name)
			for _, e := range unjoin(err) {
				fmt.Fprintf(cmd.ErrOrStderr(), "  - %v\n", e)
			}
			hasErrors = true
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s%s\n", path, name)
		}
	}

	report("", c)
	for _, name := range c.ProfileNames() {
		p, err := config.LoadConfig(path)
		if err != nil {
			return err
		}
		if err := p.ApplyProfile(name); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error in %s (profile %s): %v\n", path, name, err)
			hasErrors = true
			continue
		}
		report(fmt.Sprintf(" (profile %s)", name), p)
	}

	if hasErrors {
		return withExitCode(ExitConfigError, errors.New("validation failed"))
	}

	return nil
}

// unjoin returns the errors joined in err, or err itself.
func unjoin(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
