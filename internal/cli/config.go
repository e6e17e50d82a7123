package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/fyn/pkg/config"
)

// configCommand inspects the effective configuration.
func (c *CLI) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect fyn configuration",
	}
	cmd.AddCommand(c.configShowCommand())
	cmd.AddCommand(c.configPathCommand())
	return cmd
}

func (c *CLI) configShowCommand() *cobra.Command {
	var rf resolveFlags
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		Long: `Print the configuration after applying defaults, the config file, FYN_*
environment variables and flags. The registry token is redacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			out, err := cfg.TOML()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if path != "" {
				fmt.Fprintf(w, "# %s\n", path)
			} else {
				fmt.Fprintln(w, "# defaults")
			}
			_, err = w.Write(out)
			return err
		},
	}
	addResolveFlags(cmd.Flags(), &rf)
	return cmd
}

func (c *CLI) configPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print where configuration files are looked up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, filepath.Join(c.projectDir, config.ProjectFile))
			if dir, err := config.ConfigDir(); err == nil {
				fmt.Fprintln(w, filepath.Join(dir, "config.toml"))
			}
			return nil
		},
	}
}
