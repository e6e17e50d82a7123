package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/fyn/pkg/pipeline"
)

// whyCommand explains which requests pulled a package into the lock.
func (c *CLI) whyCommand() *cobra.Command {
	var rf resolveFlags

	cmd := &cobra.Command{
		Use:   "why <package>",
		Short: "Show why a package is in the lock",
		Long: `Resolve the project without writing the lock and print every request path
that led to each version of the package.`,
		Example: `  fyn why ms
  fyn why @babel/core --production`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := c.execute(cmd.Context(), cmd, &rf, true)
			if err != nil {
				return err
			}
			reasons, err := pipeline.Why(result.Data, args[0])
			if err != nil {
				return err
			}
			for _, line := range whyLines(args[0], reasons) {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}

	addResolveFlags(cmd.Flags(), &rf)
	return cmd
}

// whyLines renders reasons grouped by version:
//
//	ms@2.1.3 (promoted)
//	  dep ^4.0.0 → debug@4.3.4 → dep 2.1.3
func whyLines(name string, reasons []pipeline.Reason) []string {
	var lines []string
	last := ""
	for _, r := range reasons {
		if r.Version != last {
			last = r.Version
			head := name + "@" + r.Version
			var tags []string
			if r.Promoted {
				tags = append(tags, "promoted")
			}
			if r.Failed {
				tags = append(tags, "failed optional checks")
			}
			if len(tags) > 0 {
				head += " (" + strings.Join(tags, ", ") + ")"
			}
			lines = append(lines, head)
		}
		hops := make([]string, len(r.Path))
		for i, h := range r.Path {
			hops[i] = h.String()
		}
		lines = append(lines, "  "+strings.Join(hops, " → "))
	}
	return lines
}
