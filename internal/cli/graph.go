package cli

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/fyn/pkg/errors"
	"github.com/matzehuels/fyn/pkg/render"
)

// graphCommand renders the resolved dependency graph.
func (c *CLI) graphCommand() *cobra.Command {
	var (
		rf       resolveFlags
		output   string
		format   string
		detailed bool
		skipDev  bool
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the resolved dependency graph",
		Long: `Resolve the project without writing the lock and render the result as
Graphviz DOT, SVG, PNG or PDF. PNG and PDF need rsvg-convert.`,
		Example: `  fyn graph > deps.dot
  fyn graph -o deps.svg --detailed
  fyn graph --format pdf -o deps.pdf --skip-dev`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := graphFormat(format, output)
			if err != nil {
				return err
			}

			result, err := c.execute(cmd.Context(), cmd, &rf, true)
			if err != nil {
				return err
			}

			dot := render.ToDOT(result.Project.Root, result.Data, render.Options{Detailed: detailed, SkipDev: skipDev})
			var data []byte
			if f == render.FormatDOT {
				data = []byte(dot)
			} else {
				spinner := newSpinnerWithContext(cmd.Context(), "Rendering "+f+"...")
				spinner.Start()
				data, err = render.Render(cmd.Context(), dot, f)
				switch {
				case err != nil && spinner.Cancelled():
					spinner.Stop()
					return cmd.Context().Err()
				case err != nil:
					spinner.StopWithError("Rendering " + f + " failed")
					return err
				}
				spinner.Stop()
			}

			if output == "" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return errors.Wrap(errors.ErrCodeInvalidPath, err, "write %s", output)
			}
			printSuccess("Rendered %d packages", result.Stats.Packages)
			printFile(output)
			return nil
		},
	}

	addResolveFlags(cmd.Flags(), &rf)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (stdout when empty)")
	cmd.Flags().StringVar(&format, "format", "", "dot, svg, png or pdf (default from the output extension, else dot)")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "label nodes with source and request counts")
	cmd.Flags().BoolVar(&skipDev, "skip-dev", false, "leave out devDependencies of the root")

	return cmd
}

// graphFormat picks the render format from the flag or the output extension.
func graphFormat(format, output string) (string, error) {
	if format == "" {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(output)), ".")
		if render.ValidFormats[ext] {
			return ext, nil
		}
		return render.FormatDOT, nil
	}
	format = strings.ToLower(format)
	if !render.ValidFormats[format] {
		return "", errors.New(errors.ErrCodeInvalidInput, "invalid format: %q (must be one of: dot, svg, png, pdf)", format)
	}
	return format, nil
}
