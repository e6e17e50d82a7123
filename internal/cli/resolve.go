package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/fyn/pkg/observability"
	"github.com/matzehuels/fyn/pkg/pipeline"
)

// resolveCommand creates the resolve command, fyn's main entry point.
func (c *CLI) resolveCommand() *cobra.Command {
	var (
		rf     resolveFlags
		dryRun bool
		useTUI bool
	)

	cmd := &cobra.Command{
		Use:     "resolve",
		Aliases: []string{"lock"},
		Short:   "Resolve dependencies and write the lock",
		Long: `Resolve every dependency of package.json and its workspaces, then write fyn-lock.yaml.

Versions already in the lock are kept while they still satisfy their ranges.
Without a fyn lock, package-lock.json (v2 or later) and yarn.lock are imported.`,
		Example: `  fyn resolve
  fyn resolve --production --lock-time 2024-06-01
  fyn resolve --lock-only --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if useTUI {
				cfg, opts, err := c.pipelineOptions(cmd, &rf)
				if err != nil {
					return err
				}
				opts.DryRun = dryRun
				return c.runResolveTUI(cmd.Context(), cfg, opts)
			}

			prog := newProgress(c.Logger)
			result, err := c.execute(cmd.Context(), cmd, &rf, dryRun)
			if err != nil {
				return err
			}
			prog.done("resolve finished")
			reportResult(result)
			return nil
		},
	}

	addResolveFlags(cmd.Flags(), &rf)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "resolve without writing the lock")
	cmd.Flags().BoolVar(&useTUI, "tui", false, "show live progress")

	return cmd
}

// reportResult prints the user-facing summary of a run.
func reportResult(result *pipeline.Result) {
	switch {
	case result.Written:
		printSuccess("Resolved %s", result.Project.Root.ID())
	default:
		printInfo("Resolved %s (dry run, lock not written)", result.Project.Root.ID())
	}
	printStats(result.Stats)
	if result.Written {
		printFile(result.Project.LockPath)
	}
	if len(result.ConfigDrift) > 0 {
		printWarning("lock settings changed: %s", strings.Join(result.ConfigDrift, ", "))
	}
	if result.Project.LockSource == pipeline.LockNpm {
		printDetail("imported versions from package-lock.json")
	}
}

// execute runs the pipeline without any progress display.
func (c *CLI) execute(ctx context.Context, cmd *cobra.Command, rf *resolveFlags, dryRun bool) (*pipeline.Result, error) {
	cfg, opts, err := c.pipelineOptions(cmd, rf)
	if err != nil {
		return nil, err
	}
	opts.DryRun = dryRun

	runner := c.newRunner(ctx, cfg, observability.Hooks{})
	defer runner.Close()
	return runner.Execute(ctx, opts)
}
