package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vmunix/librarr/internal/maintenance"
	"github.com/vmunix/librarr/internal/server"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove duplicate files, orphans and empty folders",
	Long: `Run maintenance sweeps over every library. Without flags all three run.

  --dedup    keep the best file per entity, delete the rest
  --orphans  delete hardlinked files no record knows about
  --empty    remove empty folders, keeping show and season folders`,
	Args: cobra.NoArgs,
	RunE: runSweepCmd,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().Bool("dedup", false, "Remove duplicate files")
	sweepCmd.Flags().Bool("orphans", false, "Remove orphaned files")
	sweepCmd.Flags().Bool("empty", false, "Remove empty folders")
}

func runSweepCmd(cmd *cobra.Command, _ []string) error {
	var opts maintenance.Options
	opts.Dedup, _ = cmd.Flags().GetBool("dedup")
	opts.Orphans, _ = cmd.Flags().GetBool("orphans")
	opts.EmptyDirs, _ = cmd.Flags().GetBool("empty")
	if opts == (maintenance.Options{}) {
		opts = maintenance.All
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return withApp(func(app *server.App) error {
		report, err := app.Sweeper.Run(ctx, opts)
		if errors.Is(err, maintenance.ErrSweepInProgress) {
			return errors.New("another sweep is running")
		}
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), report)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Duplicates removed: %d\n", report.DuplicatesRemoved)
		fmt.Fprintf(out, "Orphans removed:    %d (kept %d)\n", report.OrphansRemoved, report.OrphansKept)
		fmt.Fprintf(out, "Folders removed:    %d\n", report.DirsRemoved)
		for _, e := range report.Errors {
			fmt.Fprintf(out, "  ! %s\n", e)
		}
		return nil
	})
}
