package main

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vmunix/librarr/internal/processing"
	"github.com/vmunix/librarr/internal/server"
)

var processCmd = &cobra.Command{
	Use:   "process <download-id>",
	Short: "Match and organize the files of a download",
	Long: `Match every file of a download to a library entity and place it in its
library. A completed download is left alone unless --force is given, which
discards earlier matches and starts over.`,
	Args: cobra.ExactArgs(1),
	RunE: runProcessCmd,
}

func init() {
	rootCmd.AddCommand(processCmd)
	processCmd.Flags().Bool("force", false, "Discard earlier matches and reprocess")
}

func runProcessCmd(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid download id %q", args[0])
	}
	force, _ := cmd.Flags().GetBool("force")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return withApp(func(app *server.App) error {
		res, err := app.Processor.Process(ctx, id, processing.Options{Force: force})
		if res == nil {
			return err
		}
		if jsonOutput {
			if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
				return perr
			}
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Download %d: %s (run %s)\n", res.DownloadID, res.Status, res.RunID)
		fmt.Fprintf(out, "  matched %d, processed %d, organized %d, skipped %d, failed %d\n",
			res.Matched, res.FilesProcessed, res.Organized, res.FilesSkipped, res.FilesFailed)
		for _, msg := range res.Messages {
			fmt.Fprintf(out, "  - %s\n", msg)
		}
		return err
	})
}
