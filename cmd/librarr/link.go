package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vmunix/librarr/internal/download"
	"github.com/vmunix/librarr/internal/library"
	"github.com/vmunix/librarr/internal/server"
	"github.com/vmunix/librarr/pkg/release"
)

var linkCmd = &cobra.Command{
	Use:   "link <download-id> <file-index> <episode|movie|track|chapter> <entity-id>",
	Short: "Link one file of a download to a library entity",
	Long: `Record by hand what one file of a download fulfills. The link is checked
against the entity's status like an automatic match unless --force is given.
Run 'librarr process' afterwards to organize the file. Files of completed
downloads cannot be linked.

Examples:
  librarr link 12 0 episode 431
  librarr link --force 12 3 movie 77`,
	Args: cobra.ExactArgs(4),
	RunE: runLinkCmd,
}

func init() {
	rootCmd.AddCommand(linkCmd)
	linkCmd.Flags().Bool("force", false, "Skip the download-fulfillment check")
}

func runLinkCmd(cmd *cobra.Command, args []string) error {
	downloadID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid download id %q", args[0])
	}
	index, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid file index %q", args[1])
	}
	entityID, err := strconv.ParseInt(args[3], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid entity id %q", args[3])
	}
	target, err := library.TargetFor(library.Key{Kind: library.TargetKind(args[2]), ID: entityID})
	if err != nil {
		return err
	}
	force, _ := cmd.Flags().GetBool("force")

	ctx := context.Background()
	return withApp(func(app *server.App) error {
		d, err := app.Downloads.Get(downloadID)
		if err != nil {
			return err
		}
		if d.Status == download.StatusCompleted {
			return fmt.Errorf("download %d is completed and will not be processed again; use 'librarr process --force %d' to match it from scratch", d.ID, d.ID)
		}
		entry, err := fileAt(ctx, app.Source, d, index)
		if err != nil {
			return err
		}
		desc, err := app.Library.Describe(target)
		if err != nil {
			return fmt.Errorf("%s: %w", args[2], err)
		}

		rec := &download.MatchRecord{
			DownloadID: d.ID,
			FileIndex:  entry.Index,
			FilePath:   entry.Path,
			FileSize:   entry.Size,
			Target:     desc.Target,
			MatchType:  download.MatchForced,
			Confidence: 1,
			Quality:    release.ParseQuality(entry.Name()),
		}
		if !force {
			rec.MatchType = download.MatchManual
			decision, err := app.Matcher.ShouldDownload(ctx, desc.Target, rec.Quality, d.ID)
			if err != nil {
				return err
			}
			rec.SkipDownload, rec.SkipReason = decision.Skip, decision.Reason
		}

		if err := app.Matches.Create(rec); err != nil {
			if errors.Is(err, download.ErrDuplicateMatch) {
				return fmt.Errorf("file %d of download %d is already matched; reprocess with --force to start over", index, d.ID)
			}
			return err
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), rec)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Linked %s to %v (%s)\n", entry.Name(), desc.Target, rec.MatchType)
		if rec.SkipDownload {
			fmt.Fprintf(cmd.OutOrStdout(), "  will be skipped: %s\n", rec.SkipReason)
		}
		return nil
	})
}

func fileAt(ctx context.Context, src download.Source, d *download.Download, index int) (download.FileEntry, error) {
	files, err := src.ListFiles(ctx, d)
	if err != nil {
		return download.FileEntry{}, err
	}
	for _, f := range files {
		if f.Index == index {
			return f, nil
		}
	}
	return download.FileEntry{}, fmt.Errorf("download %d has no file %d (%d files)", d.ID, index, len(files))
}
