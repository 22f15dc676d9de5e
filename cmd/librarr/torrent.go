package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/vmunix/librarr/internal/server"
)

var checkTorrentCmd = &cobra.Command{
	Use:   "check-torrent <album-id> <torrent-url>",
	Short: "Check that a torrent's file list fits an album before downloading",
	Args:  cobra.ExactArgs(2),
	RunE:  runCheckTorrentCmd,
}

func init() {
	rootCmd.AddCommand(checkTorrentCmd)
	checkTorrentCmd.Flags().Duration("timeout", 30*time.Second, "Fetch timeout")
}

func runCheckTorrentCmd(cmd *cobra.Command, args []string) error {
	albumID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid album id %q", args[0])
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return withApp(func(app *server.App) error {
		album, err := app.Library.GetAlbum(albumID)
		if err != nil {
			return fmt.Errorf("album %d: %w", albumID, err)
		}
		check, err := app.Matcher.ValidateAlbumTorrent(ctx, app.Source, album.Title, args[1], album)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), check)
		}

		verdict := "OK"
		if !check.OK {
			verdict = "REJECT: " + check.Reason
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n  audio files %d, album tracks %d\n  %s\n",
			check.Name, check.AudioFiles, check.Tracks, verdict)
		return nil
	})
}
