package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vmunix/librarr/internal/download"
	"github.com/vmunix/librarr/internal/server"
)

var downloadsCmd = &cobra.Command{
	Use:   "downloads",
	Short: "List downloads",
	RunE:  runDownloadsCmd,
}

var downloadsAddCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "Register a finished download for processing",
	Long: `Register a file or directory as a finished manual download. The daemon
picks it up on its next poll; 'librarr process' handles it immediately.`,
	Args: cobra.ExactArgs(1),
	RunE: runDownloadsAddCmd,
}

func init() {
	rootCmd.AddCommand(downloadsCmd)
	downloadsCmd.AddCommand(downloadsAddCmd)
	downloadsCmd.Flags().String("status", "", "Only show downloads in this status")
	downloadsCmd.Flags().Int("limit", 0, "Maximum number of downloads (0 = all)")
	downloadsAddCmd.Flags().String("name", "", "Download name (default: base name of path)")
}

func runDownloadsCmd(cmd *cobra.Command, _ []string) error {
	status, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")

	filter := download.Filter{Limit: limit}
	if status != "" {
		s := download.Status(status)
		filter.Status = &s
	}

	return withApp(func(app *server.App) error {
		downloads, err := app.Downloads.List(filter)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), downloads)
		}
		if len(downloads) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No downloads")
			return nil
		}

		rows := make([][]string, 0, len(downloads))
		for _, d := range downloads {
			rows = append(rows, []string{
				strconv.FormatInt(d.ID, 10),
				truncate(d.Name, 50),
				string(d.Status),
				humanize.RelTime(d.LastTransitionAt, time.Now(), "ago", "from now"),
				truncate(d.Error, 40),
			})
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "NAME", "STATUS", "CHANGED", "ERROR"}, rows, 0))
		return nil
	})
}

func runDownloadsAddCmd(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = filepath.Base(path)
	}

	return withApp(func(app *server.App) error {
		d := &download.Download{Client: download.ClientManual, Name: name, Path: path}
		if err := app.Downloads.Add(d); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), d)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added download %d: %s\n", d.ID, d.Name)
		return nil
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
