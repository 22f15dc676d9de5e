package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vmunix/librarr/internal/download"
	"github.com/vmunix/librarr/internal/server"
	"github.com/vmunix/librarr/pkg/release"
)

var matchesCmd = &cobra.Command{
	Use:   "matches <download-id>",
	Short: "Show the match records of a download",
	Args:  cobra.ExactArgs(1),
	RunE:  runMatchesCmd,
}

func init() {
	rootCmd.AddCommand(matchesCmd)
}

func runMatchesCmd(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid download id %q", args[0])
	}

	return withApp(func(app *server.App) error {
		if _, err := app.Downloads.Get(id); err != nil {
			return err
		}
		records, err := app.Matches.ListByDownload(id)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), records)
		}
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No match records")
			return nil
		}

		rows := make([][]string, 0, len(records))
		for _, r := range records {
			rows = append(rows, []string{
				strconv.Itoa(r.FileIndex),
				truncate(filepath.Base(r.FilePath), 45),
				release.HumanSize(r.FileSize),
				targetString(r),
				string(r.MatchType),
				fmt.Sprintf("%.2f", r.Confidence),
				recordState(r),
			})
		}
		headers := []string{"#", "FILE", "SIZE", "TARGET", "TYPE", "CONF", "STATE"}
		fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, 0, 2, 5))
		return nil
	})
}

func targetString(r *download.MatchRecord) string {
	if r.Target == nil {
		return "-"
	}
	if s, ok := r.Target.(fmt.Stringer); ok {
		return s.String()
	}
	return string(r.Target.Kind())
}

func recordState(r *download.MatchRecord) string {
	switch {
	case r.Error != "":
		return "error: " + truncate(r.Error, 30)
	case r.SkipDownload:
		return "skipped: " + r.SkipReason
	case r.Processed:
		return "processed"
	default:
		return "pending"
	}
}
