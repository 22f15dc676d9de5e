package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vmunix/librarr/internal/importer"
	"github.com/vmunix/librarr/internal/library"
	"github.com/vmunix/librarr/internal/server"
)

var planCmd = &cobra.Command{
	Use:   "plan <episode|movie|track|chapter> <entity-id> <filename>",
	Short: "Show where a file for an entity would be placed",
	Long: `Plan the library path of a file without touching anything. The entity's
library naming pattern is used unless --pattern overrides it.

Examples:
  librarr plan episode 431 "Show.S01E05.1080p.mkv"
  librarr plan --pattern "{title} [{year}].{ext}" movie 77 movie.mkv`,
	Args: cobra.ExactArgs(3),
	RunE: runPlanCmd,
}

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.Flags().String("pattern", "", "Naming pattern to use instead of the library's")
}

type planResult struct {
	Target   library.Target `json:"target"`
	Library  string         `json:"library"`
	Pattern  string         `json:"pattern"`
	Relative string         `json:"relative"`
	Path     string         `json:"path"`
}

func runPlanCmd(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid entity id %q", args[1])
	}
	target, err := library.TargetFor(library.Key{Kind: library.TargetKind(args[0]), ID: id})
	if err != nil {
		return err
	}
	pattern, _ := cmd.Flags().GetString("pattern")

	return withApp(func(app *server.App) error {
		desc, err := app.Library.Describe(target)
		if err != nil {
			return fmt.Errorf("%s %d: %w", args[0], id, err)
		}
		lib := *desc.Library
		if pattern != "" {
			lib.NamingPattern = pattern
		}
		if lib.NamingPattern == "" {
			lib.NamingPattern = importer.PatternFor(lib.Type)
		}

		rel := importer.PlanFor(&lib, desc, filepath.Base(args[2]))
		res := planResult{
			Target:   desc.Target,
			Library:  lib.Name,
			Pattern:  lib.NamingPattern,
			Relative: rel,
			Path:     filepath.Join(lib.Root, rel),
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Path)
		return nil
	})
}
