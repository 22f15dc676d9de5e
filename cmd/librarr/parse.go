package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vmunix/librarr/pkg/release"
)

// ParseResult is everything the parsers read from one filename.
type ParseResult struct {
	Name    string          `json:"name"`
	Kind    string          `json:"kind"`
	Quality release.Quality `json:"quality"`
	Episode *EpisodeJSON    `json:"episode,omitempty"`
	Movie   *MovieJSON      `json:"movie,omitempty"`
	Track   *TrackJSON      `json:"track,omitempty"`
}

type EpisodeJSON struct {
	Show       string `json:"show"`
	Year       int    `json:"year,omitempty"`
	Season     int    `json:"season"`
	Episode    int    `json:"episode"`
	EndEpisode int    `json:"end_episode,omitempty"`
}

type MovieJSON struct {
	Title string `json:"title"`
	Year  int    `json:"year,omitempty"`
}

type TrackJSON struct {
	Disc   int    `json:"disc,omitempty"`
	Number int    `json:"number"`
	Title  string `json:"title,omitempty"`
}

var parseCmd = &cobra.Command{
	Use:   "parse <filename>...",
	Short: "Parse filenames (local, no config needed)",
	Long: `Parse filenames the way the matcher does and show what was read.

Examples:
  librarr parse "Show.Name.S01E05.1080p.WEB-DL.x264-GROUP.mkv"
  librarr parse --json "The.Matrix.1999.2160p.UHD.BluRay.x265.mkv"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runParseCmd,
}

func init() {
	rootCmd.AddCommand(parseCmd)
}

func runParseCmd(cmd *cobra.Command, args []string) error {
	results := make([]ParseResult, 0, len(args))
	for _, arg := range args {
		results = append(results, parseFilename(arg))
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), results)
	}

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{r.Name, r.Kind, r.describe(), r.Quality.String()})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"FILE", "KIND", "PARSED", "QUALITY"}, rows))
	return nil
}

func parseFilename(path string) ParseResult {
	name := filepath.Base(path)
	r := ParseResult{
		Name:    name,
		Kind:    release.Classify(path).String(),
		Quality: release.ParseQuality(name),
	}

	switch release.Classify(path) {
	case release.MediaVideo:
		if ep, ok := release.ParseEpisode(name); ok {
			r.Episode = &EpisodeJSON{Show: ep.Show, Year: ep.Year, Season: ep.Season, Episode: ep.Episode, EndEpisode: ep.EndEpisode}
		} else if m, ok := release.ParseMovie(name); ok {
			r.Movie = &MovieJSON{Title: m.Title, Year: m.Year}
		}
	case release.MediaAudio:
		if disc, track, ok := release.ParseTrackNumber(name); ok {
			r.Track = &TrackJSON{Disc: disc, Number: track, Title: release.TrackTitle(name)}
		}
	}
	return r
}

func (r ParseResult) describe() string {
	switch {
	case r.Episode != nil:
		s := fmt.Sprintf("%s S%02dE%02d", r.Episode.Show, r.Episode.Season, r.Episode.Episode)
		if r.Episode.EndEpisode > 0 {
			s += fmt.Sprintf("-E%02d", r.Episode.EndEpisode)
		}
		return s
	case r.Movie != nil:
		if r.Movie.Year == 0 {
			return r.Movie.Title
		}
		return r.Movie.Title + " (" + strconv.Itoa(r.Movie.Year) + ")"
	case r.Track != nil:
		return fmt.Sprintf("track %d: %s", r.Track.Number, r.Track.Title)
	}
	return "-"
}
