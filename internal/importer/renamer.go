// internal/importer/renamer.go
package importer

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/vmunix/librarr/internal/library"
)

// Default naming patterns per library type.
const (
	DefaultTVPattern        = "{show}/Season {season:02}/{show} - S{season:02}E{episode:02} - {title}.{ext}"
	DefaultMoviePattern     = "{title} ({year})/{title} ({year}).{ext}"
	DefaultMusicPattern     = "{artist}/{album} ({year})/{track:02} - {title}.{ext}"
	DefaultAudiobookPattern = "{author}/{title}/{original}.{ext}"
)

// PatternFor returns the default naming pattern for a library type.
func PatternFor(t library.Type) string {
	switch t {
	case library.TypeTV:
		return DefaultTVPattern
	case library.TypeMovie:
		return DefaultMoviePattern
	case library.TypeMusic:
		return DefaultMusicPattern
	case library.TypeAudiobook:
		return DefaultAudiobookPattern
	}
	return "{original}.{ext}"
}

// Metadata holds the values a naming pattern can refer to.
type Metadata struct {
	// Kind restricts the placeholders that expand. Placeholders belonging to
	// another kind stay literal. Empty expands everything.
	Kind library.TargetKind

	Show    string
	Season  int
	Episode int
	Title   string
	Year    int

	Artist string
	Album  string
	Track  int

	Author         string
	Series         string
	SeriesPosition string
	Narrator       string
	Chapter        int

	// BasePath is the recorded folder of the owning entity. When set it
	// replaces the pattern-derived entity folder.
	BasePath string
}

// NewMetadata flattens an entity description for Plan.
func NewMetadata(d *library.Description) Metadata {
	md := Metadata{
		Show:           d.Show,
		Season:         d.Season,
		Episode:        d.Episode,
		Title:          d.Title,
		Year:           d.Year,
		Artist:         d.Artist,
		Album:          d.Album,
		Track:          d.Track,
		Author:         d.Author,
		Series:         d.Series,
		SeriesPosition: d.SeriesPosition,
		Narrator:       d.Narrator,
		Chapter:        d.Chapter,
		BasePath:       d.BasePath,
	}
	if d.Target != nil {
		md.Kind = d.Target.Kind()
	}
	return md
}

var kindPlaceholders = map[library.TargetKind][]string{
	library.KindEpisode: {"show", "season", "episode"},
	library.KindMovie:   {},
	library.KindTrack:   {"artist", "album", "track"},
	library.KindChapter: {"author", "series", "series_position", "narrator"},
}

// formatPattern matches {name} or {name:02} style placeholders.
var formatPattern = regexp.MustCompile(`\{(\w+)(?::(\d+))?\}`)

// emptyGroup matches brackets left behind by a value that expanded to nothing.
var emptyGroup = regexp.MustCompile(`\s*(\(\s*\)|\[\s*\])`)

var multiSpace = regexp.MustCompile(`\s{2,}`)

// Plan expands pattern into a relative path (or an absolute one under
// md.BasePath) for a file originally named original.
func Plan(pattern string, md Metadata, original string) string {
	values := md.values(original)

	expanded := formatPattern.ReplaceAllStringFunc(pattern, func(match string) string {
		parts := formatPattern.FindStringSubmatch(match)
		val, ok := values[parts[1]]
		if !ok {
			return match
		}
		switch v := val.(type) {
		case int:
			if parts[2] != "" {
				width, _ := strconv.Atoi(parts[2])
				return fmt.Sprintf("%0*d", width, v)
			}
			return strconv.Itoa(v)
		case string:
			return v
		}
		return match
	})

	var segments []string
	for _, seg := range strings.Split(expanded, "/") {
		seg = emptyGroup.ReplaceAllString(seg, "")
		seg = multiSpace.ReplaceAllString(seg, " ")
		seg = strings.TrimSpace(seg)
		if seg != "" {
			segments = append(segments, seg)
		}
	}

	if md.BasePath != "" && len(segments) > 1 {
		return rebase(segments, md)
	}
	return filepath.Join(segments...)
}

// rebase swaps the entity folder for BasePath. For episodes that is the
// first segment, so season folders survive; for everything else it is the
// whole directory.
func rebase(segments []string, md Metadata) string {
	dirs, file := segments[:len(segments)-1], segments[len(segments)-1]
	var kept []string
	if md.Kind == library.KindEpisode {
		kept = dirs[1:]
	}
	parts := append([]string{md.BasePath}, kept...)
	return filepath.Join(append(parts, file)...)
}

func (md Metadata) values(original string) map[string]any {
	base := filepath.Base(original)
	ext := filepath.Ext(base)

	vals := map[string]any{
		"title":    SanitizeFilename(md.Title),
		"year":     "",
		"ext":      strings.TrimPrefix(ext, "."),
		"original": SanitizeFilename(strings.TrimSuffix(base, ext)),
	}
	if md.Year > 0 {
		vals["year"] = md.Year
	}
	if vals["title"] == "" {
		switch md.Kind {
		case library.KindEpisode:
			vals["title"] = fmt.Sprintf("Episode %d", md.Episode)
		case library.KindTrack:
			vals["title"] = fmt.Sprintf("Track %d", md.Track)
		case library.KindChapter:
			vals["title"] = fmt.Sprintf("Chapter %d", md.Chapter)
		}
	}

	all := map[string]any{
		"show":            SanitizeFilename(md.Show),
		"season":          md.Season,
		"episode":         md.Episode,
		"artist":          SanitizeFilename(md.Artist),
		"album":           SanitizeFilename(md.Album),
		"track":           md.Track,
		"author":          SanitizeFilename(md.Author),
		"series":          SanitizeFilename(md.Series),
		"series_position": SanitizeFilename(md.SeriesPosition),
		"narrator":        SanitizeFilename(md.Narrator),
	}
	if md.Kind == "" {
		for k, v := range all {
			vals[k] = v
		}
		return vals
	}
	for _, k := range kindPlaceholders[md.Kind] {
		vals[k] = all[k]
	}
	return vals
}

// PlanFor plans the path of a file in lib for the described entity, using
// the library's pattern or the default for its type.
func PlanFor(lib *library.Library, d *library.Description, original string) string {
	pattern := lib.NamingPattern
	if pattern == "" {
		pattern = PatternFor(lib.Type)
	}
	return Plan(pattern, NewMetadata(d), original)
}
