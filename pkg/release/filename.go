package release

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/moistari/rls"
)

// EpisodeInfo is the episode interpretation of a filename.
type EpisodeInfo struct {
	Show       string
	Year       int
	Season     int
	Episode    int
	EndEpisode int // last episode of a multi-episode file, 0 otherwise
}

// MovieInfo is the movie interpretation of a filename.
type MovieInfo struct {
	Title string
	Year  int
}

var (
	// S01E05, S01.E05, s1e5, S01E05E06, S01E05-E06
	seasonEpisodeRegex = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])s(\d{1,2})[ ._-]?e(\d{1,3})(?:-?e(\d{1,3}))?`)
	// 1x05
	crossEpisodeRegex = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])(\d{1,2})x(\d{2,3})(?:[^a-z0-9]|$)`)
	// Season 1 Episode 5
	wordyEpisodeRegex = regexp.MustCompile(`(?i)season[ ._-]*(\d{1,2})[ ._-]*episode[ ._-]*(\d{1,3})`)

	yearRegex        = regexp.MustCompile(`(?:^|[ ._(\[-])((?:19|20)\d{2})(?:[ ._)\]-]|$)`)
	trailingYear     = regexp.MustCompile(`[ ._(\[-]+((?:19|20)\d{2})[)\]]?$`)
	bracketedRegex   = regexp.MustCompile(`\[[^\]]*\]|\{[^}]*\}`)
	parenYearRegex   = regexp.MustCompile(`\(((?:19|20)\d{2})\)`)
	separatorReplace = strings.NewReplacer(".", " ", "_", " ")
)

// ParseEpisode extracts show, season and episode. The SxxEyy family of
// tokens is authoritative; the release parser is only a fallback. ok is false
// when no season and episode could be recovered.
func ParseEpisode(name string) (EpisodeInfo, bool) {
	base := stem(name)

	for _, re := range []*regexp.Regexp{seasonEpisodeRegex, crossEpisodeRegex, wordyEpisodeRegex} {
		loc := re.FindStringSubmatchIndex(base)
		if loc == nil {
			continue
		}
		info := EpisodeInfo{
			Season:  atoi(base[loc[2]:loc[3]]),
			Episode: atoi(base[loc[4]:loc[5]]),
		}
		if len(loc) > 6 && loc[6] >= 0 {
			info.EndEpisode = atoi(base[loc[6]:loc[7]])
		}
		info.Show, info.Year = splitYear(cleanName(base[:loc[0]]))
		return info, true
	}

	r := rls.ParseString(base)
	if r.Series > 0 && r.Episode > 0 {
		return EpisodeInfo{
			Show:    r.Title,
			Year:    r.Year,
			Season:  r.Series,
			Episode: r.Episode,
		}, true
	}
	return EpisodeInfo{}, false
}

// ParseMovie extracts a title and year. The last plausible year that is not
// at the very start wins, so "2001 A Space Odyssey 1968" keeps its title.
func ParseMovie(name string) (MovieInfo, bool) {
	base := stem(name)

	matches := yearRegex.FindAllStringSubmatchIndex(base, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		if m[2] == 0 {
			continue
		}
		title := cleanName(base[:m[2]])
		if title == "" {
			continue
		}
		return MovieInfo{Title: title, Year: atoi(base[m[2]:m[3]])}, true
	}

	r := rls.ParseString(base)
	if r.Title != "" {
		return MovieInfo{Title: r.Title, Year: r.Year}, true
	}
	return MovieInfo{}, false
}

var (
	discTrackRegex   = regexp.MustCompile(`^(\d{1,2})[-.](\d{1,3})(?:[ ._-]|$)`)
	leadingTrack     = regexp.MustCompile(`^(\d{1,3})(?:[ ._-]|$)`)
	embeddedTrack    = regexp.MustCompile(`\s-\s(\d{1,3})\s-\s`)
	trackPrefixRegex = regexp.MustCompile(`^(?:\d{1,2}[-.])?\d{1,3}[ ._-]*(?:-\s*)?`)
)

// ParseTrackNumber reads a leading track number from an audio filename.
// "1-03 Song.flac" yields disc 1, track 3; "03 - Song.flac" yields disc 0
// (unknown), track 3; "Artist - 03 - Song.mp3" yields track 3.
func ParseTrackNumber(name string) (disc, track int, ok bool) {
	base := stem(name)
	if m := discTrackRegex.FindStringSubmatch(base); m != nil && atoi(m[1]) <= 20 {
		return atoi(m[1]), atoi(m[2]), true
	}
	if m := leadingTrack.FindStringSubmatch(base); m != nil {
		return 0, atoi(m[1]), true
	}
	if m := embeddedTrack.FindStringSubmatch(base); m != nil {
		return 0, atoi(m[1]), true
	}
	return 0, 0, false
}

// TrackTitle strips the track number and separators from an audio filename.
func TrackTitle(name string) string {
	base := stem(name)
	if m := embeddedTrack.FindStringIndex(base); m != nil {
		return strings.TrimSpace(base[m[1]:])
	}
	base = trackPrefixRegex.ReplaceAllString(base, "")
	return strings.TrimSpace(separatorReplace.Replace(base))
}

// AlbumKey identifies an album (or audiobook) by its credited artist.
type AlbumKey struct {
	Artist string
	Album  string
	Year   int
}

// ParseAlbumKey reads "Artist - Album (2020) [FLAC]" style download names.
// Scene style "Artist-Album-2020-GROUP" is also understood.
func ParseAlbumKey(name string) (AlbumKey, bool) {
	s := bracketedRegex.ReplaceAllString(name, " ")
	var key AlbumKey
	if m := parenYearRegex.FindStringSubmatchIndex(s); m != nil {
		key.Year = atoi(s[m[2]:m[3]])
		s = s[:m[0]] + " " + s[m[1]:]
	}

	if artist, album, found := strings.Cut(s, " - "); found {
		key.Artist = cleanName(artist)
		album, rest, _ := strings.Cut(album, " - ")
		if y := strings.TrimSpace(rest); key.Year == 0 && len(y) == 4 && isDigits(y) {
			key.Year = atoi(y)
		}
		key.Album, key.Year = splitYearKeep(cleanName(album), key.Year)
		return key, key.Artist != "" && key.Album != ""
	}

	parts := strings.Split(separatorReplace.Replace(s), "-")
	if len(parts) < 2 {
		return AlbumKey{}, false
	}
	key.Artist = cleanName(parts[0])
	key.Album = cleanName(parts[1])
	if key.Year == 0 && len(parts) > 2 {
		if y := strings.TrimSpace(parts[2]); len(y) == 4 && isDigits(y) {
			key.Year = atoi(y)
		}
	}
	return key, key.Artist != "" && key.Album != ""
}

var sidecarExtensions = map[string]bool{
	".nfo": true, ".srt": true, ".sub": true, ".idx": true, ".txt": true,
	".jpg": true, ".png": true, ".cue": true, ".log": true, ".torrent": true,
}

// stem returns the base name without extension. Directory components are
// dropped so full paths can be passed in.
func stem(name string) string {
	base := filepath.Base(name)
	if IsMediaFile(base) || IsArchive(base) || sidecarExtensions[strings.ToLower(filepath.Ext(base))] {
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return base
}

// cleanName turns separators into spaces and trims leftover punctuation.
func cleanName(s string) string {
	s = separatorReplace.Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, " -([")
}

// splitYear removes a trailing year from a show name: "Doctor Who 2005".
func splitYear(s string) (string, int) {
	return splitYearKeep(s, 0)
}

func splitYearKeep(s string, year int) (string, int) {
	m := trailingYear.FindStringSubmatchIndex(s)
	if m == nil || m[0] == 0 {
		return s, year
	}
	return strings.TrimSpace(s[:m[0]]), atoi(s[m[2]:m[3]])
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
