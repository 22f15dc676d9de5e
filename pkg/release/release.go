// Package release parses media filenames: quality tags, episode and movie
// naming, track numbers and sizes. Everything here is pure.
package release

import (
	"path/filepath"
	"strings"
)

// Quality holds the tags detected in a filename. Absent fields are empty.
type Quality struct {
	Resolution string `json:"resolution,omitempty"`
	Codec      string `json:"codec,omitempty"`
	Source     string `json:"source,omitempty"`
	Audio      string `json:"audio,omitempty"`
	HDR        string `json:"hdr,omitempty"`
}

// IsZero reports whether no tag was detected.
func (q Quality) IsZero() bool {
	return q == Quality{}
}

// String renders the non-empty tags separated by spaces.
func (q Quality) String() string {
	var parts []string
	for _, s := range []string{q.Resolution, q.Source, q.Codec, q.HDR, q.Audio} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// term is one vocabulary entry. Short terms only match whole tokens so that
// "sd" does not fire on "wednesday" or "dv" on "dvdrip".
type term struct {
	match string
	value string
	token bool
}

var resolutionTerms = []term{
	{"2160p", "2160p", false},
	{"4k", "2160p", true},
	{"uhd", "2160p", true},
	{"1080p", "1080p", false},
	{"1080i", "1080p", false},
	{"720p", "720p", false},
	{"576p", "576p", false},
	{"480p", "480p", false},
	{"sd", "480p", true},
}

var codecTerms = []term{
	{"x265", "x265", false},
	{"h265", "x265", false},
	{"h.265", "x265", false},
	{"hevc", "x265", false},
	{"x264", "x264", false},
	{"h264", "x264", false},
	{"h.264", "x264", false},
	{"avc", "x264", true},
	{"av1", "av1", true},
	{"xvid", "xvid", false},
	{"divx", "xvid", false},
	{"vc-1", "vc1", false},
	{"vc1", "vc1", true},
	{"mpeg2", "mpeg2", false},
}

var sourceTerms = []term{
	{"remux", "remux", false},
	{"bluray", "bluray", false},
	{"blu-ray", "bluray", false},
	{"bdrip", "bluray", false},
	{"brrip", "bluray", false},
	{"web-dl", "webdl", false},
	{"webdl", "webdl", false},
	{"webrip", "webrip", false},
	{"hdtv", "hdtv", false},
	{"dvdrip", "dvd", false},
	{"dvd", "dvd", true},
}

var audioTerms = []term{
	{"truehd", "truehd", false},
	{"atmos", "truehd", false},
	{"dts-hd", "dts-hd", false},
	{"dtshd", "dts-hd", false},
	{"dts", "dts", true},
	{"ddp", "eac3", true},
	{"dd+", "eac3", false},
	{"eac3", "eac3", false},
	{"e-ac-3", "eac3", false},
	{"ac3", "ac3", true},
	{"dd5", "ac3", false},
	{"aac", "aac", true},
	{"flac", "flac", true},
	{"alac", "alac", true},
	{"opus", "opus", true},
	{"mp3", "mp3", true},
}

var hdrTerms = []term{
	{"dolby vision", "dolby-vision", false},
	{"dolby.vision", "dolby-vision", false},
	{"dovi", "dolby-vision", true},
	{"dv", "dolby-vision", true},
	{"hdr10+", "hdr10+", false},
	{"hdr10plus", "hdr10+", false},
	{"hdr10", "hdr10", false},
	{"hdr", "hdr", true},
	{"hlg", "hlg", true},
}

// ParseQuality detects quality tags in a filename. It is total and
// deterministic: unknown input yields an empty Quality.
func ParseQuality(filename string) Quality {
	lower := strings.ToLower(filename)
	tokens := tokenSet(lower)

	q := Quality{
		Resolution: lookup(lower, tokens, resolutionTerms),
		Codec:      lookup(lower, tokens, codecTerms),
		Source:     lookup(lower, tokens, sourceTerms),
		Audio:      lookup(lower, tokens, audioTerms),
		HDR:        lookup(lower, tokens, hdrTerms),
	}

	// Lossless and lossy audio files carry their format as the codec.
	if q.Codec == "" && Classify(filename) == MediaAudio {
		switch ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), "."); ext {
		case "flac", "alac", "mp3", "aac", "opus", "ogg", "m4a", "m4b", "wav":
			q.Codec = ext
			if q.Audio == "" {
				q.Audio = ext
			}
		}
	}
	return q
}

func lookup(lower string, tokens map[string]bool, terms []term) string {
	for _, t := range terms {
		if t.token {
			if hasToken(tokens, t.match) {
				return t.value
			}
			continue
		}
		if strings.Contains(lower, t.match) {
			return t.value
		}
	}
	return ""
}

// hasToken matches a whole token, allowing a trailing channel count such as
// "ddp5" or "aac2".
func hasToken(tokens map[string]bool, match string) bool {
	if tokens[match] {
		return true
	}
	for tok := range tokens {
		if rest, ok := strings.CutPrefix(tok, match); ok && rest != "" && isDigits(rest) {
			return true
		}
	}
	return false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// tokenSet splits on anything that is not a letter or digit.
func tokenSet(lower string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range splitTokens(lower) {
		set[tok] = true
	}
	return set
}

func splitTokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
}

// ResolutionRank orders resolutions for comparison. Unknown is 0.
func ResolutionRank(resolution string) int {
	switch resolution {
	case "2160p":
		return 4
	case "1080p":
		return 3
	case "720p":
		return 2
	case "576p", "480p":
		return 1
	default:
		return 0
	}
}

// CodecRank orders codecs by efficiency. Unknown is 0.
func CodecRank(codec string) int {
	switch codec {
	case "av1":
		return 3
	case "x265":
		return 2
	case "x264", "vc1", "flac", "alac":
		return 1
	default:
		return 0
	}
}
