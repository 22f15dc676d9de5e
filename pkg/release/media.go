package release

import (
	"path/filepath"
	"strings"
)

// MediaKind classifies a file by extension and name.
type MediaKind int

const (
	MediaOther MediaKind = iota
	MediaVideo
	MediaAudio
	MediaSample
)

func (k MediaKind) String() string {
	switch k {
	case MediaVideo:
		return "video"
	case MediaAudio:
		return "audio"
	case MediaSample:
		return "sample"
	default:
		return "other"
	}
}

var videoExtensions = map[string]bool{
	".mkv": true, ".mp4": true, ".avi": true, ".m4v": true,
	".mov": true, ".wmv": true, ".ts": true, ".m2ts": true,
	".webm": true, ".mpg": true, ".mpeg": true,
}

var audioExtensions = map[string]bool{
	".flac": true, ".mp3": true, ".m4a": true, ".m4b": true,
	".aac": true, ".ogg": true, ".opus": true, ".wav": true,
	".alac": true, ".wma": true,
}

var archiveExtensions = map[string]bool{
	".zip": true, ".rar": true, ".7z": true,
}

// IsVideoFile reports whether path has a video extension.
func IsVideoFile(path string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsAudioFile reports whether path has an audio extension.
func IsAudioFile(path string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsMediaFile reports whether path is video or audio.
func IsMediaFile(path string) bool {
	return IsVideoFile(path) || IsAudioFile(path)
}

// IsArchive reports whether path is a supported archive container.
func IsArchive(path string) bool {
	return archiveExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsSample reports whether the filename carries "sample" as a whole token.
// "Show.S01E01-sample.mkv" is a sample, "Samples.of.Life.mkv" is not.
func IsSample(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	name = strings.TrimSuffix(name, filepath.Ext(name))
	for _, tok := range splitTokens(name) {
		if tok == "sample" {
			return true
		}
	}
	// Samples are often shipped in a dedicated folder.
	return strings.EqualFold(filepath.Base(filepath.Dir(path)), "sample")
}

// Classify returns the kind of a file. Sample detection only applies to
// video; a track titled "Sample" is still music.
func Classify(path string) MediaKind {
	switch {
	case IsVideoFile(path):
		if IsSample(path) {
			return MediaSample
		}
		return MediaVideo
	case IsAudioFile(path):
		return MediaAudio
	default:
		return MediaOther
	}
}
