// internal/importer/sanitize.go
package importer

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// unsafeChars maps characters that are illegal on common filesystems to a
// safe spelling.
var unsafeChars = strings.NewReplacer(
	":", " - ",
	"/", " ",
	"\\", " ",
	"|", " ",
	"?", "",
	"*", "",
	"<", "",
	">", "",
	`"`, "'",
	"\x00", "",
)

var (
	spaceRun = regexp.MustCompile(`\s+`)
	dotRun   = regexp.MustCompile(`\.{2,}`)
)

// SanitizeFilename makes a single path segment safe to create on disk.
// The result never contains a path separator and is stable when sanitized
// again.
func SanitizeFilename(name string) string {
	name = unsafeChars.Replace(name)
	name = dotRun.ReplaceAllString(name, ".")
	name = spaceRun.ReplaceAllString(name, " ")
	name = strings.Trim(name, " .")
	name = strings.TrimSuffix(name, " -")
	name = strings.TrimPrefix(name, "- ")
	return strings.Trim(name, " .")
}

// ValidatePath returns ErrPathTraversal unless path is root or lies below it.
func ValidatePath(path, root string) error {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s is outside %s", ErrPathTraversal, path, root)
	}
	return nil
}

// IsWithin reports whether path is root or lies below it.
func IsWithin(path, root string) bool {
	return ValidatePath(path, root) == nil
}
