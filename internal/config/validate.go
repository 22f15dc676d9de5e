// internal/config/validate.go
package config

import (
	"fmt"
	"path/filepath"

	"github.com/vmunix/librarr/internal/library"
	"github.com/vmunix/librarr/internal/processing"
)

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true, "": true,
}

var validTransferModes = map[library.TransferMode]bool{
	library.TransferCopy: true, library.TransferMove: true, library.TransferHardlink: true, "": true,
}

// Validate checks the configuration for errors.
// Returns a slice of error messages (empty if valid).
func (c *Config) Validate() []string {
	var errs []string

	if !validLogLevels[c.Server.LogLevel] {
		errs = append(errs, fmt.Sprintf("server.log_level: must be one of debug, info, warn, error; got %q", c.Server.LogLevel))
	}

	if n := c.Processing.GroupWorkers; n < 1 || n > processing.MaxGroupWorkers {
		errs = append(errs, fmt.Sprintf("processing.group_workers: must be between 1 and %d, got %d", processing.MaxGroupWorkers, n))
	}
	if c.Processing.MaxConcurrentDownloads < 1 {
		errs = append(errs, fmt.Sprintf("processing.max_concurrent_downloads: must be at least 1, got %d", c.Processing.MaxConcurrentDownloads))
	}
	if c.Processing.BatchDelay < 0 {
		errs = append(errs, "processing.batch_delay: must not be negative")
	}

	for name, v := range map[string]float64{
		"show_name":   c.Matching.ShowName,
		"movie_title": c.Matching.MovieTitle,
		"album":       c.Matching.Album,
		"artist":      c.Matching.Artist,
		"track":       c.Matching.Track,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Sprintf("matching.%s: must be between 0 and 1, got %g", name, v))
		}
	}

	if c.Maintenance.Enabled && c.Maintenance.Interval < 0 {
		errs = append(errs, "maintenance.interval: must not be negative")
	}

	if len(c.Libraries) == 0 {
		errs = append(errs, "libraries: at least one library must be configured")
	}
	seen := make(map[string]bool)
	for i, l := range c.Libraries {
		key := fmt.Sprintf("libraries[%d]", i)
		if l.Name == "" {
			errs = append(errs, key+".name: required")
		} else {
			key = fmt.Sprintf("libraries.%s", l.Name)
			if seen[l.Name] {
				errs = append(errs, key+": duplicate library name")
			}
			seen[l.Name] = true
		}
		if !library.Type(l.Type).Valid() {
			errs = append(errs, fmt.Sprintf("%s.type: must be one of tv, movie, music, audiobook; got %q", key, l.Type))
		}
		if l.Root == "" {
			errs = append(errs, key+".root: required")
		} else if !filepath.IsAbs(l.Root) {
			errs = append(errs, fmt.Sprintf("%s.root: must be absolute, got %q", key, l.Root))
		}
		if !validTransferModes[library.TransferMode(l.TransferMode)] {
			errs = append(errs, fmt.Sprintf("%s.transfer_mode: must be one of copy, move, hardlink; got %q", key, l.TransferMode))
		}
		if l.AutoAddDiscovered {
			if library.Type(l.Type) != library.TypeMovie {
				errs = append(errs, key+".auto_add_discovered: only supported for movie libraries")
			}
			if c.TMDB.APIKey == "" {
				errs = append(errs, key+".auto_add_discovered: requires tmdb.api_key")
			}
		}
	}

	return errs
}
