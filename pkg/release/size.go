package release

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
)

var sizeRegex = regexp.MustCompile(`(?i)^\s*([\d.,]+)\s*([kmgtp]?)(i?b?)\s*$`)

// ParseSize converts an indexer-style size such as "1.5 GB" or "500 MiB" to
// bytes. Units are always binary: "1 GB" is 1024^3 bytes, matching what
// indexers and download clients report.
func ParseSize(s string) (int64, error) {
	m := sizeRegex.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("parse size %q: unrecognized format", s)
	}
	number := strings.ReplaceAll(m[1], ",", "")
	unit := strings.ToUpper(m[2])
	if unit != "" {
		unit += "iB"
	} else {
		unit = "B"
	}

	n, err := humanize.ParseBytes(number + " " + unit)
	if err != nil {
		return 0, fmt.Errorf("parse size %q: %w", s, err)
	}
	return int64(n), nil
}

// HumanSize formats bytes with binary units, e.g. "1.5 GiB".
func HumanSize(n int64) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}
	return humanize.IBytes(uint64(n))
}
