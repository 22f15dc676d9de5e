package release

import (
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"
)

// Weights of the three comparisons blended by Similarity.
const (
	weightRatio     = 0.4
	weightPartial   = 0.3
	weightTokenSort = 0.3
)

// Similarity scores how alike two names are in [0, 1]. It blends a plain
// edit-distance ratio, a best-window partial ratio (so "Office" scores high
// against "The Office US") and a token-sorted ratio (so word order does not
// matter). Inputs are normalized first; equal normalized strings score 1.
// The result is symmetric in its arguments.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return 1.0
	}
	if na == "" || nb == "" {
		return 0
	}

	score := weightRatio*ratio(na, nb) +
		weightPartial*partialRatio(na, nb) +
		weightTokenSort*ratio(sortTokens(na), sortTokens(nb))
	return min(score, 1.0)
}

// ratio is 1 - levenshtein/maxlen over runes.
func ratio(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	longest := max(la, lb)
	if longest == 0 {
		return 1.0
	}
	d := edlib.LevenshteinDistance(a, b)
	return 1 - float64(d)/float64(longest)
}

// partialRatio slides the shorter string across the longer one and keeps the
// best window ratio.
func partialRatio(a, b string) float64 {
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) || (len(short) == len(long) && a > b) {
		short, long = long, short
	}
	if strings.Contains(string(long), string(short)) {
		return 1.0
	}

	best := 0.0
	for i := 0; i+len(short) <= len(long); i++ {
		if r := ratio(string(short), string(long[i:i+len(short)])); r > best {
			best = r
			if best == 1.0 {
				break
			}
		}
	}
	return best
}

func sortTokens(s string) string {
	fields := strings.Fields(s)
	sort.Strings(fields)
	return strings.Join(fields, " ")
}
