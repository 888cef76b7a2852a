package strutil

import (
	"sort"
	"strings"
)

// stopwords are common English words excluded from keyword extraction.
var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(
		"a an and are as at be but by can did do does for from had has have " +
			"he her his how i if in is it its me my of on or our she so that the " +
			"their them they this to us was we were what when where which who why " +
			"will with you your yes no not dont im its lets ok okay please tell " +
			"about like really very just want know think get got make say said") {
		stopwords[w] = struct{}{}
	}
}

// TopKeywords extracts up to n keywords from the text by frequency,
// excluding stopwords and single-character tokens. Ties break
// alphabetically so the result is deterministic.
func TopKeywords(text string, n int) []string {
	if n <= 0 {
		return nil
	}

	counts := make(map[string]int)
	for _, w := range strings.Fields(Normalize(text)) {
		if len(w) < 2 {
			continue
		}
		if _, skip := stopwords[w]; skip {
			continue
		}
		counts[w]++
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})

	if len(words) > n {
		words = words[:n]
	}
	return words
}

// ContainsAny reports whether the normalized text contains any of the phrases.
// Phrases are matched against the normalized text, so casing and punctuation
// do not matter.
func ContainsAny(text string, phrases []string) bool {
	normalized := " " + Normalize(text) + " "
	for _, p := range phrases {
		if strings.Contains(normalized, " "+Normalize(p)+" ") {
			return true
		}
	}
	return false
}
