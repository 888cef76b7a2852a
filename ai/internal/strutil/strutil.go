// Package strutil provides string utility functions for the ai packages.
package strutil

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// Truncate truncates a string to a maximum length.
// Uses rune-level truncation to ensure Unicode safety.
// Returns empty string if maxLen <= 0 to prevent slice bounds panic.
func Truncate(s string, maxLen int) string {
	if s == "" || maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

// Normalize lowercases the text, strips punctuation and collapses whitespace.
// Two utterances that differ only in casing, punctuation or spacing normalize
// to the same string.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// WordSet returns the set of unique normalized words in the text.
func WordSet(s string) map[string]struct{} {
	words := strings.Fields(Normalize(s))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Jaccard computes the Jaccard similarity of the word sets of two texts.
// Returns 1 for two empty texts and 0 when only one side is empty.
func Jaccard(a, b string) float64 {
	setA, setB := WordSet(a), WordSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// HashText returns a short SHA256 hex digest of the normalized text.
func HashText(s string) string {
	sum := sha256.Sum256([]byte(Normalize(s)))
	return hex.EncodeToString(sum[:8])
}
