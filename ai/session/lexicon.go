package session

import "github.com/hrygo/tutorsense/ai/internal/strutil"

// Keyword lexicons for the lightweight utterance classifiers. Matching is
// normalized substring matching, so multi-word phrases work too.
var (
	lowEnergyPhrases = []string{
		"tired", "sleepy", "bored", "boring", "can we stop",
		"i want to stop", "i give up", "whatever", "meh",
	}
	highEnergyPhrases = []string{
		"awesome", "cool", "yay", "lets go", "let s go", "more please",
		"this is fun", "i love this", "again",
	}
	confusionPhrases = []string{
		"i dont get it", "i don t get it", "confused", "confusing",
		"what does that mean", "too hard", "i dont understand",
		"i don t understand", "huh", "lost me", "makes no sense",
	}
	excellencePhrases = []string{
		"i got it", "got it", "easy", "that was easy", "i know this",
		"i already know", "done already", "finished", "nailed it",
	}
)

// classifyEnergy maps an utterance to an energy level. Neutral text keeps
// the previous level.
func classifyEnergy(text string, prev EnergyLevel) EnergyLevel {
	switch {
	case strutil.ContainsAny(text, lowEnergyPhrases):
		return EnergyLow
	case strutil.ContainsAny(text, highEnergyPhrases):
		return EnergyHigh
	default:
		return prev
	}
}

// classifyPerformance maps an utterance to a performance level. Confusion
// wins over excellence when both appear.
func classifyPerformance(text string, prev PerformanceLevel) PerformanceLevel {
	switch {
	case strutil.ContainsAny(text, confusionPhrases):
		return PerfStruggling
	case strutil.ContainsAny(text, excellencePhrases):
		return PerfExcelling
	default:
		return prev
	}
}
