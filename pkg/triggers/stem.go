package triggers

import (
	"strings"
	"unicode"
)

// suffixes are tried in order; the first that leaves a stem of at least
// minStemLen runes is removed.
var suffixes = []string{
	"izations", "ization", "ations", "ation", "ments", "ment", "ings", "ing",
	"ers", "er", "ies", "ied", "ed", "es", "ly", "s", "e",
}

const minStemLen = 4

// stem strips one common English suffix. It only needs to map inflections
// of the same word onto each other, not produce dictionary roots.
func stem(w string) string {
	for _, suf := range suffixes {
		if strings.HasSuffix(w, suf) && len(w)-len(suf) >= minStemLen {
			return w[:len(w)-len(suf)]
		}
	}
	return w
}

func splitLower(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_'
	})
}

// phraseStems returns the stems of a phrase's content words, or nil when the
// phrase has none.
func phraseStems(phrase string) []string {
	var out []string
	for _, w := range splitLower(phrase) {
		if _, stop := stopwords[w]; stop {
			continue
		}
		out = append(out, stem(w))
	}
	return out
}

func promptStems(lower string) map[string]struct{} {
	words := splitLower(lower)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[stem(w)] = struct{}{}
	}
	return set
}

func containsAll(set map[string]struct{}, stems []string) bool {
	if len(stems) == 0 {
		return false
	}
	for _, s := range stems {
		if _, ok := set[s]; !ok {
			return false
		}
	}
	return true
}
