// Package triggers extracts trigger phrases from memory content and matches
// incoming prompts against the phrases of every indexed memory.
package triggers

import (
	"cmp"
	"math"
	"regexp"
	"slices"
	"strings"
	"unicode"
)

const (
	// DefaultMaxPhrases is the number of phrases kept per memory.
	DefaultMaxPhrases = 4

	maxNgram   = 3
	minWordLen = 3
)

var htmlComment = regexp.MustCompile(`(?s)<!--.*?-->`)

// Extractor derives trigger phrases with TF-IDF scoring against a static,
// compiled-in IDF estimate. The output depends only on the input text.
type Extractor struct {
	MaxPhrases int
}

// NewExtractor returns an Extractor keeping maxPhrases phrases, or
// DefaultMaxPhrases when maxPhrases <= 0.
func NewExtractor(maxPhrases int) *Extractor {
	if maxPhrases <= 0 {
		maxPhrases = DefaultMaxPhrases
	}
	return &Extractor{MaxPhrases: maxPhrases}
}

type candidate struct {
	phrase string
	words  int
	tf     int
	idf    float64
}

func (c candidate) score() float64 {
	// longer phrases are more specific
	return float64(c.tf) * c.idf * (1 + 0.5*float64(c.words-1))
}

// Extract returns up to MaxPhrases lowercase phrases of one to three words,
// best first. Phrases contained in a better phrase are dropped.
func (e *Extractor) Extract(text string) []string {
	limit := e.MaxPhrases
	if limit <= 0 {
		limit = DefaultMaxPhrases
	}

	candidates := make(map[string]*candidate)
	for _, run := range wordRuns(text) {
		for n := 1; n <= maxNgram; n++ {
			for i := 0; i+n <= len(run); i++ {
				words := run[i : i+n]
				phrase := strings.Join(words, " ")
				c, ok := candidates[phrase]
				if !ok {
					c = &candidate{phrase: phrase, words: n, idf: phraseIDF(words)}
					candidates[phrase] = c
				}
				c.tf++
			}
		}
	}

	ranked := make([]*candidate, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, c)
	}
	slices.SortFunc(ranked, func(a, b *candidate) int {
		return cmp.Or(
			cmp.Compare(b.score(), a.score()),
			strings.Compare(a.phrase, b.phrase),
		)
	})

	out := make([]string, 0, limit)
	for _, c := range ranked {
		if len(out) == limit {
			break
		}
		if containedIn(c.phrase, out) {
			continue
		}
		out = append(out, c.phrase)
	}
	return out
}

// wordRuns splits text into runs of consecutive content words. Stopwords,
// punctuation and line breaks end a run so phrases never span them.
func wordRuns(text string) [][]string {
	text = htmlComment.ReplaceAllString(strings.ToLower(text), " ")

	var (
		runs [][]string
		run  []string
		word strings.Builder
	)
	endRun := func() {
		if len(run) > 0 {
			runs = append(runs, run)
			run = nil
		}
	}
	endWord := func(breaksRun bool) {
		w := strings.Trim(word.String(), "-_")
		word.Reset()
		switch {
		case w == "":
		case !contentWord(w):
			endRun()
		default:
			run = append(run, w)
		}
		if breaksRun {
			endRun()
		}
	}

	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_':
			word.WriteRune(r)
		case r == ' ' || r == '\t':
			endWord(false)
		default:
			endWord(true)
		}
	}
	endWord(true)
	return runs
}

func contentWord(w string) bool {
	if len([]rune(w)) < minWordLen {
		return false
	}
	if _, stop := stopwords[w]; stop {
		return false
	}
	return strings.IndexFunc(w, unicode.IsLetter) >= 0
}

// phraseIDF estimates rarity without a corpus: longer words are assumed
// rarer, common project vocabulary is discounted.
func phraseIDF(words []string) float64 {
	var idf float64
	for _, w := range words {
		v := math.Log(1 + float64(len([]rune(w))))
		if _, common := commonWords[w]; common {
			v *= 0.3
		}
		idf += v
	}
	return idf / float64(len(words))
}

func containedIn(phrase string, selected []string) bool {
	for _, s := range selected {
		if strings.Contains(" "+s+" ", " "+phrase+" ") {
			return true
		}
	}
	return false
}
