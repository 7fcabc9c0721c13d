package summarizer

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	fallbackSentences     = 3
	minSentenceLength     = 10
	maxFallbackSummary    = 500
	fallbackKeywordCount  = 8
	minKeywordWordLength  = 4
	minKeywordFinalLength = 3
)

var sentenceTerminators = regexp.MustCompile(`[.!?]+`)

// FallbackSummary joins the first sentences of text without calling a model.
// The result is never empty.
func FallbackSummary(text string, lang Language) string {
	var sentences []string
	for _, s := range sentenceTerminators.Split(text, -1) {
		s = strings.TrimSpace(s)
		if utf8.RuneCountInString(s) > minSentenceLength {
			sentences = append(sentences, s)
			if len(sentences) == fallbackSentences {
				break
			}
		}
	}
	if len(sentences) == 0 {
		return lang.NoSentenceSummary
	}

	summary := strings.Join(sentences, ". ") + "."
	if utf8.RuneCountInString(summary) > maxFallbackSummary {
		summary = string([]rune(summary)[:maxFallbackSummary-3]) + "..."
	}
	return summary
}

// ExtractKeywords ranks the words of text by frequency and returns at most eight.
// The result is never empty.
func ExtractKeywords(text string, lang Language) []string {
	if strings.TrimSpace(text) == "" {
		return clone(lang.EmptyKeywords)
	}

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, lang.lower(text))

	counts := make(map[string]int)
	var order []string
	for _, w := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(w) < minKeywordWordLength || isNumeric(w) {
			continue
		}
		if _, stop := lang.StopWords[w]; stop {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}
	if len(order) == 0 {
		return clone(lang.NoWordKeywords)
	}

	// ties keep first-occurrence order
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > fallbackKeywordCount {
		order = order[:fallbackKeywordCount]
	}

	keywords := make([]string, 0, len(order))
	for _, w := range order {
		if utf8.RuneCountInString(w) >= minKeywordFinalLength {
			keywords = append(keywords, w)
		}
	}
	if len(keywords) == 0 {
		return clone(lang.NoRankedKeywords)
	}
	return keywords
}

func isNumeric(w string) bool {
	for _, r := range w {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func clone(s []string) []string {
	return append([]string(nil), s...)
}
