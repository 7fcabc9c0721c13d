package summarizer

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Language holds the rules of the local keyword and summary fallback for one natural language.
type Language struct {
	Name      string
	StopWords map[string]struct{}

	// Keyword pairs returned when the input is empty, has no usable words, or ranks nothing.
	EmptyKeywords    []string
	NoWordKeywords   []string
	NoRankedKeywords []string

	// NoSentenceSummary is returned when the input has no sentence long enough to keep.
	NoSentenceSummary string
}

func stopWords(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// Turkish is the default fallback language.
var Turkish = Language{
	Name: "Turkish",
	StopWords: stopWords(
		"bir", "bu", "şu", "ve", "ile", "için", "olan", "olarak", "da", "de",
		"daha", "çok", "tüm", "her", "gibi", "kadar", "sonra", "önce", "ama",
		"fakat", "ancak", "veya", "yahut", "hem", "hep", "hiç", "şey", "zaman",
	),
	EmptyKeywords:     []string{"içerik", "haber"},
	NoWordKeywords:    []string{"makale", "haber"},
	NoRankedKeywords:  []string{"genel", "haber"},
	NoSentenceSummary: "Özet oluşturulamadı: Geçerli cümle bulunamadı.",
}

// English covers sources that publish in English.
var English = Language{
	Name: "English",
	StopWords: stopWords(
		"the", "and", "for", "that", "with", "this", "from", "have", "will", "were",
		"been", "their", "they", "about", "would", "there", "which", "when", "what",
		"more", "also", "into", "than", "then", "them", "said", "over", "after",
	),
	EmptyKeywords:     []string{"content", "news"},
	NoWordKeywords:    []string{"article", "news"},
	NoRankedKeywords:  []string{"general", "news"},
	NoSentenceSummary: "Summary unavailable: no valid sentence found.",
}

var languages = map[string]Language{
	"turkish": Turkish,
	"türkçe":  Turkish,
	"tr":      Turkish,
	"english": English,
	"en":      English,
}

// LanguageFor returns the rules registered under name, falling back to Turkish.
func LanguageFor(name string) Language {
	if l, ok := languages[strings.ToLower(strings.TrimSpace(name))]; ok {
		return l
	}
	return Turkish
}

// lower folds case without locale rules, so "I" always becomes "i" whatever the
// language. Casers keep state, so one is built per call.
func (l Language) lower(s string) string {
	return cases.Lower(language.Und).String(s)
}
