package feeds

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// UntitledPlaceholder replaces empty item titles.
const UntitledPlaceholder = "Başlık mevcut değil"

// MaxTextLength caps sanitized descriptions and contents, in runes.
const MaxTextLength = 5000

// MaxItemAge is how far in the past a publication date may lie before it is replaced by the fetch time.
const MaxItemAge = 365 * 24 * time.Hour

var whitespace = regexp.MustCompile(`\s+`)

// Sanitize turns feed HTML or text into a single line of plain text of at most MaxTextLength runes.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}
	if strings.ContainsAny(s, "<&") {
		s = htmlToText(s)
	}
	s = strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
	if utf8.RuneCountInString(s) > MaxTextLength {
		s = strings.TrimSpace(string([]rune(s)[:MaxTextLength]))
	}
	return s
}

func htmlToText(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	doc.Find("script, style, noscript").Remove()
	// keep words from adjacent blocks apart
	doc.Find("br, p, div, li, h1, h2, h3, h4, h5, h6, blockquote, tr").AppendHtml(" ")
	return doc.Text()
}

func firstImageSrc(s string) string {
	if !strings.Contains(s, "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img[src]").First().Attr("src")
	return strings.TrimSpace(src)
}

// NormalizeDate returns the publication date, or now when it is missing, in the
// future, or older than MaxItemAge.
func NormalizeDate(raw *time.Time, now time.Time) time.Time {
	now = now.UTC()
	if raw == nil || raw.IsZero() {
		return now
	}
	t := raw.UTC()
	if t.After(now) || t.Before(now.Add(-MaxItemAge)) {
		return now
	}
	return t
}
