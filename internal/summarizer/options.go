package summarizer

import (
	"fmt"
	"strings"
)

// Length selects how long the summary should be.
type Length string

const (
	LengthShort  Length = "short"
	LengthMedium Length = "medium"
	LengthLong   Length = "long"
)

// Style selects the tone of the summary.
type Style string

const (
	StyleFormal     Style = "formal"
	StyleCasual     Style = "casual"
	StyleTechnical  Style = "technical"
	StyleSimplified Style = "simplified"
)

// DefaultLanguage is the language summaries are written in unless asked otherwise.
const DefaultLanguage = "Turkish"

// Options tune a summarization request. The zero value means medium, formal, Turkish, no quotes.
type Options struct {
	Length           Length `json:"length,omitempty"`
	Style            Style  `json:"style,omitempty"`
	Language         string `json:"language,omitempty"`
	IncludeKeyQuotes bool   `json:"includeKeyQuotes,omitempty"`
}

// withDefaults replaces empty and unknown values.
func (o Options) withDefaults() Options {
	switch o.Length {
	case LengthShort, LengthMedium, LengthLong:
	default:
		o.Length = LengthMedium
	}
	switch o.Style {
	case StyleFormal, StyleCasual, StyleTechnical, StyleSimplified:
	default:
		o.Style = StyleFormal
	}
	o.Language = strings.TrimSpace(o.Language)
	if o.Language == "" {
		o.Language = DefaultLanguage
	}
	return o
}

var lengthInstructions = map[Length]string{
	LengthShort:  "1-2 sentences maximum",
	LengthMedium: "3-4 sentences",
	LengthLong:   "5-7 sentences with more detail",
}

var styleInstructions = map[Style]string{
	StyleFormal:     "Use formal, professional language",
	StyleCasual:     "Use casual, conversational language",
	StyleTechnical:  "Use technical terminology and precise language",
	StyleSimplified: "Use simple, easy-to-understand language",
}

// buildPrompt asks the model for a strict JSON answer. opts must already have defaults applied.
func buildPrompt(text string, opts Options) string {
	var b strings.Builder
	b.WriteString("Please analyze the following text and provide:\n")
	fmt.Fprintf(&b, "1. A summary (%s) in %s\n", lengthInstructions[opts.Length], opts.Language)
	fmt.Fprintf(&b, "2. Key topics/keywords (in %s)\n", opts.Language)
	if opts.IncludeKeyQuotes {
		b.WriteString("3. Key quotes from the text (if any noteworthy quotes exist)\n")
	}
	fmt.Fprintf(&b, "\nWriting style: %s\n\n", styleInstructions[opts.Style])
	b.WriteString("Format your response as JSON with the following structure:\n{\n")
	b.WriteString(`  "summary": "Your summary here...",` + "\n")
	b.WriteString(`  "keywords": ["keyword1", "keyword2", "keyword3"]`)
	if opts.IncludeKeyQuotes {
		b.WriteString(",\n" + `  "quotes": ["quote1", "quote2"]`)
	}
	b.WriteString("\n}\n\nText to analyze:\n")
	b.WriteString(text)
	b.WriteString("\n")
	return b.String()
}
