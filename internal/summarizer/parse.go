package summarizer

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	codeFence     = regexp.MustCompile("```json\\n?|\\n?```")
	summaryField  = regexp.MustCompile(`"summary":\s*"([^"]+)"`)
	keywordsField = regexp.MustCompile(`"keywords":\s*\[(.*?)\]`)
)

// rawResult mirrors the JSON the model is asked for. Fields stay loosely typed so a
// wrong type degrades to the local fallback instead of failing the whole decode.
type rawResult struct {
	Summary  any `json:"summary"`
	Keywords any `json:"keywords"`
	Quotes   any `json:"quotes"`
}

// parseResponse turns model output into a Result, repairing what it can and filling
// the rest from the local fallback. It never fails.
func parseResponse(generated, text string, lang Language) (Result, bool) {
	var raw rawResult
	repaired := false

	cleaned := strings.TrimSpace(codeFence.ReplaceAllString(generated, ""))
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		repaired = true
		m := summaryField.FindStringSubmatch(generated)
		if m == nil {
			return Result{
				Summary:  FallbackSummary(text, lang),
				Keywords: ExtractKeywords(text, lang),
			}, repaired
		}
		raw = rawResult{Summary: m[1]}
		if km := keywordsField.FindStringSubmatch(generated); km != nil {
			var kws []any
			for _, k := range strings.Split(km[1], ",") {
				kws = append(kws, strings.ReplaceAll(strings.TrimSpace(k), `"`, ""))
			}
			raw.Keywords = kws
		}
	}

	res := Result{
		Keywords: normalizeKeywords(raw.Keywords),
		Quotes:   stringsOf(raw.Quotes),
	}
	if s, ok := raw.Summary.(string); ok && strings.TrimSpace(s) != "" {
		res.Summary = strings.TrimSpace(s)
	} else {
		res.Summary = FallbackSummary(text, lang)
	}
	if len(res.Keywords) == 0 {
		res.Keywords = ExtractKeywords(text, lang)
	}
	return res, repaired
}

// normalizeKeywords keeps non-empty trimmed strings, drops duplicates, and caps at MaxKeywords.
func normalizeKeywords(v any) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, k := range stringsOf(v) {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
		if len(out) == MaxKeywords {
			break
		}
	}
	return out
}

func stringsOf(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
