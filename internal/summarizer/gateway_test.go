package summarizer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeGenerator struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (f *fakeGenerator) Name() string { return "fake" }

func (f *fakeGenerator) Generate(_ context.Context, req GenerateRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	f.prompts = append(f.prompts, req.Prompt)
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", errors.New("no response configured")
}

func newTestGateway(gen Generator) (*Gateway, *[]time.Duration) {
	var delays []time.Duration
	g := NewGateway(gen, Config{}, zerolog.Nop())
	g.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return g, &delays
}

const article = "Türkiye'de yapay zeka yatırımları bu yıl hızla arttı. " +
	"Teknoloji şirketleri yapay zeka alanında yeni ürünler duyurdu! " +
	"Uzmanlar yapay zeka düzenlemelerinin önemini vurguladı? " +
	"Dördüncü cümle özetin dışında kalmalı."

func checkResult(t *testing.T, res Result) {
	t.Helper()
	if strings.TrimSpace(res.Summary) == "" {
		t.Fatalf("summary must not be empty")
	}
	if len(res.Keywords) == 0 || len(res.Keywords) > MaxKeywords {
		t.Fatalf("keywords out of bounds: %v", res.Keywords)
	}
	for _, k := range res.Keywords {
		if k == "" || k != strings.TrimSpace(k) {
			t.Fatalf("keyword not trimmed/non-empty: %q", k)
		}
	}
}

func TestSummarizeParsesJSON(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{responses: []string{"```json\n{\"summary\": \"Kısa özet.\", \"keywords\": [\" yapay zeka \", \"\", \"teknoloji\", \"teknoloji\"]}\n```"}}
	g, _ := newTestGateway(gen)

	res, err := g.Summarize(context.Background(), article, Options{})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if res.Summary != "Kısa özet." {
		t.Fatalf("unexpected summary %q", res.Summary)
	}
	if strings.Join(res.Keywords, "|") != "yapay zeka|teknoloji" {
		t.Fatalf("unexpected keywords %v", res.Keywords)
	}
	if gen.calls != 1 {
		t.Fatalf("expected a single model call, got %d", gen.calls)
	}
}

func TestSummarizeRepairsMalformedJSON(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{responses: []string{`Sure! {"summary": "Onarılmış özet", "keywords": ["a1", "b2"], oops`}}
	g, _ := newTestGateway(gen)

	res, err := g.Summarize(context.Background(), article, Options{})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if res.Summary != "Onarılmış özet" {
		t.Fatalf("unexpected summary %q", res.Summary)
	}
	if strings.Join(res.Keywords, "|") != "a1|b2" {
		t.Fatalf("unexpected keywords %v", res.Keywords)
	}
}

func TestSummarizeRepairWithoutKeywordsExtractsLocally(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{responses: []string{`{"summary": "Yalnız özet" broken`}}
	g, _ := newTestGateway(gen)

	res, err := g.Summarize(context.Background(), article, Options{})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if res.Summary != "Yalnız özet" {
		t.Fatalf("unexpected summary %q", res.Summary)
	}
	want := ExtractKeywords(article, Turkish)
	if strings.Join(res.Keywords, "|") != strings.Join(want, "|") {
		t.Fatalf("expected local keywords %v, got %v", want, res.Keywords)
	}
}

func TestSummarizeNonStringSummaryFallsBack(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{responses: []string{`{"summary": 42, "keywords": "nope"}`}}
	g, _ := newTestGateway(gen)

	res, err := g.Summarize(context.Background(), article, Options{})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if res.Summary != FallbackSummary(article, Turkish) {
		t.Fatalf("expected fallback summary, got %q", res.Summary)
	}
	checkResult(t, res)
}

func TestSummarizeCapsKeywords(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{responses: []string{`{"summary": "s", "keywords": ["k1","k2","k3","k4","k5","k6","k7","k8","k9","k10","k11","k12"]}`}}
	g, _ := newTestGateway(gen)

	res, err := g.Summarize(context.Background(), article, Options{})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if len(res.Keywords) != MaxKeywords {
		t.Fatalf("expected %d keywords, got %d", MaxKeywords, len(res.Keywords))
	}
}

func TestSummarizeFallsBackAfterThreeFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("network down")
	gen := &fakeGenerator{errs: []error{boom, boom, boom}}
	g, delays := newTestGateway(gen)

	res, err := g.Summarize(context.Background(), article, Options{})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if gen.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", gen.calls)
	}
	if len(*delays) != 2 || (*delays)[0] != time.Second || (*delays)[1] != 2*time.Second {
		t.Fatalf("unexpected backoff delays %v", *delays)
	}

	wantSummary := "Türkiye'de yapay zeka yatırımları bu yıl hızla arttı. " +
		"Teknoloji şirketleri yapay zeka alanında yeni ürünler duyurdu. " +
		"Uzmanlar yapay zeka düzenlemelerinin önemini vurguladı."
	if res.Summary != wantSummary {
		t.Fatalf("unexpected fallback summary:\n got %q\nwant %q", res.Summary, wantSummary)
	}
	if len(res.Keywords) == 0 || len(res.Keywords) > 8 {
		t.Fatalf("expected 1..8 fallback keywords, got %v", res.Keywords)
	}
	for _, k := range res.Keywords {
		if _, stop := Turkish.StopWords[k]; stop {
			t.Fatalf("stop word %q in keywords", k)
		}
	}
	if res.Keywords[0] != "yapay" {
		t.Fatalf("expected most frequent word first, got %v", res.Keywords)
	}
}

func TestSummarizeRetriesEmptyResponse(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{responses: []string{"   ", `{"summary": "ikinci deneme", "keywords": ["x1"]}`}}
	g, _ := newTestGateway(gen)

	res, err := g.Summarize(context.Background(), article, Options{})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if gen.calls != 2 || res.Summary != "ikinci deneme" {
		t.Fatalf("expected success on second attempt, calls=%d summary=%q", gen.calls, res.Summary)
	}
}

func TestSummarizeRejectsEmptyText(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(&fakeGenerator{})
	for _, in := range []string{"", "   \n\t"} {
		if _, err := g.Summarize(context.Background(), in, Options{}); !errors.Is(err, ErrEmptyText) {
			t.Fatalf("Summarize(%q): expected ErrEmptyText, got %v", in, err)
		}
	}
}

func TestSummarizeTotalWithoutModel(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(nil)
	inputs := []string{"short", "!!!", "12345 67890", article, strings.Repeat("kelime ", 20000)}
	for _, in := range inputs {
		res, err := g.Summarize(context.Background(), in, Options{})
		if err != nil {
			t.Fatalf("Summarize(%.20q): %v", in, err)
		}
		checkResult(t, res)
	}
}

func TestSummarizeTruncatesLongInput(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{responses: []string{`{"summary": "ok", "keywords": ["k"]}`}}
	g, _ := newTestGateway(gen)

	long := strings.Repeat("a", MaxInputLength+1000)
	if _, err := g.Summarize(context.Background(), long, Options{}); err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if strings.Contains(gen.prompts[0], strings.Repeat("a", MaxInputLength+1)) {
		t.Fatalf("expected input to be truncated to %d runes", MaxInputLength)
	}
}

func TestPromptReflectsOptions(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{responses: []string{`{"summary": "ok", "keywords": ["k"]}`}}
	g, _ := newTestGateway(gen)

	_, err := g.Summarize(context.Background(), article, Options{
		Length:           LengthLong,
		Style:            StyleTechnical,
		Language:         "English",
		IncludeKeyQuotes: true,
	})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	prompt := gen.prompts[0]
	for _, want := range []string{
		"5-7 sentences with more detail",
		"in English",
		"Use technical terminology and precise language",
		"3. Key quotes from the text",
		`"quotes": ["quote1", "quote2"]`,
		article,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestPromptDefaults(t *testing.T) {
	t.Parallel()

	prompt := buildPrompt("text", Options{Length: "huge", Style: "poetic"}.withDefaults())
	for _, want := range []string{"3-4 sentences", "in Turkish", "Use formal, professional language"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "quotes") {
		t.Errorf("prompt should not ask for quotes by default")
	}
}

func TestTestConnection(t *testing.T) {
	t.Parallel()

	ok, _ := newTestGateway(&fakeGenerator{responses: []string{`{"summary": "ok", "keywords": ["k"]}`}})
	if st := ok.TestConnection(context.Background()); st.Status != "success" {
		t.Fatalf("expected success, got %+v", st)
	}

	boom := errors.New("boom")
	failing, _ := newTestGateway(&fakeGenerator{errs: []error{boom, boom, boom}})
	if st := failing.TestConnection(context.Background()); st.Status != "error" {
		t.Fatalf("expected error status, got %+v", st)
	}

	none, _ := newTestGateway(nil)
	if st := none.TestConnection(context.Background()); st.Status != "error" {
		t.Fatalf("expected error status without a model, got %+v", st)
	}
}
