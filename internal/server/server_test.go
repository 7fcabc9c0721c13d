package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"newsbrief/aggregator/internal/database"
	"newsbrief/aggregator/internal/models"
	"newsbrief/aggregator/internal/process"
	"newsbrief/aggregator/internal/queue"
	"newsbrief/aggregator/internal/server/api"
	"newsbrief/aggregator/internal/sources"
	"newsbrief/aggregator/internal/storage"
	"newsbrief/aggregator/internal/summarizer"
)

type okValidator struct{}

func (okValidator) Validate(context.Context, string) error { return nil }

type fakePipeline struct{}

func (fakePipeline) TriggerFetch(context.Context) (process.FetchResult, error) {
	return process.FetchResult{Success: true, Message: "RSS fetch completed. Processed 0 new articles from 0 sources", Errors: []string{}}, nil
}

func (fakePipeline) TriggerFallback(context.Context) (process.Report, error) {
	return process.Report{Scanned: 1, Summarized: 1}, nil
}

type testEnv struct {
	db       *database.DB
	articles *storage.ArticleStore
	source   *models.Source
	srv      *httptest.Server
}

func newTestEnv(t *testing.T, apiKey string) *testEnv {
	t.Helper()
	db, err := database.NewDB(database.NewConfig(filepath.Join(t.TempDir(), "test.db")))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := zerolog.Nop()
	articles := storage.NewArticleStore(db)
	summaries := storage.NewSummaryStore(db)
	sourceStore := storage.NewSourceStore(db)
	gateway := summarizer.NewGateway(nil, summarizer.Config{}, logger)
	svc := sources.NewService(sourceStore, okValidator{}, nil, logger)
	if _, err := svc.SeedDefaults(context.Background()); err != nil {
		t.Fatal(err)
	}
	defaults, err := sourceStore.ListActive(context.Background())
	if err != nil || len(defaults) == 0 {
		t.Fatalf("list sources: %v", err)
	}

	deps := api.Deps{
		Articles:     articles,
		Summaries:    summaries,
		Direct:       process.NewFallbackProcessor(articles, summaries, gateway, 0, logger),
		Pipeline:     fakePipeline{},
		Sources:      svc,
		SourceLister: sourceStore,
		Summarizer:   gateway,
		Queue:        queue.New(db, queue.DefaultJobOptions, logger),
	}
	srv := httptest.NewServer(NewHandler(deps, db, logger, apiKey))
	t.Cleanup(srv.Close)
	return &testEnv{db: db, articles: articles, source: &defaults[0], srv: srv}
}

func (e *testEnv) do(t *testing.T, method, path, body string, header map[string]string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := e.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func (e *testEnv) addArticle(t *testing.T, url, content string, categories []string, published time.Time, summarized bool) *models.Article {
	t.Helper()
	a := models.NewArticle()
	a.Title = "Title " + url
	a.URL = url
	a.SourceID = sql.NullInt64{Int64: e.source.ID, Valid: true}
	a.Categories = categories
	a.OriginalContent = content
	a.PublishedAt = published.UTC()
	if ok, err := e.articles.InsertIfAbsent(context.Background(), a); err != nil || !ok {
		t.Fatalf("insert article: %v %v", ok, err)
	}
	if summarized {
		if _, err := e.articles.MarkSummarized(context.Background(), a.ID); err != nil {
			t.Fatal(err)
		}
	}
	return a
}

func TestHealth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "secret")

	resp, body := env.do(t, http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		t.Fatalf("health: %d %q", resp.StatusCode, body)
	}
	resp, _ = env.do(t, http.MethodGet, "/health/ready", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ready: %d", resp.StatusCode)
	}

	env.db.Close()
	resp, _ = env.do(t, http.MethodGet, "/health/ready", "", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("ready with closed db: %d", resp.StatusCode)
	}
}

func TestAPIKey(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "secret")

	if resp, _ := env.do(t, http.MethodGet, "/v1/sources", "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing key: %d", resp.StatusCode)
	}
	if resp, _ := env.do(t, http.MethodGet, "/v1/sources", "", map[string]string{"X-API-Key": "wrong"}); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong key: %d", resp.StatusCode)
	}
	if resp, _ := env.do(t, http.MethodGet, "/v1/sources", "", map[string]string{"X-API-Key": "secret"}); resp.StatusCode != http.StatusOK {
		t.Fatalf("valid key: %d", resp.StatusCode)
	}
}

func TestListArticlesPagination(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "")
	now := time.Now().UTC().Truncate(time.Second)
	newest := env.addArticle(t, "https://news.example/1", "c", []string{"Tech"}, now, true)
	env.addArticle(t, "https://news.example/2", "c", []string{"tech"}, now.Add(-time.Hour), true)
	oldest := env.addArticle(t, "https://news.example/3", "c", []string{"TECH"}, now.Add(-2*time.Hour), true)
	env.addArticle(t, "https://news.example/4", "c", []string{"tech"}, now, false)
	env.addArticle(t, "https://news.example/5", "c", []string{"sports"}, now, true)

	resp, body := env.do(t, http.MethodGet, "/v1/articles?interests=tech&limit=2", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %s", resp.StatusCode, body)
	}
	var page api.ArticleList
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 2 || page.Items[0].ID != newest.ID || page.NextCursor == nil {
		t.Fatalf("unexpected first page %+v", page)
	}

	resp, body = env.do(t, http.MethodGet, "/v1/articles?interests=tech&limit=2&cursor="+*page.NextCursor, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second page: %d %s", resp.StatusCode, body)
	}
	page = api.ArticleList{}
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != oldest.ID || page.NextCursor != nil {
		t.Fatalf("unexpected second page %+v", page)
	}

	if resp, _ := env.do(t, http.MethodGet, "/v1/articles?interests=tech&cursor=bogus", "", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad cursor: %d", resp.StatusCode)
	}
	if resp, _ := env.do(t, http.MethodGet, "/v1/articles?limit=1000", "", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit: %d", resp.StatusCode)
	}
}

func TestArticleSummaryFlow(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "")
	content := "Yapay zeka teknolojisi hızla gelişiyor. Şirketler yapay zeka yatırımlarını artırıyor. Uzmanlar yapay zeka etkisini tartışıyor."
	a := env.addArticle(t, "https://news.example/ai", content, nil, time.Now(), false)

	resp, body := env.do(t, http.MethodGet, "/v1/articles/unsummarized", "", nil)
	var pending []api.Article
	if err := json.Unmarshal(body, &pending); err != nil || resp.StatusCode != http.StatusOK || len(pending) != 1 {
		t.Fatalf("unsummarized: %d %s", resp.StatusCode, body)
	}

	resp, body = env.do(t, http.MethodPost, "/v1/articles/"+itoa(a.ID)+"/summary", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create summary: %d %s", resp.StatusCode, body)
	}
	var s models.Summary
	if err := json.Unmarshal(body, &s); err != nil {
		t.Fatal(err)
	}
	if s.ArticleID != a.ID || s.Text == "" || len(s.Keywords) == 0 {
		t.Fatalf("unexpected summary %+v", s)
	}

	resp, body = env.do(t, http.MethodGet, "/v1/summaries/"+itoa(s.ID), "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("read summary: %d", resp.StatusCode)
	}
	var read models.Summary
	if err := json.Unmarshal(body, &read); err != nil || read.ReadCount != 1 {
		t.Fatalf("read count not incremented: %s", body)
	}

	resp, _ = env.do(t, http.MethodGet, "/v1/articles/"+itoa(a.ID)+"/summary", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("summary by article: %d", resp.StatusCode)
	}
	if resp, _ := env.do(t, http.MethodPost, "/v1/articles/99999/summary", "", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing article summary: %d", resp.StatusCode)
	}
	if resp, _ := env.do(t, http.MethodGet, "/v1/summaries/99999", "", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing summary: %d", resp.StatusCode)
	}

	resp, body = env.do(t, http.MethodGet, "/v1/summaries/stats", "", nil)
	var st storage.Stats
	if err := json.Unmarshal(body, &st); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("stats: %d %s", resp.StatusCode, body)
	}
	if st.TotalSummaries != 1 || st.TotalReads != 1 || st.TodaySummaries != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestMarkSummarized(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "")
	a := env.addArticle(t, "https://news.example/m", "content", nil, time.Now(), false)

	for i := 0; i < 2; i++ {
		resp, data := env.do(t, http.MethodPost, "/v1/articles/"+itoa(a.ID)+"/summarized", "", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("mark %d: %d %s", i, resp.StatusCode, data)
		}
		var got api.Article
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.ID != a.ID || !got.IsSummarized {
			t.Fatalf("mark %d: unexpected article %+v", i, got)
		}
		if got.SourceID == nil || *got.SourceID != env.source.ID {
			t.Fatalf("mark %d: unexpected source %v", i, got.SourceID)
		}
	}
	if resp, _ := env.do(t, http.MethodPost, "/v1/articles/99999/summarized", "", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("mark unknown: %d", resp.StatusCode)
	}
	if resp, _ := env.do(t, http.MethodPost, "/v1/articles/abc/summarized", "", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("mark invalid id: %d", resp.StatusCode)
	}
}

func TestSummarizeEndpoint(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "")

	resp, _ := env.do(t, http.MethodPost, "/v1/ai/summarize", `{"text":"   "}`, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty text: %d", resp.StatusCode)
	}

	body := `{"text":"Borsa istanbul bugün yükselişle açıldı. Dolar kuru ise yatay seyretti.","options":{"length":"short","style":"casual"}}`
	resp, data := env.do(t, http.MethodPost, "/v1/ai/summarize", body, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("summarize: %d %s", resp.StatusCode, data)
	}
	var res summarizer.Result
	if err := json.Unmarshal(data, &res); err != nil || res.Summary == "" {
		t.Fatalf("unexpected result %s", data)
	}

	resp, data = env.do(t, http.MethodGet, "/v1/ai/test", "", nil)
	var st summarizer.Status
	if err := json.Unmarshal(data, &st); err != nil || resp.StatusCode != http.StatusOK || st.Status != "error" {
		t.Fatalf("test connection without model: %d %s", resp.StatusCode, data)
	}
}

func TestSourcesEndpoints(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "")
	user := map[string]string{api.UserIDHeader: "user-1"}

	body := `{"name":"My Blog","websiteUrl":"https://blog.example","feedUrl":"https://blog.example/rss"}`
	if resp, _ := env.do(t, http.MethodPost, "/v1/sources", body, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("add without user: %d", resp.StatusCode)
	}
	resp, data := env.do(t, http.MethodPost, "/v1/sources", body, user)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add: %d %s", resp.StatusCode, data)
	}
	var src models.Source
	if err := json.Unmarshal(data, &src); err != nil {
		t.Fatal(err)
	}
	if resp, _ := env.do(t, http.MethodPost, "/v1/sources", body, user); resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate add: %d", resp.StatusCode)
	}

	resp, data = env.do(t, http.MethodGet, "/v1/sources", "", user)
	var list []models.Source
	if err := json.Unmarshal(data, &list); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %s", resp.StatusCode, data)
	}
	if len(list) != len(sources.Defaults)+1 {
		t.Fatalf("expected defaults plus one, got %d", len(list))
	}

	resp, data = env.do(t, http.MethodPatch, "/v1/sources/"+itoa(src.ID), `{"name":"Renamed"}`, user)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), "Renamed") {
		t.Fatalf("update: %d %s", resp.StatusCode, data)
	}

	resp, data = env.do(t, http.MethodGet, "/v1/sources/export", "", nil)
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(string(data), "name,website_url,feed_url,is_default,is_active\n") {
		t.Fatalf("export: %d %q", resp.StatusCode, data)
	}
	if resp.Header.Get("Content-Type") != "text/csv" {
		t.Fatalf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	if resp, _ := env.do(t, http.MethodDelete, "/v1/sources/"+itoa(src.ID), "", map[string]string{api.UserIDHeader: "user-2"}); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign delete: %d", resp.StatusCode)
	}
	if resp, _ := env.do(t, http.MethodDelete, "/v1/sources/"+itoa(src.ID), "", user); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: %d", resp.StatusCode)
	}
}

func TestPipelineAndQueueEndpoints(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, "")

	resp, data := env.do(t, http.MethodPost, "/v1/articles/fetch", "", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), `"success":true`) {
		t.Fatalf("fetch: %d %s", resp.StatusCode, data)
	}
	resp, data = env.do(t, http.MethodPost, "/v1/summaries/process", "", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), `"summarized":1`) {
		t.Fatalf("process: %d %s", resp.StatusCode, data)
	}
	resp, data = env.do(t, http.MethodGet, "/v1/queue/stats", "", nil)
	var st queue.Stats
	if err := json.Unmarshal(data, &st); err != nil || resp.StatusCode != http.StatusOK || st.Status != "connected" {
		t.Fatalf("queue stats: %d %s", resp.StatusCode, data)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
