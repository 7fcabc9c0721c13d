package importsources

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"newsbrief/aggregator/internal/database"
	"newsbrief/aggregator/internal/storage"
)

func newStore(t *testing.T) *storage.SourceStore {
	t.Helper()
	db, err := database.NewDB(database.NewConfig(filepath.Join(t.TempDir(), "test.db")))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return storage.NewSourceStore(db)
}

const sampleCSV = `Name,Website_URL,Feed_URL,is_default
TechCrunch,https://techcrunch.com,https://techcrunch.com/feed/,true
BBC News,https://www.bbc.com/news,http://feeds.bbci.co.uk/news/rss.xml,
TechCrunch,https://techcrunch.com,https://techcrunch.com/feed/,true
No Feed,https://nofeed.example,,true

Hidden,https://hidden.example,https://hidden.example/rss,false
`

func TestImport(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStore(t)
	imp := NewImporter(store, nil, zerolog.Nop())

	res, err := imp.Import(ctx, strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Total != 5 || res.Imported != 3 || res.Duplicates != 1 || len(res.Errors) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}

	defaults, err := store.ListForUser(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(defaults) != 2 {
		t.Fatalf("expected 2 default sources, got %d", len(defaults))
	}
}

func TestImportMissingColumn(t *testing.T) {
	t.Parallel()
	imp := NewImporter(newStore(t), nil, zerolog.Nop())
	if _, err := imp.Import(context.Background(), strings.NewReader("name,website_url\nA,https://a.example\n")); err == nil {
		t.Fatalf("expected missing feed_url column to fail")
	}
}

func TestImportFileFromURL(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sources.csv" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	imp := NewImporter(newStore(t), srv.Client(), zerolog.Nop())
	res, err := imp.ImportFile(context.Background(), srv.URL+"/sources.csv")
	if err != nil || res.Imported != 3 {
		t.Fatalf("ImportFile: res=%+v err=%v", res, err)
	}
	if _, err := imp.ImportFile(context.Background(), srv.URL+"/missing.csv"); err == nil {
		t.Fatalf("expected 404 to fail")
	}
}

func TestExportRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStore(t)
	if _, err := NewImporter(store, nil, zerolog.Nop()).Import(ctx, strings.NewReader(sampleCSV)); err != nil {
		t.Fatal(err)
	}
	all, err := store.ListAll(ctx)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := Export(&buf, all); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "name,website_url,feed_url,is_default,is_active\n") {
		t.Fatalf("unexpected header in %q", buf.String())
	}

	other := newStore(t)
	res, err := NewImporter(other, nil, zerolog.Nop()).Import(ctx, &buf)
	if err != nil || res.Imported != len(all) {
		t.Fatalf("re-import: res=%+v err=%v", res, err)
	}
}
