package queue

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"newsbrief/aggregator/internal/database"
	"newsbrief/aggregator/internal/models"
	"newsbrief/aggregator/internal/summarizer"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewDB(database.NewConfig(filepath.Join(t.TempDir(), "queue.db")))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestQueue(t *testing.T) (*Queue, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)}
	q := New(newTestDB(t), JobOptions{}, zerolog.Nop())
	q.now = c.Now
	return q, c
}

func TestProcessNextCompletesJob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q, _ := newTestQueue(t)

	id, err := q.Enqueue(ctx, 42, "article content")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	var got Payload
	w := NewWorker(q, func(_ context.Context, p Payload) error {
		got = p
		return nil
	}, WorkerConfig{}, zerolog.Nop())

	processed, err := w.ProcessNext(ctx)
	if err != nil || !processed {
		t.Fatalf("ProcessNext: processed=%v err=%v", processed, err)
	}
	if got.ArticleID != 42 || got.Content != "article content" {
		t.Fatalf("unexpected payload %+v", got)
	}

	job, err := q.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Status != models.JobStatusCompleted || job.Attempts != 1 || !job.FinishedAt.Valid {
		t.Fatalf("unexpected job state %+v", job)
	}

	processed, err = w.ProcessNext(ctx)
	if err != nil || processed {
		t.Fatalf("expected empty queue, processed=%v err=%v", processed, err)
	}
}

func TestFailedJobRetriesWithBackoff(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q, c := newTestQueue(t)

	id, err := q.Enqueue(ctx, 1, "content")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	calls := 0
	w := NewWorker(q, func(context.Context, Payload) error {
		calls++
		return errors.New("store unavailable")
	}, WorkerConfig{}, zerolog.Nop())

	if _, err := w.ProcessNext(ctx); err != nil {
		t.Fatalf("ProcessNext #1: %v", err)
	}
	job, _ := q.Get(ctx, id)
	if job.Status != models.JobStatusWaiting || job.Attempts != 1 {
		t.Fatalf("expected waiting after first failure, got %+v", job)
	}
	if !job.RunAt.Equal(c.Now().Add(2 * time.Second)) {
		t.Fatalf("expected retry in 2s, run_at=%v", job.RunAt)
	}

	// not due yet
	if processed, _ := w.ProcessNext(ctx); processed {
		t.Fatalf("job should not run before its backoff elapsed")
	}

	c.Advance(2 * time.Second)
	if _, err := w.ProcessNext(ctx); err != nil {
		t.Fatalf("ProcessNext #2: %v", err)
	}
	job, _ = q.Get(ctx, id)
	if !job.RunAt.Equal(c.Now().Add(4 * time.Second)) {
		t.Fatalf("expected retry in 4s, run_at=%v", job.RunAt)
	}

	c.Advance(4 * time.Second)
	if _, err := w.ProcessNext(ctx); err != nil {
		t.Fatalf("ProcessNext #3: %v", err)
	}
	job, _ = q.Get(ctx, id)
	if job.Status != models.JobStatusFailed || job.Attempts != 3 {
		t.Fatalf("expected failed after 3 attempts, got %+v", job)
	}
	if !job.LastError.Valid || job.LastError.String != "store unavailable" {
		t.Fatalf("unexpected last error %+v", job.LastError)
	}
	if calls != 3 {
		t.Fatalf("expected 3 handler calls, got %d", calls)
	}
}

func TestPermanentErrorSkipsRetries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q, _ := newTestQueue(t)

	id, _ := q.Enqueue(ctx, 1, "content")
	w := NewWorker(q, func(context.Context, Payload) error {
		return Permanent(errors.New("bad input"))
	}, WorkerConfig{}, zerolog.Nop())

	if _, err := w.ProcessNext(ctx); err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}
	job, _ := q.Get(ctx, id)
	if job.Status != models.JobStatusFailed || job.Attempts != 1 {
		t.Fatalf("expected immediate failure, got %+v", job)
	}
}

func TestHistoryIsTrimmed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q, c := newTestQueue(t)

	ok := NewWorker(q, func(context.Context, Payload) error { return nil }, WorkerConfig{}, zerolog.Nop())
	for i := 0; i < 12; i++ {
		if _, err := q.Enqueue(ctx, int64(i+1), "content"); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		if _, err := ok.ProcessNext(ctx); err != nil {
			t.Fatalf("ProcessNext: %v", err)
		}
		c.Advance(time.Second)
	}

	bad := NewWorker(q, func(context.Context, Payload) error { return Permanent(errors.New("x")) }, WorkerConfig{}, zerolog.Nop())
	for i := 0; i < 7; i++ {
		if _, err := q.Enqueue(ctx, int64(100+i), "content"); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		if _, err := bad.ProcessNext(ctx); err != nil {
			t.Fatalf("ProcessNext: %v", err)
		}
		c.Advance(time.Second)
	}

	st := q.Stats(ctx)
	if st.Completed != 10 || st.Failed != 5 || st.Status != "connected" {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestStatsDisconnected(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q, _ := newTestQueue(t)

	if _, err := q.Enqueue(ctx, 1, "content"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if st := q.Stats(ctx); st.Waiting != 1 || st.Status != "connected" {
		t.Fatalf("unexpected stats %+v", st)
	}

	q.db.Close()
	st := q.Stats(ctx)
	if st.Status != "disconnected" || st.Error == "" || st.Waiting != 0 {
		t.Fatalf("expected disconnected stats, got %+v", st)
	}
}

func TestRequeueStale(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q, c := newTestQueue(t)

	id, _ := q.Enqueue(ctx, 1, "content")
	if job, err := q.claim(ctx); err != nil || job == nil {
		t.Fatalf("claim: job=%v err=%v", job, err)
	}

	// a second process starting now must not steal the running job
	n, err := q.RequeueStale(ctx)
	if err != nil || n != 0 {
		t.Fatalf("RequeueStale on fresh job: n=%d err=%v", n, err)
	}
	if job, _ := q.Get(ctx, id); job.Status != models.JobStatusActive {
		t.Fatalf("expected active, got %s", job.Status)
	}

	c.Advance(DefaultJobOptions.StaleAfter)
	n, err = q.RequeueStale(ctx)
	if err != nil || n != 1 {
		t.Fatalf("RequeueStale: n=%d err=%v", n, err)
	}
	job, _ := q.Get(ctx, id)
	if job.Status != models.JobStatusWaiting {
		t.Fatalf("expected waiting, got %s", job.Status)
	}
}

func TestRunConsumesEnqueuedJobs(t *testing.T) {
	t.Parallel()
	q := New(newTestDB(t), JobOptions{}, zerolog.Nop())

	done := make(chan int64, 2)
	w := NewWorker(q, func(_ context.Context, p Payload) error {
		done <- p.ArticleID
		return nil
	}, WorkerConfig{PollInterval: 20 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- w.Run(ctx) }()

	for _, id := range []int64{7, 8} {
		if _, err := q.Enqueue(ctx, id, "content"); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	seen := map[int64]bool{}
	for len(seen) < 2 {
		select {
		case id := <-done:
			seen[id] = true
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for jobs, seen=%v", seen)
		}
	}

	cancel()
	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("worker did not stop")
	}
}

type fakeSummarizer struct {
	res summarizer.Result
	err error
}

func (f fakeSummarizer) Summarize(context.Context, string, summarizer.Options) (summarizer.Result, error) {
	return f.res, f.err
}

type fakeSummaries struct {
	created []*models.Summary
	err     error
}

func (f *fakeSummaries) Create(_ context.Context, s *models.Summary) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.created = append(f.created, s)
	return true, nil
}

func TestSummarizeHandler(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := &fakeSummaries{}
	h := SummarizeHandler(fakeSummarizer{res: summarizer.Result{Summary: "özet", Keywords: []string{"a", "b"}}}, store, zerolog.Nop())
	if err := h(ctx, Payload{ArticleID: 5, Content: "content"}); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(store.created) != 1 || store.created[0].ArticleID != 5 || store.created[0].Text != "özet" {
		t.Fatalf("unexpected stored summaries %+v", store.created)
	}

	failing := SummarizeHandler(fakeSummarizer{res: summarizer.Result{Summary: "s", Keywords: []string{"k"}}}, &fakeSummaries{err: errors.New("db down")}, zerolog.Nop())
	if err := failing(ctx, Payload{ArticleID: 5, Content: "content"}); err == nil || IsPermanent(err) {
		t.Fatalf("expected retryable store error, got %v", err)
	}

	empty := SummarizeHandler(fakeSummarizer{err: summarizer.ErrEmptyText}, store, zerolog.Nop())
	if err := empty(ctx, Payload{ArticleID: 5}); !IsPermanent(err) || !errors.Is(err, summarizer.ErrEmptyText) {
		t.Fatalf("expected permanent empty-text error, got %v", err)
	}
}
