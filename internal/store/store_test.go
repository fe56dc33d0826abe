package store

import (
	"path/filepath"
	"testing"
	"time"

	"aidigest/internal/item"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleItems() []item.Item {
	pub := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	a := item.New("https://a.example/1", "Post A", "rss:https://a.example/feed", item.TypeArticle)
	a.RawText = "body a"
	a.PublishedAt = &pub
	b := item.New("https://b.example/2", "Post B", "rss:https://b.example/feed", item.TypeVideo)
	b.RawText = "body b"
	return []item.Item{a, b}
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	s1.Close()
	// Second open runs schema and migrations against an existing file.
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	s2.Close()
}

func TestUpsertItemsRefreshes(t *testing.T) {
	s := testStore(t)
	items := sampleItems()
	if err := s.UpsertItems(items); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	items[0].Title = "Post A updated"
	items[0].RawText = "new body"
	if err := s.UpsertItems(items[:1]); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	var title string
	err := s.readDB.QueryRow(`SELECT title FROM items WHERE id = ?`, items[0].ID).Scan(&title)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if title != "Post A updated" {
		t.Errorf("title = %q", title)
	}
}

func TestRunLifecycle(t *testing.T) {
	s := testStore(t)
	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	winStart := started.Add(-24 * time.Hour)

	if err := s.StartRun("abc123", started, winStart, started); err != nil {
		t.Fatalf("start run: %v", err)
	}
	run, err := s.GetRun("abc123")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != "running" {
		t.Errorf("status = %q", run.Status)
	}

	srcErrs := []string{"rss:https://dead.example/feed: timeout"}
	sumErrs := []string{"item1: rate_limit"}
	if err := s.FinishRun("abc123", "partial", srcErrs, sumErrs); err != nil {
		t.Fatalf("finish run: %v", err)
	}
	run, err = s.GetRun("abc123")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != "partial" {
		t.Errorf("status = %q", run.Status)
	}
	if len(run.SourceErrors) != 1 || run.SourceErrors[0] != srcErrs[0] {
		t.Errorf("source errors = %v", run.SourceErrors)
	}
	if len(run.SummaryErrors) != 1 {
		t.Errorf("summary errors = %v", run.SummaryErrors)
	}
}

func TestLastCompletedWindowEnd(t *testing.T) {
	s := testStore(t)
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	end, err := s.LastCompletedWindowEnd()
	if err != nil {
		t.Fatalf("empty query: %v", err)
	}
	if !end.IsZero() {
		t.Errorf("expected zero time with no runs")
	}

	s.StartRun("r1", base, base.Add(-24*time.Hour), base)
	s.FinishRun("r1", "success", nil, nil)
	s.StartRun("r2", base.Add(time.Hour), base, base.Add(time.Hour))
	s.FinishRun("r2", "failed", []string{"boom"}, nil)
	s.StartRun("r3", base.Add(2*time.Hour), base, base.Add(2*time.Hour))
	s.FinishRun("r3", "partial", nil, []string{"x"})

	end, err = s.LastCompletedWindowEnd()
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	// Failed runs do not advance the window; partial ones do.
	if !end.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("end = %v, want %v", end, base.Add(2*time.Hour))
	}
}

func TestInsertScores(t *testing.T) {
	s := testStore(t)
	scores := []item.Score{
		{ItemID: "i1", Relevance: 48, Quality: 21, Novelty: 5, Reason: "good", Tags: []string{"llm"}, TopicTags: []string{"llm"}, FormatTags: []string{"news"}, Provider: item.ProviderAgent},
		{ItemID: "i2", Relevance: 12, Quality: 10, Novelty: 10, Provider: item.ProviderRules},
	}
	if err := s.InsertScores("run1", scores); err != nil {
		t.Fatalf("insert: %v", err)
	}

	var total int
	var provider string
	err := s.readDB.QueryRow(`SELECT total, provider FROM scores WHERE run_id = 'run1' AND item_id = 'i1'`).Scan(&total, &provider)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if total != 74 || provider != "agent" {
		t.Errorf("total=%d provider=%q", total, provider)
	}
}

func TestSeenSet(t *testing.T) {
	s := testStore(t)
	if err := s.AddSeen([]string{"https://a.example/1", "https://b.example/2"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	// Re-adding is a no-op.
	if err := s.AddSeen([]string{"https://a.example/1"}); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	seen, err := s.Seen()
	if err != nil {
		t.Fatalf("seen: %v", err)
	}
	if len(seen) != 2 || !seen["https://a.example/1"] {
		t.Errorf("seen = %v", seen)
	}
}
