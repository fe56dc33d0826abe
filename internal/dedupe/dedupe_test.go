package dedupe

import (
	"testing"

	"aidigest/internal/item"
)

func TestExactKeepsFirstOccurrence(t *testing.T) {
	items := []item.Item{
		item.New("https://a.example/post", "First", "s1", item.TypeArticle),
		item.New("https://b.example/post", "Other", "s2", item.TypeArticle),
		item.New("https://a.example/post", "Second copy", "s3", item.TypeArticle),
	}
	out := Exact(items)
	if len(out) != 2 {
		t.Fatalf("got %d items, want 2", len(out))
	}
	if out[0].Title != "First" {
		t.Errorf("first occurrence should win, got %q", out[0].Title)
	}
}

func TestExactFallsBackToHash(t *testing.T) {
	items := []item.Item{
		item.New("", "Same title", "s1", item.TypeXPost),
		item.New("", "Same title", "s2", item.TypeXPost),
	}
	if out := Exact(items); len(out) != 1 {
		t.Errorf("got %d items, want 1", len(out))
	}
}

func TestClusterMergesNearDuplicateTitles(t *testing.T) {
	a := item.New("https://a.example/1", "OpenAI releases new GPT model for agents", "s1", item.TypeArticle)
	a.RawText = "short"
	b := item.New("https://b.example/2", "OpenAI releases new GPT model for agents today", "s2", item.TypeArticle)
	b.RawText = "a much longer body with actual detail in it"
	c := item.New("https://c.example/3", "Completely unrelated database story", "s3", item.TypeArticle)

	out := Cluster([]item.Item{a, b, c})
	if len(out) != 2 {
		t.Fatalf("got %d items, want 2", len(out))
	}
	if out[0].URL != b.URL {
		t.Errorf("longest raw text should represent the cluster, got %q", out[0].URL)
	}
	if out[1].URL != c.URL {
		t.Errorf("cluster order should follow first appearance")
	}
}

func TestClusterKeepsDistinctTitlesApart(t *testing.T) {
	items := []item.Item{
		item.New("https://a.example/1", "Inference serving at scale", "s1", item.TypeArticle),
		item.New("https://b.example/2", "A survey of RAG evaluation", "s2", item.TypeArticle),
	}
	if out := Cluster(items); len(out) != 2 {
		t.Errorf("distinct titles were merged")
	}
}

func TestDedupeRunsBothPhases(t *testing.T) {
	a := item.New("https://a.example/1", "Big model release announced", "s1", item.TypeArticle)
	dup := item.New("https://a.example/1", "Big model release announced", "s2", item.TypeArticle)
	near := item.New("https://b.example/2", "Big model release announced!", "s3", item.TypeArticle)

	if out := Dedupe([]item.Item{a, dup, near}); len(out) != 1 {
		t.Errorf("got %d items, want 1", len(out))
	}
}
