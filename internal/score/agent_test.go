package score

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aidigest/internal/item"
	"aidigest/internal/llm"
)

// memCache is an in-memory score cache for tests.
type memCache struct {
	scores map[string]item.Score
	stored map[string]time.Time
	puts   int
}

func newMemCache() *memCache {
	return &memCache{scores: make(map[string]item.Score), stored: make(map[string]time.Time)}
}

func (m *memCache) GetScore(hash, model string) (item.Score, time.Time, bool, error) {
	s, ok := m.scores[hash+model]
	return s, m.stored[hash+model], ok, nil
}

func (m *memCache) PutScore(hash, model string, s item.Score) error {
	m.puts++
	m.scores[hash+model] = s
	m.stored[hash+model] = time.Now()
	return nil
}

func agentServer(t *testing.T, handler http.HandlerFunc) *llm.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := llm.New("key", "test-model")
	c.BaseURL = srv.URL
	return c
}

func agentJSON(t *testing.T, w http.ResponseWriter, payload string) {
	t.Helper()
	resp := map[string]any{
		"output": []map[string]any{
			{"content": []map[string]any{{"type": "output_text", "text": payload}}},
		},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		t.Fatalf("encoding response: %v", err)
	}
}

const goodAgentPayload = `{
	"relevance": 8, "quality": 7, "novelty": 5,
	"topic_tags": ["LLM", "agents", "not-in-vocab"],
	"format_tags": ["paper"],
	"tags": ["llm", "paper"],
	"reason": "solid technical writeup"
}`

func TestAgentScoreRescales(t *testing.T) {
	client := agentServer(t, func(w http.ResponseWriter, r *http.Request) {
		agentJSON(t, w, goodAgentPayload)
	})
	a := &AgentScorer{Client: client, Budget: llm.NewBudget(10), Cache: newMemCache(), MaxTextChars: 4000, Retries: 1}

	it := item.New("https://a.example/1", "Paper", "src", item.TypeArticle)
	s, cached, err := a.Score(context.Background(), it)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if cached {
		t.Errorf("first call should not be cached")
	}
	if s.Relevance != 48 || s.Quality != 21 || s.Novelty != 5 {
		t.Errorf("rescaled sub-scores = %d/%d/%d, want 48/21/5", s.Relevance, s.Quality, s.Novelty)
	}
	if s.Provider != item.ProviderAgent {
		t.Errorf("provider = %q", s.Provider)
	}
}

func TestAgentScoreFiltersVocabulary(t *testing.T) {
	client := agentServer(t, func(w http.ResponseWriter, r *http.Request) {
		agentJSON(t, w, goodAgentPayload)
	})
	a := &AgentScorer{Client: client, Budget: llm.NewBudget(10), MaxTextChars: 4000, Retries: 1}

	s, _, err := a.Score(context.Background(), item.New("https://a.example/2", "T", "src", item.TypeArticle))
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	for _, tag := range s.TopicTags {
		if !TopicVocab[tag] {
			t.Errorf("out-of-vocab tag survived: %q", tag)
		}
	}
	if len(s.TopicTags) != 2 {
		t.Errorf("topic tags = %v, want llm and agents", s.TopicTags)
	}
}

func TestAgentScoreUsesFreshCache(t *testing.T) {
	calls := 0
	client := agentServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		agentJSON(t, w, goodAgentPayload)
	})
	cache := newMemCache()
	a := &AgentScorer{Client: client, Budget: llm.NewBudget(10), Cache: cache, MaxTextChars: 4000, Retries: 1}

	it := item.New("https://a.example/3", "T", "src", item.TypeArticle)
	if _, _, err := a.Score(context.Background(), it); err != nil {
		t.Fatalf("first score: %v", err)
	}
	s, cached, err := a.Score(context.Background(), it)
	if err != nil {
		t.Fatalf("second score: %v", err)
	}
	if !cached {
		t.Errorf("second call should hit the cache")
	}
	if calls != 1 {
		t.Errorf("llm called %d times, want 1", calls)
	}
	if s.ItemID != it.ID {
		t.Errorf("cached score should carry the item id")
	}
}

func TestAgentScoreIgnoresStaleCache(t *testing.T) {
	calls := 0
	client := agentServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		agentJSON(t, w, goodAgentPayload)
	})
	cache := newMemCache()
	a := &AgentScorer{Client: client, Budget: llm.NewBudget(10), Cache: cache, MaxTextChars: 4000, Retries: 1}

	it := item.New("https://a.example/4", "T", "src", item.TypeArticle)
	cache.scores[it.Hash+"test-model"] = item.Score{Relevance: 60}
	cache.stored[it.Hash+"test-model"] = time.Now().Add(-25 * time.Hour)

	_, cached, err := a.Score(context.Background(), it)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if cached || calls != 1 {
		t.Errorf("stale cache entry should not be used (cached=%v calls=%d)", cached, calls)
	}
}

func TestAgentScoreRetriesTransientFailures(t *testing.T) {
	calls := 0
	client := agentServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		agentJSON(t, w, goodAgentPayload)
	})
	a := &AgentScorer{Client: client, Budget: llm.NewBudget(10), MaxTextChars: 4000, Retries: 1}

	_, _, err := a.Score(context.Background(), item.New("https://a.example/5", "T", "src", item.TypeArticle))
	if err != nil {
		t.Fatalf("retry did not recover: %v", err)
	}
	if calls != 2 {
		t.Errorf("llm called %d times, want 2", calls)
	}
}

func TestAgentScoreFatalErrorNoRetry(t *testing.T) {
	calls := 0
	client := agentServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	})
	a := &AgentScorer{Client: client, Budget: llm.NewBudget(10), MaxTextChars: 4000, Retries: 2}

	_, _, err := a.Score(context.Background(), item.New("https://a.example/6", "T", "src", item.TypeArticle))
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Errorf("fatal error retried: %d calls", calls)
	}
}

func TestAgentScoreBudgetExhausted(t *testing.T) {
	client := agentServer(t, func(w http.ResponseWriter, r *http.Request) {
		agentJSON(t, w, goodAgentPayload)
	})
	a := &AgentScorer{Client: client, Budget: llm.NewBudget(0), MaxTextChars: 4000, Retries: 1}

	_, _, err := a.Score(context.Background(), item.New("https://a.example/7", "T", "src", item.TypeArticle))
	if err != llm.ErrBudgetExhausted {
		t.Errorf("err = %v, want ErrBudgetExhausted", err)
	}
}
