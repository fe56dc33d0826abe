package score

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"aidigest/internal/item"
	"aidigest/internal/llm"
)

// CacheMaxAge bounds how old a cached agent score may be and still
// skip the LLM call.
const CacheMaxAge = 24 * time.Hour

// Cache looks up and stores agent scores keyed by item hash + model.
type Cache interface {
	GetScore(itemHash, model string) (s item.Score, storedAt time.Time, ok bool, err error)
	PutScore(itemHash, model string, s item.Score) error
}

// agentSchema constrains the LLM's scoring response.
var agentSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"relevance": {"type": "integer", "minimum": 0, "maximum": 10},
		"quality": {"type": "integer", "minimum": 0, "maximum": 10},
		"novelty": {"type": "integer", "minimum": 0, "maximum": 10},
		"topic_tags": {"type": "array", "items": {"type": "string"}},
		"format_tags": {"type": "array", "items": {"type": "string"}},
		"tags": {"type": "array", "items": {"type": "string"}},
		"reason": {"type": "string"}
	},
	"required": ["relevance", "quality", "novelty", "topic_tags", "format_tags", "tags", "reason"],
	"additionalProperties": false
}`)

const agentSystemPrompt = `You score one content item for a personal AI-news digest.
Rate relevance (to applied AI engineering), quality and novelty from 0 to 10.
Pick topic_tags and format_tags only from the allowed vocabulary given by the user.
Keep the reason to one sentence.`

type agentResponse struct {
	Relevance  int      `json:"relevance"`
	Quality    int      `json:"quality"`
	Novelty    int      `json:"novelty"`
	TopicTags  []string `json:"topic_tags"`
	FormatTags []string `json:"format_tags"`
	Tags       []string `json:"tags"`
	Reason     string   `json:"reason"`
}

// AgentScorer scores items through the LLM, with a per-item cache and
// retry on transient failures.
type AgentScorer struct {
	Client       *llm.Client
	Budget       *llm.Budget
	Cache        Cache
	MaxTextChars int
	Retries      int
}

// Score returns the agent score for one item. The second return value
// reports whether a fresh cache entry was used (no LLM call).
func (a *AgentScorer) Score(ctx context.Context, it item.Item) (item.Score, bool, error) {
	if a.Cache != nil {
		if s, storedAt, ok, err := a.Cache.GetScore(it.Hash, a.Client.Model); err == nil && ok {
			if time.Since(storedAt) <= CacheMaxAge {
				s.ItemID = it.ID
				return s, true, nil
			}
		}
	}

	maxChars := a.MaxTextChars
	attempts := a.Retries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if !a.Budget.Take() {
			return item.Score{}, false, llm.ErrBudgetExhausted
		}
		s, err := a.call(ctx, it, maxChars)
		if err == nil {
			if a.Cache != nil {
				// Cache write failures only cost us a future call.
				_ = a.Cache.PutScore(it.Hash, a.Client.Model, s)
			}
			return s, false, nil
		}
		lastErr = err
		if !llm.IsRetryable(err) {
			break
		}
		// Retry with half the text in case length was the problem.
		maxChars /= 2
	}
	return item.Score{}, false, lastErr
}

func (a *AgentScorer) call(ctx context.Context, it item.Item, maxChars int) (item.Score, error) {
	text := it.RawText
	if len(text) > maxChars {
		text = text[:maxChars]
	}
	user := fmt.Sprintf(
		"Title: %s\nURL: %s\nSource: %s\nType: %s\n\nAllowed topic tags: %s\nAllowed format tags: %s\n\nText:\n%s",
		it.Title, it.URL, it.Source, it.Type,
		vocabList(TopicVocab), vocabList(FormatVocab), text,
	)

	var resp agentResponse
	err := a.Client.CallJSON(ctx, []llm.Message{
		{Role: "system", Text: agentSystemPrompt},
		{Role: "user", Text: user},
	}, "item_score", agentSchema, &resp)
	if err != nil {
		return item.Score{}, err
	}

	// Rescale the 0-10 sub-scores to the rules-compatible ranges so
	// selection behaves the same regardless of the provider.
	s := item.Score{
		ItemID:     it.ID,
		Relevance:  clamp10(resp.Relevance) * 6,
		Quality:    clamp10(resp.Quality) * 3,
		Novelty:    clamp10(resp.Novelty),
		Reason:     resp.Reason,
		TopicTags:  filterVocab(resp.TopicTags, TopicVocab),
		FormatTags: filterVocab(resp.FormatTags, FormatVocab),
		Tags:       dedupeTags(resp.Tags),
		Provider:   item.ProviderAgent,
	}
	s.Clamp()
	return s, nil
}

func clamp10(v int) int {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}

func vocabList(vocab map[string]bool) string {
	out := make([]string, 0, len(vocab))
	for t := range vocab {
		out = append(out, t)
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}

// filterVocab lower-cases tags, drops out-of-vocabulary entries and
// deduplicates in insertion order, keeping at most five.
func filterVocab(tags []string, vocab map[string]bool) []string {
	var out []string
	seen := make(map[string]bool)
	for _, t := range tags {
		t = normalizeTag(t)
		if !vocab[t] || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if len(out) == 5 {
			break
		}
	}
	return out
}

func dedupeTags(tags []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, t := range tags {
		t = normalizeTag(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if len(out) == 5 {
			break
		}
	}
	return out
}

func normalizeTag(t string) string {
	out := make([]byte, 0, len(t))
	for i := 0; i < len(t); i++ {
		c := t[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c == ' ' {
			c = '-'
		}
		out = append(out, c)
	}
	return string(out)
}
