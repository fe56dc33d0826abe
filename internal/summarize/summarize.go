// Package summarize produces short summaries for selected items:
// an LLM path when enabled, a deterministic extractive path always,
// composed so the extractive path catches failures and low-signal
// LLM output.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"aidigest/internal/item"
	"aidigest/internal/llm"
)

// LowSignalErr is the summary-error token recorded when an LLM
// summary trips the low-signal rules.
const LowSignalErr = "low_signal_summary"

// Summarizer produces a summary for one item.
type Summarizer interface {
	Summarize(ctx context.Context, it item.Item) (item.Summary, error)
}

// Extractive is the deterministic fallback summarizer.
type Extractive struct{}

var sentenceRe = regexp.MustCompile(`[.!?]\s+`)

func (Extractive) Summarize(ctx context.Context, it item.Item) (item.Summary, error) {
	text := strings.TrimSpace(it.RawText)
	if text == "" {
		text = strings.TrimSpace(it.Description)
	}
	sentences := splitSentences(text)

	s := item.Summary{Provider: item.SummaryExtractive}
	if len(sentences) > 0 {
		s.TLDR = truncateRunes(sentences[0], 280)
		n := len(sentences)
		if n > 3 {
			n = 3
		}
		s.KeyPoints = sentences[:n]
	}
	s.WhyItMatters = "Useful for tracking AI trend related to: " + truncateRunes(it.Title, 80)
	return s, nil
}

func splitSentences(text string) []string {
	if text == "" {
		return nil
	}
	parts := sentenceRe.Split(text, -1)
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// llmSchema constrains the LLM's summary response.
var llmSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"tldr": {"type": "string"},
		"key_points": {"type": "array", "items": {"type": "string"}},
		"why_it_matters": {"type": "string"}
	},
	"required": ["tldr", "key_points", "why_it_matters"],
	"additionalProperties": false
}`)

const llmSystemPrompt = `You summarize one content item for a personal AI-news digest.
Write a tldr of at most 280 characters, up to 5 short key points, and
a why_it_matters of at most 280 characters. Plain text only.`

// LLM summarizes through the responses endpoint under the shared
// request budget.
type LLM struct {
	Client       *llm.Client
	Budget       *llm.Budget
	MaxTextChars int
}

func (l *LLM) Summarize(ctx context.Context, it item.Item) (item.Summary, error) {
	if !l.Budget.Take() {
		return item.Summary{}, llm.ErrBudgetExhausted
	}
	text := it.RawText
	if l.MaxTextChars > 0 && len(text) > l.MaxTextChars {
		text = text[:l.MaxTextChars]
	}
	user := fmt.Sprintf("Title: %s\nURL: %s\nSource: %s\n\nText:\n%s", it.Title, it.URL, it.Source, text)

	var resp struct {
		TLDR         string   `json:"tldr"`
		KeyPoints    []string `json:"key_points"`
		WhyItMatters string   `json:"why_it_matters"`
	}
	err := l.Client.CallJSON(ctx, []llm.Message{
		{Role: "system", Text: llmSystemPrompt},
		{Role: "user", Text: user},
	}, "item_summary", llmSchema, &resp)
	if err != nil {
		return item.Summary{}, err
	}

	s := item.Summary{
		TLDR:         truncateRunes(resp.TLDR, 280),
		KeyPoints:    resp.KeyPoints,
		WhyItMatters: truncateRunes(resp.WhyItMatters, 280),
		Provider:     item.SummaryOpenAI,
	}
	if len(s.KeyPoints) > 5 {
		s.KeyPoints = s.KeyPoints[:5]
	}
	return s, nil
}

// Composed tries the primary summarizer and falls back to the
// secondary when the primary fails or produces a low-signal summary.
type Composed struct {
	Primary  Summarizer
	Fallback Summarizer
}

// Summarize returns the summary and, when the fallback was used, the
// reason as a non-empty string.
func (c *Composed) Summarize(ctx context.Context, it item.Item) (item.Summary, string, error) {
	s, err := c.Primary.Summarize(ctx, it)
	if err != nil {
		fb, fbErr := c.Fallback.Summarize(ctx, it)
		if fbErr != nil {
			return item.Summary{}, "", fbErr
		}
		return fb, err.Error(), nil
	}
	if LowSignal(s) {
		fb, fbErr := c.Fallback.Summarize(ctx, it)
		if fbErr != nil {
			return item.Summary{}, "", fbErr
		}
		return fb, LowSignalErr, nil
	}
	return s, "", nil
}

var urlRe = regexp.MustCompile(`https?://\S+`)

var sponsorPhrases = []string{
	"patreon", "sponsor", "support us", "check out", "sign up",
	"join now", "promo code", "dm me",
}

// LowSignal reports whether a summary looks like boilerplate or spam:
// an oversized tldr, link dumps, hashtag spam or sponsor phrasing.
func LowSignal(s item.Summary) bool {
	if len(s.TLDR) >= 600 {
		return true
	}
	combined := s.TLDR + " " + strings.Join(s.KeyPoints, " ") + " " + s.WhyItMatters
	if len(urlRe.FindAllString(combined, -1)) >= 3 {
		return true
	}
	if strings.Count(combined, "#") >= 5 {
		return true
	}
	lower := strings.ToLower(combined)
	for _, p := range sponsorPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
