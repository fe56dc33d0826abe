// Package score implements the two scoring paths: a deterministic
// rules scorer that is always available, and an optional LLM-backed
// agent scorer with retry, caching and a coverage policy.
package score

import (
	"strings"

	"aidigest/internal/config"
	"aidigest/internal/item"
)

// aiKeywords is the closed relevance vocabulary. Each hit is worth 6
// relevance points, capped at 60.
var aiKeywords = []string{
	"llm", "agents", "eval", "rag", "tooling", "inference",
	"openai", "anthropic", "model", "benchmark", "safety", "research",
}

var clickbaitWords = []string{"insane", "shocking", "secret", "10x", "unbelievable"}

// TopicVocab is the closed topic-tag vocabulary.
var TopicVocab = map[string]bool{
	"llm": true, "agents": true, "eval": true, "rag": true,
	"tooling": true, "inference": true, "research": true,
	"safety": true, "benchmark": true, "model": true,
	"open-source": true, "hardware": true,
}

// FormatVocab is the closed format-tag vocabulary.
var FormatVocab = map[string]bool{
	"news": true, "video": true, "paper": true, "release": true,
	"thread": true, "tutorial": true, "discussion": true,
}

type keywordTag struct{ keyword, tag string }

// keywordTopicTags maps content keywords to topic tags, in match
// priority order.
var keywordTopicTags = []keywordTag{
	{"llm", "llm"}, {"gpt", "llm"}, {"claude", "llm"}, {"gemini", "llm"},
	{"agent", "agents"},
	{"eval", "eval"}, {"benchmark", "benchmark"},
	{"rag", "rag"}, {"retrieval", "rag"},
	{"inference", "inference"}, {"serving", "inference"},
	{"safety", "safety"}, {"alignment", "safety"},
	{"paper", "research"}, {"research", "research"},
	{"sdk", "tooling"}, {"cli", "tooling"}, {"framework", "tooling"},
	{"model", "model"}, {"weights", "model"},
	{"open source", "open-source"},
	{"gpu", "hardware"}, {"cuda", "hardware"},
}

// keywordFormatTags maps content keywords to format tags.
var keywordFormatTags = []keywordTag{
	{"paper", "paper"}, {"arxiv", "paper"},
	{"release", "release"}, {"changelog", "release"},
	{"thread", "thread"},
	{"tutorial", "tutorial"}, {"how to", "tutorial"}, {"guide", "tutorial"},
	{"discussion", "discussion"},
}

// RulesScorer is the deterministic scoring path.
type RulesScorer struct {
	Profile *config.Profile
}

// Score computes a rules-path score for one item.
func (r *RulesScorer) Score(it item.Item) item.Score {
	text := strings.ToLower(it.Title + " " + it.RawText + " " + it.Description)

	s := item.Score{
		ItemID:   it.ID,
		Provider: item.ProviderRules,
	}

	// Relevance: AI vocabulary hits, profile topics/entities, exclusions.
	rel := 0
	var reasons []string
	for _, kw := range aiKeywords {
		if containsWord(text, kw) {
			rel += 6
		}
	}
	if rel > 60 {
		rel = 60
	}
	profileBonus := 0
	for _, t := range append(append([]string{}, r.Profile.Topics...), r.Profile.Entities...) {
		if t != "" && strings.Contains(text, strings.ToLower(t)) {
			profileBonus += 5
		}
	}
	if profileBonus > 15 {
		profileBonus = 15
	}
	rel += profileBonus
	for _, ex := range r.Profile.Exclusions {
		if ex != "" && strings.Contains(text, strings.ToLower(ex)) {
			rel -= 10
			reasons = append(reasons, "excluded topic: "+ex)
		}
	}
	s.Relevance = rel

	// Quality: trust, depth, clickbait.
	qual := 10
	if r.trustedSource(it.Source) {
		qual += 12
		reasons = append(reasons, "trusted source")
	}
	if len(it.RawText) > 500 {
		qual += 8
	}
	for _, cb := range clickbaitWords {
		if strings.Contains(text, cb) {
			qual -= 5
		}
	}
	s.Quality = qual

	// Novelty: recaps and roundups are old news.
	nov := 10
	if strings.Contains(text, "recap") || strings.Contains(text, "roundup") {
		nov -= 4
	}
	s.Novelty = nov

	s.Clamp()
	s.TopicTags = deriveTags(text, keywordTopicTags, TopicVocab)
	s.FormatTags = deriveTags(text, keywordFormatTags, FormatVocab)
	if it.Type == item.TypeVideo {
		s.FormatTags = prependUnique(s.FormatTags, "video")
	}
	if len(s.FormatTags) == 0 {
		s.FormatTags = []string{"news"}
	}
	s.Tags = append(append([]string{}, s.TopicTags...), s.FormatTags...)
	if len(s.Tags) > 5 {
		s.Tags = s.Tags[:5]
	}

	if len(reasons) == 0 {
		reasons = append(reasons, "keyword relevance")
	}
	s.Reason = strings.Join(reasons, "; ")
	return s
}

func (r *RulesScorer) trustedSource(source string) bool {
	s := strings.ToLower(source)
	for _, t := range r.Profile.TrustedSources {
		if t != "" && strings.Contains(s, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

// containsWord matches kw on rough word boundaries so that "model"
// does not match "remodeling".
func containsWord(text, kw string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], kw)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(kw)
		beforeOK := start == 0 || !isAlnum(text[start-1])
		afterOK := end == len(text) || !isAlnum(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isAlnum(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

func deriveTags(text string, pairs []keywordTag, vocab map[string]bool) []string {
	var tags []string
	seen := make(map[string]bool)
	for _, p := range pairs {
		if !strings.Contains(text, p.keyword) {
			continue
		}
		if !vocab[p.tag] || seen[p.tag] {
			continue
		}
		seen[p.tag] = true
		tags = append(tags, p.tag)
		if len(tags) == 5 {
			break
		}
	}
	return tags
}

func prependUnique(tags []string, tag string) []string {
	for i, t := range tags {
		if t == tag {
			return append([]string{tag}, append(tags[:i:i], tags[i+1:]...)...)
		}
	}
	out := append([]string{tag}, tags...)
	if len(out) > 5 {
		out = out[:5]
	}
	return out
}
