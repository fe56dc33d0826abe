// Package item defines the content types flowing through the digest
// pipeline: fetched items, their scores and summaries, and the ranked
// digest sections.
package item

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Type classifies an item by what kind of content it is.
type Type string

const (
	TypeArticle       Type = "article"
	TypeVideo         Type = "video"
	TypeLink          Type = "link"
	TypeXPost         Type = "x_post"
	TypeGitHubRepo    Type = "github_repo"
	TypeGitHubRelease Type = "github_release"
	TypeGitHubIssue   Type = "github_issue"
	TypeGitHubPR      Type = "github_pr"
)

// Item is one piece of content produced by a source connector.
type Item struct {
	ID          string
	URL         string
	Title       string
	Source      string
	Author      string
	PublishedAt *time.Time
	Type        Type
	RawText     string
	Description string
	Hash        string
}

// CanonicalKey returns the key used for dedupe and the seen-set:
// the URL when present, otherwise the content hash.
func (it Item) CanonicalKey() string {
	if it.URL != "" {
		return it.URL
	}
	return it.Hash
}

// New builds an Item with a stable derived ID and hash. The ID is the
// first 16 hex characters of the SHA-256 of the canonical key, so the
// same URL (or, lacking one, the same title) always maps to the same
// item across runs.
func New(rawURL, title, source string, typ Type) Item {
	key := rawURL
	if key == "" {
		key = title
	}
	sum := sha256.Sum256([]byte(key))
	return Item{
		ID:     fmt.Sprintf("%x", sum[:8]),
		URL:    rawURL,
		Title:  title,
		Source: source,
		Type:   typ,
		Hash:   fmt.Sprintf("%x", sum),
	}
}

// ScoreProvider identifies which scoring path produced a Score.
type ScoreProvider string

const (
	ProviderRules ScoreProvider = "rules"
	ProviderAgent ScoreProvider = "agent"
)

// Score is one scoring record for an item within a run.
// Sub-score ranges: relevance 0-60, quality 0-30, novelty 0-10.
type Score struct {
	ItemID     string
	Relevance  int
	Quality    int
	Novelty    int
	Reason     string
	Tags       []string
	TopicTags  []string
	FormatTags []string
	Provider   ScoreProvider
}

// Total is the sum of the sub-scores, always in [0,100].
func (s Score) Total() int {
	return s.Relevance + s.Quality + s.Novelty
}

// Clamp forces the sub-scores into their allowed ranges.
func (s *Score) Clamp() {
	s.Relevance = clamp(s.Relevance, 0, 60)
	s.Quality = clamp(s.Quality, 0, 30)
	s.Novelty = clamp(s.Novelty, 0, 10)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SummaryProvider identifies which summarizer produced a Summary.
type SummaryProvider string

const (
	SummaryExtractive SummaryProvider = "extractive"
	SummaryOpenAI     SummaryProvider = "openai_responses"
)

// Summary is the short-form rendering of one item.
type Summary struct {
	TLDR         string
	KeyPoints    []string
	WhyItMatters string
	Provider     SummaryProvider
}

// ScoredItem pairs an item with its score and, after the
// summarization stage, its summary.
type ScoredItem struct {
	Item    Item
	Score   Score
	Summary *Summary
}

// Section size caps.
const (
	MaxMustRead = 5
	MaxSkim     = 10
	MaxVideos   = 5
	MaxTotal    = 20
)

// DigestSections holds the three ranked digest lists. The lists are
// pairwise disjoint and their union never exceeds MaxTotal items.
type DigestSections struct {
	MustRead []ScoredItem
	Skim     []ScoredItem
	Videos   []ScoredItem
}

// All returns the selected set in section order.
func (d DigestSections) All() []ScoredItem {
	out := make([]ScoredItem, 0, len(d.MustRead)+len(d.Skim)+len(d.Videos))
	out = append(out, d.MustRead...)
	out = append(out, d.Skim...)
	out = append(out, d.Videos...)
	return out
}

// Total returns the number of selected items across all sections.
func (d DigestSections) Total() int {
	return len(d.MustRead) + len(d.Skim) + len(d.Videos)
}

// SourceBucket normalizes a source tag to the host-like string used
// for Must-read diversity capping. All github sources (repo, topic,
// query and org tags) collapse into one bucket; URL sources reduce to
// their lowercase host without the scheme and a leading "www.".
func SourceBucket(source string) string {
	s := strings.TrimSpace(strings.ToLower(source))
	if s == "" {
		return "unknown"
	}
	if strings.HasPrefix(s, "github:") || strings.HasPrefix(s, "github_") {
		return "github"
	}
	s = strings.TrimPrefix(s, "rss:")
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			return "unknown"
		}
		s = u.Host
	}
	s = strings.TrimPrefix(s, "www.")
	if s == "" {
		return "unknown"
	}
	return s
}
