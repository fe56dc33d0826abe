package score

import (
	"context"
	"strings"

	"aidigest/internal/config"
	"aidigest/internal/item"
)

// CoverageErr is the summary-error token emitted when the coverage
// policy downgrades a run.
const CoverageErr = "scoring_coverage_below_threshold"

// mediumSeverityKeywords gate github_issue items: an issue must
// mention at least one to survive filtering.
var mediumSeverityKeywords = []string{
	"regression", "outage", "crash", "failing", "incident",
	"permission", "auth", "latency", "degraded", "data loss",
}

// Outcome reports what the scoring stage did, for the coverage policy
// and the run's funnel counters.
type Outcome struct {
	// Budgeted is how many items were eligible for the agent path
	// (at most max_agent_items_per_run).
	Budgeted int
	// AgentScored counts successful agent scores (cache hits included).
	AgentScored int
	// RulesFallbacks counts budgeted items that fell back to the
	// rules path after agent failures.
	RulesFallbacks int
	// Overflow counts items beyond the agent budget; they score via
	// rules only and are excluded from coverage metrics.
	Overflow int
	// CacheHits counts fresh cache entries that skipped the LLM.
	CacheHits int
	// Errors holds per-item agent failure strings.
	Errors []string
}

// Coverage is the fraction of budgeted items the agent scored.
func (o Outcome) Coverage() float64 {
	if o.Budgeted == 0 {
		return 1
	}
	return float64(o.AgentScored) / float64(o.Budgeted)
}

// FallbackShare is the fraction of budgeted items that fell back to
// the rules path.
func (o Outcome) FallbackShare() float64 {
	if o.Budgeted == 0 {
		return 0
	}
	return float64(o.RulesFallbacks) / float64(o.Budgeted)
}

// BelowThreshold reports whether the coverage policy should downgrade
// the run.
func (o Outcome) BelowThreshold(minCoverage, maxFallbackShare float64) bool {
	if o.Budgeted == 0 {
		return false
	}
	return o.Coverage() < minCoverage || o.FallbackShare() > maxFallbackShare
}

// Scorer runs the rules path over all items and, when enabled, the
// agent path over the budgeted subset.
type Scorer struct {
	Profile *config.Profile
	Rules   *RulesScorer
	// Agent is nil when agent scoring is disabled.
	Agent *AgentScorer
}

// New returns a scorer for the profile. agent may be nil.
func New(p *config.Profile, agent *AgentScorer) *Scorer {
	return &Scorer{Profile: p, Rules: &RulesScorer{Profile: p}, Agent: agent}
}

// Filter drops blocked-source items and github_issue items without
// operational impact. It returns the survivors in input order and the
// number dropped.
func (s *Scorer) Filter(items []item.Item) ([]item.Item, int) {
	var kept []item.Item
	dropped := 0
	for _, it := range items {
		if s.blocked(it.Source) {
			dropped++
			continue
		}
		if it.Type == item.TypeGitHubIssue && !s.keepIssue(it) {
			dropped++
			continue
		}
		kept = append(kept, it)
	}
	return kept, dropped
}

func (s *Scorer) blocked(source string) bool {
	src := strings.ToLower(source)
	for _, b := range s.Profile.BlockedSources {
		if b != "" && strings.Contains(src, strings.ToLower(b)) {
			return true
		}
	}
	return false
}

// keepIssue keeps a github_issue only when its owner is trusted and
// the text signals operational impact.
func (s *Scorer) keepIssue(it item.Item) bool {
	owner := issueOwner(it.Source)
	trusted := false
	for _, org := range s.Profile.TrustedOrgsGitHub {
		if strings.EqualFold(org, owner) {
			trusted = true
			break
		}
	}
	if !trusted {
		return false
	}
	text := strings.ToLower(it.Title + " " + it.RawText)
	for _, kw := range mediumSeverityKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func issueOwner(source string) string {
	s := strings.TrimPrefix(source, "github:")
	if i := strings.IndexByte(s, '/'); i > 0 {
		return s[:i]
	}
	return s
}

// ScoreAll scores every item. The first maxAgentItems items go
// through the agent when it is configured; the rest (and every item
// when the agent is off) use the rules path.
func (s *Scorer) ScoreAll(ctx context.Context, items []item.Item) ([]item.ScoredItem, Outcome) {
	var out Outcome
	scored := make([]item.ScoredItem, 0, len(items))

	budget := s.Profile.MaxAgentItemsPerRun
	for i, it := range items {
		si := item.ScoredItem{Item: it}
		switch {
		case s.Agent == nil:
			si.Score = s.Rules.Score(it)
		case i >= budget:
			out.Overflow++
			si.Score = s.Rules.Score(it)
		default:
			out.Budgeted++
			agentScore, cached, err := s.Agent.Score(ctx, it)
			if err != nil {
				out.RulesFallbacks++
				out.Errors = append(out.Errors, it.ID+": "+err.Error())
				si.Score = s.Rules.Score(it)
			} else {
				out.AgentScored++
				if cached {
					out.CacheHits++
				}
				si.Score = agentScore
			}
		}
		scored = append(scored, si)
	}
	return scored, out
}
