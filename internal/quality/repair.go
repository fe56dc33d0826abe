package quality

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"aidigest/internal/digest"
	"aidigest/internal/item"
	"aidigest/internal/llm"
)

// Evaluation is the per-run quality-repair record.
type Evaluation struct {
	QualityScore int
	Confidence   float64
	Issues       []string
	BeforeIDs    []string
	AfterIDs     []string
	Repaired     bool
	Model        string
}

// repairSchema constrains the LLM editor's response.
var repairSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"quality_score": {"type": "integer", "minimum": 0, "maximum": 100},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"issues": {"type": "array", "items": {"type": "string"}},
		"repaired_must_read_ids": {
			"type": "array",
			"items": {"type": "string"},
			"minItems": 5,
			"maxItems": 5
		}
	},
	"required": ["quality_score", "confidence", "issues", "repaired_must_read_ids"],
	"additionalProperties": false
}`)

const repairSystemPrompt = `You are the quality editor of a personal AI-news digest.
Judge the current Must-read list for relevance, diversity of sources and
overall quality, score it 0-100, and propose the best possible Must-read
list of exactly 5 item ids chosen only from the candidate pool.`

type repairResponse struct {
	QualityScore int      `json:"quality_score"`
	Confidence   float64  `json:"confidence"`
	Issues       []string `json:"issues"`
	RepairedIDs  []string `json:"repaired_must_read_ids"`
}

// Repairer evaluates the Must-read list under an LLM editor and
// optionally rebuilds the digest sections.
type Repairer struct {
	Client    *llm.Client
	Threshold int
	PoolSize  int
	FailOpen  bool
}

// Result is what one repair attempt produced.
type Result struct {
	// Skipped means the preconditions were not met; nothing was
	// evaluated and no record should be persisted.
	Skipped bool
	// Failed means the call or validation failed. Sections carries
	// the unchanged input when FailOpen allowed the run to continue.
	Failed   bool
	Err      error
	Sections item.DigestSections
	Eval     *Evaluation
	// Delta is the learning update; nil unless the list changed.
	Delta Delta
}

// Repair runs the quality-repair protocol over the current sections.
// ranked must be the full scored set with overrides already applied
// to the ordering (digest.Rank output).
func (r *Repairer) Repair(ctx context.Context, sections item.DigestSections, ranked []item.ScoredItem, overrides map[string]float64) Result {
	if len(sections.MustRead) < item.MaxMustRead {
		return Result{Skipped: true, Sections: sections}
	}
	pool := candidatePool(ranked, r.PoolSize)
	if len(pool) < item.MaxMustRead {
		return Result{Skipped: true, Sections: sections}
	}

	resp, err := r.evaluate(ctx, sections.MustRead, pool)
	if err == nil {
		err = validateIDs(resp.RepairedIDs, pool)
	}
	if err != nil {
		return Result{Failed: true, Err: err, Sections: sections}
	}

	eval := &Evaluation{
		QualityScore: resp.QualityScore,
		Confidence:   resp.Confidence,
		Issues:       normalizeIssues(resp.Issues),
		BeforeIDs:    ids(sections.MustRead),
		Model:        r.Client.Model,
	}

	if resp.QualityScore >= r.Threshold {
		eval.AfterIDs = eval.BeforeIDs
		eval.Repaired = false
		return Result{Sections: sections, Eval: eval}
	}

	rebuilt := digest.Rebuild(ranked, overrides, resp.RepairedIDs)
	eval.AfterIDs = ids(rebuilt.MustRead)
	eval.Repaired = true
	return Result{
		Sections: rebuilt,
		Eval:     eval,
		Delta:    LearningDelta(sections.MustRead, rebuilt.MustRead),
	}
}

func (r *Repairer) evaluate(ctx context.Context, mustRead, pool []item.ScoredItem) (repairResponse, error) {
	var b strings.Builder
	b.WriteString("Current Must-read list:\n")
	writeItems(&b, mustRead)
	b.WriteString("\nCandidate pool:\n")
	writeItems(&b, pool)

	var resp repairResponse
	err := r.Client.CallJSON(ctx, []llm.Message{
		{Role: "system", Text: repairSystemPrompt},
		{Role: "user", Text: b.String()},
	}, "quality_repair", repairSchema, &resp)
	if err != nil {
		return repairResponse{}, fmt.Errorf("quality repair call: %w", err)
	}
	return resp, nil
}

func writeItems(b *strings.Builder, items []item.ScoredItem) {
	for _, si := range items {
		fmt.Fprintf(b, "- id=%s score=%d source=%s title=%s\n",
			si.Item.ID, si.Score.Total(), item.SourceBucket(si.Item.Source), si.Item.Title)
	}
}

// candidatePool is the top-N ranked non-video items.
func candidatePool(ranked []item.ScoredItem, n int) []item.ScoredItem {
	var pool []item.ScoredItem
	for _, si := range ranked {
		if si.Item.Type == item.TypeVideo {
			continue
		}
		pool = append(pool, si)
		if len(pool) == n {
			break
		}
	}
	return pool
}

// validateIDs requires exactly 5 distinct ids, all from the pool.
// Partial results are a failure, never best-effort merged.
func validateIDs(proposed []string, pool []item.ScoredItem) error {
	if len(proposed) != item.MaxMustRead {
		return fmt.Errorf("quality repair returned %d ids, want %d", len(proposed), item.MaxMustRead)
	}
	inPool := make(map[string]bool, len(pool))
	for _, si := range pool {
		inPool[si.Item.ID] = true
	}
	seen := make(map[string]bool, len(proposed))
	for _, id := range proposed {
		if seen[id] {
			return fmt.Errorf("quality repair returned duplicate id %s", id)
		}
		seen[id] = true
		if !inPool[id] {
			return fmt.Errorf("quality repair id %s is not in the candidate pool", id)
		}
	}
	return nil
}

func normalizeIssues(issues []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, is := range issues {
		t := strings.ToLower(strings.TrimSpace(is))
		t = strings.Join(strings.Fields(t), "_")
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func ids(items []item.ScoredItem) []string {
	out := make([]string, len(items))
	for i, si := range items {
		out[i] = si.Item.ID
	}
	return out
}
