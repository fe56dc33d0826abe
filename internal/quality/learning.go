// Package quality implements the post-selection quality repair step
// and the decaying learning signal it feeds back into future runs.
package quality

import (
	"math"
	"time"

	"aidigest/internal/item"
)

// LearningStep is the weight delta one promotion or demotion adds to
// each feature of an item.
const LearningStep = 0.8

// Feature is one (kind, value) pair used to offset future ranking.
type Feature struct {
	Kind  string // source | type | topic | format
	Value string
}

// Weight is a persisted per-feature learning weight.
type Weight struct {
	Kind      string
	Value     string
	Weight    float64
	UpdatedAt time.Time
}

// Features extracts the learning features of a scored item: its
// source family, its type, and its topic and format tags. Empty
// values are dropped.
func Features(si item.ScoredItem) []Feature {
	var out []Feature
	if fam := item.SourceBucket(si.Item.Source); fam != "" && fam != "unknown" {
		out = append(out, Feature{Kind: "source", Value: fam})
	}
	if si.Item.Type != "" {
		out = append(out, Feature{Kind: "type", Value: string(si.Item.Type)})
	}
	for _, t := range si.Score.TopicTags {
		if t != "" {
			out = append(out, Feature{Kind: "topic", Value: t})
		}
	}
	for _, f := range si.Score.FormatTags {
		if f != "" {
			out = append(out, Feature{Kind: "format", Value: f})
		}
	}
	return out
}

// Decay returns w halved every halfLifeDays since updatedAt.
func Decay(w float64, updatedAt, now time.Time, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		return w
	}
	ageDays := now.Sub(updatedAt).Hours() / 24
	if ageDays <= 0 {
		return w
	}
	return w * math.Pow(0.5, ageDays/halfLifeDays)
}

// RankOverrides computes per-item rank keys: the raw score total
// offset by the clamped sum of decayed feature weights. Items with no
// matching weights get no override.
func RankOverrides(scored []item.ScoredItem, weights []Weight, now time.Time, halfLifeDays, maxOffset float64) map[string]float64 {
	if len(weights) == 0 {
		return nil
	}
	byFeature := make(map[Feature]Weight, len(weights))
	for _, w := range weights {
		byFeature[Feature{Kind: w.Kind, Value: w.Value}] = w
	}

	overrides := make(map[string]float64)
	for _, si := range scored {
		offset := 0.0
		matched := false
		for _, f := range Features(si) {
			w, ok := byFeature[f]
			if !ok {
				continue
			}
			matched = true
			offset += Decay(w.Weight, w.UpdatedAt, now, halfLifeDays)
		}
		if !matched {
			continue
		}
		if offset > maxOffset {
			offset = maxOffset
		} else if offset < -maxOffset {
			offset = -maxOffset
		}
		overrides[si.Item.ID] = float64(si.Score.Total()) + offset
	}
	if len(overrides) == 0 {
		return nil
	}
	return overrides
}

// Delta is the learning update produced by one repair: +step per
// feature of each promoted item, -step per feature of each demoted.
type Delta map[Feature]float64

// LearningDelta computes the delta between the Must-read lists before
// and after a repair.
func LearningDelta(before, after []item.ScoredItem) Delta {
	beforeIDs := make(map[string]bool, len(before))
	for _, si := range before {
		beforeIDs[si.Item.ID] = true
	}
	afterIDs := make(map[string]bool, len(after))
	for _, si := range after {
		afterIDs[si.Item.ID] = true
	}

	delta := make(Delta)
	for _, si := range after {
		if beforeIDs[si.Item.ID] {
			continue
		}
		for _, f := range Features(si) {
			delta[f] += LearningStep
		}
	}
	for _, si := range before {
		if afterIDs[si.Item.ID] {
			continue
		}
		for _, f := range Features(si) {
			delta[f] -= LearningStep
		}
	}
	if len(delta) == 0 {
		return nil
	}
	return delta
}
