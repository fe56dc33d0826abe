// Package dedupe removes exact and near-duplicate items. Exact
// duplicates share a canonical key; near-duplicates are clustered by
// title similarity and reduced to one representative per cluster.
package dedupe

import (
	"regexp"
	"strings"

	"aidigest/internal/item"
)

// jaccardThreshold is the minimum title token overlap for two items
// to land in the same near-duplicate cluster.
const jaccardThreshold = 0.7

// Exact keeps the first occurrence of each canonical key (URL,
// falling back to hash), preserving input order.
func Exact(items []item.Item) []item.Item {
	seen := make(map[string]bool, len(items))
	out := make([]item.Item, 0, len(items))
	for _, it := range items {
		key := it.CanonicalKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	return out
}

type cluster struct {
	centroid map[string]bool
	rep      item.Item
}

// Cluster groups items whose titles are near-identical and keeps the
// member with the longest raw text as each cluster's representative.
// Cluster order follows first appearance in the input.
func Cluster(items []item.Item) []item.Item {
	var clusters []*cluster
	for _, it := range items {
		tokens := titleTokens(it.Title)
		placed := false
		for _, c := range clusters {
			if jaccard(tokens, c.centroid) >= jaccardThreshold {
				if len(it.RawText) > len(c.rep.RawText) {
					c.rep = it
				}
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, &cluster{centroid: tokens, rep: it})
		}
	}
	out := make([]item.Item, len(clusters))
	for i, c := range clusters {
		out[i] = c.rep
	}
	return out
}

// Dedupe runs both phases: exact-key dedupe then title clustering.
func Dedupe(items []item.Item) []item.Item {
	return Cluster(Exact(items))
}

var tokenRe = regexp.MustCompile(`[a-z0-9]+`)

func titleTokens(title string) map[string]bool {
	tokens := make(map[string]bool)
	for _, t := range tokenRe.FindAllString(strings.ToLower(title), -1) {
		tokens[t] = true
	}
	return tokens
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
