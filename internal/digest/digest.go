// Package digest builds the three ranked digest sections from scored
// items, under source-diversity and size constraints.
package digest

import (
	"sort"

	"aidigest/internal/item"
)

// Select builds Must-read, Skim and Videos from scored items.
// rankOverrides, when present for an item, replaces its score total
// in the ranking; ties keep input order. maxPerSource caps how many
// Must-read slots one source bucket may take.
func Select(scored []item.ScoredItem, rankOverrides map[string]float64, maxPerSource int) item.DigestSections {
	ranked := Rank(scored, rankOverrides)

	var videos, nonVideos []item.ScoredItem
	for _, si := range ranked {
		if si.Item.Type == item.TypeVideo {
			videos = append(videos, si)
		} else {
			nonVideos = append(nonVideos, si)
		}
	}

	sections := item.DigestSections{
		Videos:   head(videos, item.MaxVideos),
		MustRead: pickMustRead(nonVideos, maxPerSource),
	}

	inMust := idSet(sections.MustRead)
	for _, si := range nonVideos {
		if len(sections.Skim) == item.MaxSkim {
			break
		}
		if inMust[si.Item.ID] {
			continue
		}
		sections.Skim = append(sections.Skim, si)
	}

	trim(&sections)
	return sections
}

// Rebuild reassembles sections around a replacement Must-read list
// (by id), refilling Skim from the ranked non-videos and keeping the
// top videos, under the same caps as Select.
func Rebuild(scored []item.ScoredItem, rankOverrides map[string]float64, mustReadIDs []string) item.DigestSections {
	ranked := Rank(scored, rankOverrides)

	byID := make(map[string]item.ScoredItem, len(ranked))
	var videos, nonVideos []item.ScoredItem
	for _, si := range ranked {
		byID[si.Item.ID] = si
		if si.Item.Type == item.TypeVideo {
			videos = append(videos, si)
		} else {
			nonVideos = append(nonVideos, si)
		}
	}

	var sections item.DigestSections
	for _, id := range mustReadIDs {
		if si, ok := byID[id]; ok {
			sections.MustRead = append(sections.MustRead, si)
		}
	}
	sections.MustRead = head(sections.MustRead, item.MaxMustRead)

	inMust := idSet(sections.MustRead)
	for _, si := range nonVideos {
		if len(sections.Skim) == item.MaxSkim {
			break
		}
		if inMust[si.Item.ID] {
			continue
		}
		sections.Skim = append(sections.Skim, si)
	}
	sections.Videos = head(videos, item.MaxVideos)

	trim(&sections)
	return sections
}

// Rank sorts scored items by descending rank key, stable on ties.
func Rank(scored []item.ScoredItem, rankOverrides map[string]float64) []item.ScoredItem {
	ranked := make([]item.ScoredItem, len(scored))
	copy(ranked, scored)
	sort.SliceStable(ranked, func(i, j int) bool {
		return rankKey(ranked[i], rankOverrides) > rankKey(ranked[j], rankOverrides)
	})
	return ranked
}

func rankKey(si item.ScoredItem, overrides map[string]float64) float64 {
	if overrides != nil {
		if v, ok := overrides[si.Item.ID]; ok {
			return v
		}
	}
	return float64(si.Score.Total())
}

// pickMustRead takes the top non-videos while holding each source
// bucket under maxPerSource; remaining slots are filled ignoring the
// cap when too few sources qualify.
func pickMustRead(nonVideos []item.ScoredItem, maxPerSource int) []item.ScoredItem {
	if maxPerSource <= 0 {
		maxPerSource = 2
	}
	var picked []item.ScoredItem
	perBucket := make(map[string]int)
	taken := make(map[string]bool)

	for _, si := range nonVideos {
		if len(picked) == item.MaxMustRead {
			break
		}
		bucket := item.SourceBucket(si.Item.Source)
		if perBucket[bucket] >= maxPerSource {
			continue
		}
		perBucket[bucket]++
		taken[si.Item.ID] = true
		picked = append(picked, si)
	}
	if len(picked) < item.MaxMustRead {
		for _, si := range nonVideos {
			if len(picked) == item.MaxMustRead {
				break
			}
			if taken[si.Item.ID] {
				continue
			}
			taken[si.Item.ID] = true
			picked = append(picked, si)
		}
	}
	return picked
}

// trim enforces the global cap, dropping in reverse priority:
// videos first, then skim, then must-read.
func trim(d *item.DigestSections) {
	over := func() int { return d.Total() - item.MaxTotal }
	if n := over(); n > 0 {
		d.Videos = dropTail(d.Videos, n)
	}
	if n := over(); n > 0 {
		d.Skim = dropTail(d.Skim, n)
	}
	if n := over(); n > 0 {
		d.MustRead = dropTail(d.MustRead, n)
	}
}

func dropTail(s []item.ScoredItem, n int) []item.ScoredItem {
	if n >= len(s) {
		return nil
	}
	return s[:len(s)-n]
}

func head(s []item.ScoredItem, n int) []item.ScoredItem {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func idSet(items []item.ScoredItem) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, si := range items {
		out[si.Item.ID] = true
	}
	return out
}
