// Package window drops items outside the run's time window and, in
// incremental mode, items already delivered in earlier runs.
package window

import (
	"time"

	"aidigest/internal/item"
)

// Window is the [Start, End] UTC interval a run covers.
type Window struct {
	Start time.Time
	End   time.Time
}

// Compute returns the run window. In incremental mode the window
// starts where the last completed run ended; otherwise it covers the
// past 24 hours. lastEnd is zero when no completed run exists.
func Compute(now time.Time, incremental bool, lastEnd time.Time) Window {
	now = now.UTC()
	start := now.Add(-24 * time.Hour)
	if incremental && !lastEnd.IsZero() {
		start = lastEnd.UTC()
	}
	return Window{Start: start, End: now}
}

// Result reports what filtering did, for the run's funnel counters.
type Result struct {
	Kept              []item.Item
	DroppedOld        int
	DroppedSeen       int
	SeenReaddedVideos int
}

// Options controls seen-set filtering.
type Options struct {
	// OnlyNew drops items whose canonical key is in the seen-set.
	OnlyNew bool
	// AllowSeenFallback reintroduces seen videos from the current
	// window when filtering would otherwise leave no videos at all.
	AllowSeenFallback bool
}

// Filter applies the window and seen-set rules. Items with no
// publication date always pass the window check. Input order is
// preserved.
func Filter(items []item.Item, w Window, seen map[string]bool, opts Options) Result {
	var res Result
	var inWindow []item.Item
	for _, it := range items {
		if it.PublishedAt != nil && it.PublishedAt.Before(w.Start) {
			res.DroppedOld++
			continue
		}
		inWindow = append(inWindow, it)
	}

	if !opts.OnlyNew {
		res.Kept = inWindow
		return res
	}

	var kept []item.Item
	var seenVideos []item.Item
	haveVideo := false
	for _, it := range inWindow {
		if seen[it.CanonicalKey()] {
			res.DroppedSeen++
			if it.Type == item.TypeVideo {
				seenVideos = append(seenVideos, it)
			}
			continue
		}
		if it.Type == item.TypeVideo {
			haveVideo = true
		}
		kept = append(kept, it)
	}

	// Keep the video section alive: when incremental filtering leaves
	// no videos, re-admit seen ones from the current window.
	if !haveVideo && opts.AllowSeenFallback && len(seenVideos) > 0 {
		kept = append(kept, seenVideos...)
		res.SeenReaddedVideos = len(seenVideos)
		res.DroppedSeen -= len(seenVideos)
	}

	res.Kept = kept
	return res
}
