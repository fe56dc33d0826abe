// Package sanitize normalizes item text before scoring. Video
// transcripts additionally go through a cleanup policy that drops
// sponsor blocks, hashtag spam and repeated link lines.
package sanitize

import (
	"strings"

	"aidigest/internal/item"
)

// MaxTranscriptChars caps cleaned video transcripts.
const MaxTranscriptChars = 2400

// Normalize collapses whitespace in the title and raw text of each
// item. Video items also get their transcript sanitized.
func Normalize(items []item.Item) []item.Item {
	out := make([]item.Item, len(items))
	for i, it := range items {
		it.Title = collapse(it.Title)
		if it.Type == item.TypeVideo {
			it.RawText = Transcript(it.RawText)
		} else {
			it.RawText = collapse(it.RawText)
		}
		out[i] = it
	}
	return out
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var sponsorMarkers = []string{
	"patreon", "sponsor", "support us", "check out", "sign up",
	"join now", "promo code", "dm me",
}

var technicalSignals = []string{
	"paper", "benchmark", "model", "render", "shader", "cuda",
	"agent", "llm", "research", "method", "realtime",
}

// Transcript applies the video-transcript cleanup policy:
// sources blocks and their URL lines are skipped, hashtag-only and
// sponsor lines are dropped (unless a sponsor line carries a
// technical keyword), duplicate URLs are removed, pictographs are
// stripped and the result is capped at MaxTranscriptChars.
func Transcript(text string) string {
	lines := strings.Split(text, "\n")
	seenURLs := make(map[string]bool)
	var kept []string

	skipURLBlock := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)

		if skipURLBlock {
			if isURLLine(trimmed) {
				continue
			}
			skipURLBlock = false
		}
		if strings.HasPrefix(lower, "sources:") {
			skipURLBlock = true
			continue
		}
		if trimmed == "" {
			continue
		}
		if hashtagOnly(trimmed) {
			continue
		}
		if hasAny(lower, sponsorMarkers) && !hasAny(lower, technicalSignals) {
			continue
		}
		line, dup := dropDuplicateURLs(trimmed, seenURLs)
		if dup && line == "" {
			continue
		}
		line = stripPictographs(line)
		line = collapse(line)
		if line == "" {
			continue
		}
		kept = append(kept, line)
	}

	out := strings.Join(kept, "\n")
	if len(out) > MaxTranscriptChars {
		out = out[:MaxTranscriptChars]
	}
	return out
}

func isURLLine(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func hashtagOnly(s string) bool {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return false
	}
	for _, f := range fields {
		if !strings.HasPrefix(f, "#") {
			return false
		}
	}
	return true
}

func hasAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// dropDuplicateURLs removes URLs already seen on earlier lines,
// keeping only the first occurrence. Returns the cleaned line and
// whether every token on the line was a duplicate URL.
func dropDuplicateURLs(line string, seen map[string]bool) (string, bool) {
	fields := strings.Fields(line)
	var kept []string
	dropped := 0
	for _, f := range fields {
		if isURLLine(f) {
			if seen[f] {
				dropped++
				continue
			}
			seen[f] = true
		}
		kept = append(kept, f)
	}
	if len(kept) == 0 && dropped > 0 {
		return "", true
	}
	return strings.Join(kept, " "), false
}

// stripPictographs removes common emoji and pictograph code points.
func stripPictographs(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 0x1F300 && r <= 0x1FAFF: // pictographs, emoji
		case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		case r == 0xFE0F || r == 0x200D: // variation selector, ZWJ
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
