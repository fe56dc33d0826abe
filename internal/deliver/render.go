// Package deliver renders the digest and delivers it to the chat
// channel and the markdown vault.
package deliver

import (
	"fmt"
	"strings"
	"time"

	"aidigest/internal/item"
)

// RenderMarkdown renders the digest as a markdown note.
func RenderMarkdown(runID string, now time.Time, sections item.DigestSections, summaries map[string]item.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# AI digest — %s\n\n", now.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "run: %s\n\n", runID)

	writeSection(&b, "Must-read", sections.MustRead, summaries)
	writeSection(&b, "Skim", sections.Skim, summaries)
	writeSection(&b, "Videos", sections.Videos, summaries)
	return b.String()
}

func writeSection(b *strings.Builder, name string, items []item.ScoredItem, summaries map[string]item.Summary) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", name)
	for _, si := range items {
		fmt.Fprintf(b, "- [%s](%s) — %d pts (%s)\n", si.Item.Title, si.Item.URL, si.Score.Total(), item.SourceBucket(si.Item.Source))
		if s, ok := summaries[si.Item.ID]; ok && s.TLDR != "" {
			fmt.Fprintf(b, "  - %s\n", s.TLDR)
			if s.WhyItMatters != "" {
				fmt.Fprintf(b, "  - Why: %s\n", s.WhyItMatters)
			}
		}
	}
	b.WriteString("\n")
}

// RenderChat renders the digest as a plain-text chat message.
func RenderChat(sections item.DigestSections, summaries map[string]item.Summary) string {
	var b strings.Builder
	writeChatSection(&b, "📌 Must-read", sections.MustRead, summaries)
	writeChatSection(&b, "🔎 Skim", sections.Skim, nil)
	writeChatSection(&b, "🎬 Videos", sections.Videos, nil)
	return strings.TrimRight(b.String(), "\n")
}

func writeChatSection(b *strings.Builder, header string, items []item.ScoredItem, summaries map[string]item.Summary) {
	if len(items) == 0 {
		return
	}
	b.WriteString(header + "\n")
	for i, si := range items {
		fmt.Fprintf(b, "%d. %s\n%s\n", i+1, si.Item.Title, si.Item.URL)
		if summaries != nil {
			if s, ok := summaries[si.Item.ID]; ok && s.TLDR != "" {
				b.WriteString(s.TLDR + "\n")
			}
		}
	}
	b.WriteString("\n")
}

// maxMessageLen is the chat per-message size limit.
const maxMessageLen = 4096

// SplitMessage splits text into chunks under maxLen, breaking on
// newlines so section headers stay at the top of their chunk. A
// single line longer than maxLen is truncated with an ellipsis.
func SplitMessage(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = maxMessageLen
	}
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	var cur strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if len(line) > maxLen {
			line = truncateLine(line, maxLen)
		}
		need := len(line)
		if cur.Len() > 0 {
			need++ // newline
		}
		if cur.Len()+need > maxLen {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

func truncateLine(line string, maxLen int) string {
	runes := []rune(line)
	for len(string(runes)) > maxLen-1 {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}
