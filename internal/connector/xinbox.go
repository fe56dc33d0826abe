package connector

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"aidigest/internal/item"
)

var statusURLRe = regexp.MustCompile(`https?://(?:www\.)?(?:x|twitter)\.com/([A-Za-z0-9_]{1,15})/status/(\d+)`)

// Marketing noise markers that disqualify a pasted post.
var marketingMarkers = []string{
	"giveaway", "airdrop", "whitelist", "presale", "free mint",
	"follow and retweet", "tag 3 friends",
}

// XInboxConnector reads a local text file of pasted post URLs and
// turns each into an x_post item. Duplicates, short noise and
// marketing posts are dropped.
type XInboxConnector struct {
	Path string
}

func (x *XInboxConnector) Name() string { return "x.com" }

func (x *XInboxConnector) Fetch(ctx context.Context) ([]item.Item, error) {
	data, err := os.ReadFile(x.Path)
	if err != nil {
		return nil, fmt.Errorf("reading inbox: %w", err)
	}

	seen := make(map[string]bool)
	var items []item.Item
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := statusURLRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		handle, id := strings.ToLower(m[1]), m[2]
		canonical := fmt.Sprintf("https://x.com/%s/status/%s", handle, id)
		if seen[canonical] {
			continue
		}
		seen[canonical] = true

		// Text pasted alongside the URL becomes the post body.
		text := strings.TrimSpace(strings.Replace(line, m[0], "", 1))
		lower := strings.ToLower(text)
		if hasMarker(lower, marketingMarkers) {
			continue
		}
		if text != "" && len(text) < 12 {
			continue // short noise, not a real excerpt
		}

		it := item.New(canonical, postTitle(handle, text), x.Name(), item.TypeXPost)
		it.Author = handle
		it.RawText = text
		it.Description = text
		items = append(items, it)
	}
	return items, nil
}

func postTitle(handle, text string) string {
	if text == "" {
		return "@" + handle + " post"
	}
	runes := []rune(text)
	if len(runes) > 80 {
		return "@" + handle + ": " + string(runes[:80])
	}
	return "@" + handle + ": " + text
}

func hasMarker(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
