package connector

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"aidigest/internal/item"
)

const userAgent = "aidigest/1.0 (+personal digest bot)"

var stripPolicy = bluemonday.StrictPolicy()

// FeedConnector fetches one RSS or Atom feed over HTTP.
type FeedConnector struct {
	URL string
	// ItemType overrides the type assigned to fetched items.
	// Defaults to article.
	ItemType item.Type
	// SourceTag overrides the source tag. Defaults to "rss:<url>".
	SourceTag string

	parser *gofeed.Parser
}

// NewFeedConnector returns a connector for the given feed URL.
func NewFeedConnector(url string) *FeedConnector {
	p := gofeed.NewParser()
	p.UserAgent = userAgent
	p.Client = &http.Client{Timeout: 20 * time.Second}
	return &FeedConnector{URL: url, parser: p}
}

func (f *FeedConnector) Name() string {
	if f.SourceTag != "" {
		return f.SourceTag
	}
	return "rss:" + f.URL
}

func (f *FeedConnector) Fetch(ctx context.Context) ([]item.Item, error) {
	feed, err := f.parser.ParseURLWithContext(f.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching feed: %w", err)
	}

	typ := f.ItemType
	if typ == "" {
		typ = item.TypeArticle
	}

	items := make([]item.Item, 0, len(feed.Items))
	for _, fi := range feed.Items {
		it := item.New(fi.Link, fi.Title, f.Name(), typ)
		it.Description = stripPolicy.Sanitize(fi.Description)
		it.RawText = it.Description
		if fi.Content != "" {
			it.RawText = stripPolicy.Sanitize(fi.Content)
		}
		if fi.Author != nil {
			it.Author = fi.Author.Name
		}
		if pub := publishedAt(fi); pub != nil {
			utc := pub.UTC()
			it.PublishedAt = &utc
		}
		items = append(items, it)
	}
	return items, nil
}

func publishedAt(fi *gofeed.Item) *time.Time {
	if fi.PublishedParsed != nil {
		return fi.PublishedParsed
	}
	return fi.UpdatedParsed
}
