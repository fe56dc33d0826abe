package connector

import (
	"context"
	"net/url"

	"aidigest/internal/item"
)

const videoFeedBase = "https://www.youtube.com/feeds/videos.xml"

// VideoChannelConnector fetches a video channel's upload feed and
// tags the results as videos.
type VideoChannelConnector struct {
	ChannelID string
}

func (v *VideoChannelConnector) Name() string { return v.ChannelID }

func (v *VideoChannelConnector) Fetch(ctx context.Context) ([]item.Item, error) {
	f := NewFeedConnector(videoFeedBase + "?channel_id=" + url.QueryEscape(v.ChannelID))
	f.ItemType = item.TypeVideo
	f.SourceTag = v.ChannelID
	return f.Fetch(ctx)
}

// VideoQueryConnector fetches a query-based video feed and tags the
// results as videos.
type VideoQueryConnector struct {
	Query string
}

func (v *VideoQueryConnector) Name() string { return "video_query:" + v.Query }

func (v *VideoQueryConnector) Fetch(ctx context.Context) ([]item.Item, error) {
	f := NewFeedConnector(videoFeedBase + "?search_query=" + url.QueryEscape(v.Query))
	f.ItemType = item.TypeVideo
	f.SourceTag = v.Name()
	return f.Fetch(ctx)
}
