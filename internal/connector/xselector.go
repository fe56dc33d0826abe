package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"aidigest/internal/item"
)

// ErrSelectorUnsupported is returned by providers that cannot serve
// author or theme selectors.
var ErrSelectorUnsupported = errors.New("selector fetch not supported by this provider")

// XPost is one post returned by a selector provider.
type XPost struct {
	ID        string
	Author    string
	Text      string
	CreatedAt time.Time
}

// XSelectorProvider fetches recent posts for an author or theme
// selector, resuming from an opaque cursor.
type XSelectorProvider interface {
	Search(ctx context.Context, selectorType, value, cursor string) (posts []XPost, nextCursor string, err error)
}

// CursorStore persists per-selector pagination state between runs.
type CursorStore interface {
	GetCursor(selectorType, value string) (cursor, lastItemID string, err error)
	SetCursor(selectorType, value, cursor, lastItemID string) error
}

// InboxOnlyProvider serves installations without API access: the
// inbox file is the only post source, so selectors are unsupported.
type InboxOnlyProvider struct{}

func (InboxOnlyProvider) Search(ctx context.Context, selectorType, value, cursor string) ([]XPost, string, error) {
	return nil, "", fmt.Errorf("%s selector %q: %w", selectorType, value, ErrSelectorUnsupported)
}

// APIProvider calls the recent-search endpoint with a bearer token.
type APIProvider struct {
	BaseURL string
	Token   string

	httpClient *http.Client
}

// NewAPIProvider returns a provider against the production API.
func NewAPIProvider(token string) *APIProvider {
	return &APIProvider{
		BaseURL:    "https://api.x.com/2/tweets/search/recent",
		Token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type xSearchResponse struct {
	Data []struct {
		ID        string    `json:"id"`
		Text      string    `json:"text"`
		AuthorID  string    `json:"author_id"`
		CreatedAt time.Time `json:"created_at"`
	} `json:"data"`
	Meta struct {
		NextToken string `json:"next_token"`
	} `json:"meta"`
}

func (p *APIProvider) Search(ctx context.Context, selectorType, value, cursor string) ([]XPost, string, error) {
	query := value
	if selectorType == "author" {
		query = "from:" + value
	}
	q := url.Values{
		"query":        {query},
		"max_results":  {"50"},
		"tweet.fields": {"created_at,author_id"},
	}
	if cursor != "" {
		q.Set("next_token", cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+p.Token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", fmt.Errorf("x search: HTTP %d: %s", resp.StatusCode, string(b))
	}

	var sr xSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, "", err
	}
	posts := make([]XPost, 0, len(sr.Data))
	for _, d := range sr.Data {
		posts = append(posts, XPost{ID: d.ID, Author: d.AuthorID, Text: d.Text, CreatedAt: d.CreatedAt})
	}
	return posts, sr.Meta.NextToken, nil
}

// XSelectorConnector fetches posts for one author or theme selector,
// persisting the pagination cursor after each successful fetch.
type XSelectorConnector struct {
	SelectorType string // "author" or "theme"
	Value        string
	Provider     XSelectorProvider
	Cursors      CursorStore
}

func (x *XSelectorConnector) Name() string {
	return "x_" + x.SelectorType + ":" + x.Value
}

func (x *XSelectorConnector) Fetch(ctx context.Context) ([]item.Item, error) {
	var cursor string
	if x.Cursors != nil {
		c, _, err := x.Cursors.GetCursor(x.SelectorType, x.Value)
		if err == nil {
			cursor = c
		}
	}

	posts, next, err := x.Provider.Search(ctx, x.SelectorType, x.Value, cursor)
	if err != nil {
		return nil, err
	}

	var items []item.Item
	for _, p := range posts {
		author := p.Author
		if author == "" {
			author = "i"
		}
		canonical := fmt.Sprintf("https://x.com/%s/status/%s", author, p.ID)
		it := item.New(canonical, postTitle(author, p.Text), "x.com", item.TypeXPost)
		it.Author = p.Author
		it.RawText = p.Text
		it.Description = p.Text
		created := p.CreatedAt.UTC()
		if !created.IsZero() {
			it.PublishedAt = &created
		}
		items = append(items, it)
	}

	if x.Cursors != nil && len(posts) > 0 {
		lastID := posts[0].ID
		if err := x.Cursors.SetCursor(x.SelectorType, x.Value, next, lastID); err != nil {
			return items, fmt.Errorf("saving cursor: %w", err)
		}
	}
	return items, nil
}
