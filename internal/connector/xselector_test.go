package connector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aidigest/internal/item"
)

type memCursors struct {
	cursor, lastID string
}

func (m *memCursors) GetCursor(selectorType, value string) (string, string, error) {
	return m.cursor, m.lastID, nil
}

func (m *memCursors) SetCursor(selectorType, value, cursor, lastItemID string) error {
	m.cursor, m.lastID = cursor, lastItemID
	return nil
}

func TestInboxOnlyProviderUnsupported(t *testing.T) {
	_, _, err := InboxOnlyProvider{}.Search(context.Background(), "author", "karpathy", "")
	if !errors.Is(err, ErrSelectorUnsupported) {
		t.Errorf("err = %v", err)
	}
}

func TestAPIProviderSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("query"); got != "from:karpathy" {
			t.Errorf("query = %q", got)
		}
		if got := r.URL.Query().Get("next_token"); got != "prev-tok" {
			t.Errorf("next_token = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"id": "111", "text": "a post about agents", "author_id": "karpathy", "created_at": time.Now().UTC()},
			},
			"meta": map[string]any{"next_token": "tok-2"},
		})
	}))
	t.Cleanup(srv.Close)
	p := NewAPIProvider("bearer")
	p.BaseURL = srv.URL

	posts, next, err := p.Search(context.Background(), "author", "karpathy", "prev-tok")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(posts) != 1 || posts[0].ID != "111" {
		t.Errorf("posts = %+v", posts)
	}
	if next != "tok-2" {
		t.Errorf("next = %q", next)
	}
}

func TestAPIProviderThemeQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("query"); got != "llm evals" {
			t.Errorf("theme query = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{})
	}))
	t.Cleanup(srv.Close)
	p := NewAPIProvider("bearer")
	p.BaseURL = srv.URL
	if _, _, err := p.Search(context.Background(), "theme", "llm evals", ""); err != nil {
		t.Fatalf("search: %v", err)
	}
}

type scriptedProvider struct {
	posts []XPost
	next  string
	err   error
	got   string
}

func (s *scriptedProvider) Search(ctx context.Context, selectorType, value, cursor string) ([]XPost, string, error) {
	s.got = cursor
	return s.posts, s.next, s.err
}

func TestXSelectorConnectorPersistsCursor(t *testing.T) {
	cursors := &memCursors{cursor: "old-tok"}
	provider := &scriptedProvider{
		posts: []XPost{
			{ID: "222", Author: "karpathy", Text: "newest", CreatedAt: time.Now().UTC()},
			{ID: "221", Author: "karpathy", Text: "older", CreatedAt: time.Now().UTC()},
		},
		next: "new-tok",
	}
	x := &XSelectorConnector{SelectorType: "author", Value: "karpathy", Provider: provider, Cursors: cursors}

	items, err := x.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if provider.got != "old-tok" {
		t.Errorf("stored cursor not passed: %q", provider.got)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items", len(items))
	}
	if items[0].URL != "https://x.com/karpathy/status/222" {
		t.Errorf("url = %q", items[0].URL)
	}
	if items[0].Type != item.TypeXPost {
		t.Errorf("type = %q", items[0].Type)
	}
	if cursors.cursor != "new-tok" || cursors.lastID != "222" {
		t.Errorf("cursor not persisted: %+v", cursors)
	}
}

func TestXSelectorConnectorNoCursorUpdateOnFailure(t *testing.T) {
	cursors := &memCursors{cursor: "keep"}
	provider := &scriptedProvider{err: errors.New("boom")}
	x := &XSelectorConnector{SelectorType: "theme", Value: "agents", Provider: provider, Cursors: cursors}

	if _, err := x.Fetch(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if cursors.cursor != "keep" {
		t.Errorf("cursor advanced on failure")
	}
}
