package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"aidigest/internal/item"
)

// GitHubOptions carries the profile knobs for code-host fetching.
type GitHubOptions struct {
	MinStars        int
	IncludeForks    bool
	IncludeArchived bool
	MaxReposPerOrg  int
	MaxItemsPerOrg  int
	RepoMaxAgeDays  int
	ActivityMaxDays int
}

// GitHubClient is a thin REST client for the code-host API.
type GitHubClient struct {
	BaseURL string
	Token   string

	httpClient *http.Client
}

// NewGitHubClient returns a client for api.github.com. The token is
// optional; when present it is sent as a bearer token.
func NewGitHubClient(token string) *GitHubClient {
	return &GitHubClient{
		BaseURL:    "https://api.github.com",
		Token:      token,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

func (c *GitHubClient) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("github %s: HTTP %d: %s", path, resp.StatusCode, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type ghRepo struct {
	FullName    string    `json:"full_name"`
	HTMLURL     string    `json:"html_url"`
	Description string    `json:"description"`
	Stars       int       `json:"stargazers_count"`
	Fork        bool      `json:"fork"`
	Archived    bool      `json:"archived"`
	PushedAt    time.Time `json:"pushed_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CreatedAt   time.Time `json:"created_at"`
}

type ghRelease struct {
	Name        string    `json:"name"`
	TagName     string    `json:"tag_name"`
	HTMLURL     string    `json:"html_url"`
	Body        string    `json:"body"`
	PublishedAt time.Time `json:"published_at"`
}

type ghIssue struct {
	Title     string    `json:"title"`
	HTMLURL   string    `json:"html_url"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	User      struct {
		Login string `json:"login"`
	} `json:"user"`
	PullRequest *struct{} `json:"pull_request"`
}

// GitHubRepoConnector fetches recent releases and open issues/PRs for
// one repository.
type GitHubRepoConnector struct {
	Client *GitHubClient
	Repo   string // owner/repo
	Opts   GitHubOptions
}

func (g *GitHubRepoConnector) Name() string { return "github:" + g.Repo }

func (g *GitHubRepoConnector) Fetch(ctx context.Context) ([]item.Item, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -g.Opts.ActivityMaxDays)

	var items []item.Item
	releases, err := g.releases(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	items = append(items, releases...)

	var issues []ghIssue
	q := url.Values{"state": {"open"}, "per_page": {"30"}, "sort": {"created"}, "direction": {"desc"}}
	if err := g.Client.get(ctx, "/repos/"+g.Repo+"/issues", q, &issues); err != nil {
		return nil, err
	}
	for _, is := range issues {
		if is.CreatedAt.Before(cutoff) {
			continue
		}
		typ := item.TypeGitHubIssue
		if is.PullRequest != nil {
			typ = item.TypeGitHubPR
		}
		it := item.New(is.HTMLURL, is.Title, g.Name(), typ)
		it.Description = truncateText(is.Body, 500)
		it.RawText = is.Body
		it.Author = is.User.Login
		created := is.CreatedAt.UTC()
		it.PublishedAt = &created
		items = append(items, it)
	}
	return items, nil
}

func (g *GitHubRepoConnector) releases(ctx context.Context, cutoff time.Time) ([]item.Item, error) {
	var releases []ghRelease
	q := url.Values{"per_page": {"10"}}
	if err := g.Client.get(ctx, "/repos/"+g.Repo+"/releases", q, &releases); err != nil {
		return nil, err
	}
	var items []item.Item
	for _, r := range releases {
		if r.PublishedAt.Before(cutoff) {
			continue
		}
		title := r.Name
		if title == "" {
			title = r.TagName
		}
		it := item.New(r.HTMLURL, g.Repo+" "+title, g.Name(), item.TypeGitHubRelease)
		it.Description = truncateText(r.Body, 500)
		it.RawText = r.Body
		pub := r.PublishedAt.UTC()
		it.PublishedAt = &pub
		items = append(items, it)
	}
	return items, nil
}

// GitHubSearchConnector fetches recently updated repositories
// matching a topic or a free-text search query.
type GitHubSearchConnector struct {
	Client *GitHubClient
	// Topic is set for topic sources; Query for search-query sources.
	Topic string
	Query string
	Opts  GitHubOptions
}

func (g *GitHubSearchConnector) Name() string {
	if g.Topic != "" {
		return "github_topic:" + g.Topic
	}
	return "github_query:" + g.Query
}

func (g *GitHubSearchConnector) Fetch(ctx context.Context) ([]item.Item, error) {
	terms := []string{}
	if g.Topic != "" {
		terms = append(terms, "topic:"+g.Topic)
	} else {
		terms = append(terms, g.Query)
	}
	if g.Opts.MinStars > 0 {
		terms = append(terms, fmt.Sprintf("stars:>=%d", g.Opts.MinStars))
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -g.Opts.RepoMaxAgeDays)
	terms = append(terms, "pushed:>="+cutoff.Format("2006-01-02"))

	var result struct {
		Items []ghRepo `json:"items"`
	}
	q := url.Values{
		"q":        {strings.Join(terms, " ")},
		"sort":     {"updated"},
		"order":    {"desc"},
		"per_page": {"20"},
	}
	if err := g.Client.get(ctx, "/search/repositories", q, &result); err != nil {
		return nil, err
	}

	var items []item.Item
	for _, r := range result.Items {
		if !keepRepo(r, g.Opts, cutoff) {
			continue
		}
		items = append(items, repoItem(r, g.Name()))
	}
	return items, nil
}

// GitHubOrgConnector enumerates an organization's recently updated
// repositories and emits one repo-update item per kept repo, plus
// recent releases, under the per-org caps.
type GitHubOrgConnector struct {
	Client *GitHubClient
	Org    string
	Opts   GitHubOptions
}

func (g *GitHubOrgConnector) Name() string { return "github_org:" + g.Org }

func (g *GitHubOrgConnector) Fetch(ctx context.Context) ([]item.Item, error) {
	var repos []ghRepo
	q := url.Values{"sort": {"updated"}, "direction": {"desc"}, "per_page": {"50"}}
	if err := g.Client.get(ctx, "/orgs/"+g.Org+"/repos", q, &repos); err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -g.Opts.RepoMaxAgeDays)
	activityCutoff := time.Now().UTC().AddDate(0, 0, -g.Opts.ActivityMaxDays)

	var items []item.Item
	kept := 0
	for _, r := range repos {
		if kept >= g.Opts.MaxReposPerOrg || len(items) >= g.Opts.MaxItemsPerOrg {
			break
		}
		if !keepRepo(r, g.Opts, cutoff) {
			continue
		}
		kept++
		items = append(items, repoItem(r, g.Name()))

		rc := GitHubRepoConnector{Client: g.Client, Repo: r.FullName, Opts: g.Opts}
		releases, err := rc.releases(ctx, activityCutoff)
		if err != nil {
			// Repo listing succeeded; release fetch failures for one
			// repo should not sink the whole org.
			continue
		}
		for _, rel := range releases {
			if len(items) >= g.Opts.MaxItemsPerOrg {
				break
			}
			rel.Source = g.Name()
			items = append(items, rel)
		}
	}
	return items, nil
}

func keepRepo(r ghRepo, opts GitHubOptions, cutoff time.Time) bool {
	if r.Fork && !opts.IncludeForks {
		return false
	}
	if r.Archived && !opts.IncludeArchived {
		return false
	}
	if r.Stars < opts.MinStars {
		return false
	}
	updated := r.PushedAt
	if updated.IsZero() {
		updated = r.UpdatedAt
	}
	return !updated.Before(cutoff)
}

func repoItem(r ghRepo, source string) item.Item {
	it := item.New(r.HTMLURL, r.FullName, source, item.TypeGitHubRepo)
	it.Description = r.Description
	it.RawText = fmt.Sprintf("%s (%d stars). %s", r.FullName, r.Stars, r.Description)
	updated := r.PushedAt.UTC()
	if !updated.IsZero() {
		it.PublishedAt = &updated
	}
	return it
}

func truncateText(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
