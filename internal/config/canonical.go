package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// SourceKind identifies which canonicalization rules apply to a
// configured source value.
type SourceKind string

const (
	KindRSS          SourceKind = "rss"
	KindVideoChannel SourceKind = "video_channel"
	KindVideoQuery   SourceKind = "video_query"
	KindXAuthor      SourceKind = "x_author"
	KindXTheme       SourceKind = "x_theme"
	KindGitHubRepo   SourceKind = "github_repo"
	KindGitHubTopic  SourceKind = "github_topic"
	KindGitHubQuery  SourceKind = "github_query"
	KindGitHubOrg    SourceKind = "github_org"
)

var (
	videoChannelRe = regexp.MustCompile(`^[A-Za-z0-9_-]{5,64}$`)
	xHandleRe      = regexp.MustCompile(`^[a-z0-9_]{1,15}$`)
	githubRepoRe   = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*/[A-Za-z0-9][A-Za-z0-9._-]*$`)
	githubTopicRe  = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,49}$`)
	githubOrgRe    = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-]{0,38}$`)
)

// Canonicalize normalizes one configured source value so equivalent
// spellings map to the same canonical form. Invalid values are a
// config error, not something to fix up silently.
func Canonicalize(kind SourceKind, value string) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", fmt.Errorf("%s source is empty", kind)
	}

	switch kind {
	case KindRSS:
		u, err := url.Parse(v)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return "", fmt.Errorf("rss source %q is not an http(s) URL", value)
		}
		return u.String(), nil

	case KindVideoChannel:
		// Accept a channel URL or a bare channel id.
		if strings.Contains(v, "youtube.com/") {
			if i := strings.Index(v, "/channel/"); i >= 0 {
				v = strings.Trim(v[i+len("/channel/"):], "/")
				if j := strings.IndexAny(v, "/?#"); j >= 0 {
					v = v[:j]
				}
			}
		}
		if !videoChannelRe.MatchString(v) {
			return "", fmt.Errorf("video channel %q is not a channel id", value)
		}
		return v, nil

	case KindVideoQuery, KindGitHubQuery:
		return collapseSpace(v), nil

	case KindXTheme:
		v = collapseSpace(v)
		if len([]rune(v)) < 2 {
			return "", fmt.Errorf("x theme %q is too short", value)
		}
		return v, nil

	case KindXAuthor:
		v = strings.TrimPrefix(v, "@")
		if strings.Contains(v, "x.com/") || strings.Contains(v, "twitter.com/") {
			u, err := url.Parse(v)
			if err == nil {
				v = strings.Trim(u.Path, "/")
			}
			if i := strings.IndexByte(v, '/'); i >= 0 {
				v = v[:i]
			}
		}
		v = strings.ToLower(v)
		if !xHandleRe.MatchString(v) {
			return "", fmt.Errorf("x author %q is not a handle", value)
		}
		return v, nil

	case KindGitHubRepo:
		v = strings.ToLower(trimGitHubURL(v))
		if !githubRepoRe.MatchString(v) {
			return "", fmt.Errorf("github repo %q is not owner/repo", value)
		}
		return v, nil

	case KindGitHubTopic:
		v = strings.ToLower(v)
		if !githubTopicRe.MatchString(v) {
			return "", fmt.Errorf("github topic %q is not a topic slug", value)
		}
		return v, nil

	case KindGitHubOrg:
		// An org URL reduces to its login.
		v = strings.ToLower(trimGitHubURL(v))
		if i := strings.IndexByte(v, '/'); i >= 0 {
			v = v[:i]
		}
		if !githubOrgRe.MatchString(v) {
			return "", fmt.Errorf("github org %q is not an org login", value)
		}
		return v, nil
	}
	return "", fmt.Errorf("unknown source kind %q", kind)
}

// trimGitHubURL strips a github.com URL prefix down to its path.
func trimGitHubURL(v string) string {
	for _, prefix := range []string{"https://github.com/", "http://github.com/", "github.com/"} {
		if strings.HasPrefix(v, prefix) {
			v = strings.Trim(strings.TrimPrefix(v, prefix), "/")
			break
		}
	}
	v = strings.TrimSuffix(v, ".git")
	if i := strings.IndexAny(v, "?#"); i >= 0 {
		v = v[:i]
	}
	return v
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
