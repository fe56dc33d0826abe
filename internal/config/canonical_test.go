package config

import "testing"

func TestCanonicalizeRSS(t *testing.T) {
	got, err := Canonicalize(KindRSS, "  https://example.com/feed.xml ")
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if got != "https://example.com/feed.xml" {
		t.Errorf("got %q", got)
	}
	if _, err := Canonicalize(KindRSS, "ftp://example.com/feed"); err == nil {
		t.Errorf("expected error for non-http scheme")
	}
	if _, err := Canonicalize(KindRSS, "not a url"); err == nil {
		t.Errorf("expected error for bad URL")
	}
}

func TestCanonicalizeVideoChannel(t *testing.T) {
	got, err := Canonicalize(KindVideoChannel, "https://www.youtube.com/channel/UC2D2CMWXMOVWx7giW1n3LIg/videos")
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if got != "UC2D2CMWXMOVWx7giW1n3LIg" {
		t.Errorf("got %q", got)
	}
	if _, err := Canonicalize(KindVideoChannel, "ab"); err == nil {
		t.Errorf("expected error for short id")
	}
}

func TestCanonicalizeXAuthor(t *testing.T) {
	cases := []struct{ in, want string }{
		{"@Karpathy", "karpathy"},
		{"https://x.com/Karpathy", "karpathy"},
		{"https://twitter.com/Karpathy/", "karpathy"},
		{"simonw", "simonw"},
	}
	for _, c := range cases {
		got, err := Canonicalize(KindXAuthor, c.in)
		if err != nil {
			t.Fatalf("canonicalize %q: %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("Canonicalize(x_author, %q) = %q, want %q", c.in, got, c.want)
		}
	}
	if _, err := Canonicalize(KindXAuthor, "way-too-long-for-a-handle"); err == nil {
		t.Errorf("expected error for invalid handle")
	}
}

func TestCanonicalizeGitHubRepo(t *testing.T) {
	got, err := Canonicalize(KindGitHubRepo, "https://github.com/openai/openai-python.git")
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if got != "openai/openai-python" {
		t.Errorf("got %q", got)
	}
	if _, err := Canonicalize(KindGitHubRepo, "just-a-name"); err == nil {
		t.Errorf("expected error without owner")
	}
}

func TestCanonicalizeGitHubRepoLowercases(t *testing.T) {
	got, err := Canonicalize(KindGitHubRepo, "OpenAI/OpenAI-Python")
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if got != "openai/openai-python" {
		t.Errorf("got %q", got)
	}
}

func TestCanonicalizeGitHubOrgLowercases(t *testing.T) {
	got, err := Canonicalize(KindGitHubOrg, "Anthropics")
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if got != "anthropics" {
		t.Errorf("got %q", got)
	}
}

func TestCanonicalizeXTheme(t *testing.T) {
	got, err := Canonicalize(KindXTheme, "  llm   evals ")
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if got != "llm evals" {
		t.Errorf("got %q", got)
	}
	if _, err := Canonicalize(KindXTheme, "a"); err == nil {
		t.Errorf("expected error for one-character theme")
	}
}

func TestCanonicalizeGitHubOrgURLReducesToLogin(t *testing.T) {
	got, err := Canonicalize(KindGitHubOrg, "https://github.com/anthropics/some/extra")
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if got != "anthropics" {
		t.Errorf("got %q", got)
	}
}

func TestCanonicalizeCollapsesQueryWhitespace(t *testing.T) {
	got, err := Canonicalize(KindVideoQuery, "  llm   agents \t evals ")
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if got != "llm agents evals" {
		t.Errorf("got %q", got)
	}
}

func TestCanonicalizeEmpty(t *testing.T) {
	if _, err := Canonicalize(KindGitHubTopic, "   "); err == nil {
		t.Errorf("expected error for empty value")
	}
}
