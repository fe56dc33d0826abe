package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
profile:
  topics: [agents]
sources:
  rss:
    - https://example.com/feed.xml
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	p := cfg.Profile
	if p.AgentScoringRetries != DefaultAgentRetries {
		t.Errorf("retries = %d, want %d", p.AgentScoringRetries, DefaultAgentRetries)
	}
	if p.QualityRepairThresh != DefaultRepairThreshold {
		t.Errorf("repair threshold = %d, want %d", p.QualityRepairThresh, DefaultRepairThreshold)
	}
	if p.MustReadMaxPerSource != DefaultMustReadPerSource {
		t.Errorf("per-source cap = %d, want %d", p.MustReadMaxPerSource, DefaultMustReadPerSource)
	}
	if p.OpenAIModel != "gpt-4o-mini" {
		t.Errorf("model = %q", p.OpenAIModel)
	}
	if p.QualityLearningMaxOff != DefaultLearningMaxOffset {
		t.Errorf("max offset = %v", p.QualityLearningMaxOff)
	}
}

func TestLoadCanonicalizesSources(t *testing.T) {
	path := writeConfig(t, `
sources:
  x_authors:
    - "@Karpathy"
  github_repos:
    - https://github.com/openai/openai-python
  github_orgs:
    - https://github.com/anthropics
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Sources.XAuthors[0] != "karpathy" {
		t.Errorf("author = %q", cfg.Sources.XAuthors[0])
	}
	if cfg.Sources.GitHubRepos[0] != "openai/openai-python" {
		t.Errorf("repo = %q", cfg.Sources.GitHubRepos[0])
	}
	if cfg.Sources.GitHubOrgs[0] != "anthropics" {
		t.Errorf("org = %q", cfg.Sources.GitHubOrgs[0])
	}
}

func TestLoadRejectsInvalidSource(t *testing.T) {
	path := writeConfig(t, `
sources:
  rss:
    - "definitely not a url"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for invalid source")
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Sources.Count() != 0 {
		t.Errorf("expected no sources")
	}
	if cfg.Profile.MaxLLMRequestsPerRun == 0 {
		t.Errorf("defaults not applied")
	}
}

func TestSourcesCount(t *testing.T) {
	s := Sources{
		RSS:         []string{"a", "b"},
		XInboxPath:  "/tmp/inbox.txt",
		GitHubRepos: []string{"o/r"},
	}
	if s.Count() != 4 {
		t.Errorf("count = %d, want 4", s.Count())
	}
}
