// Package config loads the operator profile and source lists from
// YAML files under the XDG config directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// Sources lists the configured inputs per source kind, already
// canonicalized by Load.
type Sources struct {
	RSS           []string `yaml:"rss"`
	VideoChannels []string `yaml:"video_channels"`
	VideoQueries  []string `yaml:"video_queries"`
	XAuthors      []string `yaml:"x_authors"`
	XThemes       []string `yaml:"x_themes"`
	XInboxPath    string   `yaml:"x_inbox_path"`
	GitHubRepos   []string `yaml:"github_repos"`
	GitHubTopics  []string `yaml:"github_topics"`
	GitHubQueries []string `yaml:"github_queries"`
	GitHubOrgs    []string `yaml:"github_orgs"`
}

// Count returns the number of configured source entries.
func (s Sources) Count() int {
	n := len(s.RSS) + len(s.VideoChannels) + len(s.VideoQueries) +
		len(s.XAuthors) + len(s.XThemes) +
		len(s.GitHubRepos) + len(s.GitHubTopics) + len(s.GitHubQueries) + len(s.GitHubOrgs)
	if s.XInboxPath != "" {
		n++
	}
	return n
}

// Output controls where the digest is delivered.
type Output struct {
	TelegramChatID int64  `yaml:"telegram_chat_id"`
	VaultPath      string `yaml:"vault_path"`
	VaultFolder    string `yaml:"vault_folder"`
	// "timestamped" writes one note per run, "daily" one note per day.
	VaultMode string `yaml:"vault_mode"`
}

// Profile holds every knob of the scoring, selection, summarization
// and quality-repair stages. Zero values fall back to the defaults
// applied in Load.
type Profile struct {
	Topics         []string `yaml:"topics"`
	Entities       []string `yaml:"entities"`
	Exclusions     []string `yaml:"exclusions"`
	TrustedSources []string `yaml:"trusted_sources"`
	BlockedSources []string `yaml:"blocked_sources"`

	TrustedOrgsGitHub     []string `yaml:"trusted_orgs_github"`
	GitHubMinStars        int      `yaml:"github_min_stars"`
	GitHubIncludeForks    bool     `yaml:"github_include_forks"`
	GitHubIncludeArchived bool     `yaml:"github_include_archived"`
	GitHubMaxReposPerOrg  int      `yaml:"github_max_repos_per_org"`
	GitHubMaxItemsPerOrg  int      `yaml:"github_max_items_per_org"`
	GitHubRepoMaxAgeDays  int      `yaml:"github_repo_max_age_days"`
	GitHubActivityMaxAge  int      `yaml:"github_activity_max_age_days"`

	LLMEnabled          bool   `yaml:"llm_enabled"`
	AgentScoringEnabled bool   `yaml:"agent_scoring_enabled"`
	OpenAIModel         string `yaml:"openai_model"`

	MaxAgentItemsPerRun      int     `yaml:"max_agent_items_per_run"`
	MaxLLMSummariesPerRun    int     `yaml:"max_llm_summaries_per_run"`
	MaxLLMRequestsPerRun     int     `yaml:"max_llm_requests_per_run"`
	AgentScoringRetries      int     `yaml:"agent_scoring_retry_attempts"`
	AgentScoringTextMaxChars int     `yaml:"agent_scoring_text_max_chars"`
	MinLLMCoverage           float64 `yaml:"min_llm_coverage"`
	MaxFallbackShare         float64 `yaml:"max_fallback_share"`

	QualityRepairEnabled  bool    `yaml:"quality_repair_enabled"`
	QualityRepairThresh   int     `yaml:"quality_repair_threshold"`
	QualityRepairPoolSize int     `yaml:"quality_repair_candidate_pool_size"`
	QualityRepairFailOpen bool    `yaml:"quality_repair_fail_open"`
	QualityLearning       bool    `yaml:"quality_learning_enabled"`
	QualityLearningMaxOff float64 `yaml:"quality_learning_max_offset"`
	QualityLearningHL     float64 `yaml:"quality_learning_half_life_days"`

	MustReadMaxPerSource int `yaml:"must_read_max_per_source"`

	Output Output `yaml:"output"`
}

// Defaults used when the profile leaves a knob unset.
const (
	DefaultRepoMaxAgeDays     = 30
	DefaultActivityMaxAgeDays = 14
	DefaultAgentRetries       = 1
	DefaultAgentTextMaxChars  = 4000
	DefaultRepairThreshold    = 80
	DefaultRepairPoolSize     = 8
	DefaultLearningMaxOffset  = 8.0
	DefaultLearningHalfLife   = 14.0
	DefaultMustReadPerSource  = 2
	DefaultLockStaleTTL       = 6 * time.Hour
	DefaultConnectorTimeout   = 20 * time.Second
	DefaultLLMTimeout         = 30 * time.Second
)

// ApplyDefaults fills unset profile fields with their defaults.
func (p *Profile) ApplyDefaults() {
	if p.GitHubRepoMaxAgeDays <= 0 {
		p.GitHubRepoMaxAgeDays = DefaultRepoMaxAgeDays
	}
	if p.GitHubActivityMaxAge <= 0 {
		p.GitHubActivityMaxAge = DefaultActivityMaxAgeDays
	}
	if p.GitHubMaxReposPerOrg <= 0 {
		p.GitHubMaxReposPerOrg = 10
	}
	if p.GitHubMaxItemsPerOrg <= 0 {
		p.GitHubMaxItemsPerOrg = 20
	}
	if p.AgentScoringRetries <= 0 {
		p.AgentScoringRetries = DefaultAgentRetries
	}
	if p.AgentScoringTextMaxChars <= 0 {
		p.AgentScoringTextMaxChars = DefaultAgentTextMaxChars
	}
	if p.MaxAgentItemsPerRun <= 0 {
		p.MaxAgentItemsPerRun = 25
	}
	if p.MaxLLMSummariesPerRun <= 0 {
		p.MaxLLMSummariesPerRun = 20
	}
	if p.MaxLLMRequestsPerRun <= 0 {
		p.MaxLLMRequestsPerRun = 60
	}
	if p.MinLLMCoverage <= 0 {
		p.MinLLMCoverage = 0.6
	}
	if p.MaxFallbackShare <= 0 {
		p.MaxFallbackShare = 0.5
	}
	if p.QualityRepairThresh <= 0 {
		p.QualityRepairThresh = DefaultRepairThreshold
	}
	if p.QualityRepairPoolSize < DefaultRepairPoolSize {
		p.QualityRepairPoolSize = DefaultRepairPoolSize
	}
	if p.QualityLearningMaxOff <= 0 {
		p.QualityLearningMaxOff = DefaultLearningMaxOffset
	}
	if p.QualityLearningHL <= 0 {
		p.QualityLearningHL = DefaultLearningHalfLife
	}
	if p.MustReadMaxPerSource <= 0 {
		p.MustReadMaxPerSource = DefaultMustReadPerSource
	}
	if p.OpenAIModel == "" {
		p.OpenAIModel = "gpt-4o-mini"
	}
	if p.Output.VaultFolder == "" {
		p.Output.VaultFolder = "digests"
	}
	if p.Output.VaultMode == "" {
		p.Output.VaultMode = "timestamped"
	}
}

// Config is the top-level on-disk configuration.
type Config struct {
	Profile Profile `yaml:"profile"`
	Sources Sources `yaml:"sources"`
}

// DefaultConfigPath returns the XDG location of the config file.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "aidigest", "config.yaml")
}

// DefaultDBPath returns the XDG location of the database file.
func DefaultDBPath() string {
	return filepath.Join(xdg.DataHome, "aidigest", "aidigest.db")
}

// DefaultLockPath returns the XDG location of the run-lock file.
func DefaultLockPath() string {
	return filepath.Join(xdg.StateHome, "aidigest", "run.lock")
}

// OpenAIKey resolves the LLM API key from the environment.
func OpenAIKey() string { return os.Getenv("AIDIGEST_OPENAI_KEY") }

// TelegramToken resolves the chat bot token from the environment.
func TelegramToken() string { return os.Getenv("AIDIGEST_TELEGRAM_TOKEN") }

// GitHubToken resolves the code-host token from the environment.
func GitHubToken() string { return os.Getenv("AIDIGEST_GITHUB_TOKEN") }

// XToken resolves the social search API bearer token, empty when the
// installation runs inbox-only.
func XToken() string { return os.Getenv("AIDIGEST_X_TOKEN") }

// Load reads, validates and canonicalizes the configuration at path.
// An empty path uses the default XDG location. A missing file yields
// an empty config with profile defaults applied.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.Profile.ApplyDefaults()
			return &cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.Profile.ApplyDefaults()
	if err := canonicalizeSources(&cfg.Sources); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func canonicalizeSources(s *Sources) error {
	lists := []struct {
		kind   SourceKind
		values []string
	}{
		{KindRSS, s.RSS},
		{KindVideoChannel, s.VideoChannels},
		{KindVideoQuery, s.VideoQueries},
		{KindXAuthor, s.XAuthors},
		{KindXTheme, s.XThemes},
		{KindGitHubRepo, s.GitHubRepos},
		{KindGitHubTopic, s.GitHubTopics},
		{KindGitHubQuery, s.GitHubQueries},
		{KindGitHubOrg, s.GitHubOrgs},
	}
	for _, l := range lists {
		for i, v := range l.values {
			c, err := Canonicalize(l.kind, v)
			if err != nil {
				return fmt.Errorf("source %d: %w", i, err)
			}
			l.values[i] = c
		}
	}
	return nil
}
