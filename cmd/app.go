package cmd

import (
	"log/slog"
	"os"

	"aidigest/internal/config"
	"aidigest/internal/connector"
	"aidigest/internal/deliver"
	"aidigest/internal/llm"
	"aidigest/internal/runlock"
	"aidigest/internal/runner"
	"aidigest/internal/store"
)

// app holds everything a command needs after wiring.
type app struct {
	cfg   *config.Config
	store *store.Store
	log   *slog.Logger
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func openApp() (*app, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, store: st, log: newLogger()}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("closing store", "err", err)
	}
}

// buildRunner assembles the pipeline. preview skips the chat sender so
// a dry run never touches the network for delivery.
func (a *app) buildRunner(preview bool) (*runner.Runner, error) {
	p := &a.cfg.Profile

	var client *llm.Client
	needsLLM := p.LLMEnabled || p.AgentScoringEnabled || p.QualityRepairEnabled
	if needsLLM {
		if key := config.OpenAIKey(); key != "" {
			client = llm.New(key, p.OpenAIModel)
		} else {
			a.log.Warn("LLM features configured but AIDIGEST_OPENAI_KEY is unset, using rules and extractive paths")
		}
	}

	var chat deliver.ChatSender
	if !preview && p.Output.TelegramChatID != 0 {
		token := config.TelegramToken()
		if token == "" {
			a.log.Warn("telegram chat configured but AIDIGEST_TELEGRAM_TOKEN is unset, skipping chat delivery")
		} else {
			tg, err := deliver.NewTelegram(token, p.Output.TelegramChatID)
			if err != nil {
				return nil, err
			}
			chat = tg
		}
	}

	var vault *deliver.Vault
	if p.Output.VaultPath != "" {
		vault = &deliver.Vault{Path: p.Output.VaultPath, Folder: p.Output.VaultFolder, Mode: p.Output.VaultMode}
	}

	return &runner.Runner{
		Store:      a.store,
		Lock:       runlock.New(config.DefaultLockPath(), config.DefaultLockStaleTTL),
		Profile:    p,
		Connectors: a.buildConnectors(),
		Chat:       chat,
		Vault:      vault,
		LLM:        client,
		Logger:     a.log,
	}, nil
}

func (a *app) buildConnectors() []connector.Connector {
	src := a.cfg.Sources
	p := a.cfg.Profile

	var out []connector.Connector
	for _, u := range src.RSS {
		out = append(out, connector.NewFeedConnector(u))
	}
	for _, c := range src.VideoChannels {
		out = append(out, &connector.VideoChannelConnector{ChannelID: c})
	}
	for _, q := range src.VideoQueries {
		out = append(out, &connector.VideoQueryConnector{Query: q})
	}

	if src.XInboxPath != "" {
		out = append(out, &connector.XInboxConnector{Path: src.XInboxPath})
	}
	var xProvider connector.XSelectorProvider = connector.InboxOnlyProvider{}
	if token := config.XToken(); token != "" {
		xProvider = connector.NewAPIProvider(token)
	}
	for _, author := range src.XAuthors {
		out = append(out, &connector.XSelectorConnector{
			SelectorType: "author", Value: author, Provider: xProvider, Cursors: a.store,
		})
	}
	for _, theme := range src.XThemes {
		out = append(out, &connector.XSelectorConnector{
			SelectorType: "theme", Value: theme, Provider: xProvider, Cursors: a.store,
		})
	}

	gh := connector.NewGitHubClient(config.GitHubToken())
	opts := connector.GitHubOptions{
		MinStars:        p.GitHubMinStars,
		IncludeForks:    p.GitHubIncludeForks,
		IncludeArchived: p.GitHubIncludeArchived,
		MaxReposPerOrg:  p.GitHubMaxReposPerOrg,
		MaxItemsPerOrg:  p.GitHubMaxItemsPerOrg,
		RepoMaxAgeDays:  p.GitHubRepoMaxAgeDays,
		ActivityMaxDays: p.GitHubActivityMaxAge,
	}
	for _, repo := range src.GitHubRepos {
		out = append(out, &connector.GitHubRepoConnector{Client: gh, Repo: repo, Opts: opts})
	}
	for _, topic := range src.GitHubTopics {
		out = append(out, &connector.GitHubSearchConnector{Client: gh, Topic: topic, Opts: opts})
	}
	for _, q := range src.GitHubQueries {
		out = append(out, &connector.GitHubSearchConnector{Client: gh, Query: q, Opts: opts})
	}
	for _, org := range src.GitHubOrgs {
		out = append(out, &connector.GitHubOrgConnector{Client: gh, Org: org, Opts: opts})
	}
	return out
}
