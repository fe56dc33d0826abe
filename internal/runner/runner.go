// Package runner orchestrates one digest run: fetch fan-out,
// filtering, scoring, selection, summarization, optional quality
// repair, delivery and persistence, under a single-writer run lock.
package runner

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"aidigest/internal/config"
	"aidigest/internal/connector"
	"aidigest/internal/dedupe"
	"aidigest/internal/deliver"
	"aidigest/internal/digest"
	"aidigest/internal/item"
	"aidigest/internal/llm"
	"aidigest/internal/quality"
	"aidigest/internal/runlock"
	"aidigest/internal/sanitize"
	"aidigest/internal/score"
	"aidigest/internal/store"
	"aidigest/internal/summarize"
	"aidigest/internal/window"
)

// Runner owns the in-flight run. All collaborators are injected;
// Chat, Vault and LLM may be nil to disable the respective stages.
type Runner struct {
	Store      *store.Store
	Lock       *runlock.Lock
	Profile    *config.Profile
	Connectors []connector.Connector
	Chat       deliver.ChatSender
	Vault      *deliver.Vault
	LLM        *llm.Client
	Logger     *slog.Logger
}

// Options select the run mode.
type Options struct {
	// UseLastCompletedWindow starts the window where the last
	// completed run ended instead of 24 hours ago.
	UseLastCompletedWindow bool
	// OnlyNew drops items already in the seen-set.
	OnlyNew bool
	// AllowSeenFallback permits re-admitting seen videos when the
	// video section would otherwise be empty.
	AllowSeenFallback bool
	// Preview renders without delivering or updating the seen-set.
	Preview bool
	// Progress receives timeline events as they are emitted.
	Progress ProgressFunc
}

// ErrCanceled is returned when the run is canceled before persistence.
var ErrCanceled = errors.New("run canceled")

// Run executes one digest run and returns its report. A held
// non-stale lock makes Run return runlock.ErrHeld without touching
// any state; the caller decides how to respond.
func (r *Runner) Run(ctx context.Context, opts Options) (RunReport, error) {
	log := r.Logger
	if log == nil {
		log = slog.Default()
	}

	runID := newRunID()
	report := RunReport{RunID: runID, Status: StatusSuccess}

	if err := r.Lock.Acquire(runID); err != nil {
		return report, err
	}
	defer func() {
		if err := r.Lock.Release(runID); err != nil {
			log.Warn("releasing run lock", "err", err)
		}
	}()

	now := time.Now().UTC()
	var lastEnd time.Time
	if opts.UseLastCompletedWindow {
		end, err := r.Store.LastCompletedWindowEnd()
		if err != nil {
			return report, err
		}
		lastEnd = end
	}
	win := window.Compute(now, opts.UseLastCompletedWindow, lastEnd)

	if err := r.Store.StartRun(runID, now, win.Start, win.End); err != nil {
		return report, err
	}

	em := newEmitter(r.Store, runID, opts.Progress, log)
	em.info("run_start", "digest run started", map[string]any{
		"window_start": win.Start.Format(time.RFC3339),
		"window_end":   win.End.Format(time.RFC3339),
		"only_new":     opts.OnlyNew,
		"preview":      opts.Preview,
	})

	var sourceErrors, summaryErrors []string

	// Fetch fan-out.
	fetched := connector.FetchAll(ctx, r.Connectors)
	for _, se := range fetched.Errors {
		sourceErrors = append(sourceErrors, se.Error())
		em.warn("fetch_"+se.Source, "source fetch failed", map[string]any{"error": se.Err.Error()})
	}
	for name, count := range fetched.PerSource {
		em.info("fetch_"+name, "source fetched", map[string]any{"count": count})
	}
	report.SourceCount = len(r.Connectors)
	report.Context.Fetched = FetchContext{Total: len(fetched.Items), PerSource: fetched.PerSource}
	for _, it := range fetched.Items {
		if it.Type == item.TypeVideo {
			report.Context.Video.Fetched++
		}
	}

	if len(fetched.Items) == 0 && len(sourceErrors) > 0 {
		report.Status = StatusFailed
		report.SourceErrors = sourceErrors
		em.error("run_finish", "no items fetched and sources failed", nil)
		if err := r.Store.FinishRun(runID, string(StatusFailed), sourceErrors, nil); err != nil {
			return report, err
		}
		return report, nil
	}

	if err := r.checkCanceled(ctx, runID, em); err != nil {
		return report, err
	}

	// Normalize, dedupe, window, seen-set.
	items := sanitize.Normalize(fetched.Items)
	report.Context.Pipeline.Normalized = len(items)
	items = dedupe.Dedupe(items)
	report.Context.Pipeline.Deduped = len(items)

	var seen map[string]bool
	if opts.OnlyNew {
		var err error
		seen, err = r.Store.Seen()
		if err != nil {
			return r.fail(report, runID, em, sourceErrors, err)
		}
	}
	wres := window.Filter(items, win, seen, window.Options{
		OnlyNew:           opts.OnlyNew,
		AllowSeenFallback: opts.AllowSeenFallback,
	})
	items = wres.Kept
	report.Context.Filtering.DroppedOld = wres.DroppedOld
	report.Context.Filtering.DroppedSeen = wres.DroppedSeen
	report.Context.Filtering.SeenReaddedVideos = wres.SeenReaddedVideos

	scorer, budget := r.buildScorer()
	items, blocked := scorer.Filter(items)
	report.Context.Filtering.DroppedBlocked = blocked
	report.Context.Filtering.Remaining = len(items)
	em.info("filter", "items filtered", map[string]any{
		"dropped_old":         wres.DroppedOld,
		"dropped_seen":        wres.DroppedSeen,
		"seen_readded_videos": wres.SeenReaddedVideos,
		"dropped_blocked":     blocked,
		"remaining":           len(items),
	})

	if err := r.checkCanceled(ctx, runID, em); err != nil {
		return report, err
	}

	// Scoring.
	em.info("score", "scoring items", map[string]any{"count": len(items)})
	scored, outcome := scorer.ScoreAll(ctx, items)
	summaryErrors = append(summaryErrors, outcome.Errors...)
	report.Context.Scoring = ScoringContext{
		Budgeted:       outcome.Budgeted,
		AgentScored:    outcome.AgentScored,
		RulesFallbacks: outcome.RulesFallbacks,
		Overflow:       outcome.Overflow,
		CacheHits:      outcome.CacheHits,
		Coverage:       outcome.Coverage(),
	}
	em.info("score_progress", "scoring finished", map[string]any{
		"agent_scored": outcome.AgentScored,
		"fallbacks":    outcome.RulesFallbacks,
		"cache_hits":   outcome.CacheHits,
	})

	coverageTriggered := outcome.BelowThreshold(r.Profile.MinLLMCoverage, r.Profile.MaxFallbackShare)
	if coverageTriggered {
		summaryErrors = append(summaryErrors, score.CoverageErr)
		em.warn("score", score.CoverageErr, map[string]any{
			"coverage":       outcome.Coverage(),
			"fallback_share": outcome.FallbackShare(),
		})
	}

	// Selection with learning overrides.
	var overrides map[string]float64
	if r.Profile.QualityLearning {
		weights, err := r.Store.Weights()
		if err != nil {
			return r.fail(report, runID, em, sourceErrors, err)
		}
		overrides = quality.RankOverrides(scored, weights, now, r.Profile.QualityLearningHL, r.Profile.QualityLearningMaxOff)
	}
	sections := digest.Select(scored, overrides, r.Profile.MustReadMaxPerSource)
	em.info("select", "sections selected", map[string]any{
		"must_read": len(sections.MustRead),
		"skim":      len(sections.Skim),
		"videos":    len(sections.Videos),
	})

	if err := r.checkCanceled(ctx, runID, em); err != nil {
		return report, err
	}

	// Summarize the selected set only.
	summaries, sumErrs := r.summarizeSelected(ctx, sections, budget, em)
	summaryErrors = append(summaryErrors, sumErrs...)

	// Quality repair.
	var eval *quality.Evaluation
	var delta quality.Delta
	repairFailedClosed := false
	if r.Profile.QualityRepairEnabled && r.LLM != nil {
		repairer := &quality.Repairer{
			Client:    r.LLM,
			Threshold: r.Profile.QualityRepairThresh,
			PoolSize:  r.Profile.QualityRepairPoolSize,
			FailOpen:  r.Profile.QualityRepairFailOpen,
		}
		ranked := digest.Rank(scored, overrides)
		res := repairer.Repair(ctx, sections, ranked, overrides)
		switch {
		case res.Skipped:
			em.info("quality_repair", "skipped: not enough candidates", nil)
		case res.Failed:
			summaryErrors = append(summaryErrors, "quality_repair: "+res.Err.Error())
			em.warn("quality_repair", "repair failed", map[string]any{"error": res.Err.Error()})
			if !r.Profile.QualityRepairFailOpen {
				repairFailedClosed = true
			}
		default:
			sections = res.Sections
			eval = res.Eval
			delta = res.Delta
			em.info("quality_repair", "evaluated", map[string]any{
				"quality_score": res.Eval.QualityScore,
				"repaired":      res.Eval.Repaired,
			})
		}
	}

	report.MustReadCount = len(sections.MustRead)
	report.SkimCount = len(sections.Skim)
	report.VideoCount = len(sections.Videos)
	report.Context.Selection = SelectionContext{
		MustRead: len(sections.MustRead),
		Skim:     len(sections.Skim),
		Videos:   len(sections.Videos),
	}
	report.Context.Video.Selected = len(sections.Videos)
	if sections.Total() < 3 {
		report.Context.SparseNote = fmt.Sprintf("only %d items selected in this window", sections.Total())
	}

	// Render.
	chatText := deliver.RenderChat(sections, summaries)
	noteText := deliver.RenderMarkdown(runID, now, sections, summaries)
	em.info("render", "digest rendered", map[string]any{"chat_len": len(chatText), "note_len": len(noteText)})

	// Deliver.
	deliveryFailed := false
	if opts.Preview {
		report.PreviewChat = chatText
		report.PreviewMarkdown = noteText
		em.info("deliver", "preview mode: delivery skipped", nil)
	} else {
		if r.Chat != nil {
			if err := r.Chat.Send(ctx, chatText); err != nil {
				deliveryFailed = true
				sourceErrors = append(sourceErrors, "telegram: "+err.Error())
				em.error("deliver", "chat delivery failed", map[string]any{"error": err.Error()})
			}
		}
		if r.Vault != nil {
			path, err := r.Vault.Write(runID, now, noteText)
			if err != nil {
				deliveryFailed = true
				sourceErrors = append(sourceErrors, "vault: "+err.Error())
				em.error("deliver", "vault write failed", map[string]any{"error": err.Error()})
			} else {
				em.info("deliver", "vault note written", map[string]any{"path": path})
			}
		}
	}

	// Persist. Cancellation is refused from here on.
	if err := r.Store.UpsertItems(items); err != nil {
		return r.fail(report, runID, em, sourceErrors, err)
	}
	allScores := make([]item.Score, 0, len(scored))
	for _, si := range scored {
		allScores = append(allScores, si.Score)
	}
	if err := r.Store.InsertScores(runID, allScores); err != nil {
		return r.fail(report, runID, em, sourceErrors, err)
	}
	if eval != nil {
		if err := r.Store.SaveQualityEval(runID, *eval); err != nil {
			return r.fail(report, runID, em, sourceErrors, err)
		}
	}
	if !opts.Preview {
		var keys []string
		for _, si := range sections.All() {
			keys = append(keys, si.Item.CanonicalKey())
		}
		if err := r.Store.AddSeen(keys); err != nil {
			return r.fail(report, runID, em, sourceErrors, err)
		}
		if r.Profile.QualityLearning && len(delta) > 0 {
			if err := r.Store.ApplyLearningDelta(delta, r.Profile.QualityLearningMaxOff); err != nil {
				return r.fail(report, runID, em, sourceErrors, err)
			}
		}
	}

	// Classify.
	switch {
	case len(sourceErrors) > 0, len(summaryErrors) > 0, deliveryFailed, coverageTriggered, repairFailedClosed:
		report.Status = StatusPartial
	default:
		report.Status = StatusSuccess
	}
	report.SourceErrors = sourceErrors
	report.SummaryErrors = summaryErrors

	em.info("run_finish", "digest run finished", map[string]any{"status": string(report.Status)})
	if err := r.Store.FinishRun(runID, string(report.Status), sourceErrors, summaryErrors); err != nil {
		return report, err
	}
	return report, nil
}

// buildScorer assembles the scoring stage and the request budget the
// scoring and summarization paths share.
func (r *Runner) buildScorer() (*score.Scorer, *llm.Budget) {
	budget := llm.NewBudget(r.Profile.MaxLLMRequestsPerRun)
	var agent *score.AgentScorer
	if r.Profile.AgentScoringEnabled && r.LLM != nil {
		agent = &score.AgentScorer{
			Client:       r.LLM,
			Budget:       budget,
			Cache:        r.Store,
			MaxTextChars: r.Profile.AgentScoringTextMaxChars,
			Retries:      r.Profile.AgentScoringRetries,
		}
	}
	return score.New(r.Profile, agent), budget
}

// summarizeSelected runs the composed summarizer over the selected
// set, honoring the per-run summary and request budgets.
func (r *Runner) summarizeSelected(ctx context.Context, sections item.DigestSections, budget *llm.Budget, em *emitter) (map[string]item.Summary, []string) {
	summaries := make(map[string]item.Summary)
	var errs []string

	extractive := summarize.Extractive{}
	var primary summarize.Summarizer = extractive
	llmAllowed := r.Profile.LLMEnabled && r.LLM != nil
	if llmAllowed {
		primary = &summarize.LLM{
			Client:       r.LLM,
			Budget:       budget,
			MaxTextChars: r.Profile.AgentScoringTextMaxChars,
		}
	}

	llmUsed := 0
	done := 0
	for _, si := range sections.All() {
		var composed summarize.Composed
		if llmAllowed && llmUsed < r.Profile.MaxLLMSummariesPerRun {
			composed = summarize.Composed{Primary: primary, Fallback: extractive}
			llmUsed++
		} else {
			composed = summarize.Composed{Primary: extractive, Fallback: extractive}
		}
		s, fallbackReason, err := composed.Summarize(ctx, si.Item)
		if err != nil {
			errs = append(errs, si.Item.ID+": "+err.Error())
			continue
		}
		if fallbackReason != "" {
			errs = append(errs, si.Item.ID+": "+fallbackReason)
		}
		summaries[si.Item.ID] = s
		done++
	}
	em.info("summarize_progress", "summaries generated", map[string]any{
		"done": done, "llm": llmUsed, "errors": len(errs),
	})
	return summaries, errs
}

func (r *Runner) checkCanceled(ctx context.Context, runID string, em *emitter) error {
	if err := ctx.Err(); err == nil {
		return nil
	}
	em.error("run_finish", "run canceled", nil)
	if err := r.Store.FinishRun(runID, string(StatusFailed), []string{"canceled"}, nil); err != nil {
		return err
	}
	return ErrCanceled
}

func (r *Runner) fail(report RunReport, runID string, em *emitter, sourceErrors []string, err error) (RunReport, error) {
	report.Status = StatusFailed
	report.SourceErrors = append(sourceErrors, err.Error())
	em.error("run_finish", "run failed", map[string]any{"error": err.Error()})
	if finishErr := r.Store.FinishRun(runID, string(StatusFailed), report.SourceErrors, nil); finishErr != nil {
		return report, errors.Join(err, finishErr)
	}
	return report, err
}

// newRunID returns a fresh 12-hex run identifier.
func newRunID() string {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		// Extremely unlikely; fall back to a time-based id.
		return fmt.Sprintf("%012x", time.Now().UnixNano()&0xffffffffffff)
	}
	return hex.EncodeToString(b[:])
}
