package runner

import (
	"encoding/json"
	"log/slog"
	"time"

	"aidigest/internal/store"
)

// Event is one typed progress event emitted during a run.
type Event struct {
	RunID    string
	Index    int
	Stage    string
	Severity string
	Message  string
	Elapsed  time.Duration
	Details  map[string]any
}

// ProgressFunc receives events as the run advances.
type ProgressFunc func(Event)

// emitter appends run events to the timeline table and forwards them
// to the progress callback. Event indexes are run-local and strictly
// monotonic.
type emitter struct {
	store    *store.Store
	runID    string
	started  time.Time
	index    int
	progress ProgressFunc
	log      *slog.Logger
}

func newEmitter(st *store.Store, runID string, progress ProgressFunc, log *slog.Logger) *emitter {
	return &emitter{store: st, runID: runID, started: time.Now(), progress: progress, log: log}
}

func (e *emitter) info(stage, message string, details map[string]any) {
	e.emit(stage, "info", message, details)
}

func (e *emitter) warn(stage, message string, details map[string]any) {
	e.emit(stage, "warn", message, details)
}

func (e *emitter) error(stage, message string, details map[string]any) {
	e.emit(stage, "error", message, details)
}

func (e *emitter) emit(stage, severity, message string, details map[string]any) {
	ev := Event{
		RunID:    e.runID,
		Index:    e.index,
		Stage:    stage,
		Severity: severity,
		Message:  message,
		Elapsed:  time.Since(e.started),
		Details:  details,
	}
	e.index++

	detailsJSON := "{}"
	if len(details) > 0 {
		if b, err := json.Marshal(details); err == nil {
			detailsJSON = string(b)
		}
	}
	if err := e.store.AppendTimelineEvent(store.TimelineEvent{
		RunID:      ev.RunID,
		EventIndex: ev.Index,
		Stage:      ev.Stage,
		Severity:   ev.Severity,
		Message:    ev.Message,
		ElapsedS:   ev.Elapsed.Seconds(),
		Details:    detailsJSON,
	}); err != nil {
		e.log.Warn("timeline write failed", "stage", stage, "err", err)
	}
	if e.progress != nil {
		e.progress(ev)
	}
}
