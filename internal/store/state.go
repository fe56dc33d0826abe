package store

import (
	"database/sql"
	"fmt"
	"time"

	"aidigest/internal/item"
	"aidigest/internal/quality"
)

// GetScore implements the score cache lookup. ok is false when no
// entry exists for the hash+model pair; freshness is the caller's
// concern.
func (s *Store) GetScore(itemHash, model string) (item.Score, time.Time, bool, error) {
	var sc item.Score
	var tags, topicTags, formatTags string
	var storedAt time.Time
	err := s.readDB.QueryRow(`
		SELECT relevance, quality, novelty, reason, tags, topic_tags, format_tags, stored_at
		FROM score_cache WHERE item_hash = ? AND model = ?
	`, itemHash, model).Scan(&sc.Relevance, &sc.Quality, &sc.Novelty, &sc.Reason, &tags, &topicTags, &formatTags, &storedAt)
	if err == sql.ErrNoRows {
		return item.Score{}, time.Time{}, false, nil
	}
	if err != nil {
		return item.Score{}, time.Time{}, false, fmt.Errorf("querying score cache: %w", err)
	}
	sc.Tags = fromJSONList(tags)
	sc.TopicTags = fromJSONList(topicTags)
	sc.FormatTags = fromJSONList(formatTags)
	sc.Provider = item.ProviderAgent
	return sc, storedAt, true, nil
}

// PutScore stores an agent score for the hash+model pair.
func (s *Store) PutScore(itemHash, model string, sc item.Score) error {
	_, err := s.writeDB.Exec(`
		INSERT OR REPLACE INTO score_cache (item_hash, model, relevance, quality, novelty, reason, tags, topic_tags, format_tags, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, itemHash, model, sc.Relevance, sc.Quality, sc.Novelty, sc.Reason,
		jsonList(sc.Tags), jsonList(sc.TopicTags), jsonList(sc.FormatTags), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("writing score cache: %w", err)
	}
	return nil
}

// Weights loads every learning weight.
func (s *Store) Weights() ([]quality.Weight, error) {
	rows, err := s.readDB.Query(`SELECT kind, value, weight, updated_at FROM learning_weights`)
	if err != nil {
		return nil, fmt.Errorf("querying learning weights: %w", err)
	}
	defer rows.Close()

	var out []quality.Weight
	for rows.Next() {
		var w quality.Weight
		if err := rows.Scan(&w.Kind, &w.Value, &w.Weight, &w.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ApplyLearningDelta merges a repair's learning delta into the weight
// table, clamping each weight's magnitude to maxOffset.
func (s *Store) ApplyLearningDelta(delta quality.Delta, maxOffset float64) error {
	if len(delta) == 0 {
		return nil
	}
	tx, err := s.writeDB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for f, d := range delta {
		var current float64
		err := tx.QueryRow(`SELECT weight FROM learning_weights WHERE kind = ? AND value = ?`, f.Kind, f.Value).Scan(&current)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("reading weight %s/%s: %w", f.Kind, f.Value, err)
		}
		next := current + d
		if next > maxOffset {
			next = maxOffset
		} else if next < -maxOffset {
			next = -maxOffset
		}
		if _, err := tx.Exec(`
			INSERT INTO learning_weights (kind, value, weight, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(kind, value) DO UPDATE SET weight = excluded.weight, updated_at = excluded.updated_at
		`, f.Kind, f.Value, next, now); err != nil {
			return fmt.Errorf("writing weight %s/%s: %w", f.Kind, f.Value, err)
		}
	}
	return tx.Commit()
}

// SaveQualityEval writes the run's quality evaluation.
func (s *Store) SaveQualityEval(runID string, ev quality.Evaluation) error {
	repaired := 0
	if ev.Repaired {
		repaired = 1
	}
	_, err := s.writeDB.Exec(`
		INSERT OR REPLACE INTO run_quality_eval (run_id, quality_score, confidence, issues, before_ids, after_ids, repaired, model)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, ev.QualityScore, ev.Confidence, jsonList(ev.Issues), jsonList(ev.BeforeIDs), jsonList(ev.AfterIDs), repaired, ev.Model)
	if err != nil {
		return fmt.Errorf("saving quality eval: %w", err)
	}
	return nil
}

// QualityEval loads a run's quality evaluation.
func (s *Store) QualityEval(runID string) (quality.Evaluation, bool, error) {
	var ev quality.Evaluation
	var issues, before, after string
	var repaired int
	err := s.readDB.QueryRow(`
		SELECT quality_score, confidence, issues, before_ids, after_ids, repaired, model
		FROM run_quality_eval WHERE run_id = ?
	`, runID).Scan(&ev.QualityScore, &ev.Confidence, &issues, &before, &after, &repaired, &ev.Model)
	if err == sql.ErrNoRows {
		return quality.Evaluation{}, false, nil
	}
	if err != nil {
		return quality.Evaluation{}, false, fmt.Errorf("loading quality eval: %w", err)
	}
	ev.Issues = fromJSONList(issues)
	ev.BeforeIDs = fromJSONList(before)
	ev.AfterIDs = fromJSONList(after)
	ev.Repaired = repaired == 1
	return ev, true, nil
}

// TimelineEvent is one persisted run event.
type TimelineEvent struct {
	RunID      string
	EventIndex int
	Stage      string
	Severity   string
	Message    string
	ElapsedS   float64
	Details    string
}

// AppendTimelineEvent writes one event; the (run_id, event_index)
// pair is unique.
func (s *Store) AppendTimelineEvent(ev TimelineEvent) error {
	details := ev.Details
	if details == "" {
		details = "{}"
	}
	_, err := s.writeDB.Exec(`
		INSERT INTO timeline_events (run_id, event_index, stage, severity, message, elapsed_s, details)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ev.RunID, ev.EventIndex, ev.Stage, ev.Severity, ev.Message, ev.ElapsedS, details)
	if err != nil {
		return fmt.Errorf("appending timeline event: %w", err)
	}
	return nil
}

// TimelineEvents returns a run's events ordered by event index.
func (s *Store) TimelineEvents(runID string) ([]TimelineEvent, error) {
	rows, err := s.readDB.Query(`
		SELECT run_id, event_index, stage, severity, message, elapsed_s, details
		FROM timeline_events WHERE run_id = ? ORDER BY event_index
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying timeline: %w", err)
	}
	defer rows.Close()

	var out []TimelineEvent
	for rows.Next() {
		var ev TimelineEvent
		if err := rows.Scan(&ev.RunID, &ev.EventIndex, &ev.Stage, &ev.Severity, &ev.Message, &ev.ElapsedS, &ev.Details); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// AddTimelineNote attaches a free-form note to a run.
func (s *Store) AddTimelineNote(runID, note string) error {
	_, err := s.writeDB.Exec(`
		INSERT INTO timeline_notes (run_id, note, created_at) VALUES (?, ?, ?)
	`, runID, note, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("adding timeline note: %w", err)
	}
	return nil
}

// AddFeedback records operator feedback on an item or run.
func (s *Store) AddFeedback(runID, itemID, verdict, note string) error {
	_, err := s.writeDB.Exec(`
		INSERT INTO feedback (run_id, item_id, verdict, note, created_at) VALUES (?, ?, ?, ?, ?)
	`, runID, itemID, verdict, note, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("adding feedback: %w", err)
	}
	return nil
}

// AddAuditEntry records an administrative action.
func (s *Store) AddAuditEntry(actor, action, details string) error {
	_, err := s.writeDB.Exec(`
		INSERT INTO admin_audit (actor, action, details, created_at) VALUES (?, ?, ?, ?)
	`, actor, action, details, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("adding audit entry: %w", err)
	}
	return nil
}

// GetCursor implements connector.CursorStore.
func (s *Store) GetCursor(selectorType, value string) (string, string, error) {
	var cursor, lastID string
	err := s.readDB.QueryRow(`
		SELECT cursor, last_item_id FROM x_cursors WHERE selector_type = ? AND selector_value = ?
	`, selectorType, value).Scan(&cursor, &lastID)
	if err == sql.ErrNoRows {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("querying cursor: %w", err)
	}
	return cursor, lastID, nil
}

// SetCursor implements connector.CursorStore.
func (s *Store) SetCursor(selectorType, value, cursor, lastItemID string) error {
	_, err := s.writeDB.Exec(`
		INSERT OR REPLACE INTO x_cursors (selector_type, selector_value, cursor, last_item_id, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, selectorType, value, cursor, lastItemID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving cursor: %w", err)
	}
	return nil
}
