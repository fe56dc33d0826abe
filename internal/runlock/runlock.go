// Package runlock provides the file-backed single-writer lock that
// keeps two digest runs from overlapping.
package runlock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrHeld is returned when another non-stale run holds the lock.
var ErrHeld = errors.New("run lock held")

// State is the persisted lock payload.
type State struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
}

// Lock guards the digest pipeline across processes.
type Lock struct {
	Path string
	// StaleAfter is the age past which a held lock is considered
	// abandoned and may be taken over.
	StaleAfter time.Duration
}

// New returns a lock at path with the given stale TTL.
func New(path string, staleAfter time.Duration) *Lock {
	return &Lock{Path: path, StaleAfter: staleAfter}
}

// Acquire takes the lock for runID. The payload is written to a temp
// file and linked into place, so two concurrent acquirers see at most
// one success. A stale lock is cleared and taken over.
func (l *Lock) Acquire(runID string) error {
	if err := os.MkdirAll(filepath.Dir(l.Path), 0o755); err != nil {
		return fmt.Errorf("creating lock dir: %w", err)
	}
	if err := l.tryAcquire(runID); err == nil {
		return nil
	} else if !errors.Is(err, ErrHeld) {
		return err
	}

	st, readErr := l.read()
	if readErr == nil && !st.StartedAt.IsZero() && time.Since(st.StartedAt) <= l.StaleAfter {
		return fmt.Errorf("%w: active:%s:%s", ErrHeld, st.RunID, st.StartedAt.Format(time.RFC3339))
	}
	// Stale or unreadable: clear it and try once more.
	if err := os.Remove(l.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clearing stale lock: %w", err)
	}
	return l.tryAcquire(runID)
}

func (l *Lock) tryAcquire(runID string) error {
	payload, err := json.Marshal(State{RunID: runID, StartedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(l.Path), ".lock-*")
	if err != nil {
		return fmt.Errorf("creating lock temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	// Link fails if the lock file already exists, which is the
	// mutual-exclusion guarantee.
	if err := os.Link(tmpName, l.Path); err != nil {
		if os.IsExist(err) || errors.Is(err, os.ErrExist) {
			return ErrHeld
		}
		return fmt.Errorf("linking lock file: %w", err)
	}
	return nil
}

// Release removes the lock only when it is still owned by runID.
func (l *Lock) Release(runID string) error {
	st, err := l.read()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if st.RunID != runID {
		return fmt.Errorf("lock owned by run %s, not %s", st.RunID, runID)
	}
	if err := os.Remove(l.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing lock file: %w", err)
	}
	return nil
}

// Holder returns the current lock state, or ok=false when unheld.
func (l *Lock) Holder() (State, bool, error) {
	st, err := l.read()
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, false, nil
		}
		return State{}, false, err
	}
	return st, true, nil
}

func (l *Lock) read() (State, error) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return State{}, err
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("parsing lock file: %w", err)
	}
	return st, nil
}
