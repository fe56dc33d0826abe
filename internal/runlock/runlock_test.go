package runlock

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testLock(t *testing.T) *Lock {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "run.lock"), 6*time.Hour)
}

func TestAcquireRelease(t *testing.T) {
	l := testLock(t)
	if err := l.Acquire("run1"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	st, held, err := l.Holder()
	if err != nil || !held {
		t.Fatalf("holder: held=%v err=%v", held, err)
	}
	if st.RunID != "run1" {
		t.Errorf("holder = %q", st.RunID)
	}
	if err := l.Release("run1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, held, _ := l.Holder(); held {
		t.Errorf("lock still held after release")
	}
}

func TestAcquireHeldByActiveRun(t *testing.T) {
	l := testLock(t)
	if err := l.Acquire("run1"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	err := l.Acquire("run2")
	if !errors.Is(err, ErrHeld) {
		t.Fatalf("err = %v, want ErrHeld", err)
	}
	if !strings.Contains(err.Error(), "active:run1:") {
		t.Errorf("error should identify the holder: %v", err)
	}
}

func TestAcquireTakesOverStaleLock(t *testing.T) {
	l := testLock(t)
	stale := State{RunID: "dead", StartedAt: time.Now().UTC().Add(-7 * time.Hour)}
	data, _ := json.Marshal(stale)
	os.MkdirAll(filepath.Dir(l.Path), 0o755)
	if err := os.WriteFile(l.Path, data, 0o644); err != nil {
		t.Fatalf("writing stale lock: %v", err)
	}

	if err := l.Acquire("run2"); err != nil {
		t.Fatalf("stale takeover: %v", err)
	}
	st, _, _ := l.Holder()
	if st.RunID != "run2" {
		t.Errorf("holder = %q", st.RunID)
	}
}

func TestAcquireClearsCorruptLock(t *testing.T) {
	l := testLock(t)
	os.MkdirAll(filepath.Dir(l.Path), 0o755)
	if err := os.WriteFile(l.Path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("writing corrupt lock: %v", err)
	}
	if err := l.Acquire("run1"); err != nil {
		t.Fatalf("corrupt lock should be cleared: %v", err)
	}
}

func TestReleaseOwnerCheck(t *testing.T) {
	l := testLock(t)
	if err := l.Acquire("run1"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := l.Release("other"); err == nil {
		t.Errorf("release by non-owner should fail")
	}
	if _, held, _ := l.Holder(); !held {
		t.Errorf("failed release removed the lock")
	}
}

func TestReleaseWhenUnheld(t *testing.T) {
	l := testLock(t)
	if err := l.Release("run1"); err != nil {
		t.Errorf("releasing an unheld lock should be a no-op: %v", err)
	}
}
