package deliver

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Vault writes digest notes into a local markdown vault.
type Vault struct {
	Path   string
	Folder string
	// Mode is "timestamped" (one note per run) or "daily" (one note
	// per day, overwritten by later runs).
	Mode string
}

// Write stores the note and returns its path. Notes land under
// <vault>/<folder>/<day>/<hhmmss>-<run_id>.md in timestamped mode or
// <vault>/<folder>/<day>.md in daily mode, written via temp-file
// rename so readers never see a partial note.
func (v *Vault) Write(runID string, now time.Time, content string) (string, error) {
	day := now.Format("2006-01-02")
	var path string
	if v.Mode == "daily" {
		path = filepath.Join(v.Path, v.Folder, day+".md")
	} else {
		path = filepath.Join(v.Path, v.Folder, day, now.Format("150405")+"-"+runID+".md")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating vault dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".note-*")
	if err != nil {
		return "", fmt.Errorf("creating vault temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("writing vault note: %w", err)
	}
	return path, nil
}
