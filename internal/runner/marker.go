package runner

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// MarkerName is the file that marks a directory tree as a backup
// target. The runner refuses to write into a destination unless the
// marker is found there or on an ancestor: an unmounted mount point
// or a mistyped path carries no marker, and copying into it would
// fill the system drive instead of the backup volume.
const MarkerName = ".backupnow-target.json"

var ErrNotTarget = errors.New("not marked as a backup target")

type marker struct {
	Created string `json:"created"`
	Comment string `json:"comment,omitempty"`
}

// WriteMarker marks dir as a backup target, creating it if needed.
func WriteMarker(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(marker{
		Created: time.Now().UTC().Format(time.RFC3339),
		Comment: "Created by backupnow. Deleting this file stops backups to this location.",
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, MarkerName), append(payload, '\n'), 0o644)
}

// isTarget reports whether dir or any ancestor carries the target
// marker. dir itself does not need to exist yet.
func isTarget(dir string) bool {
	dir = filepath.Clean(dir)
	for {
		if _, err := os.Stat(filepath.Join(dir, MarkerName)); err == nil {
			return true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return false
		}
		dir = parent
	}
}
