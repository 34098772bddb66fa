package capture

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/safesite-labs/ppe-gate-monitor/internal/logger"
)

// Prune deletes snapshots older than maxAge and, if more than maxFiles
// remain, the oldest beyond that count. A zero maxAge or maxFiles disables
// the corresponding rule. It returns the number of files removed.
func (s *Sink) Prune(maxAge time.Duration, maxFiles int) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}

	type snapshot struct {
		path    string
		modTime time.Time
	}
	var snapshots []snapshot
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jpg") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		snapshots = append(snapshots, snapshot{
			path:    filepath.Join(s.dir, entry.Name()),
			modTime: info.ModTime(),
		})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].modTime.Before(snapshots[j].modTime)
	})

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	remaining := len(snapshots)
	for _, snap := range snapshots {
		expired := maxAge > 0 && snap.modTime.Before(cutoff)
		excess := maxFiles > 0 && remaining > maxFiles
		if !expired && !excess {
			break
		}
		if err := os.Remove(snap.path); err != nil {
			logger.Warn("Capture", "Prune failed for %s: %v", snap.path, err)
			continue
		}
		removed++
		remaining--
	}

	if removed > 0 {
		logger.Info("Capture", "Pruned %d old snapshot(s)", removed)
	}
	return removed, nil
}
