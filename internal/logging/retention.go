package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// PruneRunLogs removes per-run log files in dir matching pattern whose
// modification time is older than retentionDays. The file at keep is never
// removed. A retentionDays value of 0 disables pruning. It returns the paths
// that were removed, oldest first.
func PruneRunLogs(logger *slog.Logger, dir, pattern, keep string, retentionDays int) []string {
	if retentionDays <= 0 || dir == "" {
		return nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil
	}
	keepAbs, _ := filepath.Abs(keep)
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	type candidate struct {
		path    string
		modTime time.Time
	}
	var stale []candidate
	for _, path := range matches {
		if abs, err := filepath.Abs(path); err == nil && abs == keepAbs {
			continue
		}
		info, err := os.Lstat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if info.ModTime().Before(cutoff) {
			stale = append(stale, candidate{path: path, modTime: info.ModTime()})
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].modTime.Before(stale[j].modTime) })

	removed := make([]string, 0, len(stale))
	for _, c := range stale {
		if err := os.Remove(c.path); err != nil {
			WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
				String("path", c.path),
				Error(err),
				String(FieldErrorHint, "check file permissions and log_dir ownership"),
				String(FieldImpact, "old log file remains on disk"),
			)
			continue
		}
		removed = append(removed, c.path)
	}
	if len(removed) > 0 && logger != nil {
		logger.Info("old run logs pruned",
			Int("count", len(removed)),
			String(FieldEventType, "log_pruned"),
		)
	}
	return removed
}
