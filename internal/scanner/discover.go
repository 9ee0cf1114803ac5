package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/nexalabs/nexa/internal/errs"
	"github.com/nexalabs/nexa/internal/logger"
)

// discover walks every root breadth-first and emits candidate files whose
// extension belongs to a known media family. Symlinked directories are
// followed once; revisiting a resolved directory is treated as a cycle and
// skipped. Hidden entries and unreadable subdirectories are skipped; an
// unreadable root fails the scan.
func discover(ctx context.Context, roots []string, out chan<- Candidate, progress ProgressSink) error {
	defer close(out)

	visited := make(map[string]bool)
	var processed int64

	for _, root := range roots {
		if _, err := os.ReadDir(root); err != nil {
			return errs.Ef(errs.FailedPrecondition, "library root %q is not readable", root)
		}
		queue := []string{root}
		for len(queue) > 0 {
			if ctx.Err() != nil {
				return errs.E(errs.Cancelled, "scan cancelled", ctx.Err())
			}
			dir := queue[0]
			queue = queue[1:]

			resolved, err := filepath.EvalSymlinks(dir)
			if err != nil {
				logger.Warn("skipping unresolvable directory", "path", dir, "error", err)
				continue
			}
			if visited[resolved] {
				continue
			}
			visited[resolved] = true

			entries, err := os.ReadDir(dir)
			if err != nil {
				logger.Warn("skipping unreadable directory", "path", dir, "error", err)
				continue
			}
			for _, entry := range entries {
				name := entry.Name()
				if strings.HasPrefix(name, ".") {
					continue
				}
				full := filepath.Join(dir, name)
				info, err := os.Stat(full) // follows symlinks
				if err != nil {
					logger.Warn("skipping unstatable entry", "path", full, "error", err)
					continue
				}
				if info.IsDir() {
					queue = append(queue, full)
					continue
				}
				ext := strings.ToLower(filepath.Ext(name))
				if familyOf(ext) == familyUnknown {
					continue
				}
				candidate := Candidate{Path: full, Size: info.Size(), MTime: info.ModTime(), Ext: ext}
				select {
				case out <- candidate:
				case <-ctx.Done():
					return errs.E(errs.Cancelled, "scan cancelled", ctx.Err())
				}
				processed++
				progress.Report(StageDiscover, processed, -1)
			}
		}
	}
	progress.Report(StageDiscover, processed, processed)
	return nil
}
