package scanner

import (
	"context"
	"sync/atomic"

	"github.com/nexalabs/nexa/internal/catalog"
)

// filter drops candidates whose (path, size, mtime) already matches a
// persisted media part, so an unchanged file causes no catalog writes. Every
// candidate's path is still recorded in seen, which the persist stage uses to
// reap parts that vanished. forceRehash sends everything onwards.
func filter(ctx context.Context, parts *catalog.PartRepository, forceRehash bool,
	in <-chan Candidate, out chan<- Candidate, seen *seenPaths, skipped *atomic.Int64, progress ProgressSink) error {
	defer close(out)

	var processed int64
	for candidate := range in {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		processed++
		seen.add(candidate.Path)

		if !forceRehash {
			existing, err := parts.GetByPath(candidate.Path)
			if err != nil {
				return err
			}
			if existing != nil && existing.Size == candidate.Size && existing.MTime.Equal(candidate.MTime) {
				skipped.Add(1)
				progress.Report(StageFilter, processed, -1)
				continue
			}
		}
		select {
		case out <- candidate:
		case <-ctx.Done():
			return ctx.Err()
		}
		progress.Report(StageFilter, processed, -1)
	}
	return nil
}
