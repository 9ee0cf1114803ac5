package scanner

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/nexalabs/nexa/internal/agents"
	"github.com/nexalabs/nexa/internal/database"
)

// extracted carries a unit's merged hints. Track units additionally carry
// per-file hints so each track in a medium keeps its own title and number.
type extracted struct {
	unit      *agents.Unit
	unitHints *agents.Hints
	fileHints []*agents.Hints
}

// extract runs the agent chain over each unit. Units are independent, so a
// small worker pool runs them concurrently; agents are stateless and safe
// for concurrent invocation.
func extract(ctx context.Context, registry *agents.Registry, workers int,
	in <-chan *agents.Unit, out chan<- extracted, progress ProgressSink) error {
	defer close(out)

	if workers < 1 {
		workers = 1
	}
	var processed int64

	g, gctx := errgroup.WithContext(ctx)
	results := make(chan extracted, workers)

	g.Go(func() error {
		defer close(results)
		inner, ictx := errgroup.WithContext(gctx)
		for w := 0; w < workers; w++ {
			inner.Go(func() error {
				for unit := range in {
					if ictx.Err() != nil {
						return ictx.Err()
					}
					// The consumer stops reading once the group is
					// cancelled, so the send must stay cancellable.
					select {
					case results <- extractUnit(ictx, registry, unit):
					case <-ictx.Done():
						return ictx.Err()
					}
				}
				return nil
			})
		}
		return inner.Wait()
	})

	g.Go(func() error {
		for ex := range results {
			select {
			case out <- ex:
			case <-gctx.Done():
				return gctx.Err()
			}
			processed++
			progress.Report(StageExtract, processed, -1)
		}
		return nil
	})

	return g.Wait()
}

func extractUnit(ctx context.Context, registry *agents.Registry, unit *agents.Unit) extracted {
	ex := extracted{unit: unit, unitHints: registry.ExtractAll(ctx, unit)}

	if unit.IntendedType == database.TypeTrack && len(unit.Files) > 1 {
		ex.fileHints = make([]*agents.Hints, len(unit.Files))
		for i, file := range unit.Files {
			sub := *unit
			sub.Files = []agents.FileRef{file}
			ex.fileHints[i] = registry.ExtractAll(ctx, &sub)
		}
	}
	return ex
}
