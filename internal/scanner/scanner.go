package scanner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nexalabs/nexa/internal/agents"
	"github.com/nexalabs/nexa/internal/catalog"
	"github.com/nexalabs/nexa/internal/config"
	"github.com/nexalabs/nexa/internal/database"
	"github.com/nexalabs/nexa/internal/errs"
	"github.com/nexalabs/nexa/internal/events"
	"github.com/nexalabs/nexa/internal/logger"
	"github.com/nexalabs/nexa/internal/settings"
)

// seenPaths collects every path the filter stage observed, for the
// missing-file reap at the end of a scan.
type seenPaths struct {
	mu    sync.Mutex
	paths map[string]bool
}

func newSeenPaths() *seenPaths {
	return &seenPaths{paths: make(map[string]bool)}
}

func (s *seenPaths) add(path string) {
	s.mu.Lock()
	s.paths[path] = true
	s.mu.Unlock()
}

func (s *seenPaths) snapshot() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.paths))
	for p := range s.paths {
		out[p] = true
	}
	return out
}

// Scanner runs the scan pipeline over library sections. At most one scan per
// section runs at a time; a second request while one is in flight returns
// Conflict.
type Scanner struct {
	cfg      config.ScannerConfig
	sections *catalog.SectionRepository
	items    *catalog.ItemRepository
	parts    *catalog.PartRepository
	bulk     *catalog.BulkRepository
	registry *agents.Registry
	settings *settings.Store
	enqueue  Enqueuer
	bus      *events.Bus

	mu     sync.Mutex
	active map[uint]bool
}

func New(cfg config.ScannerConfig, sections *catalog.SectionRepository, items *catalog.ItemRepository,
	parts *catalog.PartRepository, bulk *catalog.BulkRepository, registry *agents.Registry,
	store *settings.Store, enqueue Enqueuer, bus *events.Bus) *Scanner {
	return &Scanner{
		cfg:      cfg,
		sections: sections,
		items:    items,
		parts:    parts,
		bulk:     bulk,
		registry: registry,
		settings: store,
		enqueue:  enqueue,
		bus:      bus,
		active:   make(map[uint]bool),
	}
}

// SetEnqueuer wires the job scheduler after construction, breaking the
// scanner ↔ jobs dependency loop at startup.
func (s *Scanner) SetEnqueuer(e Enqueuer) { s.enqueue = e }

// Scan walks the section's roots and reconciles the catalog against the
// filesystem. forceRehash pushes unchanged files through the full pipeline.
func (s *Scanner) Scan(ctx context.Context, sectionID uint, forceRehash bool, progress ProgressSink) (*Stats, error) {
	if progress == nil {
		progress = NopProgress
	}

	s.mu.Lock()
	if s.active[sectionID] {
		s.mu.Unlock()
		return nil, errs.Ef(errs.Conflict, "a scan is already running for section %d", sectionID)
	}
	s.active[sectionID] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.active, sectionID)
		s.mu.Unlock()
	}()

	section, err := s.sections.GetByID(sectionID)
	if err != nil {
		return nil, err
	}
	if err := s.sections.ValidateRoots(section); err != nil {
		return nil, err
	}

	roots := make([]string, 0, len(section.Locations))
	for _, loc := range section.Locations {
		roots = append(roots, loc.RootPath)
	}
	if err := s.sections.CheckOverlap(roots, section.ID); err != nil {
		logger.Warn("library roots overlap another section", "section", section.Name, "error", err)
	}

	if s.bus != nil {
		s.bus.Publish(events.Event{Type: events.EventScanStarted, Payload: map[string]interface{}{
			"sectionId": section.UUID, "force": forceRehash,
		}})
	}

	stats, err := s.run(ctx, section, roots, forceRehash, progress)
	if s.bus != nil {
		if err != nil {
			s.bus.Publish(events.Event{Type: events.EventScanFailed, Payload: map[string]interface{}{
				"sectionId": section.UUID, "error": err.Error(),
			}})
		} else {
			s.bus.Publish(events.Event{Type: events.EventScanCompleted, Payload: map[string]interface{}{
				"sectionId": section.UUID,
				"inserted":  stats.Inserted,
				"updated":   stats.Updated,
				"removed":   stats.Removed,
				"failed":    stats.Failed,
			}})
		}
	}
	return stats, err
}

func (s *Scanner) run(ctx context.Context, section *database.LibrarySection, roots []string,
	forceRehash bool, progress ProgressSink) (*Stats, error) {

	genreOpts, err := s.settings.GenreMapping()
	if err != nil {
		return nil, err
	}
	tagOpts, err := s.settings.TagModeration()
	if err != nil {
		return nil, err
	}
	mod := newModeration(genreOpts, tagOpts)

	stats := &Stats{StartedAt: time.Now()}
	seen := newSeenPaths()
	var skipped atomic.Int64
	var discovered atomic.Int64

	buffer := s.cfg.ChannelBuffer
	if buffer < 1 {
		buffer = 128
	}
	candidates := make(chan Candidate, buffer)
	fresh := make(chan Candidate, buffer)
	classed := make(chan classified, buffer)
	units := make(chan *agents.Unit, buffer)
	extractedCh := make(chan extracted, buffer)
	plans := make(chan plan, buffer)

	countingProgress := ProgressFunc(func(stage string, processed, total int64) {
		if stage == StageDiscover {
			discovered.Store(processed)
		}
		progress.Report(stage, processed, total)
	})

	p := newPersister(section, s.items, s.parts, s.bulk, s.enqueue, stats)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return discover(gctx, roots, candidates, countingProgress) })
	g.Go(func() error {
		return filter(gctx, s.parts, forceRehash, candidates, fresh, seen, &skipped, countingProgress)
	})
	g.Go(func() error {
		return classify(gctx, section.Type, roots, fresh, classed, countingProgress)
	})
	g.Go(func() error { return match(gctx, section, classed, units, countingProgress) })
	g.Go(func() error {
		return extract(gctx, s.registry, s.cfg.ExtractWorkers, units, extractedCh, countingProgress)
	})
	g.Go(func() error { return normalize(gctx, mod, extractedCh, plans, countingProgress) })
	g.Go(func() error { return persist(gctx, p, plans, countingProgress) })

	if err := g.Wait(); err != nil {
		stats.FinishedAt = time.Now()
		return stats, err
	}

	orphaned, err := s.parts.SoftDeleteMissing(section.ID, seen.snapshot())
	if err != nil {
		stats.FinishedAt = time.Now()
		return stats, err
	}
	for _, itemID := range orphaned {
		if err := s.items.SoftDelete(itemID); err != nil {
			logger.Warn("soft delete of orphaned item failed", "item", itemID, "error", err)
			continue
		}
		stats.Removed++
	}

	stats.Discovered = discovered.Load()
	stats.Skipped = skipped.Load()
	stats.FinishedAt = time.Now()
	logger.Info("scan finished",
		"section", section.Name,
		"discovered", stats.Discovered,
		"skipped", stats.Skipped,
		"inserted", stats.Inserted,
		"updated", stats.Updated,
		"removed", stats.Removed,
		"failed", stats.Failed,
		"duration", stats.FinishedAt.Sub(stats.StartedAt))
	return stats, nil
}
