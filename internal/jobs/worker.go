package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/nexalabs/nexa/internal/catalog"
	"github.com/nexalabs/nexa/internal/database"
	"github.com/nexalabs/nexa/internal/logger"
	"github.com/nexalabs/nexa/internal/scanner"
)

// ItemProcessor handles one item-scoped job family, such as artwork or
// trickplay generation.
type ItemProcessor interface {
	ProcessItem(ctx context.Context, itemID uint) error
}

// Analyzer probes media parts and records their stream details.
type Analyzer interface {
	AnalyzeItem(ctx context.Context, itemID uint) error
}

// Worker consumes the queue and executes jobs, reporting progress through the
// notification entries.
type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	store    *NotificationStore
	reporter *Reporter

	scanner   *scanner.Scanner
	items     *catalog.ItemRepository
	images    ItemProcessor
	trickplay ItemProcessor
	analyzer  Analyzer
}

func NewWorker(redisAddr string, concurrency int, store *NotificationStore, reporter *Reporter,
	sc *scanner.Scanner, items *catalog.ItemRepository,
	images, trickplay ItemProcessor, analyzer Analyzer) *Worker {
	if concurrency < 1 {
		concurrency = 4
	}
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{
			Concurrency: concurrency,
			Queues:      map[string]int{"default": 1},
		},
	)
	w := &Worker{
		server:    server,
		mux:       asynq.NewServeMux(),
		store:     store,
		reporter:  reporter,
		scanner:   sc,
		items:     items,
		images:    images,
		trickplay: trickplay,
		analyzer:  analyzer,
	}
	w.mux.HandleFunc(TaskLibraryScan, w.handleLibraryScan)
	w.mux.HandleFunc(TaskMetadataRefresh, w.handleMetadataRefresh)
	w.mux.HandleFunc(TaskFileAnalysis, w.handleItemTask(func(ctx context.Context, itemID uint) error {
		if w.analyzer == nil {
			return nil
		}
		return w.analyzer.AnalyzeItem(ctx, itemID)
	}))
	w.mux.HandleFunc(TaskImageGeneration, w.handleItemTask(func(ctx context.Context, itemID uint) error {
		if w.images == nil {
			return nil
		}
		return w.images.ProcessItem(ctx, itemID)
	}))
	w.mux.HandleFunc(TaskTrickplayGeneration, w.handleItemTask(func(ctx context.Context, itemID uint) error {
		if w.trickplay == nil {
			return nil
		}
		return w.trickplay.ProcessItem(ctx, itemID)
	}))
	return w
}

// Run processes queued tasks until the context ends.
func (w *Worker) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()
	return w.server.Run(w.mux)
}

func decodePayload(task *asynq.Task) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return p, fmt.Errorf("decode task payload: %w", err)
	}
	return p, nil
}

func (w *Worker) handleLibraryScan(ctx context.Context, task *asynq.Task) error {
	p, err := decodePayload(task)
	if err != nil {
		return err
	}
	if p.LibrarySectionID == nil {
		return fmt.Errorf("library scan task without section")
	}
	w.reporter.Report(p.EntryUUID, Update{Status: database.StatusRunning})

	progress := scanner.ProgressFunc(func(stage string, processed, total int64) {
		if stage != scanner.StagePersist {
			return
		}
		fraction := 0.0
		if total > 0 {
			fraction = float64(processed) / float64(total)
		}
		w.reporter.Report(p.EntryUUID, Progress(fraction, processed, total))
	})

	stats, err := w.scanner.Scan(ctx, *p.LibrarySectionID, p.Force, progress)
	if err != nil {
		w.reporter.Report(p.EntryUUID, Terminal(terminalStatus(ctx, err), err.Error()))
		return err
	}
	message := fmt.Sprintf("%d added, %d updated, %d removed", stats.Inserted, stats.Updated, stats.Removed)
	w.reporter.Report(p.EntryUUID, Terminal(database.StatusSucceeded, message))
	return nil
}

// handleMetadataRefresh re-runs the pipeline with the rehash flag so every
// file flows through the agents again, locks still honored downstream. An
// item-scoped refresh resolves the item's section and refreshes it.
func (w *Worker) handleMetadataRefresh(ctx context.Context, task *asynq.Task) error {
	p, err := decodePayload(task)
	if err != nil {
		return err
	}
	sectionID := p.LibrarySectionID
	if sectionID == nil {
		if p.MetadataItemID == nil {
			return fmt.Errorf("metadata refresh task without section or item")
		}
		item, err := w.items.GetByID(*p.MetadataItemID)
		if err != nil {
			w.reporter.Report(p.EntryUUID, Terminal(terminalStatus(ctx, err), err.Error()))
			return err
		}
		sectionID = &item.LibrarySectionID
	}
	w.reporter.Report(p.EntryUUID, Update{Status: database.StatusRunning})

	_, err = w.scanner.Scan(ctx, *sectionID, true, scanner.NopProgress)
	if err != nil {
		w.reporter.Report(p.EntryUUID, Terminal(terminalStatus(ctx, err), err.Error()))
		return err
	}
	w.reporter.Report(p.EntryUUID, Terminal(database.StatusSucceeded, "metadata refreshed"))
	return nil
}

func (w *Worker) handleItemTask(run func(ctx context.Context, itemID uint) error) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		p, err := decodePayload(task)
		if err != nil {
			return err
		}
		if p.MetadataItemID == nil {
			return fmt.Errorf("%s task without item", p.JobType)
		}
		w.reporter.Report(p.EntryUUID, Update{Status: database.StatusRunning})
		if err := run(ctx, *p.MetadataItemID); err != nil {
			logger.Warn("item job failed", "type", p.JobType, "item", *p.MetadataItemID, "error", err)
			w.reporter.Report(p.EntryUUID, Terminal(terminalStatus(ctx, err), err.Error()))
			return err
		}
		w.reporter.Report(p.EntryUUID, Terminal(database.StatusSucceeded, ""))
		return nil
	}
}

func terminalStatus(ctx context.Context, err error) database.JobStatus {
	if ctx.Err() != nil {
		return database.StatusCancelled
	}
	return database.StatusFailed
}
