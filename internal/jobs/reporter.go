package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/nexalabs/nexa/internal/database"
	"github.com/nexalabs/nexa/internal/events"
	"github.com/nexalabs/nexa/internal/logger"
)

// Reporter coalesces high-frequency progress updates and flushes them to the
// store and event bus on an interval. Terminal updates bypass the interval
// and flush immediately, so a subscriber never misses a completion.
type Reporter struct {
	store    *NotificationStore
	bus      *events.Bus
	interval time.Duration

	mu      sync.Mutex
	pending map[string]Update
}

func NewReporter(store *NotificationStore, bus *events.Bus, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Reporter{
		store:    store,
		bus:      bus,
		interval: interval,
		pending:  make(map[string]Update),
	}
}

// Run flushes pending updates until the context ends, then drains once more.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.flushAll()
			return
		case <-ticker.C:
			r.flushAll()
		}
	}
}

// Report records a progress update for the entry. Later reports for the same
// entry overwrite earlier unflushed ones; a terminal status flushes now.
func (r *Reporter) Report(entryUUID string, update Update) {
	if update.Status.Terminal() {
		r.mu.Lock()
		if prior, ok := r.pending[entryUUID]; ok {
			update = mergeUpdate(prior, update)
			delete(r.pending, entryUUID)
		}
		r.mu.Unlock()
		r.flushOne(entryUUID, update)
		return
	}

	r.mu.Lock()
	r.pending[entryUUID] = mergeUpdate(r.pending[entryUUID], update)
	r.mu.Unlock()
}

func (r *Reporter) flushAll() {
	r.mu.Lock()
	batch := r.pending
	r.pending = make(map[string]Update)
	r.mu.Unlock()

	for id, update := range batch {
		r.flushOne(id, update)
	}
}

func (r *Reporter) flushOne(entryUUID string, update Update) {
	entry, err := r.store.Apply(entryUUID, update)
	if err != nil {
		logger.Warn("job progress flush failed", "entry", entryUUID, "error", err)
		return
	}
	if r.bus != nil {
		r.bus.Publish(events.Event{Type: events.EventJobNotification, Payload: entry})
	}
}

// mergeUpdate overlays next onto prior, keeping prior's fields where next is
// silent.
func mergeUpdate(prior, next Update) Update {
	out := prior
	if next.Status != "" {
		out.Status = next.Status
	}
	if next.Progress != nil {
		out.Progress = next.Progress
	}
	if next.CompletedItems != nil {
		out.CompletedItems = next.CompletedItems
	}
	if next.TotalItems != nil {
		out.TotalItems = next.TotalItems
	}
	if next.Message != "" {
		out.Message = next.Message
	}
	return out
}

// Progress is a convenience for fractional progress updates.
func Progress(fraction float64, completed, total int64) Update {
	return Update{
		Status:         database.StatusRunning,
		Progress:       &fraction,
		CompletedItems: &completed,
		TotalItems:     &total,
	}
}

// Terminal builds the final update for a finished job.
func Terminal(status database.JobStatus, message string) Update {
	one := 1.0
	u := Update{Status: status, Message: message}
	if status == database.StatusSucceeded {
		u.Progress = &one
	}
	return u
}
