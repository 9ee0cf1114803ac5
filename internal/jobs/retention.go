package jobs

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nexalabs/nexa/internal/logger"
	"github.com/nexalabs/nexa/internal/settings"
)

// Retention purges terminal notification entries past the configured history
// window on a nightly schedule.
type Retention struct {
	store    *NotificationStore
	settings *settings.Store
	cron     *cron.Cron
}

func NewRetention(store *NotificationStore, settingsStore *settings.Store) *Retention {
	return &Retention{
		store:    store,
		settings: settingsStore,
		cron:     cron.New(),
	}
}

// Start schedules the nightly purge. Call Stop to cancel it.
func (r *Retention) Start() error {
	if _, err := r.cron.AddFunc("30 3 * * *", r.purge); err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

func (r *Retention) Stop() {
	r.cron.Stop()
}

// Purge runs one retention pass immediately.
func (r *Retention) Purge() {
	r.purge()
}

func (r *Retention) purge() {
	opts, err := r.settings.JobNotification()
	if err != nil {
		logger.Warn("retention settings unavailable", "error", err)
		return
	}
	days := opts.HistoryRetentionDays
	if days <= 0 {
		days = 7
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	removed, err := r.store.PurgeTerminalBefore(cutoff)
	if err != nil {
		logger.Warn("job history purge failed", "error", err)
		return
	}
	if removed > 0 {
		logger.Info("purged job history", "entries", removed, "older_than_days", days)
	}
}
