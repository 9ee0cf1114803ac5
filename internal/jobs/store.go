// Package jobs runs background work through a persistent queue and tracks
// per-job notification entries that clients subscribe to.
package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nexalabs/nexa/internal/database"
	"github.com/nexalabs/nexa/internal/errs"
)

// NotificationStore persists job notification entries. At most one
// non-terminal entry exists per (section, job type) scope.
type NotificationStore struct {
	db *gorm.DB
}

func NewNotificationStore(db *gorm.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

// CreateOrGetActive returns the active entry for the scope, creating one when
// none exists. The second return reports whether an active entry was already
// present.
func (s *NotificationStore) CreateOrGetActive(jobType database.JobType, sectionID, itemID *uint) (*database.JobNotificationEntry, bool, error) {
	var entry database.JobNotificationEntry
	var existed bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		q := tx.Where("job_type = ? AND status IN ?", jobType,
			[]database.JobStatus{database.StatusPending, database.StatusRunning})
		q = scopeQuery(q, sectionID, itemID)
		err := q.First(&entry).Error
		if err == nil {
			existed = true
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		entry = database.JobNotificationEntry{
			UUID:             uuid.NewString(),
			LibrarySectionID: sectionID,
			MetadataItemID:   itemID,
			JobType:          jobType,
			Status:           database.StatusPending,
		}
		return tx.Create(&entry).Error
	})
	if err != nil {
		return nil, false, errs.E(errs.Internal, "job notification entry", err)
	}
	return &entry, existed, nil
}

func scopeQuery(q *gorm.DB, sectionID, itemID *uint) *gorm.DB {
	if sectionID != nil {
		q = q.Where("library_section_id = ?", *sectionID)
	} else {
		q = q.Where("library_section_id IS NULL")
	}
	if itemID != nil {
		q = q.Where("metadata_item_id = ?", *itemID)
	} else {
		q = q.Where("metadata_item_id IS NULL")
	}
	return q
}

// GetByUUID loads one entry.
func (s *NotificationStore) GetByUUID(id string) (*database.JobNotificationEntry, error) {
	var entry database.JobNotificationEntry
	if err := s.db.Where("uuid = ?", id).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.E(errs.NotFound, "job notification entry", err)
		}
		return nil, errs.E(errs.Internal, "job notification entry", err)
	}
	return &entry, nil
}

// Active returns every non-terminal entry, oldest first. Subscribers receive
// these as their bootstrap snapshot.
func (s *NotificationStore) Active() ([]database.JobNotificationEntry, error) {
	var entries []database.JobNotificationEntry
	err := s.db.Where("status IN ?", []database.JobStatus{database.StatusPending, database.StatusRunning}).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, errs.E(errs.Internal, "active job notifications", err)
	}
	return entries, nil
}

// Apply writes an update to the entry. Status transitions are monotonic:
// a terminal entry is never moved back to pending or running.
func (s *NotificationStore) Apply(id string, update Update) (*database.JobNotificationEntry, error) {
	var entry database.JobNotificationEntry
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("uuid = ?", id).First(&entry).Error; err != nil {
			return err
		}
		if entry.Status.Terminal() {
			return nil
		}
		if update.Status != "" {
			entry.Status = update.Status
		}
		if update.Progress != nil {
			entry.Progress = *update.Progress
		}
		if update.CompletedItems != nil {
			entry.CompletedItems = *update.CompletedItems
		}
		if update.TotalItems != nil {
			entry.TotalItems = *update.TotalItems
		}
		if update.Message != "" {
			entry.Message = update.Message
		}
		return tx.Save(&entry).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.E(errs.NotFound, "job notification entry", err)
		}
		return nil, errs.E(errs.Internal, "job notification entry", err)
	}
	return &entry, nil
}

// PurgeTerminalBefore removes terminal entries last touched before the
// cutoff and reports how many were deleted.
func (s *NotificationStore) PurgeTerminalBefore(cutoff time.Time) (int64, error) {
	res := s.db.Where("status IN ? AND updated_at < ?",
		[]database.JobStatus{database.StatusSucceeded, database.StatusFailed, database.StatusCancelled},
		cutoff).
		Delete(&database.JobNotificationEntry{})
	if res.Error != nil {
		return 0, errs.E(errs.Internal, "purge job notifications", res.Error)
	}
	return res.RowsAffected, nil
}

// Update is a partial change to a notification entry. Nil fields are left as
// they are.
type Update struct {
	Status         database.JobStatus
	Progress       *float64
	CompletedItems *int64
	TotalItems     *int64
	Message        string
}
