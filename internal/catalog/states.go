package catalog

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/nexalabs/nexa/internal/database"
	"github.com/nexalabs/nexa/internal/errs"
)

// watchedFraction is how far into the duration a position must be before the
// item counts as watched.
const watchedFraction = 0.9

// StateRepository persists per-user playback resume positions. Each progress
// heartbeat lands here; the ContinueWatching hub reads it back.
type StateRepository struct {
	db *gorm.DB
}

func NewStateRepository(db *gorm.DB) *StateRepository {
	return &StateRepository{db: db}
}

// RecordProgress upserts the user's position on an item and stamps the watch
// time. Once the position passes watchedFraction of the known duration the
// state flips to watched and stays watched.
func (r *StateRepository) RecordProgress(userID, itemID uint, positionMs, durationMs int64) (*database.PlaybackState, error) {
	if positionMs < 0 {
		return nil, errs.FieldError("positionMs", "position must not be negative")
	}

	var state database.PlaybackState
	err := r.db.Where("user_id = ? AND metadata_item_id = ?", userID, itemID).First(&state).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		state = database.PlaybackState{UserID: userID, MetadataItemID: itemID}
	case err != nil:
		return nil, translateErr(err, "playback state")
	}

	state.PositionMs = positionMs
	if durationMs > 0 {
		state.DurationMs = durationMs
	}
	if state.DurationMs > 0 && float64(positionMs) >= watchedFraction*float64(state.DurationMs) {
		state.Watched = true
	}
	state.LastWatchedAt = time.Now().UTC()

	if err := r.db.Save(&state).Error; err != nil {
		return nil, translateErr(err, "playback state")
	}
	return &state, nil
}

// SetWatched marks an item watched or unwatched outright. Unwatching also
// clears the resume position.
func (r *StateRepository) SetWatched(userID, itemID uint, watched bool) (*database.PlaybackState, error) {
	var state database.PlaybackState
	err := r.db.Where("user_id = ? AND metadata_item_id = ?", userID, itemID).First(&state).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		state = database.PlaybackState{UserID: userID, MetadataItemID: itemID}
	case err != nil:
		return nil, translateErr(err, "playback state")
	}

	state.Watched = watched
	if !watched {
		state.PositionMs = 0
	}
	state.LastWatchedAt = time.Now().UTC()

	if err := r.db.Save(&state).Error; err != nil {
		return nil, translateErr(err, "playback state")
	}
	return &state, nil
}

// Get returns the user's state on an item, or (nil, nil) when none exists.
func (r *StateRepository) Get(userID, itemID uint) (*database.PlaybackState, error) {
	var state database.PlaybackState
	err := r.db.Where("user_id = ? AND metadata_item_id = ?", userID, itemID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translateErr(err, "playback state")
	}
	return &state, nil
}
