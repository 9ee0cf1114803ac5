package catalog

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nexalabs/nexa/internal/database"
)

// PartRepository manages media parts.
type PartRepository struct {
	db *gorm.DB
}

func NewPartRepository(db *gorm.DB) *PartRepository {
	return &PartRepository{db: db}
}

// GetByPath looks up a part by absolute path. Returns (nil, nil) when no
// live row exists.
func (r *PartRepository) GetByPath(path string) (*database.MediaPart, error) {
	var part database.MediaPart
	err := r.db.Where("path = ?", path).First(&part).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translateErr(err, "media part")
	}
	return &part, nil
}

// GetByUUID loads a part by external id.
func (r *PartRepository) GetByUUID(id string) (*database.MediaPart, error) {
	var part database.MediaPart
	if err := r.db.Where("uuid = ?", id).First(&part).Error; err != nil {
		return nil, translateErr(err, "media part")
	}
	return &part, nil
}

// ForItem returns the live parts backing an item.
func (r *PartRepository) ForItem(itemID uint) ([]database.MediaPart, error) {
	var parts []database.MediaPart
	if err := r.db.Where("metadata_item_id = ?", itemID).Find(&parts).Error; err != nil {
		return nil, translateErr(err, "media parts")
	}
	return parts, nil
}

// Upsert reconciles a scanned file against the store: revives a soft-deleted
// row for the same path, updates size/mtime/item on an existing row, or
// inserts a new one.
func (r *PartRepository) Upsert(itemID uint, path string, size int64, mtime time.Time) (*database.MediaPart, error) {
	var part database.MediaPart
	err := r.db.Unscoped().Where("path = ?", path).First(&part).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		part = database.MediaPart{
			UUID:           uuid.NewString(),
			MetadataItemID: itemID,
			Path:           path,
			Size:           size,
			MTime:          mtime,
		}
		if err := r.db.Create(&part).Error; err != nil {
			return nil, translateErr(err, "media part")
		}
		return &part, nil
	case err != nil:
		return nil, translateErr(err, "media part")
	}
	updates := map[string]interface{}{
		"metadata_item_id": itemID,
		"size":             size,
		"m_time":           mtime,
		"deleted_at":       nil,
	}
	if err := r.db.Unscoped().Model(&part).Updates(updates).Error; err != nil {
		return nil, translateErr(err, "media part")
	}
	part.MetadataItemID = itemID
	part.Size = size
	part.MTime = mtime
	return &part, nil
}

// UpdateStreams stores file-analysis results on a part.
func (r *PartRepository) UpdateStreams(id uint, updates map[string]interface{}) error {
	return translateErr(
		r.db.Model(&database.MediaPart{}).Where("id = ?", id).Updates(updates).Error,
		"media part")
}

// SoftDeleteMissing soft-deletes parts of a section whose paths were not seen
// by the current scan, and returns the ids of items that lost their last
// part.
func (r *PartRepository) SoftDeleteMissing(sectionID uint, seenPaths map[string]bool) ([]uint, error) {
	var parts []database.MediaPart
	err := r.db.Joins("JOIN metadata_items ON metadata_items.id = media_parts.metadata_item_id").
		Where("metadata_items.library_section_id = ?", sectionID).
		Find(&parts).Error
	if err != nil {
		return nil, translateErr(err, "media parts")
	}

	affected := make(map[uint]bool)
	for _, part := range parts {
		if seenPaths[part.Path] {
			continue
		}
		if err := r.db.Delete(&database.MediaPart{}, part.ID).Error; err != nil {
			return nil, translateErr(err, "media part")
		}
		affected[part.MetadataItemID] = true
	}

	var orphaned []uint
	for itemID := range affected {
		var n int64
		if err := r.db.Model(&database.MediaPart{}).Where("metadata_item_id = ?", itemID).Count(&n).Error; err != nil {
			return nil, translateErr(err, "media parts")
		}
		if n == 0 {
			orphaned = append(orphaned, itemID)
		}
	}
	return orphaned, nil
}
