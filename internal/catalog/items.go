package catalog

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nexalabs/nexa/internal/database"
	"github.com/nexalabs/nexa/internal/errs"
	"github.com/nexalabs/nexa/internal/sortname"
)

// Canonical field names for locking and patching.
const (
	FieldTitle                 = "title"
	FieldSortTitle             = "sortTitle"
	FieldOriginalTitle         = "originalTitle"
	FieldSummary               = "summary"
	FieldTagline               = "tagline"
	FieldContentRating         = "contentRating"
	FieldYear                  = "year"
	FieldOriginallyAvailableAt = "originallyAvailableAt"
	FieldRating                = "rating"
	FieldGenres                = "genres"
	FieldTags                  = "tags"
	FieldThumb                 = "thumb"
	FieldArt                   = "art"
	FieldLogo                  = "logo"
)

// ItemPatch is a partial update of a metadata item. Nil fields are left
// untouched.
type ItemPatch struct {
	Title                 *string
	SortTitle             *string
	OriginalTitle         *string
	Summary               *string
	Tagline               *string
	ContentRating         *string
	Year                  *int
	OriginallyAvailableAt *time.Time
	Rating                *float64
	Genres                *[]string
	Tags                  *[]string
	ThumbURI              *string
	ArtURI                *string
	LogoURI               *string
}

// fieldAppliers maps each canonical field name to its patch application. The
// bool reports whether the patch carries that field.
func (p *ItemPatch) fieldAppliers(item *database.MetadataItem) map[string]func() bool {
	return map[string]func() bool{
		FieldTitle: func() bool {
			if p.Title == nil {
				return false
			}
			item.Title = *p.Title
			return true
		},
		FieldSortTitle: func() bool {
			if p.SortTitle == nil {
				return false
			}
			item.SortTitle = *p.SortTitle
			return true
		},
		FieldOriginalTitle: func() bool {
			if p.OriginalTitle == nil {
				return false
			}
			item.OriginalTitle = *p.OriginalTitle
			return true
		},
		FieldSummary: func() bool {
			if p.Summary == nil {
				return false
			}
			item.Summary = *p.Summary
			return true
		},
		FieldTagline: func() bool {
			if p.Tagline == nil {
				return false
			}
			item.Tagline = *p.Tagline
			return true
		},
		FieldContentRating: func() bool {
			if p.ContentRating == nil {
				return false
			}
			item.ContentRating = *p.ContentRating
			return true
		},
		FieldYear: func() bool {
			if p.Year == nil {
				return false
			}
			item.Year = p.Year
			return true
		},
		FieldOriginallyAvailableAt: func() bool {
			if p.OriginallyAvailableAt == nil {
				return false
			}
			item.OriginallyAvailableAt = p.OriginallyAvailableAt
			return true
		},
		FieldRating: func() bool {
			if p.Rating == nil {
				return false
			}
			item.Rating = p.Rating
			return true
		},
		FieldGenres: func() bool {
			if p.Genres == nil {
				return false
			}
			item.Genres = database.StringList(*p.Genres)
			return true
		},
		FieldTags: func() bool {
			if p.Tags == nil {
				return false
			}
			item.Tags = database.StringList(*p.Tags)
			return true
		},
		FieldThumb: func() bool {
			if p.ThumbURI == nil {
				return false
			}
			item.ThumbURI = *p.ThumbURI
			return true
		},
		FieldArt: func() bool {
			if p.ArtURI == nil {
				return false
			}
			item.ArtURI = *p.ArtURI
			return true
		},
		FieldLogo: func() bool {
			if p.LogoURI == nil {
				return false
			}
			item.LogoURI = *p.LogoURI
			return true
		},
	}
}

// ItemRepository manages metadata items.
type ItemRepository struct {
	db *gorm.DB
}

func NewItemRepository(db *gorm.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// DB exposes the underlying handle for cross-repository transactions.
func (r *ItemRepository) DB() *gorm.DB { return r.db }

// Query returns items matching q plus the cursor for the next page.
func (r *ItemRepository) Query(q ItemQuery) ([]database.MetadataItem, string, error) {
	tx, err := q.apply(r.db)
	if err != nil {
		return nil, "", err
	}
	var items []database.MetadataItem
	if err := tx.Find(&items).Error; err != nil {
		return nil, "", translateErr(err, "metadata items")
	}
	next := ""
	if q.Limit > 0 && len(items) == q.Limit {
		next = EncodeCursor(items[len(items)-1].ID, q.Order)
	}
	return items, next, nil
}

// Count returns the number of items matching q, ignoring pagination.
func (r *ItemRepository) Count(q ItemQuery) (int64, error) {
	q.Limit, q.Offset, q.Cursor = 0, 0, ""
	tx, err := q.apply(r.db)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := tx.Count(&n).Error; err != nil {
		return 0, translateErr(err, "metadata items")
	}
	return n, nil
}

// GetByUUID loads one item with its relations preloaded.
func (r *ItemRepository) GetByUUID(id string) (*database.MetadataItem, error) {
	var item database.MetadataItem
	err := r.db.Preload("ExternalIDs").Preload("ExtraFields").Preload("MediaParts").Preload("Credits").
		Where("uuid = ?", id).First(&item).Error
	if err != nil {
		return nil, translateErr(err, "metadata item")
	}
	return &item, nil
}

// GetByID loads one item by internal key.
func (r *ItemRepository) GetByID(id uint) (*database.MetadataItem, error) {
	var item database.MetadataItem
	if err := r.db.First(&item, id).Error; err != nil {
		return nil, translateErr(err, "metadata item")
	}
	return &item, nil
}

// Children returns the ordered children of an item.
func (r *ItemRepository) Children(parentID uint) ([]database.MetadataItem, error) {
	var items []database.MetadataItem
	err := r.db.Where("parent_id = ?", parentID).
		Order("item_index ASC, " + database.NaturalOrder(r.db, "sort_title", false)).
		Find(&items).Error
	if err != nil {
		return nil, translateErr(err, "item children")
	}
	return items, nil
}

// Create inserts a new item, deriving the sort title when absent.
func (r *ItemRepository) Create(item *database.MetadataItem) error {
	prepareItem(item)
	if err := r.db.Create(item).Error; err != nil {
		return translateErr(err, "metadata item")
	}
	return nil
}

func prepareItem(item *database.MetadataItem) {
	if item.UUID == "" {
		item.UUID = uuid.NewString()
	}
	if item.SortTitle == "" {
		item.SortTitle = sortname.Generate(item.Title, item.Language)
	}
}

// UpdateFromUser applies a patch on behalf of a user. Locked fields do not
// restrict user edits. A title change recomputes the sort title unless the
// patch sets one explicitly.
func (r *ItemRepository) UpdateFromUser(id uint, patch ItemPatch) (*database.MetadataItem, error) {
	return r.update(id, patch, false)
}

// UpdateFromAgent applies agent-sourced values, skipping every locked field.
func (r *ItemRepository) UpdateFromAgent(id uint, patch ItemPatch) (*database.MetadataItem, error) {
	return r.update(id, patch, true)
}

func (r *ItemRepository) update(id uint, patch ItemPatch, respectLocks bool) (*database.MetadataItem, error) {
	var updated *database.MetadataItem
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var item database.MetadataItem
		if err := tx.First(&item, id).Error; err != nil {
			return translateErr(err, "metadata item")
		}
		titleChanged := false
		sortTitleSet := false
		for field, apply := range patch.fieldAppliers(&item) {
			if respectLocks && item.LockedFields.Contains(field) {
				continue
			}
			if apply() {
				switch field {
				case FieldTitle:
					titleChanged = true
				case FieldSortTitle:
					sortTitleSet = true
				}
			}
		}
		if titleChanged && !sortTitleSet {
			if !(respectLocks && item.LockedFields.Contains(FieldSortTitle)) {
				item.SortTitle = sortname.Generate(item.Title, item.Language)
			}
		}
		if err := tx.Save(&item).Error; err != nil {
			return translateErr(err, "metadata item")
		}
		updated = &item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// LockFields adds the named canonical fields to the item's locked set.
// Locking is idempotent.
func (r *ItemRepository) LockFields(id uint, fields []string) (*database.MetadataItem, error) {
	return r.mutateLocks(id, func(locked database.StringList) database.StringList {
		for _, f := range fields {
			if !locked.Contains(f) {
				locked = append(locked, f)
			}
		}
		return locked
	})
}

// UnlockFields removes only the named fields from the locked set.
func (r *ItemRepository) UnlockFields(id uint, fields []string) (*database.MetadataItem, error) {
	remove := make(map[string]bool, len(fields))
	for _, f := range fields {
		remove[f] = true
	}
	return r.mutateLocks(id, func(locked database.StringList) database.StringList {
		out := locked[:0]
		for _, f := range locked {
			if !remove[f] {
				out = append(out, f)
			}
		}
		return out
	})
}

func (r *ItemRepository) mutateLocks(id uint, mutate func(database.StringList) database.StringList) (*database.MetadataItem, error) {
	var updated *database.MetadataItem
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var item database.MetadataItem
		if err := tx.First(&item, id).Error; err != nil {
			return translateErr(err, "metadata item")
		}
		item.LockedFields = mutate(item.LockedFields)
		if err := tx.Save(&item).Error; err != nil {
			return translateErr(err, "metadata item")
		}
		updated = &item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetPromoted flags or unflags an item for promotion surfaces.
func (r *ItemRepository) SetPromoted(id uint, promoted bool) error {
	res := r.db.Model(&database.MetadataItem{}).Where("id = ?", id).Update("promoted", promoted)
	if res.Error != nil {
		return translateErr(res.Error, "metadata item")
	}
	if res.RowsAffected == 0 {
		return errs.E(errs.NotFound, "metadata item")
	}
	return nil
}

// SoftDelete marks an item deleted. The scanner revives soft-deleted items
// when their files reappear.
func (r *ItemRepository) SoftDelete(id uint) error {
	return translateErr(r.db.Delete(&database.MetadataItem{}, id).Error, "metadata item")
}

// Revive clears the deletion timestamp on a previously soft-deleted item.
func (r *ItemRepository) Revive(id uint) error {
	return translateErr(
		r.db.Unscoped().Model(&database.MetadataItem{}).Where("id = ?", id).Update("deleted_at", nil).Error,
		"metadata item")
}

// CreditsFor returns the person credits on an item ordered by billing.
func (r *ItemRepository) CreditsFor(itemID uint, types ...database.CreditType) ([]database.PersonCredit, error) {
	q := r.db.Where("item_id = ?", itemID)
	if len(types) > 0 {
		q = q.Where("type IN ?", types)
	}
	var credits []database.PersonCredit
	if err := q.Order("position ASC").Find(&credits).Error; err != nil {
		return nil, translateErr(err, "person credits")
	}
	return credits, nil
}
