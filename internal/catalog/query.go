// Package catalog exposes typed repositories over the persisted item graph.
package catalog

import (
	"encoding/base64"
	"encoding/json"
	"errors"

	"gorm.io/gorm"

	"github.com/nexalabs/nexa/internal/database"
	"github.com/nexalabs/nexa/internal/errs"
)

// ItemOrder selects the ordering of an item query.
type ItemOrder string

const (
	OrderSortTitle    ItemOrder = "sortTitle"
	OrderTitle        ItemOrder = "title"
	OrderAddedAt      ItemOrder = "addedAt"
	OrderReleasedAt   ItemOrder = "releasedAt"
	OrderRating       ItemOrder = "rating"
	OrderItemIndex    ItemOrder = "index"
	OrderYear         ItemOrder = "year"
	OrderDurationMs   ItemOrder = "duration"
	OrderLastWatched  ItemOrder = "lastWatched"
)

// ItemQuery is a composable filter over metadata items.
type ItemQuery struct {
	SectionID  *uint
	SectionIDs []uint
	Types      []database.MetadataType
	ParentID   *uint
	Promoted   *bool
	TitleQuery string
	Genre      string
	Order      ItemOrder
	Descending bool
	Offset     int
	Limit      int
	Cursor     string
}

// cursor is the opaque pagination token: last seen row id for the active
// ordering.
type cursor struct {
	LastID uint   `json:"l"`
	Order  string `json:"o"`
}

// EncodeCursor builds the opaque token returned to clients.
func EncodeCursor(lastID uint, order ItemOrder) string {
	b, _ := json.Marshal(cursor{LastID: lastID, Order: string(order)})
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodeCursor(token string) (cursor, error) {
	var c cursor
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return c, errs.E(errs.InvalidArgument, "malformed cursor", err)
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return c, errs.E(errs.InvalidArgument, "malformed cursor", err)
	}
	return c, nil
}

func (q ItemQuery) apply(db *gorm.DB) (*gorm.DB, error) {
	tx := db.Model(&database.MetadataItem{})
	if q.SectionID != nil {
		tx = tx.Where("library_section_id = ?", *q.SectionID)
	}
	if len(q.SectionIDs) > 0 {
		tx = tx.Where("library_section_id IN ?", q.SectionIDs)
	}
	if len(q.Types) > 0 {
		tx = tx.Where("type IN ?", q.Types)
	}
	if q.ParentID != nil {
		tx = tx.Where("parent_id = ?", *q.ParentID)
	}
	if q.Promoted != nil {
		tx = tx.Where("promoted = ?", *q.Promoted)
	}
	if q.TitleQuery != "" {
		tx = tx.Where("title LIKE ? OR original_title LIKE ?", "%"+q.TitleQuery+"%", "%"+q.TitleQuery+"%")
	}
	if q.Genre != "" {
		tx = tx.Where("genres LIKE ?", "%\""+q.Genre+"\"%")
	}
	if q.Cursor != "" {
		c, err := decodeCursor(q.Cursor)
		if err != nil {
			return nil, err
		}
		tx = tx.Where("id > ?", c.LastID)
	} else if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}
	tx = tx.Order(orderExpr(db, q.Order, q.Descending))
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	return tx, nil
}

func orderExpr(db *gorm.DB, order ItemOrder, desc bool) string {
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	switch order {
	case OrderTitle:
		return database.NaturalOrder(db, "title", desc)
	case OrderAddedAt:
		return "created_at " + dir + ", id " + dir
	case OrderReleasedAt:
		return "originally_available_at " + dir
	case OrderRating:
		return "rating " + dir
	case OrderItemIndex:
		return "item_index " + dir
	case OrderYear:
		return "year " + dir
	case OrderDurationMs:
		return "duration_ms " + dir
	case OrderSortTitle, "":
		fallthrough
	default:
		return database.NaturalOrder(db, "sort_title", desc)
	}
}

// AvailableSortFields lists the orderings a client may request for a library.
func AvailableSortFields(t database.LibraryType) []ItemOrder {
	fields := []ItemOrder{OrderSortTitle, OrderTitle, OrderAddedAt, OrderReleasedAt, OrderRating, OrderYear}
	switch t {
	case database.LibraryMusic, database.LibraryAudiobooks, database.LibraryPodcasts:
		fields = append(fields, OrderItemIndex, OrderDurationMs)
	}
	return fields
}

// translateErr maps database failures to typed errors.
func translateErr(err error, notFoundMsg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errs.E(errs.NotFound, notFoundMsg, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return errs.E(errs.Conflict, "duplicate key", err)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return errs.E(errs.Internal, "referential integrity violation", err)
	default:
		return errs.E(errs.Internal, "database error", err)
	}
}
