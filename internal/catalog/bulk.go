package catalog

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nexalabs/nexa/internal/database"
)

// PartSpec describes a file to link while bulk-inserting an item.
type PartSpec struct {
	Path  string
	Size  int64
	MTime time.Time
}

// CreditSpec names a person credit to attach; the person item is resolved or
// created inside the same transaction.
type CreditSpec struct {
	PersonName string
	Type       database.CreditType
	Role       string
	Position   int
}

// ItemGraph is one item plus its child collections, inserted as a unit.
type ItemGraph struct {
	Item        database.MetadataItem
	ExternalIDs map[string]string
	ExtraFields map[string]interface{}
	Credits     []CreditSpec
	Parts       []PartSpec
	Children    []ItemGraph
}

// BulkRepository performs scan-throughput writes.
type BulkRepository struct {
	db *gorm.DB
}

func NewBulkRepository(db *gorm.DB) *BulkRepository {
	return &BulkRepository{db: db}
}

// Insert writes a batch of item graphs in a single transaction and returns
// the newly assigned root keys in input order.
func (r *BulkRepository) Insert(graphs []ItemGraph) ([]uint, error) {
	return r.InsertUnder(nil, graphs)
}

// InsertUnder inserts the graphs as children of an existing item. A nil
// parent inserts them as roots.
func (r *BulkRepository) InsertUnder(parentID *uint, graphs []ItemGraph) ([]uint, error) {
	ids := make([]uint, 0, len(graphs))
	err := r.db.Transaction(func(tx *gorm.DB) error {
		for i := range graphs {
			id, err := insertGraph(tx, &graphs[i], parentID)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func insertGraph(tx *gorm.DB, g *ItemGraph, parentID *uint) (uint, error) {
	item := g.Item
	item.ParentID = parentID
	prepareItem(&item)
	if err := tx.Create(&item).Error; err != nil {
		return 0, translateErr(err, "metadata item")
	}

	for provider, value := range g.ExternalIDs {
		row := database.ExternalID{MetadataItemID: item.ID, Provider: provider, Value: value}
		if err := tx.Create(&row).Error; err != nil {
			return 0, translateErr(err, "external id")
		}
	}
	for key, value := range g.ExtraFields {
		raw, err := json.Marshal(value)
		if err != nil {
			return 0, translateErr(err, "extra field")
		}
		row := database.ExtraField{MetadataItemID: item.ID, Key: key, Value: string(raw)}
		if err := tx.Create(&row).Error; err != nil {
			return 0, translateErr(err, "extra field")
		}
	}
	for _, credit := range g.Credits {
		personID, err := resolvePerson(tx, item.LibrarySectionID, credit.PersonName)
		if err != nil {
			return 0, err
		}
		row := database.PersonCredit{
			PersonID: personID,
			ItemID:   item.ID,
			Type:     credit.Type,
			Role:     credit.Role,
			Position: credit.Position,
		}
		if err := tx.Create(&row).Error; err != nil {
			return 0, translateErr(err, "person credit")
		}
	}
	for _, part := range g.Parts {
		row := database.MediaPart{
			UUID:           uuid.NewString(),
			MetadataItemID: item.ID,
			Path:           part.Path,
			Size:           part.Size,
			MTime:          part.MTime,
		}
		if err := tx.Create(&row).Error; err != nil {
			return 0, translateErr(err, "media part")
		}
	}
	for i := range g.Children {
		if _, err := insertGraph(tx, &g.Children[i], &item.ID); err != nil {
			return 0, err
		}
	}

	if database.ExtraTypes[item.Type] && parentID != nil {
		rel := database.ItemRelation{OwnerID: *parentID, RelatedID: item.ID, Kind: "extra"}
		if err := tx.Create(&rel).Error; err != nil {
			return 0, translateErr(err, "item relation")
		}
	}
	return item.ID, nil
}

// resolvePerson finds or creates the person item for a credited name within
// a section.
func resolvePerson(tx *gorm.DB, sectionID uint, name string) (uint, error) {
	var person database.MetadataItem
	err := tx.Where("library_section_id = ? AND type = ? AND title = ?", sectionID, database.TypePerson, name).
		First(&person).Error
	if err == nil {
		return person.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, translateErr(err, "person")
	}
	person = database.MetadataItem{
		LibrarySectionID: sectionID,
		Type:             database.TypePerson,
		Title:            name,
	}
	prepareItem(&person)
	if err := tx.Create(&person).Error; err != nil {
		return 0, translateErr(err, "person")
	}
	return person.ID, nil
}
