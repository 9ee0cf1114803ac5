package catalog

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cast"
	"gorm.io/gorm"

	"github.com/nexalabs/nexa/internal/database"
)

// ExtraFieldRepository manages the open key → typed JSON value extension on
// items.
type ExtraFieldRepository struct {
	db *gorm.DB
}

func NewExtraFieldRepository(db *gorm.DB) *ExtraFieldRepository {
	return &ExtraFieldRepository{db: db}
}

// Set stores a JSON-encodable value under key for an item.
func (r *ExtraFieldRepository) Set(itemID uint, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return translateErr(err, "extra field")
	}
	var existing database.ExtraField
	err = r.db.Where("metadata_item_id = ? AND key = ?", itemID, key).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return translateErr(r.db.Create(&database.ExtraField{
			MetadataItemID: itemID,
			Key:            key,
			Value:          string(raw),
		}).Error, "extra field")
	}
	if err != nil {
		return translateErr(err, "extra field")
	}
	return translateErr(r.db.Model(&existing).Update("value", string(raw)).Error, "extra field")
}

// GetString reads a field and coerces it to text: strings pass through,
// numbers print as raw text, booleans become "1"/"0". The bool reports
// presence; uncoercible or malformed values read as absent.
func (r *ExtraFieldRepository) GetString(itemID uint, key string) (string, bool) {
	var field database.ExtraField
	err := r.db.Where("metadata_item_id = ? AND key = ?", itemID, key).First(&field).Error
	if err != nil {
		return "", false
	}
	return CoerceString(field.Value)
}

// CoerceString applies the read coercion rules to a raw JSON value.
func CoerceString(raw string) (string, bool) {
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		if t {
			return "1", true
		}
		return "0", true
	case float64:
		// json.Number formatting without trailing zero noise.
		s, err := cast.ToStringE(t)
		if err != nil {
			return "", false
		}
		return s, true
	case nil:
		return "", false
	default:
		return "", false
	}
}

// All returns every extra field on an item keyed by name, values coerced.
func (r *ExtraFieldRepository) All(itemID uint) (map[string]string, error) {
	var fields []database.ExtraField
	if err := r.db.Where("metadata_item_id = ?", itemID).Find(&fields).Error; err != nil {
		return nil, translateErr(err, "extra fields")
	}
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		if s, ok := CoerceString(f.Value); ok {
			out[f.Key] = s
		}
	}
	return out, nil
}
