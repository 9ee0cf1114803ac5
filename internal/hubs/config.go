package hubs

import (
	"errors"

	"gorm.io/gorm"

	"github.com/nexalabs/nexa/internal/database"
	"github.com/nexalabs/nexa/internal/errs"
)

// Scope addresses one hub configuration: the Home surface, one library's
// discover surface, or one metadata type's detail surface.
type Scope struct {
	Context          Context
	LibrarySectionID *uint
	MetadataType     *database.MetadataType
}

// Validate enforces context/scope alignment.
func (s Scope) Validate() error {
	switch s.Context {
	case ContextHome:
		if s.LibrarySectionID != nil {
			return errs.E(errs.InvalidArgument, "Home hub configuration cannot be scoped to library")
		}
		if s.MetadataType != nil {
			return errs.E(errs.InvalidArgument, "Home hub configuration cannot be scoped to metadata type")
		}
	case ContextLibraryDiscover:
		if s.LibrarySectionID == nil {
			return errs.E(errs.FailedPrecondition, "LibraryDiscover hub configuration requires a library section")
		}
		if s.MetadataType != nil {
			return errs.E(errs.FailedPrecondition, "LibraryDiscover hub configuration cannot be scoped to metadata type")
		}
	case ContextItemDetail:
		if s.MetadataType == nil {
			return errs.E(errs.FailedPrecondition, "ItemDetail hub configuration requires a metadata type")
		}
		if s.LibrarySectionID != nil {
			return errs.E(errs.FailedPrecondition, "ItemDetail hub configuration cannot be scoped to library")
		}
	default:
		return errs.Ef(errs.InvalidArgument, "unknown hub context %q", s.Context)
	}
	return nil
}

// Configuration is an admin's hub ordering for one scope: an ordered enabled
// list plus an explicit disabled list. Hub types in neither list are treated
// as enabled, appended after the ordered ones.
type Configuration struct {
	Scope    Scope  `json:"scope"`
	Enabled  []Type `json:"enabled"`
	Disabled []Type `json:"disabled"`
}

// ConfigStore persists hub configurations.
type ConfigStore struct {
	db *gorm.DB
}

func NewConfigStore(db *gorm.DB) *ConfigStore {
	return &ConfigStore{db: db}
}

// Get loads the configuration for a scope; a scope with no stored row returns
// nil without error.
func (s *ConfigStore) Get(scope Scope) (*Configuration, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	var row database.HubConfigurationRow
	err := scopeWhere(s.db, scope).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.E(errs.Internal, "hub configuration", err)
	}
	return rowToConfig(&row), nil
}

// Set validates and upserts the configuration for its scope.
func (s *ConfigStore) Set(cfg Configuration) error {
	if err := cfg.Scope.Validate(); err != nil {
		return err
	}
	for _, t := range cfg.Enabled {
		for _, d := range cfg.Disabled {
			if t == d {
				return errs.Ef(errs.InvalidArgument, "hub type %q is both enabled and disabled", t)
			}
		}
	}

	var mt *string
	if cfg.Scope.MetadataType != nil {
		v := string(*cfg.Scope.MetadataType)
		mt = &v
	}
	row := database.HubConfigurationRow{
		Context:          string(cfg.Scope.Context),
		LibrarySectionID: cfg.Scope.LibrarySectionID,
		MetadataType:     mt,
		Enabled:          typesToList(cfg.Enabled),
		Disabled:         typesToList(cfg.Disabled),
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing database.HubConfigurationRow
		err := scopeWhere(tx, cfg.Scope).First(&existing).Error
		if err == nil {
			existing.Enabled = row.Enabled
			existing.Disabled = row.Disabled
			return tx.Save(&existing).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(&row).Error
	})
}

// Apply orders the definitions per the configuration: enabled types first in
// the configured order, disabled types dropped, unknown types appended in
// their default order.
func Apply(defs []Definition, cfg *Configuration) []Definition {
	if cfg == nil {
		return defs
	}
	byType := make(map[Type][]Definition)
	for _, def := range defs {
		byType[def.Type] = append(byType[def.Type], def)
	}
	disabled := make(map[Type]bool, len(cfg.Disabled))
	for _, t := range cfg.Disabled {
		disabled[t] = true
	}
	mentioned := make(map[Type]bool, len(cfg.Enabled))

	var out []Definition
	for _, t := range cfg.Enabled {
		mentioned[t] = true
		out = append(out, byType[t]...)
	}
	for _, def := range defs {
		if mentioned[def.Type] || disabled[def.Type] {
			continue
		}
		out = append(out, def)
	}
	for i := range out {
		out[i].SortOrder = i
	}
	return out
}

func scopeWhere(db *gorm.DB, scope Scope) *gorm.DB {
	q := db.Model(&database.HubConfigurationRow{}).Where("context = ?", string(scope.Context))
	if scope.LibrarySectionID != nil {
		q = q.Where("library_section_id = ?", *scope.LibrarySectionID)
	} else {
		q = q.Where("library_section_id IS NULL")
	}
	if scope.MetadataType != nil {
		q = q.Where("metadata_type = ?", string(*scope.MetadataType))
	} else {
		q = q.Where("metadata_type IS NULL")
	}
	return q
}

func rowToConfig(row *database.HubConfigurationRow) *Configuration {
	scope := Scope{Context: Context(row.Context), LibrarySectionID: row.LibrarySectionID}
	if row.MetadataType != nil {
		mt := database.MetadataType(*row.MetadataType)
		scope.MetadataType = &mt
	}
	return &Configuration{
		Scope:    scope,
		Enabled:  listToTypes(row.Enabled),
		Disabled: listToTypes(row.Disabled),
	}
}

func typesToList(ts []Type) database.StringList {
	out := make(database.StringList, len(ts))
	for i, t := range ts {
		out[i] = string(t)
	}
	return out
}

func listToTypes(l database.StringList) []Type {
	out := make([]Type, len(l))
	for i, s := range l {
		out[i] = Type(s)
	}
	return out
}
