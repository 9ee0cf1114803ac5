package database

import (
	"time"

	"gorm.io/gorm"
)

// LibrarySection is a named bucket of root paths scanned as a unit.
type LibrarySection struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UUID      string         `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	Name      string         `gorm:"not null" json:"name"`
	Type      LibraryType    `gorm:"not null;index" json:"type"`
	Language  string         `gorm:"size:16" json:"language"`
	Locations []SectionLocation `gorm:"constraint:OnDelete:CASCADE" json:"locations"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// SectionLocation is one root path owned by a section. Paths are globally
// unique so two sections can never claim the same root.
type SectionLocation struct {
	ID               uint   `gorm:"primaryKey" json:"id"`
	LibrarySectionID uint   `gorm:"index;not null" json:"library_section_id"`
	RootPath         string `gorm:"uniqueIndex;not null" json:"root_path"`
	Position         int    `gorm:"not null;default:0" json:"position"`
}

// MetadataItem is the polymorphic catalog record, discriminated by Type.
// The parent-of tree (show→season→episode, release group→release→medium→
// track, series→edition group→edition→edition item) lives in ParentID and is
// scoped to one library section.
type MetadataItem struct {
	ID               uint         `gorm:"primaryKey" json:"id"`
	UUID             string       `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	LibrarySectionID uint         `gorm:"index;not null" json:"library_section_id"`
	Type             MetadataType `gorm:"index;not null" json:"type"`
	ParentID         *uint        `gorm:"index" json:"parent_id,omitempty"`

	Title         string `gorm:"not null" json:"title"`
	SortTitle     string `gorm:"index" json:"sort_title"`
	OriginalTitle string `json:"original_title,omitempty"`
	Summary       string `gorm:"type:text" json:"summary,omitempty"`
	Tagline       string `json:"tagline,omitempty"`
	ContentRating string `json:"content_rating,omitempty"`
	Language      string `gorm:"size:16" json:"language,omitempty"`

	// ItemIndex orders an item among its siblings: season number, episode
	// number, track number, disc number.
	ItemIndex *int `gorm:"column:item_index" json:"index,omitempty"`

	Year                  *int       `json:"year,omitempty"`
	OriginallyAvailableAt *time.Time `json:"originally_available_at,omitempty"`
	Rating                *float64   `json:"rating,omitempty"`
	DurationMs            *int64     `json:"duration_ms,omitempty"`

	Genres       StringList `gorm:"type:text" json:"genres"`
	Tags         StringList `gorm:"type:text" json:"tags"`
	LockedFields StringList `gorm:"type:text" json:"locked_fields"`

	ThumbURI      string `json:"thumb_uri,omitempty"`
	ArtURI        string `json:"art_uri,omitempty"`
	LogoURI       string `json:"logo_uri,omitempty"`
	ThumbBlurhash string `json:"thumb_blurhash,omitempty"`
	ArtBlurhash   string `json:"art_blurhash,omitempty"`

	PrimaryPersonID *uint `gorm:"index" json:"primary_person_id,omitempty"`
	Promoted        bool  `gorm:"default:false" json:"promoted"`

	ExternalIDs []ExternalID  `gorm:"constraint:OnDelete:CASCADE" json:"external_ids,omitempty"`
	ExtraFields []ExtraField  `gorm:"constraint:OnDelete:CASCADE" json:"extra_fields,omitempty"`
	MediaParts  []MediaPart   `gorm:"constraint:OnDelete:CASCADE" json:"media_parts,omitempty"`
	Credits     []PersonCredit `gorm:"foreignKey:ItemID;constraint:OnDelete:CASCADE" json:"credits,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// ItemRelation is a typed non-tree edge between items. Kind "extra" links an
// owner item to a trailer/featurette/etc.
type ItemRelation struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	OwnerID   uint   `gorm:"index:idx_relation_owner,unique;not null" json:"owner_id"`
	RelatedID uint   `gorm:"index:idx_relation_owner,unique;not null" json:"related_id"`
	Kind      string `gorm:"index:idx_relation_owner,unique;not null" json:"kind"`
	Position  int    `gorm:"default:0" json:"position"`
}

// PersonCredit links a person item to a credited item with a credit type and
// optional role string.
type PersonCredit struct {
	ID       uint       `gorm:"primaryKey" json:"id"`
	PersonID uint       `gorm:"index;not null" json:"person_id"`
	ItemID   uint       `gorm:"index;not null" json:"item_id"`
	Type     CreditType `gorm:"not null" json:"type"`
	Role     string     `json:"role,omitempty"`
	Position int        `gorm:"default:0" json:"position"`
}

// ExternalID references the item in an external catalog. One value per
// provider per item.
type ExternalID struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	MetadataItemID uint   `gorm:"index:idx_external_provider,unique;not null" json:"metadata_item_id"`
	Provider       string `gorm:"index:idx_external_provider,unique;not null" json:"provider"`
	Value          string `gorm:"not null" json:"value"`
}

// ExtraField is an open key → JSON value extension on an item.
type ExtraField struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	MetadataItemID uint   `gorm:"index:idx_extra_key,unique;not null" json:"metadata_item_id"`
	Key            string `gorm:"index:idx_extra_key,unique;not null" json:"key"`
	Value          string `gorm:"type:text" json:"value"`
}

// MediaPart is a concrete file on disk backing an item. Stream attributes are
// filled in by file analysis.
type MediaPart struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	UUID           string `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	MetadataItemID uint   `gorm:"index;not null" json:"metadata_item_id"`
	Path           string `gorm:"uniqueIndex;not null" json:"path"`
	Size           int64  `gorm:"not null" json:"size"`
	MTime          time.Time `gorm:"not null" json:"mtime"`

	Container   string `json:"container,omitempty"`
	VideoCodec  string `json:"video_codec,omitempty"`
	AudioCodec  string `json:"audio_codec,omitempty"`
	BitrateKbps int    `json:"bitrate_kbps,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	HasHDR      bool   `json:"has_hdr,omitempty"`
	DurationMs  int64  `json:"duration_ms,omitempty"`
	AudioLang   string `gorm:"size:16" json:"audio_lang,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// User is an account on the server.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UUID         string    `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `gorm:"not null" json:"-"`
	IsAdmin      bool      `gorm:"default:false" json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Device is a client installation registered by a user. The client-supplied
// identifier is unique per user.
type Device struct {
	ID               uint   `gorm:"primaryKey" json:"id"`
	UUID             string `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	UserID           uint   `gorm:"index:idx_device_user,unique;not null" json:"user_id"`
	ClientIdentifier string `gorm:"index:idx_device_user,unique;not null" json:"client_identifier"`
	Name             string `json:"name"`
	Platform         string `json:"platform"`
	Version          string `json:"version,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Session binds a user to a device until expiry or revocation.
type Session struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	PublicID   string    `gorm:"uniqueIndex;size:36;not null" json:"public_id"`
	UserID     uint      `gorm:"index;not null" json:"user_id"`
	DeviceID   uint      `gorm:"index;not null" json:"device_id"`
	IssuedAt   time.Time `gorm:"not null" json:"issued_at"`
	ExpiresAt  time.Time `gorm:"not null" json:"expires_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	Revoked    bool      `gorm:"default:false" json:"revoked"`
}

// JobNotificationEntry tracks one background job's progress for clients. At
// most one non-terminal entry exists per (library section, job type); history
// rows accumulate until retention purges them.
type JobNotificationEntry struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UUID             string    `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	LibrarySectionID *uint     `gorm:"index" json:"library_section_id,omitempty"`
	MetadataItemID   *uint     `gorm:"index" json:"metadata_item_id,omitempty"`
	JobType          JobType   `gorm:"index;not null" json:"job_type"`
	Status           JobStatus `gorm:"index;not null" json:"status"`
	Progress         float64   `json:"progress"`
	CompletedItems   int64     `json:"completed_items"`
	TotalItems       int64     `json:"total_items"`
	Message          string    `json:"message,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ServerSetting is one persisted key/value settings row.
type ServerSetting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"uniqueIndex;not null" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PlaybackState persists a user's resume position on an item.
type PlaybackState struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"index:idx_state_user_item,unique;not null" json:"user_id"`
	MetadataItemID uint      `gorm:"index:idx_state_user_item,unique;not null" json:"metadata_item_id"`
	PositionMs     int64     `json:"position_ms"`
	DurationMs     int64     `json:"duration_ms"`
	Watched        bool      `gorm:"default:false" json:"watched"`
	LastWatchedAt  time.Time `json:"last_watched_at"`
}

// HubConfigurationRow stores an admin's hub ordering for one scope.
type HubConfigurationRow struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Context          string     `gorm:"index:idx_hub_scope,unique;not null" json:"context"`
	LibrarySectionID *uint      `gorm:"index:idx_hub_scope,unique" json:"library_section_id,omitempty"`
	MetadataType     *string    `gorm:"index:idx_hub_scope,unique" json:"metadata_type,omitempty"`
	Enabled          StringList `gorm:"type:text" json:"enabled"`
	Disabled         StringList `gorm:"type:text" json:"disabled"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// AllModels is the migration registry, ordered so referenced tables are
// created before their dependents.
func AllModels() []interface{} {
	return []interface{}{
		&LibrarySection{},
		&SectionLocation{},
		&MetadataItem{},
		&ItemRelation{},
		&PersonCredit{},
		&ExternalID{},
		&ExtraField{},
		&MediaPart{},
		&User{},
		&Device{},
		&Session{},
		&JobNotificationEntry{},
		&ServerSetting{},
		&PlaybackState{},
		&HubConfigurationRow{},
	}
}
