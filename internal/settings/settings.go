// Package settings persists server settings as key/value rows late-bound to
// typed option groups.
package settings

import (
	"encoding/json"
	"errors"
	"sync"

	"gorm.io/gorm"

	"github.com/nexalabs/nexa/internal/database"
	"github.com/nexalabs/nexa/internal/errs"
)

// Option group keys.
const (
	KeyTranscode       = "transcode"
	KeyTrickplay       = "trickplay"
	KeyTagModeration   = "tag_moderation"
	KeyGenreMapping    = "genre_mapping"
	KeySession         = "session"
	KeyJobNotification = "job_notification"
	KeyRemoteMetadata  = "remote_metadata_http"
	KeyDetailFields    = "detail_fields"
)

// HardwareAcceleration kinds.
const (
	HWAccelNone  = "none"
	HWAccelVAAPI = "vaapi"
	HWAccelNVENC = "nvenc"
	HWAccelQSV   = "qsv"
	HWAccelVT    = "videotoolbox"
)

// TranscodeOptions configure the streaming transcoder.
type TranscodeOptions struct {
	VideoCodec              string `json:"videoCodec"`
	AudioCodec              string `json:"audioCodec"`
	SegmentDurationSeconds  int    `json:"segmentDurationSeconds"`
	HardwareAcceleration    string `json:"hardwareAcceleration"`
	ToneMapping             bool   `json:"toneMapping"`
	MaxConcurrentTranscodes int    `json:"maxConcurrentTranscodes"`
	IdleTimeoutSeconds      int    `json:"idleTimeoutSeconds"`
}

// TrickplayOptions configure BIF generation.
type TrickplayOptions struct {
	SnapshotIntervalMs int  `json:"snapshotIntervalMs"`
	MaxSnapshotWidth   int  `json:"maxSnapshotWidth"`
	JpegQuality        int  `json:"jpegQuality"`
	SkipExisting       bool `json:"skipExisting"`
}

// TagModerationOptions filter agent-supplied tags. A non-empty allow list
// wins; otherwise the block list removes matches; otherwise all tags pass.
type TagModerationOptions struct {
	AllowedTags []string `json:"allowedTags"`
	BlockedTags []string `json:"blockedTags"`
}

// GenreMappingOptions canonicalize agent-supplied genres.
type GenreMappingOptions struct {
	Mappings map[string]string `json:"mappings"`
}

// SessionOptions configure authentication session lifetime.
type SessionOptions struct {
	LifetimeDays int `json:"lifetimeDays"`
}

// JobNotificationOptions configure progress flushing and history retention.
type JobNotificationOptions struct {
	FlushIntervalMs      int `json:"flushIntervalMs"`
	HistoryRetentionDays int `json:"historyRetentionDays"`
}

// RemoteMetadataHttpOptions configure remote agent HTTP clients. A nil
// MaxRequests disables rate limiting entirely.
type RemoteMetadataHttpOptions struct {
	BaseAddress   string            `json:"baseAddress"`
	TimeoutSeconds int              `json:"timeoutSeconds"`
	MaxRequests   *int              `json:"maxRequests"`
	WindowSeconds int               `json:"windowSeconds"`
	Headers       map[string]string `json:"headers,omitempty"`
	InsecureTLS   bool              `json:"insecureTls"`
}

// Defaults for each option group.
func DefaultTranscode() TranscodeOptions {
	return TranscodeOptions{
		VideoCodec:              "h264",
		AudioCodec:              "aac",
		SegmentDurationSeconds:  6,
		HardwareAcceleration:    HWAccelNone,
		MaxConcurrentTranscodes: 2,
		IdleTimeoutSeconds:      60,
	}
}

func DefaultTrickplay() TrickplayOptions {
	return TrickplayOptions{SnapshotIntervalMs: 2000, MaxSnapshotWidth: 320, JpegQuality: 85, SkipExisting: true}
}

func DefaultSession() SessionOptions { return SessionOptions{LifetimeDays: 30} }

func DefaultJobNotification() JobNotificationOptions {
	return JobNotificationOptions{FlushIntervalMs: 500, HistoryRetentionDays: 7}
}

func DefaultRemoteMetadata() RemoteMetadataHttpOptions {
	ten := 10
	return RemoteMetadataHttpOptions{TimeoutSeconds: 30, MaxRequests: &ten, WindowSeconds: 1}
}

// DetailFieldOptions control which metadata fields the item detail view
// surfaces for each metadata type, in display order. Types absent from the
// map fall back to the default layout for that type.
type DetailFieldOptions struct {
	Fields map[string][]string `json:"fields"`
}

// detailFieldNames are the fields a detail layout may reference.
var detailFieldNames = map[string]bool{
	"title":         true,
	"originalTitle": true,
	"tagline":       true,
	"summary":       true,
	"rating":        true,
	"contentRating": true,
	"studio":        true,
	"genres":        true,
	"tags":          true,
	"duration":      true,
	"releaseDate":   true,
	"directors":     true,
	"writers":       true,
	"cast":          true,
}

func DefaultDetailFields() DetailFieldOptions {
	return DetailFieldOptions{Fields: map[string][]string{
		string(database.TypeMovie):   {"title", "tagline", "summary", "rating", "contentRating", "genres", "directors", "cast"},
		string(database.TypeShow):    {"title", "summary", "rating", "contentRating", "genres", "cast"},
		string(database.TypeEpisode): {"title", "summary", "releaseDate", "directors", "writers"},
	}}
}

// Store reads and writes settings rows with an in-memory cache.
type Store struct {
	db    *gorm.DB
	mu    sync.RWMutex
	cache map[string]string
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, cache: make(map[string]string)}
}

// Get returns the raw value for key, or "" when unset.
func (s *Store) Get(key string) (string, error) {
	s.mu.RLock()
	if v, ok := s.cache[key]; ok {
		s.mu.RUnlock()
		return v, nil
	}
	s.mu.RUnlock()

	var row database.ServerSetting
	err := s.db.Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", errs.E(errs.Internal, "read setting", err)
	}
	s.mu.Lock()
	s.cache[key] = row.Value
	s.mu.Unlock()
	return row.Value, nil
}

// Set upserts the raw value for key.
func (s *Store) Set(key, value string) error {
	var row database.ServerSetting
	err := s.db.Where("key = ?", key).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		err = s.db.Create(&database.ServerSetting{Key: key, Value: value}).Error
	case err == nil:
		err = s.db.Model(&row).Update("value", value).Error
	}
	if err != nil {
		return errs.E(errs.Internal, "write setting", err)
	}
	s.mu.Lock()
	s.cache[key] = value
	s.mu.Unlock()
	return nil
}

// load unmarshals the stored group into out; missing rows leave out at its
// passed-in defaults.
func (s *Store) load(key string, out interface{}) error {
	raw, err := s.Get(key)
	if err != nil {
		return err
	}
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return errs.Ef(errs.Internal, "corrupt setting %s", key)
	}
	return nil
}

func (s *Store) save(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errs.E(errs.Internal, "encode setting", err)
	}
	return s.Set(key, string(raw))
}

func (s *Store) Transcode() (TranscodeOptions, error) {
	opts := DefaultTranscode()
	return opts, s.load(KeyTranscode, &opts)
}

func (s *Store) SetTranscode(opts TranscodeOptions) error {
	if err := validateTranscode(opts); err != nil {
		return err
	}
	return s.save(KeyTranscode, opts)
}

func (s *Store) Trickplay() (TrickplayOptions, error) {
	opts := DefaultTrickplay()
	return opts, s.load(KeyTrickplay, &opts)
}

func (s *Store) SetTrickplay(opts TrickplayOptions) error {
	if opts.SnapshotIntervalMs < 100 {
		return errs.FieldError("trickplay.snapshotIntervalMs", "snapshot interval must be at least 100ms")
	}
	if opts.JpegQuality < 1 || opts.JpegQuality > 100 {
		return errs.FieldError("trickplay.jpegQuality", "jpeg quality must be between 1 and 100")
	}
	if opts.MaxSnapshotWidth < 32 {
		return errs.FieldError("trickplay.maxSnapshotWidth", "snapshot width must be at least 32")
	}
	return s.save(KeyTrickplay, opts)
}

func (s *Store) TagModeration() (TagModerationOptions, error) {
	var opts TagModerationOptions
	return opts, s.load(KeyTagModeration, &opts)
}

func (s *Store) SetTagModeration(opts TagModerationOptions) error {
	return s.save(KeyTagModeration, opts)
}

func (s *Store) GenreMapping() (GenreMappingOptions, error) {
	var opts GenreMappingOptions
	return opts, s.load(KeyGenreMapping, &opts)
}

func (s *Store) SetGenreMapping(opts GenreMappingOptions) error {
	return s.save(KeyGenreMapping, opts)
}

func (s *Store) Session() (SessionOptions, error) {
	opts := DefaultSession()
	return opts, s.load(KeySession, &opts)
}

func (s *Store) SetSession(opts SessionOptions) error {
	if opts.LifetimeDays < 1 {
		return errs.FieldError("session.lifetimeDays", "session lifetime must be at least one day")
	}
	return s.save(KeySession, opts)
}

func (s *Store) JobNotification() (JobNotificationOptions, error) {
	opts := DefaultJobNotification()
	return opts, s.load(KeyJobNotification, &opts)
}

func (s *Store) SetJobNotification(opts JobNotificationOptions) error {
	if opts.FlushIntervalMs < 50 {
		return errs.FieldError("jobNotification.flushIntervalMs", "flush interval must be at least 50ms")
	}
	if opts.HistoryRetentionDays < 0 {
		return errs.FieldError("jobNotification.historyRetentionDays", "retention must not be negative")
	}
	return s.save(KeyJobNotification, opts)
}

func (s *Store) RemoteMetadata() (RemoteMetadataHttpOptions, error) {
	opts := DefaultRemoteMetadata()
	return opts, s.load(KeyRemoteMetadata, &opts)
}

func (s *Store) SetRemoteMetadata(opts RemoteMetadataHttpOptions) error {
	if opts.TimeoutSeconds < 1 {
		return errs.FieldError("remoteMetadataHttp.timeoutSeconds", "timeout must be at least one second")
	}
	if opts.MaxRequests != nil && *opts.MaxRequests < 1 {
		return errs.FieldError("remoteMetadataHttp.maxRequests", "max requests must be positive when set")
	}
	if opts.MaxRequests != nil && opts.WindowSeconds < 1 {
		return errs.FieldError("remoteMetadataHttp.windowSeconds", "rate window must be at least one second")
	}
	return s.save(KeyRemoteMetadata, opts)
}

func (s *Store) DetailFields() (DetailFieldOptions, error) {
	opts := DefaultDetailFields()
	return opts, s.load(KeyDetailFields, &opts)
}

func (s *Store) SetDetailFields(opts DetailFieldOptions) error {
	for metadataType, fields := range opts.Fields {
		if metadataType == "" {
			return errs.FieldError("detailFields.fields", "metadata type key must not be empty")
		}
		seen := make(map[string]bool, len(fields))
		for _, field := range fields {
			path := "detailFields." + metadataType
			if !detailFieldNames[field] {
				return errs.FieldError(path, "unknown detail field "+field)
			}
			if seen[field] {
				return errs.FieldError(path, "duplicate detail field "+field)
			}
			seen[field] = true
		}
	}
	return s.save(KeyDetailFields, opts)
}

func validateTranscode(opts TranscodeOptions) error {
	switch opts.HardwareAcceleration {
	case HWAccelNone, HWAccelVAAPI, HWAccelNVENC, HWAccelQSV, HWAccelVT:
	default:
		return errs.FieldError("transcode.hardwareAcceleration", "unknown hardware acceleration kind")
	}
	if opts.SegmentDurationSeconds < 1 || opts.SegmentDurationSeconds > 30 {
		return errs.FieldError("transcode.segmentDurationSeconds", "segment duration must be between 1 and 30 seconds")
	}
	if opts.MaxConcurrentTranscodes < 1 {
		return errs.FieldError("transcode.maxConcurrentTranscodes", "at least one concurrent transcode is required")
	}
	if opts.IdleTimeoutSeconds < 5 {
		return errs.FieldError("transcode.idleTimeoutSeconds", "idle timeout must be at least 5 seconds")
	}
	return nil
}
