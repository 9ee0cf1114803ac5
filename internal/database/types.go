package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// LibraryType identifies what a library section holds.
type LibraryType string

const (
	LibraryMovies      LibraryType = "movies"
	LibraryTVShows     LibraryType = "tvshows"
	LibraryMusic       LibraryType = "music"
	LibraryMusicVideos LibraryType = "musicvideos"
	LibraryHomeVideos  LibraryType = "homevideos"
	LibraryAudiobooks  LibraryType = "audiobooks"
	LibraryPodcasts    LibraryType = "podcasts"
	LibraryPhotos      LibraryType = "photos"
	LibraryPictures    LibraryType = "pictures"
	LibraryBooks       LibraryType = "books"
	LibraryComics      LibraryType = "comics"
	LibraryManga       LibraryType = "manga"
	LibraryMagazines   LibraryType = "magazines"
	LibraryGames       LibraryType = "games"
)

// MetadataType discriminates the polymorphic metadata item record.
type MetadataType string

const (
	TypeMovie             MetadataType = "movie"
	TypeShow              MetadataType = "show"
	TypeSeason            MetadataType = "season"
	TypeEpisode           MetadataType = "episode"
	TypeAlbumReleaseGroup MetadataType = "album_release_group"
	TypeAlbumRelease      MetadataType = "album_release"
	TypeAlbumMedium       MetadataType = "album_medium"
	TypeTrack             MetadataType = "track"
	TypeAudioWork         MetadataType = "audio_work"
	TypeBookSeries        MetadataType = "book_series"
	TypeEditionGroup      MetadataType = "edition_group"
	TypeEdition           MetadataType = "edition"
	TypeEditionItem       MetadataType = "edition_item"
	TypeLiteraryWork      MetadataType = "literary_work"
	TypeLiteraryWorkPart  MetadataType = "literary_work_part"
	TypeGame              MetadataType = "game"
	TypeGameRelease       MetadataType = "game_release"
	TypePerson            MetadataType = "person"
	TypeGroup             MetadataType = "group"
	TypePlaylist          MetadataType = "playlist"
	TypePhoto             MetadataType = "photo"
	TypePicture           MetadataType = "picture"
	TypePhotoAlbum        MetadataType = "photo_album"
	TypePictureSet        MetadataType = "picture_set"
	TypeCollection        MetadataType = "collection"
	TypeTrailer           MetadataType = "trailer"
	TypeFeaturette        MetadataType = "featurette"
	TypeDeletedScene      MetadataType = "deleted_scene"
	TypeBehindTheScenes   MetadataType = "behind_the_scenes"
	TypeInterview         MetadataType = "interview"
	TypeShort             MetadataType = "short"
	TypeScene             MetadataType = "scene"
	TypeExtraOther        MetadataType = "extra_other"
)

// ExtraTypes are the metadata types attached to an owner item through
// contains-extra relations.
var ExtraTypes = map[MetadataType]bool{
	TypeTrailer:         true,
	TypeFeaturette:      true,
	TypeDeletedScene:    true,
	TypeBehindTheScenes: true,
	TypeInterview:       true,
	TypeShort:           true,
	TypeScene:           true,
	TypeExtraOther:      true,
}

// CreditType classifies a person credit on an item.
type CreditType string

const (
	CreditActor     CreditType = "actor"
	CreditDirector  CreditType = "director"
	CreditWriter    CreditType = "writer"
	CreditProducer  CreditType = "producer"
	CreditComposer  CreditType = "composer"
	CreditPerformer CreditType = "performer"
	CreditConductor CreditType = "conductor"
	CreditAuthor    CreditType = "author"
	CreditNarrator  CreditType = "narrator"
)

// JobType identifies a background job family.
type JobType string

const (
	JobLibraryScan          JobType = "library_scan"
	JobMetadataRefresh      JobType = "metadata_refresh"
	JobFileAnalysis         JobType = "file_analysis"
	JobImageGeneration      JobType = "image_generation"
	JobTrickplayGeneration  JobType = "trickplay_generation"
	JobNotificationCleanup  JobType = "notification_cleanup"
)

// JobStatus is the lifecycle state of a job notification entry. Transitions
// are monotonic: Pending → Running → one of the terminal states.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusSucceeded JobStatus = "succeeded"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s JobStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// StringList is a JSON-encoded string slice column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src interface{}) error {
	if src == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}
	if len(data) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(data, (*[]string)(l))
}

// Contains reports whether the list holds v.
func (l StringList) Contains(v string) bool {
	for _, s := range l {
		if s == v {
			return true
		}
	}
	return false
}
