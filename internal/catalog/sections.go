package catalog

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nexalabs/nexa/internal/database"
	"github.com/nexalabs/nexa/internal/errs"
)

// SectionRepository manages library sections and their root locations.
type SectionRepository struct {
	db *gorm.DB
}

func NewSectionRepository(db *gorm.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// Create validates and persists a new section. Root paths must not overlap
// any path already claimed by another section.
func (r *SectionRepository) Create(name string, libType database.LibraryType, language string, roots []string) (*database.LibrarySection, error) {
	if name == "" {
		return nil, errs.FieldError("name", "section name is required")
	}
	if len(roots) == 0 {
		return nil, errs.FieldError("locations", "at least one root path is required")
	}
	cleaned := make([]string, len(roots))
	for i, root := range roots {
		cleaned[i] = filepath.Clean(root)
	}
	if err := r.checkOverlap(cleaned, 0); err != nil {
		return nil, err
	}

	section := &database.LibrarySection{
		UUID:     uuid.NewString(),
		Name:     name,
		Type:     libType,
		Language: language,
	}
	for i, root := range cleaned {
		section.Locations = append(section.Locations, database.SectionLocation{
			RootPath: root,
			Position: i,
		})
	}
	if err := r.db.Create(section).Error; err != nil {
		return nil, translateErr(err, "library section")
	}
	return section, nil
}

// CheckOverlap reports a Conflict error when any of the roots overlaps a root
// belonging to a different section. Creation enforces it; scans surface it as
// a warning for sections created before enforcement.
func (r *SectionRepository) CheckOverlap(roots []string, excludeSection uint) error {
	return r.checkOverlap(roots, excludeSection)
}

// checkOverlap rejects roots that are equal to, contained in, or containing a
// root of any other section. excludeSection skips the section being updated.
func (r *SectionRepository) checkOverlap(roots []string, excludeSection uint) error {
	var existing []database.SectionLocation
	q := r.db.Model(&database.SectionLocation{}).
		Joins("JOIN library_sections ON library_sections.id = section_locations.library_section_id").
		Where("library_sections.deleted_at IS NULL")
	if excludeSection != 0 {
		q = q.Where("section_locations.library_section_id <> ?", excludeSection)
	}
	if err := q.Find(&existing).Error; err != nil {
		return translateErr(err, "section locations")
	}
	for _, root := range roots {
		for _, loc := range existing {
			if pathsOverlap(root, loc.RootPath) {
				return errs.Ef(errs.Conflict, "root path %q overlaps existing library root %q", root, loc.RootPath)
			}
		}
	}
	return nil
}

func pathsOverlap(a, b string) bool {
	a, b = filepath.Clean(a), filepath.Clean(b)
	if a == b {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(a, b+sep) || strings.HasPrefix(b, a+sep)
}

// ValidateRoots checks that every root exists and is a readable directory.
// Called at scan start.
func (r *SectionRepository) ValidateRoots(section *database.LibrarySection) error {
	for _, loc := range section.Locations {
		info, err := os.Stat(loc.RootPath)
		if err != nil {
			return errs.Ef(errs.FailedPrecondition, "library root %q is not accessible", loc.RootPath)
		}
		if !info.IsDir() {
			return errs.Ef(errs.FailedPrecondition, "library root %q is not a directory", loc.RootPath)
		}
		if _, err := os.ReadDir(loc.RootPath); err != nil {
			return errs.Ef(errs.FailedPrecondition, "library root %q is not readable", loc.RootPath)
		}
	}
	return nil
}

// GetByUUID loads a section with its locations.
func (r *SectionRepository) GetByUUID(id string) (*database.LibrarySection, error) {
	var section database.LibrarySection
	err := r.db.Preload("Locations").Where("uuid = ?", id).First(&section).Error
	if err != nil {
		return nil, translateErr(err, "library section")
	}
	return &section, nil
}

// GetByID loads a section by internal key.
func (r *SectionRepository) GetByID(id uint) (*database.LibrarySection, error) {
	var section database.LibrarySection
	err := r.db.Preload("Locations").First(&section, id).Error
	if err != nil {
		return nil, translateErr(err, "library section")
	}
	return &section, nil
}

// List returns all sections ordered by name.
func (r *SectionRepository) List() ([]database.LibrarySection, error) {
	var sections []database.LibrarySection
	err := r.db.Preload("Locations").Order(database.NaturalOrder(r.db, "name", false)).Find(&sections).Error
	if err != nil {
		return nil, translateErr(err, "library sections")
	}
	return sections, nil
}

// Rename updates the section name.
func (r *SectionRepository) Rename(id uint, name string) error {
	if name == "" {
		return errs.FieldError("name", "section name is required")
	}
	res := r.db.Model(&database.LibrarySection{}).Where("id = ?", id).Update("name", name)
	if res.Error != nil {
		return translateErr(res.Error, "library section")
	}
	if res.RowsAffected == 0 {
		return errs.E(errs.NotFound, "library section")
	}
	return nil
}

// Delete removes a section and cascades to every item attributed to it.
func (r *SectionRepository) Delete(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var section database.LibrarySection
		if err := tx.First(&section, id).Error; err != nil {
			return translateErr(err, "library section")
		}
		var itemIDs []uint
		if err := tx.Model(&database.MetadataItem{}).Where("library_section_id = ?", id).Pluck("id", &itemIDs).Error; err != nil {
			return translateErr(err, "section items")
		}
		if len(itemIDs) > 0 {
			for _, del := range []struct {
				model interface{}
				where string
			}{
				{&database.MediaPart{}, "metadata_item_id IN ?"},
				{&database.ExternalID{}, "metadata_item_id IN ?"},
				{&database.ExtraField{}, "metadata_item_id IN ?"},
				{&database.PersonCredit{}, "item_id IN ?"},
				{&database.ItemRelation{}, "owner_id IN ?"},
			} {
				if err := tx.Where(del.where, itemIDs).Delete(del.model).Error; err != nil {
					return translateErr(err, "section children")
				}
			}
			if err := tx.Where("id IN ?", itemIDs).Delete(&database.MetadataItem{}).Error; err != nil {
				return translateErr(err, "section items")
			}
		}
		if err := tx.Where("library_section_id = ?", id).Delete(&database.SectionLocation{}).Error; err != nil {
			return translateErr(err, "section locations")
		}
		if err := tx.Delete(&section).Error; err != nil {
			return translateErr(err, "library section")
		}
		return nil
	})
}

// RootItemTypes maps a library type to the metadata types browsable at its
// top level.
func RootItemTypes(t database.LibraryType) []database.MetadataType {
	switch t {
	case database.LibraryMovies:
		return []database.MetadataType{database.TypeMovie}
	case database.LibraryTVShows:
		return []database.MetadataType{database.TypeShow}
	case database.LibraryMusic:
		return []database.MetadataType{database.TypeAlbumReleaseGroup, database.TypePerson, database.TypeTrack}
	case database.LibraryMusicVideos:
		return []database.MetadataType{database.TypeMovie}
	case database.LibraryHomeVideos:
		return []database.MetadataType{database.TypeMovie}
	case database.LibraryAudiobooks, database.LibraryBooks, database.LibraryComics, database.LibraryManga, database.LibraryMagazines:
		return []database.MetadataType{database.TypeBookSeries, database.TypeLiteraryWork}
	case database.LibraryPodcasts:
		return []database.MetadataType{database.TypeShow, database.TypeEpisode}
	case database.LibraryPhotos:
		return []database.MetadataType{database.TypePhotoAlbum, database.TypePhoto}
	case database.LibraryPictures:
		return []database.MetadataType{database.TypePictureSet, database.TypePicture}
	case database.LibraryGames:
		return []database.MetadataType{database.TypeGame}
	default:
		return nil
	}
}

// LetterBucket is one entry of a section letter index.
type LetterBucket struct {
	Letter string `json:"letter"`
	Count  int64  `json:"count"`
}

// LetterIndex buckets a section's items by first sort-title rune: A-Z, with
// everything else under "#".
func (r *SectionRepository) LetterIndex(sectionID uint, types []database.MetadataType) ([]LetterBucket, error) {
	var titles []string
	q := r.db.Model(&database.MetadataItem{}).Where("library_section_id = ?", sectionID)
	if len(types) > 0 {
		q = q.Where("type IN ?", types)
	}
	if err := q.Pluck("sort_title", &titles).Error; err != nil {
		return nil, translateErr(err, "letter index")
	}
	counts := make(map[string]int64)
	for _, title := range titles {
		counts[letterFor(title)]++
	}
	var out []LetterBucket
	for _, letter := range append([]string{"#"}, azLetters()...) {
		if counts[letter] > 0 {
			out = append(out, LetterBucket{Letter: letter, Count: counts[letter]})
		}
	}
	return out, nil
}

func letterFor(title string) string {
	for _, r := range strings.ToUpper(title) {
		if r >= 'A' && r <= 'Z' {
			return string(r)
		}
		return "#"
	}
	return "#"
}

func azLetters() []string {
	out := make([]string, 26)
	for i := 0; i < 26; i++ {
		out[i] = string(rune('A' + i))
	}
	return out
}
