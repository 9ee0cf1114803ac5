package agents

import (
	"context"
	"sort"
	"time"

	"github.com/nexalabs/nexa/internal/database"
	"github.com/nexalabs/nexa/internal/logger"
)

// Category orders agents within the chain: sidecar files first, then tags
// embedded in the media, then filename/layout parsing, then remote catalogs.
type Category int

const (
	CategorySidecar Category = iota
	CategoryEmbedded
	CategoryLocal
	CategoryRemote
)

func (c Category) String() string {
	switch c {
	case CategorySidecar:
		return "sidecar"
	case CategoryEmbedded:
		return "embedded"
	case CategoryLocal:
		return "local"
	case CategoryRemote:
		return "remote"
	}
	return "unknown"
}

// FileRef is one candidate file inside a unit.
type FileRef struct {
	Path  string
	Size  int64
	MTime time.Time
	Ext   string
}

// Unit is a group of files whose aggregate becomes one item graph: all parts
// of a movie, all tracks of an album medium, one episode file.
type Unit struct {
	LibrarySectionID uint
	LibraryType      database.LibraryType
	Language         string
	IntendedType     database.MetadataType
	Files            []FileRef

	// Layout-derived grouping context, filled by the classify/match stages.
	ShowTitle    string
	SeasonNumber int
	ArtistName   string
	AlbumTitle   string
	DiscNumber   int
}

// Agent extracts metadata hints from a unit. Implementations are stateless
// and safe for concurrent invocation.
type Agent interface {
	Name() string
	Category() Category
	DefaultOrder() int
	SupportedLibraryTypes() []database.LibraryType
	Extract(ctx context.Context, unit *Unit) (*Hints, error)
}

// Registry holds the configured agents in chain order.
type Registry struct {
	agents []Agent
}

// NewRegistry orders the given agents by category, then default order, then
// name.
func NewRegistry(agents ...Agent) *Registry {
	sorted := append([]Agent(nil), agents...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Category() != sorted[j].Category() {
			return sorted[i].Category() < sorted[j].Category()
		}
		if sorted[i].DefaultOrder() != sorted[j].DefaultOrder() {
			return sorted[i].DefaultOrder() < sorted[j].DefaultOrder()
		}
		return sorted[i].Name() < sorted[j].Name()
	})
	return &Registry{agents: sorted}
}

// ForLibrary returns the chain slice applicable to a library type.
func (r *Registry) ForLibrary(t database.LibraryType) []Agent {
	var out []Agent
	for _, agent := range r.agents {
		for _, supported := range agent.SupportedLibraryTypes() {
			if supported == t {
				out = append(out, agent)
				break
			}
		}
	}
	return out
}

// ExtractAll runs the applicable chain over a unit and merges hints in chain
// order. An agent failure is logged and skipped; it never fails the unit.
func (r *Registry) ExtractAll(ctx context.Context, unit *Unit) *Hints {
	merged := NewHints()
	for _, agent := range r.ForLibrary(unit.LibraryType) {
		if ctx.Err() != nil {
			return merged
		}
		hints, err := agent.Extract(ctx, unit)
		if err != nil {
			logger.Warn("metadata agent failed", "agent", agent.Name(), "category", agent.Category().String(), "error", err)
			continue
		}
		merged.Merge(hints)
	}
	return merged
}

var allLibraryTypes = []database.LibraryType{
	database.LibraryMovies, database.LibraryTVShows, database.LibraryMusic,
	database.LibraryMusicVideos, database.LibraryHomeVideos, database.LibraryAudiobooks,
	database.LibraryPodcasts, database.LibraryPhotos, database.LibraryPictures,
	database.LibraryBooks, database.LibraryComics, database.LibraryManga,
	database.LibraryMagazines, database.LibraryGames,
}
