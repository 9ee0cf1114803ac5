// Package hubs resolves discovery-surface hub definitions into ranked item
// and person lists.
package hubs

import (
	"github.com/nexalabs/nexa/internal/database"
)

// Type names a hub's ranking rule.
type Type string

const (
	RecentlyAdded    Type = "RecentlyAdded"
	ContinueWatching Type = "ContinueWatching"
	RecentlyReleased Type = "RecentlyReleased"
	TopRated         Type = "TopRated"
	ByGenre          Type = "ByGenre"
	ByDirector       Type = "ByDirector"
	MoreFromShow     Type = "MoreFromShow"
	Cast             Type = "Cast"
	Crew             Type = "Crew"
)

// Context scopes where a hub appears.
type Context string

const (
	ContextHome            Context = "Home"
	ContextLibraryDiscover Context = "LibraryDiscover"
	ContextItemDetail      Context = "ItemDetail"
)

// Definition is one compiled hub: what it shows, where, and in what order
// relative to its siblings.
type Definition struct {
	Type         Type                  `json:"type"`
	Title        string                `json:"title"`
	MetadataType database.MetadataType `json:"metadata_type,omitempty"`
	Context      Context               `json:"context"`
	SortOrder    int                   `json:"sort_order"`
	FilterValue  string                `json:"filter_value,omitempty"`
	WidgetHint   string                `json:"widget_hint,omitempty"`
}

// HomeDefinitions are the hubs shown on the landing surface.
func HomeDefinitions() []Definition {
	return []Definition{
		{Type: ContinueWatching, Title: "Continue Watching", Context: ContextHome, SortOrder: 0, WidgetHint: "landscape"},
		{Type: RecentlyAdded, Title: "Recently Added", Context: ContextHome, SortOrder: 1, WidgetHint: "poster"},
		{Type: RecentlyReleased, Title: "New Releases", Context: ContextHome, SortOrder: 2, WidgetHint: "poster"},
		{Type: TopRated, Title: "Top Rated", Context: ContextHome, SortOrder: 3, WidgetHint: "poster"},
	}
}

// DiscoverDefinitions are the hubs shown on one library's discover surface.
func DiscoverDefinitions(libType database.LibraryType) []Definition {
	defs := []Definition{
		{Type: RecentlyAdded, Title: "Recently Added", Context: ContextLibraryDiscover, SortOrder: 0, WidgetHint: "poster"},
		{Type: RecentlyReleased, Title: "Recently Released", Context: ContextLibraryDiscover, SortOrder: 1, WidgetHint: "poster"},
		{Type: TopRated, Title: "Top Rated", Context: ContextLibraryDiscover, SortOrder: 2, WidgetHint: "poster"},
	}
	switch libType {
	case database.LibraryMovies, database.LibraryTVShows:
		defs = append(defs,
			Definition{Type: ContinueWatching, Title: "Continue Watching", Context: ContextLibraryDiscover, SortOrder: 3, WidgetHint: "landscape"},
			Definition{Type: ByGenre, Title: "Science Fiction", Context: ContextLibraryDiscover, SortOrder: 4, FilterValue: "Science Fiction", WidgetHint: "poster"},
			Definition{Type: ByGenre, Title: "Drama", Context: ContextLibraryDiscover, SortOrder: 5, FilterValue: "Drama", WidgetHint: "poster"},
		)
	}
	return defs
}

// DetailDefinitions are the hubs shown on one item's detail surface.
func DetailDefinitions(t database.MetadataType) []Definition {
	defs := []Definition{
		{Type: Cast, Title: "Cast", MetadataType: t, Context: ContextItemDetail, SortOrder: 0, WidgetHint: "person"},
		{Type: Crew, Title: "Crew", MetadataType: t, Context: ContextItemDetail, SortOrder: 1, WidgetHint: "person"},
	}
	if t == database.TypeEpisode || t == database.TypeSeason {
		defs = append(defs, Definition{
			Type: MoreFromShow, Title: "More From This Show", MetadataType: t,
			Context: ContextItemDetail, SortOrder: 2, WidgetHint: "landscape",
		})
	}
	return defs
}

// KnownTypes lists every hub type the engine can resolve.
func KnownTypes() []Type {
	return []Type{
		RecentlyAdded, ContinueWatching, RecentlyReleased, TopRated,
		ByGenre, ByDirector, MoreFromShow, Cast, Crew,
	}
}
