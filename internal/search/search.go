// Package search answers pivoted catalog queries: one query string fanned out
// into per-type result groups.
package search

import (
	"strings"

	"github.com/nexalabs/nexa/internal/catalog"
	"github.com/nexalabs/nexa/internal/database"
	"github.com/nexalabs/nexa/internal/errs"
)

// Pivot is one result group.
type Pivot string

const (
	PivotTop     Pivot = "top"
	PivotMovie   Pivot = "movie"
	PivotShow    Pivot = "show"
	PivotEpisode Pivot = "episode"
	PivotPeople  Pivot = "people"
	PivotAlbum   Pivot = "album"
	PivotTrack   Pivot = "track"
)

// pivotTypes maps each pivot to the metadata types it searches. Top is the
// cross-type group and has no entry here.
var pivotTypes = map[Pivot][]database.MetadataType{
	PivotMovie:   {database.TypeMovie},
	PivotShow:    {database.TypeShow},
	PivotEpisode: {database.TypeEpisode},
	PivotPeople:  {database.TypePerson},
	PivotAlbum:   {database.TypeAlbumReleaseGroup},
	PivotTrack:   {database.TypeTrack},
}

// pivotOrder fixes the group order in a full (Top-less pivot unspecified)
// response.
var pivotOrder = []Pivot{
	PivotTop, PivotMovie, PivotShow, PivotEpisode, PivotPeople, PivotAlbum, PivotTrack,
}

// topTypes are the types eligible for the cross-type Top group.
var topTypes = []database.MetadataType{
	database.TypeMovie, database.TypeShow, database.TypeEpisode,
	database.TypePerson, database.TypeAlbumReleaseGroup, database.TypeTrack,
}

// Group is the results for one pivot.
type Group struct {
	Pivot Pivot                   `json:"pivot"`
	Items []database.MetadataItem `json:"items"`
}

// Request is one search invocation. An empty Pivot returns every group.
type Request struct {
	Query     string
	Pivot     Pivot
	SectionID *uint
	Limit     int
}

// Engine runs searches against the catalog.
type Engine struct {
	items *catalog.ItemRepository
}

func NewEngine(items *catalog.ItemRepository) *Engine {
	return &Engine{items: items}
}

// Search returns the requested pivot group, or all non-empty groups when no
// pivot is named.
func (e *Engine) Search(req Request) ([]Group, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, errs.E(errs.InvalidArgument, "search query is required")
	}
	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	pivots := pivotOrder
	if req.Pivot != "" {
		if _, known := pivotTypes[req.Pivot]; !known && req.Pivot != PivotTop {
			return nil, errs.Ef(errs.InvalidArgument, "unknown search pivot %q", req.Pivot)
		}
		pivots = []Pivot{req.Pivot}
	}

	var groups []Group
	for _, pivot := range pivots {
		types := pivotTypes[pivot]
		if pivot == PivotTop {
			types = topTypes
		}
		items, _, err := e.items.Query(catalog.ItemQuery{
			SectionID:  req.SectionID,
			Types:      types,
			TitleQuery: query,
			Order:      catalog.OrderTitle,
			Limit:      limit,
		})
		if err != nil {
			return nil, err
		}
		if pivot == PivotTop {
			items = rankTop(items, query)
			if len(items) > limit {
				items = items[:limit]
			}
		}
		if len(items) == 0 && req.Pivot == "" {
			continue
		}
		groups = append(groups, Group{Pivot: pivot, Items: items})
	}
	return groups, nil
}

// rankTop floats exact and prefix title matches above plain substring hits,
// keeping the underlying title order inside each band.
func rankTop(items []database.MetadataItem, query string) []database.MetadataItem {
	q := strings.ToLower(query)
	var exact, prefix, rest []database.MetadataItem
	for _, item := range items {
		title := strings.ToLower(item.Title)
		switch {
		case title == q:
			exact = append(exact, item)
		case strings.HasPrefix(title, q):
			prefix = append(prefix, item)
		default:
			rest = append(rest, item)
		}
	}
	ranked := make([]database.MetadataItem, 0, len(items))
	ranked = append(ranked, exact...)
	ranked = append(ranked, prefix...)
	ranked = append(ranked, rest...)
	return ranked
}
