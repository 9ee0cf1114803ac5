package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexalabs/nexa/internal/catalog"
	"github.com/nexalabs/nexa/internal/database"
	"github.com/nexalabs/nexa/internal/errs"
)

type searchFixture struct {
	engine  *Engine
	items   *catalog.ItemRepository
	section *database.LibrarySection
}

func newSearchFixture(t *testing.T) *searchFixture {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	sections := catalog.NewSectionRepository(db)
	section, err := sections.Create("Mixed", database.LibraryMovies, "en", []string{"/media/mixed"})
	require.NoError(t, err)
	items := catalog.NewItemRepository(db)
	return &searchFixture{engine: NewEngine(items), items: items, section: section}
}

func (fx *searchFixture) seed(t *testing.T, title string, mt database.MetadataType) *database.MetadataItem {
	t.Helper()
	item := &database.MetadataItem{
		LibrarySectionID: fx.section.ID,
		Type:             mt,
		Title:            title,
	}
	require.NoError(t, fx.items.Create(item))
	return item
}

func TestSearchGroupsByPivot(t *testing.T) {
	fx := newSearchFixture(t)
	fx.seed(t, "Alien", database.TypeMovie)
	fx.seed(t, "Aliens", database.TypeMovie)
	fx.seed(t, "Alien Nation", database.TypeShow)
	fx.seed(t, "Alien Ant Farm", database.TypeAlbumReleaseGroup)
	fx.seed(t, "Blade Runner", database.TypeMovie)

	groups, err := fx.engine.Search(Request{Query: "alien"})
	require.NoError(t, err)

	byPivot := make(map[Pivot]Group, len(groups))
	for _, g := range groups {
		byPivot[g.Pivot] = g
	}
	require.Contains(t, byPivot, PivotTop)
	require.Contains(t, byPivot, PivotMovie)
	require.Contains(t, byPivot, PivotShow)
	require.Contains(t, byPivot, PivotAlbum)
	assert.NotContains(t, byPivot, PivotEpisode, "empty groups are omitted")

	assert.Len(t, byPivot[PivotMovie].Items, 2)
	assert.Len(t, byPivot[PivotShow].Items, 1)
	assert.Len(t, byPivot[PivotTop].Items, 4)
}

func TestSearchSinglePivot(t *testing.T) {
	fx := newSearchFixture(t)
	fx.seed(t, "Alien", database.TypeMovie)
	fx.seed(t, "Alien Nation", database.TypeShow)

	groups, err := fx.engine.Search(Request{Query: "alien", Pivot: PivotMovie})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, PivotMovie, groups[0].Pivot)
	require.Len(t, groups[0].Items, 1)
	assert.Equal(t, "Alien", groups[0].Items[0].Title)

	// A named pivot is returned even when empty.
	groups, err = fx.engine.Search(Request{Query: "alien", Pivot: PivotTrack})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Empty(t, groups[0].Items)
}

func TestSearchTopRanksExactAndPrefixMatchesFirst(t *testing.T) {
	fx := newSearchFixture(t)
	fx.seed(t, "The Matrix Revolutions", database.TypeMovie)
	fx.seed(t, "Matrix", database.TypeMovie)
	fx.seed(t, "Matrix Reloaded", database.TypeMovie)

	groups, err := fx.engine.Search(Request{Query: "matrix", Pivot: PivotTop})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	items := groups[0].Items
	require.Len(t, items, 3)
	assert.Equal(t, "Matrix", items[0].Title)
	assert.Equal(t, "Matrix Reloaded", items[1].Title)
	assert.Equal(t, "The Matrix Revolutions", items[2].Title)
}

func TestSearchValidatesInput(t *testing.T) {
	fx := newSearchFixture(t)

	_, err := fx.engine.Search(Request{Query: "   "})
	require.Error(t, err)
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))

	_, err = fx.engine.Search(Request{Query: "x", Pivot: Pivot("bogus")})
	require.Error(t, err)
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))
}
